// Package door drives a DRV8825 stepper driver that rotates a spring-return
// lock to its unlocked position, holds it for a grace period and releases it.
package door

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/door/internal/gpio"
)

var (
	// ErrNotLocked is returned when an unlock is requested while a cycle is
	// already in progress or a fault is held.
	ErrNotLocked = errors.New("door: actuator not locked")
	ErrDoorOpen  = errors.New("door: door sensor reports open")
	ErrFault     = errors.New("door: driver fault asserted")
)

// Wiring names the BCM pins the driver board and door sensor sit on.
// EnableN, FaultN and DoorOpenN are active low.
type Wiring struct {
	EnableN   gpio.Pin
	FaultN    gpio.Pin
	Direction gpio.Pin
	Step      gpio.Pin
	DoorOpenN gpio.Pin

	// ModePins select the microstep mode; all are driven low (full step).
	ModePins []gpio.Pin
}

// DefaultWiring matches the lab door build.
func DefaultWiring() Wiring {
	return Wiring{
		EnableN:   4,
		FaultN:    17,
		Direction: 24,
		Step:      18,
		DoorOpenN: 25,
		ModePins:  []gpio.Pin{21, 22, 23},
	}
}

type Config struct {
	// Steps is the length of the unlock pulse train.
	Steps int
	// StepDelay is held after each edge of every step pulse.
	StepDelay time.Duration
	// Direction is the level written to the direction pin (0 or 1).
	Direction int
	// OpenTime is how long the lock is held open before release.
	OpenTime time.Duration
	// PollInterval slices the open dwell so the fault line is still watched.
	PollInterval time.Duration
	// FaultLogInterval rate-limits the "still faulted" log line.
	FaultLogInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Steps:            220,
		StepDelay:        800 * time.Microsecond,
		Direction:        0,
		OpenTime:         3 * time.Second,
		PollInterval:     time.Millisecond,
		FaultLogInterval: time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Steps <= 0 {
		c.Steps = d.Steps
	}
	if c.StepDelay <= 0 {
		c.StepDelay = d.StepDelay
	}
	if c.OpenTime < 0 {
		c.OpenTime = d.OpenTime
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.FaultLogInterval <= 0 {
		c.FaultLogInterval = d.FaultLogInterval
	}
	return c
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real-time SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Dependencies struct {
	Pins   gpio.Pins
	Wiring Wiring
	Config Config
	Logger *log.Logger

	// Sleep defaults to the real-time Sleep.
	Sleep SleepFunc
	// Now defaults to time.Now.
	Now func() time.Time
}

// Status is a point-in-time view of the actuator for reporting.
type Status struct {
	State          State
	FaultAsserted  bool
	DoorOpen       bool
	Cycles         uint64
	Faults         uint64
	LastTransition time.Time
}

// Actuator owns the lock state.  Actuate and Poll are called from the
// single control loop; State and Status may be read from anywhere.
type Actuator struct {
	pins   gpio.Pins
	wiring Wiring
	cfg    Config
	logger *log.Logger
	sleep  SleepFunc
	now    func() time.Time

	mu             sync.Mutex
	state          State
	cycles         uint64
	faults         uint64
	lastTransition time.Time
	observers      []func(Transition)

	lastFaultLog time.Time
}

// New configures the driver pins, leaves the driver disabled and returns an
// actuator in Locked.
func New(d Dependencies) (*Actuator, error) {
	if d.Pins == nil {
		return nil, errors.New("door: pins are required")
	}
	if d.Logger == nil {
		return nil, errors.New("door: logger is required")
	}
	a := &Actuator{
		pins:   d.Pins,
		wiring: d.Wiring,
		cfg:    d.Config.withDefaults(),
		logger: d.Logger,
		sleep:  d.Sleep,
		now:    d.Now,
	}
	if a.sleep == nil {
		a.sleep = Sleep
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.cfg.Direction != 0 && a.cfg.Direction != 1 {
		return nil, fmt.Errorf("door: direction must be 0 or 1, got %d", a.cfg.Direction)
	}

	if err := a.setupPins(); err != nil {
		return nil, err
	}
	a.lastTransition = a.now()
	return a, nil
}

func (a *Actuator) setupPins() error {
	w := a.wiring
	// ENABLE_N is active-low: it comes up high so the driver is never
	// enabled while the other lines are still being configured.
	if err := a.pins.Configure(w.EnableN, gpio.OutputHigh); err != nil {
		return fmt.Errorf("door: configure %s: %w", w.EnableN, err)
	}
	outputs := append([]gpio.Pin{w.Direction, w.Step}, w.ModePins...)
	for _, p := range outputs {
		if err := a.pins.Configure(p, gpio.Output); err != nil {
			return fmt.Errorf("door: configure %s: %w", p, err)
		}
	}
	if err := a.pins.Configure(w.FaultN, gpio.InputPullUp); err != nil {
		return fmt.Errorf("door: configure fault line: %w", err)
	}
	if err := a.pins.Configure(w.DoorOpenN, gpio.InputPullDown); err != nil {
		return fmt.Errorf("door: configure door sensor: %w", err)
	}

	// Startup levels: driver disabled, full step, idle step line.
	if err := a.pins.Write(w.EnableN, true); err != nil {
		return fmt.Errorf("door: disable driver: %w", err)
	}
	for _, p := range append([]gpio.Pin{w.Direction, w.Step}, w.ModePins...) {
		if err := a.pins.Write(p, false); err != nil {
			return fmt.Errorf("door: reset %s: %w", p, err)
		}
	}
	return nil
}

// Observe registers fn to be called after every state change.  Observers
// run on the goroutine that caused the change and must not block.
func (a *Actuator) Observe(fn func(Transition)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, fn)
}

func (a *Actuator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Actuator) Status() Status {
	a.mu.Lock()
	st := Status{
		State:          a.state,
		Cycles:         a.cycles,
		Faults:         a.faults,
		LastTransition: a.lastTransition,
	}
	a.mu.Unlock()

	st.FaultAsserted = a.faultAsserted()
	st.DoorOpen = a.doorOpen()
	return st
}

func (a *Actuator) faultAsserted() bool { return !a.pins.Read(a.wiring.FaultN) }
func (a *Actuator) doorOpen() bool      { return !a.pins.Read(a.wiring.DoorOpenN) }

func (a *Actuator) transition(to State) {
	a.mu.Lock()
	from := a.state
	if from == to {
		a.mu.Unlock()
		return
	}
	a.state = to
	a.lastTransition = a.now()
	if to == Fault {
		a.faults++
	}
	obs := append([]func(Transition){}, a.observers...)
	a.mu.Unlock()

	for _, fn := range obs {
		fn(Transition{From: from, To: to})
	}
}

func (a *Actuator) disableDriver() {
	if err := a.pins.Write(a.wiring.EnableN, true); err != nil {
		a.logger.Printf("door: disable driver: %v", err)
	}
}

// Poll samples the fault line once.  A newly asserted fault disables the
// driver and moves the actuator to Fault; a cleared fault returns it to
// Locked.  The interrupted unlock, if any, is not resumed.
func (a *Actuator) Poll() State {
	asserted := a.faultAsserted()
	state := a.State()

	switch {
	case asserted && state != Fault:
		a.enterFault()
	case asserted:
		if now := a.now(); now.Sub(a.lastFaultLog) >= a.cfg.FaultLogInterval {
			a.lastFaultLog = now
			a.disableDriver()
			a.logger.Printf("door: driver fault still asserted, driver held disabled")
		}
	case state == Fault:
		a.logger.Printf("door: driver fault cleared, waiting for a new card")
		a.transition(Locked)
	}
	return a.State()
}

func (a *Actuator) enterFault() {
	a.disableDriver()
	a.lastFaultLog = a.now()
	a.logger.Printf("door: DRV8825 is reporting a fault, driver disabled")
	a.transition(Fault)
}

// Actuate runs one full unlock cycle: enable the driver, step the lock open,
// hold it for OpenTime, then disable the driver and let the spring relock.
// It blocks for the whole cycle.
//
// The fault line is checked before every step pulse and every dwell slice.
// A fault aborts the cycle into Fault and returns ErrFault; cancelling ctx
// aborts at the next pulse boundary and relocks.
func (a *Actuator) Actuate(ctx context.Context) error {
	if s := a.State(); s != Locked {
		return fmt.Errorf("%w (state %s)", ErrNotLocked, s)
	}
	if a.faultAsserted() {
		a.enterFault()
		return ErrFault
	}
	if a.doorOpen() {
		return ErrDoorOpen
	}

	a.transition(Unlocking)
	if err := a.unlock(ctx); err != nil {
		return a.abort(err)
	}

	a.transition(Open)
	if err := a.dwell(ctx); err != nil {
		return a.abort(err)
	}

	a.transition(Relocking)
	a.disableDriver()
	a.mu.Lock()
	a.cycles++
	a.mu.Unlock()
	a.transition(Locked)
	return nil
}

func (a *Actuator) unlock(ctx context.Context) error {
	w := a.wiring
	if err := a.pins.Write(w.Direction, a.cfg.Direction == 1); err != nil {
		return fmt.Errorf("set direction: %w", err)
	}
	if err := a.pins.Write(w.EnableN, false); err != nil {
		return fmt.Errorf("enable driver: %w", err)
	}

	for i := 0; i < a.cfg.Steps; i++ {
		if a.faultAsserted() {
			return ErrFault
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.pins.Write(w.Step, true); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if err := a.sleep(ctx, a.cfg.StepDelay); err != nil {
			_ = a.pins.Write(w.Step, false)
			return err
		}
		if err := a.pins.Write(w.Step, false); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if err := a.sleep(ctx, a.cfg.StepDelay); err != nil {
			return err
		}
	}
	return nil
}

func (a *Actuator) dwell(ctx context.Context) error {
	for remaining := a.cfg.OpenTime; ; {
		if a.faultAsserted() {
			return ErrFault
		}
		if remaining <= 0 {
			return nil
		}
		slice := min(a.cfg.PollInterval, remaining)
		if err := a.sleep(ctx, slice); err != nil {
			return err
		}
		remaining -= slice
	}
}

// abort ends an interrupted cycle with the driver disabled.
func (a *Actuator) abort(err error) error {
	if errors.Is(err, ErrFault) {
		a.enterFault()
		return ErrFault
	}
	a.logger.Printf("door: unlock cycle aborted: %v", err)
	a.transition(Relocking)
	a.disableDriver()
	a.transition(Locked)
	return err
}

// Shutdown leaves the driver disabled and the step line idle.  Call it once
// the control loop has stopped.
func (a *Actuator) Shutdown() {
	a.disableDriver()
	if err := a.pins.Write(a.wiring.Step, false); err != nil {
		a.logger.Printf("door: idle step line: %v", err)
	}
}
