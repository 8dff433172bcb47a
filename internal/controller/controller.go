// Package controller runs the door loop: it watches the driver fault line,
// assembles Wiegand frames, decides access and drives the lock.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/BrandonDHaskell/Portunus/door/internal/door"
	"github.com/BrandonDHaskell/Portunus/door/internal/gpio"
	"github.com/BrandonDHaskell/Portunus/door/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/door/internal/portunus/types"
	"github.com/BrandonDHaskell/Portunus/door/internal/wiegand"
)

const DefaultPollInterval = time.Millisecond

type Dependencies struct {
	Logger   *log.Logger
	Capture  *wiegand.Capture
	Formats  wiegand.Formats
	Access   *service.AccessService
	Actuator *door.Actuator

	// QuietTicks ends a frame after this many edge-free polls.
	QuietTicks   int
	PollInterval time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

type Controller struct {
	logger    *log.Logger
	capture   *wiegand.Capture
	assembler *wiegand.Assembler
	formats   wiegand.Formats
	access    *service.AccessService
	actuator  *door.Actuator
	poll      time.Duration
	now       func() time.Time

	frames      atomic.Uint64
	anomalies   atomic.Uint64
	granted     atomic.Uint64
	denied      atomic.Uint64
	droppedBits atomic.Uint64
}

func New(d Dependencies) (*Controller, error) {
	switch {
	case d.Logger == nil:
		return nil, errors.New("controller: logger is required")
	case d.Capture == nil:
		return nil, errors.New("controller: capture is required")
	case d.Access == nil:
		return nil, errors.New("controller: access service is required")
	case d.Actuator == nil:
		return nil, errors.New("controller: actuator is required")
	case len(d.Formats) == 0:
		return nil, errors.New("controller: no frame formats enabled")
	}

	c := &Controller{
		logger:    d.Logger,
		capture:   d.Capture,
		assembler: wiegand.NewAssembler(d.Capture, d.QuietTicks),
		formats:   d.Formats,
		access:    d.Access,
		actuator:  d.Actuator,
		poll:      d.PollInterval,
		now:       d.Now,
	}
	if c.poll <= 0 {
		c.poll = DefaultPollInterval
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// AttachReader configures the reader's data lines and routes their falling
// edges into capture.
func AttachReader(pins gpio.Pins, d0, d1 gpio.Pin, capture *wiegand.Capture) error {
	for _, p := range []gpio.Pin{d0, d1} {
		if err := pins.Configure(p, gpio.InputPullUp); err != nil {
			return fmt.Errorf("configure reader %s: %w", p, err)
		}
	}
	if err := pins.OnFallingEdge(d0, capture.Zero); err != nil {
		return fmt.Errorf("watch D0: %w", err)
	}
	if err := pins.OnFallingEdge(d1, capture.One); err != nil {
		return fmt.Errorf("watch D1: %w", err)
	}
	return nil
}

// Run ticks the loop every poll interval until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Printf("door loop running (lengths=%v, poll=%s, allow-list=%d keys)",
		c.formats.Lengths(), c.poll, c.access.Policy().Size())

	t := time.NewTicker(c.poll)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Printf("door loop stopped")
			return nil
		case <-t.C:
			c.Tick(ctx)
		}
	}
}

// Tick is one loop iteration: sample the fault line, advance the frame
// assembler and, when a frame completes, process it.  Bits read while the
// frame was being processed are dropped.
func (c *Controller) Tick(ctx context.Context) {
	c.actuator.Poll()

	f, ok := c.assembler.Tick()
	if !ok {
		return
	}
	c.handleFrame(ctx, f)

	if n := c.assembler.Discard(); n > 0 {
		c.droppedBits.Add(uint64(n))
		c.logger.Printf("dropped %d bits read during the previous card", n)
	}
}

func (c *Controller) handleFrame(ctx context.Context, f wiegand.Frame) {
	c.frames.Add(1)
	presentedAt := c.now().UTC()
	// Audit writes outlive a shutdown that lands mid-cycle.
	auditCtx := context.WithoutCancel(ctx)

	c.logger.Printf("read %d bits: %s", f.Len(), f)

	if f.Overflow > 0 {
		c.anomalies.Add(1)
		c.logger.Printf("frame overflowed the capture by %d edges, discarded", f.Overflow)
		c.access.RecordRejectedFrame(auditCtx, f.Len()+f.Overflow, presentedAt)
		return
	}

	cred, err := c.formats.Extract(f)
	if err != nil {
		c.anomalies.Add(1)
		c.logger.Printf("frame discarded: %v", err)
		c.access.RecordRejectedFrame(auditCtx, f.Len(), presentedAt)
		return
	}

	if chunks, ok := wiegand.ChunkedHex(f); ok {
		c.logger.Printf("%d bit card. FC = %d, CC = %d, 44bit HEX = %s",
			cred.BitLength, cred.FacilityCode, cred.CardCode, chunks)
	} else {
		c.logger.Printf("%d bit card. FC = %d, CC = %d", cred.BitLength, cred.FacilityCode, cred.CardCode)
	}

	d := c.access.Decide(cred, presentedAt)
	if !d.Granted {
		c.denied.Add(1)
		c.logger.Printf("card %s is not on the access list", d.Key)
		c.access.RecordOutcome(auditCtx, d, "")
		return
	}

	c.granted.Add(1)
	c.logger.Printf("card %s granted, unlocking", d.Key)
	outcome := outcomeOf(c.actuator.Actuate(ctx))
	if outcome != service.OutcomeOpened {
		c.logger.Printf("unlock for card %s did not complete: %s", d.Key, outcome)
	}
	c.access.RecordOutcome(auditCtx, d, outcome)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return service.OutcomeOpened
	case errors.Is(err, door.ErrFault):
		return service.OutcomeFault
	case errors.Is(err, door.ErrDoorOpen):
		return service.OutcomeDoorOpen
	case errors.Is(err, door.ErrNotLocked):
		return service.OutcomeBusy
	default:
		return service.OutcomeAborted
	}
}

// Status is safe to call from any goroutine.
func (c *Controller) Status() types.DoorStatus {
	st := c.actuator.Status()
	out := types.DoorStatus{
		OK:             true,
		State:          st.State.String(),
		FaultAsserted:  st.FaultAsserted,
		DoorOpen:       st.DoorOpen,
		Cycles:         st.Cycles,
		Faults:         st.Faults,
		Frames:         c.frames.Load(),
		Anomalies:      c.anomalies.Load(),
		Granted:        c.granted.Load(),
		Denied:         c.denied.Load(),
		DroppedBits:    c.droppedBits.Load(),
		EnabledLengths: c.formats.Lengths(),
		AllowListSize:  c.access.Policy().Size(),
		ServerTime:     c.now().UTC().Format(time.RFC3339Nano),
	}
	if !st.LastTransition.IsZero() {
		out.LastTransition = st.LastTransition.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// RecentEvents exposes the audit log to the API layers.
func (c *Controller) RecentEvents(ctx context.Context, limit int) ([]types.AccessEvent, error) {
	return c.access.RecentEvents(ctx, limit)
}
