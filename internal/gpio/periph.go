//go:build linux

package gpio

import (
	"fmt"
	"log"
	"sync"
	"time"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// edgePollTimeout bounds each WaitForEdge call so watcher goroutines notice
// Close without relying on Halt support in every driver.
const edgePollTimeout = 100 * time.Millisecond

// Periph drives real pins through periph.io.  Pins are looked up by their
// BCM name ("GPIO17").
type Periph struct {
	logger *log.Logger

	mu     sync.Mutex
	pins   map[Pin]pgpio.PinIO
	modes  map[Pin]Mode
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// NewPeriph initialises the periph host drivers.
func NewPeriph(logger *log.Logger) (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &Periph{
		logger: logger,
		pins:   make(map[Pin]pgpio.PinIO),
		modes:  make(map[Pin]Mode),
		done:   make(chan struct{}),
	}, nil
}

func (p *Periph) lookup(pin Pin) (pgpio.PinIO, error) {
	if io, ok := p.pins[pin]; ok {
		return io, nil
	}
	io := gpioreg.ByName(pin.String())
	if io == nil {
		return nil, fmt.Errorf("%s: %w", pin, ErrUnknownPin)
	}
	p.pins[pin] = io
	return io, nil
}

func pullFor(mode Mode) pgpio.Pull {
	switch mode {
	case InputPullUp:
		return pgpio.PullUp
	case InputPullDown:
		return pgpio.PullDown
	default:
		return pgpio.Float
	}
}

func (p *Periph) Configure(pin Pin, mode Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	io, err := p.lookup(pin)
	if err != nil {
		return err
	}

	switch mode {
	case Output:
		err = io.Out(pgpio.Low)
	case OutputHigh:
		err = io.Out(pgpio.High)
	default:
		err = io.In(pullFor(mode), pgpio.NoEdge)
	}
	if err != nil {
		return fmt.Errorf("configure %s as %s: %w", pin, mode, err)
	}
	p.modes[pin] = mode
	return nil
}

func (p *Periph) Read(pin Pin) bool {
	p.mu.Lock()
	io, ok := p.pins[pin]
	p.mu.Unlock()
	if !ok {
		return false
	}
	return io.Read() == pgpio.High
}

func (p *Periph) Write(pin Pin, high bool) error {
	p.mu.Lock()
	io, ok := p.pins[pin]
	mode := p.modes[pin]
	p.mu.Unlock()
	if !ok || !mode.IsOutput() {
		return fmt.Errorf("write %s: %w", pin, ErrNotConfigured)
	}

	level := pgpio.Low
	if high {
		level = pgpio.High
	}
	return io.Out(level)
}

// OnFallingEdge arms edge detection on pin and calls fn from a dedicated
// watcher goroutine for every falling edge until Close.  An unconfigured pin
// is armed with a pull-up, matching the idle-high Wiegand data lines.
func (p *Periph) OnFallingEdge(pin Pin, fn func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	io, err := p.lookup(pin)
	if err != nil {
		return err
	}
	mode, ok := p.modes[pin]
	if !ok {
		mode = InputPullUp
	}
	if err := io.In(pullFor(mode), pgpio.FallingEdge); err != nil {
		return fmt.Errorf("arm falling edge on %s: %w", pin, err)
	}
	p.modes[pin] = mode

	p.wg.Add(1)
	go p.watch(io, fn)
	return nil
}

func (p *Periph) watch(io pgpio.PinIO, fn func()) {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		default:
		}
		if io.WaitForEdge(edgePollTimeout) {
			fn()
		}
	}
}

func (p *Periph) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	pins := make([]pgpio.PinIO, 0, len(p.pins))
	for _, io := range p.pins {
		pins = append(pins, io)
	}
	p.mu.Unlock()

	for _, io := range pins {
		if err := io.Halt(); err != nil && p.logger != nil {
			p.logger.Printf("gpio halt %s: %v", io.Name(), err)
		}
	}
	p.wg.Wait()
	return nil
}
