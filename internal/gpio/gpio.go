// Package gpio is the pin substrate the door controller runs on.  The core
// only ever talks to the Pins interface; the Fake backend serves tests and
// bench simulation, and the periph backend drives real Raspberry Pi pins.
package gpio

import (
	"errors"
	"fmt"
)

// Pin is a BCM GPIO number (not a physical header position).
type Pin int

func (p Pin) String() string { return fmt.Sprintf("GPIO%d", int(p)) }

type Mode int

const (
	Input Mode = iota
	InputPullUp
	InputPullDown
	Output
	// OutputHigh is an output driven high from the moment it is configured,
	// for active-low enables that must never glitch on.
	OutputHigh
)

func (m Mode) String() string {
	switch m {
	case Input:
		return "input"
	case InputPullUp:
		return "input_pull_up"
	case InputPullDown:
		return "input_pull_down"
	case Output:
		return "output"
	case OutputHigh:
		return "output_high"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// IsOutput reports whether m drives the pin.
func (m Mode) IsOutput() bool { return m == Output || m == OutputHigh }

var (
	ErrUnknownPin    = errors.New("gpio: unknown pin")
	ErrNotConfigured = errors.New("gpio: pin not configured")
	ErrClosed        = errors.New("gpio: pins closed")
)

// Pins is the minimal pin surface the controller needs.
//
// OnFallingEdge handlers run on a backend-owned goroutine and may run
// concurrently with each other and with the caller of Read/Write.
type Pins interface {
	Configure(pin Pin, mode Mode) error
	Read(pin Pin) bool
	Write(pin Pin, high bool) error
	OnFallingEdge(pin Pin, fn func()) error
	Close() error
}
