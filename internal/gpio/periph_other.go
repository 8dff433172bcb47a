//go:build !linux

package gpio

import (
	"errors"
	"log"
)

// Periph is unavailable off Linux; use --simulate on development machines.
type Periph struct{ Fake }

func NewPeriph(_ *log.Logger) (*Periph, error) {
	return nil, errors.New("gpio: hardware pins are only supported on linux")
}
