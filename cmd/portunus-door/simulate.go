package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Portunus/door/internal/controller"
	"github.com/BrandonDHaskell/Portunus/door/internal/door"
	"github.com/BrandonDHaskell/Portunus/door/internal/gpio"
	"github.com/BrandonDHaskell/Portunus/door/internal/wiegand"
)

var errBadSimLine = errors.New("expected a 0/1 frame or one of: fault, clear, open, close")

// simulator turns bench input into pin activity on a gpio.Fake.  Each input
// line is either a run of 0 and 1 characters, clocked in as one frame, or a
// command:
//
//	fault, clear   assert or release the driver fault line
//	open, close    move the door sensor
type simulator struct {
	pins   *gpio.Fake
	wiring door.Wiring
	d0, d1 gpio.Pin
	logger *log.Logger

	// gap is how long Run idles after a frame line so the reader goes quiet
	// before the next line is clocked in.
	gap time.Duration
}

func newSimulator(pins *gpio.Fake, wiring door.Wiring, d0, d1 gpio.Pin, gap time.Duration, logger *log.Logger) *simulator {
	return &simulator{pins: pins, wiring: wiring, d0: d0, d1: d1, gap: gap, logger: logger}
}

// frameGap is the controller's quiet window plus half again as margin.
func frameGap(quietTicks int, poll time.Duration) time.Duration {
	if quietTicks <= 0 {
		quietTicks = wiegand.DefaultQuietTicks
	}
	if poll <= 0 {
		poll = controller.DefaultPollInterval
	}
	window := time.Duration(quietTicks) * poll
	return window + window/2
}

// Run applies lines from r until EOF or ctx is done.  Bad lines are logged
// and skipped.  After every frame line Run waits out the gap, so piped input
// yields one frame per line.
func (s *simulator) Run(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := sc.Text()
		if err := s.Apply(line); err != nil {
			s.logger.Printf("simulate: %v", err)
			continue
		}
		if isFrameLine(line) {
			if err := s.idle(ctx); err != nil {
				return err
			}
		}
	}
	return sc.Err()
}

func (s *simulator) idle(ctx context.Context) error {
	if s.gap <= 0 {
		return nil
	}
	t := time.NewTimer(s.gap)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isFrameLine(line string) bool {
	line = strings.TrimSpace(line)
	return line != "" && strings.Trim(line, "01") == ""
}

func (s *simulator) Apply(line string) error {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "":
		return nil
	case "fault":
		s.pins.SetLevel(s.wiring.FaultN, false)
		return nil
	case "clear":
		s.pins.SetLevel(s.wiring.FaultN, true)
		return nil
	case "open":
		s.pins.SetLevel(s.wiring.DoorOpenN, false)
		return nil
	case "close":
		s.pins.SetLevel(s.wiring.DoorOpenN, true)
		return nil
	}

	if !isFrameLine(line) {
		return fmt.Errorf("%q: %w", line, errBadSimLine)
	}
	for _, ch := range line {
		if ch == '1' {
			s.pins.Pulse(s.d1)
		} else {
			s.pins.Pulse(s.d0)
		}
	}
	return nil
}
