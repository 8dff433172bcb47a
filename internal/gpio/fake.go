package gpio

import (
	"fmt"
	"sync"
)

// WriteRecord captures a single Write call on a Fake.
type WriteRecord struct {
	Pin  Pin
	High bool
}

// Fake is an in-memory Pins implementation.  Inputs are set with SetLevel,
// falling edges are injected with Pulse, and every output write is recorded.
// Edge handlers run synchronously on the goroutine calling Pulse.
type Fake struct {
	mu       sync.Mutex
	modes    map[Pin]Mode
	levels   map[Pin]bool
	handlers map[Pin][]func()
	writes   []WriteRecord
	onWrite  func(WriteRecord)
	closed   bool
}

func NewFake() *Fake {
	return &Fake{
		modes:    make(map[Pin]Mode),
		levels:   make(map[Pin]bool),
		handlers: make(map[Pin][]func()),
	}
}

func (f *Fake) Configure(pin Pin, mode Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.modes[pin] = mode
	if mode == OutputHigh {
		f.levels[pin] = true
	} else if _, ok := f.levels[pin]; !ok {
		// Pulled inputs idle at their pull level.
		f.levels[pin] = mode == InputPullUp
	}
	return nil
}

func (f *Fake) Read(pin Pin) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[pin]
}

func (f *Fake) Write(pin Pin, high bool) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if m, ok := f.modes[pin]; !ok || !m.IsOutput() {
		f.mu.Unlock()
		return fmt.Errorf("write %s: %w", pin, ErrNotConfigured)
	}
	f.levels[pin] = high
	rec := WriteRecord{Pin: pin, High: high}
	f.writes = append(f.writes, rec)
	hook := f.onWrite
	f.mu.Unlock()

	if hook != nil {
		hook(rec)
	}
	return nil
}

func (f *Fake) OnFallingEdge(pin Pin, fn func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if _, ok := f.modes[pin]; !ok {
		f.modes[pin] = InputPullUp
		f.levels[pin] = true
	}
	f.handlers[pin] = append(f.handlers[pin], fn)
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.handlers = make(map[Pin][]func())
	return nil
}

// SetLevel drives an input pin to the given level.
func (f *Fake) SetLevel(pin Pin, high bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels[pin] = high
}

// Pulse simulates a high-low-high pulse on pin and fires its falling-edge
// handlers once.
func (f *Fake) Pulse(pin Pin) {
	f.mu.Lock()
	hs := append([]func(){}, f.handlers[pin]...)
	f.mu.Unlock()

	for _, h := range hs {
		h()
	}
}

// OnWrite installs a hook that observes every successful Write.  Tests use it
// to flip inputs at a precise point in an output sequence.
func (f *Fake) OnWrite(fn func(WriteRecord)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onWrite = fn
}

// Mode returns the configured mode of pin.
func (f *Fake) Mode(pin Pin) (Mode, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.modes[pin]
	return m, ok
}

// Writes returns a copy of all recorded writes.
func (f *Fake) Writes() []WriteRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]WriteRecord, len(f.writes))
	copy(out, f.writes)
	return out
}

// CountWrites returns how many times pin was driven to the given level.
func (f *Fake) CountWrites(pin Pin, high bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.writes {
		if w.Pin == pin && w.High == high {
			n++
		}
	}
	return n
}
