// Package wiegand decodes card presentations from a two-line Wiegand reader.
//
// A Capture accumulates bits from falling edges on the data-0 and data-1
// lines, an Assembler decides when the reader has gone quiet long enough
// for the captured bits to form a complete Frame, and Formats turns a Frame
// of a known length into a Credential.
package wiegand

import (
	"strings"
	"sync"
)

// DefaultCapacity is the largest frame the capture will hold.  Longer
// bursts are truncated and reported as overflow.
const DefaultCapacity = 100

// highHolderBits is how many leading bits accumulate in Holders.High before
// the capture switches to Holders.Low.
const highHolderBits = 22

// Holders mirror a frame as two shift-accumulated words: High takes the
// first 22 bits, Low every bit after that.  Each new bit shifts the active
// word left by one and ORs the bit in.
type Holders struct {
	High uint64
	Low  uint64
}

func (h *Holders) push(index int, bit byte) {
	if index < highHolderBits {
		h.High = h.High<<1 | uint64(bit)
	} else {
		h.Low = h.Low<<1 | uint64(bit)
	}
}

// HoldersOf recomputes the holder words for a frame.
func HoldersOf(f Frame) Holders {
	var h Holders
	for i, b := range f.Bits {
		h.push(i, b)
	}
	return h
}

// Frame is one completed card presentation.
type Frame struct {
	Bits    []byte
	Holders Holders

	// Overflow counts edges dropped because the capture was full.
	Overflow int
}

func (f Frame) Len() int { return len(f.Bits) }

// String renders the frame as a run of 0 and 1 characters.
func (f Frame) String() string {
	var sb strings.Builder
	sb.Grow(len(f.Bits))
	for _, b := range f.Bits {
		sb.WriteByte('0' + b)
	}
	return sb.String()
}

// Capture is the shared bit accumulator written by the edge handlers and
// drained by the poll loop.  Every method is safe for concurrent use.
type Capture struct {
	mu       sync.Mutex
	bits     []byte
	holders  Holders
	overflow int
	gen      uint64
}

// NewCapture returns a capture holding at most capacity bits.  A
// non-positive capacity selects DefaultCapacity.
func NewCapture(capacity int) *Capture {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Capture{bits: make([]byte, 0, capacity)}
}

// Zero is the falling-edge handler for the data-0 line.
func (c *Capture) Zero() { c.edge(0) }

// One is the falling-edge handler for the data-1 line.
func (c *Capture) One() { c.edge(1) }

func (c *Capture) edge(bit byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Every edge restarts the quiet interval, including dropped ones.
	c.gen++
	if len(c.bits) == cap(c.bits) {
		c.overflow++
		return
	}
	c.holders.push(len(c.bits), bit)
	c.bits = append(c.bits, bit)
}

// Snapshot reports the current edge generation and bit count.  The
// generation changes on every edge.
func (c *Capture) Snapshot() (gen uint64, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, len(c.bits)
}

// TakeIfIdle atomically copies out and clears the captured bits, but only
// if no edge has arrived since gen was observed and at least one bit is
// held.  Bits arriving after the take belong to the next frame.
func (c *Capture) TakeIfIdle(gen uint64) (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen || len(c.bits) == 0 {
		return Frame{}, false
	}
	f := Frame{
		Bits:     append([]byte(nil), c.bits...),
		Holders:  c.holders,
		Overflow: c.overflow,
	}
	c.clearLocked()
	return f, true
}

// Reset discards everything captured so far and returns how many bits and
// overflowed edges were thrown away.
func (c *Capture) Reset() (bits, overflow int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bits, overflow = len(c.bits), c.overflow
	c.clearLocked()
	return bits, overflow
}

func (c *Capture) clearLocked() {
	c.bits = c.bits[:0]
	c.holders = Holders{}
	c.overflow = 0
	// A reset is activity too: a half-captured frame left behind must wait
	// out a full quiet interval before it can complete.
	c.gen++
}
