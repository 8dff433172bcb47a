package wiegand

// DefaultQuietTicks is the idle period, in poll ticks, that ends a frame.
// At the default 1 ms poll interval this is about 100 ms.
const DefaultQuietTicks = 100

// Assembler detects end-of-frame by inactivity.  Wiegand has no terminator,
// so a frame is complete once the capture has seen no edge for QuietTicks
// consecutive calls to Tick and holds at least one bit.
//
// An Assembler is driven by a single poll loop and is not safe for
// concurrent use; the Capture it reads from is.
type Assembler struct {
	capture *Capture
	quiet   int

	lastGen uint64
	idle    int
}

func NewAssembler(c *Capture, quietTicks int) *Assembler {
	if quietTicks <= 0 {
		quietTicks = DefaultQuietTicks
	}
	gen, _ := c.Snapshot()
	return &Assembler{capture: c, quiet: quietTicks, lastGen: gen}
}

// Tick advances the idle counter by one poll and returns the completed
// frame, if any.  A frame is returned at most once per idle period.
func (a *Assembler) Tick() (Frame, bool) {
	gen, count := a.capture.Snapshot()
	if gen != a.lastGen {
		a.lastGen = gen
		a.idle = 0
		return Frame{}, false
	}

	if a.idle < a.quiet {
		a.idle++
	}
	if a.idle < a.quiet || count == 0 {
		return Frame{}, false
	}

	f, ok := a.capture.TakeIfIdle(gen)
	if !ok {
		// An edge slipped in between the snapshot and the take.
		return Frame{}, false
	}
	a.lastGen, _ = a.capture.Snapshot()
	a.idle = 0
	return f, true
}

// Discard drops whatever the capture accumulated while the caller was busy
// with the previous frame.  It returns the number of bits dropped.
func (a *Assembler) Discard() int {
	bits, _ := a.capture.Reset()
	a.lastGen, _ = a.capture.Snapshot()
	a.idle = 0
	return bits
}
