package wiegand

import "fmt"

const (
	minChunkedBits = 26
	maxChunkedBits = 37

	chunk1Bits = 20
	chunk2Bits = 24

	// Fixed preamble marker bit inside chunk1.
	preambleMarker = 13
)

// Chunks is the 44-bit vendor representation of a frame, split the way
// reader configuration tools print it: 20 bits then 24 bits.
type Chunks struct {
	High uint32 // 20 bits
	Low  uint32 // 24 bits
}

// String renders the chunks as 11 upper-case hex digits.
func (c Chunks) String() string {
	return fmt.Sprintf("%05X%06X", c.High, c.Low)
}

// Value returns the chunks joined into one 44-bit number.
func (c Chunks) Value() uint64 {
	return uint64(c.High)<<chunk2Bits | uint64(c.Low)
}

// ChunkedHex rebuilds the 44-bit value for frames of 26 to 37 bits by
// wrapping the raw payload in the vendor preamble.  With offset = length-26:
//
//   - chunk1 has marker bits at 13 and at 2+offset (neither for 37 bits),
//     zeros in between, and the top 2+offset bits of the high holder below;
//   - chunk2 has the remaining 20-offset high-holder bits shifted up by
//     4+offset, with the 4+offset low-holder bits underneath.
//
// It is a display aid only.
func ChunkedHex(f Frame) (Chunks, bool) {
	n := f.Len()
	if n < minChunkedBits || n > maxChunkedBits {
		return Chunks{}, false
	}
	offset := n - minChunkedBits
	h := f.Holders

	var c Chunks
	if marker := 2 + offset; marker < preambleMarker {
		c.High |= 1<<preambleMarker | 1<<marker
	}

	// Low 2+offset bits of chunk1 come from high-holder bits [20-offset, 22).
	split := chunk1Bits - offset
	for i := 0; i < 2+offset; i++ {
		c.High |= uint32(bitAt(h.High, i+split)) << i
	}
	for i := 0; i < split; i++ {
		c.Low |= uint32(bitAt(h.High, i)) << (i + 4 + offset)
	}
	for i := 0; i < 4+offset; i++ {
		c.Low |= uint32(bitAt(h.Low, i)) << i
	}
	return c, true
}

func bitAt(v uint64, i int) uint64 {
	return v >> uint(i) & 1
}
