package wiegand

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

var ErrUnsupportedLength = errors.New("wiegand: unsupported frame length")

// Range is a half-open span [Start, End) of frame bit positions.
type Range struct {
	Start int
	End   int
}

// value accumulates bits MSB first: each bit shifts the running value left
// and ORs itself in.
func (r Range) value(bits []byte) uint64 {
	var v uint64
	for i := r.Start; i < r.End; i++ {
		v = v<<1 | uint64(bits[i])
	}
	return v
}

// Format is the field layout of one frame length.  Leading and trailing
// parity bits fall outside both ranges and are not checked.
type Format struct {
	BitLength int
	Facility  Range
	Card      Range
}

// Credential is the identity decoded from one card presentation.
type Credential struct {
	FacilityCode uint64
	CardCode     uint64
	BitLength    int
}

// Key is the allow-list lookup key: decimal facility code immediately
// followed by decimal card code.
func (c Credential) Key() string {
	return strconv.FormatUint(c.FacilityCode, 10) + strconv.FormatUint(c.CardCode, 10)
}

// KnownFormats are the layouts the decoder understands.  The 34-bit card
// range deliberately overlaps the facility range; readers in the field
// report it that way.
var KnownFormats = []Format{
	{BitLength: 26, Facility: Range{1, 9}, Card: Range{9, 25}},
	{BitLength: 33, Facility: Range{1, 8}, Card: Range{8, 32}},
	{BitLength: 34, Facility: Range{1, 17}, Card: Range{1, 33}},
	{BitLength: 35, Facility: Range{2, 14}, Card: Range{14, 34}},
}

// Formats is a set of enabled layouts keyed by frame length.
type Formats map[int]Format

// NewFormats enables the known layouts for the given lengths.  Every length
// must appear in KnownFormats.
func NewFormats(lengths ...int) (Formats, error) {
	known := make(map[int]Format, len(KnownFormats))
	for _, f := range KnownFormats {
		known[f.BitLength] = f
	}

	out := make(Formats, len(lengths))
	for _, n := range lengths {
		f, ok := known[n]
		if !ok {
			return nil, fmt.Errorf("%d bits: %w", n, ErrUnsupportedLength)
		}
		out[n] = f
	}
	return out, nil
}

// AllFormats enables every known layout.
func AllFormats() Formats {
	out := make(Formats, len(KnownFormats))
	for _, f := range KnownFormats {
		out[f.BitLength] = f
	}
	return out
}

// Lengths returns the enabled frame lengths in ascending order.
func (fs Formats) Lengths() []int {
	out := make([]int, 0, len(fs))
	for n := range fs {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Extract decodes f with the layout matching its length.  Frames of any
// other length yield ErrUnsupportedLength and no credential.
func (fs Formats) Extract(f Frame) (Credential, error) {
	format, ok := fs[f.Len()]
	if !ok {
		return Credential{}, fmt.Errorf("%d bits: %w", f.Len(), ErrUnsupportedLength)
	}
	return Credential{
		FacilityCode: format.Facility.value(f.Bits),
		CardCode:     format.Card.value(f.Bits),
		BitLength:    format.BitLength,
	}, nil
}
