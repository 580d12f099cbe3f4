// Package params defines the immutable session configuration shared by the
// encoder, recoder buffers and decoder family.
package params

import (
	"github.com/mewkiz/pkg/errutil"
)

// CodeType selects how packet ids are assigned to subgenerations.
type CodeType uint8

// Recognised code types.
const (
	RAND CodeType = iota
	BAND
	WINDWRAP
	BATS
)

// String implements fmt.Stringer.
func (t CodeType) String() string {
	switch t {
	case RAND:
		return "RAND"
	case BAND:
		return "BAND"
	case WINDWRAP:
		return "WINDWRAP"
	case BATS:
		return "BATS"
	default:
		return "unknown"
	}
}

// Params holds the parameters of a coding session. A Params value is built
// once by New and never mutated afterwards; every component in this module
// takes a *Params by value-semantics (read-only) reference.
type Params struct {
	// Datasize is the length in bytes of the source payload.
	Datasize int
	// SizeP is the uniform packet size in bytes.
	SizeP int
	// SizeB is the base subgeneration step.
	SizeB int
	// SizeG is the subgeneration size (SizeG >= SizeB, except for BATS,
	// where SizeB is the per-batch transmission limit and may exceed SizeG).
	SizeG int
	// SizeC is the number of precode parity packets. Zero disables precode.
	SizeC int
	// BPC selects binary (coefficient 1) precode edges when true.
	BPC bool
	// GFPower selects the field GF(2^GFPower), 1 <= GFPower <= 8.
	GFPower uint8
	// Sys enables the systematic packet prefix.
	Sys bool
	// Type selects the subgeneration planner.
	Type CodeType
	// Seed seeds every deterministic generator derived from these Params
	// (precode graph, subgeneration plan, encoder/recoder/decoder RNGs).
	Seed int64

	// Derived fields, computed by New.

	// Snum is the number of source packets, ceil(Datasize/SizeP).
	Snum int
	// Cnum is SizeC.
	Cnum int
	// Numpp is Snum+Cnum, the total number of intermediate packets.
	Numpp int
	// Gnum is the number of subgenerations, defined by Type (see plan).
	Gnum int
}

// New validates raw and fills in the derived fields.
func New(raw Params) (*Params, error) {
	p := raw
	if p.Datasize <= 0 {
		return nil, errutil.Newf("params: datasize must be > 0, got %d", p.Datasize)
	}
	if p.SizeP <= 0 {
		return nil, errutil.Newf("params: size_p must be > 0, got %d", p.SizeP)
	}
	if p.SizeB <= 0 {
		return nil, errutil.Newf("params: size_b must be > 0, got %d", p.SizeB)
	}
	if p.Type != BATS && p.SizeG < p.SizeB {
		return nil, errutil.Newf("params: size_g (%d) must be >= size_b (%d)", p.SizeG, p.SizeB)
	}
	if p.SizeC < 0 {
		return nil, errutil.Newf("params: size_c must be >= 0, got %d", p.SizeC)
	}
	if p.GFPower < 1 || p.GFPower > 8 {
		return nil, errutil.Newf("params: gfpower must be in [1,8], got %d", p.GFPower)
	}
	switch p.Type {
	case RAND, BAND, WINDWRAP, BATS:
	default:
		return nil, errutil.Newf("params: unrecognised code type %d", p.Type)
	}

	p.Snum = (p.Datasize + p.SizeP - 1) / p.SizeP
	p.Cnum = p.SizeC
	p.Numpp = p.Snum + p.Cnum
	if p.SizeG > p.Numpp {
		return nil, errutil.Newf("params: size_g (%d) must be <= numpp (%d)", p.SizeG, p.Numpp)
	}

	switch p.Type {
	case RAND, BATS:
		p.Gnum = (p.Numpp + p.SizeB - 1) / p.SizeB
	case BAND, WINDWRAP:
		// Matches the source's snc_create_buffer +1, kept deliberately
		// (spec.md §9).
		p.Gnum = (p.Numpp-p.SizeG+p.SizeB-1)/p.SizeB + 1
	}
	if p.Gnum <= 0 {
		return nil, errutil.Newf("params: derived gnum must be > 0, got %d", p.Gnum)
	}

	return &p, nil
}

// CoeffBytes returns the number of bytes needed to store SizeG
// GFPower-bit-packed coefficients.
func (p *Params) CoeffBytes() int {
	return (p.SizeG*int(p.GFPower) + 7) / 8
}
