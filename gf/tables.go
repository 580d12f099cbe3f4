// Package gf implements GF(256) arithmetic (log/ilog tables, scalar
// multiply/divide, vectorised multiply-add over byte regions) together with
// the sub-byte bit-packing contract used to store GF(2^q) coefficient
// vectors, 1 <= q <= 8, on the wire.
//
// The data path (packet payload bytes) is always multiplied in GF(256): the
// gfpower parameter constrains which coefficient values are sampled
// (uniform over [0, 2^gfpower)) and how densely they are packed on the
// wire, not which table the payload bytes are looked up in. For q in
// {1,2,4,8} GF(2^q) is a genuine subfield of GF(256) and this coincides
// with "real" GF(2^q) arithmetic; for q in {3,5,6,7} it is a documented
// engineering simplification (see DESIGN.md) that keeps one canonical
// table, one SIMD dispatch path, and one set of round-trip/linearity
// invariants (spec P1, P3) regardless of gfpower.
package gf

import (
	"sync"

	"github.com/klauspost/cpuid/v2"
)

// primPoly is the primitive polynomial x^8+x^4+x^3+x^2+1 (0x11D) used by
// most software Reed-Solomon / network coding implementations over GF(256).
const primPoly = 0x11D

// tables holds the precomputed log/exp tables. Built once, read-only
// afterwards, safe to share across sessions (spec.md §5).
type tables struct {
	log [256]uint8
	exp [512]uint8 // doubled so Mul/Div never need a modulo
}

var (
	tblOnce sync.Once
	tbl     tables

	// simdWide reports whether this CPU's vector width makes the 4-bit
	// split-table multiply path worthwhile (spec.md §4.1: "SHOULD use
	// SIMD split-table ... on platforms that support 128-bit vector
	// shuffles"). Probed once, alongside the table build, via cpuid.
	simdWide bool
)

func buildTables() {
	var x uint16 = 1
	for i := 0; i < 255; i++ {
		tbl.exp[i] = uint8(x)
		tbl.exp[i+255] = uint8(x)
		tbl.log[uint8(x)] = uint8(i)
		x <<= 1
		if x&0x100 != 0 {
			x ^= primPoly
		}
	}
	tbl.log[0] = 0 // never read for 0, kept defined for safety

	simdWide = cpuid.CPU.Supports(cpuid.SSSE3) || cpuid.CPU.Supports(cpuid.AVX2)
}

// ensureInit idempotently builds the package-level tables. Safe to invoke
// concurrently from many sessions (spec P5).
func ensureInit() {
	tblOnce.Do(buildTables)
}

// SIMDWide reports whether the process selected the wide split-table
// multiply path at init time.
func SIMDWide() bool {
	ensureInit()
	return simdWide
}

// Add returns a XOR b, the GF(256) (and every GF(2^q) subfield) addition.
func Add(a, b byte) byte {
	return a ^ b
}

// Mul returns a*b in GF(256).
func Mul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	ensureInit()
	return tbl.exp[int(tbl.log[a])+int(tbl.log[b])]
}

// Div returns a/b in GF(256). Dividing by zero is a programmer error and
// panics rather than returning a zero value (spec.md §4.1, §7 item 4).
func Div(a, b byte) byte {
	if b == 0 {
		panic("gf: division by zero")
	}
	if a == 0 {
		return 0
	}
	ensureInit()
	diff := int(tbl.log[a]) - int(tbl.log[b])
	if diff < 0 {
		diff += 255
	}
	return tbl.exp[diff]
}
