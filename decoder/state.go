// Package decoder implements the GG, BD, CBD, OA and PP decoder family
// (spec.md §4.7) behind a common Decoder interface, plus checkpoint
// save/restore (spec.md §6.3).
package decoder

import (
	"github.com/mewkiz/pkg/dbg"
	"github.com/sparsenc/sparsenc-go/packet"
	"github.com/sparsenc/sparsenc-go/params"
)

func init() {
	dbg.Debug = false
}

// Kind selects which decoder variant New builds.
type Kind int

// Recognised decoder kinds (spec.md §4.7).
const (
	GG Kind = iota
	BD
	CBD
	OA
	PP
)

func (k Kind) String() string {
	switch k {
	case GG:
		return "GG"
	case BD:
		return "BD"
	case CBD:
		return "CBD"
	case OA:
		return "OA"
	case PP:
		return "PP"
	default:
		return "unknown"
	}
}

// State is the decoder state. Every decoder in this package starts in
// StateOpen and moves directly to StateDone once all source packets are
// known; none of them ever enters StatePrecodeApplied.
type State int

// Recognised states.
const (
	StateOpen State = iota
	StatePrecodeApplied
	StateDone
)

// Decoder is the common interface implemented by GG, BD, CBD, OA and PP
// (spec.md §6.1, §9 "tagged variant").
type Decoder interface {
	// Process absorbs pkt, taking ownership of it on a successful absorb
	// and discarding it otherwise (spec.md §5 ownership contract).
	Process(pkt *packet.Packet)
	Finished() bool
	DoF() int
	Overhead() float64
	Cost() float64
	RecoverData() ([]byte, error)
	Kind() Kind
	Params() *params.Params
}

// base holds the bookkeeping every decoder variant shares: DoF/overhead/cost
// counters and the StateOpen/StateDone state.
type base struct {
	p     *params.Params
	kind  Kind
	state State

	dof        int
	received   int
	overheadN  int // packets that contributed no new DoF
	operations int64

	// subgenRecv[g] counts packets received for subgen g, a supplemented
	// per-subgen overhead metric (SPEC_FULL.md).
	subgenRecv []int
}

func newBase(p *params.Params, kind Kind) base {
	return base{p: p, kind: kind, subgenRecv: make([]int, p.Gnum)}
}

func (b *base) Kind() Kind           { return b.kind }
func (b *base) Params() *params.Params { return b.p }
func (b *base) DoF() int             { return b.dof }

func (b *base) Finished() bool {
	return b.state == StateDone
}

// Overhead is received/snum (spec.md §6.1).
func (b *base) Overhead() float64 {
	if b.p.Snum == 0 {
		return 0
	}
	return float64(b.received) / float64(b.p.Snum)
}

// Cost is field_ops/(snum*size_p) (spec.md §6.1).
func (b *base) Cost() float64 {
	denom := float64(b.p.Snum) * float64(b.p.SizeP)
	if denom == 0 {
		return 0
	}
	return float64(b.operations) / denom
}

// SubgenStats exposes the supplemented per-subgeneration received count
// (SPEC_FULL.md).
func (b *base) SubgenStats() []int {
	return append([]int(nil), b.subgenRecv...)
}

// markReceived bumps the received/subgen counters; every Process
// implementation calls this exactly once per packet that arrives before the
// decoder is done, before deciding whether it contributed new DoF. Packets
// arriving after that are only counted by markOverhead.
func (b *base) markReceived(gid int32) {
	b.received++
	if gid >= 0 && int(gid) < len(b.subgenRecv) {
		b.subgenRecv[gid]++
	}
}

// markOverhead records that a received packet contributed no new DoF
// (spec.md §7 item 6: not an error, just a counter).
func (b *base) markOverhead() {
	b.overheadN++
}
