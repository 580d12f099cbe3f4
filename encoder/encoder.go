// Package encoder implements the RLNC encoder (spec.md §4.4): it owns the
// source buffer, the precode parity, and produces coded packets on demand.
package encoder

import (
	"math/rand"

	"github.com/mewkiz/pkg/dbg"
	"github.com/mewkiz/pkg/errutil"
	"github.com/sparsenc/sparsenc-go/gf"
	"github.com/sparsenc/sparsenc-go/packet"
	"github.com/sparsenc/sparsenc-go/params"
	"github.com/sparsenc/sparsenc-go/plan"
	"github.com/sparsenc/sparsenc-go/precode"
)

func init() {
	dbg.Debug = false
}

// Encoder produces coded packets from a source buffer and a subgeneration
// plan (spec.md §4.4).
type Encoder struct {
	p     *params.Params
	plan  *plan.Plan
	graph *precode.Graph
	pp    [][]byte
	rng   *rand.Rand

	// count is the total number of packets generated so far.
	count int
	// nccount[g] is the number of coded (non-systematic) packets generated
	// from subgeneration g; rrNext is the next subgeneration in the
	// round-robin selection rule.
	nccount []int
	rrNext  int
}

// Create builds an Encoder. If buf is nil, pp is allocated but left zeroed
// (used to mirror a decoder's own pp, e.g. in tests); otherwise buf is
// split into p.Snum zero-padded source packets and, if p.Cnum > 0, precode
// parity packets are computed immediately.
func Create(buf []byte, p *params.Params) (*Encoder, error) {
	pl, err := plan.Build(p)
	if err != nil {
		return nil, errutil.Err(err)
	}
	g, err := precode.Build(p)
	if err != nil {
		return nil, errutil.Err(err)
	}

	pp := make([][]byte, p.Numpp)
	for i := range pp {
		pp[i] = make([]byte, p.SizeP)
	}
	if buf != nil {
		if len(buf) != p.Datasize {
			return nil, errutil.Newf("encoder: Create: buf length %d != datasize %d", len(buf), p.Datasize)
		}
		for i := 0; i < p.Snum; i++ {
			start := i * p.SizeP
			end := start + p.SizeP
			if end > len(buf) {
				end = len(buf)
			}
			copy(pp[i], buf[start:end])
		}
		if p.Cnum > 0 {
			g.ComputeParity(pp, p.SizeP)
		}
	}

	return &Encoder{
		p:       p,
		plan:    pl,
		graph:   g,
		pp:      pp,
		rng:     rand.New(rand.NewSource(p.Seed)),
		nccount: make([]int, p.Gnum),
	}, nil
}

// Parameters returns the encoder's resolved parameters (spec.md §6.1).
func (e *Encoder) Parameters() *params.Params {
	return e.p
}

// GeneratePacket produces the next coded packet (spec.md §4.4 selection
// rule): a systematic prefix of Snum packets when Sys is enabled, followed
// by round-robin coded packets over the subgeneration plan.
func (e *Encoder) GeneratePacket() *packet.Packet {
	if e.p.Sys && e.count < e.p.Snum {
		ucid := e.count
		e.count++
		pkt := &packet.Packet{
			Gid:  packet.Systematic,
			Ucid: int32(ucid),
			Syms: append([]byte(nil), e.pp[ucid]...),
		}
		dbg.Println("encoder: systematic packet ucid =", ucid)
		return pkt
	}

	g := e.rrNext
	e.rrNext = (e.rrNext + 1) % e.p.Gnum
	e.nccount[g]++
	e.count++

	ids := e.plan.Gene[g]
	coes := make([]byte, len(ids))
	syms := make([]byte, e.p.SizeP)
	for i, id := range ids {
		c := gf.RandCoeff(e.rng, e.p.GFPower)
		coes[i] = c
		gf.MulAddRegion(syms, e.pp[id], c)
	}
	dbg.Println("encoder: coded packet gid =", g, "coes =", coes)

	return &packet.Packet{
		Gid:  int32(g),
		Ucid: -1,
		Coes: coes,
		Syms: syms,
	}
}

// Count returns the total number of packets generated so far.
func (e *Encoder) Count() int {
	return e.count
}

// Plan exposes the subgeneration plan, shared read-only with a matching
// decoder so tests can construct decoders and encoders against the same
// deterministic plan without re-deriving it.
func (e *Encoder) Plan() *plan.Plan {
	return e.plan
}

// Graph exposes the precode graph (see Plan's rationale).
func (e *Encoder) Graph() *precode.Graph {
	return e.graph
}

// SourcePacket returns a copy of intermediate packet i (0 <= i < Numpp),
// used by tests to verify packet linearity (spec P3).
func (e *Encoder) SourcePacket(i int) []byte {
	return append([]byte(nil), e.pp[i]...)
}
