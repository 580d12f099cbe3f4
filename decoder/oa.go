package decoder

import (
	"github.com/mewkiz/pkg/errutil"
	"github.com/sparsenc/sparsenc-go/packet"
	"github.com/sparsenc/sparsenc-go/params"
	"github.com/sparsenc/sparsenc-go/plan"
	"github.com/sparsenc/sparsenc-go/precode"
)

type oaCandidate struct {
	coefs map[int]byte
	msg   []byte
}

// OADecoder is the overlap-aware decoder (spec.md §4.7.4). Each coded
// packet is appended to a backlog, and the backlog is drained by always
// reducing the entry whose column support overlaps most with the columns
// already pivoted. Process drains the backlog completely on every call, so
// it never holds more than one packet and packets are absorbed in arrival
// order.
type OADecoder struct {
	base
	plan    *plan.Plan
	m       *bandMatrix
	backlog []oaCandidate
}

// NewOA builds an OA decoder.
func NewOA(p *params.Params, pl *plan.Plan, g *precode.Graph) (*OADecoder, error) {
	return &OADecoder{
		base: newBase(p, OA),
		plan: pl,
		m:    newBandMatrix(p, g, nil),
	}, nil
}

// Process absorbs pkt, then drains the backlog in overlap-priority order.
func (d *OADecoder) Process(pkt *packet.Packet) {
	if d.state == StateDone {
		d.markOverhead()
		return
	}
	if pkt.IsSystematic() {
		d.markReceived(-1)
		if d.m.pp[pkt.Ucid] == nil {
			d.m.setKnown(int(pkt.Ucid), pkt.Syms)
		} else {
			d.markOverhead()
		}
		d.drainBacklog()
		d.finishIfDone()
		return
	}

	d.markReceived(pkt.Gid)
	coefs, msg := packetColumns(pkt, d.plan)
	d.backlog = append(d.backlog, oaCandidate{coefs: coefs, msg: msg})
	d.drainBacklog()
	d.finishIfDone()
}

// overlap counts how many of coefs' columns already have an installed
// pivot row, the scoring heuristic OA uses to pick its next absorption.
func (d *OADecoder) overlap(coefs map[int]byte) int {
	n := 0
	for col := range coefs {
		if _, ok := d.m.pivot[col]; ok {
			n++
		}
	}
	return n
}

func (d *OADecoder) drainBacklog() {
	for len(d.backlog) > 0 {
		best, bestScore := 0, -1
		for i, c := range d.backlog {
			if s := d.overlap(c.coefs); s > bestScore {
				best, bestScore = i, s
			}
		}
		c := d.backlog[best]
		d.backlog = append(d.backlog[:best], d.backlog[best+1:]...)
		if !d.m.absorb(c.coefs, c.msg) {
			d.markOverhead()
		}
		d.operations += int64(d.p.SizeG + d.p.SizeP)
	}
}

func (d *OADecoder) finishIfDone() {
	d.dof = d.m.dofKnown()
	if d.m.done() {
		d.dof = d.p.Snum
		d.state = StateDone
	}
}

// RecoverData concatenates the recovered source packets, valid only once
// Finished().
func (d *OADecoder) RecoverData() ([]byte, error) {
	if !d.Finished() {
		return nil, errutil.Newf("decoder: RecoverData called before Finished()")
	}
	out := make([]byte, 0, d.p.Snum*d.p.SizeP)
	for i := 0; i < d.p.Snum; i++ {
		out = append(out, d.m.pp[i]...)
	}
	if len(out) > d.p.Datasize {
		out = out[:d.p.Datasize]
	}
	return out, nil
}
