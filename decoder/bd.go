package decoder

import (
	"github.com/mewkiz/pkg/errutil"
	"github.com/sparsenc/sparsenc-go/packet"
	"github.com/sparsenc/sparsenc-go/params"
	"github.com/sparsenc/sparsenc-go/plan"
	"github.com/sparsenc/sparsenc-go/precode"
)

// BDDecoder is the banded decoder (spec.md §4.7.2): a single global
// numpp x numpp triangular system, built as packets arrive and
// back-substituted once its rank covers every source packet.
type BDDecoder struct {
	base
	plan *plan.Plan
	m    *bandMatrix
}

// NewBD builds a BD decoder.
func NewBD(p *params.Params, pl *plan.Plan, g *precode.Graph) (*BDDecoder, error) {
	return &BDDecoder{
		base: newBase(p, BD),
		plan: pl,
		m:    newBandMatrix(p, g, nil),
	}, nil
}

// Process absorbs pkt into the shared band matrix.
func (d *BDDecoder) Process(pkt *packet.Packet) {
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
	} else {
		d.markReceived(pkt.Gid)
		coefs, msg := packetColumns(pkt, d.plan)
		if !d.m.absorb(coefs, msg) {
			d.markOverhead()
		}
	}
	d.operations += int64(d.p.SizeG + d.p.SizeP)
	d.dof = d.m.dofKnown()
	if d.m.done() {
		d.dof = d.p.Snum
		d.state = StateDone
	}
}

// RecoverData concatenates the recovered source packets, valid only once
// Finished().
func (d *BDDecoder) RecoverData() ([]byte, error) {
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
