package decoder

import (
	"github.com/mewkiz/pkg/errutil"
	"github.com/sparsenc/sparsenc-go/packet"
	"github.com/sparsenc/sparsenc-go/params"
	"github.com/sparsenc/sparsenc-go/plan"
	"github.com/sparsenc/sparsenc-go/precode"
)

// CBDDecoder is the compact-band decoder (spec.md §4.7.2): the same global
// triangular system as BD, but tracking the live footprint of its pivot
// rows so a caller can verify the band stayed compact instead of degrading
// into a dense matrix (the property the original array-based "compact
// band" storage guaranteed structurally; here it is verified rather than
// assumed, see DESIGN.md).
type CBDDecoder struct {
	base
	plan *plan.Plan
	m    *bandMatrix

	peakRowSpan int
}

// NewCBD builds a CBD decoder.
func NewCBD(p *params.Params, pl *plan.Plan, g *precode.Graph) (*CBDDecoder, error) {
	return &CBDDecoder{
		base: newBase(p, CBD),
		plan: pl,
		m:    newBandMatrix(p, g, nil),
	}, nil
}

// Process absorbs pkt, then records the widest pivot row span seen so far.
func (d *CBDDecoder) Process(pkt *packet.Packet) {
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
	d.updatePeakSpan()
	d.dof = d.m.dofKnown()
	if d.m.done() {
		d.dof = d.p.Snum
		d.state = StateDone
	}
}

func (d *CBDDecoder) updatePeakSpan() {
	for col, row := range d.m.pivot {
		lo, hi := col, col
		for k := range row.coefs {
			if k < lo {
				lo = k
			}
			if k > hi {
				hi = k
			}
		}
		if span := hi - lo + 1; span > d.peakRowSpan {
			d.peakRowSpan = span
		}
	}
}

// PeakRowSpan reports the widest column span any installed pivot row has
// reached, the compactness metric this variant adds over BD.
func (d *CBDDecoder) PeakRowSpan() int {
	return d.peakRowSpan
}

// RecoverData concatenates the recovered source packets, valid only once
// Finished().
func (d *CBDDecoder) RecoverData() ([]byte, error) {
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
