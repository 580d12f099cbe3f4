package decoder

import (
	"sort"

	"github.com/mewkiz/pkg/errutil"
	"github.com/sparsenc/sparsenc-go/packet"
	"github.com/sparsenc/sparsenc-go/params"
	"github.com/sparsenc/sparsenc-go/plan"
	"github.com/sparsenc/sparsenc-go/precode"
)

// PPDecoder is the perpetual decoder (spec.md §4.7.5), tuned for WINDWRAP's
// circular subgeneration band: the pivot search order rotates with the
// oldest still-open column instead of always starting at column 0, so
// elimination work stays local to the live window instead of repeatedly
// re-scanning columns that wrapped around past numpp.
type PPDecoder struct {
	base
	plan *plan.Plan
	m    *bandMatrix

	rotate int
}

// NewPP builds a PP decoder.
func NewPP(p *params.Params, pl *plan.Plan, g *precode.Graph) (*PPDecoder, error) {
	d := &PPDecoder{base: newBase(p, PP), plan: pl}
	d.m = newBandMatrix(p, g, d.order)
	return d, nil
}

// order sorts candidate pivot columns so that columns at or after the
// current rotation point sort first, ascending, followed by the wrapped
// remainder — a circular comparator over [0, numpp).
func (d *PPDecoder) order(cols []int) {
	r := d.rotate
	n := d.p.Numpp
	key := func(c int) int {
		if c >= r {
			return c - r
		}
		return c + n - r
	}
	sort.Slice(cols, func(i, j int) bool { return key(cols[i]) < key(cols[j]) })
}

// Process absorbs pkt, then advances the rotation point to the lowest
// column with no installed pivot row yet, tracking the live window's head.
func (d *PPDecoder) Process(pkt *packet.Packet) {
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
	d.advanceRotation()
	d.dof = d.m.dofKnown()
	if d.m.done() {
		d.dof = d.p.Snum
		d.state = StateDone
	}
}

func (d *PPDecoder) advanceRotation() {
	for d.rotate < d.p.Numpp {
		if _, ok := d.m.pivot[d.rotate]; !ok {
			return
		}
		d.rotate++
	}
}

// RecoverData concatenates the recovered source packets, valid only once
// Finished().
func (d *PPDecoder) RecoverData() ([]byte, error) {
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
