package decoder

import (
	"github.com/mewkiz/pkg/dbg"
	"github.com/mewkiz/pkg/errutil"
	"github.com/sparsenc/sparsenc-go/gf"
	"github.com/sparsenc/sparsenc-go/packet"
	"github.com/sparsenc/sparsenc-go/params"
	"github.com/sparsenc/sparsenc-go/plan"
	"github.com/sparsenc/sparsenc-go/precode"
)

// ggSubgen is one subgeneration's upper-triangular elimination state
// (spec.md §4.7.1): rows[j] is the pivot row installed at column j (nil
// until a packet pivots there), stored dense with its leading j entries
// always zero — keeping the "coefficients from the pivot column
// rightward" shape spec.md §9 calls for without a second indexing scheme.
type ggSubgen struct {
	ids       []int
	rows      [][]byte
	msgs      [][]byte
	recovered []bool // column already known, from this subgen or elsewhere
	dofMiss   int
}

func newGGSubgen(ids []int) *ggSubgen {
	n := len(ids)
	return &ggSubgen{
		ids:       ids,
		rows:      make([][]byte, n),
		msgs:      make([][]byte, n),
		recovered: make([]bool, n),
		dofMiss:   n,
	}
}

// GGDecoder implements the generation-by-generation decoder with iterative
// precode recovery (spec.md §4.7.1).
type GGDecoder struct {
	base
	plan  *plan.Plan
	graph *precode.Graph
	pp    [][]byte
	sg    []*ggSubgen

	// Iterative precode state, used only when p.Cnum > 0.
	evolvingChecks [][]byte
	checkDegrees   []int
	checkKnown     []bool
	recent         []int
}

// NewGG builds a GG decoder.
func NewGG(p *params.Params, pl *plan.Plan, g *precode.Graph) (*GGDecoder, error) {
	d := &GGDecoder{
		base:  newBase(p, GG),
		plan:  pl,
		graph: g,
		pp:    make([][]byte, p.Numpp),
		sg:    make([]*ggSubgen, p.Gnum),
	}
	for i, ids := range pl.Gene {
		d.sg[i] = newGGSubgen(ids)
	}
	if p.Cnum > 0 {
		d.evolvingChecks = make([][]byte, p.Cnum)
		d.checkDegrees = make([]int, p.Cnum)
		d.checkKnown = make([]bool, p.Cnum)
		for c, edges := range g.Checks {
			d.evolvingChecks[c] = make([]byte, p.SizeP)
			d.checkDegrees[c] = len(edges)
		}
	}
	return d, nil
}

// Process absorbs pkt into its subgeneration (spec.md §4.7.1).
func (d *GGDecoder) Process(pkt *packet.Packet) {
	if d.state == StateDone {
		d.markOverhead()
		return
	}
	if pkt.IsSystematic() {
		d.markReceived(-1)
		if d.pp[pkt.Ucid] == nil {
			d.setKnown(int(pkt.Ucid), pkt.Syms)
		} else {
			d.markOverhead()
		}
		d.drainRecent()
		d.checkAllDone()
		return
	}

	g := int(pkt.Gid)
	d.markReceived(pkt.Gid)
	sub := d.sg[g]

	coes := append([]byte(nil), pkt.Coes...)
	msg := append([]byte(nil), pkt.Syms...)

	// Cancel against columns already known globally.
	for j, id := range sub.ids {
		if coes[j] == 0 {
			continue
		}
		if pp := d.pp[id]; pp != nil {
			gf.MulAddRegion(msg, pp, coes[j])
			d.operations += int64(d.p.SizeP)
			coes[j] = 0
		}
	}

	if !d.reduceAndInstall(sub, coes, msg) {
		d.markOverhead()
		return
	}

	if sub.dofMiss == 0 {
		d.finishSubgen(g, sub)
	}
	d.drainRecent()
	d.checkAllDone()
}

// reduceAndInstall Gaussian-reduces (coes, msg) against sub's existing
// pivot rows, installing it as a new pivot if it reaches an empty column,
// and returns whether it contributed a new DoF.
func (d *GGDecoder) reduceAndInstall(sub *ggSubgen, coes, msg []byte) bool {
	n := len(sub.ids)
	for j := 0; j < n; j++ {
		if coes[j] == 0 {
			continue
		}
		if sub.rows[j] == nil {
			// New pivot: normalize to monic before installing, so later
			// eliminations against it can assume rows[j][j] == 1.
			if coes[j] != 1 {
				inv := gf.Div(1, coes[j])
				gf.MulRegion(coes, inv)
				gf.MulRegion(msg, inv)
			}
			sub.rows[j] = coes
			sub.msgs[j] = msg
			sub.dofMiss--
			dbg.Println("gg: new pivot at column", j)
			return true
		}
		// Eliminate column j using the existing monic pivot row.
		factor := coes[j]
		gf.MulAddRegion(coes, sub.rows[j], factor)
		gf.MulAddRegion(msg, sub.msgs[j], factor)
		d.operations += int64(n + d.p.SizeP)
	}
	return false
}

// finishSubgen back-substitutes sub (right-to-left) once its dofMiss
// reaches zero, copying out the recovered source packets.
func (d *GGDecoder) finishSubgen(g int, sub *ggSubgen) {
	n := len(sub.ids)
	for j := n - 1; j >= 0; j-- {
		row := sub.rows[j]
		msg := sub.msgs[j]
		lead := row[j]
		if lead != 1 {
			inv := gf.Div(1, lead)
			gf.MulRegion(row, inv)
			gf.MulRegion(msg, inv)
		}
		for k := j + 1; k < n; k++ {
			if row[k] == 0 {
				continue
			}
			gf.MulAddRegion(msg, sub.msgs[k], row[k])
			row[k] = 0
		}
		sub.msgs[j] = msg
		if !sub.recovered[j] {
			sub.recovered[j] = true
			d.setKnown(sub.ids[j], msg)
		}
	}
	dbg.Println("gg: subgen", g, "fully recovered")
}

// setKnown records pp[id]=val (deep-copied) and, if this is a new
// recovery, triggers the iterative precode update.
func (d *GGDecoder) setKnown(id int, val []byte) {
	if d.pp[id] != nil {
		return
	}
	cp := append([]byte(nil), val...)
	d.pp[id] = cp
	if id < d.p.Snum {
		d.dof++
	}
	// Propagate into every other subgen containing id, so its column
	// becomes erased there too (spec.md §4.7.1 "erased" bitmap).
	for _, g := range d.plan.SubgensWith(id) {
		d.eraseColumn(g, id, cp)
	}
	if d.p.Cnum > 0 {
		d.updatePrecode(id, cp)
	}
}

// eraseColumn installs a singleton pivot row at id's column in subgen g,
// displacing any previous row there (which is re-reduced against it).
func (d *GGDecoder) eraseColumn(g, id int, val []byte) {
	sub := d.sg[g]
	pos, ok := d.plan.Contains(g, id)
	if !ok || sub.recovered[pos] {
		return
	}
	sub.recovered[pos] = true
	prevRow, prevMsg := sub.rows[pos], sub.msgs[pos]
	n := len(sub.ids)
	unit := make([]byte, n)
	unit[pos] = 1
	sub.rows[pos] = unit
	sub.msgs[pos] = append([]byte(nil), val...)
	if prevRow == nil {
		sub.dofMiss--
	} else {
		// Re-reduce the displaced row against the new singleton: it still
		// has a nonzero entry at pos, so one elimination step suffices
		// before it can look for a new pivot column.
		factor := prevRow[pos]
		prevRow[pos] = 0
		if factor != 0 {
			gf.MulAddRegion(prevMsg, sub.msgs[pos], factor)
		}
		d.reduceAndInstall(sub, prevRow, prevMsg)
	}
	if sub.dofMiss == 0 {
		d.finishSubgen(g, sub)
	}
}

// updatePrecode implements the evolving-checks bookkeeping of spec.md
// §4.7.1: when source s is decoded, XOR its contribution into every check
// that names it as a neighbour and decrement that check's degree; a check
// left with exactly one unknown neighbour exposes it by division.
func (d *GGDecoder) updatePrecode(s int, val []byte) {
	if s < d.p.Snum {
		for c, edges := range d.graph.Checks {
			for _, e := range edges {
				if e.Src == s {
					gf.MulAddRegion(d.evolvingChecks[c], val, e.Coef)
					d.checkDegrees[c]--
					d.tryResolveCheck(c)
					break
				}
			}
		}
	} else {
		c := s - d.p.Snum
		d.checkKnown[c] = true
		gf.AddRegion(d.evolvingChecks[c], val)
		d.tryResolveCheck(c)
	}
}

// tryResolveCheck recovers the single unknown neighbour of check c, if
// check c's own value is known and exactly one neighbour remains unknown.
func (d *GGDecoder) tryResolveCheck(c int) {
	if !d.checkKnown[c] || d.checkDegrees[c] != 1 {
		return
	}
	edges := d.graph.Checks[c]
	for _, e := range edges {
		if d.pp[e.Src] == nil {
			val := append([]byte(nil), d.evolvingChecks[c]...)
			if e.Coef != 1 {
				gf.MulRegion(val, gf.Div(1, e.Coef))
			}
			d.recent = append(d.recent, e.Src)
			d.pp[e.Src] = val
			if e.Src < d.p.Snum {
				d.dof++
			}
			for _, g := range d.plan.SubgensWith(e.Src) {
				d.eraseColumn(g, e.Src, val)
			}
			// e.Src may be a neighbour of other checks too; chase the
			// chain exactly as setKnown would for a subgen-recovered id.
			d.updatePrecode(e.Src, val)
			return
		}
	}
}

// drainRecent clears the queue of ids the precode resolved during the last
// Process call. tryResolveCheck/eraseColumn already chase each resolution
// through every dependent subgen and check recursively as it happens, so
// by the time Process calls this the queue only needs resetting for the
// next packet (spec.md §4.7.1 termination condition: no more progress
// possible once nothing new is recent).
func (d *GGDecoder) drainRecent() {
	d.recent = d.recent[:0]
}

func (d *GGDecoder) checkAllDone() {
	if d.dof >= d.p.Snum {
		d.state = StateDone
	}
}

// RecoverData concatenates pp[0:snum], valid only once Finished() (spec.md
// §6.1).
func (d *GGDecoder) RecoverData() ([]byte, error) {
	if !d.Finished() {
		return nil, errutil.Newf("decoder: RecoverData called before Finished()")
	}
	out := make([]byte, 0, d.p.Snum*d.p.SizeP)
	for i := 0; i < d.p.Snum; i++ {
		out = append(out, d.pp[i]...)
	}
	if len(out) > d.p.Datasize {
		out = out[:d.p.Datasize]
	}
	return out, nil
}
