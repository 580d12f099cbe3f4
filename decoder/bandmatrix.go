package decoder

import (
	"sort"

	"github.com/mewkiz/pkg/dbg"
	"github.com/sparsenc/sparsenc-go/gf"
	"github.com/sparsenc/sparsenc-go/packet"
	"github.com/sparsenc/sparsenc-go/params"
	"github.com/sparsenc/sparsenc-go/plan"
	"github.com/sparsenc/sparsenc-go/precode"
)

// bandRow is one installed pivot row of a bandMatrix: a monic row over the
// numpp-wide column space, stored as a sparse map rather than a dense
// numpp-length slice. Because BAND/WINDWRAP subgenerations only ever touch
// a contiguous run of size_g columns, these maps stay small in practice —
// the same compactness property spec.md §9 asks of the array-based "band"
// storage, achieved here with Go's native sparse container instead of a
// second indexing scheme (see DESIGN.md).
type bandRow struct {
	coefs map[int]byte
	msg   []byte
}

// bandMatrix is the shared Gaussian elimination engine behind the BD, CBD,
// OA and PP decoders (spec.md §4.7.2-§4.7.5): one global system over all
// numpp intermediate packets, built incrementally as coded packets arrive.
// A column is resolved as soon as its pivot row has no other unknown entry,
// and decoding is complete once all snum source packets are known.
type bandMatrix struct {
	p     *params.Params
	order func(cols []int) // sorts candidate pivot columns in search order

	pivot map[int]*bandRow
	rank  int

	pp [][]byte // numpp, nil until recovered

	graph          *precode.Graph
	evolvingChecks [][]byte
	checkDegrees   []int
	checkKnown     []bool
}

func newBandMatrix(p *params.Params, g *precode.Graph, order func([]int)) *bandMatrix {
	m := &bandMatrix{
		p:     p,
		order: order,
		pivot: make(map[int]*bandRow),
		pp:    make([][]byte, p.Numpp),
		graph: g,
	}
	if order == nil {
		m.order = sort.Ints
	}
	if p.Cnum > 0 {
		m.evolvingChecks = make([][]byte, p.Cnum)
		m.checkDegrees = make([]int, p.Cnum)
		m.checkKnown = make([]bool, p.Cnum)
		for c, edges := range g.Checks {
			m.evolvingChecks[c] = make([]byte, p.SizeP)
			m.checkDegrees[c] = len(edges)
		}
	}
	return m
}

func (m *bandMatrix) dofKnown() int {
	n := 0
	for i := 0; i < m.p.Snum; i++ {
		if m.pp[i] != nil {
			n++
		}
	}
	return n
}

func (m *bandMatrix) done() bool {
	return m.dofKnown() >= m.p.Snum
}

// absorb reduces the coefficient map (column -> coefficient, over global
// packet ids) and its message against the installed pivot rows, installing
// a new pivot when the reduction reaches an empty column (spec.md §4.7.2).
// Returns whether it contributed a new pivot.
func (m *bandMatrix) absorb(coefs map[int]byte, msg []byte) bool {
	// Cancel against columns already known globally before elimination, to
	// keep the working vector's support as small as possible.
	for col, c := range coefs {
		if c == 0 {
			delete(coefs, col)
			continue
		}
		if v := m.pp[col]; v != nil {
			gf.MulAddRegion(msg, v, c)
			delete(coefs, col)
		}
	}

	for {
		if len(coefs) == 0 {
			return false
		}
		cols := make([]int, 0, len(coefs))
		for c := range coefs {
			cols = append(cols, c)
		}
		m.order(cols)
		col := cols[0]
		c := coefs[col]

		row, ok := m.pivot[col]
		if !ok {
			if c != 1 {
				inv := gf.Div(1, c)
				for k, v := range coefs {
					coefs[k] = gf.Mul(v, inv)
				}
				gf.MulRegion(msg, inv)
			}
			m.pivot[col] = &bandRow{coefs: coefs, msg: msg}
			m.rank++
			dbg.Println("band: new pivot at column", col)
			m.tryResolveColumn(col)
			return true
		}

		delete(coefs, col)
		for k, v := range row.coefs {
			if k == col {
				continue
			}
			nv := gf.Mul(v, c) ^ coefs[k]
			if nv == 0 {
				delete(coefs, k)
			} else {
				coefs[k] = nv
			}
		}
		gf.MulAddRegion(msg, row.msg, c)
	}
}

// tryResolveColumn, once a singleton row (pivot-only, no other nonzero
// entries) exists at col, records its value as recovered and propagates
// that knowledge into every other installed row still referencing col.
func (m *bandMatrix) tryResolveColumn(col int) {
	row := m.pivot[col]
	if len(row.coefs) != 1 {
		return
	}
	m.setKnown(col, row.msg)
}

// setKnown records pp[id] and eliminates column id out of every other
// installed pivot row and the precode's evolving checks.
func (m *bandMatrix) setKnown(id int, val []byte) {
	if m.pp[id] != nil {
		return
	}
	cp := append([]byte(nil), val...)
	m.pp[id] = cp
	for col, row := range m.pivot {
		if col == id {
			continue
		}
		c, ok := row.coefs[id]
		if !ok || c == 0 {
			continue
		}
		delete(row.coefs, id)
		gf.MulAddRegion(row.msg, cp, c)
		if len(row.coefs) == 1 {
			m.tryResolveColumn(col)
		}
	}
	if m.p.Cnum > 0 {
		m.updatePrecode(id, cp)
	}
}

func (m *bandMatrix) updatePrecode(s int, val []byte) {
	if s < m.p.Snum {
		for c, edges := range m.graph.Checks {
			for _, e := range edges {
				if e.Src == s {
					gf.MulAddRegion(m.evolvingChecks[c], val, e.Coef)
					m.checkDegrees[c]--
					m.tryResolveCheck(c)
					break
				}
			}
		}
	} else {
		c := s - m.p.Snum
		m.checkKnown[c] = true
		gf.AddRegion(m.evolvingChecks[c], val)
		m.tryResolveCheck(c)
	}
}

func (m *bandMatrix) tryResolveCheck(c int) {
	if !m.checkKnown[c] || m.checkDegrees[c] != 1 {
		return
	}
	for _, e := range m.graph.Checks[c] {
		if m.pp[e.Src] == nil {
			val := append([]byte(nil), m.evolvingChecks[c]...)
			if e.Coef != 1 {
				gf.MulRegion(val, gf.Div(1, e.Coef))
			}
			m.setKnown(e.Src, val)
			return
		}
	}
}

// packetColumns translates pkt's subgeneration-local coefficients onto the
// global numpp column space using pl.Gene[pkt.Gid].
func packetColumns(pkt *packet.Packet, pl *plan.Plan) (map[int]byte, []byte) {
	ids := pl.Gene[pkt.Gid]
	coefs := make(map[int]byte, len(ids))
	for j, id := range ids {
		if pkt.Coes[j] != 0 {
			coefs[id] = pkt.Coes[j]
		}
	}
	msg := append([]byte(nil), pkt.Syms...)
	return coefs, msg
}
