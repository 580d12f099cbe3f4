// Package precode builds the bipartite LDPC-like precode graph used when
// params.SizeC > 0 (spec.md §4.2) and computes the resulting parity
// packets.
package precode

import (
	"math/rand"
	"sort"

	"github.com/mewkiz/pkg/errutil"
	"github.com/sparsenc/sparsenc-go/gf"
	"github.com/sparsenc/sparsenc-go/params"
)

// Edge is one check-to-source connection, carrying the GF coefficient of
// the source node on that edge.
type Edge struct {
	Src  int
	Coef byte
}

// Graph is the bipartite precode graph: Cnum check (right) nodes, each
// connected to a deterministic pseudo-random subset of the Snum source
// (left) nodes.
type Graph struct {
	Snum, Cnum int
	// Checks[c] lists the source neighbours of check node c, in ascending
	// source-id order.
	Checks [][]Edge
}

// avgDegree mirrors the source's "fixed average degree derived from snum":
// an expander-like distribution with mean degree proportional to log2(snum),
// clipped to a sane range.
func avgDegree(snum int) int {
	d := 1
	for n := snum; n > 1; n >>= 1 {
		d++
	}
	if d < 3 {
		d = 3
	}
	if d > snum {
		d = snum
	}
	return d
}

// Build constructs the precode graph deterministically from p.Seed, so a
// decoder can regenerate it without the graph ever being transmitted
// (spec.md §4.2).
func Build(p *params.Params) (*Graph, error) {
	if p.Cnum == 0 {
		return &Graph{Snum: p.Snum, Cnum: 0}, nil
	}
	if p.Snum <= 0 {
		return nil, errutil.Newf("precode: snum must be > 0, got %d", p.Snum)
	}

	rng := rand.New(rand.NewSource(p.Seed ^ 0x5052454c)) // "PREL" salt, keeps
	// the precode RNG stream independent of the subgeneration plan's stream
	// even though both derive from the same seed.

	deg := avgDegree(p.Snum)
	g := &Graph{Snum: p.Snum, Cnum: p.Cnum, Checks: make([][]Edge, p.Cnum)}
	for c := 0; c < p.Cnum; c++ {
		n := deg
		if n > p.Snum {
			n = p.Snum
		}
		srcs := rng.Perm(p.Snum)[:n]
		sort.Ints(srcs)
		edges := make([]Edge, n)
		for i, s := range srcs {
			var coef byte
			if p.BPC {
				coef = 1
			} else {
				coef = gf.RandNonZeroCoeff(rng, p.GFPower)
			}
			edges[i] = Edge{Src: s, Coef: coef}
		}
		g.Checks[c] = edges
	}
	return g, nil
}

// ComputeParity fills pp[snum:snum+cnum] from pp[0:snum] using the graph's
// edges: pp[snum+j] = sum_{i in N(j)} c_ij * pp[i] (spec.md §4.2).
func (g *Graph) ComputeParity(pp [][]byte, sizeP int) {
	for c, edges := range g.Checks {
		parity := pp[g.Snum+c]
		for i := range parity {
			parity[i] = 0
		}
		for _, e := range edges {
			gf.MulAddRegion(parity, pp[e.Src], e.Coef)
		}
	}
}

// Neighbours returns the edges of check c, ascending by Src.
func (g *Graph) Neighbours(c int) []Edge {
	return g.Checks[c]
}
