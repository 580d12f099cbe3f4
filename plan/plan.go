// Package plan assigns intermediate-packet ids to subgenerations per the
// selected code type (spec.md §4.3).
package plan

import (
	"math/rand"
	"sort"

	"github.com/mewkiz/pkg/errutil"
	"github.com/sparsenc/sparsenc-go/params"
)

// Plan holds the Gnum subgeneration membership lists. Built once from a
// seed, immutable afterwards.
type Plan struct {
	// Gene[g] lists the packet ids of subgeneration g, ascending.
	Gene [][]int
}

// Build constructs the subgeneration plan for p.Type.
func Build(p *params.Params) (*Plan, error) {
	rng := rand.New(rand.NewSource(p.Seed))
	switch p.Type {
	case params.RAND:
		return buildRand(p, rng)
	case params.BAND:
		return buildBand(p, false)
	case params.WINDWRAP:
		return buildBand(p, true)
	case params.BATS:
		return buildRand(p, rng)
	default:
		return nil, errutil.Newf("plan: unsupported code type %v", p.Type)
	}
}

func buildRand(p *params.Params, rng *rand.Rand) (*Plan, error) {
	pl := &Plan{Gene: make([][]int, p.Gnum)}
	for g := 0; g < p.Gnum; g++ {
		// Subgen g always holds the run of size_b ids from g*size_b, so every
		// id is in some subgen; the other slots get distinct random ids.
		ids := make([]int, 0, p.SizeG)
		taken := make(map[int]bool, p.SizeG)
		for id := g * p.SizeB; id < (g+1)*p.SizeB && id < p.Numpp && len(ids) < p.SizeG; id++ {
			ids = append(ids, id)
			taken[id] = true
		}
		for _, id := range rng.Perm(p.Numpp) {
			if len(ids) == p.SizeG {
				break
			}
			if !taken[id] {
				ids = append(ids, id)
				taken[id] = true
			}
		}
		sort.Ints(ids)
		pl.Gene[g] = ids
	}
	return pl, nil
}

func buildBand(p *params.Params, wrap bool) (*Plan, error) {
	pl := &Plan{Gene: make([][]int, p.Gnum)}
	for g := 0; g < p.Gnum; g++ {
		start := g * p.SizeB
		ids := make([]int, 0, p.SizeG)
		if wrap {
			for i := 0; i < p.SizeG; i++ {
				ids = append(ids, (start+i)%p.Numpp)
			}
			sort.Ints(ids)
		} else {
			end := start + p.SizeG
			if end > p.Numpp {
				// Clamp at numpp (spec.md §4.3 BAND clamping rule).
				shift := end - p.Numpp
				start -= shift
				end = p.Numpp
				if start < 0 {
					start = 0
				}
			}
			for i := start; i < end; i++ {
				ids = append(ids, i)
			}
		}
		pl.Gene[g] = ids
	}
	return pl, nil
}

// Contains reports whether subgeneration g contains packet id pktid, and
// if so its position within Gene[g].
func (pl *Plan) Contains(g, pktid int) (pos int, ok bool) {
	ids := pl.Gene[g]
	i := sort.SearchInts(ids, pktid)
	if i < len(ids) && ids[i] == pktid {
		return i, true
	}
	return 0, false
}

// SubgensWith returns every subgeneration id that contains pktid, used to
// fan a systematic packet out to every subgen it belongs to (spec.md §4.5).
func (pl *Plan) SubgensWith(pktid int) []int {
	var gs []int
	for g := range pl.Gene {
		if _, ok := pl.Contains(g, pktid); ok {
			gs = append(gs, g)
		}
	}
	return gs
}
