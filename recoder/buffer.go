// Package recoder implements the intermediate-node recoder buffers: the
// standard per-subgeneration ring buffer (spec.md §4.5) and the BATS
// single-batch FIFO window (spec.md §4.6).
//
// Every piece of state that the source's sncRecoder.c kept as process-wide
// statics (a package-level `sc`, `gene_nbr`) lives on the Buffer value here
// instead, so multiple sessions can run concurrently (spec.md §9 redesign
// note, §5).
package recoder

import (
	"math/rand"

	"github.com/mewkiz/pkg/dbg"
	"github.com/mewkiz/pkg/errutil"
	"github.com/sparsenc/sparsenc-go/gf"
	"github.com/sparsenc/sparsenc-go/packet"
	"github.com/sparsenc/sparsenc-go/params"
	"github.com/sparsenc/sparsenc-go/plan"
)

func init() {
	dbg.Debug = false
}

// Buffer is a standard recoder: a bounded ring of coded packets per
// subgeneration, with a systematic side-channel (spec.md §4.5).
type Buffer struct {
	p    *params.Params
	plan *plan.Plan
	size int

	slots  [][]*packet.Packet
	nc     []int
	pn     []int
	nsched []int
	// recvd is the per-subgen received-packet counter (SPEC_FULL.md
	// supplemented feature: overhead accounting finer than the single
	// global counter spec.md §4.7 defines for decoders).
	recvd []int

	pendingSys *packet.Packet
	sysFresh   bool

	rng *rand.Rand
}

// NewBuffer creates a standard recoder buffer holding up to size coded
// packets per subgeneration.
func NewBuffer(p *params.Params, pl *plan.Plan, size int) (*Buffer, error) {
	if size <= 0 {
		return nil, errutil.Newf("recoder: NewBuffer: size must be > 0, got %d", size)
	}
	b := &Buffer{
		p:      p,
		plan:   pl,
		size:   size,
		slots:  make([][]*packet.Packet, p.Gnum),
		nc:     make([]int, p.Gnum),
		pn:     make([]int, p.Gnum),
		nsched: make([]int, p.Gnum),
		recvd:  make([]int, p.Gnum),
		rng:    rand.New(rand.NewSource(p.Seed)),
	}
	for g := range b.slots {
		b.slots[g] = make([]*packet.Packet, size)
	}
	return b, nil
}

func unitCoes(n, pos int) []byte {
	c := make([]byte, n)
	c[pos] = 1
	return c
}

// BufferPacket absorbs pkt. A systematic packet is duplicated into every
// subgeneration containing its Ucid, coefficients rewritten to the unit
// vector at the packet's position; a normal packet is inserted into its
// own subgeneration, triggering an accumulator update once that
// subgeneration's ring is full (spec.md §4.5, Lun 2006).
func (b *Buffer) BufferPacket(pkt *packet.Packet) {
	if pkt.IsSystematic() {
		for _, g := range b.plan.SubgensWith(int(pkt.Ucid)) {
			pos, _ := b.plan.Contains(g, int(pkt.Ucid))
			unit := &packet.Packet{
				Gid:  int32(g),
				Ucid: -1,
				Coes: unitCoes(len(b.plan.Gene[g]), pos),
				Syms: append([]byte(nil), pkt.Syms...),
			}
			b.insert(g, unit)
		}
		b.pendingSys = pkt.Clone()
		b.sysFresh = true
		dbg.Println("recoder: buffered systematic packet ucid =", pkt.Ucid)
		return
	}

	g := int(pkt.Gid)
	b.insert(g, pkt)
}

// insert implements the ring-with-accumulator-update rule.
func (b *Buffer) insert(g int, pkt *packet.Packet) {
	b.recvd[g]++
	if b.nc[g] < b.size {
		b.slots[g][b.pn[g]] = pkt
		b.pn[g] = (b.pn[g] + 1) % b.size
		b.nc[g]++
		return
	}
	// Accumulator update (Lun 2006): absorb pkt into every buffered packet
	// of this subgen via a random coefficient, preserving the span while
	// bounding memory (spec P4).
	for i := 0; i < b.nc[g]; i++ {
		co := gf.RandCoeff(b.rng, b.p.GFPower)
		if co == 0 {
			continue
		}
		buffered := b.slots[g][i]
		gf.MulAddRegion(buffered.Coes, pkt.Coes, co)
		gf.MulAddRegion(buffered.Syms, pkt.Syms, co)
	}
}

// chooseSubgen implements the non-systematic schedules.
func (b *Buffer) chooseSubgen(sched Schedule) (int, bool) {
	switch sched.base() {
	case TRIV:
		for _, n := range b.nc {
			if n > 0 {
				return b.rng.Intn(b.p.Gnum), true
			}
		}
		return 0, false
	case RAND:
		var nonEmpty []int
		for g, n := range b.nc {
			if n > 0 {
				nonEmpty = append(nonEmpty, g)
			}
		}
		if len(nonEmpty) == 0 {
			return 0, false
		}
		return nonEmpty[b.rng.Intn(len(nonEmpty))], true
	case MLPI:
		best, bestVal := -1, -1
		for g, n := range b.nc {
			if n == 0 {
				continue
			}
			val := n - b.nsched[g]
			if val > bestVal {
				best, bestVal = g, val
			}
		}
		if best == -1 {
			return 0, false
		}
		return best, true
	case NURAND:
		return b.chooseNURAND()
	default:
		return 0, false
	}
}

// chooseNURAND implements the banded non-uniform schedule: first and last
// subgens get weight (G+1)/(2M), the rest 1/M, with M=numpp, G=size_g
// (spec.md §4.5).
func (b *Buffer) chooseNURAND() (int, bool) {
	m := b.p.Numpp
	g := b.p.SizeG
	weights := make([]float64, b.p.Gnum)
	total := 0.0
	for i := range weights {
		w := 1.0 / float64(m)
		if i == 0 || i == b.p.Gnum-1 {
			w = float64(g+1) / float64(2*m)
		}
		if b.nc[i] == 0 {
			w = 0
		}
		weights[i] = w
		total += w
	}
	if total == 0 {
		return 0, false
	}
	r := b.rng.Float64() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i, true
		}
	}
	return len(weights) - 1, true
}

// RecodePacket produces one recoded packet per the chosen schedule, or
// (nil, false) if nothing is buffered yet (spec.md §4.5, §7 item 6).
func (b *Buffer) RecodePacket(sched Schedule) (*packet.Packet, bool) {
	if sched.systematicPreferring() && b.sysFresh {
		out := b.pendingSys
		b.sysFresh = false
		dbg.Println("recoder: forwarding fresh systematic packet ucid =", out.Ucid)
		return out, true
	}

	g, ok := b.chooseSubgen(sched)
	if !ok {
		return nil, false
	}

	n := len(b.plan.Gene[g])
	out := &packet.Packet{
		Gid:  int32(g),
		Ucid: -1,
		Coes: make([]byte, n),
		Syms: make([]byte, b.p.SizeP),
	}
	for i := 0; i < b.nc[g]; i++ {
		ci := gf.RandCoeff(b.rng, b.p.GFPower)
		if ci == 0 {
			continue
		}
		pkt := b.slots[g][i]
		gf.MulAddRegion(out.Coes, pkt.Coes, ci)
		gf.MulAddRegion(out.Syms, pkt.Syms, ci)
	}
	b.nsched[g]++
	return out, true
}

// Occupancy returns the number of packets currently buffered for
// subgeneration g.
func (b *Buffer) Occupancy(g int) int {
	return b.nc[g]
}

// RecvStats returns the per-subgeneration received-packet counts
// (SPEC_FULL.md supplemented feature, mirroring decoder.SubgenStats).
func (b *Buffer) RecvStats() []int {
	return append([]int(nil), b.recvd...)
}
