package recoder

import (
	"math/rand"

	"github.com/mewkiz/pkg/errutil"
	"github.com/sparsenc/sparsenc-go/gf"
	"github.com/sparsenc/sparsenc-go/packet"
	"github.com/sparsenc/sparsenc-go/params"
)

type batsSlot struct {
	pkt   *packet.Packet
	batch int32
}

// BATSBuffer is a single FIFO window of coded packets spanning all
// batches, recoding only the current sending batch (spec.md §4.6). BTS is
// derived from params.SizeB rather than taken as a free parameter
// (SPEC_FULL.md supplemented feature, grounded on src/sncRecoderBATS.c).
type BATSBuffer struct {
	p       *params.Params
	buf     []batsSlot
	bufsize int
	filled  int
	// rLast is the next write index; sFirst is the oldest occupied index.
	rLast, sFirst int

	sendBatch int32
	sCount    int
	started   bool

	rng *rand.Rand
}

// NewBATSBuffer creates a BATS recoder buffer with room for bufsize
// packets total, across all batches.
func NewBATSBuffer(p *params.Params, bufsize int) (*BATSBuffer, error) {
	if bufsize <= 0 {
		return nil, errutil.Newf("recoder: NewBATSBuffer: bufsize must be > 0, got %d", bufsize)
	}
	return &BATSBuffer{
		p:       p,
		buf:     make([]batsSlot, bufsize),
		bufsize: bufsize,
		rng:     rand.New(rand.NewSource(p.Seed)),
	}, nil
}

// BTS is the per-batch transmission limit: size_b (spec.md §4.6).
func (b *BATSBuffer) BTS() int {
	return b.p.SizeB
}

// BufferPacket appends pkt to the window. If the window is full the oldest
// slot is overwritten; if that evicted packet was the last surviving
// packet of the current sending batch, the sending batch advances to the
// batch now occupying the new oldest slot (spec.md §4.6).
func (b *BATSBuffer) BufferPacket(pkt *packet.Packet) {
	if !b.started {
		b.sendBatch = pkt.Gid
		b.started = true
	}

	evicted := false
	var evictedBatch int32
	if b.filled == b.bufsize {
		evicted = true
		evictedBatch = b.buf[b.sFirst].batch
		b.sFirst = (b.sFirst + 1) % b.bufsize
	} else {
		b.filled++
	}

	b.buf[b.rLast] = batsSlot{pkt: pkt, batch: pkt.Gid}
	b.rLast = (b.rLast + 1) % b.bufsize

	if evicted && evictedBatch == b.sendBatch {
		stillPresent := false
		for i := 0; i < b.filled; i++ {
			pos := (b.sFirst + i) % b.bufsize
			if b.buf[pos].batch == evictedBatch {
				stillPresent = true
				break
			}
		}
		if !stillPresent {
			b.sendBatch = b.buf[b.sFirst].batch
			b.sCount = 0
		}
	}
}

// RecodePacket mixes only packets whose Gid equals the current sending
// batch. If only one batch is buffered and the per-batch emission count
// has reached BTS, RecodePacket returns (nil, false) (spec.md §4.6 lower
// bound).
func (b *BATSBuffer) RecodePacket() (*packet.Packet, bool) {
	if b.filled == 0 {
		return nil, false
	}
	var idxs []int
	for i := 0; i < b.filled; i++ {
		pos := (b.sFirst + i) % b.bufsize
		if b.buf[pos].batch == b.sendBatch {
			idxs = append(idxs, pos)
		}
	}
	if len(idxs) == 0 {
		return nil, false
	}
	onlyOneBatch := len(idxs) == b.filled
	if onlyOneBatch && b.sCount >= b.BTS() {
		return nil, false
	}

	n := len(b.buf[idxs[0]].pkt.Coes)
	out := &packet.Packet{
		Gid:  b.sendBatch,
		Ucid: -1,
		Coes: make([]byte, n),
		Syms: make([]byte, b.p.SizeP),
	}
	for _, pos := range idxs {
		ci := gf.RandCoeff(b.rng, b.p.GFPower)
		if ci == 0 {
			continue
		}
		pkt := b.buf[pos].pkt
		gf.MulAddRegion(out.Coes, pkt.Coes, ci)
		gf.MulAddRegion(out.Syms, pkt.Syms, ci)
	}
	b.sCount++
	return out, true
}

// SendingBatch returns the id of the batch currently being recoded.
func (b *BATSBuffer) SendingBatch() int32 {
	return b.sendBatch
}
