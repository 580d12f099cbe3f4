package sparsenc

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/sparsenc/sparsenc-go/recoder"
)

func fillPattern(b []byte, seed byte) {
	for i := range b {
		b[i] = byte(int(seed) + i*7)
	}
}

func TestEndToEndEncodeBufferDecodeBD(t *testing.T) {
	p, err := NewParams(Params{
		Datasize: 40 * 64, SizeP: 64, SizeB: 20, SizeG: 20, GFPower: 8,
		Type: BAND, Seed: 101,
	})
	if err != nil {
		t.Fatalf("NewParams: %v", err)
	}
	data := make([]byte, p.Datasize)
	fillPattern(data, 3)

	enc, err := CreateEncoder(data, p)
	if err != nil {
		t.Fatalf("CreateEncoder: %v", err)
	}
	buf, err := CreateBuffer(p, 8)
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	dec, err := CreateDecoder(p, BD)
	if err != nil {
		t.Fatalf("CreateDecoder: %v", err)
	}

	for i := 0; i < p.Snum*4 && !dec.Finished(); i++ {
		buf.BufferPacket(enc.GeneratePacket())
		if out, ok := buf.RecodePacket(recoder.RAND); ok {
			dec.Process(out)
		}
	}
	if !dec.Finished() {
		t.Fatal("decoder did not finish through an encoder -> buffer -> BD chain")
	}
	got, err := dec.RecoverData()
	if err != nil {
		t.Fatalf("RecoverData: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("recovered data mismatch across the facade-level chain")
	}
}

func TestEndToEndBATSFacade(t *testing.T) {
	p, err := NewParams(Params{
		Datasize: 20 * 32, SizeP: 32, SizeB: 100, SizeG: 20, GFPower: 8,
		Type: BATS, Seed: 55,
	})
	if err != nil {
		t.Fatalf("NewParams: %v", err)
	}
	data := make([]byte, p.Datasize)
	fillPattern(data, 9)

	enc, err := CreateEncoder(data, p)
	if err != nil {
		t.Fatalf("CreateEncoder: %v", err)
	}
	bbuf, err := CreateBATSBuffer(p, 12)
	if err != nil {
		t.Fatalf("CreateBATSBuffer: %v", err)
	}
	dec, err := CreateDecoder(p, GG)
	if err != nil {
		t.Fatalf("CreateDecoder: %v", err)
	}

	for i := 0; i < p.Snum*10 && !dec.Finished(); i++ {
		bbuf.BufferPacket(enc.GeneratePacket())
		if out, ok := bbuf.RecodePacket(); ok {
			dec.Process(out)
		}
	}
	if !dec.Finished() {
		t.Fatal("decoder did not finish through an encoder -> BATS buffer -> GG chain")
	}
	got, err := dec.RecoverData()
	if err != nil {
		t.Fatalf("RecoverData: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("recovered data mismatch across the BATS facade chain")
	}
}

// TestMultiHopRecoderChain sends every coded packet through two independent
// recoder buffers in series before decoding, exercising the span
// preservation property (spec P4) across more than one recoding hop
// (SPEC_FULL.md supplemented scenario, grounded on src/sncRecoder.c's
// multi-relay usage pattern).
func TestMultiHopRecoderChain(t *testing.T) {
	p, err := NewParams(Params{
		Datasize: 24 * 64, SizeP: 64, SizeB: 12, SizeG: 12, GFPower: 8,
		Type: BAND, Seed: 202,
	})
	if err != nil {
		t.Fatalf("NewParams: %v", err)
	}
	data := make([]byte, p.Datasize)
	fillPattern(data, 1)

	enc, err := CreateEncoder(data, p)
	if err != nil {
		t.Fatalf("CreateEncoder: %v", err)
	}
	hop1, err := CreateBuffer(p, 6)
	if err != nil {
		t.Fatalf("CreateBuffer hop1: %v", err)
	}
	hop2, err := CreateBuffer(p, 6)
	if err != nil {
		t.Fatalf("CreateBuffer hop2: %v", err)
	}
	dec, err := CreateDecoder(p, CBD)
	if err != nil {
		t.Fatalf("CreateDecoder: %v", err)
	}

	for i := 0; i < p.Snum*6 && !dec.Finished(); i++ {
		hop1.BufferPacket(enc.GeneratePacket())
		mid, ok := hop1.RecodePacket(recoder.RAND)
		if !ok {
			continue
		}
		hop2.BufferPacket(mid)
		out, ok := hop2.RecodePacket(recoder.RAND)
		if !ok {
			continue
		}
		dec.Process(out)
	}
	if !dec.Finished() {
		t.Fatal("decoder did not finish through a two-hop recoder chain")
	}
	got, err := dec.RecoverData()
	if err != nil {
		t.Fatalf("RecoverData: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("recovered data mismatch across a two-hop recoder chain")
	}
}

// gilbertElliott is a two-state (good/bad) packet loss model, test-only
// tooling for exercising the encoder/decoder pair under bursty loss rather
// than i.i.d. drops (SPEC_FULL.md supplemented test helper).
type gilbertElliott struct {
	rng      *rand.Rand
	bad      bool
	pGoodBad float64 // P(good -> bad)
	pBadGood float64 // P(bad -> good)
	lossBad  float64 // loss probability while in the bad state
}

func newGilbertElliott(seed int64) *gilbertElliott {
	return &gilbertElliott{
		rng:      rand.New(rand.NewSource(seed)),
		pGoodBad: 0.05,
		pBadGood: 0.4,
		lossBad:  0.9,
	}
}

// drop advances the Markov chain one step and reports whether this packet
// is lost.
func (g *gilbertElliott) drop() bool {
	if g.bad {
		if g.rng.Float64() < g.pBadGood {
			g.bad = false
		}
	} else if g.rng.Float64() < g.pGoodBad {
		g.bad = true
	}
	if g.bad {
		return g.rng.Float64() < g.lossBad
	}
	return false
}

func TestGilbertElliottLossSurvivesWithOversend(t *testing.T) {
	p, err := NewParams(Params{
		Datasize: 30 * 64, SizeP: 64, SizeB: 15, SizeG: 15, GFPower: 8,
		Type: BAND, Seed: 303,
	})
	if err != nil {
		t.Fatalf("NewParams: %v", err)
	}
	data := make([]byte, p.Datasize)
	fillPattern(data, 5)

	enc, err := CreateEncoder(data, p)
	if err != nil {
		t.Fatalf("CreateEncoder: %v", err)
	}
	dec, err := CreateDecoder(p, BD)
	if err != nil {
		t.Fatalf("CreateDecoder: %v", err)
	}

	loss := newGilbertElliott(7)
	const budget = 4000
	for i := 0; i < budget && !dec.Finished(); i++ {
		pkt := enc.GeneratePacket()
		if loss.drop() {
			continue
		}
		dec.Process(pkt)
	}
	if !dec.Finished() {
		t.Fatalf("decoder did not finish within a %d-packet budget under Gilbert-Elliott loss", budget)
	}
	got, err := dec.RecoverData()
	if err != nil {
		t.Fatalf("RecoverData: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("recovered data mismatch under lossy delivery")
	}
}
