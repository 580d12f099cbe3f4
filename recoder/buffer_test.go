package recoder

import (
	"math/rand"
	"testing"

	"github.com/sparsenc/sparsenc-go/packet"
	"github.com/sparsenc/sparsenc-go/params"
	"github.com/sparsenc/sparsenc-go/plan"
)

func mustParams(t *testing.T, raw params.Params) *params.Params {
	t.Helper()
	p, err := params.New(raw)
	if err != nil {
		t.Fatalf("params.New: %v", err)
	}
	return p
}

func mustPlan(t *testing.T, p *params.Params) *plan.Plan {
	t.Helper()
	pl, err := plan.Build(p)
	if err != nil {
		t.Fatalf("plan.Build: %v", err)
	}
	return pl
}

func randCoded(rng *rand.Rand, p *params.Params, gid int32, n int) *packet.Packet {
	coes := make([]byte, n)
	for i := range coes {
		coes[i] = byte(rng.Intn(1 << p.GFPower))
	}
	syms := make([]byte, p.SizeP)
	rng.Read(syms)
	return &packet.Packet{Gid: gid, Ucid: -1, Coes: coes, Syms: syms}
}

func TestBufferPacketAndRecodeTRIV(t *testing.T) {
	p := mustParams(t, params.Params{
		Datasize: 32 * 64, SizeP: 64, SizeB: 16, SizeG: 16, GFPower: 8,
		Type: params.BAND, Seed: 12345,
	})
	pl := mustPlan(t, p)
	buf, err := NewBuffer(p, pl, 4)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 3; i++ {
		buf.BufferPacket(randCoded(rng, p, 0, len(pl.Gene[0])))
	}
	if buf.Occupancy(0) != 3 {
		t.Fatalf("Occupancy(0) = %d, want 3", buf.Occupancy(0))
	}
	out, ok := buf.RecodePacket(TRIV)
	if !ok {
		t.Fatal("expected a recoded packet once buffered")
	}
	if len(out.Syms) != p.SizeP {
		t.Fatalf("recoded packet syms length = %d, want %d", len(out.Syms), p.SizeP)
	}
}

func TestRecodeEmptyBufferReturnsFalse(t *testing.T) {
	p := mustParams(t, params.Params{
		Datasize: 32 * 64, SizeP: 64, SizeB: 16, SizeG: 16, GFPower: 8,
		Type: params.BAND, Seed: 12345,
	})
	pl := mustPlan(t, p)
	buf, err := NewBuffer(p, pl, 4)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	if _, ok := buf.RecodePacket(RAND); ok {
		t.Fatal("expected no packet from an empty buffer")
	}
}

func TestAccumulatorUpdateOnFullRing(t *testing.T) {
	p := mustParams(t, params.Params{
		Datasize: 32 * 64, SizeP: 64, SizeB: 16, SizeG: 16, GFPower: 8,
		Type: params.BAND, Seed: 12345,
	})
	pl := mustPlan(t, p)
	buf, err := NewBuffer(p, pl, 2)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 5; i++ {
		buf.BufferPacket(randCoded(rng, p, 0, len(pl.Gene[0])))
	}
	if buf.Occupancy(0) != 2 {
		t.Fatalf("Occupancy(0) = %d, want 2 (bounded by ring size)", buf.Occupancy(0))
	}
}

func TestSystematicFansOutToEverySubgenContainingUcid(t *testing.T) {
	p := mustParams(t, params.Params{
		Datasize: 32 * 64, SizeP: 64, SizeB: 16, SizeG: 16, GFPower: 8,
		Sys: true, Type: params.RAND, Seed: 12345,
	})
	pl := mustPlan(t, p)
	buf, err := NewBuffer(p, pl, 4)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	ucid := 0
	var touched []int
	for g, ids := range pl.Gene {
		for _, id := range ids {
			if id == ucid {
				touched = append(touched, g)
			}
		}
	}
	if len(touched) == 0 {
		t.Skip("no subgen happens to contain packet 0 under this seed")
	}
	sys := &packet.Packet{Gid: packet.Systematic, Ucid: int32(ucid), Syms: make([]byte, p.SizeP)}
	buf.BufferPacket(sys)
	for _, g := range touched {
		if buf.Occupancy(g) != 1 {
			t.Fatalf("subgen %d: occupancy = %d, want 1 after systematic fan-out", g, buf.Occupancy(g))
		}
	}
}

func TestRecodeSysForwardsFreshSystematicOnce(t *testing.T) {
	p := mustParams(t, params.Params{
		Datasize: 32 * 64, SizeP: 64, SizeB: 16, SizeG: 16, GFPower: 8,
		Sys: true, Type: params.BAND, Seed: 12345,
	})
	pl := mustPlan(t, p)
	buf, err := NewBuffer(p, pl, 4)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	sys := &packet.Packet{Gid: packet.Systematic, Ucid: 0, Syms: make([]byte, p.SizeP)}
	for i := range sys.Syms {
		sys.Syms[i] = byte(i)
	}
	buf.BufferPacket(sys)

	out, ok := buf.RecodePacket(RANDSys)
	if !ok || !out.IsSystematic() {
		t.Fatalf("expected the fresh systematic packet forwarded verbatim, got %+v ok=%v", out, ok)
	}

	// One-shot: subsequent recodes should not keep forwarding it, even
	// though the subgens it populated are still non-empty.
	for i := 0; i < 5; i++ {
		out2, ok2 := buf.RecodePacket(RANDSys)
		if ok2 && out2.IsSystematic() {
			t.Fatal("systematic forwarding must be one-shot")
		}
	}
}

func TestMLPIPrefersHighestLackOfInformation(t *testing.T) {
	p := mustParams(t, params.Params{
		Datasize: 64 * 64, SizeP: 64, SizeB: 16, SizeG: 16, GFPower: 8,
		Type: params.BAND, Seed: 12345,
	})
	pl := mustPlan(t, p)
	buf, err := NewBuffer(p, pl, 8)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	rng := rand.New(rand.NewSource(3))
	// Subgen 0 gets many packets, subgen 1 gets one.
	for i := 0; i < 5; i++ {
		buf.BufferPacket(randCoded(rng, p, 0, len(pl.Gene[0])))
	}
	buf.BufferPacket(randCoded(rng, p, 1, len(pl.Gene[1])))

	g, ok := buf.chooseSubgen(MLPI)
	if !ok || g != 0 {
		t.Fatalf("chooseSubgen(MLPI) = (%d,%v), want (0,true)", g, ok)
	}
}
