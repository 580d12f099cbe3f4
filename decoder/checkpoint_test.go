package decoder

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/mewkiz/pkg/hashutil/crc16"
	"github.com/sparsenc/sparsenc-go/encoder"
	"github.com/sparsenc/sparsenc-go/params"
)

// rewriteTrailer recomputes the CRC-16 trailer over data[:len-2], used by
// tests that mutate the checkpoint body and want Restore to fail on the
// field under test rather than on an incidental trailer mismatch.
func rewriteTrailer(data []byte) []byte {
	body := data[:len(data)-2]
	sum := crc16.ChecksumIBM(body)
	out := append([]byte(nil), body...)
	trailer := make([]byte, 2)
	binary.LittleEndian.PutUint16(trailer, sum)
	return append(out, trailer...)
}

func TestCheckpointRoundTripMidwayBD(t *testing.T) {
	p, enc, data := buildSession(t, params.Params{
		Datasize: 30 * 64, SizeP: 64, SizeB: 15, SizeG: 15, GFPower: 8,
		Type: params.BAND, Seed: 41,
	}, func(b []byte) {
		for i := range b {
			b[i] = byte(i * 13)
		}
	})
	dec, err := NewBD(p, enc.Plan(), enc.Graph())
	if err != nil {
		t.Fatalf("NewBD: %v", err)
	}
	for i := 0; i < p.Snum/2 && !dec.Finished(); i++ {
		dec.Process(enc.GeneratePacket())
	}
	if dec.Finished() {
		t.Fatal("test setup expected the decoder to still be mid-flight")
	}

	var buf bytes.Buffer
	if err := Save(&buf, dec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	restored, err := Restore(&buf, p, enc.Plan(), enc.Graph())
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.DoF() != dec.DoF() {
		t.Fatalf("restored DoF = %d, want %d", restored.DoF(), dec.DoF())
	}

	out := roundTrip(t, enc, restored, p.Snum*6)
	if !bytes.Equal(out, data) {
		t.Fatal("decoder restored from a checkpoint failed to recover the source data")
	}
}

func TestCheckpointRoundTripGG(t *testing.T) {
	p, enc, data := buildSession(t, params.Params{
		Datasize: 20 * 32, SizeP: 32, SizeB: 10, SizeG: 10, GFPower: 8,
		Type: params.RAND, Seed: 43,
	}, func(b []byte) {
		for i := range b {
			b[i] = byte(i + 2)
		}
	})
	dec, err := NewGG(p, enc.Plan(), enc.Graph())
	if err != nil {
		t.Fatalf("NewGG: %v", err)
	}
	for i := 0; i < p.Snum && !dec.Finished(); i++ {
		dec.Process(enc.GeneratePacket())
	}

	var buf bytes.Buffer
	if err := Save(&buf, dec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	restored, err := Restore(&buf, p, enc.Plan(), enc.Graph())
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	out := roundTrip(t, enc, restored, p.Snum*8)
	if !bytes.Equal(out, data) {
		t.Fatal("GG decoder restored from a checkpoint failed to recover the source data")
	}
}

func TestCheckpointCorruptedBodyRejected(t *testing.T) {
	p, enc, _ := buildSession(t, params.Params{
		Datasize: 8 * 32, SizeP: 32, SizeB: 8, SizeG: 8, GFPower: 8,
		Type: params.BAND, Seed: 5,
	}, func([]byte) {})
	dec, err := NewBD(p, enc.Plan(), enc.Graph())
	if err != nil {
		t.Fatalf("NewBD: %v", err)
	}
	dec.Process(enc.GeneratePacket())

	var buf bytes.Buffer
	if err := Save(&buf, dec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	corrupt := buf.Bytes()
	corrupt[len(corrupt)/2] ^= 0xFF

	if _, err := Restore(bytes.NewReader(corrupt), p, enc.Plan(), enc.Graph()); err == nil {
		t.Fatal("expected Restore to reject a checkpoint with a corrupted body")
	}
}

func TestCheckpointWrongVersionRejected(t *testing.T) {
	p, enc, _ := buildSession(t, params.Params{
		Datasize: 8 * 32, SizeP: 32, SizeB: 8, SizeG: 8, GFPower: 8,
		Type: params.BAND, Seed: 5,
	}, func([]byte) {})
	dec, err := NewBD(p, enc.Plan(), enc.Graph())
	if err != nil {
		t.Fatalf("NewBD: %v", err)
	}

	var buf bytes.Buffer
	if err := Save(&buf, dec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data := buf.Bytes()
	data[0] = checkpointVersion + 1
	fixed := rewriteTrailer(data)

	if _, err := Restore(bytes.NewReader(fixed), p, enc.Plan(), enc.Graph()); err == nil {
		t.Fatal("expected Restore to reject an unsupported checkpoint version")
	}
}
