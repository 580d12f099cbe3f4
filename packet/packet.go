// Package packet defines the coded-packet wire format (spec.md §3, §6.2).
package packet

import (
	"bytes"
	"encoding/binary"

	"github.com/mewkiz/pkg/errutil"
	"github.com/mewkiz/pkg/hashutil/crc8"
	"github.com/sparsenc/sparsenc-go/gf"
	"github.com/sparsenc/sparsenc-go/params"
)

// Systematic is the Gid value of a systematic packet (spec.md §3).
const Systematic = -1

// Packet is a coded packet: a linear combination of the packets named by
// Gid's subgeneration, or (if Gid == Systematic) a single source packet
// identified by Ucid. Packets are value objects; Clone makes the deep copy
// spec.md §3 requires for duplication.
type Packet struct {
	Gid  int32
	Ucid int32
	// Coes holds SizeG unpacked coefficient values, one byte per element
	// (in-memory representation; the wire format bit-packs them). Unused
	// (nil) for systematic packets.
	Coes []byte
	Syms []byte
}

// Clone returns a deep copy of p.
func (p *Packet) Clone() *Packet {
	cp := &Packet{Gid: p.Gid, Ucid: p.Ucid}
	if p.Coes != nil {
		cp.Coes = append([]byte(nil), p.Coes...)
	}
	cp.Syms = append([]byte(nil), p.Syms...)
	return cp
}

// IsSystematic reports whether p carries a single uncoded source packet.
func (p *Packet) IsSystematic() bool {
	return p.Gid == Systematic
}

// Length returns the wire length in bytes of a packet under p (spec.md
// §6.1): 2 ints + ceil(size_g*q/8) + size_p.
func Length(p *params.Params) int {
	return 4 + 4 + gf.PackedLen(p.SizeG, p.GFPower) + p.SizeP
}

// packCoes bit-packs n coefficients (gfpower bits each) through
// gf.SetElement, the LSB-first-within-the-array contract spec.md §4.1/§6.2
// mandates (element i at bit offset i*q).
func packCoes(coes []byte, n int, q uint8) ([]byte, error) {
	buf := make([]byte, gf.PackedLen(n, q))
	for i := 0; i < n; i++ {
		var v byte
		if coes != nil {
			v = coes[i]
		}
		gf.SetElement(buf, i, q, v)
	}
	return buf, nil
}

func unpackCoes(buf []byte, n int, q uint8) ([]byte, error) {
	coes := make([]byte, n)
	for i := 0; i < n; i++ {
		coes[i] = gf.GetElement(buf, i, q)
	}
	return coes, nil
}

// Serialize encodes pkt to its wire representation: gid, ucid (both
// little-endian int32), the bit-packed coefficient vector, then the raw
// symbol bytes (spec.md §6.2).
func Serialize(pkt *Packet, p *params.Params) ([]byte, error) {
	if len(pkt.Syms) != p.SizeP {
		return nil, errutil.Newf("packet: Serialize: syms length %d != size_p %d", len(pkt.Syms), p.SizeP)
	}
	if !pkt.IsSystematic() && len(pkt.Coes) != p.SizeG {
		return nil, errutil.Newf("packet: Serialize: coes length %d != size_g %d", len(pkt.Coes), p.SizeG)
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, pkt.Gid); err != nil {
		return nil, errutil.Err(err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, pkt.Ucid); err != nil {
		return nil, errutil.Err(err)
	}

	coeBytes, err := packCoes(pkt.Coes, p.SizeG, p.GFPower)
	if err != nil {
		return nil, err
	}
	buf.Write(coeBytes)
	buf.Write(pkt.Syms)

	if got, want := buf.Len(), Length(p); got != want {
		return nil, errutil.Newf("packet: Serialize: produced %d bytes, want %d", got, want)
	}
	return buf.Bytes(), nil
}

// Deserialize decodes a wire-format packet. A truncated or malformed
// buffer returns a framing error (spec.md §7 item 3), recoverable by the
// caller rather than a programmer-precondition panic.
func Deserialize(data []byte, p *params.Params) (*Packet, error) {
	want := Length(p)
	if len(data) != want {
		return nil, errutil.Newf("packet: Deserialize: got %d bytes, want %d (framing error)", len(data), want)
	}

	r := bytes.NewReader(data)
	pkt := &Packet{}
	if err := binary.Read(r, binary.LittleEndian, &pkt.Gid); err != nil {
		return nil, errutil.Err(err)
	}
	if err := binary.Read(r, binary.LittleEndian, &pkt.Ucid); err != nil {
		return nil, errutil.Err(err)
	}

	coeLen := gf.PackedLen(p.SizeG, p.GFPower)
	coeBytes := make([]byte, coeLen)
	if _, err := r.Read(coeBytes); err != nil {
		return nil, errutil.Err(err)
	}
	if pkt.Gid != Systematic {
		coes, err := unpackCoes(coeBytes, p.SizeG, p.GFPower)
		if err != nil {
			return nil, err
		}
		pkt.Coes = coes
	}

	syms := make([]byte, p.SizeP)
	if _, err := r.Read(syms); err != nil {
		return nil, errutil.Err(err)
	}
	pkt.Syms = syms
	return pkt, nil
}

// guardCRC is the CRC-8 header guard appended after the spec.md §6.2 wire
// format (enrichment beyond the spec format itself, see SPEC_FULL.md;
// mirrors the teacher's per-frame-header CRC-8 in frame/header.go). It
// covers gid/ucid/coefficients only, not the (typically larger, separately
// integrity-checked-by-callers) symbol payload.
func guardCRC(data []byte, coeLen int) byte {
	h := crc8.NewATM()
	h.Write(data[:8+coeLen])
	return h.Sum(nil)[0]
}

// SerializeGuarded is Serialize plus a trailing CRC-8 guard byte over the
// header and coefficient vector.
func SerializeGuarded(pkt *Packet, p *params.Params) ([]byte, error) {
	data, err := Serialize(pkt, p)
	if err != nil {
		return nil, err
	}
	coeLen := gf.PackedLen(p.SizeG, p.GFPower)
	return append(data, guardCRC(data, coeLen)), nil
}

// DeserializeGuarded verifies and strips the CRC-8 guard byte appended by
// SerializeGuarded, returning a framing error if the guard does not match
// (spec.md §7 item 3: recoverable locally, not a panic).
func DeserializeGuarded(data []byte, p *params.Params) (*Packet, error) {
	want := Length(p) + 1
	if len(data) != want {
		return nil, errutil.Newf("packet: DeserializeGuarded: got %d bytes, want %d", len(data), want)
	}
	body := data[:len(data)-1]
	coeLen := gf.PackedLen(p.SizeG, p.GFPower)
	if guardCRC(body, coeLen) != data[len(data)-1] {
		return nil, errutil.Newf("packet: DeserializeGuarded: CRC-8 guard mismatch (framing error)")
	}
	return Deserialize(body, p)
}
