package decoder

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/mewkiz/pkg/hashutil/crc16"
	"github.com/pkg/errors"
	"github.com/sparsenc/sparsenc-go/params"
	"github.com/sparsenc/sparsenc-go/plan"
	"github.com/sparsenc/sparsenc-go/precode"
)

// checkpointVersion is the leading format byte. The restore side only
// knows how to read this exact version; an older or newer byte is a
// framing error rather than an attempt at cross-version migration (the
// Open Question resolved this way, see DESIGN.md: cross-version restore
// is intentionally left undefined by spec.md §6.3, and guarding on the
// version byte turns silent corruption into a clear error).
const checkpointVersion = 1

// Save serializes d's full recoverable state: every decoder variant in
// this package also implements an internal checkpointer, added purely so
// Save/Restore stay in one place instead of duplicated per variant.
func Save(w io.Writer, d Decoder) error {
	cp, ok := d.(checkpointer)
	if !ok {
		return errors.Errorf("decoder: %T does not support checkpointing", d)
	}
	var buf bytes.Buffer
	buf.WriteByte(checkpointVersion)
	buf.WriteByte(byte(d.Kind()))
	writeCounters(&buf, d)
	if err := cp.writeState(&buf); err != nil {
		return errors.Wrap(err, "decoder: Save")
	}
	sum := crc16.ChecksumIBM(buf.Bytes())
	if err := binary.Write(&buf, binary.LittleEndian, sum); err != nil {
		return errors.Wrap(err, "decoder: Save: writing trailer")
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "decoder: Save: writing checkpoint")
	}
	return nil
}

// Restore rebuilds a decoder from a checkpoint produced by Save. p, pl and
// g must match the session the checkpoint was taken from; the caller is
// responsible for ensuring that (spec.md §6.3: restore does not attempt to
// re-derive params from the checkpoint itself).
func Restore(r io.Reader, p *params.Params, pl *plan.Plan, g *precode.Graph) (Decoder, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "decoder: Restore: reading checkpoint")
	}
	if len(data) < 4 {
		return nil, errors.New("decoder: Restore: checkpoint too short")
	}
	body, trailer := data[:len(data)-2], data[len(data)-2:]
	want := binary.LittleEndian.Uint16(trailer)
	if got := crc16.ChecksumIBM(body); got != want {
		return nil, errors.New("decoder: Restore: checkpoint trailer CRC mismatch")
	}

	br := bytes.NewReader(body)
	ver, err := br.ReadByte()
	if err != nil {
		return nil, errors.Wrap(err, "decoder: Restore")
	}
	if ver != checkpointVersion {
		return nil, errors.Errorf("decoder: Restore: unsupported checkpoint version %d", ver)
	}
	kindByte, err := br.ReadByte()
	if err != nil {
		return nil, errors.Wrap(err, "decoder: Restore")
	}
	kind := Kind(kindByte)

	d, err := New(p, pl, g, kind)
	if err != nil {
		return nil, errors.Wrap(err, "decoder: Restore")
	}
	if err := readCounters(br, d); err != nil {
		return nil, errors.Wrap(err, "decoder: Restore")
	}
	cp, ok := d.(checkpointer)
	if !ok {
		return nil, errors.Errorf("decoder: %T does not support checkpointing", d)
	}
	if err := cp.readState(br, p); err != nil {
		return nil, errors.Wrap(err, "decoder: Restore")
	}
	return d, nil
}

// checkpointer is implemented by every concrete decoder variant, adding
// the state Save/Restore can't reach through the public Decoder interface.
type checkpointer interface {
	writeState(w io.Writer) error
	readState(r io.Reader, p *params.Params) error
}

func writeCounters(w io.Writer, d Decoder) {
	b := baseOf(d)
	binary.Write(w, binary.LittleEndian, int64(b.dof))
	binary.Write(w, binary.LittleEndian, int64(b.received))
	binary.Write(w, binary.LittleEndian, int64(b.overheadN))
	binary.Write(w, binary.LittleEndian, b.operations)
	binary.Write(w, binary.LittleEndian, int32(b.state))
}

func readCounters(r io.Reader, d Decoder) error {
	b := baseOf(d)
	var dof, received, overheadN, operations int64
	var state int32
	for _, v := range []interface{}{&dof, &received, &overheadN, &operations, &state} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	b.dof = int(dof)
	b.received = int(received)
	b.overheadN = int(overheadN)
	b.operations = operations
	b.state = State(state)
	return nil
}

// baseOf reaches into a concrete decoder's embedded base. Every variant in
// this package embeds base by value, so this is a small closed type switch
// rather than reflection.
func baseOf(d Decoder) *base {
	switch v := d.(type) {
	case *GGDecoder:
		return &v.base
	case *BDDecoder:
		return &v.base
	case *CBDDecoder:
		return &v.base
	case *OADecoder:
		return &v.base
	case *PPDecoder:
		return &v.base
	default:
		panic("decoder: baseOf: unknown decoder type")
	}
}

func writePP(w io.Writer, pp [][]byte, sizeP int) error {
	for _, v := range pp {
		known := v != nil
		if err := binary.Write(w, binary.LittleEndian, known); err != nil {
			return err
		}
		if known {
			if _, err := w.Write(v); err != nil {
				return err
			}
		}
	}
	return nil
}

func readPP(r io.Reader, numpp, sizeP int) ([][]byte, error) {
	pp := make([][]byte, numpp)
	for i := range pp {
		var known bool
		if err := binary.Read(r, binary.LittleEndian, &known); err != nil {
			return nil, err
		}
		if known {
			v := make([]byte, sizeP)
			if _, err := io.ReadFull(r, v); err != nil {
				return nil, err
			}
			pp[i] = v
		}
	}
	return pp, nil
}

// writeBandRows serializes m's installed pivot rows plus, when a precode is
// in play, the evolving-checks bookkeeping shared by BD/CBD/OA/PP (spec.md
// §6.3 "evolving checks, check degrees" — the same fields GG's checkpoint
// carries, since every band-matrix variant runs the identical precode
// update through bandMatrix.updatePrecode).
func writeBandRows(w io.Writer, m *bandMatrix) error {
	if err := binary.Write(w, binary.LittleEndian, int32(len(m.pivot))); err != nil {
		return err
	}
	for col, row := range m.pivot {
		if err := binary.Write(w, binary.LittleEndian, int32(col)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, int32(len(row.coefs))); err != nil {
			return err
		}
		for k, v := range row.coefs {
			if err := binary.Write(w, binary.LittleEndian, int32(k)); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, v); err != nil {
				return err
			}
		}
		if _, err := w.Write(row.msg); err != nil {
			return err
		}
	}
	if m.p.Cnum == 0 {
		return nil
	}
	for c := 0; c < m.p.Cnum; c++ {
		if _, err := w.Write(m.evolvingChecks[c]); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, int32(m.checkDegrees[c])); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, m.checkKnown[c]); err != nil {
			return err
		}
	}
	return nil
}

func readBandRows(r io.Reader, m *bandMatrix) error {
	var nrows int32
	if err := binary.Read(r, binary.LittleEndian, &nrows); err != nil {
		return err
	}
	for i := int32(0); i < nrows; i++ {
		var col, n int32
		if err := binary.Read(r, binary.LittleEndian, &col); err != nil {
			return err
		}
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return err
		}
		coefs := make(map[int]byte, n)
		for j := int32(0); j < n; j++ {
			var k int32
			var v byte
			if err := binary.Read(r, binary.LittleEndian, &k); err != nil {
				return err
			}
			if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
				return err
			}
			coefs[int(k)] = v
		}
		msg := make([]byte, m.p.SizeP)
		if _, err := io.ReadFull(r, msg); err != nil {
			return err
		}
		m.pivot[int(col)] = &bandRow{coefs: coefs, msg: msg}
		m.rank++
	}
	if m.p.Cnum == 0 {
		return nil
	}
	for c := 0; c < m.p.Cnum; c++ {
		val := make([]byte, m.p.SizeP)
		if _, err := io.ReadFull(r, val); err != nil {
			return err
		}
		m.evolvingChecks[c] = val
		var degree int32
		if err := binary.Read(r, binary.LittleEndian, &degree); err != nil {
			return err
		}
		m.checkDegrees[c] = int(degree)
		var known bool
		if err := binary.Read(r, binary.LittleEndian, &known); err != nil {
			return err
		}
		m.checkKnown[c] = known
	}
	return nil
}

func (d *BDDecoder) writeState(w io.Writer) error {
	if err := writePP(w, d.m.pp, d.p.SizeP); err != nil {
		return err
	}
	return writeBandRows(w, d.m)
}

func (d *BDDecoder) readState(r io.Reader, p *params.Params) error {
	pp, err := readPP(r, p.Numpp, p.SizeP)
	if err != nil {
		return err
	}
	d.m.pp = pp
	return readBandRows(r, d.m)
}

func (d *CBDDecoder) writeState(w io.Writer) error {
	if err := writePP(w, d.m.pp, d.p.SizeP); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(d.peakRowSpan)); err != nil {
		return err
	}
	return writeBandRows(w, d.m)
}

func (d *CBDDecoder) readState(r io.Reader, p *params.Params) error {
	pp, err := readPP(r, p.Numpp, p.SizeP)
	if err != nil {
		return err
	}
	d.m.pp = pp
	var span int32
	if err := binary.Read(r, binary.LittleEndian, &span); err != nil {
		return err
	}
	d.peakRowSpan = int(span)
	return readBandRows(r, d.m)
}

func (d *OADecoder) writeState(w io.Writer) error {
	if err := writePP(w, d.m.pp, d.p.SizeP); err != nil {
		return err
	}
	return writeBandRows(w, d.m)
}

func (d *OADecoder) readState(r io.Reader, p *params.Params) error {
	pp, err := readPP(r, p.Numpp, p.SizeP)
	if err != nil {
		return err
	}
	d.m.pp = pp
	return readBandRows(r, d.m)
}

func (d *PPDecoder) writeState(w io.Writer) error {
	if err := writePP(w, d.m.pp, d.p.SizeP); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(d.rotate)); err != nil {
		return err
	}
	return writeBandRows(w, d.m)
}

func (d *PPDecoder) readState(r io.Reader, p *params.Params) error {
	pp, err := readPP(r, p.Numpp, p.SizeP)
	if err != nil {
		return err
	}
	d.m.pp = pp
	var rotate int32
	if err := binary.Read(r, binary.LittleEndian, &rotate); err != nil {
		return err
	}
	d.rotate = int(rotate)
	return readBandRows(r, d.m)
}

// writeState/readState for GGDecoder serialize pp, every subgeneration's
// installed rows, and — when a precode is in play — the evolving-checks
// bookkeeping of spec.md §4.7.1, per §6.3's "evolving checks, check
// degrees, recent-ids list".
func (d *GGDecoder) writeState(w io.Writer) error {
	if err := writePP(w, d.pp, d.p.SizeP); err != nil {
		return err
	}
	for _, sub := range d.sg {
		n := len(sub.ids)
		for j := 0; j < n; j++ {
			present := sub.rows[j] != nil
			if err := binary.Write(w, binary.LittleEndian, present); err != nil {
				return err
			}
			if !present {
				continue
			}
			if _, err := w.Write(sub.rows[j]); err != nil {
				return err
			}
			if _, err := w.Write(sub.msgs[j]); err != nil {
				return err
			}
		}
	}
	if d.p.Cnum == 0 {
		return nil
	}
	for c := 0; c < d.p.Cnum; c++ {
		if _, err := w.Write(d.evolvingChecks[c]); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, int32(d.checkDegrees[c])); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, d.checkKnown[c]); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, int32(len(d.recent))); err != nil {
		return err
	}
	for _, id := range d.recent {
		if err := binary.Write(w, binary.LittleEndian, int32(id)); err != nil {
			return err
		}
	}
	return nil
}

func (d *GGDecoder) readState(r io.Reader, p *params.Params) error {
	pp, err := readPP(r, p.Numpp, p.SizeP)
	if err != nil {
		return err
	}
	d.pp = pp
	for _, sub := range d.sg {
		n := len(sub.ids)
		for j := 0; j < n; j++ {
			var present bool
			if err := binary.Read(r, binary.LittleEndian, &present); err != nil {
				return err
			}
			if !present {
				continue
			}
			row := make([]byte, n)
			if _, err := io.ReadFull(r, row); err != nil {
				return err
			}
			msg := make([]byte, p.SizeP)
			if _, err := io.ReadFull(r, msg); err != nil {
				return err
			}
			sub.rows[j] = row
			sub.msgs[j] = msg
			sub.dofMiss--
			if row[j] == 1 && isUnit(row, j) {
				sub.recovered[j] = true
			}
		}
	}
	if p.Cnum == 0 {
		return nil
	}
	for c := 0; c < p.Cnum; c++ {
		val := make([]byte, p.SizeP)
		if _, err := io.ReadFull(r, val); err != nil {
			return err
		}
		d.evolvingChecks[c] = val
		var degree int32
		if err := binary.Read(r, binary.LittleEndian, &degree); err != nil {
			return err
		}
		d.checkDegrees[c] = int(degree)
		var known bool
		if err := binary.Read(r, binary.LittleEndian, &known); err != nil {
			return err
		}
		d.checkKnown[c] = known
	}
	var nrecent int32
	if err := binary.Read(r, binary.LittleEndian, &nrecent); err != nil {
		return err
	}
	d.recent = make([]int, nrecent)
	for i := range d.recent {
		var id int32
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return err
		}
		d.recent[i] = int(id)
	}
	return nil
}

func isUnit(row []byte, pivot int) bool {
	for k, v := range row {
		if k == pivot {
			continue
		}
		if v != 0 {
			return false
		}
	}
	return true
}
