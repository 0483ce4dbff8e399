// Package partition serializes batches of time ordered market data records
// into immutable columnar files and streams them back out. Files are never
// mutated after creation; corrections are written as new partitions and the
// old ones retired through the catalog.
package partition

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/shopspring/decimal"
	"github.com/tickvault/tickvault/catalog/schema"
	"github.com/tickvault/tickvault/instrument"
	"github.com/tickvault/tickvault/marketdata"
)

var (
	zenc, _ = zstd.NewWriter(nil)
	zdec, _ = zstd.NewReader(nil)
)

type columnBuf struct {
	typ   schema.ColumnType
	ints  []int64
	bytes []uint8
	strs  []string
}

// Write serializes records of one kind for one instrument into a new
// partition file under dir. Records must be pre-sorted ascending by ts_init;
// equal timestamps keep their batch order. The write is atomic, no partial
// partition is ever left on disk
func Write(dir string, inst instrument.Instrument, kind marketdata.Kind, records []marketdata.Record) (Ref, error) {
	if len(records) == 0 {
		return Ref{}, ErrNoRecords
	}
	layout, err := schema.For(kind)
	if err != nil {
		return Ref{}, err
	}
	if err = inst.Validate(); err != nil {
		return Ref{}, err
	}

	cols := make([]columnBuf, len(layout.Columns))
	for i := range layout.Columns {
		cols[i].typ = layout.Columns[i].Type
	}

	var barSpec string
	lastTS := records[0].InitTime()
	for i, r := range records {
		if r.Kind() != kind {
			return Ref{}, fmt.Errorf("%w: record %d is %v, want %v", ErrSchemaMismatch, i, r.Kind(), kind)
		}
		if r.InstrumentID() != inst.ID {
			return Ref{}, fmt.Errorf("%w: record %d is for %v, want %v", ErrSchemaMismatch, i, r.InstrumentID(), inst.ID)
		}
		if r.InitTime() < lastTS {
			return Ref{}, fmt.Errorf("%w: record %d ts_init %d after %d", ErrOutOfOrder, i, r.InitTime(), lastTS)
		}
		lastTS = r.InitTime()
		if b, ok := r.(*marketdata.Bar); ok {
			if barSpec == "" {
				barSpec = b.Spec
			} else if b.Spec != barSpec {
				return Ref{}, fmt.Errorf("%w: mixed bar specs %q and %q", ErrSchemaMismatch, barSpec, b.Spec)
			}
		}
		if err = appendRecord(cols, &inst, r); err != nil {
			return Ref{}, fmt.Errorf("record %d: %w", i, err)
		}
	}

	meta := map[string]string{
		schema.MetaInstrumentID:   inst.ID.String(),
		schema.MetaPricePrecision: strconv.FormatInt(int64(inst.PricePrecision), 10),
		schema.MetaSizePrecision:  strconv.FormatInt(int64(inst.SizePrecision), 10),
	}
	if barSpec != "" {
		meta[schema.MetaBarSpec] = barSpec
	}

	ref := Ref{
		Kind:       kind,
		Instrument: inst.ID,
		MinTS:      records[0].InitTime(),
		MaxTS:      records[len(records)-1].InitTime(),
		Records:    uint32(len(records)),
	}
	ref.Path, err = persist(dir, &ref, layout, cols, meta)
	if err != nil {
		return Ref{}, err
	}
	return ref, nil
}

func appendRecord(cols []columnBuf, inst *instrument.Instrument, r marketdata.Record) error {
	switch rec := r.(type) {
	case *marketdata.Quote:
		cols[0].ints = append(cols[0].ints, rec.TSEvent)
		cols[1].ints = append(cols[1].ints, rec.TSInit)
		for i, v := range []decimal.Decimal{rec.Bid, rec.Ask} {
			m, err := mantissa(v, inst.PricePrecision)
			if err != nil {
				return err
			}
			cols[2+i].ints = append(cols[2+i].ints, m)
		}
		for i, v := range []decimal.Decimal{rec.BidSize, rec.AskSize} {
			m, err := mantissa(v, inst.SizePrecision)
			if err != nil {
				return err
			}
			cols[4+i].ints = append(cols[4+i].ints, m)
		}
	case *marketdata.Trade:
		cols[0].ints = append(cols[0].ints, rec.TSEvent)
		cols[1].ints = append(cols[1].ints, rec.TSInit)
		p, err := mantissa(rec.Price, inst.PricePrecision)
		if err != nil {
			return err
		}
		s, err := mantissa(rec.Size, inst.SizePrecision)
		if err != nil {
			return err
		}
		cols[2].ints = append(cols[2].ints, p)
		cols[3].ints = append(cols[3].ints, s)
		cols[4].bytes = append(cols[4].bytes, uint8(rec.Aggressor))
		cols[5].strs = append(cols[5].strs, rec.TradeID)
	case *marketdata.Bar:
		cols[0].ints = append(cols[0].ints, rec.TSEvent)
		cols[1].ints = append(cols[1].ints, rec.TSInit)
		for i, v := range []decimal.Decimal{rec.Open, rec.High, rec.Low, rec.Close} {
			m, err := mantissa(v, inst.PricePrecision)
			if err != nil {
				return err
			}
			cols[2+i].ints = append(cols[2+i].ints, m)
		}
		vol, err := mantissa(rec.Volume, inst.SizePrecision)
		if err != nil {
			return err
		}
		cols[6].ints = append(cols[6].ints, vol)
	default:
		return fmt.Errorf("%w: unhandled record type %T", ErrSchemaMismatch, r)
	}
	return nil
}

// mantissa converts a decimal to its fixed point representation at the
// declared precision, rejecting values that would lose digits
func mantissa(v decimal.Decimal, precision int32) (int64, error) {
	shifted := v.Shift(precision)
	i := shifted.IntPart()
	if !decimal.New(i, 0).Equal(shifted) {
		return 0, fmt.Errorf("%w: %v at precision %d", ErrPrecisionLoss, v, precision)
	}
	return i, nil
}

func persist(dir string, ref *Ref, layout schema.Layout, cols []columnBuf, meta map[string]string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, ".tvp-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	buf := bufio.NewWriter(tmp)
	if err = writeHeader(buf, ref, meta); err != nil {
		cleanup()
		return "", err
	}
	for i := range cols {
		if err = writeColumn(buf, layout.Columns[i], &cols[i]); err != nil {
			cleanup()
			return "", err
		}
	}
	if err = buf.Flush(); err != nil {
		cleanup()
		return "", err
	}
	if err = tmp.Sync(); err != nil {
		cleanup()
		return "", err
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}

	// the name is claimed with O_EXCL before the rename so a second write
	// of the same kind and span within one clock tick can never overwrite
	// an existing partition
	stamp := time.Now().UTC().UnixNano()
	for {
		name := fmt.Sprintf("%v-%d-%d-%d%s", ref.Kind, ref.MinTS, ref.MaxTS, stamp, fileExt)
		final := filepath.Join(dir, name)
		claim, err := os.OpenFile(final, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				stamp++
				continue
			}
			os.Remove(tmpName)
			return "", err
		}
		claim.Close()
		if err = os.Rename(tmpName, final); err != nil {
			os.Remove(final)
			os.Remove(tmpName)
			return "", err
		}
		return final, nil
	}
}

func writeHeader(w *bufio.Writer, ref *Ref, meta map[string]string) error {
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, formatVersion); err != nil {
		return err
	}
	if err := w.WriteByte(byte(ref.Kind)); err != nil {
		return err
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	// deterministic header bytes
	sort.Strings(keys)
	if err := binary.Write(w, binary.LittleEndian, uint16(len(keys))); err != nil {
		return err
	}
	for _, k := range keys {
		if err := writeString16(w, k); err != nil {
			return err
		}
		if err := writeString16(w, meta[k]); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, ref.Records); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, ref.MinTS); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, ref.MaxTS)
}

func writeColumn(w *bufio.Writer, col schema.Column, buf *columnBuf) error {
	raw := encodeColumn(buf)
	block := zenc.EncodeAll(raw, nil)
	if err := writeString16(w, col.Name); err != nil {
		return err
	}
	if err := w.WriteByte(byte(col.Type)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(raw))); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(block))); err != nil {
		return err
	}
	_, err := w.Write(block)
	return err
}

func encodeColumn(buf *columnBuf) []byte {
	switch buf.typ {
	case schema.Uint8:
		return append([]byte(nil), buf.bytes...)
	case schema.String:
		var out []byte
		var scratch [4]byte
		for _, s := range buf.strs {
			binary.LittleEndian.PutUint32(scratch[:], uint32(len(s)))
			out = append(out, scratch[:]...)
			out = append(out, s...)
		}
		return out
	default:
		out := make([]byte, 8*len(buf.ints))
		for i, v := range buf.ints {
			binary.LittleEndian.PutUint64(out[i*8:], uint64(v))
		}
		return out
	}
}

func writeString16(w *bufio.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}
