package partition

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/tickvault/tickvault/catalog/schema"
	"github.com/tickvault/tickvault/instrument"
	"github.com/tickvault/tickvault/marketdata"
)

// Reader is a restartable cursor over one partition file. The file is
// decoded once at Open; Next materializes records one at a time so the
// same Reader can be rewound with Reset and re-reads yield the identical
// sequence
type Reader struct {
	ref    Ref
	meta   map[string]string
	layout schema.Layout

	pricePrec int32
	sizePrec  int32
	barSpec   string

	cols   []columnData
	cursor uint32
}

type columnData struct {
	typ   schema.ColumnType
	ints  []int64
	bytes []uint8
	strs  []string
}

// Open decodes a partition file's header and column blocks
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", os.ErrNotExist, path)
		}
		return nil, err
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	r := &Reader{ref: Ref{Path: path}}
	if err = r.decode(raw); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// OpenKind opens a partition and rejects it when the declared kind does not
// match the requested one
func OpenKind(path string, kind marketdata.Kind) (*Reader, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	if r.ref.Kind != kind {
		return nil, fmt.Errorf("%w: file %s holds %v, requested %v", ErrSchemaMismatch, path, r.ref.Kind, kind)
	}
	return r, nil
}

// Ref returns the reference describing this partition
func (r *Reader) Ref() Ref { return r.ref }

// Kind returns the record kind declared in the file header
func (r *Reader) Kind() marketdata.Kind { return r.ref.Kind }

// Metadata returns the header key value pairs
func (r *Reader) Metadata() map[string]string {
	out := make(map[string]string, len(r.meta))
	for k, v := range r.meta {
		out[k] = v
	}
	return out
}

// Records returns the number of records held
func (r *Reader) Records() uint32 { return r.ref.Records }

// Reset rewinds the cursor to the first record
func (r *Reader) Reset() { r.cursor = 0 }

// Next returns the next record, or false when the partition is exhausted
func (r *Reader) Next() (marketdata.Record, bool) {
	if r.cursor >= r.ref.Records {
		return nil, false
	}
	i := r.cursor
	r.cursor++
	return r.materialize(i), true
}

func (r *Reader) materialize(i uint32) marketdata.Record {
	switch r.ref.Kind {
	case marketdata.QuoteKind:
		return &marketdata.Quote{
			Instrument: r.ref.Instrument,
			TSEvent:    r.cols[0].ints[i],
			TSInit:     r.cols[1].ints[i],
			Bid:        decimal.New(r.cols[2].ints[i], -r.pricePrec),
			Ask:        decimal.New(r.cols[3].ints[i], -r.pricePrec),
			BidSize:    decimal.New(r.cols[4].ints[i], -r.sizePrec),
			AskSize:    decimal.New(r.cols[5].ints[i], -r.sizePrec),
		}
	case marketdata.TradeKind:
		return &marketdata.Trade{
			Instrument: r.ref.Instrument,
			TSEvent:    r.cols[0].ints[i],
			TSInit:     r.cols[1].ints[i],
			Price:      decimal.New(r.cols[2].ints[i], -r.pricePrec),
			Size:       decimal.New(r.cols[3].ints[i], -r.sizePrec),
			Aggressor:  marketdata.AggressorSide(r.cols[4].bytes[i]),
			TradeID:    r.cols[5].strs[i],
		}
	default:
		return &marketdata.Bar{
			Instrument: r.ref.Instrument,
			TSEvent:    r.cols[0].ints[i],
			TSInit:     r.cols[1].ints[i],
			Open:       decimal.New(r.cols[2].ints[i], -r.pricePrec),
			High:       decimal.New(r.cols[3].ints[i], -r.pricePrec),
			Low:        decimal.New(r.cols[4].ints[i], -r.pricePrec),
			Close:      decimal.New(r.cols[5].ints[i], -r.pricePrec),
			Volume:     decimal.New(r.cols[6].ints[i], -r.sizePrec),
			Spec:       r.barSpec,
		}
	}
}

func (r *Reader) decode(raw []byte) error {
	d := &decoder{buf: raw}
	var m [4]byte
	d.read(m[:])
	if m != magic {
		return fmt.Errorf("%w: bad magic", ErrBadFormat)
	}
	if v := d.uint16(); v != formatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrBadFormat, v)
	}
	r.ref.Kind = marketdata.Kind(d.uint8())

	metaCount := int(d.uint16())
	r.meta = make(map[string]string, metaCount)
	for i := 0; i < metaCount; i++ {
		k := d.string16()
		r.meta[k] = d.string16()
	}
	r.ref.Records = d.uint32()
	r.ref.MinTS = int64(d.uint64())
	r.ref.MaxTS = int64(d.uint64())
	if d.err != nil {
		return fmt.Errorf("%w: truncated header", ErrBadFormat)
	}

	if err := schema.Validate(r.ref.Kind, r.meta); err != nil {
		return err
	}
	layout, err := schema.For(r.ref.Kind)
	if err != nil {
		return err
	}
	r.layout = layout
	r.ref.Instrument, err = instrument.ParseID(r.meta[schema.MetaInstrumentID])
	if err != nil {
		return err
	}
	pp, _ := strconv.ParseInt(r.meta[schema.MetaPricePrecision], 10, 32)
	sp, _ := strconv.ParseInt(r.meta[schema.MetaSizePrecision], 10, 32)
	r.pricePrec = int32(pp)
	r.sizePrec = int32(sp)
	r.barSpec = r.meta[schema.MetaBarSpec]

	r.cols = make([]columnData, len(layout.Columns))
	for i := range layout.Columns {
		if err = r.decodeColumn(d, i); err != nil {
			return err
		}
	}
	if d.err != nil {
		return fmt.Errorf("%w: truncated column data", ErrBadFormat)
	}
	return nil
}

func (r *Reader) decodeColumn(d *decoder, i int) error {
	name := d.string16()
	typ := schema.ColumnType(d.uint8())
	rawLen := d.uint32()
	blockLen := d.uint32()
	block := d.bytes(int(blockLen))
	if d.err != nil {
		return fmt.Errorf("%w: truncated column %q", ErrBadFormat, name)
	}
	want := r.layout.Columns[i]
	if name != want.Name || typ != want.Type {
		return fmt.Errorf("%w: column %d is %q/%d, want %q/%d",
			ErrSchemaMismatch, i, name, typ, want.Name, want.Type)
	}
	raw, err := zdec.DecodeAll(block, make([]byte, 0, rawLen))
	if err != nil {
		return fmt.Errorf("%w: column %q: %v", ErrBadFormat, name, err)
	}
	if uint32(len(raw)) != rawLen {
		return fmt.Errorf("%w: column %q length %d, want %d", ErrBadFormat, name, len(raw), rawLen)
	}

	n := int(r.ref.Records)
	col := &r.cols[i]
	col.typ = typ
	switch typ {
	case schema.Uint8:
		if len(raw) != n {
			return fmt.Errorf("%w: column %q holds %d values, want %d", ErrBadFormat, name, len(raw), n)
		}
		col.bytes = raw
	case schema.String:
		col.strs = make([]string, 0, n)
		for off := 0; off < len(raw); {
			if off+4 > len(raw) {
				return fmt.Errorf("%w: column %q truncated", ErrBadFormat, name)
			}
			l := int(binary.LittleEndian.Uint32(raw[off:]))
			off += 4
			if off+l > len(raw) {
				return fmt.Errorf("%w: column %q truncated", ErrBadFormat, name)
			}
			col.strs = append(col.strs, string(raw[off:off+l]))
			off += l
		}
		if len(col.strs) != n {
			return fmt.Errorf("%w: column %q holds %d values, want %d", ErrBadFormat, name, len(col.strs), n)
		}
	default:
		if len(raw) != 8*n {
			return fmt.Errorf("%w: column %q holds %d bytes, want %d", ErrBadFormat, name, len(raw), 8*n)
		}
		col.ints = make([]int64, n)
		for j := 0; j < n; j++ {
			col.ints[j] = int64(binary.LittleEndian.Uint64(raw[j*8:]))
		}
	}
	return nil
}

// decoder is a cursor over the raw file bytes with sticky error handling
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) read(dst []byte) {
	if d.err != nil {
		return
	}
	if d.off+len(dst) > len(d.buf) {
		d.err = io.ErrUnexpectedEOF
		return
	}
	copy(dst, d.buf[d.off:])
	d.off += len(dst)
}

func (d *decoder) bytes(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.off+n > len(d.buf) {
		d.err = io.ErrUnexpectedEOF
		return nil
	}
	out := d.buf[d.off : d.off+n]
	d.off += n
	return out
}

func (d *decoder) uint8() uint8 {
	b := d.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) uint16() uint16 {
	b := d.bytes(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *decoder) uint32() uint32 {
	b := d.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) uint64() uint64 {
	b := d.bytes(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *decoder) string16() string {
	n := d.uint16()
	b := d.bytes(int(n))
	return string(b)
}
