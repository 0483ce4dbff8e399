package partition

import (
	"errors"

	"github.com/tickvault/tickvault/instrument"
	"github.com/tickvault/tickvault/marketdata"
)

var (
	// ErrSchemaMismatch is returned when records mix kinds or instruments,
	// or when a file's declared kind does not match the requested kind
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrOutOfOrder is returned when ts_init regresses within a write batch
	ErrOutOfOrder = errors.New("records out of order")
	// ErrNoRecords is returned when writing an empty batch
	ErrNoRecords = errors.New("no records to write")
	// ErrPrecisionLoss is returned when a value cannot be represented at the
	// instrument's declared precision
	ErrPrecisionLoss = errors.New("value exceeds declared precision")
	// ErrBadFormat is returned when a file is not a valid partition
	ErrBadFormat = errors.New("malformed partition file")
)

// Ref identifies one immutable partition file and the span it covers
type Ref struct {
	Path       string          `json:"path"`
	Kind       marketdata.Kind `json:"kind"`
	Instrument instrument.ID   `json:"instrument"`
	MinTS      int64           `json:"min_ts"`
	MaxTS      int64           `json:"max_ts"`
	Records    uint32          `json:"records"`
}

// Intersects reports whether the partition span overlaps [start, end).
// Partition spans are inclusive of both bounds
func (r *Ref) Intersects(start, end int64) bool {
	return r.MinTS < end && r.MaxTS >= start
}

// File format, little endian throughout:
//
//	magic "TVP1" | version uint16 | kind uint8
//	meta count uint16 | {key,value} length prefixed strings
//	record count uint32 | min ts int64 | max ts int64
//	per column, in layout order: name | type uint8 | raw len uint32 | compressed len uint32 | zstd block
//
// Int64 and fixed point columns encode 8 bytes per value, uint8 columns one
// byte per value, string columns a uint32 length prefix per value.
const (
	formatVersion uint16 = 1
	fileExt              = ".tvp"
)

var magic = [4]byte{'T', 'V', 'P', '1'}
