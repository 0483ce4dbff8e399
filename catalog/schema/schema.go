// Package schema maps each market data kind to its fixed columnar layout
// and the scalar metadata a partition header must carry.
package schema

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/tickvault/tickvault/marketdata"
)

var (
	// ErrUnknownKind is returned when no layout exists for a kind
	ErrUnknownKind = errors.New("no schema registered for kind")
	// ErrMissingMetadata is returned when required partition metadata is absent
	ErrMissingMetadata = errors.New("missing partition metadata")
	// ErrInvalidMetadata is returned when partition metadata fails to parse
	ErrInvalidMetadata = errors.New("invalid partition metadata")
)

// ColumnType is the physical storage type of one column
type ColumnType uint8

// Physical column types. Price and size columns store int64 fixed point
// mantissas scaled by the instrument's declared precision
const (
	Int64 ColumnType = iota + 1
	PriceFixedPoint
	SizeFixedPoint
	Uint8
	String
)

// Column describes one column of a partition
type Column struct {
	Name string
	Type ColumnType
}

// Layout is the full columnar layout for one record kind
type Layout struct {
	Kind    marketdata.Kind
	Columns []Column
}

// Metadata keys embedded in every partition header
const (
	MetaInstrumentID   = "instrument_id"
	MetaPricePrecision = "price_precision"
	MetaSizePrecision  = "size_precision"
	MetaBarSpec        = "bar_spec"
)

var layouts = map[marketdata.Kind]Layout{
	marketdata.QuoteKind: {
		Kind: marketdata.QuoteKind,
		Columns: []Column{
			{Name: "ts_event", Type: Int64},
			{Name: "ts_init", Type: Int64},
			{Name: "bid", Type: PriceFixedPoint},
			{Name: "ask", Type: PriceFixedPoint},
			{Name: "bid_size", Type: SizeFixedPoint},
			{Name: "ask_size", Type: SizeFixedPoint},
		},
	},
	marketdata.TradeKind: {
		Kind: marketdata.TradeKind,
		Columns: []Column{
			{Name: "ts_event", Type: Int64},
			{Name: "ts_init", Type: Int64},
			{Name: "price", Type: PriceFixedPoint},
			{Name: "size", Type: SizeFixedPoint},
			{Name: "aggressor", Type: Uint8},
			{Name: "trade_id", Type: String},
		},
	},
	marketdata.BarKind: {
		Kind: marketdata.BarKind,
		Columns: []Column{
			{Name: "ts_event", Type: Int64},
			{Name: "ts_init", Type: Int64},
			{Name: "open", Type: PriceFixedPoint},
			{Name: "high", Type: PriceFixedPoint},
			{Name: "low", Type: PriceFixedPoint},
			{Name: "close", Type: PriceFixedPoint},
			{Name: "volume", Type: SizeFixedPoint},
		},
	},
}

// For returns the layout for a record kind
func For(kind marketdata.Kind) (Layout, error) {
	l, ok := layouts[kind]
	if !ok {
		return Layout{}, fmt.Errorf("%w: %v", ErrUnknownKind, kind)
	}
	return l, nil
}

// Validate checks that partition metadata carries everything a reader
// needs to reconstruct records of the given kind
func Validate(kind marketdata.Kind, meta map[string]string) error {
	if _, ok := layouts[kind]; !ok {
		return fmt.Errorf("%w: %v", ErrUnknownKind, kind)
	}
	required := []string{MetaInstrumentID, MetaPricePrecision, MetaSizePrecision}
	for _, k := range required {
		v, ok := meta[k]
		if !ok || v == "" {
			return fmt.Errorf("%w: %s", ErrMissingMetadata, k)
		}
	}
	for _, k := range []string{MetaPricePrecision, MetaSizePrecision} {
		p, err := strconv.ParseInt(meta[k], 10, 32)
		if err != nil || p < 0 {
			return fmt.Errorf("%w: %s=%q", ErrInvalidMetadata, k, meta[k])
		}
	}
	return nil
}
