package marketdata

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/tickvault/tickvault/instrument"
)

// ErrUnknownKind is returned when parsing an unrecognised data kind
var ErrUnknownKind = errors.New("unknown market data kind")

// Kind enumerates the supported market data record kinds
type Kind uint8

// Supported record kinds
const (
	UnknownKind Kind = iota
	QuoteKind
	TradeKind
	BarKind
)

// AggressorSide describes which side initiated a trade
type AggressorSide uint8

// Aggressor sides
const (
	NoAggressor AggressorSide = iota
	AggressorBuy
	AggressorSell
)

// Record is the interface shared by all market data variants. TSEvent is
// the time the event occurred at its source, TSInit the time it was
// ingested locally, both in nanoseconds. TSInit is the ordering key
// throughout the catalog and replay engine
type Record interface {
	Kind() Kind
	InstrumentID() instrument.ID
	EventTime() int64
	InitTime() int64
	// Equal reports whether the payload is identical, timestamps included
	Equal(Record) bool
}

// Quote is a top of book update
type Quote struct {
	Instrument instrument.ID
	Bid        decimal.Decimal
	Ask        decimal.Decimal
	BidSize    decimal.Decimal
	AskSize    decimal.Decimal
	TSEvent    int64
	TSInit     int64
}

// Trade is a single executed trade
type Trade struct {
	Instrument instrument.ID
	Price      decimal.Decimal
	Size       decimal.Decimal
	Aggressor  AggressorSide
	TradeID    string
	TSEvent    int64
	TSInit     int64
}

// Bar is an aggregated OHLCV interval. Spec carries the bar specification
// string, eg "1-HOUR-LAST"
type Bar struct {
	Instrument instrument.ID
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	Volume     decimal.Decimal
	Spec       string
	TSEvent    int64
	TSInit     int64
}
