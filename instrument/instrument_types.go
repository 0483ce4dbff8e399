package instrument

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when an instrument id has not been registered
	ErrNotFound = errors.New("instrument not found")
	// ErrAlreadyRegistered is returned when registering a conflicting definition for an existing id
	ErrAlreadyRegistered = errors.New("instrument already registered with a different definition")
	// ErrInvalidID is returned when a symbol or venue is empty or malformed
	ErrInvalidID = errors.New("invalid instrument id")
	// ErrInvalidPrecision is returned when a price or size precision is negative
	ErrInvalidPrecision = errors.New("invalid precision")
	// ErrInvalidCurrency is returned when the quote currency is unset
	ErrInvalidCurrency = errors.New("invalid quote currency")
)

// ID identifies an instrument as a venue plus symbol, rendered "SYMBOL.VENUE"
type ID struct {
	Symbol string `json:"symbol"`
	Venue  string `json:"venue"`
}

// Instrument holds the immutable definition of a tradeable instrument.
// Precisions are decimal exponents applied to every price and size figure,
// margin rates are fractions of notional and fee rates are fractions of
// traded value
type Instrument struct {
	ID                ID              `json:"id"`
	QuoteCurrency     string          `json:"quote_currency"`
	PricePrecision    int32           `json:"price_precision"`
	SizePrecision     int32           `json:"size_precision"`
	Multiplier        decimal.Decimal `json:"multiplier"`
	MarginInitial     decimal.Decimal `json:"margin_initial"`
	MarginMaintenance decimal.Decimal `json:"margin_maintenance"`
	MakerFee          decimal.Decimal `json:"maker_fee"`
	TakerFee          decimal.Decimal `json:"taker_fee"`
}

// Registry stores instrument definitions by id. Definitions are immutable
// once registered
type Registry struct {
	m           sync.RWMutex
	instruments map[ID]Instrument
}
