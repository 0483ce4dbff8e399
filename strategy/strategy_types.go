package strategy

import (
	"errors"

	"github.com/gofrs/uuid"
	"github.com/tickvault/tickvault/instrument"
	"github.com/tickvault/tickvault/marketdata"
	"github.com/tickvault/tickvault/venue"
)

var (
	// ErrNotRegistered is returned when resolving an unknown strategy key
	ErrNotRegistered = errors.New("strategy not registered")
	// ErrAlreadyRegistered is returned when a key is registered twice
	ErrAlreadyRegistered = errors.New("strategy key already registered")
	// ErrNoVenue is returned when no configured venue carries the
	// instrument an order targets
	ErrNoVenue = errors.New("no venue carries instrument")
	// ErrMissingParam is returned when a required parameter is absent or
	// unparsable
	ErrMissingParam = errors.New("missing or invalid strategy parameter")
)

// Params is the free form parameter mapping from a StrategyConfig
type Params map[string]any

// Strategy receives replayed market data and venue events in deterministic
// order. Implementations embed Base and override what they need
type Strategy interface {
	OnStart(*Context) error
	OnQuote(*Context, *marketdata.Quote) error
	OnTrade(*Context, *marketdata.Trade) error
	OnBar(*Context, *marketdata.Bar) error
	OnFill(*Context, venue.Fill) error
	OnMarginExceeded(*Context, venue.MarginEvent) error
	OnStop(*Context) error
}

// Constructor builds a strategy from its configured parameters
type Constructor func(Params) (Strategy, error)

// OrderPlacer is the slice of a simulated venue a strategy context needs
type OrderPlacer interface {
	Name() string
	Carries(instrument.ID) bool
	SubmitOrder(req venue.OrderRequest, tsEvent, tsInit int64) (*venue.ExecutionResult, error)
	CancelOrder(uuid.UUID) error
	Account() venue.AccountSnapshot
}

// Base provides no-op implementations of every callback
type Base struct{}

// OnStart implements Strategy
func (Base) OnStart(*Context) error { return nil }

// OnQuote implements Strategy
func (Base) OnQuote(*Context, *marketdata.Quote) error { return nil }

// OnTrade implements Strategy
func (Base) OnTrade(*Context, *marketdata.Trade) error { return nil }

// OnBar implements Strategy
func (Base) OnBar(*Context, *marketdata.Bar) error { return nil }

// OnFill implements Strategy
func (Base) OnFill(*Context, venue.Fill) error { return nil }

// OnMarginExceeded implements Strategy
func (Base) OnMarginExceeded(*Context, venue.MarginEvent) error { return nil }

// OnStop implements Strategy
func (Base) OnStop(*Context) error { return nil }
