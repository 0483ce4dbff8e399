package venue

import (
	"errors"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/tickvault/tickvault/instrument"
)

var (
	// ErrInvalidState is returned when an operation is attempted in the
	// wrong lifecycle state
	ErrInvalidState = errors.New("invalid venue state")
	// ErrUnknownInstrument is returned when a record or order references an
	// instrument the venue does not carry
	ErrUnknownInstrument = errors.New("instrument not registered with venue")
	// ErrNoMarketData is returned when an order arrives before any record
	// has established a price for its instrument
	ErrNoMarketData = errors.New("no market data for instrument")
	// ErrOrderNotFound is returned when cancelling an unknown order
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidOrder is returned when an order request fails validation
	ErrInvalidOrder = errors.New("invalid order")
	// ErrUnknownOMSType is returned when parsing an order management style
	ErrUnknownOMSType = errors.New("unknown order management style")
	// ErrUnknownAccountType is returned when parsing an account type
	ErrUnknownAccountType = errors.New("unknown account type")
	// ErrInsufficientBalance is returned when starting balances cannot cover
	// a configured requirement
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// State is the venue lifecycle state machine: Idle -> Running -> Stopped
type State uint8

// Lifecycle states
const (
	Idle State = iota
	Running
	Stopped
)

// OMSType selects whether opposing exposures in one instrument net against
// each other or are tracked separately
type OMSType uint8

// Order management styles
const (
	OMSNet OMSType = iota
	OMSHedging
)

// AccountType selects the pre trade check applied to fills
type AccountType uint8

// Account types
const (
	AccountCash AccountType = iota
	AccountMargin
)

// Side is an order direction
type Side uint8

// Order sides
const (
	Buy Side = iota
	Sell
)

// OrderType is the execution style of an order
type OrderType uint8

// Order types
const (
	Market OrderType = iota
	Limit
)

// OrderStatus tracks an order through its life
type OrderStatus uint8

// Order statuses
const (
	StatusOpen OrderStatus = iota
	StatusFilled
	StatusCanceled
	StatusRejected
)

// Money is an amount in a single currency
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// OrderRequest describes an order to submit
type OrderRequest struct {
	Instrument instrument.ID
	Side       Side
	Type       OrderType
	Quantity   decimal.Decimal
	Price      decimal.Decimal // limit orders only
}

// Order is a tracked order on the simulated venue
type Order struct {
	ID          uuid.UUID
	OrderRequest
	Status      OrderStatus
	SubmittedTS int64
}

// Fill is one execution. Timestamps are copied from the market record that
// triggered it so fills slot into the replay order deterministically;
// Sequence increases monotonically per venue
type Fill struct {
	Sequence   uint64          `json:"sequence"`
	OrderID    uuid.UUID       `json:"order_id"`
	Instrument instrument.ID   `json:"instrument"`
	Side       Side            `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Fee        Money           `json:"fee"`
	Maker      bool            `json:"maker"`
	TSEvent    int64           `json:"ts_event"`
	TSInit     int64           `json:"ts_init"`
}

// MarginEvent reports a pre trade margin or balance breach. It is a
// recoverable condition routed to the strategy, never a run abort
type MarginEvent struct {
	OrderID    uuid.UUID       `json:"order_id"`
	Instrument instrument.ID   `json:"instrument"`
	Side       Side            `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Required   Money           `json:"required"`
	Available  Money           `json:"available"`
	TSInit     int64           `json:"ts_init"`
}

// PositionSide is the direction of an open position
type PositionSide uint8

// Position sides
const (
	Flat PositionSide = iota
	Long
	Short
)

// Position is an open exposure in one instrument. Under a NET order
// management style one position exists per instrument; under HEDGING the
// long and short exposures are tracked as separate positions
type Position struct {
	Instrument  instrument.ID   `json:"instrument"`
	Side        PositionSide    `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`

	lockedNotional decimal.Decimal
}

// ExecutionResult is everything one submission or record produced
type ExecutionResult struct {
	Order  *Order
	Fills  []Fill
	Margin []MarginEvent
}

// Settings configures one simulated venue
type Settings struct {
	Name             string
	OMS              OMSType
	Account          AccountType
	BaseCurrency     string
	StartingBalances []Money
	// DefaultMarginRate applies to margin accounts when an instrument
	// declares no initial margin rate. Zero means full notional
	DefaultMarginRate decimal.Decimal
}
