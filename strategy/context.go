package strategy

import (
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/tickvault/tickvault/instrument"
	"github.com/tickvault/tickvault/venue"
	"go.uber.org/zap"
)

// Context is a strategy's window into the running backtest. Order
// submissions are routed to the venue carrying the target instrument and
// their outcomes are queued for the engine to dispatch back through
// OnFill and OnMarginExceeded in deterministic order
type Context struct {
	venues  []OrderPlacer
	tsEvent int64
	tsInit  int64
	pending []*venue.ExecutionResult
	log     *zap.Logger
}

// NewContext builds a context over venues in their declaration order
func NewContext(venues []OrderPlacer, log *zap.Logger) *Context {
	if log == nil {
		log = zap.NewNop()
	}
	return &Context{venues: venues, log: log}
}

// SetClock stamps the context with the in flight record's timestamps. The
// engine calls this before every callback
func (c *Context) SetClock(tsEvent, tsInit int64) {
	c.tsEvent = tsEvent
	c.tsInit = tsInit
}

// Clock returns the in flight record's ts_event and ts_init
func (c *Context) Clock() (int64, int64) { return c.tsEvent, c.tsInit }

// Logger returns the strategy logger
func (c *Context) Logger() *zap.Logger { return c.log }

// Submit routes an order to the venue carrying its instrument. Generated
// fills and margin events are stamped with the current clock and queued
// for ordered dispatch
func (c *Context) Submit(req venue.OrderRequest) (*venue.Order, error) {
	v, err := c.venueFor(req.Instrument)
	if err != nil {
		return nil, err
	}
	res, err := v.SubmitOrder(req, c.tsEvent, c.tsInit)
	if res != nil {
		c.pending = append(c.pending, res)
	}
	if err != nil {
		return nil, err
	}
	return res.Order, nil
}

// Cancel removes a resting order from the venue carrying the instrument
func (c *Context) Cancel(id instrument.ID, orderID uuid.UUID) error {
	v, err := c.venueFor(id)
	if err != nil {
		return err
	}
	return v.CancelOrder(orderID)
}

// Account returns the account snapshot of a venue by name
func (c *Context) Account(venueName string) (venue.AccountSnapshot, error) {
	for _, v := range c.venues {
		if v.Name() == venueName {
			return v.Account(), nil
		}
	}
	return venue.AccountSnapshot{}, fmt.Errorf("%w: venue %q", ErrNoVenue, venueName)
}

// Drain hands queued execution results to the engine and clears the queue
func (c *Context) Drain() []*venue.ExecutionResult {
	out := c.pending
	c.pending = nil
	return out
}

// Enqueue adds an execution result produced outside Submit, eg resting
// order fills triggered by a market data record
func (c *Context) Enqueue(res *venue.ExecutionResult) {
	if res != nil && (len(res.Fills) > 0 || len(res.Margin) > 0) {
		c.pending = append(c.pending, res)
	}
}

func (c *Context) venueFor(id instrument.ID) (OrderPlacer, error) {
	for _, v := range c.venues {
		if v.Carries(id) {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrNoVenue, id)
}
