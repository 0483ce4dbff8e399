// Package buyandhold ships a minimal reference strategy: buy a fixed size
// on the first record for the configured instrument and hold to the end.
package buyandhold

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tickvault/tickvault/instrument"
	"github.com/tickvault/tickvault/marketdata"
	"github.com/tickvault/tickvault/strategy"
	"github.com/tickvault/tickvault/venue"
	"go.uber.org/zap"
)

// Name is the registry key
const Name = "buyandhold"

func init() {
	if err := strategy.Register(Name, New); err != nil {
		panic(err)
	}
}

// BuyAndHold submits one market buy and then goes quiet
type BuyAndHold struct {
	strategy.Base
	instrument instrument.ID
	size       decimal.Decimal
	bought     bool
}

// New constructs the strategy from its parameters: "instrument" (the
// SYMBOL.VENUE id) and "size"
func New(p strategy.Params) (strategy.Strategy, error) {
	rawID, err := p.String("instrument")
	if err != nil {
		return nil, err
	}
	id, err := instrument.ParseID(rawID)
	if err != nil {
		return nil, err
	}
	size, err := p.Decimal("size")
	if err != nil {
		return nil, err
	}
	if !size.IsPositive() {
		return nil, fmt.Errorf("%w: size must be positive", strategy.ErrMissingParam)
	}
	return &BuyAndHold{instrument: id, size: size}, nil
}

// OnQuote implements strategy.Strategy
func (s *BuyAndHold) OnQuote(ctx *strategy.Context, q *marketdata.Quote) error {
	if q.Instrument != s.instrument {
		return nil
	}
	return s.buyOnce(ctx)
}

// OnTrade implements strategy.Strategy
func (s *BuyAndHold) OnTrade(ctx *strategy.Context, t *marketdata.Trade) error {
	if t.Instrument != s.instrument {
		return nil
	}
	return s.buyOnce(ctx)
}

// OnBar implements strategy.Strategy
func (s *BuyAndHold) OnBar(ctx *strategy.Context, b *marketdata.Bar) error {
	if b.Instrument != s.instrument {
		return nil
	}
	return s.buyOnce(ctx)
}

// OnFill implements strategy.Strategy
func (s *BuyAndHold) OnFill(ctx *strategy.Context, f venue.Fill) error {
	ctx.Logger().Info("filled",
		zap.String("instrument", f.Instrument.String()),
		zap.String("price", f.Price.String()),
		zap.String("quantity", f.Quantity.String()))
	return nil
}

func (s *BuyAndHold) buyOnce(ctx *strategy.Context) error {
	if s.bought {
		return nil
	}
	s.bought = true
	_, err := ctx.Submit(venue.OrderRequest{
		Instrument: s.instrument,
		Side:       venue.Buy,
		Type:       venue.Market,
		Quantity:   s.size,
	})
	return err
}
