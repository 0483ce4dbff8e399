package venue

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/tickvault/tickvault/instrument"
)

// positionBook tracks open exposures per instrument under either order
// management style
type positionBook struct {
	oms   OMSType
	net   map[instrument.ID]*Position
	long  map[instrument.ID]*Position
	short map[instrument.ID]*Position
}

func newPositionBook(oms OMSType) *positionBook {
	return &positionBook{
		oms:   oms,
		net:   make(map[instrument.ID]*Position),
		long:  make(map[instrument.ID]*Position),
		short: make(map[instrument.ID]*Position),
	}
}

func sideToPosition(s Side) PositionSide {
	if s == Sell {
		return Short
	}
	return Long
}

// openingNotional returns how much new notional an order would add after
// netting, used for the pre trade margin check. Orders that only reduce
// exposure open nothing
func (b *positionBook) openingNotional(id instrument.ID, side Side, qty, price, mult decimal.Decimal) decimal.Decimal {
	full := qty.Mul(price).Mul(mult)
	if b.oms == OMSHedging {
		return full
	}
	pos, ok := b.net[id]
	if !ok || pos.Side == Flat || pos.Side == sideToPosition(side) {
		return full
	}
	// opposite side nets down before opening
	if pos.Quantity.GreaterThanOrEqual(qty) {
		return decimal.Zero
	}
	return qty.Sub(pos.Quantity).Mul(price).Mul(mult)
}

// apply records a fill against the book, returning realized pnl and the
// change in locked notional (negative when exposure was released)
func (b *positionBook) apply(id instrument.ID, side Side, qty, price, mult decimal.Decimal) (realized, lockedDelta decimal.Decimal) {
	if b.oms == OMSHedging {
		pos := b.hedgedPosition(id, side)
		lockedDelta = open(pos, sideToPosition(side), qty, price, mult)
		return decimal.Zero, lockedDelta
	}

	pos, ok := b.net[id]
	if !ok {
		pos = &Position{Instrument: id}
		b.net[id] = pos
	}
	want := sideToPosition(side)
	if pos.Side == Flat || pos.Side == want {
		lockedDelta = open(pos, want, qty, price, mult)
		return decimal.Zero, lockedDelta
	}

	// reduce the opposing exposure first
	closeQty := decimal.Min(qty, pos.Quantity)
	perUnit := price.Sub(pos.AvgPrice)
	if pos.Side == Short {
		perUnit = pos.AvgPrice.Sub(price)
	}
	realized = perUnit.Mul(closeQty).Mul(mult)
	released := pos.AvgPrice.Mul(closeQty).Mul(mult)
	pos.Quantity = pos.Quantity.Sub(closeQty)
	pos.RealizedPnL = pos.RealizedPnL.Add(realized)
	pos.lockedNotional = pos.lockedNotional.Sub(released)
	lockedDelta = released.Neg()
	if pos.Quantity.IsZero() {
		pos.Side = Flat
		pos.AvgPrice = decimal.Zero
		pos.lockedNotional = decimal.Zero
	}

	if leftover := qty.Sub(closeQty); leftover.IsPositive() {
		lockedDelta = lockedDelta.Add(open(pos, want, leftover, price, mult))
	}
	return realized, lockedDelta
}

func (b *positionBook) hedgedPosition(id instrument.ID, side Side) *Position {
	m := b.long
	if side == Sell {
		m = b.short
	}
	pos, ok := m[id]
	if !ok {
		pos = &Position{Instrument: id}
		m[id] = pos
	}
	return pos
}

// open extends a position in its own direction and returns the notional
// added
func open(pos *Position, side PositionSide, qty, price, mult decimal.Decimal) decimal.Decimal {
	newQty := pos.Quantity.Add(qty)
	if pos.Quantity.IsZero() {
		pos.AvgPrice = price
	} else {
		pos.AvgPrice = pos.AvgPrice.Mul(pos.Quantity).Add(price.Mul(qty)).Div(newQty)
	}
	pos.Side = side
	pos.Quantity = newQty
	added := qty.Mul(price).Mul(mult)
	pos.lockedNotional = pos.lockedNotional.Add(added)
	return added
}

// all returns every touched position sorted by instrument, long before
// short under hedging
func (b *positionBook) all() []Position {
	var out []Position
	if b.oms == OMSHedging {
		for _, m := range []map[instrument.ID]*Position{b.long, b.short} {
			for _, p := range m {
				out = append(out, *p)
			}
		}
	} else {
		for _, p := range b.net {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Instrument != out[j].Instrument {
			return out[i].Instrument.String() < out[j].Instrument.String()
		}
		return out[i].Side < out[j].Side
	})
	return out
}
