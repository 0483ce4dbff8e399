package marketdata

import (
	"fmt"
	"strings"

	"github.com/tickvault/tickvault/instrument"
)

// String implements fmt.Stringer, rendering the on-disk directory name
func (k Kind) String() string {
	switch k {
	case QuoteKind:
		return "quote"
	case TradeKind:
		return "trade"
	case BarKind:
		return "bar"
	default:
		return "unknown"
	}
}

// KindFromString parses a data kind name
func KindFromString(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quote", "quotes":
		return QuoteKind, nil
	case "trade", "trades":
		return TradeKind, nil
	case "bar", "bars":
		return BarKind, nil
	default:
		return UnknownKind, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// String implements fmt.Stringer
func (a AggressorSide) String() string {
	switch a {
	case AggressorBuy:
		return "buy"
	case AggressorSell:
		return "sell"
	default:
		return "none"
	}
}

// Kind implements Record
func (q *Quote) Kind() Kind { return QuoteKind }

// InstrumentID implements Record
func (q *Quote) InstrumentID() instrument.ID { return q.Instrument }

// EventTime implements Record
func (q *Quote) EventTime() int64 { return q.TSEvent }

// InitTime implements Record
func (q *Quote) InitTime() int64 { return q.TSInit }

// Equal implements Record
func (q *Quote) Equal(other Record) bool {
	o, ok := other.(*Quote)
	if !ok {
		return false
	}
	return q.Instrument == o.Instrument &&
		q.TSEvent == o.TSEvent &&
		q.TSInit == o.TSInit &&
		q.Bid.Equal(o.Bid) &&
		q.Ask.Equal(o.Ask) &&
		q.BidSize.Equal(o.BidSize) &&
		q.AskSize.Equal(o.AskSize)
}

// Kind implements Record
func (t *Trade) Kind() Kind { return TradeKind }

// InstrumentID implements Record
func (t *Trade) InstrumentID() instrument.ID { return t.Instrument }

// EventTime implements Record
func (t *Trade) EventTime() int64 { return t.TSEvent }

// InitTime implements Record
func (t *Trade) InitTime() int64 { return t.TSInit }

// Equal implements Record
func (t *Trade) Equal(other Record) bool {
	o, ok := other.(*Trade)
	if !ok {
		return false
	}
	return t.Instrument == o.Instrument &&
		t.TSEvent == o.TSEvent &&
		t.TSInit == o.TSInit &&
		t.Aggressor == o.Aggressor &&
		t.TradeID == o.TradeID &&
		t.Price.Equal(o.Price) &&
		t.Size.Equal(o.Size)
}

// Kind implements Record
func (b *Bar) Kind() Kind { return BarKind }

// InstrumentID implements Record
func (b *Bar) InstrumentID() instrument.ID { return b.Instrument }

// EventTime implements Record
func (b *Bar) EventTime() int64 { return b.TSEvent }

// InitTime implements Record
func (b *Bar) InitTime() int64 { return b.TSInit }

// Equal implements Record
func (b *Bar) Equal(other Record) bool {
	o, ok := other.(*Bar)
	if !ok {
		return false
	}
	return b.Instrument == o.Instrument &&
		b.TSEvent == o.TSEvent &&
		b.TSInit == o.TSInit &&
		b.Spec == o.Spec &&
		b.Open.Equal(o.Open) &&
		b.High.Equal(o.High) &&
		b.Low.Equal(o.Low) &&
		b.Close.Equal(o.Close) &&
		b.Volume.Equal(o.Volume)
}
