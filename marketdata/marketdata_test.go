package marketdata

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tickvault/tickvault/instrument"
)

func TestKindFromString(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Kind{
		"quote":  QuoteKind,
		"quotes": QuoteKind,
		"trade":  TradeKind,
		"trades": TradeKind,
		"bar":    BarKind,
		"bars":   BarKind,
	} {
		got, err := KindFromString(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := KindFromString("candles")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestRecordEqual(t *testing.T) {
	t.Parallel()
	id := instrument.ID{Symbol: "EURUSD", Venue: "SIM"}
	q := &Quote{
		Instrument: id,
		Bid:        decimal.NewFromFloat(1.1000),
		Ask:        decimal.NewFromFloat(1.1002),
		BidSize:    decimal.NewFromInt(100),
		AskSize:    decimal.NewFromInt(150),
		TSEvent:    100,
		TSInit:     101,
	}
	same := *q
	assert.True(t, q.Equal(&same))

	moved := *q
	moved.Ask = decimal.NewFromFloat(1.1003)
	assert.False(t, q.Equal(&moved))

	// different scales of the same value still compare equal
	scaled := *q
	scaled.Bid = decimal.NewFromFloat(1.10000)
	assert.True(t, q.Equal(&scaled))

	tr := &Trade{Instrument: id, Price: decimal.NewFromInt(10), Size: decimal.NewFromInt(1), TSEvent: 100, TSInit: 101}
	assert.False(t, q.Equal(tr))
	assert.Equal(t, QuoteKind, q.Kind())
	assert.Equal(t, TradeKind, tr.Kind())
	assert.Equal(t, int64(101), tr.InitTime())
	assert.Equal(t, int64(100), tr.EventTime())
}
