package instrument

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInstrument(t *testing.T) Instrument {
	t.Helper()
	id, err := NewID("EURUSD", "SIM")
	require.NoError(t, err)
	return Instrument{
		ID:             id,
		QuoteCurrency:  "USD",
		PricePrecision: 5,
		SizePrecision:  0,
	}
}

func TestNewID(t *testing.T) {
	t.Parallel()
	id, err := NewID("eurusd", "sim")
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", id.Symbol)
	assert.Equal(t, "SIM", id.Venue)
	assert.Equal(t, "EURUSD.SIM", id.String())

	_, err = NewID("", "SIM")
	assert.ErrorIs(t, err, ErrInvalidID)
	_, err = NewID("EURUSD", "")
	assert.ErrorIs(t, err, ErrInvalidID)
	_, err = NewID("EUR.USD", "SIM")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestParseID(t *testing.T) {
	t.Parallel()
	id, err := ParseID("BTC-PERP.BINANCE")
	require.NoError(t, err)
	assert.Equal(t, "BTC-PERP", id.Symbol)
	assert.Equal(t, "BINANCE", id.Venue)

	_, err = ParseID("EURUSD")
	assert.ErrorIs(t, err, ErrInvalidID)
	_, err = ParseID(".SIM")
	assert.ErrorIs(t, err, ErrInvalidID)
	_, err = ParseID("EURUSD.")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestInstrumentValidate(t *testing.T) {
	t.Parallel()
	inst := testInstrument(t)
	require.NoError(t, inst.Validate())

	bad := inst
	bad.PricePrecision = -1
	assert.ErrorIs(t, bad.Validate(), ErrInvalidPrecision)

	bad = inst
	bad.QuoteCurrency = ""
	assert.ErrorIs(t, bad.Validate(), ErrInvalidCurrency)
}

func TestEffectiveMultiplier(t *testing.T) {
	t.Parallel()
	inst := testInstrument(t)
	assert.True(t, inst.EffectiveMultiplier().Equal(decimal.New(1, 0)))
	inst.Multiplier = decimal.New(100, 0)
	assert.True(t, inst.EffectiveMultiplier().Equal(decimal.New(100, 0)))
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	inst := testInstrument(t)
	require.NoError(t, r.Register(inst))

	// registering the identical definition again is a no-op
	require.NoError(t, r.Register(inst))

	conflicting := inst
	conflicting.PricePrecision = 2
	assert.ErrorIs(t, r.Register(conflicting), ErrAlreadyRegistered)

	got, err := r.Get(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, inst.ID, got.ID)

	_, err = r.Get(ID{Symbol: "GBPUSD", Venue: "SIM"})
	assert.ErrorIs(t, err, ErrNotFound)

	other := inst
	other.ID = ID{Symbol: "AUDUSD", Venue: "SIM"}
	require.NoError(t, r.Register(other))
	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "AUDUSD.SIM", list[0].ID.String())
	assert.Equal(t, "EURUSD.SIM", list[1].ID.String())
}
