package partition

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tickvault/tickvault/instrument"
	"github.com/tickvault/tickvault/marketdata"
)

func testInstrument(t *testing.T) instrument.Instrument {
	t.Helper()
	id, err := instrument.NewID("EURUSD", "SIM")
	require.NoError(t, err)
	return instrument.Instrument{
		ID:             id,
		QuoteCurrency:  "USD",
		PricePrecision: 5,
		SizePrecision:  0,
	}
}

func testQuotes(id instrument.ID, n int) []marketdata.Record {
	out := make([]marketdata.Record, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &marketdata.Quote{
			Instrument: id,
			Bid:        decimal.New(110000+int64(i), -5),
			Ask:        decimal.New(110020+int64(i), -5),
			BidSize:    decimal.NewFromInt(100 + int64(i)),
			AskSize:    decimal.NewFromInt(150),
			TSEvent:    int64(1000 + i*10),
			TSInit:     int64(1001 + i*10),
		})
	}
	return out
}

func TestWriteReadQuotes(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	inst := testInstrument(t)
	records := testQuotes(inst.ID, 25)

	ref, err := Write(dir, inst, marketdata.QuoteKind, records)
	require.NoError(t, err)
	assert.Equal(t, marketdata.QuoteKind, ref.Kind)
	assert.Equal(t, records[0].InitTime(), ref.MinTS)
	assert.Equal(t, records[len(records)-1].InitTime(), ref.MaxTS)
	assert.Equal(t, uint32(len(records)), ref.Records)

	r, err := Open(ref.Path)
	require.NoError(t, err)
	for i := range records {
		got, ok := r.Next()
		require.True(t, ok, i)
		assert.True(t, records[i].Equal(got), i)
	}
	_, ok := r.Next()
	assert.False(t, ok)
}

func TestWriteNeverOverwrites(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	inst := testInstrument(t)
	records := testQuotes(inst.ID, 3)

	// identical kind and span written back to back; every write must land
	// in its own file even when the clock has not advanced
	paths := make(map[string]struct{})
	for i := 0; i < 5; i++ {
		ref, err := Write(dir, inst, marketdata.QuoteKind, records)
		require.NoError(t, err)
		paths[ref.Path] = struct{}{}
	}
	require.Len(t, paths, 5)
	for p := range paths {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
}

func TestWriteReadTrades(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	inst := testInstrument(t)
	records := []marketdata.Record{
		&marketdata.Trade{
			Instrument: inst.ID,
			Price:      decimal.New(110010, -5),
			Size:       decimal.NewFromInt(3),
			Aggressor:  marketdata.AggressorBuy,
			TradeID:    "t-1",
			TSEvent:    10,
			TSInit:     11,
		},
		&marketdata.Trade{
			Instrument: inst.ID,
			Price:      decimal.New(110005, -5),
			Size:       decimal.NewFromInt(1),
			Aggressor:  marketdata.AggressorSell,
			TradeID:    "t-2",
			TSEvent:    20,
			TSInit:     21,
		},
	}

	ref, err := Write(dir, inst, marketdata.TradeKind, records)
	require.NoError(t, err)

	r, err := OpenKind(ref.Path, marketdata.TradeKind)
	require.NoError(t, err)
	for i := range records {
		got, ok := r.Next()
		require.True(t, ok)
		assert.True(t, records[i].Equal(got), i)
	}
}

func TestWriteReadBars(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	inst := testInstrument(t)
	records := []marketdata.Record{
		&marketdata.Bar{
			Instrument: inst.ID,
			Open:       decimal.New(110000, -5),
			High:       decimal.New(110100, -5),
			Low:        decimal.New(109900, -5),
			Close:      decimal.New(110050, -5),
			Volume:     decimal.NewFromInt(1234),
			Spec:       "1-HOUR-LAST",
			TSEvent:    100,
			TSInit:     100,
		},
	}

	ref, err := Write(dir, inst, marketdata.BarKind, records)
	require.NoError(t, err)

	r, err := Open(ref.Path)
	require.NoError(t, err)
	got, ok := r.Next()
	require.True(t, ok)
	bar, isBar := got.(*marketdata.Bar)
	require.True(t, isBar)
	assert.Equal(t, "1-HOUR-LAST", bar.Spec)
	assert.True(t, records[0].Equal(got))
}

func TestWriteOutOfOrderLeavesNoFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	inst := testInstrument(t)
	records := testQuotes(inst.ID, 3)
	records[1], records[2] = records[2], records[1]

	_, err := Write(dir, inst, marketdata.QuoteKind, records)
	require.ErrorIs(t, err, ErrOutOfOrder)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteKindMismatch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	inst := testInstrument(t)
	records := testQuotes(inst.ID, 2)
	records = append(records, &marketdata.Trade{
		Instrument: inst.ID,
		Price:      decimal.New(110000, -5),
		Size:       decimal.NewFromInt(1),
		TSEvent:    9000,
		TSInit:     9001,
	})

	_, err := Write(dir, inst, marketdata.QuoteKind, records)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestWriteEmpty(t *testing.T) {
	t.Parallel()
	inst := testInstrument(t)
	_, err := Write(t.TempDir(), inst, marketdata.QuoteKind, nil)
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestWritePrecisionLoss(t *testing.T) {
	t.Parallel()
	inst := testInstrument(t)
	inst.PricePrecision = 2
	records := []marketdata.Record{
		&marketdata.Quote{
			Instrument: inst.ID,
			Bid:        decimal.New(110005, -5), // needs 5 decimal places
			Ask:        decimal.New(111, -2),
			BidSize:    decimal.NewFromInt(1),
			AskSize:    decimal.NewFromInt(1),
			TSEvent:    1,
			TSInit:     1,
		},
	}
	_, err := Write(t.TempDir(), inst, marketdata.QuoteKind, records)
	assert.ErrorIs(t, err, ErrPrecisionLoss)
}

func TestReaderReset(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	inst := testInstrument(t)
	records := testQuotes(inst.ID, 5)

	ref, err := Write(dir, inst, marketdata.QuoteKind, records)
	require.NoError(t, err)

	r, err := Open(ref.Path)
	require.NoError(t, err)
	first, ok := r.Next()
	require.True(t, ok)
	for {
		if _, ok := r.Next(); !ok {
			break
		}
	}
	r.Reset()
	again, ok := r.Next()
	require.True(t, ok)
	assert.True(t, first.Equal(again))
}

func TestOpenKindMismatch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	inst := testInstrument(t)
	ref, err := Write(dir, inst, marketdata.QuoteKind, testQuotes(inst.ID, 2))
	require.NoError(t, err)

	_, err = OpenKind(ref.Path, marketdata.TradeKind)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestOpenCorrupt(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bogus.tvp")
	require.NoError(t, os.WriteFile(path, []byte("not a partition"), 0o644))
	_, err := Open(path)
	assert.ErrorIs(t, err, ErrBadFormat)
}

func TestRefIntersects(t *testing.T) {
	t.Parallel()
	ref := Ref{MinTS: 100, MaxTS: 200}
	assert.True(t, ref.Intersects(100, 201))
	assert.True(t, ref.Intersects(150, 160))
	assert.True(t, ref.Intersects(200, 300))
	assert.False(t, ref.Intersects(201, 300))
	// end bound is exclusive
	assert.False(t, ref.Intersects(0, 100))
	assert.True(t, ref.Intersects(0, 101))
}
