package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tickvault/tickvault/catalog"
	"github.com/tickvault/tickvault/config"
	"github.com/tickvault/tickvault/instrument"
	"github.com/tickvault/tickvault/marketdata"
	_ "github.com/tickvault/tickvault/strategy/buyandhold"
)

func seedCatalog(t *testing.T) (string, instrument.Instrument) {
	t.Helper()
	root := t.TempDir()
	cat, err := catalog.Open(root)
	require.NoError(t, err)

	id, err := instrument.NewID("EURUSD", "SIM")
	require.NoError(t, err)
	inst := instrument.Instrument{
		ID:             id,
		QuoteCurrency:  "USD",
		PricePrecision: 5,
		SizePrecision:  0,
		TakerFee:       decimal.RequireFromString("0.0002"),
	}

	var records []marketdata.Record
	for i := 0; i < 20; i++ {
		ts := int64(1000 + i*100)
		records = append(records, &marketdata.Quote{
			Instrument: id,
			Bid:        decimal.New(110000+int64(i), -5),
			Ask:        decimal.New(110020+int64(i), -5),
			BidSize:    decimal.NewFromInt(1000),
			AskSize:    decimal.NewFromInt(1000),
			TSEvent:    ts,
			TSInit:     ts,
		})
	}
	_, err = cat.WriteData(inst, marketdata.QuoteKind, records)
	require.NoError(t, err)
	return root, inst
}

func runConfig(t *testing.T, catalogPath string) config.RunConfig {
	t.Helper()
	v, err := config.NewVenueBuilder("SIM").
		BaseCurrency("USD").
		Balance(decimal.NewFromInt(1_000_000), "USD").
		Build()
	require.NoError(t, err)
	d, err := config.NewDataBuilder(catalogPath).
		Kind("quotes").
		Instrument("EURUSD.SIM").
		Window(time.Unix(0, 1000), time.Unix(0, 10_000)).
		Build()
	require.NoError(t, err)
	cfg, err := config.NewRunConfigBuilder().
		Name("backtest-test").
		Venue(v).
		Data(d).
		Strategy(config.StrategyConfig{
			Key:    "buyandhold",
			Params: map[string]any{"instrument": "EURUSD.SIM", "size": "100"},
		}).
		Build()
	require.NoError(t, err)
	return cfg
}

func TestRunBuysOnce(t *testing.T) {
	t.Parallel()
	root, _ := seedCatalog(t)
	cfg := runConfig(t, root)

	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), res.Records)
	require.Len(t, res.Fills, 1)
	f := res.Fills[0]
	assert.Equal(t, "SIM", f.Venue)
	assert.Equal(t, "EURUSD.SIM", f.Instrument.String())
	// first quote's ask
	assert.True(t, f.Price.Equal(decimal.New(110020, -5)), f.Price.String())
	assert.Equal(t, int64(1000), f.TSInit)

	require.Len(t, res.Venues, 1)
	vr := res.Venues[0]
	require.Len(t, vr.Positions, 1)
	assert.True(t, vr.Positions[0].Quantity.Equal(decimal.NewFromInt(100)))

	// 1_000_000 - notional - taker fee
	notional := decimal.New(110020, -5).Mul(decimal.NewFromInt(100))
	fee := notional.Mul(decimal.RequireFromString("0.0002"))
	want := decimal.NewFromInt(1_000_000).Sub(notional).Sub(fee)
	require.Len(t, vr.Account.Balances, 1)
	assert.True(t, vr.Account.Balances[0].Amount.Equal(want), vr.Account.Balances[0].Amount.String())
}

func TestRunDeterminism(t *testing.T) {
	t.Parallel()
	root, _ := seedCatalog(t)
	cfg := runConfig(t, root)

	first, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	second, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, first.ConfigDigest, second.ConfigDigest)
	assert.Equal(t, first.Records, second.Records)
	assert.Equal(t, first.Fills, second.Fills)
	assert.Equal(t, first.MarginEvents, second.MarginEvents)
	assert.Equal(t, first.Venues, second.Venues)
}

func TestRunPrefetchMatchesPlain(t *testing.T) {
	t.Parallel()
	root, _ := seedCatalog(t)
	plain := runConfig(t, root)

	fetched := runConfig(t, root)
	fetched.Engine.PrefetchDepth = 4

	a, err := Run(context.Background(), plain)
	require.NoError(t, err)
	b, err := Run(context.Background(), fetched)
	require.NoError(t, err)
	assert.Equal(t, a.Records, b.Records)
	assert.Equal(t, a.Fills, b.Fills)
	assert.Equal(t, a.Venues, b.Venues)
}

func TestRunMissingInstrument(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	_, err := catalog.Open(root)
	require.NoError(t, err)

	cfg := runConfig(t, root)
	_, err = Run(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRunMissingVenue(t *testing.T) {
	t.Parallel()
	root, _ := seedCatalog(t)
	cfg := runConfig(t, root)
	cfg.Venues[0].Name = "OTHER"

	_, err := Run(context.Background(), cfg)
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "SIM")
}

func TestRunMissingQuoteCurrency(t *testing.T) {
	t.Parallel()
	root, _ := seedCatalog(t)
	cfg := runConfig(t, root)
	cfg.Venues[0].BaseCurrency = "EUR"
	cfg.Venues[0].StartingBalances[0].Currency = "EUR"

	_, err := Run(context.Background(), cfg)
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "USD")
}

func TestRunUnknownStrategy(t *testing.T) {
	t.Parallel()
	root, _ := seedCatalog(t)
	cfg := runConfig(t, root)
	cfg.Strategies[0].Key = "no-such-strategy"

	_, err := Run(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRunCancellation(t *testing.T) {
	t.Parallel()
	root, _ := seedCatalog(t)
	cfg := runConfig(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Run(ctx, cfg)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestRunAllOrdering(t *testing.T) {
	t.Parallel()
	root, _ := seedCatalog(t)
	first := runConfig(t, root)
	second := runConfig(t, root)
	second.Engine.Name = "second-run"

	results, err := RunAll(context.Background(), []config.RunConfig{first, second})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "backtest-test", results[0].Name)
	assert.Equal(t, "second-run", results[1].Name)
	assert.NotEqual(t, results[0].RunID, results[1].RunID)
}
