// Package backtest orchestrates one run: it resolves a validated
// configuration against catalogs, wires query streams into the replay
// merger, and drives venues and strategies to produce a reproducible
// result.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/tickvault/tickvault/catalog"
	"github.com/tickvault/tickvault/catalog/query"
	"github.com/tickvault/tickvault/config"
	"github.com/tickvault/tickvault/instrument"
	"github.com/tickvault/tickvault/internal/btlog"
	"github.com/tickvault/tickvault/marketdata"
	"github.com/tickvault/tickvault/replay"
	"github.com/tickvault/tickvault/strategy"
	"github.com/tickvault/tickvault/venue"
	"go.uber.org/zap"
)

// Run executes one backtest to completion. A cancelled context aborts the
// run and the partial result is discarded
func Run(ctx context.Context, cfg config.RunConfig) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	digest, err := cfg.Digest()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	log := btlog.Sub("backtest")
	if cfg.Engine.Name != "" {
		log = log.With(zap.String("run", cfg.Engine.Name))
	}
	started := time.Now()

	// one catalog handle per distinct path
	catalogs := make(map[string]*catalog.Catalog)
	openCatalog := func(path string) (*catalog.Catalog, error) {
		if c, ok := catalogs[path]; ok {
			return c, nil
		}
		c, err := catalog.Open(path)
		if err != nil {
			return nil, err
		}
		catalogs[path] = c
		return c, nil
	}

	// resolve every configured data source up front so a missing
	// instrument or venue fails before any record is delivered
	type resolvedData struct {
		cfg  config.DataConfig
		kind marketdata.Kind
		inst instrument.Instrument
		cat  *catalog.Catalog
	}
	venueCfgs := make(map[string]config.VenueConfig, len(cfg.Venues))
	for _, vc := range cfg.Venues {
		venueCfgs[vc.Name] = vc
	}
	venueInstruments := make(map[string][]instrument.Instrument)
	resolved := make([]resolvedData, 0, len(cfg.Data))
	for _, dc := range cfg.Data {
		cat, err := openCatalog(dc.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("%w: catalog %q: %v", ErrConfiguration, dc.CatalogPath, err)
		}
		kind, err := dc.Kind()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		id, err := dc.Instrument()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		inst, err := cat.Instrument(id)
		if err != nil {
			return nil, fmt.Errorf("%w: instrument %v not in catalog %q", ErrConfiguration, id, dc.CatalogPath)
		}
		vc, ok := venueCfgs[id.Venue]
		if !ok {
			return nil, fmt.Errorf("%w: no venue %q configured for instrument %v", ErrConfiguration, id.Venue, id)
		}
		if !holdsCurrency(vc, inst.QuoteCurrency) {
			return nil, fmt.Errorf("%w: venue %q holds no %s balance for instrument %v",
				ErrConfiguration, vc.Name, inst.QuoteCurrency, id)
		}
		if !containsInstrument(venueInstruments[vc.Name], inst) {
			venueInstruments[vc.Name] = append(venueInstruments[vc.Name], inst)
		}
		resolved = append(resolved, resolvedData{cfg: dc, kind: kind, inst: inst, cat: cat})
	}

	// venues in declaration order
	sims := make([]*venue.Simulator, 0, len(cfg.Venues))
	placers := make([]strategy.OrderPlacer, 0, len(cfg.Venues))
	for _, vc := range cfg.Venues {
		settings, err := vc.Settings()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		sim, err := venue.New(settings, venueInstruments[vc.Name])
		if err != nil {
			return nil, fmt.Errorf("%w: venue %q: %v", ErrConfiguration, vc.Name, err)
		}
		sims = append(sims, sim)
		placers = append(placers, sim)
	}

	// strategies in declaration order
	strategies := make([]strategy.Strategy, 0, len(cfg.Strategies))
	for _, sc := range cfg.Strategies {
		s, err := strategy.New(sc.Key, strategy.Params(sc.Params))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		strategies = append(strategies, s)
	}

	// query streams in declaration order fix the merge tie break priority
	sources := make([]replay.Source, 0, len(resolved))
	for _, rd := range resolved {
		stream, err := queryStream(rd.cat, rd.kind, rd.inst.ID, rd.cfg)
		if err != nil {
			return nil, err
		}
		sources = append(sources, replay.Source{
			Name:   fmt.Sprintf("%s:%s", rd.cfg.DataKind, rd.inst.ID),
			Stream: stream,
		})
	}

	var opts []replay.Option
	if cfg.Engine.PrefetchDepth > 0 {
		opts = append(opts, replay.WithPrefetch(cfg.Engine.PrefetchDepth))
	}
	merger, err := replay.NewMerger(sources, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	for _, sim := range sims {
		if err := sim.Start(); err != nil {
			return nil, err
		}
	}

	sctx := strategy.NewContext(placers, log)
	for _, s := range strategies {
		if err := s.OnStart(sctx); err != nil {
			return nil, fmt.Errorf("strategy OnStart: %w", err)
		}
	}

	deliver := func(rec marketdata.Record) error {
		sctx.SetClock(rec.EventTime(), rec.InitTime())
		for _, sim := range sims {
			if !sim.Carries(rec.InstrumentID()) {
				continue
			}
			res, err := sim.OnRecord(rec)
			if err != nil {
				return err
			}
			sctx.Enqueue(res)
			break
		}
		for _, s := range strategies {
			if err := dispatchRecord(s, sctx, rec); err != nil {
				return err
			}
		}
		// execution results generated during this delivery, including any
		// produced while dispatching earlier results, go out in order
		for results := sctx.Drain(); len(results) > 0; results = sctx.Drain() {
			for _, res := range results {
				for _, f := range res.Fills {
					for _, s := range strategies {
						if err := s.OnFill(sctx, f); err != nil {
							return err
						}
					}
				}
				for _, me := range res.Margin {
					for _, s := range strategies {
						if err := s.OnMarginExceeded(sctx, me); err != nil {
							return err
						}
					}
				}
			}
		}
		return nil
	}

	records, err := merger.Run(ctx, deliver)
	if err != nil {
		log.Warn("run aborted", zap.Error(err))
		return nil, err
	}

	for _, s := range strategies {
		if err := s.OnStop(sctx); err != nil {
			return nil, fmt.Errorf("strategy OnStop: %w", err)
		}
	}
	for _, sim := range sims {
		if err := sim.Stop(); err != nil {
			return nil, err
		}
	}

	result := &Result{
		RunID:        uuid.NewV5(runNamespace, digest),
		Name:         cfg.Engine.Name,
		ConfigDigest: digest,
		Records:      records,
		StartedAt:    started,
		FinishedAt:   time.Now(),
	}
	for _, sim := range sims {
		for _, f := range sim.Fills() {
			result.Fills = append(result.Fills, VenueFill{Venue: sim.Name(), Fill: f})
		}
		for _, me := range sim.MarginEvents() {
			result.MarginEvents = append(result.MarginEvents, VenueMarginEvent{Venue: sim.Name(), MarginEvent: me})
		}
		result.Venues = append(result.Venues, VenueResult{
			Name:      sim.Name(),
			Account:   sim.Account(),
			Positions: sim.Positions(),
		})
	}
	log.Info("run complete",
		zap.String("digest", digest),
		zap.Uint64("records", records),
		zap.Int("fills", len(result.Fills)))
	return result, nil
}

// RunAll executes independent runs concurrently. Each run gets its own
// venues and strategies; results come back in input order
func RunAll(ctx context.Context, cfgs []config.RunConfig) ([]*Result, error) {
	results := make([]*Result, len(cfgs))
	errs := make([]error, len(cfgs))
	var wg sync.WaitGroup
	for i := range cfgs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = Run(ctx, cfgs[i])
		}(i)
	}
	wg.Wait()
	return results, errors.Join(errs...)
}

func queryStream(cat *catalog.Catalog, kind marketdata.Kind, id instrument.ID, dc config.DataConfig) (*query.Stream, error) {
	eng := query.New(cat)
	return eng.Query(kind, []instrument.ID{id}, dc.StartTime.UnixNano(), dc.EndTime.UnixNano())
}

func dispatchRecord(s strategy.Strategy, sctx *strategy.Context, rec marketdata.Record) error {
	switch r := rec.(type) {
	case *marketdata.Quote:
		return s.OnQuote(sctx, r)
	case *marketdata.Trade:
		return s.OnTrade(sctx, r)
	case *marketdata.Bar:
		return s.OnBar(sctx, r)
	default:
		return nil
	}
}

func holdsCurrency(vc config.VenueConfig, currency string) bool {
	for _, m := range vc.StartingBalances {
		if m.Currency == currency {
			return true
		}
	}
	return false
}

func containsInstrument(list []instrument.Instrument, inst instrument.Instrument) bool {
	for i := range list {
		if list[i].ID == inst.ID {
			return true
		}
	}
	return false
}
