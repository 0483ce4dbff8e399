package config

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tickvault/tickvault/venue"
)

var (
	// ErrUnsetField is returned when a required configuration field is empty
	ErrUnsetField = errors.New("required configuration field unset")
	// ErrBadWindow is returned when a data window is empty or inverted
	ErrBadWindow = errors.New("invalid data time window")
	// ErrNoVenues is returned when a run configures no venues
	ErrNoVenues = errors.New("run requires at least one venue")
	// ErrNoData is returned when a run configures no data sources
	ErrNoData = errors.New("run requires at least one data source")
	// ErrNoStrategies is returned when a run configures no strategies
	ErrNoStrategies = errors.New("run requires at least one strategy")
	// ErrDuplicateVenue is returned when two venues share a name
	ErrDuplicateVenue = errors.New("duplicate venue name")
)

// VenueConfig describes one simulated venue. Enumerations are carried as
// strings so configs round trip through JSON files; Validate parses them
type VenueConfig struct {
	Name              string          `json:"name"`
	OMSType           string          `json:"oms_type"`
	AccountType       string          `json:"account_type"`
	BaseCurrency      string          `json:"base_currency"`
	StartingBalances  []venue.Money   `json:"starting_balances"`
	DefaultMarginRate decimal.Decimal `json:"default_margin_rate,omitempty"`
}

// DataConfig names one catalog query feeding the run. Declaration order
// across the Data list fixes stream priority for timestamp ties
type DataConfig struct {
	CatalogPath  string    `json:"catalog_path"`
	DataKind     string    `json:"data_kind"`
	InstrumentID string    `json:"instrument_id"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
}

// StrategyConfig resolves a registered strategy key with its parameters
type StrategyConfig struct {
	Key    string         `json:"key"`
	Params map[string]any `json:"params,omitempty"`
}

// EngineOptions carries engine level knobs
type EngineOptions struct {
	Name          string `json:"name,omitempty"`
	PrefetchDepth int    `json:"prefetch_depth,omitempty"`
}

// RunConfig is the full description of one backtest. It is a pure value:
// build one through RunConfigBuilder, after which it is never mutated
type RunConfig struct {
	Venues     []VenueConfig    `json:"venues"`
	Data       []DataConfig     `json:"data"`
	Strategies []StrategyConfig `json:"strategies"`
	Engine     EngineOptions    `json:"engine"`
}
