package config

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/tickvault/tickvault/venue"
)

// RunConfigBuilder assembles a RunConfig incrementally. Build validates the
// whole configuration, so a half built config cannot escape the builder
type RunConfigBuilder struct {
	cfg RunConfig
}

// NewRunConfigBuilder returns an empty builder
func NewRunConfigBuilder() *RunConfigBuilder {
	return &RunConfigBuilder{}
}

// Name sets the human readable run name
func (b *RunConfigBuilder) Name(name string) *RunConfigBuilder {
	b.cfg.Engine.Name = name
	return b
}

// PrefetchDepth enables stream prefetching with the given channel depth
func (b *RunConfigBuilder) PrefetchDepth(depth int) *RunConfigBuilder {
	b.cfg.Engine.PrefetchDepth = depth
	return b
}

// Venue appends a venue configuration
func (b *RunConfigBuilder) Venue(v VenueConfig) *RunConfigBuilder {
	b.cfg.Venues = append(b.cfg.Venues, v)
	return b
}

// Data appends a data source. Declaration order fixes stream priority
func (b *RunConfigBuilder) Data(d DataConfig) *RunConfigBuilder {
	b.cfg.Data = append(b.cfg.Data, d)
	return b
}

// Strategy appends a strategy configuration
func (b *RunConfigBuilder) Strategy(s StrategyConfig) *RunConfigBuilder {
	b.cfg.Strategies = append(b.cfg.Strategies, s)
	return b
}

// Build validates and returns the finished configuration
func (b *RunConfigBuilder) Build() (RunConfig, error) {
	if err := b.cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return b.cfg, nil
}

// VenueBuilder assembles one VenueConfig
type VenueBuilder struct {
	cfg VenueConfig
}

// NewVenueBuilder seeds a venue builder with sensible defaults, a netting
// OMS over a cash account
func NewVenueBuilder(name string) *VenueBuilder {
	return &VenueBuilder{cfg: VenueConfig{
		Name:        name,
		OMSType:     venue.OMSNet.String(),
		AccountType: venue.AccountCash.String(),
	}}
}

// OMS sets the order management model
func (b *VenueBuilder) OMS(t venue.OMSType) *VenueBuilder {
	b.cfg.OMSType = t.String()
	return b
}

// AccountKind sets the account model
func (b *VenueBuilder) AccountKind(t venue.AccountType) *VenueBuilder {
	b.cfg.AccountType = t.String()
	return b
}

// BaseCurrency sets the account reporting currency
func (b *VenueBuilder) BaseCurrency(c string) *VenueBuilder {
	b.cfg.BaseCurrency = c
	return b
}

// Balance appends a starting balance
func (b *VenueBuilder) Balance(amount decimal.Decimal, currency string) *VenueBuilder {
	b.cfg.StartingBalances = append(b.cfg.StartingBalances, venue.Money{Amount: amount, Currency: currency})
	return b
}

// MarginRate sets the fallback margin rate for instruments without one
func (b *VenueBuilder) MarginRate(r decimal.Decimal) *VenueBuilder {
	b.cfg.DefaultMarginRate = r
	return b
}

// Build validates and returns the venue configuration
func (b *VenueBuilder) Build() (VenueConfig, error) {
	if err := b.cfg.Validate(); err != nil {
		return VenueConfig{}, err
	}
	return b.cfg, nil
}

// DataBuilder assembles one DataConfig
type DataBuilder struct {
	cfg DataConfig
}

// NewDataBuilder seeds a data builder for a catalog path
func NewDataBuilder(catalogPath string) *DataBuilder {
	return &DataBuilder{cfg: DataConfig{CatalogPath: catalogPath}}
}

// Kind sets the record kind queried
func (b *DataBuilder) Kind(k string) *DataBuilder {
	b.cfg.DataKind = k
	return b
}

// Instrument sets the instrument id queried
func (b *DataBuilder) Instrument(id string) *DataBuilder {
	b.cfg.InstrumentID = id
	return b
}

// Window sets the half open [start, end) query window
func (b *DataBuilder) Window(start, end time.Time) *DataBuilder {
	b.cfg.StartTime = start
	b.cfg.EndTime = end
	return b
}

// Build validates and returns the data configuration
func (b *DataBuilder) Build() (DataConfig, error) {
	if err := b.cfg.Validate(); err != nil {
		return DataConfig{}, err
	}
	return b.cfg, nil
}
