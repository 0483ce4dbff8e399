// Package config defines the value objects describing one backtest run
// and the builders that assemble them. A RunConfig that fails validation
// never reaches the orchestrator.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/tickvault/tickvault/instrument"
	"github.com/tickvault/tickvault/marketdata"
	"github.com/tickvault/tickvault/venue"
)

// Validate checks the venue configuration for completeness
func (v *VenueConfig) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("%w: venue name", ErrUnsetField)
	}
	if _, err := venue.OMSTypeFromString(v.OMSType); err != nil {
		return err
	}
	if _, err := venue.AccountTypeFromString(v.AccountType); err != nil {
		return err
	}
	if v.BaseCurrency == "" {
		return fmt.Errorf("%w: venue %q base currency", ErrUnsetField, v.Name)
	}
	if len(v.StartingBalances) == 0 {
		return fmt.Errorf("%w: venue %q starting balances", ErrUnsetField, v.Name)
	}
	for _, m := range v.StartingBalances {
		if m.Currency == "" {
			return fmt.Errorf("%w: venue %q balance currency", ErrUnsetField, v.Name)
		}
		if m.Amount.IsNegative() {
			return fmt.Errorf("venue %q: %w", v.Name, venue.ErrInsufficientBalance)
		}
	}
	return nil
}

// Settings converts the validated configuration into venue settings
func (v *VenueConfig) Settings() (venue.Settings, error) {
	if err := v.Validate(); err != nil {
		return venue.Settings{}, err
	}
	oms, _ := venue.OMSTypeFromString(v.OMSType)
	acct, _ := venue.AccountTypeFromString(v.AccountType)
	return venue.Settings{
		Name:              v.Name,
		OMS:               oms,
		Account:           acct,
		BaseCurrency:      v.BaseCurrency,
		StartingBalances:  v.StartingBalances,
		DefaultMarginRate: v.DefaultMarginRate,
	}, nil
}

// Validate checks the data source configuration
func (d *DataConfig) Validate() error {
	if d.CatalogPath == "" {
		return fmt.Errorf("%w: catalog path", ErrUnsetField)
	}
	if _, err := marketdata.KindFromString(d.DataKind); err != nil {
		return err
	}
	if _, err := instrument.ParseID(d.InstrumentID); err != nil {
		return err
	}
	if d.StartTime.IsZero() || d.EndTime.IsZero() || !d.EndTime.After(d.StartTime) {
		return fmt.Errorf("%w: [%v, %v)", ErrBadWindow, d.StartTime, d.EndTime)
	}
	return nil
}

// Kind returns the parsed data kind
func (d *DataConfig) Kind() (marketdata.Kind, error) {
	return marketdata.KindFromString(d.DataKind)
}

// Instrument returns the parsed instrument id
func (d *DataConfig) Instrument() (instrument.ID, error) {
	return instrument.ParseID(d.InstrumentID)
}

// Validate checks the strategy configuration names a key. Key resolution
// against the registry happens in the orchestrator
func (s *StrategyConfig) Validate() error {
	if s.Key == "" {
		return fmt.Errorf("%w: strategy key", ErrUnsetField)
	}
	return nil
}

// Validate checks the composed run configuration
func (c *RunConfig) Validate() error {
	if len(c.Venues) == 0 {
		return ErrNoVenues
	}
	if len(c.Data) == 0 {
		return ErrNoData
	}
	if len(c.Strategies) == 0 {
		return ErrNoStrategies
	}
	seen := make(map[string]bool, len(c.Venues))
	for i := range c.Venues {
		if err := c.Venues[i].Validate(); err != nil {
			return err
		}
		if seen[c.Venues[i].Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateVenue, c.Venues[i].Name)
		}
		seen[c.Venues[i].Name] = true
	}
	for i := range c.Data {
		if err := c.Data[i].Validate(); err != nil {
			return err
		}
	}
	for i := range c.Strategies {
		if err := c.Strategies[i].Validate(); err != nil {
			return err
		}
	}
	if c.Engine.PrefetchDepth < 0 {
		return fmt.Errorf("%w: negative prefetch depth", ErrUnsetField)
	}
	return nil
}

// Digest returns the SHA-256 of the canonical JSON encoding. Two runs
// with equal digests over the same catalog state are reproductions of one
// another
func (c *RunConfig) Digest() (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
