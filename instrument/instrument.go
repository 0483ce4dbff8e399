package instrument

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// NewID validates and returns an instrument id
func NewID(symbol, venue string) (ID, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	venue = strings.ToUpper(strings.TrimSpace(venue))
	if symbol == "" || venue == "" {
		return ID{}, fmt.Errorf("%w: symbol %q venue %q", ErrInvalidID, symbol, venue)
	}
	if strings.Contains(symbol, ".") || strings.Contains(venue, ".") {
		return ID{}, fmt.Errorf("%w: %q.%q contains a reserved separator", ErrInvalidID, symbol, venue)
	}
	return ID{Symbol: symbol, Venue: venue}, nil
}

// ParseID parses the "SYMBOL.VENUE" rendering of an instrument id
func ParseID(s string) (ID, error) {
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return NewID(s[:i], s[i+1:])
}

// String renders the id in SYMBOL.VENUE form
func (id ID) String() string {
	return id.Symbol + "." + id.Venue
}

// IsEmpty returns whether the id has been set
func (id ID) IsEmpty() bool {
	return id.Symbol == "" && id.Venue == ""
}

// Validate checks an instrument definition for completeness
func (i *Instrument) Validate() error {
	if i.ID.IsEmpty() {
		return ErrInvalidID
	}
	if i.PricePrecision < 0 || i.SizePrecision < 0 {
		return fmt.Errorf("%w: price %v size %v", ErrInvalidPrecision, i.PricePrecision, i.SizePrecision)
	}
	if i.QuoteCurrency == "" {
		return fmt.Errorf("%w for %v", ErrInvalidCurrency, i.ID)
	}
	return nil
}

// equal reports whether two definitions are interchangeable
func (i *Instrument) equal(other *Instrument) bool {
	return i.ID == other.ID &&
		i.QuoteCurrency == other.QuoteCurrency &&
		i.PricePrecision == other.PricePrecision &&
		i.SizePrecision == other.SizePrecision &&
		i.Multiplier.Equal(other.Multiplier) &&
		i.MarginInitial.Equal(other.MarginInitial) &&
		i.MarginMaintenance.Equal(other.MarginMaintenance) &&
		i.MakerFee.Equal(other.MakerFee) &&
		i.TakerFee.Equal(other.TakerFee)
}

// EffectiveMultiplier returns the contract multiplier, defaulting to one
// when unset
func (i *Instrument) EffectiveMultiplier() decimal.Decimal {
	if i.Multiplier.IsZero() {
		return decimal.New(1, 0)
	}
	return i.Multiplier
}

// NewRegistry returns an empty instrument registry
func NewRegistry() *Registry {
	return &Registry{instruments: make(map[ID]Instrument)}
}

// Register adds an instrument definition. Registering the identical
// definition twice is a no-op, a conflicting one is rejected
func (r *Registry) Register(i Instrument) error {
	if err := i.Validate(); err != nil {
		return err
	}
	r.m.Lock()
	defer r.m.Unlock()
	if existing, ok := r.instruments[i.ID]; ok {
		if existing.equal(&i) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrAlreadyRegistered, i.ID)
	}
	r.instruments[i.ID] = i
	return nil
}

// Get returns the definition for an id
func (r *Registry) Get(id ID) (Instrument, error) {
	r.m.RLock()
	defer r.m.RUnlock()
	i, ok := r.instruments[id]
	if !ok {
		return Instrument{}, fmt.Errorf("%w: %v", ErrNotFound, id)
	}
	return i, nil
}

// List returns all registered definitions sorted by id
func (r *Registry) List() []Instrument {
	r.m.RLock()
	defer r.m.RUnlock()
	out := make([]Instrument, 0, len(r.instruments))
	for _, i := range r.instruments {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].ID.String() < out[b].ID.String()
	})
	return out
}
