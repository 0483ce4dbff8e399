// Package strategy defines the callback interface a backtested trading
// strategy implements and the registry the orchestrator resolves
// configured strategy keys against. Strategies are registered explicitly
// at startup, never loaded dynamically.
package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	regMu    sync.RWMutex
	registry = make(map[string]Constructor)
)

// Register binds a strategy key to its constructor. Keys must be unique
func Register(key string, c Constructor) error {
	regMu.Lock()
	defer regMu.Unlock()
	if _, ok := registry[key]; ok {
		return fmt.Errorf("%w: %q", ErrAlreadyRegistered, key)
	}
	registry[key] = c
	return nil
}

// New resolves a key and constructs the strategy with its parameters
func New(key string, p Params) (Strategy, error) {
	regMu.RLock()
	c, ok := registry[key]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, key)
	}
	return c(p)
}

// Registered returns the known strategy keys sorted
func Registered() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// String returns a required string parameter
func (p Params) String(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrMissingParam, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q is %T, want string", ErrMissingParam, key, v)
	}
	return s, nil
}

// Decimal returns a required decimal parameter, accepting string or
// numeric JSON values
func (p Params) Decimal(key string) (decimal.Decimal, error) {
	v, ok := p[key]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrMissingParam, key)
	}
	switch n := v.(type) {
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %q: %v", ErrMissingParam, key, err)
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case decimal.Decimal:
		return n, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %q is %T", ErrMissingParam, key, v)
	}
}
