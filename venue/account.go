package venue

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Account tracks multi currency balances and locked margin for one
// simulated venue. Free balance is balance minus locked and the simulator
// never lets it go negative; breaches surface as MarginEvents before any
// state changes
type Account struct {
	typ    AccountType
	base   string
	totals map[string]decimal.Decimal
	locked map[string]decimal.Decimal
}

// AccountSnapshot is a read only view of an account
type AccountSnapshot struct {
	Type     AccountType `json:"type"`
	Base     string      `json:"base_currency"`
	Balances []Money     `json:"balances"`
	Locked   []Money     `json:"locked"`
}

func newAccount(typ AccountType, base string, starting []Money) (*Account, error) {
	a := &Account{
		typ:    typ,
		base:   base,
		totals: make(map[string]decimal.Decimal),
		locked: make(map[string]decimal.Decimal),
	}
	for _, m := range starting {
		if m.Currency == "" {
			return nil, fmt.Errorf("%w: starting balance without currency", ErrInvalidOrder)
		}
		if m.Amount.IsNegative() {
			return nil, fmt.Errorf("%w: negative starting balance %v %v", ErrInsufficientBalance, m.Amount, m.Currency)
		}
		a.totals[m.Currency] = a.totals[m.Currency].Add(m.Amount)
	}
	return a, nil
}

// Balance returns the total balance held in a currency
func (a *Account) Balance(currency string) decimal.Decimal {
	return a.totals[currency]
}

// Free returns the balance available for new exposure in a currency
func (a *Account) Free(currency string) decimal.Decimal {
	return a.totals[currency].Sub(a.locked[currency])
}

func (a *Account) credit(currency string, amount decimal.Decimal) {
	a.totals[currency] = a.totals[currency].Add(amount)
}

func (a *Account) debit(currency string, amount decimal.Decimal) {
	a.totals[currency] = a.totals[currency].Sub(amount)
}

// lock reserves margin; negative amounts release it. Locked margin never
// drops below zero
func (a *Account) lock(currency string, amount decimal.Decimal) {
	next := a.locked[currency].Add(amount)
	if next.IsNegative() {
		next = decimal.Zero
	}
	a.locked[currency] = next
}

// Snapshot returns the current balances sorted by currency
func (a *Account) Snapshot() AccountSnapshot {
	snap := AccountSnapshot{Type: a.typ, Base: a.base}
	currencies := make([]string, 0, len(a.totals))
	for c := range a.totals {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	for _, c := range currencies {
		snap.Balances = append(snap.Balances, Money{Amount: a.totals[c], Currency: c})
		if !a.locked[c].IsZero() {
			snap.Locked = append(snap.Locked, Money{Amount: a.locked[c], Currency: c})
		}
	}
	return snap
}
