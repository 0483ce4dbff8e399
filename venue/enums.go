package venue

import (
	"fmt"
	"strings"
)

// String implements fmt.Stringer
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// String implements fmt.Stringer
func (o OMSType) String() string {
	if o == OMSHedging {
		return "HEDGING"
	}
	return "NET"
}

// OMSTypeFromString parses an order management style name
func OMSTypeFromString(s string) (OMSType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NET", "NETTING", "":
		return OMSNet, nil
	case "HEDGING", "HEDGE":
		return OMSHedging, nil
	default:
		return OMSNet, fmt.Errorf("%w: %q", ErrUnknownOMSType, s)
	}
}

// String implements fmt.Stringer
func (a AccountType) String() string {
	if a == AccountMargin {
		return "MARGIN"
	}
	return "CASH"
}

// AccountTypeFromString parses an account type name
func AccountTypeFromString(s string) (AccountType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CASH", "":
		return AccountCash, nil
	case "MARGIN":
		return AccountMargin, nil
	default:
		return AccountCash, fmt.Errorf("%w: %q", ErrUnknownAccountType, s)
	}
}

// String implements fmt.Stringer
func (s Side) String() string {
	if s == Sell {
		return "SELL"
	}
	return "BUY"
}

// String implements fmt.Stringer
func (o OrderType) String() string {
	if o == Limit {
		return "LIMIT"
	}
	return "MARKET"
}

// String implements fmt.Stringer
func (p PositionSide) String() string {
	switch p {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "FLAT"
	}
}
