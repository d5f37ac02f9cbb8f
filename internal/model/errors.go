package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors. Typed errors below match these through errors.Is.
var (
	ErrInsufficientData      = errors.New("insufficient data")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientHolding   = errors.New("insufficient holding")
	ErrInvalidSymbol         = errors.New("invalid symbol")
	ErrSymbolNotFound        = errors.New("symbol not found")
	ErrMarketDataUnavailable = errors.New("market data unavailable")
	ErrAccountNotFound       = errors.New("account not found")
	ErrAccountExists         = errors.New("account already exists")
	ErrInvalidOrder          = errors.New("invalid order")
)

// InsufficientDataError reports a series too short for an indicator or generator.
type InsufficientDataError struct {
	Indicator string
	Need      int
	Have      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: need %d points, have %d", e.Indicator, e.Need, e.Have)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// InsufficientFundsError is returned when a buy costs more than the cash balance.
type InsufficientFundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient balance: required %s, available %s",
		e.Required.StringFixed(2), e.Available.StringFixed(2))
}

func (e *InsufficientFundsError) Is(target error) bool { return target == ErrInsufficientFunds }

// InsufficientHoldingError is returned when a sell exceeds the held quantity.
type InsufficientHoldingError struct {
	Symbol    string
	Requested int64
	Available int64
}

func (e *InsufficientHoldingError) Error() string {
	return fmt.Sprintf("insufficient holding in %s: requested %d, available %d", e.Symbol, e.Requested, e.Available)
}

func (e *InsufficientHoldingError) Is(target error) bool { return target == ErrInsufficientHolding }

// InvalidSymbolError is returned for a symbol the account does not hold or the
// universe does not list.
type InvalidSymbolError struct {
	Symbol string
	Reason string
}

func (e *InvalidSymbolError) Error() string {
	return fmt.Sprintf("invalid symbol %s: %s", e.Symbol, e.Reason)
}

func (e *InvalidSymbolError) Is(target error) bool { return target == ErrInvalidSymbol }

// MarketDataUnavailableError wraps a collaborator failure. The core never retries it.
type MarketDataUnavailableError struct {
	Symbol string
	Err    error
}

func (e *MarketDataUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("market data unavailable for %s", e.Symbol)
	}
	return fmt.Sprintf("market data unavailable for %s: %v", e.Symbol, e.Err)
}

func (e *MarketDataUnavailableError) Is(target error) bool { return target == ErrMarketDataUnavailable }

func (e *MarketDataUnavailableError) Unwrap() error { return e.Err }
