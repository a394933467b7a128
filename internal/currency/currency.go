// Package currency resolves ISO 4217 currency codes for the ledger.
package currency

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/currency"
)

// ErrInvalidCurrency indicates the code is not a known ISO 4217 currency.
var ErrInvalidCurrency = errors.New("currency: invalid currency code")

// Resolver exposes the reporting currency and validates account currencies.
type Resolver interface {
	Reporting() string
	Normalize(code string) (string, error)
}

// Normalize upper-cases and validates an ISO 4217 code.
func Normalize(code string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		return "", ErrInvalidCurrency
	}
	unit, err := currency.ParseISO(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidCurrency, trimmed)
	}
	return unit.String(), nil
}

// Static is a Resolver with a fixed reporting currency.
type Static struct {
	reporting string
}

// NewStatic builds a Static resolver after validating the reporting currency.
func NewStatic(reporting string) (*Static, error) {
	code, err := Normalize(reporting)
	if err != nil {
		return nil, err
	}
	return &Static{reporting: code}, nil
}

// Reporting returns the configured reporting currency.
func (s *Static) Reporting() string {
	if s == nil {
		return ""
	}
	return s.reporting
}

// Normalize validates code, falling back to the reporting currency when empty.
func (s *Static) Normalize(code string) (string, error) {
	if strings.TrimSpace(code) == "" && s != nil && s.reporting != "" {
		return s.reporting, nil
	}
	return Normalize(code)
}

// Scale returns the number of minor units for the currency.
func Scale(code string) int32 {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}
