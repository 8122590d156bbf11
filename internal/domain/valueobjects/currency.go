// Package valueobjects contains immutable value objects that represent domain concepts
// without identity. They are compared by their values, not by identity.
package valueobjects

import (
	"errors"
	"strings"
)

// Currency represents a monetary currency code (ISO 4217 plus a few crypto tickers).
// The zero value is an "unset" currency, see IsZero.
type Currency struct {
	code string
}

// Predefined wallet currencies.
var (
	USD  = Currency{code: "USD"}
	EUR  = Currency{code: "EUR"}
	GBP  = Currency{code: "GBP"}
	COP  = Currency{code: "COP"}
	BTC  = Currency{code: "BTC"}
	ETH  = Currency{code: "ETH"}
	USDT = Currency{code: "USDT"}
)

// minorUnits maps each supported code to its number of decimal places.
// A code missing here is not supported.
var minorUnits = map[string]int{
	"USD":  2,
	"EUR":  2,
	"GBP":  2,
	"COP":  2,
	"BTC":  8,
	"ETH":  8,
	"USDT": 8,
	"USDC": 8,
}

// ErrInvalidCurrency is returned when an invalid currency code is provided.
var ErrInvalidCurrency = errors.New("invalid currency code")

// NewCurrency creates a Currency from a case-insensitive code.
//
//	curr, err := NewCurrency("usd") // USD
func NewCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	if _, ok := minorUnits[code]; !ok {
		return Currency{}, ErrInvalidCurrency
	}

	return Currency{code: code}, nil
}

// MustNewCurrency panics on invalid input. Use only for constants and seed data.
func MustNewCurrency(code string) Currency {
	curr, err := NewCurrency(code)
	if err != nil {
		panic(err)
	}
	return curr
}

// IsSupportedCurrency reports whether code (already upper-cased) is accepted.
// Used by the HTTP validator.
func IsSupportedCurrency(code string) bool {
	_, ok := minorUnits[strings.ToUpper(code)]
	return ok
}

// Code returns the currency code.
func (c Currency) Code() string {
	return c.code
}

// Equals checks if two currencies are the same.
func (c Currency) Equals(other Currency) bool {
	return c.code == other.code
}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return c.code
}

// IsCrypto returns true for 8-decimal crypto currencies.
func (c Currency) IsCrypto() bool {
	return minorUnits[c.code] == 8
}

// DecimalPlaces returns the number of minor-unit digits (2 for fiat, 8 for crypto).
func (c Currency) DecimalPlaces() int {
	if places, ok := minorUnits[c.code]; ok {
		return places
	}
	return 2
}

// IsZero checks if this is an uninitialized currency.
func (c Currency) IsZero() bool {
	return c.code == ""
}
