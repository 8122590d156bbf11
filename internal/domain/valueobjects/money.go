package valueobjects

import (
	"errors"
	"fmt"
	"math/big"
)

// Money represents a monetary amount with its currency.
// Uses big.Rat for arbitrary precision to avoid floating-point errors.
//
// Immutable: every operation returns a new Money. The zero Money (nil amount)
// behaves as 0 with no currency.
type Money struct {
	amount   *big.Rat
	currency Currency
}

// Common domain errors for Money operations
var (
	ErrNegativeAmount     = errors.New("amount cannot be negative")
	ErrCurrencyMismatch   = errors.New("cannot operate on different currencies")
	ErrInsufficientAmount = errors.New("insufficient amount")
	ErrInvalidAmount      = errors.New("invalid amount format")
	ErrTooManyDecimals    = errors.New("amount has more decimals than the currency allows")
)

// NewMoney parses a decimal string ("500", "100.50") into Money.
// The amount must be non-negative and fit the currency's minor unit.
func NewMoney(amountStr string, currency Currency) (Money, error) {
	amount := new(big.Rat)
	if _, ok := amount.SetString(amountStr); !ok {
		return Money{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amountStr)
	}

	if amount.Sign() < 0 {
		return Money{}, ErrNegativeAmount
	}

	// 10.005 USD cannot be stored as cents
	scaled := new(big.Rat).Mul(amount, new(big.Rat).SetInt(minorFactor(currency)))
	if !scaled.IsInt() {
		return Money{}, fmt.Errorf("%w: %s %s", ErrTooManyDecimals, amountStr, currency.Code())
	}

	return Money{amount: amount, currency: currency}, nil
}

// MustNewMoney panics on invalid input. Intended for seed data and tests.
func MustNewMoney(amountStr string, currency Currency) Money {
	m, err := NewMoney(amountStr, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// NewMoneyFromCents creates Money from the smallest currency unit (cents, satoshis).
// Read models store amounts this way.
//
//	NewMoneyFromCents(10050, USD) // 100.50 USD
func NewMoneyFromCents(cents int64, currency Currency) (Money, error) {
	if cents < 0 {
		return Money{}, ErrNegativeAmount
	}

	return Money{
		amount:   new(big.Rat).SetFrac(big.NewInt(cents), minorFactor(currency)),
		currency: currency,
	}, nil
}

// Zero creates a zero money amount for the given currency.
func Zero(currency Currency) Money {
	return Money{amount: new(big.Rat), currency: currency}
}

// Currency returns the currency of this money.
func (m Money) Currency() Currency {
	return m.currency
}

// Amount returns a copy of the amount.
func (m Money) Amount() *big.Rat {
	return new(big.Rat).Set(m.rat())
}

// Decimal returns the amount as a fixed-point string with the currency's
// decimal places, e.g. "500.00". This is the event payload representation.
func (m Money) Decimal() string {
	return m.rat().FloatString(m.currency.DecimalPlaces())
}

// String returns "500.00 USD".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Decimal(), m.currency.Code())
}

// Cents returns the amount in the smallest currency unit.
func (m Money) Cents() int64 {
	scaled := new(big.Rat).Mul(m.rat(), new(big.Rat).SetInt(minorFactor(m.currency)))
	return new(big.Int).Quo(scaled.Num(), scaled.Denom()).Int64()
}

// Add returns the sum of two amounts of the same currency.
func (m Money) Add(other Money) (Money, error) {
	if !m.currency.Equals(other.currency) {
		return Money{}, ErrCurrencyMismatch
	}

	return Money{amount: new(big.Rat).Add(m.rat(), other.rat()), currency: m.currency}, nil
}

// Subtract returns m - other. Fails with ErrInsufficientAmount if the result is negative.
func (m Money) Subtract(other Money) (Money, error) {
	if !m.currency.Equals(other.currency) {
		return Money{}, ErrCurrencyMismatch
	}

	diff := new(big.Rat).Sub(m.rat(), other.rat())
	if diff.Sign() < 0 {
		return Money{}, ErrInsufficientAmount
	}

	return Money{amount: diff, currency: m.currency}, nil
}

// Cmp compares amounts: -1, 0 or +1. Currencies must match.
func (m Money) Cmp(other Money) (int, error) {
	if !m.currency.Equals(other.currency) {
		return 0, ErrCurrencyMismatch
	}
	return m.rat().Cmp(other.rat()), nil
}

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool {
	return m.rat().Sign() == 0
}

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool {
	return m.rat().Sign() > 0
}

// GreaterThan checks if this money is greater than another.
func (m Money) GreaterThan(other Money) (bool, error) {
	c, err := m.Cmp(other)
	return c > 0, err
}

// LessThan checks if this money is less than another.
func (m Money) LessThan(other Money) (bool, error) {
	c, err := m.Cmp(other)
	return c < 0, err
}

// Equals checks if two money values are equal (amount and currency).
func (m Money) Equals(other Money) bool {
	return m.currency.Equals(other.currency) && m.rat().Cmp(other.rat()) == 0
}

func (m Money) rat() *big.Rat {
	if m.amount == nil {
		return new(big.Rat)
	}
	return m.amount
}

func minorFactor(c Currency) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(c.DecimalPlaces())), nil)
}
