// Package core provides the value types shared by the ledger aggregate and the
// forecast projector: money, calendar months, flow directions and identifiers.
//
// This file contains the Money type and amount parsing.
package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "cashflow/internal/errors"
)

// Money is an amount tagged with an ISO 4217 currency code.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney creates a Money from a decimal amount.
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToUpper(currency)}
}

// Zero returns a zero amount in the given currency.
func Zero(currency string) Money {
	return NewMoney(decimal.Zero, currency)
}

// ParseMoney parses a decimal string into Money.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and a
// leading sign. Amounts are kept at full precision; rounding is left to the
// presentation layer.
//
// Examples:
//
//	ParseMoney("12.34", "usd") -> 12.34 USD
//	ParseMoney("12,34", "EUR") -> 12.34 EUR
//	ParseMoney("-5", "USD")    -> -5 USD
func ParseMoney(s, currency string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, apperrors.WithMessage(apperrors.ErrInvalidArgument, "amount is empty")
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return Money{}, apperrors.WithMessage(apperrors.ErrInvalidArgument, "invalid amount %q", s)
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, apperrors.Wrap(apperrors.ErrInvalidArgument, err)
	}
	currency = strings.TrimSpace(currency)
	if len(currency) != 3 {
		return Money{}, apperrors.WithMessage(apperrors.ErrInvalidArgument, "invalid currency %q", currency)
	}
	return NewMoney(amount, currency), nil
}

// MustParseMoney is ParseMoney for constants and tests.
func MustParseMoney(s, currency string) Money {
	m, err := ParseMoney(s, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Plus adds o to m. Both must share a currency.
func (m Money) Plus(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency}, nil
}

// Minus subtracts o from m. Both must share a currency.
func (m Money) Minus(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.Currency}, nil
}

func (m Money) sameCurrency(o Money) error {
	if m.Currency != o.Currency {
		return apperrors.WithMessage(apperrors.ErrCurrencyMismatch, "currency mismatch: %s vs %s", m.Currency, o.Currency)
	}
	return nil
}

// Negate flips the sign.
func (m Money) Negate() Money { return Money{Amount: m.Amount.Neg(), Currency: m.Currency} }

// Abs returns the absolute amount.
func (m Money) Abs() Money { return Money{Amount: m.Amount.Abs(), Currency: m.Currency} }

func (m Money) IsZero() bool     { return m.Amount.IsZero() }
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

// Equal compares amount and currency. 100 and 100.00 are equal.
func (m Money) Equal(o Money) bool {
	return m.Currency == o.Currency && m.Amount.Equal(o.Amount)
}

// String renders the amount with two decimals, e.g. "100.00 USD".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(2), m.Currency)
}

// ValidatePositive reports ErrInvalidAmount unless m is strictly positive.
func (m Money) ValidatePositive() error {
	if !m.IsPositive() {
		return apperrors.WithMessage(apperrors.ErrInvalidAmount, "amount must be positive, got %s", m.Amount.String())
	}
	return nil
}

// UnmarshalJSON normalises the currency code.
func (m *Money) UnmarshalJSON(data []byte) error {
	type plain Money
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = NewMoney(p.Amount, p.Currency)
	return nil
}
