package core

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	apperrors "cashflow/internal/errors"
)

const (
	Inflow  Direction = "INFLOW"
	Outflow Direction = "OUTFLOW"
)

const (
	Pending   TransactionStatus = "PENDING"
	Confirmed TransactionStatus = "CONFIRMED"
	Rejected  TransactionStatus = "REJECTED"
)

const (
	ledgerIDPrefix      = "CF"
	transactionIDPrefix = "CC"
	idDigits            = 10
)

type (
	// Direction tells whether money flows into or out of the bank account.
	Direction string

	// TransactionStatus is the lifecycle state of a transaction.
	TransactionStatus string

	// LedgerID identifies a ledger: "CF" followed by ten digits.
	LedgerID string

	// TransactionID identifies a transaction within a ledger: "CC" followed by ten digits.
	TransactionID string

	// YearMonth is a calendar month.
	YearMonth struct {
		Year  int
		Month time.Month
	}
)

func (d Direction) Validate() error {
	switch d {
	case Inflow, Outflow:
		return nil
	default:
		return apperrors.WithMessage(apperrors.ErrInvalidArgument, "invalid direction %q", string(d))
	}
}

func (s TransactionStatus) IsTerminal() bool {
	return s == Confirmed || s == Rejected
}

// NewLedgerID generates a random ledger id.
func NewLedgerID() LedgerID {
	return LedgerID(ledgerIDPrefix + randomDigits(idDigits))
}

// ParseLedgerID validates s as a ledger id.
func ParseLedgerID(s string) (LedgerID, error) {
	if !validID(s, ledgerIDPrefix) {
		return "", apperrors.WithMessage(apperrors.ErrInvalidLedgerID, "invalid ledger id %q", s)
	}
	return LedgerID(s), nil
}

func (id LedgerID) String() string { return string(id) }

// NewTransactionID generates a random transaction id.
func NewTransactionID() TransactionID {
	return TransactionID(transactionIDPrefix + randomDigits(idDigits))
}

// ParseTransactionID validates s as a transaction id.
func ParseTransactionID(s string) (TransactionID, error) {
	if !validID(s, transactionIDPrefix) {
		return "", apperrors.WithMessage(apperrors.ErrInvalidTransactionID, "invalid transaction id %q", s)
	}
	return TransactionID(s), nil
}

func (id TransactionID) String() string { return string(id) }

func validID(s, prefix string) bool {
	if len(s) != len(prefix)+idDigits || !strings.HasPrefix(s, prefix) {
		return false
	}
	for _, r := range s[len(prefix):] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func randomDigits(n int) string {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, limit)
	if err != nil {
		panic(fmt.Sprintf("read random digits: %v", err))
	}
	digits := v.String()
	return strings.Repeat("0", n-len(digits)) + digits
}

// YearMonthOf returns the calendar month containing t, evaluated in UTC.
func YearMonthOf(t time.Time) YearMonth {
	t = t.UTC()
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// NewYearMonth creates a YearMonth, normalising out-of-range months.
func NewYearMonth(year int, month time.Month) YearMonth {
	return YearMonthOf(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC))
}

// ParseYearMonth parses "YYYY-MM".
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return YearMonth{}, apperrors.WithMessage(apperrors.ErrInvalidArgument, "invalid period %q", s)
	}
	return YearMonthOf(t), nil
}

func (ym YearMonth) IsZero() bool { return ym.Year == 0 && ym.Month == 0 }

// Plus moves n months forward (or backward for negative n).
func (ym YearMonth) Plus(n int) YearMonth {
	return NewYearMonth(ym.Year, ym.Month+time.Month(n))
}

// Compare returns -1, 0 or +1.
func (ym YearMonth) Compare(o YearMonth) int {
	switch {
	case ym.Year < o.Year, ym.Year == o.Year && ym.Month < o.Month:
		return -1
	case ym == o:
		return 0
	default:
		return 1
	}
}

func (ym YearMonth) Before(o YearMonth) bool { return ym.Compare(o) < 0 }
func (ym YearMonth) After(o YearMonth) bool  { return ym.Compare(o) > 0 }

// Contains reports whether t falls inside the month (UTC).
func (ym YearMonth) Contains(t time.Time) bool { return YearMonthOf(t) == ym }

// FirstDay returns midnight UTC of the first day.
func (ym YearMonth) FirstDay() time.Time {
	return time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC)
}

// LastDay returns midnight UTC of the last day.
func (ym YearMonth) LastDay() time.Time {
	return ym.Plus(1).FirstDay().AddDate(0, 0, -1)
}

// MonthsUntil returns the number of months from ym to o (negative if o is earlier).
func (ym YearMonth) MonthsUntil(o YearMonth) int {
	return (o.Year-ym.Year)*12 + int(o.Month) - int(ym.Month)
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

func (ym YearMonth) MarshalJSON() ([]byte, error) {
	return json.Marshal(ym.String())
}

func (ym *YearMonth) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseYearMonth(s)
	if err != nil {
		return err
	}
	*ym = parsed
	return nil
}

// MarshalText lets YearMonth key JSON maps.
func (ym YearMonth) MarshalText() ([]byte, error) {
	return []byte(ym.String()), nil
}

func (ym *YearMonth) UnmarshalText(data []byte) error {
	parsed, err := ParseYearMonth(string(data))
	if err != nil {
		return err
	}
	*ym = parsed
	return nil
}
