package errors

import "fmt"

// ErrBalanceMismatch is the sentinel matched by every *BalanceMismatchError.
var ErrBalanceMismatch = &AppError{Kind: KindBalanceMismatch, Code: "BALANCE_MISMATCH", Message: "Confirmed balance does not match the calculated balance"}

// BalanceMismatchError is returned when an attestation cannot reconcile the
// caller-confirmed balance with the balance derived from settled transactions.
// Amounts are kept as strings so this package stays free of money types.
type BalanceMismatchError struct {
	Confirmed  string
	Calculated string
	Delta      string
	Currency   string
}

func (e *BalanceMismatchError) Error() string {
	return fmt.Sprintf("balance mismatch: confirmed %s %s, calculated %s %s, difference %s %s",
		e.Confirmed, e.Currency, e.Calculated, e.Currency, e.Delta, e.Currency)
}

// Is lets errors.Is(err, ErrBalanceMismatch) succeed.
func (e *BalanceMismatchError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == ErrBalanceMismatch.Code
}
