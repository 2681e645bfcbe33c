// Package errors provides the error taxonomy shared by the ledger aggregate,
// the forecast projector and the services around them.
//
// Every validation failure is an *AppError carrying a Kind (the coarse class
// callers branch on) and a Code (the precise trigger). errors.Is matches on
// Code, so wrapped or re-messaged copies of a sentinel still compare equal.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers that only care about the failure class.
type Kind string

const (
	KindUnknown                 Kind = "UNKNOWN"
	KindIdentifierFormatInvalid Kind = "IDENTIFIER_FORMAT_INVALID"
	KindModeViolation           Kind = "MODE_VIOLATION"
	KindPeriodViolation         Kind = "PERIOD_VIOLATION"
	KindNotFound                Kind = "NOT_FOUND"
	KindStateConflict           Kind = "STATE_CONFLICT"
	KindBalanceMismatch         Kind = "BALANCE_MISMATCH"
	KindTransportFailure        Kind = "TRANSPORT_FAILURE"
	KindInvalidArgument         Kind = "INVALID_ARGUMENT"
)

// StatusCode maps a kind onto the HTTP status used by the API layer.
func (k Kind) StatusCode() int {
	switch k {
	case KindIdentifierFormatInvalid, KindInvalidArgument, KindPeriodViolation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindModeViolation, KindStateConflict:
		return http.StatusConflict
	case KindBalanceMismatch:
		return http.StatusUnprocessableEntity
	case KindTransportFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AppError is a structured domain error.
type AppError struct {
	Kind     Kind   `json:"kind"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Internal error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return e.Message + ": " + e.Internal.Error()
	}
	return e.Message
}

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Is reports whether target is an *AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap creates a copy of sentinel wrapping an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Kind:     sentinel.Kind,
		Code:     sentinel.Code,
		Message:  sentinel.Message,
		Internal: internal,
	}
}

// WithMessage creates a copy of sentinel with a custom message.
func WithMessage(sentinel *AppError, format string, args ...any) *AppError {
	return &AppError{
		Kind:     sentinel.Kind,
		Code:     sentinel.Code,
		Message:  fmt.Sprintf(format, args...),
		Internal: sentinel.Internal,
	}
}

// KindOf returns the kind of err, or KindUnknown when err carries none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var mismatch *BalanceMismatchError
	if stderrors.As(err, &mismatch) {
		return KindBalanceMismatch
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// Identifier errors.
var (
	ErrInvalidLedgerID      = &AppError{Kind: KindIdentifierFormatInvalid, Code: "INVALID_LEDGER_ID", Message: "Ledger id is malformed"}
	ErrInvalidTransactionID = &AppError{Kind: KindIdentifierFormatInvalid, Code: "INVALID_TRANSACTION_ID", Message: "Transaction id is malformed"}
)

// Mode errors.
var (
	ErrLedgerNotInSetup  = &AppError{Kind: KindModeViolation, Code: "LEDGER_NOT_IN_SETUP", Message: "Operation requires the ledger to be in SETUP"}
	ErrLedgerNotOpen     = &AppError{Kind: KindModeViolation, Code: "LEDGER_NOT_OPEN", Message: "Operation requires the ledger to be OPEN"}
	ErrImportFlagMissing = &AppError{Kind: KindModeViolation, Code: "IMPORT_FLAG_MISSING", Message: "Categories can only be created for import while the ledger is in SETUP"}
	ErrLedgerClosed      = &AppError{Kind: KindModeViolation, Code: "LEDGER_CLOSED", Message: "Ledger is closed"}
)

// Period errors.
var (
	ErrDueDateOutsideAllowedRange   = &AppError{Kind: KindPeriodViolation, Code: "DUE_DATE_OUTSIDE_ALLOWED_RANGE", Message: "Due date is outside the allowed range"}
	ErrPaidDateInFuture             = &AppError{Kind: KindPeriodViolation, Code: "PAID_DATE_IN_FUTURE", Message: "Paid date cannot be in the future"}
	ErrPaidDateOutsideActivePeriod  = &AppError{Kind: KindPeriodViolation, Code: "PAID_DATE_OUTSIDE_ACTIVE_PERIOD", Message: "Paid date must fall within the active period"}
	ErrImportDateBeforeStartPeriod  = &AppError{Kind: KindPeriodViolation, Code: "IMPORT_DATE_BEFORE_START_PERIOD", Message: "Import date is before the ledger start period"}
	ErrImportDateNotBeforeActive    = &AppError{Kind: KindPeriodViolation, Code: "IMPORT_DATE_NOT_BEFORE_ACTIVE_PERIOD", Message: "Import date must be before the active period"}
	ErrStartPeriodNotBeforeActive   = &AppError{Kind: KindPeriodViolation, Code: "START_PERIOD_NOT_BEFORE_ACTIVE_PERIOD", Message: "Start period must be before the active period"}
	ErrAttestationPeriodNotAdjacent = &AppError{Kind: KindInvalidArgument, Code: "ATTESTATION_PERIOD_NOT_ADJACENT", Message: "Attestation period must directly follow the active period"}
)

// Not-found errors.
var (
	ErrLedgerNotFound       = &AppError{Kind: KindNotFound, Code: "LEDGER_NOT_FOUND", Message: "Ledger not found"}
	ErrTransactionNotFound  = &AppError{Kind: KindNotFound, Code: "TRANSACTION_NOT_FOUND", Message: "Transaction not found"}
	ErrCategoryDoesNotExist = &AppError{Kind: KindNotFound, Code: "CATEGORY_DOES_NOT_EXIST", Message: "Category does not exist"}
	ErrStatementNotFound    = &AppError{Kind: KindNotFound, Code: "STATEMENT_NOT_FOUND", Message: "Forecast statement not found"}
)

// State conflict errors.
var (
	ErrCategoryAlreadyExists    = &AppError{Kind: KindStateConflict, Code: "CATEGORY_ALREADY_EXISTS", Message: "An active category with this name already exists"}
	ErrCategoryIsArchived       = &AppError{Kind: KindStateConflict, Code: "CATEGORY_IS_ARCHIVED", Message: "Category is archived"}
	ErrCannotUnarchiveCategory  = &AppError{Kind: KindStateConflict, Code: "CANNOT_UNARCHIVE_CATEGORY", Message: "Another active category with this name exists; unarchive is only for recovering an accidental archive"}
	ErrCashChangeIsNotOpened    = &AppError{Kind: KindStateConflict, Code: "CASH_CHANGE_IS_NOT_OPENED", Message: "Transaction is not pending"}
	ErrTransactionAlreadyExists = &AppError{Kind: KindStateConflict, Code: "TRANSACTION_ALREADY_EXISTS", Message: "Transaction already exists"}
	ErrLedgerNameTaken          = &AppError{Kind: KindStateConflict, Code: "LEDGER_NAME_TAKEN", Message: "Owner already has a ledger with this name"}
	ErrLedgerAlreadyExists      = &AppError{Kind: KindStateConflict, Code: "LEDGER_ALREADY_EXISTS", Message: "A ledger with this id already exists"}
	ErrConcurrentModification   = &AppError{Kind: KindStateConflict, Code: "CONCURRENT_MODIFICATION", Message: "Ledger was modified concurrently"}
	ErrStatementBroken          = &AppError{Kind: KindStateConflict, Code: "STATEMENT_BROKEN", Message: "Forecast statement stopped on an event it could not apply; rebuild required"}
	ErrMonthTransition          = &AppError{Kind: KindStateConflict, Code: "ILLEGAL_MONTH_TRANSITION", Message: "Illegal month status transition"}
	ErrEventSequenceGap         = &AppError{Kind: KindStateConflict, Code: "EVENT_SEQUENCE_GAP", Message: "Event sequence gap"}
)

// Argument errors.
var (
	ErrInvalidArgument  = &AppError{Kind: KindInvalidArgument, Code: "INVALID_ARGUMENT", Message: "Invalid argument"}
	ErrCurrencyMismatch = &AppError{Kind: KindInvalidArgument, Code: "CURRENCY_MISMATCH", Message: "Currency does not match the ledger currency"}
	ErrInvalidAmount    = &AppError{Kind: KindInvalidArgument, Code: "INVALID_AMOUNT", Message: "Amount must be positive"}
)

// Transport errors.
var (
	ErrPublishFailed         = &AppError{Kind: KindTransportFailure, Code: "PUBLISH_FAILED", Message: "Event publish failed; command effect is unknown, reload the ledger and retry"}
	ErrDependencyUnavailable = &AppError{Kind: KindTransportFailure, Code: "DEPENDENCY_UNAVAILABLE", Message: "A required dependency is unavailable"}
)
