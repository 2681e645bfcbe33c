package http

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "cashflow/internal/errors"
	"cashflow/internal/log"
)

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    apperrors.Kind `json:"kind,omitempty"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	// Balance is set for BALANCE_MISMATCH.
	Balance *balanceDetail `json:"balance,omitempty"`
}

type balanceDetail struct {
	Confirmed  string `json:"confirmed"`
	Calculated string `json:"calculated"`
	Delta      string `json:"delta"`
	Currency   string `json:"currency"`
}

// writeJSON sends v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code by kind. Errors without a kind are
// logged and reported as a bare internal error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperrors.KindOf(err)
	status := kind.StatusCode()
	detail := errorDetail{Kind: kind}

	var mismatch *apperrors.BalanceMismatchError
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &mismatch):
		detail.Code = apperrors.ErrBalanceMismatch.Code
		detail.Message = mismatch.Error()
		detail.Balance = &balanceDetail{
			Confirmed:  mismatch.Confirmed,
			Calculated: mismatch.Calculated,
			Delta:      mismatch.Delta,
			Currency:   mismatch.Currency,
		}
	case errors.As(err, &appErr):
		detail.Code = appErr.Code
		detail.Message = appErr.Message
	default:
		detail.Kind = apperrors.KindUnknown
		detail.Code = "INTERNAL"
		detail.Message = "Internal server error"
	}

	if status >= http.StatusInternalServerError {
		fields := log.NewFields().WithHTTPRequest(r.Method, r.URL.Path)
		fields[log.FieldErrorKind] = string(detail.Kind)
		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, log.ComponentHTTP, operationOf(r), fields)
	}
	writeJSON(w, status, errorBody{Error: detail})
}

func operationOf(r *http.Request) string {
	if r.Method == http.MethodGet {
		return log.OpRead
	}
	return log.OpExecute
}
