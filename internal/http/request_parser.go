package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"cashflow/internal/core"
	apperrors "cashflow/internal/errors"
	"cashflow/internal/ledger"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// commandDecoders decodes each command accepted by
// POST /ledgers/{id}/commands/{command}. create_ledger has its own route.
var commandDecoders = map[string]func(http.ResponseWriter, *http.Request) (ledger.Command, error){
	ledger.AppendExpectedTransaction{}.CommandName():   decodeAs[ledger.AppendExpectedTransaction],
	ledger.AppendPaidTransaction{}.CommandName():       decodeAs[ledger.AppendPaidTransaction],
	ledger.ConfirmTransaction{}.CommandName():          decodeAs[ledger.ConfirmTransaction],
	ledger.RejectTransaction{}.CommandName():           decodeAs[ledger.RejectTransaction],
	ledger.EditTransaction{}.CommandName():             decodeAs[ledger.EditTransaction],
	ledger.CreateCategory{}.CommandName():              decodeAs[ledger.CreateCategory],
	ledger.ArchiveCategory{}.CommandName():             decodeAs[ledger.ArchiveCategory],
	ledger.UnarchiveCategory{}.CommandName():           decodeAs[ledger.UnarchiveCategory],
	ledger.SetBudgeting{}.CommandName():                decodeAs[ledger.SetBudgeting],
	ledger.RemoveBudgeting{}.CommandName():             decodeAs[ledger.RemoveBudgeting],
	ledger.ImportHistoricalTransaction{}.CommandName(): decodeAs[ledger.ImportHistoricalTransaction],
	ledger.AttestHistoricalImport{}.CommandName():      decodeAs[ledger.AttestHistoricalImport],
	ledger.RolloverMonth{}.CommandName():               decodeAs[ledger.RolloverMonth],
	ledger.MakeMonthlyAttestation{}.CommandName():      decodeAs[ledger.MakeMonthlyAttestation],
	ledger.CloseLedger{}.CommandName():                 decodeAs[ledger.CloseLedger],

	// Alias of attest_historical_import.
	"activate_ledger": decodeAs[ledger.ActivateLedger],
}

func decodeAs[C ledger.Command](w http.ResponseWriter, r *http.Request) (ledger.Command, error) {
	var cmd C
	if err := decodeJSON(w, r, &cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

// decodeJSON reads a single JSON object from the request body into dst.
// Unknown fields are rejected. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.WithMessage(apperrors.ErrInvalidArgument, "request body exceeds %d bytes", maxBodyBytes)
		}
		return apperrors.Wrap(apperrors.WithMessage(apperrors.ErrInvalidArgument, "malformed request body"), err)
	}
	if dec.More() {
		return apperrors.WithMessage(apperrors.ErrInvalidArgument, "request body must hold a single JSON object")
	}
	return nil
}

// decodeCommand builds the named command from the request body.
func decodeCommand(w http.ResponseWriter, r *http.Request, name string) (ledger.Command, error) {
	decode, ok := commandDecoders[strings.ToLower(name)]
	if !ok {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidArgument, "unknown command %q", name)
	}
	return decode(w, r)
}

// pathLedgerID parses the {id} path segment.
func pathLedgerID(r *http.Request) (core.LedgerID, error) {
	return core.ParseLedgerID(strings.TrimSpace(r.PathValue("id")))
}

// queryPeriod parses the optional ?period=YYYY-MM parameter. ok is false when
// the parameter is absent.
func queryPeriod(r *http.Request) (period core.YearMonth, ok bool, err error) {
	v := strings.TrimSpace(r.URL.Query().Get("period"))
	if v == "" {
		return core.YearMonth{}, false, nil
	}
	period, err = core.ParseYearMonth(v)
	if err != nil {
		return core.YearMonth{}, false, apperrors.WithMessage(apperrors.ErrInvalidArgument, "period must be YYYY-MM, got %q", v)
	}
	return period, true, nil
}
