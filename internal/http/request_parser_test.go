package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "cashflow/internal/errors"
	"cashflow/internal/ledger"
)

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		body    string
		want    string
		wantErr bool
	}{
		{name: "confirm", command: "confirm_transaction", body: `{"transaction_id":"CC0000000001"}`, want: "confirm_transaction"},
		{name: "case insensitive", command: "Reject_Transaction", body: `{"transaction_id":"CC0000000001","reason":"dup"}`, want: "reject_transaction"},
		{name: "activate alias", command: "activate_ledger", body: `{"force_attestation":true}`, want: "attest_historical_import"},
		{name: "empty body", command: "rollover_month", body: "", want: "rollover_month"},
		{name: "create has its own route", command: "create_ledger", body: `{}`, wantErr: true},
		{name: "trailing data", command: "close_ledger", body: `{"reason":"a"}{"reason":"b"}`, wantErr: true},
		{name: "wrong type", command: "set_budgeting", body: `{"amount":"ten"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			cmd, err := decodeCommand(httptest.NewRecorder(), r, tt.command)
			if tt.wantErr {
				if apperrors.KindOf(err) != apperrors.KindInvalidArgument {
					t.Fatalf("error = %v, want invalid argument", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeCommand error = %v", err)
			}
			if cmd.CommandName() != tt.want {
				t.Errorf("CommandName = %q, want %q", cmd.CommandName(), tt.want)
			}
		})
	}
}

func TestDecodeCommandKeepsValues(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"transaction_id":"CC0000000001","reason":"duplicate"}`))
	cmd, err := decodeCommand(httptest.NewRecorder(), r, "reject_transaction")
	if err != nil {
		t.Fatalf("decodeCommand error = %v", err)
	}
	reject, ok := cmd.(ledger.RejectTransaction)
	if !ok {
		t.Fatalf("command is %T, want ledger.RejectTransaction value", cmd)
	}
	if reject.TransactionID != "CC0000000001" || reject.Reason != "duplicate" {
		t.Errorf("decoded %+v", reject)
	}
}

func TestQueryPeriod(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?period=2026-04", nil)
	p, ok, err := queryPeriod(r)
	if err != nil || !ok || p.String() != "2026-04" {
		t.Fatalf("queryPeriod = %v, %v, %v", p, ok, err)
	}
	if _, ok, err := queryPeriod(httptest.NewRequest(http.MethodGet, "/", nil)); ok || err != nil {
		t.Fatalf("absent period reported ok=%v err=%v", ok, err)
	}
}
