package http

import (
	"context"
	"net/http"

	"cashflow/internal/core"
	apperrors "cashflow/internal/errors"
	"cashflow/internal/forecast"
	"cashflow/internal/ledger"
	"cashflow/internal/services"
	"cashflow/internal/storage"
)

// LedgerAPI is the write side served by the API.
type LedgerAPI interface {
	Create(ctx context.Context, cmd ledger.CreateLedger) (*services.CommandResult, error)
	Execute(ctx context.Context, id core.LedgerID, cmd ledger.Command) (*services.CommandResult, error)
	GetLedger(ctx context.Context, id core.LedgerID) (*ledger.Ledger, error)
	ListLedgersByOwner(ctx context.Context, ownerID string) ([]storage.LedgerRecord, error)
}

// ForecastAPI is the read side served by the API.
type ForecastAPI interface {
	GetStatement(ctx context.Context, id core.LedgerID) (*forecast.Statement, error)
	Rebuild(ctx context.Context, id core.LedgerID) (*forecast.Statement, error)
	VerifyConsistency(ctx context.Context, id core.LedgerID) (services.ConsistencyReport, error)
}

// forecastResponse is the body of GET /ledgers/{id}/forecast.
type forecastResponse struct {
	Statement *forecast.Statement   `json:"statement,omitempty"`
	Stats     []forecast.MonthStats `json:"stats"`
}

func (s *Server) handleCreateLedger(w http.ResponseWriter, r *http.Request) {
	var cmd ledger.CreateLedger
	if err := decodeJSON(w, r, &cmd); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.ledgers.Create(r.Context(), cmd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/ledgers/"+res.Ledger.ID.String())
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	id, err := pathLedgerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cmd, err := decodeCommand(w, r, r.PathValue("command"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.ledgers.Execute(r.Context(), id, cmd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	id, err := pathLedgerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	l, err := s.ledgers.GetLedger(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleListLedgers(w http.ResponseWriter, r *http.Request) {
	records, err := s.ledgers.ListLedgersByOwner(r.Context(), r.PathValue("owner"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []storage.LedgerRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ledgers": records})
}

// handleForecast returns the whole statement, or a single month's totals when
// ?period=YYYY-MM is given.
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	id, err := pathLedgerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	period, onePeriod, err := queryPeriod(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stmt, err := s.forecasts.GetStatement(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if onePeriod {
		st, err := stmt.Stats(period)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, forecastResponse{Stats: []forecast.MonthStats{st}})
		return
	}
	stats, err := stmt.AllStats()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forecastResponse{Statement: stmt, Stats: stats})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	id, err := pathLedgerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stmt, err := s.forecasts.Rebuild(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ledger_id": stmt.LedgerID,
		"version":   stmt.Version,
		"checksum":  stmt.LastMessageChecksum,
	})
}

// handleConsistency answers 200 when the statement matches the ledger and
// 409 otherwise, with the comparison in both cases.
func (s *Server) handleConsistency(w http.ResponseWriter, r *http.Request) {
	id, err := pathLedgerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	report, err := s.forecasts.VerifyConsistency(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if !report.Consistent {
		status = http.StatusConflict
	}
	writeJSON(w, status, report)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	for _, rc := range s.readiness {
		if err := rc.Check(r.Context()); err != nil {
			writeError(w, r, apperrors.Wrap(apperrors.WithMessage(apperrors.ErrDependencyUnavailable, "%s is not ready", rc.Name), err))
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
