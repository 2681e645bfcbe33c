package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cashflow/internal/cache"
	"cashflow/internal/core"
	apperrors "cashflow/internal/errors"
	"cashflow/internal/forecast"
	"cashflow/internal/ledger"
	"cashflow/internal/log"
	"cashflow/internal/storage"
)

// StatementStore persists forecast statements and reads the event log they
// are projected from.
type StatementStore interface {
	GetStatement(ctx context.Context, ledgerID core.LedgerID) (storage.StatementRecord, error)
	SaveStatement(ctx context.Context, s *forecast.Statement) error
	MarkStatementBroken(ctx context.Context, ledgerID core.LedgerID, reason string) error
	ListEvents(ctx context.Context, ledgerID core.LedgerID, afterSeq uint64, limit int) ([]storage.StoredEnvelope, error)
	LoadEnvelopes(ctx context.Context, ledgerID core.LedgerID) ([]ledger.Envelope, error)
}

// Outcome is what projecting one message did.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeBroken means the message cannot be projected and belongs in the
	// dead-letter queue.
	OutcomeBroken Outcome = "broken"
)

// ConsistencyReport compares a ledger with its forecast statement.
type ConsistencyReport struct {
	LedgerID          core.LedgerID `json:"ledger_id"`
	LedgerVersion     uint64        `json:"ledger_version"`
	LedgerChecksum    string        `json:"ledger_checksum"`
	StatementVersion  uint64        `json:"statement_version"`
	StatementChecksum string        `json:"statement_checksum"`
	BrokenReason      string        `json:"broken_reason,omitempty"`
	Consistent        bool          `json:"consistent"`
}

// ForecastService keeps forecast statements in step with ledger events.
type ForecastService struct {
	store  StatementStore
	cache  *cache.LRUCache[core.LedgerID, *forecast.Statement]
	logger *log.StructuredLogger
	locks  *keyedMutex
}

// NewForecastService wires a statement store with a read cache. Cached
// statements are shared and must not be modified.
func NewForecastService(store StatementStore, statements *cache.LRUCache[core.LedgerID, *forecast.Statement], logger *log.Logger) *ForecastService {
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &ForecastService{
		store:  store,
		cache:  statements,
		logger: log.NewStructuredLogger(logger),
		locks:  newKeyedMutex(),
	}
}

// Project applies one published event. A returned error is transient and the
// message should be delivered again; OutcomeBroken means it never will apply.
func (s *ForecastService) Project(ctx context.Context, env ledger.Envelope) (Outcome, error) {
	defer s.locks.lock(env.LedgerID)()

	if !env.VerifyChecksum() {
		return s.markBroken(ctx, env.LedgerID, fmt.Sprintf("seq %d: checksum mismatch", env.Seq))
	}
	evt, err := ledger.Decode(env)
	if err != nil {
		return s.markBroken(ctx, env.LedgerID, err.Error())
	}

	stmt, err := s.load(ctx, env.LedgerID)
	switch {
	case errors.Is(err, apperrors.ErrStatementBroken):
		slog.WarnContext(ctx, "Dropping event for broken statement",
			"ledger_id", env.LedgerID, "seq", env.Seq, "event_type", env.Type)
		return OutcomeBroken, nil
	case errors.Is(err, apperrors.ErrStatementNotFound):
		created, ok := evt.(ledger.LedgerCreated)
		if !ok || env.Seq != 1 {
			// The creation message has not arrived yet; build from the log.
			return s.catchUp(ctx, nil, env, evt)
		}
		if stmt, err = forecast.New(created); err != nil {
			return s.markBroken(ctx, env.LedgerID, err.Error())
		}
		return s.save(ctx, stmt, env)
	case err != nil:
		return "", err
	}

	applied, err := stmt.Apply(env.Seq, evt)
	switch {
	case errors.Is(err, apperrors.ErrEventSequenceGap):
		return s.catchUp(ctx, stmt, env, evt)
	case err != nil:
		return s.markBroken(ctx, env.LedgerID, err.Error())
	case !applied:
		slog.DebugContext(ctx, "Duplicate event ignored",
			"ledger_id", env.LedgerID, "seq", env.Seq, "version", stmt.Version)
		return OutcomeDuplicate, nil
	}
	return s.save(ctx, stmt, env)
}

// catchUp applies the events missing between the statement and env from the
// event log, then env itself.
func (s *ForecastService) catchUp(ctx context.Context, stmt *forecast.Statement, env ledger.Envelope, evt ledger.Event) (Outcome, error) {
	var after uint64
	if stmt != nil {
		after = stmt.Version
	}
	want := env.Seq - after - 1
	var missing []storage.StoredEnvelope
	if want > 0 {
		var err error
		if missing, err = s.store.ListEvents(ctx, env.LedgerID, after, int(want)); err != nil {
			return "", err
		}
		if uint64(len(missing)) != want {
			return "", fmt.Errorf("ledger %s: event log has %d of %d events before seq %d",
				env.LedgerID, len(missing), want, env.Seq)
		}
	}

	slog.InfoContext(ctx, "Catching up forecast statement from event log",
		"ledger_id", env.LedgerID, "from", after, "to", env.Seq)

	var err error
	for _, m := range missing {
		if stmt, err = s.applyStored(stmt, m.Envelope); err != nil {
			return s.markBroken(ctx, env.LedgerID, err.Error())
		}
	}
	if stmt, err = s.applyDecoded(stmt, env.Seq, evt); err != nil {
		return s.markBroken(ctx, env.LedgerID, err.Error())
	}
	return s.save(ctx, stmt, env)
}

func (s *ForecastService) applyStored(stmt *forecast.Statement, env ledger.Envelope) (*forecast.Statement, error) {
	if !env.VerifyChecksum() {
		return nil, fmt.Errorf("seq %d: checksum mismatch", env.Seq)
	}
	evt, err := ledger.Decode(env)
	if err != nil {
		return nil, err
	}
	return s.applyDecoded(stmt, env.Seq, evt)
}

// applyDecoded starts the statement on the creation event or applies evt to
// it.
func (s *ForecastService) applyDecoded(stmt *forecast.Statement, seq uint64, evt ledger.Event) (*forecast.Statement, error) {
	if stmt == nil {
		created, ok := evt.(ledger.LedgerCreated)
		if !ok || seq != 1 {
			return nil, fmt.Errorf("event log does not start with %s", ledger.TypeLedgerCreated)
		}
		return forecast.New(created)
	}
	if _, err := stmt.Apply(seq, evt); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (s *ForecastService) save(ctx context.Context, stmt *forecast.Statement, env ledger.Envelope) (Outcome, error) {
	if err := s.store.SaveStatement(ctx, stmt); err != nil {
		return "", err
	}
	if s.cache != nil {
		s.cache.Set(stmt.LedgerID, stmt)
	}
	s.logger.LogEventProjected(ctx, string(env.LedgerID), string(env.Type), env.Seq, stmt.LastMessageChecksum)
	return OutcomeApplied, nil
}

func (s *ForecastService) markBroken(ctx context.Context, id core.LedgerID, reason string) (Outcome, error) {
	if s.cache != nil {
		s.cache.Delete(id)
	}
	if err := s.store.MarkStatementBroken(ctx, id, reason); err != nil {
		return "", err
	}
	fields := log.NewFields()
	fields[log.FieldLedgerID] = string(id)
	s.logger.LogError(ctx, "Forecast statement broken", errors.New(reason), log.ComponentForecast, log.OpProject, fields)
	return OutcomeBroken, nil
}

// load reads a statement straight from the store so it can be modified.
func (s *ForecastService) load(ctx context.Context, id core.LedgerID) (*forecast.Statement, error) {
	rec, err := s.store.GetStatement(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Broken() || rec.Statement == nil {
		return nil, apperrors.WithMessage(apperrors.ErrStatementBroken, "forecast for ledger %s is broken: %s", id, rec.BrokenReason)
	}
	return rec.Statement, nil
}

// Rebuild discards the stored statement and projects the ledger's whole event
// log again. It also clears a broken marker when the log now projects cleanly.
func (s *ForecastService) Rebuild(ctx context.Context, id core.LedgerID) (*forecast.Statement, error) {
	if _, err := core.ParseLedgerID(string(id)); err != nil {
		return nil, err
	}
	defer s.locks.lock(id)()

	envs, err := s.store.LoadEnvelopes(ctx, id)
	if err != nil {
		return nil, err
	}
	var stmt *forecast.Statement
	for _, env := range envs {
		if stmt, err = s.applyStored(stmt, env); err != nil {
			reason := fmt.Sprintf("rebuild stopped at seq %d: %v", env.Seq, err)
			if _, markErr := s.markBroken(ctx, id, reason); markErr != nil {
				return nil, markErr
			}
			return nil, apperrors.Wrap(apperrors.ErrStatementBroken, err)
		}
	}
	if err := s.store.SaveStatement(ctx, stmt); err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(id, stmt)
	}

	slog.InfoContext(ctx, "Forecast statement rebuilt",
		"ledger_id", id,
		"version", stmt.Version,
		"months", len(stmt.Months))
	return stmt, nil
}

// GetStatement returns the current statement of a ledger. The result is
// shared and must not be modified.
func (s *ForecastService) GetStatement(ctx context.Context, id core.LedgerID) (*forecast.Statement, error) {
	if _, err := core.ParseLedgerID(string(id)); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if stmt, ok := s.cache.Get(id); ok {
			return stmt, nil
		}
	}
	stmt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(id, stmt)
	}
	return stmt, nil
}

// VerifyConsistency checks that the statement has seen exactly the events the
// ledger has: same version, same last checksum.
func (s *ForecastService) VerifyConsistency(ctx context.Context, id core.LedgerID) (ConsistencyReport, error) {
	if _, err := core.ParseLedgerID(string(id)); err != nil {
		return ConsistencyReport{}, err
	}
	envs, err := s.store.LoadEnvelopes(ctx, id)
	if err != nil {
		return ConsistencyReport{}, err
	}
	l, err := ledger.ReplayEnvelopes(envs)
	if err != nil {
		return ConsistencyReport{}, err
	}

	report := ConsistencyReport{
		LedgerID:       id,
		LedgerVersion:  l.Version,
		LedgerChecksum: l.LastEventChecksum,
	}
	rec, err := s.store.GetStatement(ctx, id)
	switch {
	case errors.Is(err, apperrors.ErrStatementNotFound):
		return report, nil
	case err != nil:
		return ConsistencyReport{}, err
	}
	report.BrokenReason = rec.BrokenReason
	if rec.Statement != nil {
		report.StatementVersion = rec.Statement.Version
		report.StatementChecksum = rec.Statement.LastMessageChecksum
	}
	report.Consistent = !rec.Broken() &&
		report.StatementVersion == report.LedgerVersion &&
		report.StatementChecksum == report.LedgerChecksum

	if !report.Consistent {
		slog.WarnContext(ctx, "Forecast statement out of step with ledger",
			"ledger_id", id,
			"ledger_version", report.LedgerVersion,
			"statement_version", report.StatementVersion,
			"broken", rec.Broken())
	}
	return report, nil
}
