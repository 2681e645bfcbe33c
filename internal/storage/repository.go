package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cashflow/internal/core"
	apperrors "cashflow/internal/errors"
	"cashflow/internal/forecast"
	"cashflow/internal/ledger"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// LedgerRecord is the registry entry kept next to a ledger's event log.
type LedgerRecord struct {
	LedgerID  core.LedgerID `json:"ledger_id"`
	OwnerID   string        `json:"owner_id"`
	Name      string        `json:"name"`
	CreatedAt time.Time     `json:"created_at"`
}

// StoredEnvelope is an envelope together with its outbox state.
type StoredEnvelope struct {
	ledger.Envelope
	RecordedAt  time.Time
	PublishedAt *time.Time
}

// StatementRecord is a persisted forecast statement. Statement is nil when the
// projection broke before anything could be saved.
type StatementRecord struct {
	Statement    *forecast.Statement
	BrokenReason string
	UpdatedAt    time.Time
}

// Broken reports whether the statement stopped on an event it could not apply.
func (r StatementRecord) Broken() bool { return r.BrokenReason != "" }

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serialises writers; sqlite allows one at a time anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks that the database still answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateLedger registers a new ledger and stores its first events in one
// transaction. A name already used by the owner is ErrLedgerNameTaken and an
// id already registered is ErrLedgerAlreadyExists.
func (r *SQLiteRepository) CreateLedger(ctx context.Context, rec LedgerRecord, envs []ledger.Envelope) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)
	if err := qtx.InsertLedger(ctx, rec); err != nil {
		if isPrimaryKeyError(err) {
			return apperrors.WithMessage(apperrors.ErrLedgerAlreadyExists, "ledger %s already exists", rec.LedgerID)
		}
		if isConstraintError(err) {
			return apperrors.WithMessage(apperrors.ErrLedgerNameTaken, "owner %s already has a ledger named %q", rec.OwnerID, rec.Name)
		}
		return fmt.Errorf("insert ledger: %w", err)
	}
	if err := r.appendEvents(ctx, qtx, rec.LedgerID, 0, envs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Ledger registered",
		"ledger_id", rec.LedgerID,
		"owner_id", rec.OwnerID,
		"events", len(envs))
	return nil
}

// AppendEvents stores envs after the event at expectedVersion. When another
// writer got there first the whole batch is refused with
// ErrConcurrentModification.
func (r *SQLiteRepository) AppendEvents(ctx context.Context, ledgerID core.LedgerID, expectedVersion uint64, envs []ledger.Envelope) error {
	if len(envs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := r.appendEvents(ctx, r.queries.WithTx(tx), ledgerID, expectedVersion, envs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) appendEvents(ctx context.Context, qtx *Queries, ledgerID core.LedgerID, expectedVersion uint64, envs []ledger.Envelope) error {
	current, err := qtx.CurrentSeq(ctx, string(ledgerID))
	if err != nil {
		return fmt.Errorf("get event seq: %w", err)
	}
	if uint64(current) != expectedVersion {
		return apperrors.WithMessage(apperrors.ErrConcurrentModification,
			"ledger %s is at version %d, expected %d", ledgerID, current, expectedVersion)
	}

	recordedAt := formatTime(r.now())
	for i, env := range envs {
		if env.LedgerID != ledgerID {
			return fmt.Errorf("event %d belongs to ledger %s, not %s", i, env.LedgerID, ledgerID)
		}
		if want := expectedVersion + uint64(i) + 1; env.Seq != want {
			return fmt.Errorf("event %d has seq %d, want %d", i, env.Seq, want)
		}
		err := qtx.InsertEvent(ctx, eventRow{
			LedgerID:   string(env.LedgerID),
			Seq:        int64(env.Seq),
			EventID:    env.EventID,
			EventType:  string(env.Type),
			OccurredAt: formatTime(env.OccurredAt),
			Checksum:   env.Checksum,
			Payload:    string(env.Payload),
			RecordedAt: recordedAt,
		})
		if err != nil {
			if isConstraintError(err) {
				return apperrors.Wrap(apperrors.ErrConcurrentModification, err)
			}
			return fmt.Errorf("append event: %w", err)
		}
	}
	return nil
}

// ListEvents returns up to limit events of a ledger after afterSeq, in order.
// A limit of zero or less returns the whole tail.
func (r *SQLiteRepository) ListEvents(ctx context.Context, ledgerID core.LedgerID, afterSeq uint64, limit int) ([]StoredEnvelope, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.queries.ListEvents(ctx, string(ledgerID), int64(afterSeq), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return toEnvelopes(rows)
}

// LoadEnvelopes returns the full event log of a ledger. An unknown ledger is
// ErrLedgerNotFound.
func (r *SQLiteRepository) LoadEnvelopes(ctx context.Context, ledgerID core.LedgerID) ([]ledger.Envelope, error) {
	stored, err := r.ListEvents(ctx, ledgerID, 0, 0)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrLedgerNotFound, "ledger %s not found", ledgerID)
	}
	envs := make([]ledger.Envelope, len(stored))
	for i, s := range stored {
		envs[i] = s.Envelope
	}
	return envs, nil
}

// UnpublishedEvents returns events whose publish was never confirmed, ordered
// by ledger and sequence number.
func (r *SQLiteRepository) UnpublishedEvents(ctx context.Context, limit int) ([]StoredEnvelope, error) {
	rows, err := r.queries.UnpublishedEvents(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get unpublished events: %w", err)
	}
	return toEnvelopes(rows)
}

// MarkPublished records the broker's confirmation for one event.
func (r *SQLiteRepository) MarkPublished(ctx context.Context, ledgerID core.LedgerID, seq uint64) error {
	if err := r.queries.MarkEventPublished(ctx, string(ledgerID), int64(seq), formatTime(r.now())); err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	slog.DebugContext(ctx, "Event marked as published", "ledger_id", ledgerID, "seq", seq)
	return nil
}

func toEnvelopes(rows []eventRow) ([]StoredEnvelope, error) {
	out := make([]StoredEnvelope, 0, len(rows))
	for _, row := range rows {
		occurredAt, err := parseTime(row.OccurredAt)
		if err != nil {
			return nil, err
		}
		recordedAt, err := parseTime(row.RecordedAt)
		if err != nil {
			return nil, err
		}
		s := StoredEnvelope{
			Envelope: ledger.Envelope{
				EventID:    row.EventID,
				LedgerID:   core.LedgerID(row.LedgerID),
				Seq:        uint64(row.Seq),
				Type:       ledger.Type(row.EventType),
				OccurredAt: occurredAt,
				Checksum:   row.Checksum,
				Payload:    json.RawMessage(row.Payload),
			},
			RecordedAt: recordedAt,
		}
		if row.PublishedAt.Valid {
			publishedAt, err := parseTime(row.PublishedAt.String)
			if err != nil {
				return nil, err
			}
			s.PublishedAt = &publishedAt
		}
		out = append(out, s)
	}
	return out, nil
}

// LedgerNameTaken reports whether owner already has a ledger called name.
func (r *SQLiteRepository) LedgerNameTaken(ctx context.Context, ownerID, name string) (bool, error) {
	n, err := r.queries.CountLedgersByName(ctx, ownerID, name)
	if err != nil {
		return false, fmt.Errorf("count ledgers by name: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) ListLedgersByOwner(ctx context.Context, ownerID string) ([]LedgerRecord, error) {
	items, err := r.queries.ListLedgersByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list ledgers for owner %s: %w", ownerID, err)
	}
	return items, nil
}

// SaveStatement stores a statement and clears any broken marker.
func (r *SQLiteRepository) SaveStatement(ctx context.Context, s *forecast.Statement) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal statement %s: %w", s.LedgerID, err)
	}
	if err := r.queries.UpsertStatement(ctx, string(s.LedgerID), int64(s.Version), s.LastMessageChecksum, string(doc), formatTime(r.now())); err != nil {
		return fmt.Errorf("save statement %s: %w", s.LedgerID, err)
	}
	return nil
}

// GetStatement loads a statement. An unknown ledger is ErrStatementNotFound.
func (r *SQLiteRepository) GetStatement(ctx context.Context, ledgerID core.LedgerID) (StatementRecord, error) {
	doc, reason, updatedAt, err := r.queries.GetStatement(ctx, string(ledgerID))
	if errors.Is(err, sql.ErrNoRows) {
		return StatementRecord{}, apperrors.WithMessage(apperrors.ErrStatementNotFound, "no forecast statement for ledger %s", ledgerID)
	}
	if err != nil {
		return StatementRecord{}, fmt.Errorf("get statement %s: %w", ledgerID, err)
	}

	rec := StatementRecord{BrokenReason: reason}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return StatementRecord{}, err
	}
	if doc != "" {
		var s forecast.Statement
		if err := json.Unmarshal([]byte(doc), &s); err != nil {
			return StatementRecord{}, fmt.Errorf("decode statement %s: %w", ledgerID, err)
		}
		rec.Statement = &s
	}
	return rec, nil
}

// MarkStatementBroken flags a statement so no further events are applied to
// it until it is rebuilt.
func (r *SQLiteRepository) MarkStatementBroken(ctx context.Context, ledgerID core.LedgerID, reason string) error {
	if err := r.queries.MarkStatementBroken(ctx, string(ledgerID), reason, formatTime(r.now())); err != nil {
		return fmt.Errorf("mark statement %s broken: %w", ledgerID, err)
	}
	slog.WarnContext(ctx, "Forecast statement marked broken", "ledger_id", ledgerID, "reason", reason)
	return nil
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// isPrimaryKeyError reports a duplicate primary key. Connections without
// extended result codes only give SQLITE_CONSTRAINT, so the message is
// checked too.
func isPrimaryKeyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(sqliteErr.Error(), "ledgers.ledger_id")
	}
	return false
}
