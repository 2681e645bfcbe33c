package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cashflow/internal/core"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

type eventRow struct {
	LedgerID    string
	Seq         int64
	EventID     string
	EventType   string
	OccurredAt  string
	Checksum    string
	Payload     string
	RecordedAt  string
	PublishedAt sql.NullString
}

const currentSeq = `SELECT COALESCE(MAX(seq), 0) FROM ledger_events WHERE ledger_id = ?`

func (q *Queries) CurrentSeq(ctx context.Context, ledgerID string) (int64, error) {
	var seq int64
	err := q.db.QueryRowContext(ctx, currentSeq, ledgerID).Scan(&seq)
	return seq, err
}

const insertEvent = `
INSERT INTO ledger_events (
    ledger_id, seq, event_id, event_type, occurred_at, checksum, payload, recorded_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertEvent(ctx context.Context, r eventRow) error {
	_, err := q.db.ExecContext(ctx, insertEvent,
		r.LedgerID, r.Seq, r.EventID, r.EventType, r.OccurredAt, r.Checksum, r.Payload, r.RecordedAt)
	return err
}

const eventColumns = `ledger_id, seq, event_id, event_type, occurred_at, checksum, payload, recorded_at, published_at`

const listEvents = `
SELECT ` + eventColumns + `
FROM ledger_events
WHERE ledger_id = ? AND seq > ?
ORDER BY seq
LIMIT ?`

func (q *Queries) ListEvents(ctx context.Context, ledgerID string, afterSeq, limit int64) ([]eventRow, error) {
	return q.queryEvents(ctx, listEvents, ledgerID, afterSeq, limit)
}

const unpublishedEvents = `
SELECT ` + eventColumns + `
FROM ledger_events
WHERE published_at IS NULL
ORDER BY ledger_id, seq
LIMIT ?`

func (q *Queries) UnpublishedEvents(ctx context.Context, limit int64) ([]eventRow, error) {
	return q.queryEvents(ctx, unpublishedEvents, limit)
}

func (q *Queries) queryEvents(ctx context.Context, query string, args ...any) ([]eventRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []eventRow
	for rows.Next() {
		var r eventRow
		if err := rows.Scan(&r.LedgerID, &r.Seq, &r.EventID, &r.EventType, &r.OccurredAt,
			&r.Checksum, &r.Payload, &r.RecordedAt, &r.PublishedAt); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const markEventPublished = `
UPDATE ledger_events SET published_at = ?
WHERE ledger_id = ? AND seq = ? AND published_at IS NULL`

func (q *Queries) MarkEventPublished(ctx context.Context, ledgerID string, seq int64, at string) error {
	_, err := q.db.ExecContext(ctx, markEventPublished, at, ledgerID, seq)
	return err
}

const insertLedger = `
INSERT INTO ledgers (ledger_id, owner_id, name, created_at) VALUES (?, ?, ?, ?)`

func (q *Queries) InsertLedger(ctx context.Context, r LedgerRecord) error {
	_, err := q.db.ExecContext(ctx, insertLedger, string(r.LedgerID), r.OwnerID, r.Name, formatTime(r.CreatedAt))
	return err
}

const countLedgersByName = `SELECT COUNT(*) FROM ledgers WHERE owner_id = ? AND name = ?`

func (q *Queries) CountLedgersByName(ctx context.Context, ownerID, name string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countLedgersByName, ownerID, name).Scan(&n)
	return n, err
}

const listLedgersByOwner = `
SELECT ledger_id, owner_id, name, created_at
FROM ledgers
WHERE owner_id = ?
ORDER BY created_at, ledger_id`

func (q *Queries) ListLedgersByOwner(ctx context.Context, ownerID string) ([]LedgerRecord, error) {
	rows, err := q.db.QueryContext(ctx, listLedgersByOwner, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []LedgerRecord
	for rows.Next() {
		var (
			r                   LedgerRecord
			ledgerID, createdAt string
		)
		if err := rows.Scan(&ledgerID, &r.OwnerID, &r.Name, &createdAt); err != nil {
			return nil, err
		}
		r.LedgerID = core.LedgerID(ledgerID)
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const upsertStatement = `
INSERT INTO forecast_statements (ledger_id, version, checksum, document, broken_reason, updated_at)
VALUES (?, ?, ?, ?, '', ?)
ON CONFLICT(ledger_id) DO UPDATE SET
    version = excluded.version,
    checksum = excluded.checksum,
    document = excluded.document,
    broken_reason = '',
    updated_at = excluded.updated_at`

func (q *Queries) UpsertStatement(ctx context.Context, ledgerID string, version int64, checksum, document, updatedAt string) error {
	_, err := q.db.ExecContext(ctx, upsertStatement, ledgerID, version, checksum, document, updatedAt)
	return err
}

const getStatement = `
SELECT document, broken_reason, updated_at FROM forecast_statements WHERE ledger_id = ?`

func (q *Queries) GetStatement(ctx context.Context, ledgerID string) (document, brokenReason, updatedAt string, err error) {
	err = q.db.QueryRowContext(ctx, getStatement, ledgerID).Scan(&document, &brokenReason, &updatedAt)
	return document, brokenReason, updatedAt, err
}

const markStatementBroken = `
INSERT INTO forecast_statements (ledger_id, version, checksum, document, broken_reason, updated_at)
VALUES (?, 0, '', '', ?, ?)
ON CONFLICT(ledger_id) DO UPDATE SET
    broken_reason = excluded.broken_reason,
    updated_at = excluded.updated_at`

func (q *Queries) MarkStatementBroken(ctx context.Context, ledgerID, reason, updatedAt string) error {
	_, err := q.db.ExecContext(ctx, markStatementBroken, ledgerID, reason, updatedAt)
	return err
}
