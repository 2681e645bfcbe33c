package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cashflow/internal/category"
	"cashflow/internal/core"
	apperrors "cashflow/internal/errors"
	"cashflow/internal/forecast"
	"cashflow/internal/ledger"
)

var now = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "cashflow.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

// newLedger creates a ledger and returns it with the envelopes of its history.
func newLedger(t *testing.T, owner, name string) (*ledger.Ledger, []ledger.Envelope) {
	t.Helper()
	l, events, err := ledger.Create(ledger.CreateLedger{
		OwnerID: owner,
		Name:    name,
		BankAccount: ledger.BankAccount{
			Name:    "Checking",
			Balance: core.MustParseMoney("100", "USD"),
		},
	}, now)
	if err != nil {
		t.Fatalf("Create error = %v", err)
	}
	return l, encode(t, 0, events)
}

func encode(t *testing.T, from uint64, events []ledger.Event) []ledger.Envelope {
	t.Helper()
	envs := make([]ledger.Envelope, len(events))
	for i, evt := range events {
		env, err := ledger.Encode(from+uint64(i)+1, evt)
		if err != nil {
			t.Fatalf("Encode error = %v", err)
		}
		envs[i] = env
	}
	return envs
}

func appendExpected(t *testing.T, l *ledger.Ledger, amount string) []ledger.Envelope {
	t.Helper()
	version := l.Version
	events, err := l.Execute(ledger.AppendExpectedTransaction{
		Category:  category.Uncategorized,
		Name:      "Rent",
		Money:     core.MustParseMoney(amount, "USD"),
		Direction: core.Outflow,
		DueDate:   now.AddDate(0, 0, 5),
	}, now)
	if err != nil {
		t.Fatalf("Execute error = %v", err)
	}
	return encode(t, version, events)
}

func TestCreateLedgerAndLoadEvents(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	l, envs := newLedger(t, "owner-1", "Household")

	rec := LedgerRecord{LedgerID: l.ID, OwnerID: "owner-1", Name: "Household", CreatedAt: now}
	if err := repo.CreateLedger(ctx, rec, envs); err != nil {
		t.Fatalf("CreateLedger error = %v", err)
	}
	more := appendExpected(t, l, "40")
	if err := repo.AppendEvents(ctx, l.ID, 1, more); err != nil {
		t.Fatalf("AppendEvents error = %v", err)
	}

	loaded, err := repo.LoadEnvelopes(ctx, l.ID)
	if err != nil {
		t.Fatalf("LoadEnvelopes error = %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d events, want 2", len(loaded))
	}
	for _, env := range loaded {
		if !env.VerifyChecksum() {
			t.Errorf("seq %d checksum does not verify after storage", env.Seq)
		}
	}

	replayed, err := ledger.ReplayEnvelopes(loaded)
	if err != nil {
		t.Fatalf("ReplayEnvelopes error = %v", err)
	}
	if replayed.LastEventChecksum != l.LastEventChecksum || replayed.Version != l.Version {
		t.Errorf("replayed version %d checksum %s, want %d %s",
			replayed.Version, replayed.LastEventChecksum, l.Version, l.LastEventChecksum)
	}

	tail, err := repo.ListEvents(ctx, l.ID, 1, 10)
	if err != nil {
		t.Fatalf("ListEvents error = %v", err)
	}
	if len(tail) != 1 || tail[0].Seq != 2 {
		t.Errorf("ListEvents after 1 = %+v, want only seq 2", tail)
	}
}

func TestLoadUnknownLedger(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.LoadEnvelopes(context.Background(), core.LedgerID("CF0000000001"))
	if !errors.Is(err, apperrors.ErrLedgerNotFound) {
		t.Fatalf("error = %v, want ErrLedgerNotFound", err)
	}
}

func TestAppendEventsOptimisticConcurrency(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	l, envs := newLedger(t, "owner-1", "Household")
	if err := repo.CreateLedger(ctx, LedgerRecord{LedgerID: l.ID, OwnerID: "owner-1", Name: "Household", CreatedAt: now}, envs); err != nil {
		t.Fatalf("CreateLedger error = %v", err)
	}

	first := appendExpected(t, l, "10")
	if err := repo.AppendEvents(ctx, l.ID, 1, first); err != nil {
		t.Fatalf("AppendEvents error = %v", err)
	}

	// A writer that still believes the ledger is at version 1.
	stale := []ledger.Envelope{first[0]}
	stale[0].EventID = "another-event"
	err := repo.AppendEvents(ctx, l.ID, 1, stale)
	if !errors.Is(err, apperrors.ErrConcurrentModification) {
		t.Fatalf("error = %v, want ErrConcurrentModification", err)
	}

	loaded, err := repo.LoadEnvelopes(ctx, l.ID)
	if err != nil {
		t.Fatalf("LoadEnvelopes error = %v", err)
	}
	if len(loaded) != 2 {
		t.Errorf("log has %d events after refused append, want 2", len(loaded))
	}
}

func TestLedgerNamesAreUniquePerOwner(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	tests := []struct {
		name    string
		owner   string
		ledger  string
		wantErr error
	}{
		{name: "first ledger", owner: "owner-1", ledger: "Household"},
		{name: "same name for another owner", owner: "owner-2", ledger: "Household"},
		{name: "second name for same owner", owner: "owner-1", ledger: "Savings"},
		{name: "duplicate name", owner: "owner-1", ledger: "Household", wantErr: apperrors.ErrLedgerNameTaken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, envs := newLedger(t, tt.owner, tt.ledger)
			err := repo.CreateLedger(ctx, LedgerRecord{LedgerID: l.ID, OwnerID: tt.owner, Name: tt.ledger, CreatedAt: now}, envs)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("CreateLedger error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("CreateLedger error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	taken, err := repo.LedgerNameTaken(ctx, "owner-1", "Savings")
	if err != nil || !taken {
		t.Errorf("LedgerNameTaken = %v, %v; want true", taken, err)
	}
	owned, err := repo.ListLedgersByOwner(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListLedgersByOwner error = %v", err)
	}
	if len(owned) != 2 {
		t.Errorf("owner-1 has %d ledgers, want 2", len(owned))
	}
}

func TestCreateLedgerRefusesDuplicateID(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	l, envs := newLedger(t, "owner-1", "Household")
	if err := repo.CreateLedger(ctx, LedgerRecord{LedgerID: l.ID, OwnerID: "owner-1", Name: "Household", CreatedAt: now}, envs); err != nil {
		t.Fatalf("CreateLedger error = %v", err)
	}

	err := repo.CreateLedger(ctx, LedgerRecord{LedgerID: l.ID, OwnerID: "owner-2", Name: "Savings", CreatedAt: now}, envs)
	if !errors.Is(err, apperrors.ErrLedgerAlreadyExists) {
		t.Fatalf("CreateLedger error = %v, want ErrLedgerAlreadyExists", err)
	}
	if errors.Is(err, apperrors.ErrLedgerNameTaken) {
		t.Errorf("duplicate id reported as a taken name: %v", err)
	}
	if apperrors.KindOf(err) != apperrors.KindStateConflict {
		t.Errorf("kind = %s, want %s", apperrors.KindOf(err), apperrors.KindStateConflict)
	}
}

func TestOutboxState(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	l, envs := newLedger(t, "owner-1", "Household")
	if err := repo.CreateLedger(ctx, LedgerRecord{LedgerID: l.ID, OwnerID: "owner-1", Name: "Household", CreatedAt: now}, envs); err != nil {
		t.Fatalf("CreateLedger error = %v", err)
	}
	if err := repo.AppendEvents(ctx, l.ID, 1, appendExpected(t, l, "10")); err != nil {
		t.Fatalf("AppendEvents error = %v", err)
	}

	pending, err := repo.UnpublishedEvents(ctx, 10)
	if err != nil {
		t.Fatalf("UnpublishedEvents error = %v", err)
	}
	if len(pending) != 2 || pending[0].Seq != 1 || pending[1].Seq != 2 {
		t.Fatalf("unpublished = %+v, want seq 1 and 2 in order", pending)
	}

	if err := repo.MarkPublished(ctx, l.ID, 1); err != nil {
		t.Fatalf("MarkPublished error = %v", err)
	}
	pending, err = repo.UnpublishedEvents(ctx, 10)
	if err != nil {
		t.Fatalf("UnpublishedEvents error = %v", err)
	}
	if len(pending) != 1 || pending[0].Seq != 2 {
		t.Errorf("unpublished after mark = %+v, want only seq 2", pending)
	}

	all, err := repo.ListEvents(ctx, l.ID, 0, 0)
	if err != nil {
		t.Fatalf("ListEvents error = %v", err)
	}
	if all[0].PublishedAt == nil || all[1].PublishedAt != nil {
		t.Errorf("published flags = %v, %v", all[0].PublishedAt, all[1].PublishedAt)
	}
}

func TestStatementPersistence(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	l, envs := newLedger(t, "owner-1", "Household")

	_, err := repo.GetStatement(ctx, l.ID)
	if !errors.Is(err, apperrors.ErrStatementNotFound) {
		t.Fatalf("GetStatement error = %v, want ErrStatementNotFound", err)
	}

	created, err := ledger.Decode(envs[0])
	if err != nil {
		t.Fatalf("Decode error = %v", err)
	}
	stmt, err := forecast.New(created.(ledger.LedgerCreated))
	if err != nil {
		t.Fatalf("forecast.New error = %v", err)
	}
	if err := repo.SaveStatement(ctx, stmt); err != nil {
		t.Fatalf("SaveStatement error = %v", err)
	}

	rec, err := repo.GetStatement(ctx, l.ID)
	if err != nil {
		t.Fatalf("GetStatement error = %v", err)
	}
	if rec.Broken() || rec.Statement == nil {
		t.Fatalf("record = %+v, want a healthy statement", rec)
	}
	if rec.Statement.Version != stmt.Version || rec.Statement.LastMessageChecksum != stmt.LastMessageChecksum {
		t.Errorf("loaded version %d checksum %s", rec.Statement.Version, rec.Statement.LastMessageChecksum)
	}
	if len(rec.Statement.Months) != len(stmt.Months) {
		t.Errorf("loaded %d months, want %d", len(rec.Statement.Months), len(stmt.Months))
	}

	if err := repo.MarkStatementBroken(ctx, l.ID, "seq 2: category missing"); err != nil {
		t.Fatalf("MarkStatementBroken error = %v", err)
	}
	rec, err = repo.GetStatement(ctx, l.ID)
	if err != nil {
		t.Fatalf("GetStatement error = %v", err)
	}
	if !rec.Broken() || rec.Statement == nil {
		t.Errorf("record = %+v, want broken statement with document", rec)
	}

	// Saving a rebuilt statement clears the marker.
	if err := repo.SaveStatement(ctx, stmt); err != nil {
		t.Fatalf("SaveStatement error = %v", err)
	}
	if rec, _ = repo.GetStatement(ctx, l.ID); rec.Broken() {
		t.Errorf("statement still broken after save")
	}
}

func TestMarkBrokenWithoutStatement(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	id := core.LedgerID("CF0000000042")

	if err := repo.MarkStatementBroken(ctx, id, "first event unreadable"); err != nil {
		t.Fatalf("MarkStatementBroken error = %v", err)
	}
	rec, err := repo.GetStatement(ctx, id)
	if err != nil {
		t.Fatalf("GetStatement error = %v", err)
	}
	if !rec.Broken() || rec.Statement != nil {
		t.Errorf("record = %+v, want broken marker without document", rec)
	}
}
