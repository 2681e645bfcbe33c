package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cashflow/internal/core"
	apperrors "cashflow/internal/errors"
	"cashflow/internal/ledger"
	"cashflow/internal/log"
	"cashflow/internal/storage"
)

// EventStore is the ledger event log with its owner registry.
type EventStore interface {
	CreateLedger(ctx context.Context, rec storage.LedgerRecord, envs []ledger.Envelope) error
	AppendEvents(ctx context.Context, ledgerID core.LedgerID, expectedVersion uint64, envs []ledger.Envelope) error
	LoadEnvelopes(ctx context.Context, ledgerID core.LedgerID) ([]ledger.Envelope, error)
	MarkPublished(ctx context.Context, ledgerID core.LedgerID, seq uint64) error
	LedgerNameTaken(ctx context.Context, ownerID, name string) (bool, error)
	ListLedgersByOwner(ctx context.Context, ownerID string) ([]storage.LedgerRecord, error)
}

// Publisher delivers events to the bus and returns once the broker has
// confirmed them.
type Publisher interface {
	PublishEvent(ctx context.Context, env ledger.Envelope) error
}

// CommandResult is what a successful command leaves behind.
type CommandResult struct {
	Ledger *ledger.Ledger    `json:"ledger"`
	Events []ledger.Envelope `json:"events"`
}

// LedgerService is the single writer of every ledger. Commands against one
// ledger run one at a time; a command is complete only once its events are
// stored and confirmed by the broker.
type LedgerService struct {
	store     EventStore
	publisher Publisher
	logger    *log.StructuredLogger
	now       func() time.Time

	locks *keyedMutex
}

func NewLedgerService(store EventStore, publisher Publisher, logger *log.Logger) *LedgerService {
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &LedgerService{
		store:     store,
		publisher: publisher,
		logger:    log.NewStructuredLogger(logger),
		now:       func() time.Time { return time.Now().UTC() },
		locks:     newKeyedMutex(),
	}
}

// Create opens a new ledger.
func (s *LedgerService) Create(ctx context.Context, cmd ledger.CreateLedger) (*CommandResult, error) {
	taken, err := s.store.LedgerNameTaken(ctx, cmd.OwnerID, cmd.Name)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.WithMessage(apperrors.ErrLedgerNameTaken, "owner %s already has a ledger named %q", cmd.OwnerID, cmd.Name)
	}

	l, events, err := ledger.Create(cmd, s.now())
	if err != nil {
		return nil, err
	}
	defer s.locks.lock(l.ID)()

	envs, err := encodeAll(0, events)
	if err != nil {
		return nil, err
	}
	rec := storage.LedgerRecord{LedgerID: l.ID, OwnerID: l.OwnerID, Name: l.Name, CreatedAt: l.CreatedAt}
	if err := s.store.CreateLedger(ctx, rec, envs); err != nil {
		return nil, err
	}
	if err := s.publish(ctx, envs); err != nil {
		return nil, err
	}

	s.logger.LogCommandExecuted(ctx, string(l.ID), cmd.CommandName(), len(envs), l.Version)
	return &CommandResult{Ledger: l, Events: envs}, nil
}

// Execute runs cmd against the current state of a ledger.
func (s *LedgerService) Execute(ctx context.Context, id core.LedgerID, cmd ledger.Command) (*CommandResult, error) {
	if _, err := core.ParseLedgerID(string(id)); err != nil {
		return nil, err
	}
	defer s.locks.lock(id)()

	l, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	version := l.Version

	events, err := l.Execute(cmd, s.now())
	if err != nil {
		return nil, err
	}
	envs, err := encodeAll(version, events)
	if err != nil {
		return nil, err
	}
	if err := s.store.AppendEvents(ctx, id, version, envs); err != nil {
		return nil, err
	}
	if err := s.publish(ctx, envs); err != nil {
		return nil, err
	}

	s.logger.LogCommandExecuted(ctx, string(id), cmd.CommandName(), len(envs), l.Version)
	return &CommandResult{Ledger: l, Events: envs}, nil
}

// publish hands events to the bus in order and stops at the first failure;
// the outbox processor retries whatever is left unconfirmed.
func (s *LedgerService) publish(ctx context.Context, envs []ledger.Envelope) error {
	for _, env := range envs {
		if err := s.publisher.PublishEvent(ctx, env); err != nil {
			fields := log.NewFields().WithEvent(string(env.LedgerID), string(env.Type), env.Seq)
			s.logger.LogError(ctx, "Event stored but not confirmed by the broker", err, log.ComponentLedger, log.OpPublish, fields)
			if apperrors.KindOf(err) == apperrors.KindTransportFailure {
				return err
			}
			return apperrors.Wrap(apperrors.ErrPublishFailed, err)
		}
		if err := s.store.MarkPublished(ctx, env.LedgerID, env.Seq); err != nil {
			// The event is on the bus; the outbox will publish it again and
			// the projector drops the duplicate.
			slog.WarnContext(ctx, "Failed to mark event published",
				"ledger_id", env.LedgerID, "seq", env.Seq, "error", err)
		}
	}
	return nil
}

func (s *LedgerService) load(ctx context.Context, id core.LedgerID) (*ledger.Ledger, error) {
	envs, err := s.store.LoadEnvelopes(ctx, id)
	if err != nil {
		return nil, err
	}
	l, err := ledger.ReplayEnvelopes(envs)
	if err != nil {
		return nil, fmt.Errorf("replay ledger %s: %w", id, err)
	}
	return l, nil
}

// GetLedger rebuilds a ledger from its event log.
func (s *LedgerService) GetLedger(ctx context.Context, id core.LedgerID) (*ledger.Ledger, error) {
	if _, err := core.ParseLedgerID(string(id)); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

func (s *LedgerService) ListLedgersByOwner(ctx context.Context, ownerID string) ([]storage.LedgerRecord, error) {
	if ownerID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidArgument, "owner id is required")
	}
	return s.store.ListLedgersByOwner(ctx, ownerID)
}

// Checksum returns the version and last event checksum of a ledger.
func (s *LedgerService) Checksum(ctx context.Context, id core.LedgerID) (uint64, string, error) {
	l, err := s.GetLedger(ctx, id)
	if err != nil {
		return 0, "", err
	}
	return l.Version, l.LastEventChecksum, nil
}

func encodeAll(after uint64, events []ledger.Event) ([]ledger.Envelope, error) {
	envs := make([]ledger.Envelope, len(events))
	for i, evt := range events {
		env, err := ledger.Encode(after+uint64(i)+1, evt)
		if err != nil {
			return nil, err
		}
		envs[i] = env
	}
	return envs, nil
}
