package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cashflow/internal/core"
	"cashflow/internal/ledger"
	"cashflow/internal/storage"
)

// OutboxStore is the part of the event log the outbox works from.
type OutboxStore interface {
	UnpublishedEvents(ctx context.Context, limit int) ([]storage.StoredEnvelope, error)
	MarkPublished(ctx context.Context, ledgerID core.LedgerID, seq uint64) error
}

// OutboxProcessorConfig holds configuration for the outbox processor
type OutboxProcessorConfig struct {
	// PollInterval is how often to look for unconfirmed events (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of events republished per poll (default: 100)
	BatchSize int

	// MinAge skips events younger than this so the command that stored them
	// gets a chance to publish first (default: 10s)
	MinAge time.Duration
}

// DefaultOutboxProcessorConfig returns sensible defaults
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    100,
		MinAge:       10 * time.Second,
	}
}

// OutboxProcessor republishes stored events whose publish was never
// confirmed, in sequence order per ledger.
type OutboxProcessor struct {
	store     OutboxStore
	publisher Publisher
	config    OutboxProcessorConfig
	now       func() time.Time

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewOutboxProcessor creates a new outbox processor
func NewOutboxProcessor(store OutboxStore, publisher Publisher, config OutboxProcessorConfig) *OutboxProcessor {
	return &OutboxProcessor{
		store:     store,
		publisher: publisher,
		config:    config,
		now:       time.Now,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *OutboxProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("outbox processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Outbox processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Outbox processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Outbox processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *OutboxProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *OutboxProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Catch up on startup
	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch republishes one batch and returns how many events were
// confirmed. After a failure the rest of that ledger's events wait for the
// next poll so they never overtake it.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) int {
	items, err := p.store.UnpublishedEvents(ctx, p.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to read unpublished events", "error", err)
		return 0
	}
	if len(items) == 0 {
		return 0
	}

	slog.DebugContext(ctx, "Republishing outbox batch", "count", len(items))

	cutoff := p.now().Add(-p.config.MinAge)
	blocked := make(map[core.LedgerID]bool)
	published := 0
	for _, item := range items {
		select {
		case <-p.stopCh:
			return published
		case <-ctx.Done():
			return published
		default:
		}

		if blocked[item.LedgerID] {
			continue
		}
		if item.RecordedAt.After(cutoff) {
			blocked[item.LedgerID] = true
			continue
		}
		if err := p.republish(ctx, item.Envelope); err != nil {
			blocked[item.LedgerID] = true
			slog.WarnContext(ctx, "Outbox republish failed",
				"ledger_id", item.LedgerID,
				"seq", item.Seq,
				"error", err)
			continue
		}
		published++
	}

	if published > 0 {
		slog.InfoContext(ctx, "Outbox batch republished", "published", published, "pending", len(items)-published)
	}
	return published
}

func (p *OutboxProcessor) republish(ctx context.Context, env ledger.Envelope) error {
	if err := p.publisher.PublishEvent(ctx, env); err != nil {
		return err
	}
	if err := p.store.MarkPublished(ctx, env.LedgerID, env.Seq); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}
