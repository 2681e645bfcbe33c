// Package worker runs the forecast projection off the event bus.
package worker

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"cashflow/internal/amqp"
	"cashflow/internal/core"
	"cashflow/internal/ledger"
	"cashflow/internal/services"
)

// Projector applies one event to its ledger's forecast.
type Projector interface {
	Project(ctx context.Context, env ledger.Envelope) (services.Outcome, error)
}

// Consumer feeds deliveries to handler until ctx is done.
type Consumer interface {
	Run(ctx context.Context, prefetch int, handler func(amqp.Delivery)) error
}

// ProjectionWorker projects consumed events into forecast statements. Events
// are spread over shards by ledger id; each shard handles its events one at a
// time, so one ledger's events are applied in the order they arrive while
// different ledgers progress in parallel.
type ProjectionWorker struct {
	projector Projector
	shards    int
}

func NewProjectionWorker(projector Projector, shards int) *ProjectionWorker {
	if shards < 1 {
		shards = 1
	}
	return &ProjectionWorker{projector: projector, shards: shards}
}

// Shard returns the lane a ledger's events go to.
func (w *ProjectionWorker) Shard(id core.LedgerID) int {
	h := fnv.New32a()
	h.Write([]byte(id))
	return int(h.Sum32() % uint32(w.shards))
}

// Run consumes until ctx is cancelled or the consumer gives up. Deliveries
// that cannot be settled are logged and left to the broker.
func (w *ProjectionWorker) Run(ctx context.Context, consumer Consumer, prefetch int) error {
	g, gctx := errgroup.WithContext(ctx)

	lanes := make([]chan amqp.Delivery, w.shards)
	for i := range lanes {
		lanes[i] = make(chan amqp.Delivery, prefetch)
		shard, lane := i, lanes[i]
		g.Go(func() error {
			return w.runLane(gctx, shard, lane)
		})
	}

	g.Go(func() error {
		defer func() {
			for _, lane := range lanes {
				close(lane)
			}
		}()
		return consumer.Run(gctx, prefetch, func(d amqp.Delivery) {
			lane := lanes[w.Shard(d.Message.LedgerID)]
			select {
			case lane <- d:
			case <-gctx.Done():
				// Unacked; the broker redelivers it.
			}
		})
	})

	slog.InfoContext(ctx, "Projection worker started", "shards", w.shards, "prefetch", prefetch)
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *ProjectionWorker) runLane(ctx context.Context, shard int, lane <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-lane:
			if !ok {
				return nil
			}
			if err := w.Handle(ctx, d); err != nil {
				// The delivery's channel is gone. The broker redelivers it on
				// the next channel and the projector drops it if it applied.
				slog.WarnContext(ctx, "Failed to settle delivery",
					"shard", shard,
					"ledger_id", d.Message.LedgerID,
					"seq", d.Message.Seq,
					"error", err)
			}
		}
	}
}

// Handle projects one delivery and settles it: applied and duplicate events
// are acked, events that can never apply are dead-lettered and transient
// failures are requeued. Only a failure to settle is returned.
func (w *ProjectionWorker) Handle(ctx context.Context, d amqp.Delivery) error {
	env := d.Message.Envelope
	outcome, err := w.projector.Project(ctx, env)
	switch {
	case err != nil && ctx.Err() != nil:
		// Shutting down; leave it for the next consumer.
		return nil
	case err != nil:
		slog.WarnContext(ctx, "Projection failed, requeueing",
			"ledger_id", env.LedgerID,
			"seq", env.Seq,
			"event_type", env.Type,
			"error", err)
		return d.Requeue()
	case outcome == services.OutcomeBroken:
		slog.ErrorContext(ctx, "Event dead-lettered",
			"ledger_id", env.LedgerID,
			"seq", env.Seq,
			"event_type", env.Type)
		return d.Reject()
	default:
		return d.Ack()
	}
}
