package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/resource-scheduler/internal/persistence"
)

// Publisher hands a message to the broker.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// OutboxStore is the slice of persistence.OutboxRepository the relay needs.
type OutboxStore interface {
	ListPendingEvents(ctx context.Context, limit int) ([]persistence.OutboxEvent, error)
	MarkEventPublished(ctx context.Context, id string, publishedAt time.Time) error
	MarkEventFailed(ctx context.Context, id string, reason string) error
}

// RelayOptions tunes the polling loop.
type RelayOptions struct {
	Interval  time.Duration
	BatchSize int
}

// Relay polls the outbox and publishes pending events in creation order.
type Relay struct {
	outbox    OutboxStore
	publisher Publisher
	interval  time.Duration
	batchSize int
	now       func() time.Time
	logger    *slog.Logger
}

// NewRelay wires a relay. Zero options fall back to a one second interval and batches of 50.
func NewRelay(outbox OutboxStore, publisher Publisher, opts RelayOptions, now func() time.Time, logger *slog.Logger) *Relay {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		now:       now,
		logger:    logger.With("component", "outbox_relay"),
	}
}

// Run flushes the outbox every interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "outbox relay started", "interval", r.interval, "batch_size", r.batchSize)
	for {
		if _, err := r.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.ErrorContext(ctx, "outbox flush failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.InfoContext(context.Background(), "outbox relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch of pending events and returns how many were
// delivered. Delivery stops at the first failure so events keep their order.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	pending, err := r.outbox.ListPendingEvents(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("events: list pending: %w", err)
	}

	delivered := 0
	for _, event := range pending {
		if err := r.publisher.Publish(ctx, MessageFromOutbox(event)); err != nil {
			if markErr := r.outbox.MarkEventFailed(ctx, event.ID, err.Error()); markErr != nil {
				r.logger.ErrorContext(ctx, "failed to record delivery failure", "event_id", event.ID, "error", markErr)
			}
			r.logger.WarnContext(ctx, "event delivery failed",
				"event_id", event.ID,
				"event_type", event.Type,
				"attempts", event.Attempts+1,
				"error", err,
			)
			return delivered, fmt.Errorf("events: publish %s: %w", event.ID, err)
		}

		if err := r.outbox.MarkEventPublished(ctx, event.ID, r.now()); err != nil {
			return delivered, fmt.Errorf("events: mark %s published: %w", event.ID, err)
		}
		delivered++
		r.logger.DebugContext(ctx, "event delivered", "event_id", event.ID, "event_type", event.Type)
	}
	return delivered, nil
}
