package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/resource-scheduler/internal/persistence"
)

// OutboxRepository implements persistence.OutboxRepository using SQLite
type OutboxRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewOutboxRepository creates a new SQLite outbox repository
func NewOutboxRepository(pool *ConnectionPool) *OutboxRepository {
	return &OutboxRepository{pool: pool, mapper: NewErrorMapper()}
}

// ListPendingEvents returns up to limit unpublished events, oldest first.
func (r *OutboxRepository) ListPendingEvents(ctx context.Context, limit int) ([]persistence.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT id, event_type, aggregate_id, payload, attempts, last_error, created_at, published_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var events []persistence.OutboxEvent
	for rows.Next() {
		var (
			event       persistence.OutboxEvent
			lastError   sql.NullString
			createdAt   string
			publishedAt sql.NullString
		)
		if err := rows.Scan(&event.ID, &event.Type, &event.AggregateID, &event.Payload, &event.Attempts,
			&lastError, &createdAt, &publishedAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		event.LastError = stringPtr(lastError)
		if event.CreatedAt, err = parseTimestamp("created_at", createdAt); err != nil {
			return nil, err
		}
		if event.PublishedAt, err = timestampPtr("published_at", publishedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return events, nil
}

// MarkEventPublished stamps an event as delivered.
func (r *OutboxRepository) MarkEventPublished(ctx context.Context, id string, publishedAt time.Time) error {
	result, err := r.pool.DB().ExecContext(ctx,
		`UPDATE outbox_events SET published_at = ?, attempts = attempts + 1, last_error = NULL WHERE id = ?`,
		formatTimestamp(publishedAt), id,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// MarkEventFailed records a failed delivery attempt; the event stays pending.
func (r *OutboxRepository) MarkEventFailed(ctx context.Context, id string, reason string) error {
	result, err := r.pool.DB().ExecContext(ctx,
		`UPDATE outbox_events SET attempts = attempts + 1, last_error = ? WHERE id = ?`, reason, id,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

func insertEvents(ctx context.Context, tx *sql.Tx, mapper *ErrorMapper, events []persistence.OutboxEvent) error {
	for _, event := range events {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO outbox_events (id, event_type, aggregate_id, payload, attempts, created_at)
			VALUES (?, ?, ?, ?, 0, ?)
		`, event.ID, event.Type, event.AggregateID, event.Payload, formatTimestamp(event.CreatedAt)); err != nil {
			return mapper.MapError(err)
		}
	}
	return nil
}
