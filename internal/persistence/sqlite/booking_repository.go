package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/example/resource-scheduler/internal/persistence"
	"github.com/example/resource-scheduler/internal/scheduler"
)

// BookingRepository implements persistence.BookingRepository using SQLite.
// The bookings table carries triggers that reject overlapping active rows on
// the same environment, so concurrent writers cannot both commit a clash.
type BookingRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewBookingRepository creates a new SQLite booking repository
func NewBookingRepository(pool *ConnectionPool) *BookingRepository {
	return &BookingRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

const bookingColumns = `b.id, b.environment_id, b.booking_date, b.start_time, b.end_time, b.booking_type, b.description,
	b.status, b.creator_id, b.cancelled_by, b.cancelled_at, b.cancellation_reason, b.created_at, b.updated_at`

// CreateBooking writes the booking, its audience and user rows and the events
// in one transaction.
func (r *BookingRepository) CreateBooking(ctx context.Context, booking persistence.Booking, events []persistence.OutboxEvent) error {
	if booking.ID == "" {
		return persistence.ErrConstraintViolation
	}

	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO bookings (id, environment_id, booking_date, start_time, end_time, booking_type, description,
					status, creator_id, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				booking.ID,
				booking.EnvironmentID,
				booking.Date.String(),
				booking.Start.String(),
				booking.End.String(),
				string(booking.Type),
				booking.Description,
				string(booking.Status),
				booking.CreatorID,
				formatTimestamp(booking.CreatedAt),
				formatTimestamp(booking.UpdatedAt),
			)
			if err != nil {
				return r.mapper.MapError(err)
			}

			for _, audienceID := range dedupe(booking.AudienceIDs) {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO booking_audiences (booking_id, audience_id) VALUES (?, ?)`, booking.ID, audienceID,
				); err != nil {
					return r.mapper.MapError(err)
				}
			}
			for _, userID := range dedupe(booking.UserIDs) {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO booking_users (booking_id, user_id) VALUES (?, ?)`, booking.ID, userID,
				); err != nil {
					return r.mapper.MapError(err)
				}
			}

			return insertEvents(ctx, tx, r.mapper, events)
		})
	})
}

// GetBooking retrieves a booking with its attachments.
func (r *BookingRepository) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	bookings, err := r.query(ctx, r.pool.DB(), `SELECT `+bookingColumns+` FROM bookings b WHERE b.id = ?`, id)
	if err != nil {
		return persistence.Booking{}, err
	}
	if len(bookings) == 0 {
		return persistence.Booking{}, persistence.ErrNotFound
	}
	return bookings[0], nil
}

// ListBookings returns the bookings matching filter ordered by date and start time.
func (r *BookingRepository) ListBookings(ctx context.Context, filter persistence.BookingFilter) ([]persistence.Booking, error) {
	query, args := buildBookingQuery(filter)
	return r.query(ctx, r.pool.DB(), query, args...)
}

// CancelBooking moves an active booking to cancelled. Only a row that is still
// active is updated, so the loser of a concurrent cancel gets ErrStaleState
// and the winner's cancellation fields stay intact.
func (r *BookingRepository) CancelBooking(ctx context.Context, cancellation persistence.Cancellation, events []persistence.OutboxEvent) error {
	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			result, err := tx.ExecContext(ctx, `
				UPDATE bookings
				SET status = ?, cancelled_by = ?, cancelled_at = ?, cancellation_reason = ?, updated_at = ?
				WHERE id = ? AND status = ?
			`,
				string(persistence.BookingStatusCancelled),
				cancellation.CancelledBy,
				formatTimestamp(cancellation.CancelledAt),
				cancellation.Reason,
				formatTimestamp(cancellation.CancelledAt),
				cancellation.BookingID,
				string(persistence.BookingStatusActive),
			)
			if err != nil {
				return r.mapper.MapError(err)
			}

			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			if affected == 0 {
				var exists bool
				if err := tx.QueryRowContext(ctx,
					`SELECT EXISTS (SELECT 1 FROM bookings WHERE id = ?)`, cancellation.BookingID,
				).Scan(&exists); err != nil {
					return r.mapper.MapError(err)
				}
				if !exists {
					return persistence.ErrNotFound
				}
				return persistence.ErrStaleState
			}

			return insertEvents(ctx, tx, r.mapper, events)
		})
	})
}

func buildBookingQuery(filter persistence.BookingFilter) (string, []any) {
	var (
		builder    strings.Builder
		conditions []string
		args       []any
	)
	builder.WriteString(`SELECT ` + bookingColumns + ` FROM bookings b`)

	if filter.ScheduleID != "" {
		builder.WriteString(` JOIN environments e ON e.id = b.environment_id`)
		conditions = append(conditions, `e.schedule_id = ?`)
		args = append(args, filter.ScheduleID)
	}
	if filter.EnvironmentID != "" {
		conditions = append(conditions, `b.environment_id = ?`)
		args = append(args, filter.EnvironmentID)
	}
	if filter.Date != nil {
		conditions = append(conditions, `b.booking_date = ?`)
		args = append(args, filter.Date.String())
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, `b.booking_date >= ?`)
		args = append(args, filter.DateFrom.String())
	}
	if filter.DateTo != nil {
		conditions = append(conditions, `b.booking_date <= ?`)
		args = append(args, filter.DateTo.String())
	}
	if filter.OverlapStart != nil && filter.OverlapEnd != nil {
		conditions = append(conditions, `b.start_time < ? AND ? < b.end_time`)
		args = append(args, filter.OverlapEnd.String(), filter.OverlapStart.String())
	}
	if filter.Status != "" {
		conditions = append(conditions, `b.status = ?`)
		args = append(args, string(filter.Status))
	}
	if filter.ExcludeID != "" {
		conditions = append(conditions, `b.id <> ?`)
		args = append(args, filter.ExcludeID)
	}

	if len(conditions) > 0 {
		builder.WriteString(` WHERE `)
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(` ORDER BY b.booking_date, b.start_time, b.id`)
	return builder.String(), args
}

func (r *BookingRepository) query(ctx context.Context, q queryer, query string, args ...any) ([]persistence.Booking, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}

	var (
		bookings []persistence.Booking
		ids      []any
	)
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, r.mapper.MapError(err)
		}
		bookings = append(bookings, booking)
		ids = append(ids, booking.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, r.mapper.MapError(err)
	}
	rows.Close()

	if len(bookings) == 0 {
		return nil, nil
	}

	audiences, err := r.loadAttachments(ctx, q, `SELECT booking_id, audience_id FROM booking_audiences WHERE booking_id IN (`+placeholders(len(ids))+`) ORDER BY audience_id`, ids)
	if err != nil {
		return nil, err
	}
	users, err := r.loadAttachments(ctx, q, `SELECT booking_id, user_id FROM booking_users WHERE booking_id IN (`+placeholders(len(ids))+`) ORDER BY user_id`, ids)
	if err != nil {
		return nil, err
	}
	for i := range bookings {
		bookings[i].AudienceIDs = audiences[bookings[i].ID]
		bookings[i].UserIDs = users[bookings[i].ID]
	}
	return bookings, nil
}

func (r *BookingRepository) loadAttachments(ctx context.Context, q queryer, query string, ids []any) (map[string][]string, error) {
	rows, err := q.QueryContext(ctx, query, ids...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var bookingID, value string
		if err := rows.Scan(&bookingID, &value); err != nil {
			return nil, r.mapper.MapError(err)
		}
		out[bookingID] = append(out[bookingID], value)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return out, nil
}

func scanBooking(row rowScanner) (persistence.Booking, error) {
	var (
		booking                          persistence.Booking
		date, start, end                 string
		bookingType, status              string
		cancelledBy, cancelledAt, reason sql.NullString
		createdAt, updatedAt             string
	)
	if err := row.Scan(
		&booking.ID,
		&booking.EnvironmentID,
		&date,
		&start,
		&end,
		&bookingType,
		&booking.Description,
		&status,
		&booking.CreatorID,
		&cancelledBy,
		&cancelledAt,
		&reason,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Booking{}, err
	}

	booking.Type = persistence.BookingType(bookingType)
	booking.Status = persistence.BookingStatus(status)
	booking.CancelledBy = stringPtr(cancelledBy)
	booking.CancellationReason = stringPtr(reason)

	var err error
	if booking.Date, err = parseDateColumn(date); err != nil {
		return persistence.Booking{}, err
	}
	if booking.Start, err = scheduler.ParseTimeOfDay(start); err != nil {
		return persistence.Booking{}, fmt.Errorf("failed to parse start_time: %w", err)
	}
	if booking.End, err = scheduler.ParseTimeOfDay(end); err != nil {
		return persistence.Booking{}, fmt.Errorf("failed to parse end_time: %w", err)
	}
	if booking.CancelledAt, err = timestampPtr("cancelled_at", cancelledAt); err != nil {
		return persistence.Booking{}, err
	}
	if booking.CreatedAt, err = parseTimestamp("created_at", createdAt); err != nil {
		return persistence.Booking{}, err
	}
	if booking.UpdatedAt, err = parseTimestamp("updated_at", updatedAt); err != nil {
		return persistence.Booking{}, err
	}
	return booking, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
