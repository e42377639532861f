package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/resource-scheduler/internal/persistence"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ScheduleRepository implements persistence.ScheduleRepository using SQLite
type ScheduleRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewScheduleRepository creates a new SQLite schedule repository
func NewScheduleRepository(pool *ConnectionPool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool, mapper: NewErrorMapper()}
}

const scheduleColumns = `id, name, visibility, future_days, notify_on_create, notify_on_cancel, status, created_at, updated_at`

// CreateSchedule inserts a new schedule.
func (r *ScheduleRepository) CreateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	if schedule.ID == "" {
		return persistence.ErrConstraintViolation
	}

	query := `INSERT INTO schedules (` + scheduleColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.pool.DB().ExecContext(ctx, query,
		schedule.ID,
		schedule.Name,
		string(schedule.Visibility),
		nullableInt(schedule.FutureDays),
		schedule.NotifyOnCreate,
		schedule.NotifyOnCancel,
		string(schedule.Status),
		formatTimestamp(schedule.CreatedAt),
		formatTimestamp(schedule.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateSchedule replaces the mutable fields of a schedule.
func (r *ScheduleRepository) UpdateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	query := `
		UPDATE schedules
		SET name = ?, visibility = ?, future_days = ?, notify_on_create = ?, notify_on_cancel = ?, status = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.pool.DB().ExecContext(ctx, query,
		schedule.Name,
		string(schedule.Visibility),
		nullableInt(schedule.FutureDays),
		schedule.NotifyOnCreate,
		schedule.NotifyOnCancel,
		string(schedule.Status),
		formatTimestamp(schedule.UpdatedAt),
		schedule.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// GetSchedule retrieves a schedule by ID.
func (r *ScheduleRepository) GetSchedule(ctx context.Context, id string) (persistence.Schedule, error) {
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	schedule, err := scanSchedule(row)
	if err != nil {
		return persistence.Schedule{}, r.mapper.MapError(err)
	}
	return schedule, nil
}

// ListSchedules returns every schedule ordered by name.
func (r *ScheduleRepository) ListSchedules(ctx context.Context) ([]persistence.Schedule, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY name, id`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var schedules []persistence.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return schedules, nil
}

// DeleteSchedule removes a schedule. It fails with ErrForeignKeyViolation while
// environments still reference it.
func (r *ScheduleRepository) DeleteSchedule(ctx context.Context, id string) error {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

func scanSchedule(row rowScanner) (persistence.Schedule, error) {
	var (
		schedule             persistence.Schedule
		visibility, status   string
		futureDays           sql.NullInt64
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&schedule.ID,
		&schedule.Name,
		&visibility,
		&futureDays,
		&schedule.NotifyOnCreate,
		&schedule.NotifyOnCancel,
		&status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Schedule{}, err
	}

	schedule.Visibility = persistence.Visibility(visibility)
	schedule.Status = persistence.Status(status)
	if futureDays.Valid {
		days := int(futureDays.Int64)
		schedule.FutureDays = &days
	}

	var err error
	if schedule.CreatedAt, err = parseTimestamp("created_at", createdAt); err != nil {
		return persistence.Schedule{}, err
	}
	if schedule.UpdatedAt, err = parseTimestamp("updated_at", updatedAt); err != nil {
		return persistence.Schedule{}, err
	}
	return schedule, nil
}

func nullableInt(value *int) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*value), Valid: true}
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
