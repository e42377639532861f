package sqlite

import (
	"context"
	"fmt"

	"github.com/example/resource-scheduler/internal/persistence"
	"github.com/example/resource-scheduler/internal/scheduler"
)

// HolidayRepository implements persistence.HolidayRepository using SQLite
type HolidayRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewHolidayRepository creates a new SQLite holiday repository
func NewHolidayRepository(pool *ConnectionPool) *HolidayRepository {
	return &HolidayRepository{pool: pool, mapper: NewErrorMapper()}
}

// AddHoliday records a schedule holiday; the (schedule, date) pair is unique.
func (r *HolidayRepository) AddHoliday(ctx context.Context, holiday persistence.Holiday) error {
	_, err := r.pool.DB().ExecContext(ctx,
		`INSERT INTO holidays (schedule_id, holiday_date, description) VALUES (?, ?, ?)`,
		holiday.ScheduleID, holiday.Date.String(), holiday.Description,
	)
	return r.mapper.MapError(err)
}

// RemoveHoliday deletes a schedule holiday.
func (r *HolidayRepository) RemoveHoliday(ctx context.Context, scheduleID string, date scheduler.Date) error {
	result, err := r.pool.DB().ExecContext(ctx,
		`DELETE FROM holidays WHERE schedule_id = ? AND holiday_date = ?`, scheduleID, date.String(),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// ListHolidays returns a schedule's holidays in date order.
func (r *HolidayRepository) ListHolidays(ctx context.Context, scheduleID string) ([]persistence.Holiday, error) {
	rows, err := r.pool.DB().QueryContext(ctx,
		`SELECT holiday_date, description FROM holidays WHERE schedule_id = ? ORDER BY holiday_date`, scheduleID,
	)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var holidays []persistence.Holiday
	for rows.Next() {
		var raw string
		holiday := persistence.Holiday{ScheduleID: scheduleID}
		if err := rows.Scan(&raw, &holiday.Description); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if holiday.Date, err = parseDateColumn(raw); err != nil {
			return nil, err
		}
		holidays = append(holidays, holiday)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return holidays, nil
}

// IsHoliday reports whether date is a holiday of the schedule.
func (r *HolidayRepository) IsHoliday(ctx context.Context, scheduleID string, date scheduler.Date) (bool, error) {
	var exists bool
	err := r.pool.DB().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM holidays WHERE schedule_id = ? AND holiday_date = ?)`, scheduleID, date.String(),
	).Scan(&exists)
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	return exists, nil
}

// AddGlobalHoliday records an organization-wide holiday.
func (r *HolidayRepository) AddGlobalHoliday(ctx context.Context, holiday persistence.GlobalHoliday) error {
	_, err := r.pool.DB().ExecContext(ctx,
		`INSERT INTO global_holidays (holiday_date, description) VALUES (?, ?)`,
		holiday.Date.String(), holiday.Description,
	)
	return r.mapper.MapError(err)
}

// RemoveGlobalHoliday deletes an organization-wide holiday.
func (r *HolidayRepository) RemoveGlobalHoliday(ctx context.Context, date scheduler.Date) error {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM global_holidays WHERE holiday_date = ?`, date.String())
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// ListGlobalHolidays returns every organization-wide holiday in date order.
func (r *HolidayRepository) ListGlobalHolidays(ctx context.Context) ([]persistence.GlobalHoliday, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `SELECT holiday_date, description FROM global_holidays ORDER BY holiday_date`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var holidays []persistence.GlobalHoliday
	for rows.Next() {
		var (
			raw     string
			holiday persistence.GlobalHoliday
		)
		if err := rows.Scan(&raw, &holiday.Description); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if holiday.Date, err = parseDateColumn(raw); err != nil {
			return nil, err
		}
		holidays = append(holidays, holiday)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return holidays, nil
}

// IsGlobalHoliday reports whether date is an organization-wide holiday.
func (r *HolidayRepository) IsGlobalHoliday(ctx context.Context, date scheduler.Date) (bool, error) {
	var exists bool
	err := r.pool.DB().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM global_holidays WHERE holiday_date = ?)`, date.String(),
	).Scan(&exists)
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	return exists, nil
}

func parseDateColumn(value string) (scheduler.Date, error) {
	date, err := scheduler.ParseDate(value)
	if err != nil {
		return scheduler.Date{}, fmt.Errorf("failed to parse date column %q: %w", value, err)
	}
	return date, nil
}
