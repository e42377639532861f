package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/resource-scheduler/internal/persistence"
)

// EnvironmentRepository implements persistence.EnvironmentRepository using SQLite
type EnvironmentRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewEnvironmentRepository creates a new SQLite environment repository
func NewEnvironmentRepository(pool *ConnectionPool) *EnvironmentRepository {
	return &EnvironmentRepository{pool: pool, mapper: NewErrorMapper()}
}

const environmentColumns = `id, schedule_id, name, working_hours, status, created_at, updated_at`

// CreateEnvironment inserts a new environment into its schedule.
func (r *EnvironmentRepository) CreateEnvironment(ctx context.Context, env persistence.Environment) error {
	if env.ID == "" {
		return persistence.ErrConstraintViolation
	}
	hours, err := encodeHours(env.Hours)
	if err != nil {
		return err
	}

	query := `INSERT INTO environments (` + environmentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = r.pool.DB().ExecContext(ctx, query,
		env.ID,
		env.ScheduleID,
		env.Name,
		hours,
		string(env.Status),
		formatTimestamp(env.CreatedAt),
		formatTimestamp(env.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateEnvironment replaces name, working hours and status. The owning schedule is immutable.
func (r *EnvironmentRepository) UpdateEnvironment(ctx context.Context, env persistence.Environment) error {
	hours, err := encodeHours(env.Hours)
	if err != nil {
		return err
	}
	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE environments
		SET name = ?, working_hours = ?, status = ?, updated_at = ?
		WHERE id = ?
	`,
		env.Name,
		hours,
		string(env.Status),
		formatTimestamp(env.UpdatedAt),
		env.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// GetEnvironment retrieves an environment by ID.
func (r *EnvironmentRepository) GetEnvironment(ctx context.Context, id string) (persistence.Environment, error) {
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+environmentColumns+` FROM environments WHERE id = ?`, id)
	env, err := scanEnvironment(row)
	if err != nil {
		return persistence.Environment{}, r.mapper.MapError(err)
	}
	return env, nil
}

// ListEnvironments returns the environments of a schedule; an empty scheduleID lists all.
func (r *EnvironmentRepository) ListEnvironments(ctx context.Context, scheduleID string) ([]persistence.Environment, error) {
	query := `SELECT ` + environmentColumns + ` FROM environments`
	var args []any
	if scheduleID != "" {
		query += ` WHERE schedule_id = ?`
		args = append(args, scheduleID)
	}
	query += ` ORDER BY name, id`

	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var envs []persistence.Environment
	for rows.Next() {
		env, err := scanEnvironment(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		envs = append(envs, env)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return envs, nil
}

// DeleteEnvironment removes an environment. Bookings restrict the delete.
func (r *EnvironmentRepository) DeleteEnvironment(ctx context.Context, id string) error {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM environments WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// EnvironmentHasBookings reports whether any booking, active or cancelled, references the environment.
func (r *EnvironmentRepository) EnvironmentHasBookings(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.pool.DB().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM bookings WHERE environment_id = ?)`, id,
	).Scan(&exists)
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	return exists, nil
}

func scanEnvironment(row rowScanner) (persistence.Environment, error) {
	var (
		env                  persistence.Environment
		hours                sql.NullString
		status               string
		createdAt, updatedAt string
	)
	if err := row.Scan(&env.ID, &env.ScheduleID, &env.Name, &hours, &status, &createdAt, &updatedAt); err != nil {
		return persistence.Environment{}, err
	}
	env.Status = persistence.Status(status)

	var err error
	if env.Hours, err = decodeHours(hours); err != nil {
		return persistence.Environment{}, err
	}
	if env.CreatedAt, err = parseTimestamp("created_at", createdAt); err != nil {
		return persistence.Environment{}, err
	}
	if env.UpdatedAt, err = parseTimestamp("updated_at", updatedAt); err != nil {
		return persistence.Environment{}, err
	}
	return env, nil
}
