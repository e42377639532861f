package sqlite

import (
	"context"

	"github.com/example/resource-scheduler/internal/persistence"
)

// PermissionRepository implements persistence.PermissionRepository using SQLite
type PermissionRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewPermissionRepository creates a new SQLite permission repository
func NewPermissionRepository(pool *ConnectionPool) *PermissionRepository {
	return &PermissionRepository{pool: pool, mapper: NewErrorMapper()}
}

const permissionColumns = `schedule_id, user_id, can_book, can_cancel_others, can_override_conflicts, created_at, updated_at`

// UpsertPermission inserts or replaces the flags for a (schedule, user) pair.
// created_at is kept from the first insert.
func (r *PermissionRepository) UpsertPermission(ctx context.Context, permission persistence.SchedulePermission) error {
	query := `
		INSERT INTO schedule_permissions (` + permissionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (schedule_id, user_id) DO UPDATE SET
			can_book = excluded.can_book,
			can_cancel_others = excluded.can_cancel_others,
			can_override_conflicts = excluded.can_override_conflicts,
			updated_at = excluded.updated_at
	`
	_, err := r.pool.DB().ExecContext(ctx, query,
		permission.ScheduleID,
		permission.UserID,
		permission.CanBook,
		permission.CanCancelOthers,
		permission.CanOverrideConflicts,
		formatTimestamp(permission.CreatedAt),
		formatTimestamp(permission.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetPermission returns the row for (scheduleID, userID) or ErrNotFound.
func (r *PermissionRepository) GetPermission(ctx context.Context, scheduleID, userID string) (persistence.SchedulePermission, error) {
	row := r.pool.DB().QueryRowContext(ctx,
		`SELECT `+permissionColumns+` FROM schedule_permissions WHERE schedule_id = ? AND user_id = ?`,
		scheduleID, userID,
	)
	permission, err := scanPermission(row)
	if err != nil {
		return persistence.SchedulePermission{}, r.mapper.MapError(err)
	}
	return permission, nil
}

// ListPermissions returns every permission row of a schedule.
func (r *PermissionRepository) ListPermissions(ctx context.Context, scheduleID string) ([]persistence.SchedulePermission, error) {
	rows, err := r.pool.DB().QueryContext(ctx,
		`SELECT `+permissionColumns+` FROM schedule_permissions WHERE schedule_id = ? ORDER BY user_id`, scheduleID,
	)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var permissions []persistence.SchedulePermission
	for rows.Next() {
		permission, err := scanPermission(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		permissions = append(permissions, permission)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return permissions, nil
}

// DeletePermission removes the row for (scheduleID, userID).
func (r *PermissionRepository) DeletePermission(ctx context.Context, scheduleID, userID string) error {
	result, err := r.pool.DB().ExecContext(ctx,
		`DELETE FROM schedule_permissions WHERE schedule_id = ? AND user_id = ?`, scheduleID, userID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

func scanPermission(row rowScanner) (persistence.SchedulePermission, error) {
	var (
		permission           persistence.SchedulePermission
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&permission.ScheduleID,
		&permission.UserID,
		&permission.CanBook,
		&permission.CanCancelOthers,
		&permission.CanOverrideConflicts,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.SchedulePermission{}, err
	}

	var err error
	if permission.CreatedAt, err = parseTimestamp("created_at", createdAt); err != nil {
		return persistence.SchedulePermission{}, err
	}
	if permission.UpdatedAt, err = parseTimestamp("updated_at", updatedAt); err != nil {
		return persistence.SchedulePermission{}, err
	}
	return permission, nil
}
