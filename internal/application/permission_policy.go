package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/resource-scheduler/internal/persistence"
)

// ScheduleReader loads a single schedule.
type ScheduleReader interface {
	GetSchedule(ctx context.Context, id string) (persistence.Schedule, error)
}

// PermissionPolicy answers per-schedule authorization questions. Administrators
// pass every check without a lookup. The three booking flags are independent.
type PermissionPolicy struct {
	schedules   ScheduleReader
	permissions persistence.PermissionRepository
	now         func() time.Time
	logger      *slog.Logger
}

// NewPermissionPolicy wires dependencies for permission checks.
func NewPermissionPolicy(schedules ScheduleReader, permissions persistence.PermissionRepository, now func() time.Time, logger *slog.Logger) *PermissionPolicy {
	if now == nil {
		now = time.Now
	}
	return &PermissionPolicy{schedules: schedules, permissions: permissions, now: now, logger: defaultLogger(logger)}
}

// CanBook requires an active schedule and a permission row granting can_book,
// whatever the schedule's visibility.
func (p *PermissionPolicy) CanBook(ctx context.Context, principal Principal, scheduleID string) (bool, error) {
	if p == nil {
		return false, fmt.Errorf("PermissionPolicy is nil")
	}
	if principal.IsAdmin {
		return true, nil
	}
	if p.schedules == nil {
		return false, fmt.Errorf("schedule repository not configured")
	}

	schedule, err := p.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return false, mapLookupError(err)
	}
	if schedule.Status != persistence.StatusActive {
		return false, nil
	}

	permission, found, err := p.lookup(ctx, scheduleID, principal.UserID)
	if err != nil || !found {
		return false, err
	}
	return permission.CanBook, nil
}

// CanCancelOthers reports whether the principal may cancel bookings created by someone else.
func (p *PermissionPolicy) CanCancelOthers(ctx context.Context, principal Principal, scheduleID string) (bool, error) {
	if p == nil {
		return false, fmt.Errorf("PermissionPolicy is nil")
	}
	if principal.IsAdmin {
		return true, nil
	}
	permission, found, err := p.lookup(ctx, scheduleID, principal.UserID)
	if err != nil || !found {
		return false, err
	}
	return permission.CanCancelOthers, nil
}

// CanOverrideConflicts reports whether the principal may book despite soft conflicts.
func (p *PermissionPolicy) CanOverrideConflicts(ctx context.Context, principal Principal, scheduleID string) (bool, error) {
	if p == nil {
		return false, fmt.Errorf("PermissionPolicy is nil")
	}
	if principal.IsAdmin {
		return true, nil
	}
	permission, found, err := p.lookup(ctx, scheduleID, principal.UserID)
	if err != nil || !found {
		return false, err
	}
	return permission.CanOverrideConflicts, nil
}

// CanView reports read access to a schedule's calendar: public schedules are open
// to everyone, private ones to users holding any permission row.
func (p *PermissionPolicy) CanView(ctx context.Context, principal Principal, schedule persistence.Schedule) (bool, error) {
	if p == nil {
		return false, fmt.Errorf("PermissionPolicy is nil")
	}
	if principal.IsAdmin || schedule.Visibility == persistence.VisibilityPublic {
		return true, nil
	}
	_, found, err := p.lookup(ctx, schedule.ID, principal.UserID)
	return found, err
}

// GrantPermission creates or replaces a user's permission row on a schedule.
func (p *PermissionPolicy) GrantPermission(ctx context.Context, principal Principal, input PermissionInput) (permission persistence.SchedulePermission, err error) {
	if p == nil {
		err = fmt.Errorf("PermissionPolicy is nil")
		return
	}
	if p.permissions == nil || p.schedules == nil {
		err = fmt.Errorf("permission dependencies not configured")
		return
	}

	logger := serviceLogger(ctx, p.logger, "PermissionPolicy", "GrantPermission",
		"principal_id", principal.UserID,
		"schedule_id", input.ScheduleID,
		"user_id", input.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to grant permission", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "permission granted",
			"can_book", permission.CanBook,
			"can_cancel_others", permission.CanCancelOthers,
			"can_override_conflicts", permission.CanOverrideConflicts,
		)
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if vErr := validateInput(input); vErr.HasErrors() {
		err = vErr
		return
	}
	if _, err = p.schedules.GetSchedule(ctx, input.ScheduleID); err != nil {
		err = mapLookupError(err)
		return
	}

	timestamp := p.now()
	if err = p.permissions.UpsertPermission(ctx, persistence.SchedulePermission{
		ScheduleID:           input.ScheduleID,
		UserID:               input.UserID,
		CanBook:              input.CanBook,
		CanCancelOthers:      input.CanCancelOthers,
		CanOverrideConflicts: input.CanOverrideConflicts,
		CreatedAt:            timestamp,
		UpdatedAt:            timestamp,
	}); err != nil {
		err = mapLookupError(err)
		return
	}

	permission, err = p.permissions.GetPermission(ctx, input.ScheduleID, input.UserID)
	if err != nil {
		err = mapLookupError(err)
	}
	return
}

// RevokePermission removes a user's permission row from a schedule.
func (p *PermissionPolicy) RevokePermission(ctx context.Context, principal Principal, scheduleID, userID string) (err error) {
	if p == nil {
		return fmt.Errorf("PermissionPolicy is nil")
	}
	if p.permissions == nil {
		return fmt.Errorf("permission repository not configured")
	}

	logger := serviceLogger(ctx, p.logger, "PermissionPolicy", "RevokePermission",
		"principal_id", principal.UserID,
		"schedule_id", scheduleID,
		"user_id", userID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to revoke permission", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "permission revoked")
	}()

	if !principal.IsAdmin {
		return ErrUnauthorized
	}
	return mapLookupError(p.permissions.DeletePermission(ctx, scheduleID, userID))
}

// ListPermissions returns every permission row on a schedule.
func (p *PermissionPolicy) ListPermissions(ctx context.Context, principal Principal, scheduleID string) ([]persistence.SchedulePermission, error) {
	if p == nil {
		return nil, fmt.Errorf("PermissionPolicy is nil")
	}
	if !principal.IsAdmin {
		return nil, ErrUnauthorized
	}
	if p.permissions == nil {
		return nil, nil
	}
	return p.permissions.ListPermissions(ctx, scheduleID)
}

func (p *PermissionPolicy) lookup(ctx context.Context, scheduleID, userID string) (persistence.SchedulePermission, bool, error) {
	if p.permissions == nil || userID == "" {
		return persistence.SchedulePermission{}, false, nil
	}
	permission, err := p.permissions.GetPermission(ctx, scheduleID, userID)
	if errors.Is(err, persistence.ErrNotFound) {
		return persistence.SchedulePermission{}, false, nil
	}
	if err != nil {
		return persistence.SchedulePermission{}, false, err
	}
	return permission, true, nil
}
