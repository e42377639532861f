package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/resource-scheduler/internal/persistence"
)

// ScheduleViewer decides whether a principal may read a schedule.
type ScheduleViewer interface {
	CanView(ctx context.Context, principal Principal, schedule persistence.Schedule) (bool, error)
}

// ScheduleService administers schedules and the environments they contain.
// Deletes deactivate; purges remove rows and refuse while history depends on them.
type ScheduleService struct {
	schedules    persistence.ScheduleRepository
	environments persistence.EnvironmentRepository
	viewer       ScheduleViewer
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// NewScheduleService wires dependencies for schedule and environment operations.
func NewScheduleService(schedules persistence.ScheduleRepository, environments persistence.EnvironmentRepository, viewer ScheduleViewer, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ScheduleService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ScheduleService{
		schedules:    schedules,
		environments: environments,
		viewer:       viewer,
		idGenerator:  idGenerator,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

func (s *ScheduleService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ScheduleService", operation, attrs...)
}

// CreateSchedule validates input and stores a new schedule for administrators.
func (s *ScheduleService) CreateSchedule(ctx context.Context, params CreateScheduleParams) (schedule persistence.Schedule, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}
	if s.schedules == nil {
		err = fmt.Errorf("schedule repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateSchedule", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create schedule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("schedule_id", schedule.ID).InfoContext(ctx, "schedule created")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if vErr := validateInput(params.Input); vErr.HasErrors() {
		err = vErr
		return
	}

	createdAt := s.now()
	schedule = applyScheduleInput(persistence.Schedule{
		ID:        s.idGenerator(),
		Status:    persistence.StatusActive,
		CreatedAt: createdAt,
	}, params.Input)
	schedule.UpdatedAt = createdAt

	if err = s.schedules.CreateSchedule(ctx, schedule); err != nil {
		err = mapScheduleRepoError(err)
	}
	return
}

// UpdateSchedule replaces the editable fields of a schedule.
func (s *ScheduleService) UpdateSchedule(ctx context.Context, params UpdateScheduleParams) (schedule persistence.Schedule, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}
	if s.schedules == nil {
		err = fmt.Errorf("schedule repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateSchedule",
		"principal_id", params.Principal.UserID,
		"schedule_id", params.ScheduleID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update schedule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "schedule updated")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	var existing persistence.Schedule
	existing, err = s.schedules.GetSchedule(ctx, params.ScheduleID)
	if err != nil {
		err = mapScheduleRepoError(err)
		return
	}
	if vErr := validateInput(params.Input); vErr.HasErrors() {
		err = vErr
		return
	}

	schedule = applyScheduleInput(existing, params.Input)
	schedule.UpdatedAt = s.now()
	if err = s.schedules.UpdateSchedule(ctx, schedule); err != nil {
		err = mapScheduleRepoError(err)
	}
	return
}

// DeleteSchedule deactivates a schedule. Its environments and bookings are kept.
func (s *ScheduleService) DeleteSchedule(ctx context.Context, principal Principal, scheduleID string) (err error) {
	if s == nil {
		return fmt.Errorf("ScheduleService is nil")
	}
	if s.schedules == nil {
		return fmt.Errorf("schedule repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteSchedule",
		"principal_id", principal.UserID,
		"schedule_id", scheduleID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete schedule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "schedule deactivated")
	}()

	if !principal.IsAdmin {
		return ErrUnauthorized
	}

	existing, err := s.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return mapScheduleRepoError(err)
	}
	if existing.Status == persistence.StatusInactive {
		return nil
	}
	existing.Status = persistence.StatusInactive
	existing.UpdatedAt = s.now()
	return mapScheduleRepoError(s.schedules.UpdateSchedule(ctx, existing))
}

// PurgeSchedule removes a schedule that no longer has environments.
func (s *ScheduleService) PurgeSchedule(ctx context.Context, principal Principal, scheduleID string) (err error) {
	if s == nil {
		return fmt.Errorf("ScheduleService is nil")
	}
	if s.schedules == nil || s.environments == nil {
		return fmt.Errorf("schedule dependencies not configured")
	}

	logger := s.loggerWith(ctx, "PurgeSchedule",
		"principal_id", principal.UserID,
		"schedule_id", scheduleID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to purge schedule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "schedule purged")
	}()

	if !principal.IsAdmin {
		return ErrUnauthorized
	}
	if _, err = s.schedules.GetSchedule(ctx, scheduleID); err != nil {
		return mapScheduleRepoError(err)
	}

	envs, err := s.environments.ListEnvironments(ctx, scheduleID)
	if err != nil {
		return err
	}
	if len(envs) > 0 {
		return fmt.Errorf("%w: schedule has %d environments", ErrReferenced, len(envs))
	}
	return mapScheduleRepoError(s.schedules.DeleteSchedule(ctx, scheduleID))
}

// GetSchedule returns a schedule the principal may view.
func (s *ScheduleService) GetSchedule(ctx context.Context, principal Principal, scheduleID string) (persistence.Schedule, error) {
	if s == nil {
		return persistence.Schedule{}, fmt.Errorf("ScheduleService is nil")
	}
	if s.schedules == nil {
		return persistence.Schedule{}, fmt.Errorf("schedule repository not configured")
	}

	schedule, err := s.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return persistence.Schedule{}, mapScheduleRepoError(err)
	}
	visible, err := s.canView(ctx, principal, schedule)
	if err != nil {
		return persistence.Schedule{}, err
	}
	if !visible {
		return persistence.Schedule{}, ErrUnauthorized
	}
	return schedule, nil
}

// ListSchedules enumerates the schedules visible to the principal, by name.
func (s *ScheduleService) ListSchedules(ctx context.Context, principal Principal) (schedules []persistence.Schedule, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}
	if s.schedules == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "ListSchedules", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list schedules", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(schedules)).InfoContext(ctx, "schedules listed")
	}()

	var raw []persistence.Schedule
	raw, err = s.schedules.ListSchedules(ctx)
	if err != nil {
		return
	}

	schedules = make([]persistence.Schedule, 0, len(raw))
	for _, schedule := range raw {
		var visible bool
		visible, err = s.canView(ctx, principal, schedule)
		if err != nil {
			return
		}
		if visible {
			schedules = append(schedules, schedule)
		}
	}

	sort.SliceStable(schedules, func(i, j int) bool {
		if strings.EqualFold(schedules[i].Name, schedules[j].Name) {
			return schedules[i].ID < schedules[j].ID
		}
		return strings.ToLower(schedules[i].Name) < strings.ToLower(schedules[j].Name)
	})
	return
}

// CreateEnvironment adds a bookable environment to an existing schedule.
func (s *ScheduleService) CreateEnvironment(ctx context.Context, params CreateEnvironmentParams) (env persistence.Environment, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}
	if s.schedules == nil || s.environments == nil {
		err = fmt.Errorf("schedule dependencies not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateEnvironment",
		"principal_id", params.Principal.UserID,
		"schedule_id", params.Input.ScheduleID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create environment", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("environment_id", env.ID).InfoContext(ctx, "environment created")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if vErr := validateEnvironmentInput(params.Input); vErr.HasErrors() {
		err = vErr
		return
	}
	if _, err = s.schedules.GetSchedule(ctx, params.Input.ScheduleID); err != nil {
		err = mapScheduleRepoError(err)
		return
	}

	createdAt := s.now()
	env = applyEnvironmentInput(persistence.Environment{
		ID:        s.idGenerator(),
		Status:    persistence.StatusActive,
		CreatedAt: createdAt,
	}, params.Input)
	env.UpdatedAt = createdAt

	if err = s.environments.CreateEnvironment(ctx, env); err != nil {
		err = mapScheduleRepoError(err)
	}
	return
}

// UpdateEnvironment replaces the editable fields of an environment. Moving an
// environment to another schedule is allowed.
func (s *ScheduleService) UpdateEnvironment(ctx context.Context, params UpdateEnvironmentParams) (env persistence.Environment, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}
	if s.schedules == nil || s.environments == nil {
		err = fmt.Errorf("schedule dependencies not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateEnvironment",
		"principal_id", params.Principal.UserID,
		"environment_id", params.EnvironmentID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update environment", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "environment updated")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	var existing persistence.Environment
	existing, err = s.environments.GetEnvironment(ctx, params.EnvironmentID)
	if err != nil {
		err = mapScheduleRepoError(err)
		return
	}
	if vErr := validateEnvironmentInput(params.Input); vErr.HasErrors() {
		err = vErr
		return
	}
	if params.Input.ScheduleID != existing.ScheduleID {
		if _, err = s.schedules.GetSchedule(ctx, params.Input.ScheduleID); err != nil {
			err = mapScheduleRepoError(err)
			return
		}
	}

	env = applyEnvironmentInput(existing, params.Input)
	env.UpdatedAt = s.now()
	if err = s.environments.UpdateEnvironment(ctx, env); err != nil {
		err = mapScheduleRepoError(err)
	}
	return
}

// DeleteEnvironment deactivates an environment; it stops accepting bookings.
func (s *ScheduleService) DeleteEnvironment(ctx context.Context, principal Principal, environmentID string) (err error) {
	if s == nil {
		return fmt.Errorf("ScheduleService is nil")
	}
	if s.environments == nil {
		return fmt.Errorf("environment repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteEnvironment",
		"principal_id", principal.UserID,
		"environment_id", environmentID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete environment", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "environment deactivated")
	}()

	if !principal.IsAdmin {
		return ErrUnauthorized
	}

	existing, err := s.environments.GetEnvironment(ctx, environmentID)
	if err != nil {
		return mapScheduleRepoError(err)
	}
	if existing.Status == persistence.StatusInactive {
		return nil
	}
	existing.Status = persistence.StatusInactive
	existing.UpdatedAt = s.now()
	return mapScheduleRepoError(s.environments.UpdateEnvironment(ctx, existing))
}

// PurgeEnvironment removes an environment that has never been booked.
func (s *ScheduleService) PurgeEnvironment(ctx context.Context, principal Principal, environmentID string) (err error) {
	if s == nil {
		return fmt.Errorf("ScheduleService is nil")
	}
	if s.environments == nil {
		return fmt.Errorf("environment repository not configured")
	}

	logger := s.loggerWith(ctx, "PurgeEnvironment",
		"principal_id", principal.UserID,
		"environment_id", environmentID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to purge environment", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "environment purged")
	}()

	if !principal.IsAdmin {
		return ErrUnauthorized
	}
	if _, err = s.environments.GetEnvironment(ctx, environmentID); err != nil {
		return mapScheduleRepoError(err)
	}

	booked, err := s.environments.EnvironmentHasBookings(ctx, environmentID)
	if err != nil {
		return err
	}
	if booked {
		return fmt.Errorf("%w: environment has bookings", ErrReferenced)
	}
	return mapScheduleRepoError(s.environments.DeleteEnvironment(ctx, environmentID))
}

// GetEnvironment returns an environment whose schedule the principal may view.
func (s *ScheduleService) GetEnvironment(ctx context.Context, principal Principal, environmentID string) (persistence.Environment, error) {
	if s == nil {
		return persistence.Environment{}, fmt.Errorf("ScheduleService is nil")
	}
	if s.environments == nil {
		return persistence.Environment{}, fmt.Errorf("environment repository not configured")
	}

	env, err := s.environments.GetEnvironment(ctx, environmentID)
	if err != nil {
		return persistence.Environment{}, mapScheduleRepoError(err)
	}
	if _, err := s.GetSchedule(ctx, principal, env.ScheduleID); err != nil {
		return persistence.Environment{}, err
	}
	return env, nil
}

// ListEnvironments returns the environments of a visible schedule.
func (s *ScheduleService) ListEnvironments(ctx context.Context, principal Principal, scheduleID string) ([]persistence.Environment, error) {
	if s == nil {
		return nil, fmt.Errorf("ScheduleService is nil")
	}
	if s.environments == nil {
		return nil, nil
	}
	if _, err := s.GetSchedule(ctx, principal, scheduleID); err != nil {
		return nil, err
	}
	return s.environments.ListEnvironments(ctx, scheduleID)
}

func (s *ScheduleService) canView(ctx context.Context, principal Principal, schedule persistence.Schedule) (bool, error) {
	if principal.IsAdmin {
		return true, nil
	}
	if s.viewer == nil {
		return schedule.Visibility == persistence.VisibilityPublic, nil
	}
	return s.viewer.CanView(ctx, principal, schedule)
}

func applyScheduleInput(schedule persistence.Schedule, input ScheduleInput) persistence.Schedule {
	schedule.Name = strings.TrimSpace(input.Name)
	schedule.Visibility = input.Visibility
	schedule.NotifyOnCreate = input.NotifyOnCreate
	schedule.NotifyOnCancel = input.NotifyOnCancel
	schedule.FutureDays = nil
	if input.FutureDays != nil {
		days := *input.FutureDays
		schedule.FutureDays = &days
	}
	if input.Status != "" {
		schedule.Status = input.Status
	}
	return schedule
}

func validateEnvironmentInput(input EnvironmentInput) *ValidationError {
	vErr := validateInput(input)
	if err := input.Hours.Validate(); err != nil {
		vErr.add("hours", err.Error())
	}
	return vErr
}

func applyEnvironmentInput(env persistence.Environment, input EnvironmentInput) persistence.Environment {
	env.ScheduleID = strings.TrimSpace(input.ScheduleID)
	env.Name = strings.TrimSpace(input.Name)
	env.Hours = input.Hours.Clone()
	if input.Status != "" {
		env.Status = input.Status
	}
	return env
}

func mapScheduleRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return fmt.Errorf("%w: %v", ErrReferenced, err)
	case errors.Is(err, persistence.ErrConstraintViolation):
		vErr := &ValidationError{}
		vErr.add("input", "value rejected by storage constraints")
		return vErr
	}
	return err
}
