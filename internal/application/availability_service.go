package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/resource-scheduler/internal/persistence"
	"github.com/example/resource-scheduler/internal/scheduler"
)

// EnvironmentReader loads a single environment.
type EnvironmentReader interface {
	GetEnvironment(ctx context.Context, id string) (persistence.Environment, error)
}

// HolidayCalendar answers holiday lookups.
type HolidayCalendar interface {
	IsHoliday(ctx context.Context, scheduleID string, date scheduler.Date) (bool, error)
	IsGlobalHoliday(ctx context.Context, date scheduler.Date) (bool, error)
}

// AvailabilityService decides whether an environment is open on a date and time.
// It never writes.
type AvailabilityService struct {
	environments EnvironmentReader
	holidays     HolidayCalendar
	logger       *slog.Logger
}

// NewAvailabilityService wires dependencies for availability checks.
func NewAvailabilityService(environments EnvironmentReader, holidays HolidayCalendar, logger *slog.Logger) *AvailabilityService {
	return &AvailabilityService{environments: environments, holidays: holidays, logger: defaultLogger(logger)}
}

// IsOpen reports whether the environment accepts bookings on date, and at the
// given time when one is supplied.
func (s *AvailabilityService) IsOpen(ctx context.Context, environmentID string, date scheduler.Date, at *scheduler.TimeOfDay) (bool, error) {
	availability, err := s.Evaluate(ctx, environmentID, date, at)
	if err != nil {
		return false, err
	}
	return availability.Open, nil
}

// Evaluate is IsOpen with the reason an environment is closed.
func (s *AvailabilityService) Evaluate(ctx context.Context, environmentID string, date scheduler.Date, at *scheduler.TimeOfDay) (availability scheduler.Availability, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}
	if s.environments == nil || s.holidays == nil {
		err = fmt.Errorf("availability dependencies not configured")
		return
	}

	logger := serviceLogger(ctx, s.logger, "AvailabilityService", "Evaluate",
		"environment_id", environmentID,
		"date", date.String(),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to evaluate availability", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "availability evaluated", "open", availability.Open, "reason", string(availability.Reason))
	}()

	var env persistence.Environment
	env, err = s.environments.GetEnvironment(ctx, environmentID)
	if err != nil {
		err = mapLookupError(err)
		return
	}

	in := scheduler.AvailabilityInput{
		Date:              date,
		At:                at,
		EnvironmentActive: env.Status == persistence.StatusActive,
		Hours:             env.Hours,
	}

	in.GlobalHoliday, err = s.holidays.IsGlobalHoliday(ctx, date)
	if err != nil {
		return
	}
	if !in.GlobalHoliday {
		in.ScheduleHoliday, err = s.holidays.IsHoliday(ctx, env.ScheduleID, date)
		if err != nil {
			return
		}
	}

	availability = scheduler.Evaluate(in)
	return
}

// OpenDates lists the dates in [from, to] on which the environment accepts
// bookings at all. Opening hours are not checked against a time of day.
func (s *AvailabilityService) OpenDates(ctx context.Context, environmentID string, from, to scheduler.Date) (open []scheduler.Date, err error) {
	if s == nil {
		return nil, fmt.Errorf("AvailabilityService is nil")
	}
	if s.environments == nil || s.holidays == nil {
		return nil, fmt.Errorf("availability dependencies not configured")
	}

	logger := serviceLogger(ctx, s.logger, "AvailabilityService", "OpenDates",
		"environment_id", environmentID,
		"date_from", from.String(),
		"date_to", to.String(),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list open dates", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "open dates listed", "count", len(open))
	}()

	days, rangeErr := scheduler.DaysBetween(from, to)
	if rangeErr != nil {
		vErr := &ValidationError{}
		if errors.Is(rangeErr, scheduler.ErrRangeTooLong) {
			vErr.add("date_to", fmt.Sprintf("range may cover at most %d days", scheduler.MaxRangeDays))
		} else {
			vErr.add("date_to", "date_to must not be before date_from")
		}
		return nil, vErr
	}

	env, err := s.environments.GetEnvironment(ctx, environmentID)
	if err != nil {
		return nil, mapLookupError(err)
	}

	open = make([]scheduler.Date, 0, len(days))
	for _, day := range days {
		in := scheduler.AvailabilityInput{
			Date:              day,
			EnvironmentActive: env.Status == persistence.StatusActive,
			Hours:             env.Hours,
		}
		if in.GlobalHoliday, err = s.holidays.IsGlobalHoliday(ctx, day); err != nil {
			return nil, err
		}
		if !in.GlobalHoliday {
			if in.ScheduleHoliday, err = s.holidays.IsHoliday(ctx, env.ScheduleID, day); err != nil {
				return nil, err
			}
		}
		if scheduler.IsOpen(in) {
			open = append(open, day)
		}
	}
	return open, nil
}

// mapLookupError translates repository errors for read paths.
func mapLookupError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
