package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/resource-scheduler/internal/persistence"
	"github.com/example/resource-scheduler/internal/scheduler"
)

// HolidayService administers schedule holidays and organization-wide holidays.
type HolidayService struct {
	holidays  persistence.HolidayRepository
	schedules ScheduleReader
	logger    *slog.Logger
}

// NewHolidayService wires dependencies for holiday administration.
func NewHolidayService(holidays persistence.HolidayRepository, schedules ScheduleReader, logger *slog.Logger) *HolidayService {
	return &HolidayService{holidays: holidays, schedules: schedules, logger: defaultLogger(logger)}
}

// AddHoliday closes every environment of a schedule on a date.
func (s *HolidayService) AddHoliday(ctx context.Context, principal Principal, input HolidayInput) (holiday persistence.Holiday, err error) {
	if s == nil {
		err = fmt.Errorf("HolidayService is nil")
		return
	}
	if s.holidays == nil || s.schedules == nil {
		err = fmt.Errorf("holiday dependencies not configured")
		return
	}

	logger := serviceLogger(ctx, s.logger, "HolidayService", "AddHoliday",
		"principal_id", principal.UserID,
		"schedule_id", input.ScheduleID,
		"date", input.Date,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to add holiday", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "holiday added")
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	vErr := validateInput(input)
	if strings.TrimSpace(input.ScheduleID) == "" {
		vErr.add("schedule_id", "schedule_id is required")
	}
	var date scheduler.Date
	if !vErr.HasErrors() {
		date = parseDateField(vErr, "date", input.Date)
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if _, err = s.schedules.GetSchedule(ctx, input.ScheduleID); err != nil {
		err = mapLookupError(err)
		return
	}

	holiday = persistence.Holiday{
		ScheduleID:  strings.TrimSpace(input.ScheduleID),
		Date:        date,
		Description: strings.TrimSpace(input.Description),
	}
	if err = s.holidays.AddHoliday(ctx, holiday); err != nil {
		err = mapHolidayRepoError(err)
	}
	return
}

// RemoveHoliday reopens a schedule on a date.
func (s *HolidayService) RemoveHoliday(ctx context.Context, principal Principal, scheduleID string, date scheduler.Date) error {
	if s == nil {
		return fmt.Errorf("HolidayService is nil")
	}
	if !principal.IsAdmin {
		return ErrUnauthorized
	}
	if s.holidays == nil {
		return fmt.Errorf("holiday repository not configured")
	}
	if err := s.holidays.RemoveHoliday(ctx, scheduleID, date); err != nil {
		err = mapHolidayRepoError(err)
		serviceLogger(ctx, s.logger, "HolidayService", "RemoveHoliday", "schedule_id", scheduleID, "date", date.String()).
			ErrorContext(ctx, "failed to remove holiday", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	return nil
}

// ListHolidays returns a schedule's holidays in date order.
func (s *HolidayService) ListHolidays(ctx context.Context, scheduleID string) ([]persistence.Holiday, error) {
	if s == nil {
		return nil, fmt.Errorf("HolidayService is nil")
	}
	if s.holidays == nil {
		return nil, nil
	}
	return s.holidays.ListHolidays(ctx, scheduleID)
}

// AddGlobalHoliday closes every environment of every schedule on a date.
func (s *HolidayService) AddGlobalHoliday(ctx context.Context, principal Principal, input HolidayInput) (holiday persistence.GlobalHoliday, err error) {
	if s == nil {
		err = fmt.Errorf("HolidayService is nil")
		return
	}
	if s.holidays == nil {
		err = fmt.Errorf("holiday repository not configured")
		return
	}

	logger := serviceLogger(ctx, s.logger, "HolidayService", "AddGlobalHoliday",
		"principal_id", principal.UserID,
		"date", input.Date,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to add global holiday", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "global holiday added")
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	vErr := validateInput(input)
	var date scheduler.Date
	if !vErr.HasErrors() {
		date = parseDateField(vErr, "date", input.Date)
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	holiday = persistence.GlobalHoliday{Date: date, Description: strings.TrimSpace(input.Description)}
	if err = s.holidays.AddGlobalHoliday(ctx, holiday); err != nil {
		err = mapHolidayRepoError(err)
	}
	return
}

// RemoveGlobalHoliday reopens every schedule on a date.
func (s *HolidayService) RemoveGlobalHoliday(ctx context.Context, principal Principal, date scheduler.Date) error {
	if s == nil {
		return fmt.Errorf("HolidayService is nil")
	}
	if !principal.IsAdmin {
		return ErrUnauthorized
	}
	if s.holidays == nil {
		return fmt.Errorf("holiday repository not configured")
	}
	return mapHolidayRepoError(s.holidays.RemoveGlobalHoliday(ctx, date))
}

// ListGlobalHolidays returns organization-wide holidays in date order.
func (s *HolidayService) ListGlobalHolidays(ctx context.Context) ([]persistence.GlobalHoliday, error) {
	if s == nil {
		return nil, fmt.Errorf("HolidayService is nil")
	}
	if s.holidays == nil {
		return nil, nil
	}
	return s.holidays.ListGlobalHolidays(ctx)
}

func mapHolidayRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return ErrNotFound
	}
	return err
}
