package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/resource-scheduler/internal/events"
	"github.com/example/resource-scheduler/internal/persistence"
	"github.com/example/resource-scheduler/internal/scheduler"
)

const defaultMaxDescriptionLength = 1000

// AvailabilityChecker decides whether an environment is open.
type AvailabilityChecker interface {
	Evaluate(ctx context.Context, environmentID string, date scheduler.Date, at *scheduler.TimeOfDay) (scheduler.Availability, error)
}

// ConflictChecker finds hard and soft conflicts for a candidate booking.
type ConflictChecker interface {
	HardConflicts(ctx context.Context, environmentID string, date scheduler.Date, start, end scheduler.TimeOfDay, excludeID string) ([]persistence.Booking, error)
	SoftConflicts(ctx context.Context, query ConflictQuery) (SoftConflicts, error)
}

// BookingPolicy answers the authorization questions asked by the booking lifecycle.
type BookingPolicy interface {
	CanBook(ctx context.Context, principal Principal, scheduleID string) (bool, error)
	CanCancelOthers(ctx context.Context, principal Principal, scheduleID string) (bool, error)
	CanOverrideConflicts(ctx context.Context, principal Principal, scheduleID string) (bool, error)
	CanView(ctx context.Context, principal Principal, schedule persistence.Schedule) (bool, error)
}

// AudienceReader loads audiences referenced by a booking.
type AudienceReader interface {
	GetAudience(ctx context.Context, id string) (persistence.Audience, error)
}

// BookingServiceDeps groups the collaborators of BookingService.
type BookingServiceDeps struct {
	Bookings     persistence.BookingRepository
	Environments EnvironmentReader
	Schedules    ScheduleReader
	Audiences    AudienceReader
	Availability AvailabilityChecker
	Conflicts    ConflictChecker
	Policy       BookingPolicy
	IDGenerator  func() string
	Now          func() time.Time
	Options      BookingOptions
	Logger       *slog.Logger
}

// BookingService creates and cancels bookings. A booking moves from active to
// cancelled exactly once.
type BookingService struct {
	bookings     persistence.BookingRepository
	environments EnvironmentReader
	schedules    ScheduleReader
	audiences    AudienceReader
	availability AvailabilityChecker
	conflicts    ConflictChecker
	policy       BookingPolicy
	idGenerator  func() string
	now          func() time.Time
	options      BookingOptions
	logger       *slog.Logger
}

// NewBookingService wires dependencies for booking operations.
func NewBookingService(deps BookingServiceDeps) *BookingService {
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "" }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Options.MaxDescriptionLength <= 0 {
		deps.Options.MaxDescriptionLength = defaultMaxDescriptionLength
	}
	if deps.Options.Location == nil {
		deps.Options.Location = time.UTC
	}
	return &BookingService{
		bookings:     deps.Bookings,
		environments: deps.Environments,
		schedules:    deps.Schedules,
		audiences:    deps.Audiences,
		availability: deps.Availability,
		conflicts:    deps.Conflicts,
		policy:       deps.Policy,
		idGenerator:  deps.IDGenerator,
		now:          deps.Now,
		options:      deps.Options,
		logger:       defaultLogger(deps.Logger),
	}
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

func (s *BookingService) configured() error {
	if s.bookings == nil || s.environments == nil || s.schedules == nil || s.audiences == nil ||
		s.availability == nil || s.conflicts == nil || s.policy == nil {
		return fmt.Errorf("booking dependencies not configured")
	}
	return nil
}

// CreateBooking validates the request, checks availability, conflicts and
// permissions, then stores the booking together with its BookingCreated event.
//
// When participants are double booked the call fails with *SoftConflictWarning
// unless the principal may override conflicts and AcknowledgeConflicts is set.
// A hard conflict is always fatal, including one detected by the store when a
// concurrent request wins the slot.
func (s *BookingService) CreateBooking(ctx context.Context, params CreateBookingParams) (result CreateBookingResult, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if err = s.configured(); err != nil {
		return
	}

	principal := params.Principal
	input := params.Input

	logger := s.loggerWith(ctx, "CreateBooking",
		"principal_id", principal.UserID,
		"environment_id", input.EnvironmentID,
		"date", input.Date,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("booking_id", result.Booking.ID).InfoContext(ctx, "booking created",
			"soft_conflicts_overridden", len(result.SoftConflicts.Bookings),
		)
	}()

	candidate, vErr := s.parseBookingInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var env persistence.Environment
	env, err = s.environments.GetEnvironment(ctx, candidate.EnvironmentID)
	if err != nil {
		err = mapLookupError(err)
		return
	}
	var schedule persistence.Schedule
	schedule, err = s.schedules.GetSchedule(ctx, env.ScheduleID)
	if err != nil {
		err = mapLookupError(err)
		return
	}

	if err = s.checkAudiences(ctx, candidate.AudienceIDs); err != nil {
		return
	}

	if vErr := s.checkChronology(principal, schedule, candidate.Date); vErr.HasErrors() {
		err = vErr
		return
	}

	var availability scheduler.Availability
	availability, err = s.availability.Evaluate(ctx, env.ID, candidate.Date, &candidate.Start)
	if err != nil {
		return
	}
	if !availability.Open {
		closed := &ValidationError{}
		closed.add("start", fmt.Sprintf("environment is not open at the requested time (%s)", availability.Reason))
		err = closed
		return
	}

	var hard []persistence.Booking
	hard, err = s.conflicts.HardConflicts(ctx, env.ID, candidate.Date, candidate.Start, candidate.End, "")
	if err != nil {
		return
	}
	if len(hard) > 0 {
		err = &HardConflictError{Bookings: hard}
		return
	}

	var allowed bool
	allowed, err = s.policy.CanBook(ctx, principal, schedule.ID)
	if err != nil {
		return
	}
	if !allowed {
		err = ErrUnauthorized
		return
	}

	var soft SoftConflicts
	soft, err = s.conflicts.SoftConflicts(ctx, ConflictQuery{
		EnvironmentID: env.ID,
		Date:          candidate.Date,
		Start:         candidate.Start,
		End:           candidate.End,
		AudienceIDs:   candidate.AudienceIDs,
		UserIDs:       candidate.UserIDs,
	})
	if err != nil {
		return
	}
	if !soft.Empty() {
		var overridable bool
		overridable, err = s.policy.CanOverrideConflicts(ctx, principal, schedule.ID)
		if err != nil {
			return
		}
		if !overridable || !params.AcknowledgeConflicts {
			result.SoftConflicts = soft
			err = &SoftConflictWarning{
				Bookings:      soft.Bookings,
				AffectedUsers: soft.AffectedUsers,
				Overridable:   overridable,
			}
			return
		}
	}

	createdAt := s.now()
	booking := candidate
	booking.ID = s.idGenerator()
	booking.EnvironmentID = env.ID
	booking.Status = persistence.BookingStatusActive
	booking.CreatorID = principal.UserID
	booking.CreatedAt = createdAt
	booking.UpdatedAt = createdAt

	var event persistence.OutboxEvent
	event, err = events.NewOutboxEvent(s.idGenerator(), createdAt, events.BookingCreated{
		BookingID:     booking.ID,
		EnvironmentID: booking.EnvironmentID,
		Date:          booking.Date.String(),
		Start:         booking.Start.String(),
		End:           booking.End.String(),
		CreatorID:     booking.CreatorID,
		AudienceIDs:   booking.AudienceIDs,
		UserIDs:       booking.UserIDs,
	})
	if err != nil {
		return
	}

	if err = s.bookings.CreateBooking(ctx, booking, []persistence.OutboxEvent{event}); err != nil {
		if errors.Is(err, persistence.ErrBookingOverlap) {
			// Another request took the slot after our check.
			winners, lookupErr := s.conflicts.HardConflicts(ctx, env.ID, booking.Date, booking.Start, booking.End, "")
			if lookupErr != nil {
				logger.WarnContext(ctx, "failed to load conflicting bookings", "error", lookupErr)
			}
			err = &HardConflictError{Bookings: winners}
			return
		}
		err = mapBookingRepoError(err)
		return
	}

	result = CreateBookingResult{Booking: booking, SoftConflicts: soft}
	return
}

// CancelBooking marks an active booking cancelled. The creator may always cancel;
// anyone else needs can_cancel_others or administrator rights. Of two concurrent
// cancellations only the first is recorded; the other gets ErrAlreadyCancelled.
func (s *BookingService) CancelBooking(ctx context.Context, params CancelBookingParams) (booking persistence.Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if err = s.configured(); err != nil {
		return
	}

	principal := params.Principal
	logger := s.loggerWith(ctx, "CancelBooking",
		"principal_id", principal.UserID,
		"booking_id", params.BookingID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking cancelled")
	}()

	reason := strings.TrimSpace(params.Reason)
	if reason == "" {
		vErr := &ValidationError{}
		vErr.add("reason", "reason is required")
		err = vErr
		return
	}

	booking, err = s.bookings.GetBooking(ctx, params.BookingID)
	if err != nil {
		err = mapBookingRepoError(err)
		return
	}
	if booking.Status == persistence.BookingStatusCancelled {
		err = ErrAlreadyCancelled
		return
	}

	if booking.CreatorID != principal.UserID && !principal.IsAdmin {
		var env persistence.Environment
		env, err = s.environments.GetEnvironment(ctx, booking.EnvironmentID)
		if err != nil {
			err = mapLookupError(err)
			return
		}
		var allowed bool
		allowed, err = s.policy.CanCancelOthers(ctx, principal, env.ScheduleID)
		if err != nil {
			return
		}
		if !allowed {
			err = ErrUnauthorized
			return
		}
	}

	cancelledAt := s.now()
	cancellation := persistence.Cancellation{
		BookingID:   booking.ID,
		CancelledBy: principal.UserID,
		CancelledAt: cancelledAt,
		Reason:      reason,
	}

	var event persistence.OutboxEvent
	event, err = events.NewOutboxEvent(s.idGenerator(), cancelledAt, events.BookingCancelled{
		BookingID:   booking.ID,
		Reason:      reason,
		CancelledBy: principal.UserID,
	})
	if err != nil {
		return
	}

	if err = s.bookings.CancelBooking(ctx, cancellation, []persistence.OutboxEvent{event}); err != nil {
		err = mapBookingRepoError(err)
		return
	}

	booking.Status = persistence.BookingStatusCancelled
	booking.CancelledBy = &cancellation.CancelledBy
	booking.CancelledAt = &cancelledAt
	booking.CancellationReason = &reason
	booking.UpdatedAt = cancelledAt
	return
}

// GetBooking returns a booking when its schedule is visible to the principal.
func (s *BookingService) GetBooking(ctx context.Context, principal Principal, bookingID string) (persistence.Booking, error) {
	if s == nil {
		return persistence.Booking{}, fmt.Errorf("BookingService is nil")
	}
	if err := s.configured(); err != nil {
		return persistence.Booking{}, err
	}

	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return persistence.Booking{}, mapBookingRepoError(err)
	}

	visible, err := newVisibility(s).bookingVisible(ctx, principal, booking)
	if err != nil {
		return persistence.Booking{}, err
	}
	if !visible {
		return persistence.Booking{}, ErrUnauthorized
	}
	return booking, nil
}

// ListBookings returns the bookings matching params that the principal may see,
// ordered by date, start time and ID.
func (s *BookingService) ListBookings(ctx context.Context, params ListBookingsParams) (bookings []persistence.Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if err = s.configured(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "ListBookings",
		"principal_id", params.Principal.UserID,
		"schedule_id", params.ScheduleID,
		"environment_id", params.EnvironmentID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list bookings", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(bookings)).InfoContext(ctx, "bookings listed")
	}()

	if params.DateFrom != nil && params.DateTo != nil && params.DateTo.Before(*params.DateFrom) {
		vErr := &ValidationError{}
		vErr.add("date_to", "date_to must not be before date_from")
		err = vErr
		return
	}

	var raw []persistence.Booking
	raw, err = s.bookings.ListBookings(ctx, persistence.BookingFilter{
		EnvironmentID: params.EnvironmentID,
		ScheduleID:    params.ScheduleID,
		DateFrom:      params.DateFrom,
		DateTo:        params.DateTo,
		Status:        params.Status,
	})
	if err != nil {
		return
	}

	visibility := newVisibility(s)
	bookings = make([]persistence.Booking, 0, len(raw))
	for _, booking := range raw {
		var visible bool
		visible, err = visibility.bookingVisible(ctx, params.Principal, booking)
		if err != nil {
			return
		}
		if visible {
			bookings = append(bookings, booking)
		}
	}
	return
}

// parseBookingInput turns the request into a booking candidate, collecting every
// field problem it finds.
func (s *BookingService) parseBookingInput(input BookingInput) (persistence.Booking, *ValidationError) {
	vErr := validateInput(input)

	date := parseDateField(vErr, "date", input.Date)
	start, startOK := parseTimeField(vErr, "start", input.Start)
	end, endOK := parseTimeField(vErr, "end", input.End)
	if startOK && endOK && start >= end {
		vErr.add("end", "end must be after start")
	}

	description := strings.TrimSpace(input.Description)
	if description == "" {
		vErr.add("description", "description is required")
	} else if utf8.RuneCountInString(description) > s.options.MaxDescriptionLength {
		vErr.add("description", fmt.Sprintf("description must be at most %d characters", s.options.MaxDescriptionLength))
	}

	audienceIDs := uniqueSorted(input.AudienceIDs)
	userIDs := uniqueSorted(input.UserIDs)
	switch input.Type {
	case persistence.BookingTypeAudience:
		if len(audienceIDs) == 0 {
			vErr.add("audience_ids", "an audience booking needs at least one audience")
		}
	case persistence.BookingTypeIndividual:
		if len(userIDs) == 0 {
			vErr.add("user_ids", "an individual booking needs at least one user")
		}
	}

	return persistence.Booking{
		EnvironmentID: strings.TrimSpace(input.EnvironmentID),
		Date:          date,
		Start:         start,
		End:           end,
		Type:          input.Type,
		Description:   description,
		AudienceIDs:   audienceIDs,
		UserIDs:       userIDs,
	}, vErr
}

// checkAudiences fails with ErrNotFound for an unknown audience. Inactive
// audiences keep their history but cannot be attached to new bookings.
func (s *BookingService) checkAudiences(ctx context.Context, audienceIDs []string) error {
	vErr := &ValidationError{}
	for _, id := range audienceIDs {
		audience, err := s.audiences.GetAudience(ctx, id)
		if err != nil {
			return mapLookupError(err)
		}
		if audience.Status == persistence.StatusInactive {
			vErr.add("audience_ids", fmt.Sprintf("audience %s is inactive", id))
		}
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

// checkChronology rejects past dates and, for non-administrators, dates beyond
// the schedule's booking horizon.
func (s *BookingService) checkChronology(principal Principal, schedule persistence.Schedule, date scheduler.Date) *ValidationError {
	vErr := &ValidationError{}
	today := scheduler.DateOf(s.now().In(s.options.Location))

	if date.Before(today) && !(principal.IsAdmin && s.options.AllowPastForAdmins) {
		vErr.add("date", "date must not be in the past")
	}
	if !principal.IsAdmin && schedule.FutureDays != nil && date.After(today.AddDays(*schedule.FutureDays)) {
		vErr.add("date", fmt.Sprintf("date must be within %d days from today", *schedule.FutureDays))
	}
	return vErr
}

// visibility memoizes schedule lookups while filtering a listing.
type visibility struct {
	service      *BookingService
	environments map[string]string
	schedules    map[string]bool
}

func newVisibility(s *BookingService) *visibility {
	return &visibility{service: s, environments: make(map[string]string), schedules: make(map[string]bool)}
}

func (v *visibility) bookingVisible(ctx context.Context, principal Principal, booking persistence.Booking) (bool, error) {
	if principal.IsAdmin {
		return true, nil
	}

	scheduleID, ok := v.environments[booking.EnvironmentID]
	if !ok {
		env, err := v.service.environments.GetEnvironment(ctx, booking.EnvironmentID)
		if err != nil {
			return false, mapLookupError(err)
		}
		scheduleID = env.ScheduleID
		v.environments[booking.EnvironmentID] = scheduleID
	}

	if visible, ok := v.schedules[scheduleID]; ok {
		return visible, nil
	}
	schedule, err := v.service.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return false, mapLookupError(err)
	}
	visible, err := v.service.policy.CanView(ctx, principal, schedule)
	if err != nil {
		return false, err
	}
	v.schedules[scheduleID] = visible
	return visible, nil
}

func mapBookingRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrStaleState):
		return ErrAlreadyCancelled
	case errors.Is(err, persistence.ErrBookingOverlap):
		return &HardConflictError{}
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		vErr := &ValidationError{}
		vErr.add("input", "booking references an unknown environment or audience")
		return vErr
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	}
	return err
}
