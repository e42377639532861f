package persistence

import (
	"context"
	"time"

	"github.com/example/resource-scheduler/internal/scheduler"
)

// ScheduleRepository exposes CRUD operations for schedules.
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, schedule Schedule) error
	UpdateSchedule(ctx context.Context, schedule Schedule) error
	GetSchedule(ctx context.Context, id string) (Schedule, error)
	ListSchedules(ctx context.Context) ([]Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error
}

// EnvironmentRepository exposes CRUD operations for environments.
type EnvironmentRepository interface {
	CreateEnvironment(ctx context.Context, env Environment) error
	UpdateEnvironment(ctx context.Context, env Environment) error
	GetEnvironment(ctx context.Context, id string) (Environment, error)
	ListEnvironments(ctx context.Context, scheduleID string) ([]Environment, error)
	DeleteEnvironment(ctx context.Context, id string) error
	EnvironmentHasBookings(ctx context.Context, id string) (bool, error)
}

// HolidayRepository stores schedule and organization-wide holidays.
type HolidayRepository interface {
	AddHoliday(ctx context.Context, holiday Holiday) error
	RemoveHoliday(ctx context.Context, scheduleID string, date scheduler.Date) error
	ListHolidays(ctx context.Context, scheduleID string) ([]Holiday, error)
	IsHoliday(ctx context.Context, scheduleID string, date scheduler.Date) (bool, error)
	AddGlobalHoliday(ctx context.Context, holiday GlobalHoliday) error
	RemoveGlobalHoliday(ctx context.Context, date scheduler.Date) error
	ListGlobalHolidays(ctx context.Context) ([]GlobalHoliday, error)
	IsGlobalHoliday(ctx context.Context, date scheduler.Date) (bool, error)
}

// AudienceRepository stores audiences and their memberships.
type AudienceRepository interface {
	CreateAudience(ctx context.Context, audience Audience) error
	UpdateAudience(ctx context.Context, audience Audience) error
	GetAudience(ctx context.Context, id string) (Audience, error)
	ListAudiences(ctx context.Context) ([]Audience, error)
	ListChildren(ctx context.Context, parentID string) ([]Audience, error)
	DeleteAudience(ctx context.Context, id string) error
	AudienceInUse(ctx context.Context, id string) (bool, error)
	AddMember(ctx context.Context, member AudienceMember) error
	RemoveMember(ctx context.Context, audienceID, userID string) error
	// ListMembers returns the distinct user IDs belonging to the audiences, optionally
	// including the members of their direct children.
	ListMembers(ctx context.Context, audienceIDs []string, includeChildren bool) ([]string, error)
}

// PermissionRepository stores per-(schedule, user) permissions.
type PermissionRepository interface {
	UpsertPermission(ctx context.Context, permission SchedulePermission) error
	GetPermission(ctx context.Context, scheduleID, userID string) (SchedulePermission, error)
	ListPermissions(ctx context.Context, scheduleID string) ([]SchedulePermission, error)
	DeletePermission(ctx context.Context, scheduleID, userID string) error
}

// BookingFilter narrows booking queries. Zero values leave a dimension unconstrained.
type BookingFilter struct {
	EnvironmentID string
	ScheduleID    string
	Date          *scheduler.Date
	DateFrom      *scheduler.Date
	DateTo        *scheduler.Date
	// OverlapStart and OverlapEnd select bookings intersecting [OverlapStart, OverlapEnd).
	OverlapStart *scheduler.TimeOfDay
	OverlapEnd   *scheduler.TimeOfDay
	Status       BookingStatus
	ExcludeID    string
}

// BookingRepository stores bookings together with their audience and user attachments.
type BookingRepository interface {
	// CreateBooking writes the booking, its join rows and the events atomically.
	CreateBooking(ctx context.Context, booking Booking, events []OutboxEvent) error
	GetBooking(ctx context.Context, id string) (Booking, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error)
	// CancelBooking transitions an active booking to cancelled; ErrStaleState when it is not active.
	CancelBooking(ctx context.Context, cancellation Cancellation, events []OutboxEvent) error
}

// OutboxRepository exposes the pending event queue to the relay.
type OutboxRepository interface {
	ListPendingEvents(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkEventPublished(ctx context.Context, id string, publishedAt time.Time) error
	MarkEventFailed(ctx context.Context, id string, reason string) error
}
