package application

import (
	"time"

	"github.com/example/resource-scheduler/internal/persistence"
	"github.com/example/resource-scheduler/internal/scheduler"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// ScheduleInput captures caller provided schedule fields.
type ScheduleInput struct {
	Name           string                 `json:"name" validate:"required,max=200"`
	Visibility     persistence.Visibility `json:"visibility" validate:"required,oneof=public private"`
	FutureDays     *int                   `json:"future_days" validate:"omitempty,min=0"`
	NotifyOnCreate bool                   `json:"notify_on_create"`
	NotifyOnCancel bool                   `json:"notify_on_cancel"`
	Status         persistence.Status     `json:"status" validate:"omitempty,oneof=active inactive"`
}

// CreateScheduleParams wraps the data required to create a schedule.
type CreateScheduleParams struct {
	Principal Principal
	Input     ScheduleInput
}

// UpdateScheduleParams wraps the data required to update an existing schedule.
type UpdateScheduleParams struct {
	Principal  Principal
	ScheduleID string
	Input      ScheduleInput
}

// EnvironmentInput captures caller provided environment fields. A nil Hours
// template leaves the environment open at all hours.
type EnvironmentInput struct {
	ScheduleID string                `json:"schedule_id" validate:"required"`
	Name       string                `json:"name" validate:"required,max=200"`
	Hours      scheduler.WeeklyHours `json:"hours"`
	Status     persistence.Status    `json:"status" validate:"omitempty,oneof=active inactive"`
}

// CreateEnvironmentParams wraps the data required to create an environment.
type CreateEnvironmentParams struct {
	Principal Principal
	Input     EnvironmentInput
}

// UpdateEnvironmentParams wraps the data required to update an environment.
type UpdateEnvironmentParams struct {
	Principal     Principal
	EnvironmentID string
	Input         EnvironmentInput
}

// HolidayInput captures a schedule holiday. ScheduleID is ignored for global holidays.
type HolidayInput struct {
	ScheduleID  string `json:"schedule_id"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Description string `json:"description" validate:"max=500"`
}

// AudienceInput captures caller provided audience fields.
type AudienceInput struct {
	Name     string  `json:"name" validate:"required,max=200"`
	Color    string  `json:"color" validate:"omitempty,hexcolor"`
	ParentID *string `json:"parent_id"`
}

// PermissionInput grants booking rights on a schedule to a user.
type PermissionInput struct {
	ScheduleID           string `json:"schedule_id" validate:"required"`
	UserID               string `json:"user_id" validate:"required"`
	CanBook              bool   `json:"can_book"`
	CanCancelOthers      bool   `json:"can_cancel_others"`
	CanOverrideConflicts bool   `json:"can_override_conflicts"`
}

// BookingInput captures caller provided booking fields. Date is YYYY-MM-DD and
// Start/End are HH:MM or HH:MM:SS wall clock times.
type BookingInput struct {
	EnvironmentID string                  `json:"environment_id" validate:"required"`
	Date          string                  `json:"date" validate:"required,datetime=2006-01-02"`
	Start         string                  `json:"start" validate:"required"`
	End           string                  `json:"end" validate:"required"`
	Type          persistence.BookingType `json:"type" validate:"required,oneof=audience individual"`
	Description   string                  `json:"description" validate:"required"`
	AudienceIDs   []string                `json:"audience_ids" validate:"dive,required"`
	UserIDs       []string                `json:"user_ids" validate:"dive,required"`
}

// CreateBookingParams wraps the data required to create a booking.
// AcknowledgeConflicts confirms the caller has seen the soft conflicts and wants to proceed.
type CreateBookingParams struct {
	Principal            Principal
	Input                BookingInput
	AcknowledgeConflicts bool
}

// CreateBookingResult carries the stored booking and any soft conflicts that were overridden.
type CreateBookingResult struct {
	Booking       persistence.Booking
	SoftConflicts SoftConflicts
}

// CancelBookingParams wraps the data required to cancel a booking.
type CancelBookingParams struct {
	Principal Principal
	BookingID string
	Reason    string
}

// ListBookingsParams narrows booking listings. Empty fields are unconstrained.
type ListBookingsParams struct {
	Principal     Principal
	ScheduleID    string
	EnvironmentID string
	DateFrom      *scheduler.Date
	DateTo        *scheduler.Date
	Status        persistence.BookingStatus
}

// ConflictQuery describes a candidate booking for conflict checks.
type ConflictQuery struct {
	EnvironmentID string
	Date          scheduler.Date
	Start         scheduler.TimeOfDay
	End           scheduler.TimeOfDay
	AudienceIDs   []string
	UserIDs       []string
	ExcludeID     string
}

// SoftConflicts lists the overlapping bookings that share participants with a
// candidate and the participants they share.
type SoftConflicts struct {
	Bookings      []persistence.Booking
	AffectedUsers []string
}

// Empty reports whether no participant is double booked.
func (s SoftConflicts) Empty() bool {
	return len(s.Bookings) == 0
}

// ConflictReport is the read-only preview returned by CheckConflicts.
type ConflictReport struct {
	Hard []persistence.Booking
	Soft SoftConflicts
}

// BookingOptions tunes the booking rules that vary per deployment.
type BookingOptions struct {
	// MaxDescriptionLength bounds the description in characters. Zero means 1000.
	MaxDescriptionLength int
	// AllowPastForAdmins lets administrators book dates before today.
	AllowPastForAdmins bool
	// Location decides what "today" is. Nil means UTC.
	Location *time.Location
}
