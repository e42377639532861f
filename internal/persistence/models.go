package persistence

import (
	"time"

	"github.com/example/resource-scheduler/internal/scheduler"
)

// Status is the lifecycle flag shared by schedules, environments and audiences.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Visibility controls read access to a schedule's calendar.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// BookingStatus is the booking state machine: active -> cancelled (terminal).
type BookingStatus string

const (
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// BookingType selects which participant set of a booking is authoritative.
type BookingType string

const (
	BookingTypeAudience   BookingType = "audience"
	BookingTypeIndividual BookingType = "individual"
)

// Schedule is a calendar container grouping environments and permissions.
type Schedule struct {
	ID             string
	Name           string
	Visibility     Visibility
	FutureDays     *int
	NotifyOnCreate bool
	NotifyOnCancel bool
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Environment is a bookable resource inside a schedule.
type Environment struct {
	ID         string
	ScheduleID string
	Name       string
	Hours      scheduler.WeeklyHours
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Holiday closes every environment of one schedule on a date.
type Holiday struct {
	ScheduleID  string
	Date        scheduler.Date
	Description string
}

// GlobalHoliday closes every environment of every schedule on a date.
type GlobalHoliday struct {
	Date        scheduler.Date
	Description string
}

// Audience is a named user group; at most two levels deep.
type Audience struct {
	ID        string
	Name      string
	Color     string
	ParentID  *string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AudienceMember links a user to an audience.
type AudienceMember struct {
	AudienceID string
	UserID     string
	CreatedAt  time.Time
}

// SchedulePermission carries the per-(schedule, user) booking rights.
type SchedulePermission struct {
	ScheduleID           string
	UserID               string
	CanBook              bool
	CanCancelOthers      bool
	CanOverrideConflicts bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Booking is a reservation of an environment for a time range on a date.
type Booking struct {
	ID                 string
	EnvironmentID      string
	Date               scheduler.Date
	Start              scheduler.TimeOfDay
	End                scheduler.TimeOfDay
	Type               BookingType
	Description        string
	Status             BookingStatus
	CreatorID          string
	AudienceIDs        []string
	UserIDs            []string
	CancelledBy        *string
	CancelledAt        *time.Time
	CancellationReason *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Cancellation captures the fields written when a booking is cancelled.
type Cancellation struct {
	BookingID   string
	CancelledBy string
	CancelledAt time.Time
	Reason      string
}

// OutboxEvent is a domain event persisted in the same transaction as the change it describes.
type OutboxEvent struct {
	ID          string
	Type        string
	AggregateID string
	Payload     []byte
	Attempts    int
	LastError   *string
	CreatedAt   time.Time
	PublishedAt *time.Time
}
