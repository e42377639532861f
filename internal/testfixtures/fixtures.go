package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/resource-scheduler/internal/application"
	"github.com/example/resource-scheduler/internal/persistence"
	"github.com/example/resource-scheduler/internal/scheduler"
)

var (
	scheduleCounter    uint64
	environmentCounter uint64
	audienceCounter    uint64
	bookingCounter     uint64
)

// Monday morning, so that the following weekdays are bookable office days.
var referenceTime = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// OfficeHours opens Monday to Friday from 08:00 to 18:00 and closes the weekend.
func OfficeHours() scheduler.WeeklyHours {
	hours := scheduler.WeeklyHours{
		time.Saturday: {Closed: true},
		time.Sunday:   {Closed: true},
	}
	for day := time.Monday; day <= time.Friday; day++ {
		hours[day] = scheduler.DayHours{Start: scheduler.NewTimeOfDay(8, 0), End: scheduler.NewTimeOfDay(18, 0)}
	}
	return hours
}

// --------------------------- Schedule fixtures ---------------------------

// ScheduleFixture represents a deterministic schedule record.
type ScheduleFixture struct {
	ID         string
	Name       string
	Visibility persistence.Visibility
	FutureDays *int
	Status     persistence.Status
	CreatedAt  time.Time
}

// ScheduleOption configures the generated schedule fixture.
type ScheduleOption func(*ScheduleFixture)

// NewScheduleFixture returns a public, active schedule fixture with optional overrides.
func NewScheduleFixture(opts ...ScheduleOption) ScheduleFixture {
	idx := atomic.AddUint64(&scheduleCounter, 1)
	fixture := ScheduleFixture{
		ID:         fmt.Sprintf("schedule-%03d", idx),
		Name:       fmt.Sprintf("Schedule %03d", idx),
		Visibility: persistence.VisibilityPublic,
		Status:     persistence.StatusActive,
		CreatedAt:  referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithScheduleID overrides the schedule ID.
func WithScheduleID(id string) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.ID = id
	}
}

// WithScheduleVisibility sets the visibility.
func WithScheduleVisibility(visibility persistence.Visibility) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.Visibility = visibility
	}
}

// WithScheduleFutureDays limits how far ahead non-administrators may book.
func WithScheduleFutureDays(days int) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.FutureDays = &days
	}
}

// WithScheduleStatus sets the lifecycle status.
func WithScheduleStatus(status persistence.Status) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.Status = status
	}
}

// Persistence returns the fixture as a persistence.Schedule value.
func (f ScheduleFixture) Persistence() persistence.Schedule {
	return persistence.Schedule{
		ID:         f.ID,
		Name:       f.Name,
		Visibility: f.Visibility,
		FutureDays: copyIntPtr(f.FutureDays),
		Status:     f.Status,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.CreatedAt,
	}
}

// Input returns the fixture as an application.ScheduleInput.
func (f ScheduleFixture) Input() application.ScheduleInput {
	return application.ScheduleInput{
		Name:       f.Name,
		Visibility: f.Visibility,
		FutureDays: copyIntPtr(f.FutureDays),
		Status:     f.Status,
	}
}

// ------------------------- Environment fixtures --------------------------

// EnvironmentFixture represents a deterministic environment record.
type EnvironmentFixture struct {
	ID         string
	ScheduleID string
	Name       string
	Hours      scheduler.WeeklyHours
	Status     persistence.Status
	CreatedAt  time.Time
}

// EnvironmentOption configures the generated environment fixture.
type EnvironmentOption func(*EnvironmentFixture)

// NewEnvironmentFixture returns an active environment with office hours.
func NewEnvironmentFixture(scheduleID string, opts ...EnvironmentOption) EnvironmentFixture {
	idx := atomic.AddUint64(&environmentCounter, 1)
	fixture := EnvironmentFixture{
		ID:         fmt.Sprintf("env-%03d", idx),
		ScheduleID: scheduleID,
		Name:       fmt.Sprintf("Room %03d", idx),
		Hours:      OfficeHours(),
		Status:     persistence.StatusActive,
		CreatedAt:  referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEnvironmentID overrides the environment ID.
func WithEnvironmentID(id string) EnvironmentOption {
	return func(f *EnvironmentFixture) {
		f.ID = id
	}
}

// WithEnvironmentHours replaces the weekly opening hours.
func WithEnvironmentHours(hours scheduler.WeeklyHours) EnvironmentOption {
	return func(f *EnvironmentFixture) {
		f.Hours = hours.Clone()
	}
}

// WithEnvironmentStatus sets the lifecycle status.
func WithEnvironmentStatus(status persistence.Status) EnvironmentOption {
	return func(f *EnvironmentFixture) {
		f.Status = status
	}
}

// Persistence returns the fixture as a persistence.Environment value.
func (f EnvironmentFixture) Persistence() persistence.Environment {
	return persistence.Environment{
		ID:         f.ID,
		ScheduleID: f.ScheduleID,
		Name:       f.Name,
		Hours:      f.Hours.Clone(),
		Status:     f.Status,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.CreatedAt,
	}
}

// Input returns the fixture as an application.EnvironmentInput.
func (f EnvironmentFixture) Input() application.EnvironmentInput {
	return application.EnvironmentInput{
		ScheduleID: f.ScheduleID,
		Name:       f.Name,
		Hours:      f.Hours.Clone(),
		Status:     f.Status,
	}
}

// --------------------------- Audience fixtures ---------------------------

// AudienceFixture represents a deterministic audience and its direct members.
type AudienceFixture struct {
	ID        string
	Name      string
	Color     string
	ParentID  *string
	Members   []string
	CreatedAt time.Time
}

// AudienceOption configures the generated audience fixture.
type AudienceOption func(*AudienceFixture)

// NewAudienceFixture returns a root audience fixture with optional overrides.
func NewAudienceFixture(opts ...AudienceOption) AudienceFixture {
	idx := atomic.AddUint64(&audienceCounter, 1)
	fixture := AudienceFixture{
		ID:        fmt.Sprintf("audience-%03d", idx),
		Name:      fmt.Sprintf("Audience %03d", idx),
		Color:     "#336699",
		CreatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithAudienceID overrides the audience ID.
func WithAudienceID(id string) AudienceOption {
	return func(f *AudienceFixture) {
		f.ID = id
	}
}

// WithAudienceParent nests the audience under parentID.
func WithAudienceParent(parentID string) AudienceOption {
	return func(f *AudienceFixture) {
		f.ParentID = &parentID
	}
}

// WithAudienceMembers sets the direct members.
func WithAudienceMembers(userIDs ...string) AudienceOption {
	return func(f *AudienceFixture) {
		f.Members = append([]string(nil), userIDs...)
	}
}

// Persistence returns the fixture as a persistence.Audience value.
func (f AudienceFixture) Persistence() persistence.Audience {
	return persistence.Audience{
		ID:        f.ID,
		Name:      f.Name,
		Color:     f.Color,
		ParentID:  copyStringPtr(f.ParentID),
		Status:    persistence.StatusActive,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.CreatedAt,
	}
}

// Input returns the fixture as an application.AudienceInput.
func (f AudienceFixture) Input() application.AudienceInput {
	return application.AudienceInput{
		Name:     f.Name,
		Color:    f.Color,
		ParentID: copyStringPtr(f.ParentID),
	}
}

// --------------------------- Booking fixtures ----------------------------

// BookingFixture represents a deterministic booking on one environment.
type BookingFixture struct {
	ID            string
	EnvironmentID string
	Date          scheduler.Date
	Start         scheduler.TimeOfDay
	End           scheduler.TimeOfDay
	Type          persistence.BookingType
	Description   string
	CreatorID     string
	AudienceIDs   []string
	UserIDs       []string
	CreatedAt     time.Time
}

// BookingOption configures the generated booking fixture.
type BookingOption func(*BookingFixture)

// NewBookingFixture returns an individual booking from 09:00 to 10:00 on the
// day after ReferenceTime.
func NewBookingFixture(environmentID string, opts ...BookingOption) BookingFixture {
	idx := atomic.AddUint64(&bookingCounter, 1)
	creator := fmt.Sprintf("user-%03d", idx)
	fixture := BookingFixture{
		ID:            fmt.Sprintf("booking-%03d", idx),
		EnvironmentID: environmentID,
		Date:          scheduler.DateOf(referenceTime).AddDays(1),
		Start:         scheduler.NewTimeOfDay(9, 0),
		End:           scheduler.NewTimeOfDay(10, 0),
		Type:          persistence.BookingTypeIndividual,
		Description:   fmt.Sprintf("Booking %03d", idx),
		CreatorID:     creator,
		UserIDs:       []string{creator},
		CreatedAt:     referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithBookingID overrides the booking ID.
func WithBookingID(id string) BookingOption {
	return func(f *BookingFixture) {
		f.ID = id
	}
}

// WithBookingSlot sets the date and the [start, end) range, given as
// YYYY-MM-DD and HH:MM.
func WithBookingSlot(date, start, end string) BookingOption {
	return func(f *BookingFixture) {
		f.Date = scheduler.MustParseDate(date)
		f.Start = scheduler.MustParseTimeOfDay(start)
		f.End = scheduler.MustParseTimeOfDay(end)
	}
}

// WithBookingCreator sets the creator.
func WithBookingCreator(userID string) BookingOption {
	return func(f *BookingFixture) {
		f.CreatorID = userID
	}
}

// WithBookingUsers makes the booking an individual booking for userIDs.
func WithBookingUsers(userIDs ...string) BookingOption {
	return func(f *BookingFixture) {
		f.Type = persistence.BookingTypeIndividual
		f.UserIDs = append([]string(nil), userIDs...)
		f.AudienceIDs = nil
	}
}

// WithBookingAudiences makes the booking an audience booking for audienceIDs.
func WithBookingAudiences(audienceIDs ...string) BookingOption {
	return func(f *BookingFixture) {
		f.Type = persistence.BookingTypeAudience
		f.AudienceIDs = append([]string(nil), audienceIDs...)
		f.UserIDs = nil
	}
}

// Persistence returns the fixture as an active persistence.Booking value.
func (f BookingFixture) Persistence() persistence.Booking {
	return persistence.Booking{
		ID:            f.ID,
		EnvironmentID: f.EnvironmentID,
		Date:          f.Date,
		Start:         f.Start,
		End:           f.End,
		Type:          f.Type,
		Description:   f.Description,
		Status:        persistence.BookingStatusActive,
		CreatorID:     f.CreatorID,
		AudienceIDs:   append([]string(nil), f.AudienceIDs...),
		UserIDs:       append([]string(nil), f.UserIDs...),
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.CreatedAt,
	}
}

// Input returns the fixture as an application.BookingInput.
func (f BookingFixture) Input() application.BookingInput {
	return application.BookingInput{
		EnvironmentID: f.EnvironmentID,
		Date:          f.Date.String(),
		Start:         f.Start.String(),
		End:           f.End.String(),
		Type:          f.Type,
		Description:   f.Description,
		AudienceIDs:   append([]string(nil), f.AudienceIDs...),
		UserIDs:       append([]string(nil), f.UserIDs...),
	}
}

// helper to deep copy optional strings.
func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}

func copyIntPtr(src *int) *int {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}
