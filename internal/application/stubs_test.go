package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/example/resource-scheduler/internal/persistence"
	"github.com/example/resource-scheduler/internal/scheduler"
)

var testNow = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC) // Monday

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sequenceIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%02d", prefix, n)
	}
}

// memoryRepo is an in-memory stand-in for the SQLite repositories.
type memoryRepo struct {
	mu sync.Mutex

	schedules      map[string]persistence.Schedule
	environments   map[string]persistence.Environment
	holidays       map[string]persistence.Holiday
	globalHolidays map[scheduler.Date]persistence.GlobalHoliday
	audiences      map[string]persistence.Audience
	members        map[string]map[string]struct{}
	permissions    map[string]persistence.SchedulePermission
	bookings       map[string]persistence.Booking
	events         []persistence.OutboxEvent

	listMembersCalls int
	createBookingErr error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		schedules:      make(map[string]persistence.Schedule),
		environments:   make(map[string]persistence.Environment),
		holidays:       make(map[string]persistence.Holiday),
		globalHolidays: make(map[scheduler.Date]persistence.GlobalHoliday),
		audiences:      make(map[string]persistence.Audience),
		members:        make(map[string]map[string]struct{}),
		permissions:    make(map[string]persistence.SchedulePermission),
		bookings:       make(map[string]persistence.Booking),
	}
}

// schedules

func (m *memoryRepo) CreateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[schedule.ID]; ok {
		return persistence.ErrDuplicate
	}
	m.schedules[schedule.ID] = schedule
	return nil
}

func (m *memoryRepo) UpdateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[schedule.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.schedules[schedule.ID] = schedule
	return nil
}

func (m *memoryRepo) GetSchedule(ctx context.Context, id string) (persistence.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	schedule, ok := m.schedules[id]
	if !ok {
		return persistence.Schedule{}, persistence.ErrNotFound
	}
	return schedule, nil
}

func (m *memoryRepo) ListSchedules(ctx context.Context) ([]persistence.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]persistence.Schedule, 0, len(m.schedules))
	for _, schedule := range m.schedules {
		out = append(out, schedule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryRepo) DeleteSchedule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.schedules, id)
	return nil
}

// environments

func (m *memoryRepo) CreateEnvironment(ctx context.Context, env persistence.Environment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[env.ScheduleID]; !ok {
		return persistence.ErrForeignKeyViolation
	}
	m.environments[env.ID] = env
	return nil
}

func (m *memoryRepo) UpdateEnvironment(ctx context.Context, env persistence.Environment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.environments[env.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.environments[env.ID] = env
	return nil
}

func (m *memoryRepo) GetEnvironment(ctx context.Context, id string) (persistence.Environment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	env, ok := m.environments[id]
	if !ok {
		return persistence.Environment{}, persistence.ErrNotFound
	}
	return env, nil
}

func (m *memoryRepo) ListEnvironments(ctx context.Context, scheduleID string) ([]persistence.Environment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.Environment
	for _, env := range m.environments {
		if scheduleID == "" || env.ScheduleID == scheduleID {
			out = append(out, env)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryRepo) DeleteEnvironment(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.environments[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.environments, id)
	return nil
}

func (m *memoryRepo) EnvironmentHasBookings(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, booking := range m.bookings {
		if booking.EnvironmentID == id {
			return true, nil
		}
	}
	return false, nil
}

// holidays

func (m *memoryRepo) AddHoliday(ctx context.Context, holiday persistence.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := holiday.ScheduleID + "|" + holiday.Date.String()
	if _, ok := m.holidays[key]; ok {
		return persistence.ErrDuplicate
	}
	m.holidays[key] = holiday
	return nil
}

func (m *memoryRepo) RemoveHoliday(ctx context.Context, scheduleID string, date scheduler.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := scheduleID + "|" + date.String()
	if _, ok := m.holidays[key]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.holidays, key)
	return nil
}

func (m *memoryRepo) ListHolidays(ctx context.Context, scheduleID string) ([]persistence.Holiday, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.Holiday
	for _, holiday := range m.holidays {
		if holiday.ScheduleID == scheduleID {
			out = append(out, holiday)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memoryRepo) IsHoliday(ctx context.Context, scheduleID string, date scheduler.Date) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.holidays[scheduleID+"|"+date.String()]
	return ok, nil
}

func (m *memoryRepo) AddGlobalHoliday(ctx context.Context, holiday persistence.GlobalHoliday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.globalHolidays[holiday.Date]; ok {
		return persistence.ErrDuplicate
	}
	m.globalHolidays[holiday.Date] = holiday
	return nil
}

func (m *memoryRepo) RemoveGlobalHoliday(ctx context.Context, date scheduler.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.globalHolidays[date]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.globalHolidays, date)
	return nil
}

func (m *memoryRepo) ListGlobalHolidays(ctx context.Context) ([]persistence.GlobalHoliday, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]persistence.GlobalHoliday, 0, len(m.globalHolidays))
	for _, holiday := range m.globalHolidays {
		out = append(out, holiday)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memoryRepo) IsGlobalHoliday(ctx context.Context, date scheduler.Date) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.globalHolidays[date]
	return ok, nil
}

// audiences

func (m *memoryRepo) CreateAudience(ctx context.Context, audience persistence.Audience) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.audiences[audience.ID]; ok {
		return persistence.ErrDuplicate
	}
	m.audiences[audience.ID] = audience
	return nil
}

func (m *memoryRepo) UpdateAudience(ctx context.Context, audience persistence.Audience) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.audiences[audience.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.audiences[audience.ID] = audience
	return nil
}

func (m *memoryRepo) GetAudience(ctx context.Context, id string) (persistence.Audience, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	audience, ok := m.audiences[id]
	if !ok {
		return persistence.Audience{}, persistence.ErrNotFound
	}
	return audience, nil
}

func (m *memoryRepo) ListAudiences(ctx context.Context) ([]persistence.Audience, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]persistence.Audience, 0, len(m.audiences))
	for _, audience := range m.audiences {
		out = append(out, audience)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryRepo) ListChildren(ctx context.Context, parentID string) ([]persistence.Audience, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.Audience
	for _, audience := range m.audiences {
		if audience.ParentID != nil && *audience.ParentID == parentID {
			out = append(out, audience)
		}
	}
	return out, nil
}

func (m *memoryRepo) DeleteAudience(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.audiences[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.audiences, id)
	delete(m.members, id)
	return nil
}

func (m *memoryRepo) AudienceInUse(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, booking := range m.bookings {
		for _, audienceID := range booking.AudienceIDs {
			if audienceID == id {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *memoryRepo) AddMember(ctx context.Context, member persistence.AudienceMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.members[member.AudienceID]
	if !ok {
		set = make(map[string]struct{})
		m.members[member.AudienceID] = set
	}
	if _, exists := set[member.UserID]; exists {
		return persistence.ErrDuplicate
	}
	set[member.UserID] = struct{}{}
	return nil
}

func (m *memoryRepo) RemoveMember(ctx context.Context, audienceID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[audienceID][userID]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.members[audienceID], userID)
	return nil
}

func (m *memoryRepo) ListMembers(ctx context.Context, audienceIDs []string, includeChildren bool) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listMembersCalls++

	wanted := make(map[string]struct{}, len(audienceIDs))
	for _, id := range audienceIDs {
		wanted[id] = struct{}{}
	}
	if includeChildren {
		for _, audience := range m.audiences {
			if audience.ParentID == nil {
				continue
			}
			if _, ok := wanted[*audience.ParentID]; ok {
				wanted[audience.ID] = struct{}{}
			}
		}
	}

	seen := make(map[string]struct{})
	for id := range wanted {
		for user := range m.members[id] {
			seen[user] = struct{}{}
		}
	}
	var out []string
	for user := range seen {
		out = append(out, user)
	}
	sort.Strings(out)
	return out, nil
}

// permissions

func (m *memoryRepo) UpsertPermission(ctx context.Context, permission persistence.SchedulePermission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := permission.ScheduleID + "|" + permission.UserID
	if existing, ok := m.permissions[key]; ok {
		permission.CreatedAt = existing.CreatedAt
	}
	m.permissions[key] = permission
	return nil
}

func (m *memoryRepo) GetPermission(ctx context.Context, scheduleID, userID string) (persistence.SchedulePermission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	permission, ok := m.permissions[scheduleID+"|"+userID]
	if !ok {
		return persistence.SchedulePermission{}, persistence.ErrNotFound
	}
	return permission, nil
}

func (m *memoryRepo) ListPermissions(ctx context.Context, scheduleID string) ([]persistence.SchedulePermission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.SchedulePermission
	for _, permission := range m.permissions {
		if permission.ScheduleID == scheduleID {
			out = append(out, permission)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *memoryRepo) DeletePermission(ctx context.Context, scheduleID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := scheduleID + "|" + userID
	if _, ok := m.permissions[key]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.permissions, key)
	return nil
}

// bookings

func (m *memoryRepo) CreateBooking(ctx context.Context, booking persistence.Booking, events []persistence.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createBookingErr != nil {
		return m.createBookingErr
	}
	for _, existing := range m.bookings {
		if existing.Status == persistence.BookingStatusActive &&
			existing.EnvironmentID == booking.EnvironmentID &&
			existing.Date == booking.Date &&
			scheduler.Overlaps(existing.Start, existing.End, booking.Start, booking.End) {
			return persistence.ErrBookingOverlap
		}
	}
	m.bookings[booking.ID] = booking
	m.events = append(m.events, events...)
	return nil
}

func (m *memoryRepo) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	booking, ok := m.bookings[id]
	if !ok {
		return persistence.Booking{}, persistence.ErrNotFound
	}
	return booking, nil
}

func (m *memoryRepo) ListBookings(ctx context.Context, filter persistence.BookingFilter) ([]persistence.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.Booking
	for _, booking := range m.bookings {
		if filter.EnvironmentID != "" && booking.EnvironmentID != filter.EnvironmentID {
			continue
		}
		if filter.ScheduleID != "" && m.environments[booking.EnvironmentID].ScheduleID != filter.ScheduleID {
			continue
		}
		if filter.Date != nil && booking.Date != *filter.Date {
			continue
		}
		if filter.DateFrom != nil && booking.Date.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && booking.Date.After(*filter.DateTo) {
			continue
		}
		if filter.OverlapStart != nil && filter.OverlapEnd != nil &&
			!scheduler.Overlaps(booking.Start, booking.End, *filter.OverlapStart, *filter.OverlapEnd) {
			continue
		}
		if filter.Status != "" && booking.Status != filter.Status {
			continue
		}
		if filter.ExcludeID != "" && booking.ID == filter.ExcludeID {
			continue
		}
		out = append(out, booking)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c < 0
		}
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memoryRepo) CancelBooking(ctx context.Context, cancellation persistence.Cancellation, events []persistence.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	booking, ok := m.bookings[cancellation.BookingID]
	if !ok {
		return persistence.ErrNotFound
	}
	if booking.Status != persistence.BookingStatusActive {
		return persistence.ErrStaleState
	}
	booking.Status = persistence.BookingStatusCancelled
	booking.CancelledBy = &cancellation.CancelledBy
	booking.CancelledAt = &cancellation.CancelledAt
	booking.CancellationReason = &cancellation.Reason
	booking.UpdatedAt = cancellation.CancelledAt
	m.bookings[booking.ID] = booking
	m.events = append(m.events, events...)
	return nil
}

// fixtures

func (m *memoryRepo) seedSchedule(t *testing.T, id string, visibility persistence.Visibility) persistence.Schedule {
	t.Helper()
	schedule := persistence.Schedule{ID: id, Name: "Schedule " + id, Visibility: visibility, Status: persistence.StatusActive}
	if err := m.CreateSchedule(context.Background(), schedule); err != nil {
		t.Fatalf("seed schedule: %v", err)
	}
	return schedule
}

func (m *memoryRepo) seedEnvironment(t *testing.T, id, scheduleID string, hours scheduler.WeeklyHours) persistence.Environment {
	t.Helper()
	env := persistence.Environment{ID: id, ScheduleID: scheduleID, Name: "Room " + id, Hours: hours, Status: persistence.StatusActive}
	if err := m.CreateEnvironment(context.Background(), env); err != nil {
		t.Fatalf("seed environment: %v", err)
	}
	return env
}

func (m *memoryRepo) seedAudience(t *testing.T, id string, parentID *string, members ...string) {
	t.Helper()
	if err := m.CreateAudience(context.Background(), persistence.Audience{ID: id, Name: id, ParentID: parentID, Status: persistence.StatusActive}); err != nil {
		t.Fatalf("seed audience: %v", err)
	}
	for _, user := range members {
		if err := m.AddMember(context.Background(), persistence.AudienceMember{AudienceID: id, UserID: user}); err != nil {
			t.Fatalf("seed member: %v", err)
		}
	}
}

func (m *memoryRepo) seedPermission(t *testing.T, scheduleID, userID string, book, cancelOthers, override bool) {
	t.Helper()
	if err := m.UpsertPermission(context.Background(), persistence.SchedulePermission{
		ScheduleID:           scheduleID,
		UserID:               userID,
		CanBook:              book,
		CanCancelOthers:      cancelOthers,
		CanOverrideConflicts: override,
	}); err != nil {
		t.Fatalf("seed permission: %v", err)
	}
}

func (m *memoryRepo) seedBooking(t *testing.T, booking persistence.Booking) {
	t.Helper()
	if booking.Status == "" {
		booking.Status = persistence.BookingStatusActive
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[booking.ID] = booking
}

func strPtr(v string) *string { return &v }

func todPtr(v string) *scheduler.TimeOfDay {
	t := scheduler.MustParseTimeOfDay(v)
	return &t
}

func officeHours() scheduler.WeeklyHours {
	hours := scheduler.WeeklyHours{
		time.Saturday: {Closed: true},
		time.Sunday:   {Closed: true},
	}
	for day := time.Monday; day <= time.Friday; day++ {
		hours[day] = scheduler.DayHours{Start: scheduler.NewTimeOfDay(8, 0), End: scheduler.NewTimeOfDay(18, 0)}
	}
	return hours
}
