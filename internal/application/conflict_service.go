package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/resource-scheduler/internal/persistence"
	"github.com/example/resource-scheduler/internal/scheduler"
)

// BookingFinder queries stored bookings.
type BookingFinder interface {
	ListBookings(ctx context.Context, filter persistence.BookingFilter) ([]persistence.Booking, error)
}

// MembershipResolver expands participants into individual users.
type MembershipResolver interface {
	AffectedUsers(ctx context.Context, userIDs, audienceIDs []string, includeChildren bool) ([]string, error)
}

// ConflictService finds bookings that collide with a candidate, either on the
// same environment (hard) or through a shared participant (soft).
type ConflictService struct {
	bookings BookingFinder
	members  MembershipResolver
	logger   *slog.Logger
}

// NewConflictService wires dependencies for conflict detection.
func NewConflictService(bookings BookingFinder, members MembershipResolver, logger *slog.Logger) *ConflictService {
	return &ConflictService{bookings: bookings, members: members, logger: defaultLogger(logger)}
}

// HardConflicts returns the active bookings on environmentID and date whose range
// overlaps [start, end). excludeID skips the booking being edited.
func (s *ConflictService) HardConflicts(ctx context.Context, environmentID string, date scheduler.Date, start, end scheduler.TimeOfDay, excludeID string) ([]persistence.Booking, error) {
	if s == nil {
		return nil, fmt.Errorf("ConflictService is nil")
	}
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	if s.bookings == nil {
		return nil, nil
	}

	existing, err := s.bookings.ListBookings(ctx, persistence.BookingFilter{
		EnvironmentID: environmentID,
		Date:          &date,
		OverlapStart:  &start,
		OverlapEnd:    &end,
		Status:        persistence.BookingStatusActive,
		ExcludeID:     excludeID,
	})
	if err != nil {
		return nil, err
	}

	candidate := scheduler.Slot{ID: excludeID, EnvironmentID: environmentID, Date: date, Start: start, End: end}
	return pickBookings(existing, scheduler.HardConflicts(toSlots(existing, nil), candidate)), nil
}

// SoftConflicts returns the active bookings on any environment that overlap the
// candidate and share at least one affected user with it, along with those users.
// Audiences are expanded including their children on both sides.
func (s *ConflictService) SoftConflicts(ctx context.Context, query ConflictQuery) (result SoftConflicts, err error) {
	if s == nil {
		err = fmt.Errorf("ConflictService is nil")
		return
	}
	if err = validateRange(query.Start, query.End); err != nil {
		return
	}
	if s.bookings == nil || s.members == nil {
		return
	}

	var exposed []string
	exposed, err = s.members.AffectedUsers(ctx, query.UserIDs, query.AudienceIDs, true)
	if err != nil || len(exposed) == 0 {
		return
	}

	var overlapping []persistence.Booking
	overlapping, err = s.bookings.ListBookings(ctx, persistence.BookingFilter{
		Date:         &query.Date,
		OverlapStart: &query.Start,
		OverlapEnd:   &query.End,
		Status:       persistence.BookingStatusActive,
		ExcludeID:    query.ExcludeID,
	})
	if err != nil || len(overlapping) == 0 {
		return
	}

	affected := make(map[string][]string, len(overlapping))
	for _, booking := range overlapping {
		var users []string
		users, err = s.members.AffectedUsers(ctx, booking.UserIDs, booking.AudienceIDs, true)
		if err != nil {
			return
		}
		affected[booking.ID] = users
	}

	candidate := scheduler.Slot{
		ID:            query.ExcludeID,
		EnvironmentID: query.EnvironmentID,
		Date:          query.Date,
		Start:         query.Start,
		End:           query.End,
		AffectedUsers: exposed,
	}
	slots, users := scheduler.SoftConflicts(toSlots(overlapping, affected), candidate)
	result = SoftConflicts{
		Bookings:      pickBookings(overlapping, slots),
		AffectedUsers: users,
	}

	if !result.Empty() {
		serviceLogger(ctx, s.logger, "ConflictService", "SoftConflicts",
			"date", query.Date.String(),
		).DebugContext(ctx, "participants double booked",
			"booking_count", len(result.Bookings),
			"affected_users", result.AffectedUsers,
		)
	}
	return
}

// CheckConflicts previews both kinds of conflicts without changing anything.
func (s *ConflictService) CheckConflicts(ctx context.Context, query ConflictQuery) (ConflictReport, error) {
	hard, err := s.HardConflicts(ctx, query.EnvironmentID, query.Date, query.Start, query.End, query.ExcludeID)
	if err != nil {
		return ConflictReport{}, err
	}
	soft, err := s.SoftConflicts(ctx, query)
	if err != nil {
		return ConflictReport{}, err
	}
	return ConflictReport{Hard: hard, Soft: soft}, nil
}

func validateRange(start, end scheduler.TimeOfDay) error {
	vErr := &ValidationError{}
	if !start.Valid() {
		vErr.add("start", "start is out of range")
	}
	if !end.Valid() {
		vErr.add("end", "end is out of range")
	}
	if !vErr.HasErrors() && start >= end {
		vErr.add("end", "end must be after start")
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

func toSlots(bookings []persistence.Booking, affected map[string][]string) []scheduler.Slot {
	slots := make([]scheduler.Slot, 0, len(bookings))
	for _, booking := range bookings {
		slots = append(slots, scheduler.Slot{
			ID:            booking.ID,
			EnvironmentID: booking.EnvironmentID,
			Date:          booking.Date,
			Start:         booking.Start,
			End:           booking.End,
			Cancelled:     booking.Status == persistence.BookingStatusCancelled,
			AffectedUsers: affected[booking.ID],
		})
	}
	return slots
}

// pickBookings returns the bookings named by slots, keeping the slot order.
func pickBookings(bookings []persistence.Booking, slots []scheduler.Slot) []persistence.Booking {
	if len(slots) == 0 {
		return nil
	}
	byID := make(map[string]persistence.Booking, len(bookings))
	for _, booking := range bookings {
		byID[booking.ID] = booking
	}
	out := make([]persistence.Booking, 0, len(slots))
	for _, slot := range slots {
		out = append(out, byID[slot.ID])
	}
	return out
}
