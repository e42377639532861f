package scheduler

import (
	"fmt"
	"time"
)

// DayHours is the working-hours entry for one weekday.
type DayHours struct {
	Closed bool
	Start  TimeOfDay
	End    TimeOfDay
}

// Contains reports whether t falls inside the half-open interval [Start, End).
func (h DayHours) Contains(t TimeOfDay) bool {
	if h.Closed {
		return false
	}
	return h.Start <= t && t < h.End
}

// WeeklyHours is a working-hours template keyed by weekday. A nil or empty
// template means the resource is open at all hours.
type WeeklyHours map[time.Weekday]DayHours

// Defined reports whether a template has been configured.
func (w WeeklyHours) Defined() bool {
	return len(w) > 0
}

// Validate checks that every open day has a well formed interval.
func (w WeeklyHours) Validate() error {
	for day, hours := range w {
		if day < time.Sunday || day > time.Saturday {
			return fmt.Errorf("working hours: unknown weekday %d", day)
		}
		if hours.Closed {
			continue
		}
		if !hours.Start.Valid() || !hours.End.Valid() {
			return fmt.Errorf("working hours: %s has an out of range time", day)
		}
		if hours.Start >= hours.End {
			return fmt.Errorf("working hours: %s must start before it ends", day)
		}
	}
	return nil
}

// Clone returns a deep copy of the template.
func (w WeeklyHours) Clone() WeeklyHours {
	if w == nil {
		return nil
	}
	out := make(WeeklyHours, len(w))
	for day, hours := range w {
		out[day] = hours
	}
	return out
}

// ClosureReason explains why a resource is not open.
type ClosureReason string

const (
	ClosureNone                ClosureReason = ""
	ClosureGlobalHoliday       ClosureReason = "global_holiday"
	ClosureScheduleHoliday     ClosureReason = "schedule_holiday"
	ClosureEnvironmentInactive ClosureReason = "environment_inactive"
	ClosureDayClosed           ClosureReason = "day_closed"
	ClosureOutsideHours        ClosureReason = "outside_hours"
)

// AvailabilityInput is the stored configuration relevant to one availability decision.
type AvailabilityInput struct {
	Date              Date
	At                *TimeOfDay
	GlobalHoliday     bool
	ScheduleHoliday   bool
	EnvironmentActive bool
	Hours             WeeklyHours
}

// Availability is the outcome of Evaluate.
type Availability struct {
	Open   bool
	Reason ClosureReason
}

// Evaluate applies the availability rules in order, stopping at the first closure.
func Evaluate(in AvailabilityInput) Availability {
	switch {
	case in.GlobalHoliday:
		return Availability{Reason: ClosureGlobalHoliday}
	case in.ScheduleHoliday:
		return Availability{Reason: ClosureScheduleHoliday}
	case !in.EnvironmentActive:
		return Availability{Reason: ClosureEnvironmentInactive}
	case !in.Hours.Defined():
		return Availability{Open: true}
	}

	hours, ok := in.Hours[in.Date.Weekday()]
	if !ok || hours.Closed {
		return Availability{Reason: ClosureDayClosed}
	}
	if in.At != nil && !hours.Contains(*in.At) {
		return Availability{Reason: ClosureOutsideHours}
	}
	return Availability{Open: true}
}

// IsOpen is Evaluate reduced to a boolean.
func IsOpen(in AvailabilityInput) bool {
	return Evaluate(in).Open
}
