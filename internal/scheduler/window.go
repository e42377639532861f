package scheduler

import "errors"

// MaxRangeDays bounds how many dates a single range may expand to.
const MaxRangeDays = 366

var (
	// ErrInvalidRange indicates the range ends before it starts.
	ErrInvalidRange = errors.New("scheduler: range end precedes its start")
	// ErrRangeTooLong indicates the range covers more than MaxRangeDays dates.
	ErrRangeTooLong = errors.New("scheduler: range exceeds the maximum length")
)

// DaysBetween returns every date from from through to, both inclusive.
func DaysBetween(from, to Date) ([]Date, error) {
	if to.Before(from) {
		return nil, ErrInvalidRange
	}
	days := make([]Date, 0, 31)
	for d := from; !d.After(to); d = d.AddDays(1) {
		if len(days) == MaxRangeDays {
			return nil, ErrRangeTooLong
		}
		days = append(days, d)
	}
	return days, nil
}
