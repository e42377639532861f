package scheduler

import (
	"errors"
	"testing"
)

func TestDaysBetween(t *testing.T) {
	t.Parallel()

	days, err := DaysBetween(MustParseDate("2024-02-27"), MustParseDate("2024-03-02"))
	if err != nil {
		t.Fatalf("DaysBetween returned error: %v", err)
	}
	want := []string{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01", "2024-03-02"}
	if len(days) != len(want) {
		t.Fatalf("expected %d days, got %v", len(want), days)
	}
	for i, day := range days {
		if day.String() != want[i] {
			t.Fatalf("day %d: expected %s, got %s", i, want[i], day)
		}
	}

	single, err := DaysBetween(MustParseDate("2025-01-01"), MustParseDate("2025-01-01"))
	if err != nil || len(single) != 1 {
		t.Fatalf("expected a single day, got %v, %v", single, err)
	}
}

func TestDaysBetweenRejectsBadRanges(t *testing.T) {
	t.Parallel()

	if _, err := DaysBetween(MustParseDate("2025-01-02"), MustParseDate("2025-01-01")); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	if _, err := DaysBetween(MustParseDate("2025-01-01"), MustParseDate("2026-01-02")); !errors.Is(err, ErrRangeTooLong) {
		t.Fatalf("expected ErrRangeTooLong, got %v", err)
	}
	if days, err := DaysBetween(MustParseDate("2024-01-01"), MustParseDate("2024-12-31")); err != nil || len(days) != MaxRangeDays {
		t.Fatalf("expected a full leap year to fit, got %d, %v", len(days), err)
	}
}
