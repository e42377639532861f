package application

import (
	"context"
	"errors"
	"testing"

	"github.com/example/resource-scheduler/internal/persistence"
	"github.com/example/resource-scheduler/internal/scheduler"
)

func TestAvailabilityService_IsOpen(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo()
	repo.seedSchedule(t, "sched-1", persistence.VisibilityPublic)
	repo.seedEnvironment(t, "env-1", "sched-1", officeHours())
	repo.seedEnvironment(t, "env-open", "sched-1", nil)
	if err := repo.AddGlobalHoliday(context.Background(), persistence.GlobalHoliday{Date: scheduler.MustParseDate("2025-12-25")}); err != nil {
		t.Fatalf("seed global holiday: %v", err)
	}
	if err := repo.AddHoliday(context.Background(), persistence.Holiday{ScheduleID: "sched-1", Date: scheduler.MustParseDate("2025-12-26")}); err != nil {
		t.Fatalf("seed holiday: %v", err)
	}

	svc := NewAvailabilityService(repo, repo, quietLogger())

	cases := []struct {
		name   string
		env    string
		date   string
		at     *scheduler.TimeOfDay
		want   bool
		reason scheduler.ClosureReason
	}{
		{"global holiday", "env-1", "2025-12-25", todPtr("10:00"), false, scheduler.ClosureGlobalHoliday},
		{"after hours", "env-1", "2025-12-24", todPtr("19:00"), false, scheduler.ClosureOutsideHours},
		{"within hours", "env-1", "2025-12-24", todPtr("09:00"), true, scheduler.ClosureNone},
		{"schedule holiday", "env-1", "2025-12-26", todPtr("09:00"), false, scheduler.ClosureScheduleHoliday},
		{"weekend", "env-1", "2025-12-27", nil, false, scheduler.ClosureDayClosed},
		{"no template is always open", "env-open", "2025-12-27", todPtr("23:00"), true, scheduler.ClosureNone},
		{"no template still honors holidays", "env-open", "2025-12-25", nil, false, scheduler.ClosureGlobalHoliday},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			date := scheduler.MustParseDate(tc.date)
			open, err := svc.IsOpen(context.Background(), tc.env, date, tc.at)
			if err != nil {
				t.Fatalf("IsOpen returned error: %v", err)
			}
			if open != tc.want {
				t.Fatalf("IsOpen = %v, want %v", open, tc.want)
			}

			availability, err := svc.Evaluate(context.Background(), tc.env, date, tc.at)
			if err != nil {
				t.Fatalf("Evaluate returned error: %v", err)
			}
			if availability.Reason != tc.reason {
				t.Fatalf("reason = %q, want %q", availability.Reason, tc.reason)
			}
		})
	}
}

func TestAvailabilityService_InactiveEnvironment(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo()
	repo.seedSchedule(t, "sched-1", persistence.VisibilityPublic)
	env := repo.seedEnvironment(t, "env-1", "sched-1", nil)
	env.Status = persistence.StatusInactive
	if err := repo.UpdateEnvironment(context.Background(), env); err != nil {
		t.Fatalf("update environment: %v", err)
	}

	svc := NewAvailabilityService(repo, repo, quietLogger())
	open, err := svc.IsOpen(context.Background(), "env-1", scheduler.MustParseDate("2025-03-04"), nil)
	if err != nil {
		t.Fatalf("IsOpen returned error: %v", err)
	}
	if open {
		t.Fatalf("inactive environment must be closed")
	}
}

func TestAvailabilityService_UnknownEnvironment(t *testing.T) {
	t.Parallel()

	svc := NewAvailabilityService(newMemoryRepo(), newMemoryRepo(), quietLogger())
	_, err := svc.IsOpen(context.Background(), "missing", scheduler.MustParseDate("2025-03-04"), nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAvailabilityService_OpenDates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newMemoryRepo()
	repo.seedSchedule(t, "sched-1", persistence.VisibilityPublic)
	repo.seedEnvironment(t, "env-1", "sched-1", officeHours())
	if err := repo.AddGlobalHoliday(ctx, persistence.GlobalHoliday{Date: scheduler.MustParseDate("2025-12-25")}); err != nil {
		t.Fatalf("seed global holiday: %v", err)
	}
	if err := repo.AddHoliday(ctx, persistence.Holiday{ScheduleID: "sched-1", Date: scheduler.MustParseDate("2025-12-26")}); err != nil {
		t.Fatalf("seed holiday: %v", err)
	}
	svc := NewAvailabilityService(repo, repo, quietLogger())

	open, err := svc.OpenDates(ctx, "env-1", scheduler.MustParseDate("2025-12-22"), scheduler.MustParseDate("2025-12-28"))
	if err != nil {
		t.Fatalf("OpenDates returned error: %v", err)
	}
	want := []string{"2025-12-22", "2025-12-23", "2025-12-24"}
	if len(open) != len(want) {
		t.Fatalf("expected %v, got %v", want, open)
	}
	for i, day := range open {
		if day.String() != want[i] {
			t.Fatalf("day %d: expected %s, got %s", i, want[i], day)
		}
	}

	_, err = svc.OpenDates(ctx, "env-1", scheduler.MustParseDate("2025-12-28"), scheduler.MustParseDate("2025-12-22"))
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.FieldErrors["date_to"] == "" {
		t.Fatalf("expected date_to validation error, got %v", err)
	}

	if _, err := svc.OpenDates(ctx, "missing", scheduler.MustParseDate("2025-12-22"), scheduler.MustParseDate("2025-12-22")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
