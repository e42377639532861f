package scheduler

import (
	"testing"
	"time"
)

func weekdayHours() WeeklyHours {
	hours := WeeklyHours{
		time.Saturday: {Closed: true},
		time.Sunday:   {Closed: true},
	}
	for day := time.Monday; day <= time.Friday; day++ {
		hours[day] = DayHours{Start: NewTimeOfDay(8, 0), End: NewTimeOfDay(18, 0)}
	}
	return hours
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	at := func(value string) *TimeOfDay {
		v := MustParseTimeOfDay(value)
		return &v
	}
	wednesday := MustParseDate("2025-12-24")
	saturday := MustParseDate("2025-12-27")

	cases := []struct {
		name string
		in   AvailabilityInput
		want Availability
	}{
		{
			name: "global holiday closes everything",
			in:   AvailabilityInput{Date: MustParseDate("2025-12-25"), At: at("10:00"), GlobalHoliday: true, EnvironmentActive: true, Hours: weekdayHours()},
			want: Availability{Reason: ClosureGlobalHoliday},
		},
		{
			name: "schedule holiday closes the environment",
			in:   AvailabilityInput{Date: wednesday, ScheduleHoliday: true, EnvironmentActive: true},
			want: Availability{Reason: ClosureScheduleHoliday},
		},
		{
			name: "inactive environment is closed",
			in:   AvailabilityInput{Date: wednesday, EnvironmentActive: false},
			want: Availability{Reason: ClosureEnvironmentInactive},
		},
		{
			name: "missing template means always open",
			in:   AvailabilityInput{Date: saturday, At: at("23:30"), EnvironmentActive: true},
			want: Availability{Open: true},
		},
		{
			name: "closed weekday",
			in:   AvailabilityInput{Date: saturday, At: at("10:00"), EnvironmentActive: true, Hours: weekdayHours()},
			want: Availability{Reason: ClosureDayClosed},
		},
		{
			name: "after closing time",
			in:   AvailabilityInput{Date: wednesday, At: at("19:00"), EnvironmentActive: true, Hours: weekdayHours()},
			want: Availability{Reason: ClosureOutsideHours},
		},
		{
			name: "closing boundary is outside",
			in:   AvailabilityInput{Date: wednesday, At: at("18:00"), EnvironmentActive: true, Hours: weekdayHours()},
			want: Availability{Reason: ClosureOutsideHours},
		},
		{
			name: "opening boundary is inside",
			in:   AvailabilityInput{Date: wednesday, At: at("08:00"), EnvironmentActive: true, Hours: weekdayHours()},
			want: Availability{Open: true},
		},
		{
			name: "within hours",
			in:   AvailabilityInput{Date: wednesday, At: at("09:00"), EnvironmentActive: true, Hours: weekdayHours()},
			want: Availability{Open: true},
		},
		{
			name: "open day without a time",
			in:   AvailabilityInput{Date: wednesday, EnvironmentActive: true, Hours: weekdayHours()},
			want: Availability{Open: true},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(tc.in)
			if got != tc.want {
				t.Fatalf("Evaluate() = %#v, want %#v", got, tc.want)
			}
			if again := Evaluate(tc.in); again != got {
				t.Fatalf("Evaluate is not deterministic: %#v vs %#v", got, again)
			}
		})
	}
}

func TestWeeklyHoursValidate(t *testing.T) {
	t.Parallel()

	if err := weekdayHours().Validate(); err != nil {
		t.Fatalf("expected valid template, got %v", err)
	}

	bad := WeeklyHours{time.Monday: {Start: NewTimeOfDay(18, 0), End: NewTimeOfDay(8, 0)}}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for inverted hours")
	}
}

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()

	valid := map[string]string{
		"09:00":    "09:00:00",
		"23:59:59": "23:59:59",
		"24:00":    "24:00:00",
	}
	for in, want := range valid {
		got, err := ParseTimeOfDay(in)
		if err != nil {
			t.Fatalf("ParseTimeOfDay(%q) returned error: %v", in, err)
		}
		if got.String() != want {
			t.Fatalf("ParseTimeOfDay(%q) = %s, want %s", in, got, want)
		}
	}

	for _, in := range []string{"", "9:00", "24:01", "12:60", "ab:cd", "12:00:00:00"} {
		if _, err := ParseTimeOfDay(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestDate(t *testing.T) {
	t.Parallel()

	d := MustParseDate("2025-12-31")
	if got := d.AddDays(1).String(); got != "2026-01-01" {
		t.Fatalf("AddDays crossed year incorrectly: %s", got)
	}
	if d.Weekday() != time.Wednesday {
		t.Fatalf("expected Wednesday, got %s", d.Weekday())
	}
	if !d.Before(d.AddDays(1)) || d.After(d.AddDays(1)) {
		t.Fatalf("ordering helpers disagree")
	}
	if _, err := ParseDate("2025-02-30"); err == nil {
		t.Fatalf("expected invalid date error")
	}
}
