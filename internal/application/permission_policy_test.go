package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/resource-scheduler/internal/persistence"
)

func TestPermissionPolicy_Checks(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo()
	repo.seedSchedule(t, "open", persistence.VisibilityPublic)
	repo.seedSchedule(t, "private", persistence.VisibilityPrivate)
	closed := repo.seedSchedule(t, "closed", persistence.VisibilityPublic)
	closed.Status = persistence.StatusInactive
	_ = repo.UpdateSchedule(context.Background(), closed)

	repo.seedPermission(t, "open", "booker", true, false, false)
	repo.seedPermission(t, "open", "manager", false, true, false)
	repo.seedPermission(t, "private", "booker", true, false, true)
	repo.seedPermission(t, "closed", "booker", true, true, true)

	policy := NewPermissionPolicy(repo, repo, nil, quietLogger())
	ctx := context.Background()

	type check func(context.Context, Principal, string) (bool, error)
	cases := []struct {
		name      string
		check     check
		principal Principal
		schedule  string
		want      bool
	}{
		{"admin bypasses booking", policy.CanBook, admin, "closed", true},
		{"admin bypasses override", policy.CanOverrideConflicts, admin, "private", true},
		{"booker can book", policy.CanBook, Principal{UserID: "booker"}, "open", true},
		{"inactive schedule refuses bookings", policy.CanBook, Principal{UserID: "booker"}, "closed", false},
		{"public schedule still needs a row", policy.CanBook, Principal{UserID: "stranger"}, "open", false},
		{"manager cannot book", policy.CanBook, Principal{UserID: "manager"}, "open", false},
		{"manager can cancel others", policy.CanCancelOthers, Principal{UserID: "manager"}, "open", true},
		{"booker cannot cancel others", policy.CanCancelOthers, Principal{UserID: "booker"}, "open", false},
		{"override is independent of cancel", policy.CanOverrideConflicts, Principal{UserID: "manager"}, "open", false},
		{"override granted", policy.CanOverrideConflicts, Principal{UserID: "booker"}, "private", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.check(ctx, tc.principal, tc.schedule)
			if err != nil {
				t.Fatalf("check returned error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}

	t.Run("unknown schedule", func(t *testing.T) {
		_, err := policy.CanBook(ctx, Principal{UserID: "booker"}, "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("visibility", func(t *testing.T) {
		private, _ := repo.GetSchedule(ctx, "private")
		public, _ := repo.GetSchedule(ctx, "open")

		if ok, _ := policy.CanView(ctx, Principal{UserID: "stranger"}, public); !ok {
			t.Fatalf("public schedules are visible to everyone")
		}
		if ok, _ := policy.CanView(ctx, Principal{UserID: "stranger"}, private); ok {
			t.Fatalf("private schedule must be hidden from users without a row")
		}
		if ok, _ := policy.CanView(ctx, Principal{UserID: "booker"}, private); !ok {
			t.Fatalf("permission holders can view private schedules")
		}
	})
}

func TestPermissionPolicy_Grants(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo()
	repo.seedSchedule(t, "s1", persistence.VisibilityPrivate)
	first := testNow
	now := first
	policy := NewPermissionPolicy(repo, repo, func() time.Time { return now }, quietLogger())
	ctx := context.Background()

	if _, err := policy.GrantPermission(ctx, Principal{UserID: "u1"}, PermissionInput{ScheduleID: "s1", UserID: "u1", CanBook: true}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	var vErr *ValidationError
	if _, err := policy.GrantPermission(ctx, admin, PermissionInput{ScheduleID: "s1"}); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	if _, err := policy.GrantPermission(ctx, admin, PermissionInput{ScheduleID: "missing", UserID: "u1"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	granted, err := policy.GrantPermission(ctx, admin, PermissionInput{ScheduleID: "s1", UserID: "u1", CanBook: true})
	if err != nil {
		t.Fatalf("GrantPermission returned error: %v", err)
	}
	if !granted.CanBook || granted.CanCancelOthers {
		t.Fatalf("unexpected permission %#v", granted)
	}

	now = first.Add(time.Hour)
	regranted, err := policy.GrantPermission(ctx, admin, PermissionInput{ScheduleID: "s1", UserID: "u1", CanCancelOthers: true})
	if err != nil {
		t.Fatalf("GrantPermission returned error: %v", err)
	}
	if regranted.CanBook || !regranted.CanCancelOthers {
		t.Fatalf("expected permission replaced, got %#v", regranted)
	}
	if !regranted.CreatedAt.Equal(first) {
		t.Fatalf("expected created_at preserved, got %s", regranted.CreatedAt)
	}

	list, err := policy.ListPermissions(ctx, admin, "s1")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one permission, got %v (%v)", list, err)
	}

	if err := policy.RevokePermission(ctx, admin, "s1", "u1"); err != nil {
		t.Fatalf("RevokePermission returned error: %v", err)
	}
	if err := policy.RevokePermission(ctx, admin, "s1", "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second revoke, got %v", err)
	}
}
