package application

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/example/resource-scheduler/internal/cache"
	"github.com/example/resource-scheduler/internal/persistence"
)

var admin = Principal{UserID: "admin", IsAdmin: true}

func newAudienceService(repo *memoryRepo, store cache.Store) *AudienceService {
	return NewAudienceService(repo, store, sequenceIDs("aud"), func() time.Time { return testNow }, quietLogger())
}

func TestAudienceService_CreateAudience(t *testing.T) {
	t.Parallel()

	t.Run("requires administrator privileges", func(t *testing.T) {
		svc := newAudienceService(newMemoryRepo(), nil)
		_, err := svc.CreateAudience(context.Background(), Principal{UserID: "u1"}, AudienceInput{Name: "Staff"})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("validates name and color", func(t *testing.T) {
		svc := newAudienceService(newMemoryRepo(), nil)
		_, err := svc.CreateAudience(context.Background(), admin, AudienceInput{Name: "", Color: "blue"})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"name", "color"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s error, got %v", field, vErr.FieldErrors)
			}
		}
	})

	t.Run("creates a child under a top level parent", func(t *testing.T) {
		repo := newMemoryRepo()
		repo.seedAudience(t, "parent", nil)
		svc := newAudienceService(repo, nil)

		child, err := svc.CreateAudience(context.Background(), admin, AudienceInput{Name: " Year 1 ", Color: "#336699", ParentID: strPtr("parent")})
		if err != nil {
			t.Fatalf("CreateAudience returned error: %v", err)
		}
		if child.Name != "Year 1" || child.ParentID == nil || *child.ParentID != "parent" {
			t.Fatalf("unexpected audience %#v", child)
		}
		if child.Status != persistence.StatusActive || !child.CreatedAt.Equal(testNow) {
			t.Fatalf("unexpected defaults %#v", child)
		}
	})

	t.Run("rejects a third level", func(t *testing.T) {
		repo := newMemoryRepo()
		repo.seedAudience(t, "parent", nil)
		repo.seedAudience(t, "child", strPtr("parent"))
		svc := newAudienceService(repo, nil)

		_, err := svc.CreateAudience(context.Background(), admin, AudienceInput{Name: "Grandchild", ParentID: strPtr("child")})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["parent_id"] == "" {
			t.Fatalf("expected parent_id validation error, got %v", err)
		}
	})

	t.Run("rejects missing and inactive parents", func(t *testing.T) {
		repo := newMemoryRepo()
		repo.seedAudience(t, "old", nil)
		old, _ := repo.GetAudience(context.Background(), "old")
		old.Status = persistence.StatusInactive
		_ = repo.UpdateAudience(context.Background(), old)
		svc := newAudienceService(repo, nil)

		for _, parent := range []string{"missing", "old"} {
			_, err := svc.CreateAudience(context.Background(), admin, AudienceInput{Name: "Team", ParentID: strPtr(parent)})
			var vErr *ValidationError
			if !errors.As(err, &vErr) || vErr.FieldErrors["parent_id"] == "" {
				t.Fatalf("parent %q: expected parent_id validation error, got %v", parent, err)
			}
		}
	})
}

func TestAudienceService_UpdateAudience(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo()
	repo.seedAudience(t, "p1", nil)
	repo.seedAudience(t, "p2", nil)
	repo.seedAudience(t, "c1", strPtr("p1"))
	svc := newAudienceService(repo, nil)

	t.Run("audience with children cannot be re-parented", func(t *testing.T) {
		_, err := svc.UpdateAudience(context.Background(), admin, "p1", AudienceInput{Name: "p1", ParentID: strPtr("p2")})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["parent_id"] == "" {
			t.Fatalf("expected parent_id validation error, got %v", err)
		}
	})

	t.Run("audience cannot parent itself", func(t *testing.T) {
		_, err := svc.UpdateAudience(context.Background(), admin, "p2", AudienceInput{Name: "p2", ParentID: strPtr("p2")})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("child moves to another parent", func(t *testing.T) {
		updated, err := svc.UpdateAudience(context.Background(), admin, "c1", AudienceInput{Name: "c1", ParentID: strPtr("p2")})
		if err != nil {
			t.Fatalf("UpdateAudience returned error: %v", err)
		}
		if *updated.ParentID != "p2" {
			t.Fatalf("expected parent p2, got %v", *updated.ParentID)
		}
	})

	t.Run("unknown audience", func(t *testing.T) {
		_, err := svc.UpdateAudience(context.Background(), admin, "missing", AudienceInput{Name: "x"})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestAudienceService_DeleteAndPurge(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo()
	repo.seedAudience(t, "parent", nil)
	repo.seedAudience(t, "child", strPtr("parent"), "u1")
	repo.seedAudience(t, "booked", nil)
	repo.seedAudience(t, "spare", nil, "u2")
	repo.seedBooking(t, persistence.Booking{ID: "b1", AudienceIDs: []string{"booked"}})
	svc := newAudienceService(repo, nil)

	if err := svc.DeleteAudience(context.Background(), admin, "child"); err != nil {
		t.Fatalf("DeleteAudience returned error: %v", err)
	}
	child, err := repo.GetAudience(context.Background(), "child")
	if err != nil {
		t.Fatalf("soft deleted audience must remain: %v", err)
	}
	if child.Status != persistence.StatusInactive {
		t.Fatalf("expected inactive status, got %s", child.Status)
	}

	if err := svc.PurgeAudience(context.Background(), admin, "parent"); !errors.Is(err, ErrReferenced) {
		t.Fatalf("expected ErrReferenced for audience with children, got %v", err)
	}
	if err := svc.PurgeAudience(context.Background(), admin, "booked"); !errors.Is(err, ErrReferenced) {
		t.Fatalf("expected ErrReferenced for booked audience, got %v", err)
	}
	if err := svc.PurgeAudience(context.Background(), Principal{UserID: "u1"}, "spare"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := svc.PurgeAudience(context.Background(), admin, "spare"); err != nil {
		t.Fatalf("PurgeAudience returned error: %v", err)
	}
	if _, err := repo.GetAudience(context.Background(), "spare"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected purged audience to be gone, got %v", err)
	}
}

func TestAudienceService_ExpandMembers(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo()
	repo.seedAudience(t, "parent", nil, "lead")
	repo.seedAudience(t, "child-a", strPtr("parent"), "u1", "u2")
	repo.seedAudience(t, "child-b", strPtr("parent"), "u2", "u3")
	repo.seedAudience(t, "empty", nil)
	svc := newAudienceService(repo, nil)

	cases := []struct {
		name            string
		ids             []string
		includeChildren bool
		want            []string
	}{
		{"parent alone", []string{"parent"}, false, []string{"lead"}},
		{"parent with children", []string{"parent"}, true, []string{"lead", "u1", "u2", "u3"}},
		{"child never includes parent", []string{"child-a"}, true, []string{"u1", "u2"}},
		{"overlapping children are de-duplicated", []string{"child-a", "child-b"}, false, []string{"u1", "u2", "u3"}},
		{"empty audience", []string{"empty"}, true, nil},
		{"no audiences", nil, true, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.ExpandMembers(context.Background(), tc.ids, tc.includeChildren)
			if err != nil {
				t.Fatalf("ExpandMembers returned error: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ExpandMembers(%v, %v) = %v, want %v", tc.ids, tc.includeChildren, got, tc.want)
			}
		})
	}

	affected, err := svc.AffectedUsers(context.Background(), []string{"z9", "u1"}, []string{"child-b"}, false)
	if err != nil {
		t.Fatalf("AffectedUsers returned error: %v", err)
	}
	if !reflect.DeepEqual(affected, []string{"u1", "u2", "u3", "z9"}) {
		t.Fatalf("unexpected affected users %v", affected)
	}
}

func TestAudienceService_MembershipCache(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo()
	repo.seedAudience(t, "team", nil, "u1")
	store := cache.NewMemoryStore(time.Minute, 16, func() time.Time { return testNow })
	svc := newAudienceService(repo, store)

	for i := 0; i < 3; i++ {
		if _, err := svc.ExpandMembers(context.Background(), []string{"team"}, true); err != nil {
			t.Fatalf("ExpandMembers returned error: %v", err)
		}
	}
	if repo.listMembersCalls != 1 {
		t.Fatalf("expected one repository call, got %d", repo.listMembersCalls)
	}

	if err := svc.AddMember(context.Background(), admin, "team", "u2"); err != nil {
		t.Fatalf("AddMember returned error: %v", err)
	}
	got, err := svc.ExpandMembers(context.Background(), []string{"team"}, true)
	if err != nil {
		t.Fatalf("ExpandMembers returned error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"u1", "u2"}) {
		t.Fatalf("expected cache invalidated after membership change, got %v", got)
	}

	if err := svc.AddMember(context.Background(), admin, "team", "u2"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for duplicate member, got %v", err)
	}
}

// racingMembersRepo runs afterList once the members have been read, simulating a
// membership change landing between the read and the cache write.
type racingMembersRepo struct {
	*memoryRepo
	afterList func()
}

func (r *racingMembersRepo) ListMembers(ctx context.Context, audienceIDs []string, includeChildren bool) ([]string, error) {
	users, err := r.memoryRepo.ListMembers(ctx, audienceIDs, includeChildren)
	if r.afterList != nil {
		hook := r.afterList
		r.afterList = nil
		hook()
	}
	return users, err
}

func TestAudienceService_MembershipCacheSkipsStaleRead(t *testing.T) {
	t.Parallel()

	repo := &racingMembersRepo{memoryRepo: newMemoryRepo()}
	repo.seedAudience(t, "team", nil, "u1")
	store := cache.NewMemoryStore(time.Minute, 16, func() time.Time { return testNow })
	svc := NewAudienceService(repo, store, sequenceIDs("aud"), func() time.Time { return testNow }, quietLogger())

	repo.afterList = func() {
		if err := svc.AddMember(context.Background(), admin, "team", "u2"); err != nil {
			t.Errorf("AddMember returned error: %v", err)
		}
	}
	stale, err := svc.ExpandMembers(context.Background(), []string{"team"}, true)
	if err != nil {
		t.Fatalf("ExpandMembers returned error: %v", err)
	}
	if !reflect.DeepEqual(stale, []string{"u1"}) {
		t.Fatalf("expected the racing read to return what it saw, got %v", stale)
	}

	got, err := svc.ExpandMembers(context.Background(), []string{"team"}, true)
	if err != nil {
		t.Fatalf("ExpandMembers returned error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"u1", "u2"}) {
		t.Fatalf("expected the stale read to stay out of the cache, got %v", got)
	}
	if repo.listMembersCalls != 2 {
		t.Fatalf("expected two repository reads, got %d", repo.listMembersCalls)
	}
}
