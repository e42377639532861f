package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/resource-scheduler/internal/persistence"
	"github.com/example/resource-scheduler/internal/persistence/sqlite/migration"
	"github.com/example/resource-scheduler/internal/scheduler"
)

var testNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	config := migration.TempFileTestSQLiteConfig(filepath.Join(t.TempDir(), "scheduler.db"))
	store, err := Open(ctx, config, nil)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return store
}

func seedSchedule(t *testing.T, store *Store, id string) persistence.Schedule {
	t.Helper()
	schedule := persistence.Schedule{
		ID:         id,
		Name:       "Schedule " + id,
		Visibility: persistence.VisibilityPublic,
		Status:     persistence.StatusActive,
		CreatedAt:  testNow,
		UpdatedAt:  testNow,
	}
	if err := store.Schedules.CreateSchedule(context.Background(), schedule); err != nil {
		t.Fatalf("CreateSchedule failed: %v", err)
	}
	return schedule
}

func seedEnvironment(t *testing.T, store *Store, id, scheduleID string) persistence.Environment {
	t.Helper()
	env := persistence.Environment{
		ID:         id,
		ScheduleID: scheduleID,
		Name:       "Room " + id,
		Status:     persistence.StatusActive,
		CreatedAt:  testNow,
		UpdatedAt:  testNow,
	}
	if err := store.Environments.CreateEnvironment(context.Background(), env); err != nil {
		t.Fatalf("CreateEnvironment failed: %v", err)
	}
	return env
}

func seedAudience(t *testing.T, store *Store, id string, parentID *string, members ...string) persistence.Audience {
	t.Helper()
	ctx := context.Background()
	audience := persistence.Audience{
		ID:        id,
		Name:      "Audience " + id,
		ParentID:  parentID,
		Status:    persistence.StatusActive,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	if err := store.Audiences.CreateAudience(ctx, audience); err != nil {
		t.Fatalf("CreateAudience(%s) failed: %v", id, err)
	}
	for _, member := range members {
		if err := store.Audiences.AddMember(ctx, persistence.AudienceMember{AudienceID: id, UserID: member, CreatedAt: testNow}); err != nil {
			t.Fatalf("AddMember(%s, %s) failed: %v", id, member, err)
		}
	}
	return audience
}

func newBooking(id, envID, date, start, end string) persistence.Booking {
	return persistence.Booking{
		ID:            id,
		EnvironmentID: envID,
		Date:          scheduler.MustParseDate(date),
		Start:         scheduler.MustParseTimeOfDay(start),
		End:           scheduler.MustParseTimeOfDay(end),
		Type:          persistence.BookingTypeIndividual,
		Description:   "weekly sync",
		Status:        persistence.BookingStatusActive,
		CreatorID:     "creator",
		UserIDs:       []string{"u1"},
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
}

func strPtr(value string) *string {
	return &value
}
