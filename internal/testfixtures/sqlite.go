package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/resource-scheduler/internal/application"
	"github.com/example/resource-scheduler/internal/persistence"
	"github.com/example/resource-scheduler/internal/persistence/sqlite"
	"github.com/example/resource-scheduler/internal/persistence/sqlite/migration"
)

// SQLiteHarness provides repository access backed by a temporary SQLite storage
// instance for integration-style tests.
type SQLiteHarness struct {
	Store *sqlite.Store

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// Repositories exposes the store through the application ports.
func (h *SQLiteHarness) Repositories() application.Repositories {
	return application.Repositories{
		Schedules:    h.Store.Schedules,
		Environments: h.Store.Environments,
		Holidays:     h.Store.Holidays,
		Audiences:    h.Store.Audiences,
		Permissions:  h.Store.Permissions,
		Bookings:     h.Store.Bookings,
	}
}

// Outbox exposes the pending event queue.
func (h *SQLiteHarness) Outbox() persistence.OutboxRepository {
	return h.Store.Outbox
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. Callers may optionally invoke Close, but the helper
// will also register a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	ctx := context.Background()
	config := migration.TempFileTestSQLiteConfig(filepath.Join(tb.TempDir(), "scheduler.db"))

	store, err := sqlite.Open(ctx, config, nil)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Store: store,
		cleanup: func() {
			_ = store.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// SeedSchedule inserts the schedule directly, bypassing the services.
func (h *SQLiteHarness) SeedSchedule(tb testing.TB, fixture ScheduleFixture) persistence.Schedule {
	tb.Helper()
	schedule := fixture.Persistence()
	if err := h.Store.Schedules.CreateSchedule(context.Background(), schedule); err != nil {
		tb.Fatalf("failed to seed schedule %s: %v", schedule.ID, err)
	}
	return schedule
}

// SeedEnvironment inserts the environment directly.
func (h *SQLiteHarness) SeedEnvironment(tb testing.TB, fixture EnvironmentFixture) persistence.Environment {
	tb.Helper()
	env := fixture.Persistence()
	if err := h.Store.Environments.CreateEnvironment(context.Background(), env); err != nil {
		tb.Fatalf("failed to seed environment %s: %v", env.ID, err)
	}
	return env
}

// SeedAudience inserts the audience and its members directly.
func (h *SQLiteHarness) SeedAudience(tb testing.TB, fixture AudienceFixture) persistence.Audience {
	tb.Helper()
	ctx := context.Background()
	audience := fixture.Persistence()
	if err := h.Store.Audiences.CreateAudience(ctx, audience); err != nil {
		tb.Fatalf("failed to seed audience %s: %v", audience.ID, err)
	}
	for _, userID := range fixture.Members {
		member := persistence.AudienceMember{AudienceID: audience.ID, UserID: userID, CreatedAt: fixture.CreatedAt}
		if err := h.Store.Audiences.AddMember(ctx, member); err != nil {
			tb.Fatalf("failed to seed member %s of %s: %v", userID, audience.ID, err)
		}
	}
	return audience
}

// SeedPermission grants booking rights directly.
func (h *SQLiteHarness) SeedPermission(tb testing.TB, permission persistence.SchedulePermission) {
	tb.Helper()
	if permission.CreatedAt.IsZero() {
		permission.CreatedAt = referenceTime
		permission.UpdatedAt = referenceTime
	}
	if err := h.Store.Permissions.UpsertPermission(context.Background(), permission); err != nil {
		tb.Fatalf("failed to seed permission: %v", err)
	}
}

// SeedBooking inserts the booking directly without outbox events.
func (h *SQLiteHarness) SeedBooking(tb testing.TB, fixture BookingFixture) persistence.Booking {
	tb.Helper()
	booking := fixture.Persistence()
	if err := h.Store.Bookings.CreateBooking(context.Background(), booking, nil); err != nil {
		tb.Fatalf("failed to seed booking %s: %v", booking.ID, err)
	}
	return booking
}
