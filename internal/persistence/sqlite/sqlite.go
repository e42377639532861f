// Package sqlite implements the persistence repositories on top of SQLite.
package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/example/resource-scheduler/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store bundles the connection pool with one repository per aggregate.
type Store struct {
	pool   *ConnectionPool
	logger *slog.Logger

	Schedules    *ScheduleRepository
	Environments *EnvironmentRepository
	Holidays     *HolidayRepository
	Audiences    *AudienceRepository
	Permissions  *PermissionRepository
	Bookings     *BookingRepository
	Outbox       *OutboxRepository
}

// Open connects to the database described by config. Call Migrate before use.
func Open(ctx context.Context, config migration.SQLiteConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := NewConnectionPool(ctx, config, logger)
	if err != nil {
		return nil, err
	}
	return NewStore(pool, logger), nil
}

// NewStore wires the repositories around an existing pool.
func NewStore(pool *ConnectionPool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		pool:         pool,
		logger:       logger,
		Schedules:    NewScheduleRepository(pool),
		Environments: NewEnvironmentRepository(pool),
		Holidays:     NewHolidayRepository(pool),
		Audiences:    NewAudienceRepository(pool),
		Permissions:  NewPermissionRepository(pool),
		Bookings:     NewBookingRepository(pool),
		Outbox:       NewOutboxRepository(pool),
	}
}

// Pool exposes the underlying connection pool.
func (s *Store) Pool() *ConnectionPool {
	return s.pool
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	manager := migration.NewManager(s.pool.DB(), migrationFiles, "migrations", s.logger)
	if err := manager.Run(ctx); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}
