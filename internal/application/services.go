package application

import (
	"log/slog"
	"time"

	"github.com/example/resource-scheduler/internal/cache"
	"github.com/example/resource-scheduler/internal/persistence"
)

// Repositories groups the persistence ports the services are built on.
type Repositories struct {
	Schedules    persistence.ScheduleRepository
	Environments persistence.EnvironmentRepository
	Holidays     persistence.HolidayRepository
	Audiences    persistence.AudienceRepository
	Permissions  persistence.PermissionRepository
	Bookings     persistence.BookingRepository
}

// ServicesConfig carries everything NewServices needs.
type ServicesConfig struct {
	Repositories Repositories
	// Members caches audience expansions. Nil disables caching.
	Members     cache.Store
	IDGenerator func() string
	Now         func() time.Time
	Options     BookingOptions
	Logger      *slog.Logger
}

// Services is the wired set of application services.
type Services struct {
	Schedules    *ScheduleService
	Holidays     *HolidayService
	Audiences    *AudienceService
	Permissions  *PermissionPolicy
	Availability *AvailabilityService
	Conflicts    *ConflictService
	Bookings     *BookingService
}

// NewServices constructs every service over the shared repositories.
func NewServices(cfg ServicesConfig) *Services {
	repos := cfg.Repositories
	logger := defaultLogger(cfg.Logger)

	policy := NewPermissionPolicy(repos.Schedules, repos.Permissions, cfg.Now, logger)
	audiences := NewAudienceService(repos.Audiences, cfg.Members, cfg.IDGenerator, cfg.Now, logger)
	availability := NewAvailabilityService(repos.Environments, repos.Holidays, logger)
	conflicts := NewConflictService(repos.Bookings, audiences, logger)

	return &Services{
		Schedules:    NewScheduleService(repos.Schedules, repos.Environments, policy, cfg.IDGenerator, cfg.Now, logger),
		Holidays:     NewHolidayService(repos.Holidays, repos.Schedules, logger),
		Audiences:    audiences,
		Permissions:  policy,
		Availability: availability,
		Conflicts:    conflicts,
		Bookings: NewBookingService(BookingServiceDeps{
			Bookings:     repos.Bookings,
			Environments: repos.Environments,
			Schedules:    repos.Schedules,
			Audiences:    repos.Audiences,
			Availability: availability,
			Conflicts:    conflicts,
			Policy:       policy,
			IDGenerator:  cfg.IDGenerator,
			Now:          cfg.Now,
			Options:      cfg.Options,
			Logger:       logger,
		}),
	}
}
