package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/resource-scheduler/internal/application"
	"github.com/example/resource-scheduler/internal/cache"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Options     application.BookingOptions
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithBookingOptions overrides the deployment booking rules.
func WithBookingOptions(options application.BookingOptions) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Options = options
	}
}

// WithLogger sets the logger handed to every service.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// NewServices builds the full service set over repos. Memberships are cached in
// memory and expire on the factory clock.
func (f *ServiceFactory) NewServices(repos application.Repositories) *application.Services {
	return application.NewServices(application.ServicesConfig{
		Repositories: repos,
		Members:      cache.NewMemoryStore(time.Minute, 256, f.Clock.NowFunc()),
		IDGenerator:  f.IDGenerator.NextFunc(),
		Now:          f.Clock.NowFunc(),
		Options:      f.Options,
		Logger:       f.Logger,
	})
}
