package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/resource-scheduler/internal/application"
	"github.com/example/resource-scheduler/internal/cache"
	"github.com/example/resource-scheduler/internal/config"
	"github.com/example/resource-scheduler/internal/events"
	"github.com/example/resource-scheduler/internal/logging"
	"github.com/example/resource-scheduler/internal/persistence/sqlite"
	"github.com/example/resource-scheduler/internal/persistence/sqlite/migration"
)

// systemPrincipal is used for the startup readiness check.
var systemPrincipal = application.Principal{UserID: "system", IsAdmin: true}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer scheduler.close()

	if err := scheduler.run(ctx); err != nil {
		logger.Error("scheduler encountered error", "error", err)
		os.Exit(1)
	}
}

type eventPublisher interface {
	events.Publisher
	Close() error
}

// app owns the long-lived resources of the process.
type app struct {
	logger    *slog.Logger
	store     *sqlite.Store
	services  *application.Services
	publisher eventPublisher
	relay     *events.Relay
	closers   []func() error
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{logger: logger}
	defer func() {
		if err != nil {
			a.close()
			a = nil
		}
	}()

	dbConfig := migration.DefaultSQLiteConfig(cfg.SQLitePath)
	dbConfig.BusyTimeout = cfg.SQLiteBusyTimeout
	a.store, err = sqlite.Open(ctx, dbConfig, logger)
	if err != nil {
		return a, fmt.Errorf("open storage: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)

	if err = a.store.Migrate(ctx); err != nil {
		return a, fmt.Errorf("apply migrations: %w", err)
	}

	members, err := a.newMembershipCache(ctx, cfg)
	if err != nil {
		return a, err
	}

	a.services = application.NewServices(application.ServicesConfig{
		Repositories: application.Repositories{
			Schedules:    a.store.Schedules,
			Environments: a.store.Environments,
			Holidays:     a.store.Holidays,
			Audiences:    a.store.Audiences,
			Permissions:  a.store.Permissions,
			Bookings:     a.store.Bookings,
		},
		Members:     members,
		IDGenerator: uuid.NewString,
		Now:         time.Now,
		Options: application.BookingOptions{
			MaxDescriptionLength: cfg.MaxDescriptionLength,
			AllowPastForAdmins:   cfg.AllowPastForAdmins,
			Location:             cfg.Location,
		},
		Logger: logger,
	})

	a.publisher, err = newPublisher(cfg, logger)
	if err != nil {
		return a, err
	}
	a.closers = append(a.closers, a.publisher.Close)

	a.relay = events.NewRelay(a.store.Outbox, a.publisher, events.RelayOptions{
		Interval:  cfg.RelayInterval,
		BatchSize: cfg.RelayBatchSize,
	}, time.Now, logger)
	return a, nil
}

func (a *app) newMembershipCache(ctx context.Context, cfg config.Config) (cache.Store, error) {
	if cfg.RedisAddr == "" {
		a.logger.Info("using in-process membership cache", "ttl", cfg.MembershipCacheTTL)
		return cache.NewMemoryStore(cfg.MembershipCacheTTL, 0, time.Now), nil
	}

	client, err := cache.NewRedisClient(ctx, cache.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	a.logger.Info("using redis membership cache", "addr", cfg.RedisAddr, "ttl", cfg.MembershipCacheTTL)
	return cache.NewRedisStore(client, "scheduler:members:", cfg.MembershipCacheTTL), nil
}

func newPublisher(cfg config.Config, logger *slog.Logger) (eventPublisher, error) {
	if cfg.AMQPURL == "" {
		logger.Info("no broker configured; booking events are logged only")
		return events.NewLogPublisher(logger), nil
	}
	publisher, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPQueue, logger)
	if err != nil {
		return nil, fmt.Errorf("connect broker: %w", err)
	}
	return publisher, nil
}

// run blocks until ctx is cancelled, relaying outbox events to the broker.
func (a *app) run(ctx context.Context) error {
	if err := a.store.Pool().Ping(ctx); err != nil {
		return fmt.Errorf("readiness check: %w", err)
	}
	schedules, err := a.services.Schedules.ListSchedules(ctx, systemPrincipal)
	if err != nil {
		return fmt.Errorf("readiness check: %w", err)
	}
	a.logger.InfoContext(ctx, "scheduler ready", "schedules", len(schedules))

	if err := a.relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("failed to release resource", "error", err)
		}
	}
	a.closers = nil
}
