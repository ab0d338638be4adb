// Package control assembles the exception logger, its store, the failover sinks and the
// health server from configuration.
package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/vietddude/exlog/internal/capture"
	"github.com/vietddude/exlog/internal/core/config"
	"github.com/vietddude/exlog/internal/core/domain"
	"github.com/vietddude/exlog/internal/exlog"
	"github.com/vietddude/exlog/internal/failover"
	"github.com/vietddude/exlog/internal/health"
	"github.com/vietddude/exlog/internal/httpcapture"
	redisclient "github.com/vietddude/exlog/internal/infra/redis"
)

// App is the main application struct that manages the logger lifecycle.
type App struct {
	cfg          *config.AppConfig
	backend      *Backend
	redisClient  *redisclient.Client
	redisSink    *failover.RedisSink
	reporter     *failover.Reporter
	logger       *exlog.Logger
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger
}

// Option customizes NewApp.
type Option func(*appOptions)

type appOptions struct {
	stderr io.Writer
}

// WithFailoverWriter replaces stderr as the primary failover sink.
func WithFailoverWriter(w io.Writer) Option {
	return func(o *appOptions) { o.stderr = w }
}

// NewApp creates an App with all dependencies initialized.
func NewApp(ctx context.Context, cfg *config.AppConfig, opts ...Option) (*App, error) {
	o := appOptions{stderr: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	// 1. Initialize Storage
	backend, err := OpenBackend(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}
	if cfg.Store.Migrate {
		if err := backend.Migrate(ctx); err != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("failed to migrate store: %w", err)
		}
	}
	slog.Info("Using exception store", "driver", cfg.Store.Driver, "transactional", cfg.Store.IsTransactional())

	// 2. Failover sinks
	var reporterOpts []failover.Option
	if cfg.Failover.StderrEnabled() {
		reporterOpts = append(reporterOpts, failover.WithPrimary(failover.NewWriterSink(o.stderr)))
	}

	var redisClient *redisclient.Client
	var redisSink *failover.RedisSink
	if cfg.Failover.Redis.URL != "" {
		redisClient, err = redisclient.NewClient(cfg.Failover.Redis.Config)
		if err != nil {
			slog.Warn("Failed to init Redis, failover list disabled", "error", err)
		} else {
			if err := redisClient.Ping(ctx); err != nil {
				slog.Warn("Redis not reachable, failover list will retry per report", "error", err)
			}
			redisSink = failover.NewRedisSink(redisClient, cfg.Failover.Redis.Key, cfg.Failover.Redis.MaxEntries)
			reporterOpts = append(reporterOpts, failover.WithSecondary(redisSink))
		}
	}
	reporter := failover.NewReporter(cfg.Application.Name, cfg.Application.Environment, reporterOpts...)

	// 3. Logger
	logger := exlog.New(backend, reporter,
		exlog.Config{
			Application:   cfg.ApplicationContext(),
			Transactional: cfg.Store.IsTransactional(),
			RetryWindow:   cfg.Store.RetryWindow,
		},
		exlog.WithCapturer(capture.NewCapturer(capture.NewSequence(), domain.Some(cfg.HostingContext()))),
	)

	// 4. Health
	healthMon := health.NewMonitor(backend, logger.Breaker(), 5*time.Second)
	if redisClient != nil {
		healthMon.AddOptional("failover_redis", health.CheckerFunc(redisClient.Ping))
	}
	healthServer := health.NewServer(healthMon, cfg.HTTP.Port)

	return &App{
		cfg:          cfg,
		backend:      backend,
		redisClient:  redisClient,
		redisSink:    redisSink,
		reporter:     reporter,
		logger:       logger,
		healthMon:    healthMon,
		healthServer: healthServer,
		log:          slog.Default(),
	}, nil
}

// Logger returns the exception logger.
func (a *App) Logger() *exlog.Logger {
	return a.logger
}

// Backend returns the configured store.
func (a *App) Backend() *Backend {
	return a.backend
}

// Monitor returns the health monitor.
func (a *App) Monitor() *health.Monitor {
	return a.healthMon
}

// FailoverList returns the Redis failover sink, or nil when it is not configured.
func (a *App) FailoverList() *failover.RedisSink {
	return a.redisSink
}

// Handler returns the HTTP handler served by Start.
func (a *App) Handler() http.Handler {
	return a.healthServer.Handler()
}

// Mount registers application routes behind the recovery middleware.
func (a *App) Mount(pattern string, h http.Handler) {
	a.healthServer.Router().Mount(pattern, httpcapture.Recoverer(a.logger, a.cfg.HTTP.WriteTimeout)(h))
}

// Start starts the HTTP server and background collectors.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	if a.backend.SQL != nil {
		a.backend.SQL.StartMetricsCollector(ctx, 15*time.Second)
	}
	return nil
}

// Stop drains pending reports and releases every resource.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping exlog...")

	var errs []error
	if err := a.healthServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop http server: %w", err))
	}
	if err := a.logger.Close(ctx); err != nil && !errors.Is(err, exlog.ErrClosed) {
		errs = append(errs, fmt.Errorf("failed to drain reports: %w", err))
	}
	if err := a.reporter.Close(); err != nil {
		a.log.Warn("Failed to close failover sinks", "error", err)
	}
	if err := a.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}
	return errors.Join(errs...)
}
