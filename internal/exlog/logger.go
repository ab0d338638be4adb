// Package exlog persists captured errors to the exception store.
//
// A Write walks the error chain outermost first. For every node it upserts the content-addressed
// rows (target site, species, application, web context) and appends one instance row whose
// parent is the previous node's instance. Identical errors share their species row; every
// occurrence gets its own instance row.
//
// When the store cannot be reached the logger stops trying for a retry window and sends every
// error to the failover reporter instead. Write never returns an error.
package exlog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/exlog/internal/capture"
	"github.com/vietddude/exlog/internal/core/breaker"
	"github.com/vietddude/exlog/internal/core/domain"
	"github.com/vietddude/exlog/internal/failover"
	"github.com/vietddude/exlog/internal/infra/storage"
	"github.com/vietddude/exlog/internal/metrics"
)

// MaxConflictAttempts bounds how often a write is retried after a serialization failure.
const MaxConflictAttempts = 3

const conflictBaseDelay = 5 * time.Millisecond

// Config holds the write settings.
type Config struct {
	Application   domain.Application
	Transactional bool
	RetryWindow   time.Duration
}

// Logger writes captured errors. It is safe for concurrent use.
type Logger struct {
	store         storage.Store
	reporter      *failover.Reporter
	breaker       *breaker.Breaker
	capturer      *capture.Capturer
	app           domain.Application
	appID         domain.Digest
	transactional bool
	logger        *slog.Logger

	wg      sync.WaitGroup
	closeMu sync.RWMutex
	closed  bool
}

// Option configures a Logger.
type Option func(*Logger)

// WithBreaker replaces the circuit breaker, e.g. to share one or control its clock.
func WithBreaker(b *breaker.Breaker) Option {
	return func(l *Logger) { l.breaker = b }
}

// WithCapturer replaces the capturer used by Capture, Wrap and Report.
func WithCapturer(c *capture.Capturer) Option {
	return func(l *Logger) { l.capturer = c }
}

// WithLogger sets the slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Logger) { l.logger = logger }
}

// New creates a logger writing to store and falling back to reporter.
func New(store storage.Store, reporter *failover.Reporter, cfg Config, opts ...Option) *Logger {
	l := &Logger{
		store:         store,
		reporter:      reporter,
		app:           cfg.Application,
		appID:         cfg.Application.ID(),
		transactional: cfg.Transactional,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.breaker == nil {
		l.breaker = breaker.New(cfg.RetryWindow)
	}
	if l.capturer == nil {
		l.capturer = capture.NewCapturer(capture.NewSequence(), domain.None[domain.Hosting]())
	}
	if l.reporter == nil {
		l.reporter = failover.NewReporter(cfg.Application.ApplicationName, cfg.Application.EnvironmentName,
			failover.WithLogger(l.logger))
	}
	return l
}

// Breaker exposes the circuit breaker state.
func (l *Logger) Breaker() *breaker.Breaker {
	return l.breaker
}

// Write persists c and its inner chain. It returns the root identifier and true on success.
// On failure the error is sent to the failover reporter and false is returned.
func (l *Logger) Write(ctx context.Context, c *domain.CapturedException) (domain.LogIdentifier, bool) {
	if c == nil {
		return domain.LogIdentifier{}, false
	}
	start := time.Now()

	if !l.breaker.Allow() {
		l.record("skipped", start)
		l.reporter.Report(ctx, c)
		return domain.LogIdentifier{}, false
	}

	var id domain.LogIdentifier
	var err error
	for attempt := 1; ; attempt++ {
		var opened bool
		id, opened, err = l.attempt(ctx, c)
		if err == nil {
			break
		}
		if !opened {
			if storage.Classify(err) == storage.ClassCanceled {
				l.breaker.Release()
			} else {
				l.trip(err)
			}
			l.record("failed", start)
			l.reporter.ReportSymptom(ctx, l.symptom(err), c)
			return domain.LogIdentifier{}, false
		}

		class := storage.Classify(err)
		if class == storage.ClassConflict && l.transactional && attempt < MaxConflictAttempts && ctx.Err() == nil {
			l.logger.Debug("write conflicted, retrying", "attempt", attempt, "error", err)
			if wait(ctx, conflictDelay(attempt)) {
				continue
			}
		}
		if class == storage.ClassConnectivity {
			l.trip(err)
		}
		l.record("failed", start)
		l.reporter.ReportSymptom(ctx, l.symptom(err), c)
		return domain.LogIdentifier{}, false
	}

	l.record("written", start)
	return id, true
}

// attempt runs one session. opened is false when the session could not be started.
func (l *Logger) attempt(ctx context.Context, c *domain.CapturedException) (id domain.LogIdentifier, opened bool, err error) {
	sess, err := l.store.Open(ctx, l.transactional)
	if err != nil {
		return domain.LogIdentifier{}, false, err
	}
	l.available()

	id, err = l.persist(ctx, sess, c)
	if err == nil {
		err = sess.Commit()
	}
	if err != nil {
		if rbErr := sess.Rollback(); rbErr != nil {
			l.logger.Debug("rollback failed", "error", rbErr)
		}
		return domain.LogIdentifier{}, true, err
	}
	return id, true, nil
}

// conflictDelay doubles from conflictBaseDelay per attempt.
func conflictDelay(attempt int) time.Duration {
	return conflictBaseDelay << (attempt - 1)
}

func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// persist writes the chain iteratively; each inner node gets the previous instance as parent.
func (l *Logger) persist(ctx context.Context, sess storage.Session, c *domain.CapturedException) (domain.LogIdentifier, error) {
	var root domain.LogIdentifier
	parent := domain.None[int64]()
	depth := 0

	for node := c; node != nil; node = node.Inner {
		id, err := l.writeNode(ctx, sess, node, parent)
		if err != nil {
			return domain.LogIdentifier{}, fmt.Errorf("failed to write chain node %d: %w", depth, err)
		}
		if node == c {
			root = id
		}
		parent = domain.Some(id.InstanceID)
		depth++
	}

	metrics.ChainDepth.Observe(float64(depth))
	return root, nil
}

func (l *Logger) trip(err error) {
	wasAvailable := l.breaker.State() == breaker.StateAvailable
	until := l.breaker.Trip()
	metrics.BreakerUnavailable.Set(1)
	if wasAvailable {
		metrics.BreakerTrips.Inc()
		l.logger.Warn("exception store unavailable",
			"until", until.Format(time.RFC3339),
			"retry_window", l.breaker.Window(),
			"error", err,
		)
	}
}

func (l *Logger) available() {
	if l.breaker.State() == breaker.StateAvailable {
		return
	}
	l.breaker.Succeed()
	metrics.BreakerUnavailable.Set(0)
	l.logger.Info("exception store available")
}

func (l *Logger) symptom(err error) *domain.CapturedException {
	return l.capturer.Capture(err, capture.Handled())
}

func (l *Logger) record(result string, start time.Time) {
	metrics.WritesTotal.WithLabelValues(result).Inc()
	metrics.WriteLatency.WithLabelValues(result).Observe(time.Since(start).Seconds())
}
