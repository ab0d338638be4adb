// Package sqldb implements storage.Store over any database/sql driver with sqlx.
// The postgres and sqlite packages configure it with their dialect.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/exlog/internal/infra/storage"
	"github.com/vietddude/exlog/internal/metrics"
)

// Dialect holds what differs between SQL backends.
type Dialect struct {
	// Name labels metrics and selects the migration directory.
	Name string

	// TxOptions are used for transactional sessions.
	TxOptions *sql.TxOptions

	// UpsertExceptionQuery, when set, inserts the species and selects its policy in a single
	// statement. Its arguments are the species columns followed by the species id again.
	// When empty the insert and the policy select are sent as two statements.
	UpsertExceptionQuery string
}

// Store is a storage.Store backed by a sqlx connection pool.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	closed  atomic.Bool
}

var _ storage.Store = (*Store)(nil)

// New wraps db.
func New(db *sqlx.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB exposes the pool for migrations and health checks.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns the configured dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Open starts a session. A transactional session begins its transaction here, which is also
// the connectivity check; a pool session pings instead.
func (s *Store) Open(ctx context.Context, transactional bool) (storage.Session, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}

	start := time.Now()
	if transactional {
		tx, err := s.db.BeginTxx(ctx, s.dialect.TxOptions)
		s.observe("begin", start, err)
		if err != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
		return &Session{store: s, tx: tx}, nil
	}

	err := s.db.PingContext(ctx)
	s.observe("ping", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Session{store: s}, nil
}

// Health checks if the database is healthy.
func (s *Store) Health(ctx context.Context) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return s.db.PingContext(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// StartMetricsCollector starts a background goroutine to collect pool metrics.
func (s *Store) StartMetricsCollector(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if s.closed.Load() {
					return
				}
				stats := s.db.Stats()
				// MaxOpenConnections is 0 when unlimited.
				if stats.MaxOpenConnections > 0 {
					usage := float64(stats.OpenConnections) / float64(stats.MaxOpenConnections) * 100
					metrics.DBConnectionPoolUsage.WithLabelValues(s.dialect.Name).Set(usage)
				}
			}
		}
	}()
}

func (s *Store) observe(op string, start time.Time, err error) {
	metrics.StoreRoundTrips.WithLabelValues(s.dialect.Name, op).Inc()
	metrics.StoreLatency.WithLabelValues(s.dialect.Name, op).Observe(time.Since(start).Seconds())
	if err != nil {
		class := storage.Classify(err)
		metrics.StoreErrors.WithLabelValues(s.dialect.Name, op, class.String()).Inc()
		slog.Debug("store round trip failed", "driver", s.dialect.Name, "op", op, "class", class.String(), "error", err)
	}
}
