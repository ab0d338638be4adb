// Package sqlite provides a SQLite-backed exception store.
package sqlite

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/vietddude/exlog/internal/infra/storage/sqldb"
	"github.com/vietddude/exlog/migrations"
)

// DriverName is the database/sql name registered by modernc.org/sqlite.
const DriverName = "sqlite"

// DefaultBusyTimeout is applied when the DSN does not set one.
const DefaultBusyTimeout = 5 * time.Second

func init() {
	sqlx.BindDriver(DriverName, sqlx.QUESTION)
}

// Dialect configures the shared SQL session for SQLite. SQLite transactions are serializable,
// and it cannot run an INSERT inside a CTE, so the species upsert takes two statements.
var Dialect = sqldb.Dialect{
	Name: "sqlite",
}

// Config holds SQLite store configuration.
type Config struct {
	// DSN is a file path or file: URI, optionally with _pragma parameters.
	DSN      string
	MaxConns int
}

// Store is the SQLite exception store.
type Store struct {
	*sqldb.Store
}

// BuildDSN adds the pragmas the store depends on unless dsn already sets them.
func BuildDSN(dsn string) string {
	base, rawQuery, _ := strings.Cut(dsn, "?")
	query, _ := url.ParseQuery(rawQuery)

	has := func(name string) bool {
		for _, p := range query["_pragma"] {
			if strings.HasPrefix(strings.ToLower(p), name+"(") || strings.HasPrefix(strings.ToLower(p), name+"=") {
				return true
			}
		}
		return false
	}

	if !has("busy_timeout") {
		query.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", DefaultBusyTimeout.Milliseconds()))
	}
	if !has("foreign_keys") {
		query.Add("_pragma", "foreign_keys(1)")
	}
	if !has("journal_mode") && !strings.Contains(base, ":memory:") {
		query.Add("_pragma", "journal_mode(WAL)")
	}

	return base + "?" + query.Encode()
}

// New opens the database file. Connections are opened lazily.
func New(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}

	db, err := sqlx.Open(DriverName, BuildDSN(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One writer at a time; concurrent sessions queue on the pool instead of on SQLITE_BUSY.
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	} else {
		db.SetMaxOpenConns(1)
	}
	db.SetConnMaxIdleTime(30 * time.Minute)

	return &Store{Store: sqldb.New(db, Dialect)}, nil
}

// Migrate applies the bundled schema.
func (s *Store) Migrate(ctx context.Context) error {
	return migrations.Up(ctx, s.DB().DB, "sqlite")
}
