package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // Use pgx via database/sql
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/vietddude/exlog/internal/infra/storage/sqldb"
	"github.com/vietddude/exlog/migrations"
)

// Driver names accepted by database/sql.
const (
	DriverPgx = "pgx"
	DriverPq  = "postgres"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	Driver   string `yaml:"driver"`
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// upsertExceptionQuery inserts the species and reads its policy in one round trip.
const upsertExceptionQuery = `
WITH ins AS (
    INSERT INTO ex_exception (exception_id, assembly_name, type_name, stack_trace, target_site_id)
    VALUES (?, ?, ?, ?, ?)
    ON CONFLICT (exception_id) DO NOTHING
)
SELECT log_web_context, log_headers FROM ex_exception_policy WHERE exception_id = ?`

// Dialect configures the shared SQL session for PostgreSQL.
var Dialect = sqldb.Dialect{
	Name:                 "postgres",
	TxOptions:            &sql.TxOptions{Isolation: sql.LevelRepeatableRead},
	UpsertExceptionQuery: upsertExceptionQuery,
}

// Store is the PostgreSQL exception store.
type Store struct {
	*sqldb.Store
}

// ValidateURL checks that url is a connection string pgx understands.
func ValidateURL(url string) error {
	if _, err := pgx.ParseConfig(url); err != nil {
		return fmt.Errorf("invalid postgres url: %w", err)
	}
	return nil
}

// New creates the store without connecting; the first session opens the first connection.
func New(cfg Config) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverPgx
	}
	if driver != DriverPgx && driver != DriverPq {
		return nil, fmt.Errorf("unknown postgres driver %q", driver)
	}
	if err := ValidateURL(cfg.URL); err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set pool configuration
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	} else {
		db.SetMaxOpenConns(10)
	}

	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	} else {
		db.SetMaxIdleConns(2)
	}

	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	return &Store{Store: sqldb.New(db, Dialect)}, nil
}

// Connect creates the store and verifies the connection.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	s, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Health(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return s, nil
}

// Migrate applies the bundled schema.
func (s *Store) Migrate(ctx context.Context) error {
	return migrations.Up(ctx, s.DB().DB, "postgres")
}
