package control

import (
	"context"
	"fmt"

	"github.com/vietddude/exlog/internal/core/config"
	"github.com/vietddude/exlog/internal/infra/storage"
	"github.com/vietddude/exlog/internal/infra/storage/memory"
	"github.com/vietddude/exlog/internal/infra/storage/postgres"
	"github.com/vietddude/exlog/internal/infra/storage/sqldb"
	"github.com/vietddude/exlog/internal/infra/storage/sqlite"
	"github.com/vietddude/exlog/migrations"
)

// Backend is the configured exception store plus the handles the CLI needs around it.
type Backend struct {
	storage.Store
	// SQL is nil for the memory driver.
	SQL     *sqldb.Store
	Dialect string
}

// OpenBackend creates the store for cfg.Driver. No connection is made yet.
func OpenBackend(cfg config.StoreConfig) (*Backend, error) {
	switch cfg.Driver {
	case config.DriverPgx, config.DriverPostgres:
		s, err := postgres.New(postgres.Config{
			Driver:   cfg.Driver,
			URL:      cfg.URL,
			MaxConns: cfg.MaxConns,
			MinConns: cfg.MinConns,
		})
		if err != nil {
			return nil, err
		}
		return &Backend{Store: s, SQL: s.Store, Dialect: postgres.Dialect.Name}, nil

	case config.DriverSQLite:
		s, err := sqlite.New(sqlite.Config{DSN: cfg.URL, MaxConns: cfg.MaxConns})
		if err != nil {
			return nil, err
		}
		return &Backend{Store: s, SQL: s.Store, Dialect: sqlite.Dialect.Name}, nil

	case config.DriverMemory:
		return &Backend{Store: memory.NewMemoryStorage(), Dialect: config.DriverMemory}, nil
	}
	return nil, fmt.Errorf("%w: %q", storage.ErrUnsupportedDriver, cfg.Driver)
}

// Migrate applies the bundled schema. It is a no-op for the memory driver.
func (b *Backend) Migrate(ctx context.Context) error {
	if b.SQL == nil {
		return nil
	}
	return migrations.Up(ctx, b.SQL.DB().DB, b.Dialect)
}

// SchemaVersion returns the applied migration version, or 0 for the memory driver.
func (b *Backend) SchemaVersion(ctx context.Context) (int64, error) {
	if b.SQL == nil {
		return 0, nil
	}
	return migrations.Version(ctx, b.SQL.DB().DB, b.Dialect)
}
