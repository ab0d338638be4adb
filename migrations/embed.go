// Package migrations embeds the goose migrations for every SQL store.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS

// goose keeps its dialect and filesystem in package state.
var mu sync.Mutex

// Dialect directories and their goose dialect names.
var dialects = map[string]string{
	"postgres": "postgres",
	"sqlite":   "sqlite3",
}

// Up applies every pending migration for dialect ("postgres" or "sqlite").
func Up(ctx context.Context, db *sql.DB, dialect string) error {
	name, ok := dialects[dialect]
	if !ok {
		return fmt.Errorf("no migrations for dialect %q", dialect)
	}
	mu.Lock()
	defer mu.Unlock()
	goose.SetBaseFS(FS)
	if err := goose.SetDialect(name); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, dialect); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Version returns the current schema version for db.
func Version(ctx context.Context, db *sql.DB, dialect string) (int64, error) {
	name, ok := dialects[dialect]
	if !ok {
		return 0, fmt.Errorf("no migrations for dialect %q", dialect)
	}
	mu.Lock()
	defer mu.Unlock()
	goose.SetBaseFS(FS)
	if err := goose.SetDialect(name); err != nil {
		return 0, fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.GetDBVersionContext(ctx, db)
}
