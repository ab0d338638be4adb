package storage

import (
	"context"
	"errors"

	"github.com/vietddude/exlog/internal/core/domain"
)

var (
	// ErrClosed is returned when a store is used after Close.
	ErrClosed = errors.New("store closed")

	// ErrSessionDone is returned when a session is used after Commit or Rollback.
	ErrSessionDone = errors.New("session already completed")

	// ErrUnsupportedDriver is returned by Open for an unknown driver name.
	ErrUnsupportedDriver = errors.New("unsupported store driver")
)

// Store opens write sessions against the exception schema.
type Store interface {
	// Open acquires a session. With transactional set every round trip of the session runs
	// inside one snapshot transaction; otherwise each statement auto-commits.
	// A failure to reach the store is reported here, not on the first statement.
	Open(ctx context.Context, transactional bool) (Session, error)

	// Health checks that the store is reachable.
	Health(ctx context.Context) error

	// Close releases every pooled connection.
	Close() error
}

// Session is the unit of work handed to every persistence step of one Write.
// Implementations must be safe for concurrent use.
type Session interface {
	// UpsertTargetSite inserts the target site unless a row with id already exists.
	UpsertTargetSite(ctx context.Context, id domain.Digest, site domain.TargetSite) error

	// UpsertException inserts the species unless it exists and returns its logging policy
	// in the same round trip. A species without a policy row gets domain.DefaultPolicy.
	UpsertException(ctx context.Context, species domain.Species) (domain.Policy, error)

	// UpsertApplication inserts the application context unless it exists.
	UpsertApplication(ctx context.Context, id domain.Digest, app domain.Application) error

	// InsertInstance appends an occurrence row and returns its store-assigned id.
	InsertInstance(ctx context.Context, instance domain.Instance) (int64, error)

	// UpsertWebApplication inserts the web application context unless it exists.
	UpsertWebApplication(ctx context.Context, id domain.Digest, hosting domain.Hosting) error

	// UpsertURL inserts the query-less URL unless it exists.
	UpsertURL(ctx context.Context, id domain.Digest, url domain.URLParts) error

	// UpsertURLQuery inserts the URL plus query string unless it exists.
	UpsertURLQuery(ctx context.Context, id, urlID domain.Digest, query string) error

	// CountCollection returns how many entries are stored for a header collection.
	CountCollection(ctx context.Context, id domain.Digest) (int, error)

	// UpsertCollectionValue inserts a header value unless it exists.
	UpsertCollectionValue(ctx context.Context, id domain.Digest, value string) error

	// UpsertCollectionEntry inserts one name/value pair of a collection unless it exists.
	UpsertCollectionEntry(ctx context.Context, collectionID domain.Digest, name string, valueID domain.Digest) error

	// InsertWebContext writes the request context row of an instance.
	InsertWebContext(ctx context.Context, wc domain.WebContext) error

	// Commit finishes the session. For non-transactional sessions it only releases it.
	Commit() error

	// Rollback abandons the session. Safe to call multiple times and after Commit.
	Rollback() error
}
