package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/exlog/internal/core/domain"
	"github.com/vietddude/exlog/internal/infra/storage"
)

// Session runs the write statements of one exception either inside a transaction or straight
// against the pool.
type Session struct {
	store *Store

	// tx is nil for pool sessions. A transaction owns a single connection, so its round trips
	// are serialized by mu; pool sessions run them in parallel.
	tx   *sqlx.Tx
	mu   sync.Mutex
	done atomic.Bool
}

var _ storage.Session = (*Session)(nil)

func (s *Session) conn() sqlx.ExtContext {
	if s.tx != nil {
		return s.tx
	}
	return s.store.db
}

func (s *Session) lock() func() {
	if s.tx == nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Session) exec(ctx context.Context, op, query string, args ...any) error {
	if s.done.Load() {
		return storage.ErrSessionDone
	}
	unlock := s.lock()
	defer unlock()
	return s.execLocked(ctx, op, query, args...)
}

func (s *Session) execLocked(ctx context.Context, op, query string, args ...any) error {
	start := time.Now()
	_, err := s.conn().ExecContext(ctx, s.store.db.Rebind(query), args...)
	s.store.observe(op, start, err)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return nil
}

func (s *Session) queryRowLocked(ctx context.Context, op, query string, args []any, dest ...any) error {
	start := time.Now()
	err := s.conn().QueryRowxContext(ctx, s.store.db.Rebind(query), args...).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		s.store.observe(op, start, nil)
		return err
	}
	s.store.observe(op, start, err)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return nil
}

// UpsertTargetSite inserts the target site unless it exists.
func (s *Session) UpsertTargetSite(ctx context.Context, id domain.Digest, site domain.TargetSite) error {
	return s.exec(ctx, "upsert_target_site", upsertTargetSiteQuery,
		id.Bytes(), site.AssemblyName, site.TypeName, site.MethodName,
		site.ILOffset, site.FileName, site.FileLine, site.FileColumn,
	)
}

// UpsertException inserts the species unless it exists and returns its policy.
func (s *Session) UpsertException(ctx context.Context, sp domain.Species) (domain.Policy, error) {
	if s.done.Load() {
		return domain.Policy{}, storage.ErrSessionDone
	}

	args := []any{
		sp.ID.Bytes(), sp.AssemblyName, sp.TypeName, sp.StackTrace, nullDigest(sp.TargetSiteID),
	}

	unlock := s.lock()
	defer unlock()

	var p domain.Policy
	var err error
	if q := s.store.dialect.UpsertExceptionQuery; q != "" {
		err = s.queryRowLocked(ctx, "upsert_exception", q, append(args, sp.ID.Bytes()),
			&p.LogWebContext, &p.LogHeaders)
	} else {
		if err := s.execLocked(ctx, "upsert_exception", insertExceptionQuery, args...); err != nil {
			return domain.Policy{}, err
		}
		err = s.queryRowLocked(ctx, "select_policy", selectPolicyQuery, []any{sp.ID.Bytes()},
			&p.LogWebContext, &p.LogHeaders)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultPolicy, nil
	}
	if err != nil {
		return domain.Policy{}, err
	}
	return p, nil
}

// UpsertApplication inserts the application context unless it exists.
func (s *Session) UpsertApplication(ctx context.Context, id domain.Digest, app domain.Application) error {
	return s.exec(ctx, "upsert_application", upsertApplicationQuery,
		id.Bytes(), app.MachineName, app.ApplicationName, app.EnvironmentName, app.ProcessPath,
	)
}

// InsertInstance appends the occurrence row and returns its id.
func (s *Session) InsertInstance(ctx context.Context, in domain.Instance) (int64, error) {
	if s.done.Load() {
		return 0, storage.ErrSessionDone
	}
	unlock := s.lock()
	defer unlock()

	var correlation any
	if id, ok := in.CorrelationID.Get(); ok {
		correlation = id.String()
	}

	var id int64
	err := s.queryRowLocked(ctx, "insert_instance", insertInstanceQuery, []any{
		in.ExceptionID.Bytes(), in.ApplicationID.Bytes(), in.LoggedAt.UTC(), in.SequenceNumber,
		in.IsHandled, in.ApplicationIdentity, nullInt64(in.ParentID), correlation,
		in.GoroutineID, in.Message,
	}, &id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to insert_instance: %w", err)
	}
	return id, err
}

// UpsertWebApplication inserts the web application context unless it exists.
func (s *Session) UpsertWebApplication(ctx context.Context, id domain.Digest, h domain.Hosting) error {
	return s.exec(ctx, "upsert_web_application", upsertWebApplicationQuery,
		id.Bytes(), h.MachineName, h.ApplicationID, h.PhysicalPath, h.VirtualPath, h.SiteName,
	)
}

// UpsertURL inserts the query-less URL unless it exists.
func (s *Session) UpsertURL(ctx context.Context, id domain.Digest, u domain.URLParts) error {
	return s.exec(ctx, "upsert_url", upsertURLQuery, id.Bytes(), u.Scheme, u.Host, u.Port, u.Path)
}

// UpsertURLQuery inserts the URL with query unless it exists.
func (s *Session) UpsertURLQuery(ctx context.Context, id, urlID domain.Digest, query string) error {
	return s.exec(ctx, "upsert_url_query", upsertURLQueryQuery, id.Bytes(), urlID.Bytes(), query)
}

// CountCollection returns the number of stored entries of a header collection.
func (s *Session) CountCollection(ctx context.Context, id domain.Digest) (int, error) {
	if s.done.Load() {
		return 0, storage.ErrSessionDone
	}
	unlock := s.lock()
	defer unlock()

	var n int
	if err := s.queryRowLocked(ctx, "count_collection", countCollectionQuery, []any{id.Bytes()}, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// UpsertCollectionValue inserts a header value unless it exists.
func (s *Session) UpsertCollectionValue(ctx context.Context, id domain.Digest, value string) error {
	return s.exec(ctx, "upsert_collection_value", upsertCollectionValueQuery, id.Bytes(), value)
}

// UpsertCollectionEntry inserts a collection entry unless it exists.
func (s *Session) UpsertCollectionEntry(
	ctx context.Context,
	collectionID domain.Digest,
	name string,
	valueID domain.Digest,
) error {
	return s.exec(ctx, "upsert_collection_entry", upsertCollectionEntryQuery,
		collectionID.Bytes(), name, valueID.Bytes(),
	)
}

// InsertWebContext writes the request context row.
func (s *Session) InsertWebContext(ctx context.Context, wc domain.WebContext) error {
	var user any
	if u, ok := wc.AuthenticatedUser.Get(); ok {
		user = u
	}
	return s.exec(ctx, "insert_web_context", insertWebContextQuery,
		wc.InstanceID, wc.WebApplicationID.Bytes(), user, wc.HTTPMethod,
		wc.RequestURLQueryID.Bytes(), nullDigest(wc.ReferrerURLQueryID), nullDigest(wc.HeadersCollectionID),
	)
}

// Commit commits the transaction.
func (s *Session) Commit() error {
	if !s.done.CompareAndSwap(false, true) {
		return storage.ErrSessionDone
	}
	if s.tx == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	err := s.tx.Commit()
	s.store.observe("commit", start, err)
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Rollback rolls back the transaction. Safe to call multiple times.
func (s *Session) Rollback() error {
	if !s.done.CompareAndSwap(false, true) {
		return nil // Already committed or rolled back
	}
	if s.tx == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	err := s.tx.Rollback()
	s.store.observe("rollback", start, err)
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback: %w", err)
	}
	return nil
}

func nullDigest(o domain.Optional[domain.Digest]) any {
	if d, ok := o.Get(); ok {
		return d.Bytes()
	}
	return nil
}

func nullInt64(o domain.Optional[int64]) any {
	if v, ok := o.Get(); ok {
		return v
	}
	return nil
}
