package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/vietddude/exlog/internal/core/domain"
	"github.com/vietddude/exlog/internal/infra/storage"
	"github.com/vietddude/exlog/internal/metrics"
)

// InstanceRow is a stored occurrence with its assigned id.
type InstanceRow struct {
	ID int64
	domain.Instance
}

type urlQueryRow struct {
	URLID domain.Digest
	Query string
}

type tables struct {
	targetSites  map[domain.Digest]domain.TargetSite
	exceptions   map[domain.Digest]domain.Species
	policies     map[domain.Digest]domain.Policy
	applications map[domain.Digest]domain.Application
	instances    map[int64]InstanceRow
	webApps      map[domain.Digest]domain.Hosting
	urls         map[domain.Digest]domain.URLParts
	urlQueries   map[domain.Digest]urlQueryRow
	values       map[domain.Digest]string
	collections  map[domain.Digest]map[string]domain.Digest
	webContexts  map[int64]domain.WebContext
}

// MemoryStorage is an in-process storage.Store. Transactional sessions stage their writes and
// apply them on Commit. Every call counts as one round trip.
type MemoryStorage struct {
	t  tables
	mu sync.RWMutex

	nextID     atomic.Int64
	roundTrips atomic.Int64
	closed     atomic.Bool

	failMu  sync.Mutex
	openErr error
	failOps map[string]injectedFailure
	calls   map[string]int
}

type injectedFailure struct {
	err error
	// remaining is negative for a permanent failure.
	remaining int
}

var _ storage.Store = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		t: tables{
			targetSites:  make(map[domain.Digest]domain.TargetSite),
			exceptions:   make(map[domain.Digest]domain.Species),
			policies:     make(map[domain.Digest]domain.Policy),
			applications: make(map[domain.Digest]domain.Application),
			instances:    make(map[int64]InstanceRow),
			webApps:      make(map[domain.Digest]domain.Hosting),
			urls:         make(map[domain.Digest]domain.URLParts),
			urlQueries:   make(map[domain.Digest]urlQueryRow),
			values:       make(map[domain.Digest]string),
			collections:  make(map[domain.Digest]map[string]domain.Digest),
			webContexts:  make(map[int64]domain.WebContext),
		},
		failOps: make(map[string]injectedFailure),
		calls:   make(map[string]int),
	}
}

// FailOpen makes every Open return err until cleared with nil.
func (s *MemoryStorage) FailOpen(err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.openErr = err
}

// FailOn makes the named session operation return err until cleared with nil.
func (s *MemoryStorage) FailOn(op string, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if err == nil {
		delete(s.failOps, op)
		return
	}
	s.failOps[op] = injectedFailure{err: err, remaining: -1}
}

// FailTimes makes the next n calls of the named session operation return err.
func (s *MemoryStorage) FailTimes(op string, err error, n int) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if err == nil || n <= 0 {
		delete(s.failOps, op)
		return
	}
	s.failOps[op] = injectedFailure{err: err, remaining: n}
}

// SetPolicy stores a logging policy for a species.
func (s *MemoryStorage) SetPolicy(id domain.Digest, p domain.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.t.policies[id] = p
}

// RoundTrips returns the number of store calls made so far, Open included.
func (s *MemoryStorage) RoundTrips() int64 {
	return s.roundTrips.Load()
}

// Calls returns how many times op was called.
func (s *MemoryStorage) Calls(op string) int {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	return s.calls[op]
}

func (s *MemoryStorage) call(op string) error {
	s.roundTrips.Add(1)
	metrics.StoreRoundTrips.WithLabelValues("memory", op).Inc()

	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.calls[op]++
	if s.closed.Load() {
		return storage.ErrClosed
	}
	if op == "open" && s.openErr != nil {
		return s.openErr
	}
	f, ok := s.failOps[op]
	if !ok {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
		if f.remaining == 0 {
			delete(s.failOps, op)
		} else {
			s.failOps[op] = f
		}
	}
	return f.err
}

// Open starts a session.
func (s *MemoryStorage) Open(ctx context.Context, transactional bool) (storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.call("open"); err != nil {
		return nil, err
	}
	return &Session{store: s, transactional: transactional}, nil
}

// Health reports whether the store would accept a session.
func (s *MemoryStorage) Health(ctx context.Context) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	s.failMu.Lock()
	defer s.failMu.Unlock()
	return s.openErr
}

// Close marks the store closed.
func (s *MemoryStorage) Close() error {
	s.closed.Store(true)
	return nil
}

// -----------------------------------------------------------------------------
// Inspection
// -----------------------------------------------------------------------------

// Counts is a snapshot of the table sizes.
type Counts struct {
	TargetSites     int
	Exceptions      int
	Applications    int
	Instances       int
	WebApplications int
	URLs            int
	URLQueries      int
	Values          int
	Collections     int
	WebContexts     int
}

func (s *MemoryStorage) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Counts{
		TargetSites:     len(s.t.targetSites),
		Exceptions:      len(s.t.exceptions),
		Applications:    len(s.t.applications),
		Instances:       len(s.t.instances),
		WebApplications: len(s.t.webApps),
		URLs:            len(s.t.urls),
		URLQueries:      len(s.t.urlQueries),
		Values:          len(s.t.values),
		Collections:     len(s.t.collections),
		WebContexts:     len(s.t.webContexts),
	}
}

// Instances returns every stored instance ordered by id.
func (s *MemoryStorage) Instances() []InstanceRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]InstanceRow, 0, len(s.t.instances))
	for _, in := range s.t.instances {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStorage) Instance(id int64) (InstanceRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.t.instances[id]
	return in, ok
}

func (s *MemoryStorage) Exception(id domain.Digest) (domain.Species, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sp, ok := s.t.exceptions[id]
	return sp, ok
}

func (s *MemoryStorage) TargetSite(id domain.Digest) (domain.TargetSite, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.t.targetSites[id]
	return ts, ok
}

func (s *MemoryStorage) WebContext(instanceID int64) (domain.WebContext, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wc, ok := s.t.webContexts[instanceID]
	return wc, ok
}

// Collection returns the entries of a header collection as name to value.
func (s *MemoryStorage) Collection(id domain.Digest) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.t.collections[id]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(entries))
	for name, valueID := range entries {
		out[name] = s.t.values[valueID]
	}
	return out
}

// -----------------------------------------------------------------------------
// Session
// -----------------------------------------------------------------------------

// Session applies writes immediately, or on Commit when transactional.
type Session struct {
	store         *MemoryStorage
	transactional bool

	mu      sync.Mutex
	pending []func(*tables)
	done    bool
}

var _ storage.Session = (*Session)(nil)

func (s *Session) do(ctx context.Context, op string, apply func(*tables)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done {
		return storage.ErrSessionDone
	}
	if err := s.store.call(op); err != nil {
		return err
	}
	if apply == nil {
		return nil
	}
	if s.transactional {
		s.mu.Lock()
		s.pending = append(s.pending, apply)
		s.mu.Unlock()
		return nil
	}
	s.store.mu.Lock()
	apply(&s.store.t)
	s.store.mu.Unlock()
	return nil
}

func (s *Session) UpsertTargetSite(ctx context.Context, id domain.Digest, site domain.TargetSite) error {
	return s.do(ctx, "upsert_target_site", func(t *tables) {
		if _, ok := t.targetSites[id]; !ok {
			t.targetSites[id] = site
		}
	})
}

func (s *Session) UpsertException(ctx context.Context, sp domain.Species) (domain.Policy, error) {
	err := s.do(ctx, "upsert_exception", func(t *tables) {
		if _, ok := t.exceptions[sp.ID]; !ok {
			t.exceptions[sp.ID] = sp
		}
	})
	if err != nil {
		return domain.Policy{}, err
	}

	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	if p, ok := s.store.t.policies[sp.ID]; ok {
		return p, nil
	}
	return domain.DefaultPolicy, nil
}

func (s *Session) UpsertApplication(ctx context.Context, id domain.Digest, app domain.Application) error {
	return s.do(ctx, "upsert_application", func(t *tables) {
		if _, ok := t.applications[id]; !ok {
			t.applications[id] = app
		}
	})
}

func (s *Session) InsertInstance(ctx context.Context, in domain.Instance) (int64, error) {
	id := s.store.nextID.Add(1)
	err := s.do(ctx, "insert_instance", func(t *tables) {
		t.instances[id] = InstanceRow{ID: id, Instance: in}
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Session) UpsertWebApplication(ctx context.Context, id domain.Digest, h domain.Hosting) error {
	return s.do(ctx, "upsert_web_application", func(t *tables) {
		if _, ok := t.webApps[id]; !ok {
			t.webApps[id] = h
		}
	})
}

func (s *Session) UpsertURL(ctx context.Context, id domain.Digest, u domain.URLParts) error {
	return s.do(ctx, "upsert_url", func(t *tables) {
		if _, ok := t.urls[id]; !ok {
			t.urls[id] = u
		}
	})
}

func (s *Session) UpsertURLQuery(ctx context.Context, id, urlID domain.Digest, query string) error {
	return s.do(ctx, "upsert_url_query", func(t *tables) {
		if _, ok := t.urlQueries[id]; !ok {
			t.urlQueries[id] = urlQueryRow{URLID: urlID, Query: query}
		}
	})
}

func (s *Session) CountCollection(ctx context.Context, id domain.Digest) (int, error) {
	if err := s.do(ctx, "count_collection", nil); err != nil {
		return 0, err
	}
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	return len(s.store.t.collections[id]), nil
}

func (s *Session) UpsertCollectionValue(ctx context.Context, id domain.Digest, value string) error {
	return s.do(ctx, "upsert_collection_value", func(t *tables) {
		if _, ok := t.values[id]; !ok {
			t.values[id] = value
		}
	})
}

func (s *Session) UpsertCollectionEntry(ctx context.Context, collectionID domain.Digest, name string, valueID domain.Digest) error {
	return s.do(ctx, "upsert_collection_entry", func(t *tables) {
		entries, ok := t.collections[collectionID]
		if !ok {
			entries = make(map[string]domain.Digest)
			t.collections[collectionID] = entries
		}
		if _, ok := entries[name]; !ok {
			entries[name] = valueID
		}
	})
}

func (s *Session) InsertWebContext(ctx context.Context, wc domain.WebContext) error {
	return s.do(ctx, "insert_web_context", func(t *tables) {
		t.webContexts[wc.InstanceID] = wc
	})
}

func (s *Session) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return storage.ErrSessionDone
	}
	s.done = true
	if !s.transactional {
		return nil
	}
	if err := s.store.call("commit"); err != nil {
		s.pending = nil
		return err
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	for _, apply := range s.pending {
		apply(&s.store.t)
	}
	s.pending = nil
	return nil
}

func (s *Session) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	s.pending = nil
	if s.transactional {
		_ = s.store.call("rollback")
	}
	return nil
}
