package sqlite

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/exlog/internal/capture"
	"github.com/vietddude/exlog/internal/core/domain"
	"github.com/vietddude/exlog/internal/exlog"
	"github.com/vietddude/exlog/internal/failover"
	"github.com/vietddude/exlog/migrations"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{DSN: filepath.Join(t.TempDir(), "exlog.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func count(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().GetContext(context.Background(), &n, "SELECT COUNT(*) FROM "+table))
	return n
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		want    []string
		notWant []string
	}{
		{
			name: "file gets every pragma",
			dsn:  "/var/lib/exlog.db",
			want: []string{"busy_timeout(5000)", "foreign_keys(1)", "journal_mode(WAL)"},
		},
		{
			name:    "memory skips WAL",
			dsn:     ":memory:",
			want:    []string{"busy_timeout(5000)"},
			notWant: []string{"journal_mode"},
		},
		{
			name:    "existing busy timeout kept",
			dsn:     "file:exlog.db?_pragma=busy_timeout(100)",
			want:    []string{"busy_timeout(100)"},
			notWant: []string{"busy_timeout(5000)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := url.QueryUnescape(BuildDSN(tt.dsn))
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
			for _, nw := range tt.notWant {
				assert.NotContains(t, got, nw)
			}
		})
	}
}

func TestNew_RequiresDSN(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Migrate(ctx))
	version, err := migrations.Version(ctx, s.DB().DB, "sqlite")
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestSession_WritesAndDeduplicates(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	sp := domain.Species{
		ID:           domain.Hash("species"),
		AssemblyName: "main",
		TypeName:     "*errors.errorString",
		StackTrace:   "main.run()",
	}

	for i := range 2 {
		sess, err := s.Open(ctx, true)
		require.NoError(t, err)

		policy, err := sess.UpsertException(ctx, sp)
		require.NoError(t, err)
		assert.Equal(t, domain.DefaultPolicy, policy)

		id, err := sess.InsertInstance(ctx, domain.Instance{
			ExceptionID:    sp.ID,
			ApplicationID:  domain.Hash("app"),
			LoggedAt:       time.Now(),
			SequenceNumber: int64(i + 1),
			Message:        "boom",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), id)

		require.NoError(t, sess.Commit())
	}

	assert.Equal(t, 1, count(t, s, "ex_exception"))
	assert.Equal(t, 2, count(t, s, "ex_instance"))
}

func TestSession_ReadsPolicyRow(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	sp := domain.Species{ID: domain.Hash("quiet"), TypeName: "quiet"}

	_, err := s.DB().ExecContext(ctx,
		"INSERT INTO ex_exception_policy (exception_id, log_web_context, log_headers) VALUES (?, 0, 1)",
		sp.ID.Bytes())
	require.NoError(t, err)

	sess, err := s.Open(ctx, false)
	require.NoError(t, err)
	policy, err := sess.UpsertException(ctx, sp)
	require.NoError(t, err)
	assert.Equal(t, domain.Policy{LogWebContext: false, LogHeaders: true}, policy)
	require.NoError(t, sess.Commit())
}

func TestSession_RollbackDiscards(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	sess, err := s.Open(ctx, true)
	require.NoError(t, err)
	require.NoError(t, sess.UpsertCollectionValue(ctx, domain.Hash("v"), "v"))
	require.NoError(t, sess.Rollback())

	assert.Equal(t, 0, count(t, s, "ex_collection_value"))
}

func TestSession_ForeignKeysEnforced(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	sess, err := s.Open(ctx, true)
	require.NoError(t, err)
	_, err = sess.InsertInstance(ctx, domain.Instance{
		ExceptionID:   domain.Hash("missing"),
		ApplicationID: domain.Hash("app"),
		LoggedAt:      time.Now(),
	})
	require.Error(t, err)
	require.NoError(t, sess.Rollback())
}

type recordingSink struct {
	mu      sync.Mutex
	entries []failover.Entry
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Write(ctx context.Context, e failover.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func newLogger(t *testing.T, s *Store, sink failover.Sink, transactional bool) *exlog.Logger {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	reporter := failover.NewReporter("orders", "test", failover.WithPrimary(sink), failover.WithLogger(quiet))
	hosting := domain.Hosting{MachineName: "web-01", ApplicationID: "orders", PhysicalPath: "/srv", VirtualPath: "/", SiteName: "orders"}
	return exlog.New(s, reporter,
		exlog.Config{
			Application:   domain.Application{MachineName: "web-01", ApplicationName: "orders", EnvironmentName: "test"},
			Transactional: transactional,
			RetryWindow:   10 * time.Second,
		},
		exlog.WithCapturer(capture.NewCapturer(capture.NewSequence(), domain.Some(hosting))),
		exlog.WithLogger(quiet),
	)
}

func testRequest(t *testing.T) domain.WebRequest {
	t.Helper()
	u, err := url.Parse("https://shop.example.com/cart?id=7")
	require.NoError(t, err)
	ref, err := url.Parse("https://shop.example.com/")
	require.NoError(t, err)

	h := http.Header{}
	h.Set("Accept", "text/html")
	h.Set("User-Agent", "test")
	h.Set("Cookie", "a=b")

	return domain.WebRequest{
		URL:               *u,
		Referrer:          domain.Some(*ref),
		Method:            http.MethodPost,
		AuthenticatedUser: domain.Some("alice"),
		Headers:           domain.Some(domain.NewHeaders(h)),
	}
}

func TestLogger_EndToEnd(t *testing.T) {
	for _, transactional := range []bool{true, false} {
		name := "pool"
		if transactional {
			name = "transaction"
		}
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			sink := &recordingSink{}
			l := newLogger(t, s, sink, transactional)
			ctx := context.Background()

			inner := errors.New("connection reset by upstream")
			outer := capture.Trace(errors.Join(errors.New("checkout failed"), inner))

			var ids []domain.LogIdentifier
			for range 2 {
				c := l.Capture(outer, capture.Request(testRequest(t)))
				id, ok := l.Write(ctx, c)
				require.True(t, ok)
				ids = append(ids, id)
			}

			assert.Empty(t, sink.entries)
			assert.Equal(t, ids[0].Species, ids[1].Species)
			assert.NotEqual(t, ids[0].InstanceID, ids[1].InstanceID)
			assert.True(t, strings.HasPrefix(ids[0].ShortForm(), "E:n"))

			// Every chain node carries the request.
			assert.Equal(t, count(t, s, "ex_instance"), count(t, s, "ex_context_web"))
			assert.Equal(t, 3, count(t, s, "ex_collection_key_value"))
			assert.Equal(t, 3, count(t, s, "ex_collection_value"))
			assert.Equal(t, 2, count(t, s, "ex_url_query"))
			assert.Equal(t, 1, count(t, s, "ex_web_application"))
			assert.Equal(t, 1, count(t, s, "ex_application"))

			var parents int
			require.NoError(t, s.DB().GetContext(ctx, &parents,
				"SELECT COUNT(*) FROM ex_instance WHERE parent_instance_id IS NOT NULL"))
			assert.Equal(t, count(t, s, "ex_instance")-2, parents)
		})
	}
}

func TestLogger_ClosedStoreFailsOver(t *testing.T) {
	s := newStore(t)
	sink := &recordingSink{}
	l := newLogger(t, s, sink, true)
	require.NoError(t, s.Close())

	_, ok := l.Write(context.Background(), l.Capture(errors.New("Test1")))
	assert.False(t, ok)
	require.Len(t, sink.entries, 1)
	assert.Equal(t, "symptom", sink.entries[0].Kind)
	assert.Contains(t, sink.entries[0].Text, "Test1")
}
