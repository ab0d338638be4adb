package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/exlog/internal/core/config"
	"github.com/vietddude/exlog/internal/health"
	"github.com/vietddude/exlog/internal/httpcapture"
	"github.com/vietddude/exlog/internal/infra/storage"
	"github.com/vietddude/exlog/internal/infra/storage/memory"
)

func testConfig(driver, url string) *config.AppConfig {
	return &config.AppConfig{
		Application: config.ApplicationConfig{Name: "orders", Environment: "test", MachineName: "web-01"},
		Store: config.StoreConfig{
			Driver:      driver,
			URL:         url,
			RetryWindow: 10 * time.Second,
			Migrate:     true,
		},
		HTTP: config.HTTPConfig{VirtualPath: "/", WriteTimeout: time.Second},
	}
}

func TestApp_MemoryLifecycle(t *testing.T) {
	ctx := context.Background()
	var failoverOut bytes.Buffer

	app, err := NewApp(ctx, testConfig(config.DriverMemory, ""), WithFailoverWriter(&failoverOut))
	require.NoError(t, err)

	_, ok := app.Backend().Store.(*memory.MemoryStorage)
	require.True(t, ok, "memory driver should use the memory store")
	assert.Nil(t, app.FailoverList())

	id, ok, err := app.Logger().Wrap(ctx, func(context.Context) error {
		return errors.New("payment declined")
	})
	require.Error(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), id.InstanceID)
	assert.Empty(t, failoverOut.String())

	version, err := app.Backend().SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)

	require.NoError(t, app.Stop(ctx))
}

func TestApp_SQLiteWritesThroughMountedRoute(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "exlog.db")

	app, err := NewApp(ctx, testConfig(config.DriverSQLite, dsn), WithFailoverWriter(&bytes.Buffer{}))
	require.NoError(t, err)
	defer func() { _ = app.Stop(ctx) }()

	version, err := app.Backend().SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	app.Mount("/orders", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("out of stock")
	}))

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/42", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body httpcapture.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Regexp(t, `^E:n1:x[0-9a-f]{12}$`, body.Reference)

	var instances, contexts int
	db := app.Backend().SQL.DB()
	require.NoError(t, db.GetContext(ctx, &instances, "SELECT COUNT(*) FROM ex_instance"))
	require.NoError(t, db.GetContext(ctx, &contexts, "SELECT COUNT(*) FROM ex_context_web"))
	assert.Equal(t, 1, instances)
	assert.Equal(t, 1, contexts)

	report := app.Monitor().CheckHealth(ctx)
	assert.Equal(t, health.StatusHealthy, report.SystemStatus)
}

func TestApp_UnsupportedDriver(t *testing.T) {
	_, err := NewApp(context.Background(), testConfig("oracle", "x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrUnsupportedDriver)
}

func TestApp_StopTwice(t *testing.T) {
	ctx := context.Background()
	app, err := NewApp(ctx, testConfig(config.DriverMemory, ""), WithFailoverWriter(&bytes.Buffer{}))
	require.NoError(t, err)

	require.NoError(t, app.Stop(ctx))
	assert.NoError(t, app.Stop(ctx))
}
