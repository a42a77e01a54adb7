package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/qpubinder/internal/database"
	"github.com/aristath/qpubinder/internal/metrics"
	"github.com/aristath/qpubinder/internal/modules/catalog"
	"github.com/aristath/qpubinder/internal/scheduler"
	testingutil "github.com/aristath/qpubinder/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
	err  error
	runs int
}

func (j *stubJob) Name() string { return j.name }

func (j *stubJob) Run() error {
	j.runs++
	return j.err
}

type pingModule struct{}

func (pingModule) RegisterRoutes(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
}

func newTestServer(t *testing.T, store *catalog.Store, sched *scheduler.Scheduler, dbs ...*database.DB) http.Handler {
	t.Helper()
	s := New(Config{
		Log:       zerolog.New(nil).Level(zerolog.Disabled),
		Port:      0,
		DevMode:   true,
		DataDir:   t.TempDir(),
		Store:     store,
		Scheduler: sched,
		Databases: dbs,
		Metrics:   metrics.New().Handler(),
		Modules:   []RouteRegistrar{pingModule{}},
	})
	return s.Router()
}

func get(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	store := catalog.NewStore()
	router := newTestServer(t, store, nil)

	w := get(t, router, "GET", "/health")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "degraded", body["status"])

	store.Publish("mock", catalog.MockQPUs())
	w = get(t, router, "GET", "/health")
	body = nil
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(1), body["catalog_version"])
}

func TestMetricsAndModuleRoutes(t *testing.T) {
	router := newTestServer(t, catalog.NewStore(), nil)

	w := get(t, router, "GET", "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")

	w = get(t, router, "GET", "/api/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestSystemHandlers_HandleSystemStatus(t *testing.T) {
	store := catalog.NewStore()
	store.Publish("mock", catalog.MockQPUs())
	router := newTestServer(t, store, nil)

	w := get(t, router, "GET", "/api/system/status")
	require.Equal(t, http.StatusOK, w.Code)

	var response SystemStatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "healthy", response.Status)
	assert.Equal(t, uint64(1), response.CatalogVersion)
	assert.Equal(t, "mock", response.CatalogSource)
	assert.Equal(t, len(catalog.MockQPUs()), response.QPUCount)
	assert.Equal(t, len(catalog.MockQPUs())-1, response.AvailableQPUs)
	assert.Greater(t, response.Goroutines, 0)
	assert.GreaterOrEqual(t, response.UptimeSeconds, 0.0)
}

func TestSystemHandlers_HandleSystemStatus_NoCatalog(t *testing.T) {
	router := newTestServer(t, catalog.NewStore(), nil)

	w := get(t, router, "GET", "/api/system/status")
	var response SystemStatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "degraded", response.Status)
	assert.Zero(t, response.QPUCount)
}

func TestSystemHandlers_HandleDatabaseStats(t *testing.T) {
	db, cleanup := testingutil.NewTestDB(t, "catalog")
	defer cleanup()

	router := newTestServer(t, nil, nil, db, nil)
	w := get(t, router, "GET", "/api/system/database/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var response DatabaseStatsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Len(t, response.Databases, 1)
	assert.Equal(t, "catalog", response.Databases[0].Name)
	assert.Greater(t, response.Databases[0].PageCount, int64(0))
}

func TestSystemHandlers_Jobs(t *testing.T) {
	sched := scheduler.New(zerolog.Nop())
	ok := &stubJob{name: "catalog_refresh"}
	failing := &stubJob{name: "database_maintenance", err: errors.New("disk on fire")}
	require.NoError(t, sched.AddJob("@every 1m", ok))
	require.NoError(t, sched.AddJob("@every 1h", failing))

	router := newTestServer(t, nil, sched)

	w := get(t, router, "GET", "/api/system/jobs")
	require.Equal(t, http.StatusOK, w.Code)
	var status JobsStatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, 2, status.TotalJobs)
	assert.Equal(t, "catalog_refresh", status.Jobs[0].Name)
	assert.Equal(t, "@every 1m", status.Jobs[0].Schedule)

	w = get(t, router, "POST", "/api/system/jobs/catalog_refresh")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, ok.runs)

	w = get(t, router, "POST", "/api/system/jobs/database_maintenance")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "disk on fire")

	w = get(t, router, "POST", "/api/system/jobs/unknown")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSystemHandlers_TriggerWithoutScheduler(t *testing.T) {
	router := newTestServer(t, nil, nil)

	w := get(t, router, "POST", "/api/system/jobs/anything")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = get(t, router, "GET", "/api/system/jobs")
	var status JobsStatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Zero(t, status.TotalJobs)
}
