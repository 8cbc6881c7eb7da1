package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/ocpp-log-etl/internal/adapter/http"
	"github.com/couchcryptid/ocpp-log-etl/internal/pipeline"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockStatus struct {
	last *pipeline.PassStatus
}

func (m mockStatus) LastPass() (pipeline.PassStatus, bool) {
	if m.last == nil {
		return pipeline.PassStatus{}, false
	}
	return *m.last, true
}

func newTestServer(status mockStatus, checks ...httpadapter.Check) *httpadapter.Server {
	return httpadapter.NewServer(":0", status, slog.Default(), checks...)
}

func get(t *testing.T, srv *httpadapter.Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealthzReturns200(t *testing.T) {
	rec, body := get(t, newTestServer(mockStatus{}), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenAllChecksPass(t *testing.T) {
	srv := newTestServer(mockStatus{},
		httpadapter.Check{Name: "sync", Checker: &mockReadiness{}},
		httpadapter.Check{Name: "database", Checker: httpadapter.CheckFunc(func(context.Context) error { return nil })},
	)

	rec, body := get(t, srv, "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, map[string]any{"sync": "ok", "database": "ok"}, body["checks"])
}

func TestReadyzReturns503WhenAnyCheckFails(t *testing.T) {
	srv := newTestServer(mockStatus{},
		httpadapter.Check{Name: "sync", Checker: &mockReadiness{err: errors.New("no sync pass has completed yet")}},
		httpadapter.Check{Name: "database", Checker: &mockReadiness{}},
	)

	rec, body := get(t, srv, "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, map[string]any{"sync": "no sync pass has completed yet", "database": "ok"}, body["checks"])
}

func TestStatusBeforeFirstPass(t *testing.T) {
	rec, _ := get(t, newTestServer(mockStatus{}), "/status")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusReportsLastPass(t *testing.T) {
	last := &pipeline.PassStatus{
		RunID:     "run-1",
		StartedAt: time.Date(2024, time.September, 3, 18, 0, 0, 0, time.UTC),
		Upserted:  8,
		Error:     "upsert failed: boom",
	}

	rec, body := get(t, newTestServer(mockStatus{last: last}), "/status")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-1", body["run_id"])
	assert.InDelta(t, 8, body["upserted"], 0)
	assert.Equal(t, "upsert failed: boom", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(mockStatus{})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
