package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agentworkd/orchestrator/internal/logbuffer"
	"github.com/agentworkd/orchestrator/internal/reconcile"
	"github.com/agentworkd/orchestrator/internal/staterepo"
	"github.com/agentworkd/orchestrator/internal/staterepo/memory"
	"github.com/agentworkd/orchestrator/internal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*Handler, staterepo.Repository) {
	t.Helper()
	repo := memory.New()
	logs := logbuffer.New()
	t.Cleanup(logs.Stop)

	h := NewHandler(HandlerConfig{
		Repo:           repo,
		Tasks:          tasks.New(repo),
		Logs:           logs,
		WorktreeLayout: reconcile.Layout{},
	})
	return h, repo
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestCreateRejectsMissingFields(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/work-orders", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetReturnsNotFoundForUnknownID(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/work-orders/does-not-exist", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAndListReturnPersistedWorkOrder(t *testing.T) {
	h, repo := newTestHandler(t)
	require.NoError(t, repo.Create(context.Background(), staterepo.WorkOrder{
		WorkOrderID:   "wo-1",
		RepositoryURL: "https://github.com/example/repo",
	}, staterepo.Metadata{Status: staterepo.StatusRunning, CreatedAt: time.Now()}))

	req := httptest.NewRequest(http.MethodGet, "/work-orders/wo-1", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got workOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "wo-1", got.WorkOrderID)
	assert.Equal(t, "running", got.Status)

	req = httptest.NewRequest(http.MethodGet, "/work-orders", nil)
	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []workOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
}

func TestListFiltersByStatus(t *testing.T) {
	h, repo := newTestHandler(t)
	require.NoError(t, repo.Create(context.Background(), staterepo.WorkOrder{WorkOrderID: "wo-running"},
		staterepo.Metadata{Status: staterepo.StatusRunning, CreatedAt: time.Now()}))
	require.NoError(t, repo.Create(context.Background(), staterepo.WorkOrder{WorkOrderID: "wo-failed"},
		staterepo.Metadata{Status: staterepo.StatusFailed, CreatedAt: time.Now()}))

	req := httptest.NewRequest(http.MethodGet, "/work-orders?status=failed", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []workOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "wo-failed", list[0].WorkOrderID)
}

func TestReconcileEndpointReturnsEmptyResultForEmptyState(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/reconcile", bytes.NewBufferString(`{"fix":false}`))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStreamEventsRejectsUnknownWorkOrder(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/work-orders/missing/events", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
