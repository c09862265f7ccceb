// Package httpapi exposes the work order service over HTTP: creating
// and inspecting work orders, streaming their logs over SSE, and
// triggering a reconciliation pass.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/agentworkd/orchestrator/internal/githubutil"
	"github.com/agentworkd/orchestrator/internal/ids"
	"github.com/agentworkd/orchestrator/internal/logbuffer"
	"github.com/agentworkd/orchestrator/internal/reconcile"
	"github.com/agentworkd/orchestrator/internal/sse"
	"github.com/agentworkd/orchestrator/internal/staterepo"
	"github.com/agentworkd/orchestrator/internal/tasks"
	"github.com/agentworkd/orchestrator/internal/wolog"
	"github.com/agentworkd/orchestrator/internal/workflow"
)

// Handler serves the work order HTTP API.
type Handler struct {
	repo     staterepo.Repository
	tasks    *tasks.Registry
	logs     *logbuffer.Buffer
	verifier *githubutil.Verifier
	orch     *workflow.Orchestrator
	layout   reconcile.Layout
}

// HandlerConfig wires a Handler's dependencies.
type HandlerConfig struct {
	Repo           staterepo.Repository
	Tasks          *tasks.Registry
	Logs           *logbuffer.Buffer
	Verifier       *githubutil.Verifier
	Orchestrator   *workflow.Orchestrator
	WorktreeLayout reconcile.Layout
}

// NewHandler builds a Handler from cfg.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		repo:     cfg.Repo,
		tasks:    cfg.Tasks,
		logs:     cfg.Logs,
		verifier: cfg.Verifier,
		orch:     cfg.Orchestrator,
		layout:   cfg.WorktreeLayout,
	}
}

// Routes returns the http.Handler exposing every endpoint.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /work-orders", h.Create)
	mux.HandleFunc("GET /work-orders", h.List)
	mux.HandleFunc("GET /work-orders/{id}", h.Get)
	mux.HandleFunc("GET /work-orders/{id}/events", h.StreamEvents)
	mux.HandleFunc("POST /reconcile", h.Reconcile)
	mux.HandleFunc("GET /health", h.Health)
	return mux
}

// CreateRequest is the body of POST /work-orders.
type CreateRequest struct {
	RepositoryURL     string   `json:"repository_url"`
	UserRequest       string   `json:"user_request"`
	SandboxType       string   `json:"sandbox_type"`
	SelectedCommands  []string `json:"selected_commands"`
	GitHubIssueNumber *int     `json:"github_issue_number"`
}

// CreateResponse is the body returned by POST /work-orders.
type CreateResponse struct {
	WorkOrderID string `json:"work_order_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Create verifies the target repository, persists a pending work
// order, and starts its workflow in the background task registry.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.RepositoryURL == "" || req.UserRequest == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("repository_url and user_request are required"))
		return
	}

	if h.verifier != nil {
		result, err := h.verifier.VerifyRepository(r.Context(), req.RepositoryURL)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !result.IsAccessible {
			h.writeError(w, http.StatusBadRequest, fmt.Errorf("repository not accessible: %s", result.ErrorMessage))
			return
		}
	}

	sandboxType := staterepo.SandboxType(req.SandboxType)
	if sandboxType == "" {
		sandboxType = staterepo.SandboxWorktree
	}

	workOrderID := ids.NewWorkOrderID()
	wo := staterepo.WorkOrder{
		WorkOrderID:       workOrderID,
		RepositoryURL:     req.RepositoryURL,
		SandboxIdentifier: ids.SandboxIdentifier(workOrderID),
	}
	meta := staterepo.Metadata{
		SandboxType:       sandboxType,
		Status:            staterepo.StatusPending,
		GitHubIssueNumber: req.GitHubIssueNumber,
	}
	if err := h.repo.Create(r.Context(), wo, meta); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	repositoryURL := req.RepositoryURL
	userRequest := req.UserRequest
	selectedCommands := req.SelectedCommands
	issueNumber := req.GitHubIssueNumber

	h.tasks.Start(context.WithoutCancel(r.Context()), workOrderID, func(ctx context.Context) error {
		return h.orch.Run(ctx, workOrderID, repositoryURL, sandboxType, userRequest, selectedCommands, issueNumber)
	})

	h.writeJSON(w, http.StatusCreated, CreateResponse{WorkOrderID: workOrderID})
}

// workOrderResponse is the JSON shape returned for a single work order.
type workOrderResponse struct {
	WorkOrderID          string  `json:"work_order_id"`
	RepositoryURL        string  `json:"repository_url"`
	Status               string  `json:"status"`
	GitBranchName        *string `json:"git_branch_name,omitempty"`
	GitHubPullRequestURL *string `json:"github_pull_request_url,omitempty"`
	GitCommitCount       *int    `json:"git_commit_count,omitempty"`
	GitFilesChanged      *int    `json:"git_files_changed,omitempty"`
	ErrorMessage         *string `json:"error_message,omitempty"`
}

func toResponse(rec staterepo.Record) workOrderResponse {
	return workOrderResponse{
		WorkOrderID:          rec.WorkOrder.WorkOrderID,
		RepositoryURL:        rec.WorkOrder.RepositoryURL,
		Status:               string(rec.Metadata.Status),
		GitBranchName:        rec.WorkOrder.GitBranchName,
		GitHubPullRequestURL: rec.Metadata.GitHubPullRequestURL,
		GitCommitCount:       rec.Metadata.GitCommitCount,
		GitFilesChanged:      rec.Metadata.GitFilesChanged,
		ErrorMessage:         rec.Metadata.ErrorMessage,
	}
}

// Get returns a single work order by id.
// GET /work-orders/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, ok, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		h.writeError(w, http.StatusNotFound, fmt.Errorf("work order %q not found", id))
		return
	}
	h.writeJSON(w, http.StatusOK, toResponse(rec))
}

// List returns every work order, optionally filtered by ?status=.
// GET /work-orders
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var statusFilter *staterepo.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := staterepo.Status(raw)
		statusFilter = &s
	}

	records, err := h.repo.List(r.Context(), statusFilter)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := make([]workOrderResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toResponse(rec))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// StreamEvents streams a work order's logs via SSE, replaying the
// buffered backlog then polling for new entries.
// GET /work-orders/{id}/events
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok, err := h.repo.Get(r.Context(), id); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	} else if !ok {
		h.writeError(w, http.StatusNotFound, fmt.Errorf("work order %q not found", id))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var filter logbuffer.Filter
	if level := r.URL.Query().Get("level"); level != "" {
		filter.Level = level
	}
	if step := r.URL.Query().Get("step"); step != "" {
		filter.Step = step
	}

	if err := sse.Stream(r.Context(), h.logs, flushWriter{w, flusher}, id, filter); err != nil {
		wolog.Exception(r.Context(), "sse_stream_failed", err, "work_order_id", id)
	}
}

// flushWriter adapts an http.ResponseWriter+http.Flusher pair into
// sse.Writer.
type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (fw flushWriter) Write(p []byte) (int, error) { return fw.w.Write(p) }
func (fw flushWriter) Flush()                      { fw.f.Flush() }

// ReconcileRequest is the body of POST /reconcile.
type ReconcileRequest struct {
	Fix bool `json:"fix"`
}

// Reconcile runs a reconciliation pass and returns its result.
// POST /reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	result, err := reconcile.Reconcile(r.Context(), h.layout, h.repo, req.Fix)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// Health reports that the service is up.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
