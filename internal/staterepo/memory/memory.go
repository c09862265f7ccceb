// Package memory implements staterepo.Repository entirely in process
// memory: two maps (work orders, metadata) and one map of step
// histories, all guarded by a single lock. State is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agentworkd/orchestrator/internal/staterepo"
	"github.com/agentworkd/orchestrator/internal/woerrors"
)

// Repository is the in-memory state repository backend.
type Repository struct {
	mu        sync.RWMutex
	workOrder map[string]staterepo.WorkOrder
	metadata  map[string]staterepo.Metadata
	histories map[string]staterepo.StepHistory
}

// New creates an empty in-memory repository.
func New() *Repository {
	return &Repository{
		workOrder: make(map[string]staterepo.WorkOrder),
		metadata:  make(map[string]staterepo.Metadata),
		histories: make(map[string]staterepo.StepHistory),
	}
}

var _ staterepo.Repository = (*Repository)(nil)

func (r *Repository) Create(_ context.Context, wo staterepo.WorkOrder, meta staterepo.Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workOrder[wo.WorkOrderID]; exists {
		return &woerrors.StateRepositoryError{Operation: "create", Err: errAlreadyExists(wo.WorkOrderID)}
	}

	now := time.Now().UTC()
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}
	meta.UpdatedAt = now

	r.workOrder[wo.WorkOrderID] = wo
	r.metadata[wo.WorkOrderID] = meta
	return nil
}

func (r *Repository) Get(_ context.Context, id string) (staterepo.Record, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wo, ok := r.workOrder[id]
	if !ok {
		return staterepo.Record{}, false, nil
	}
	return staterepo.Record{WorkOrder: wo, Metadata: r.metadata[id]}, true, nil
}

func (r *Repository) List(_ context.Context, status *staterepo.Status) ([]staterepo.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []staterepo.Record
	for id, wo := range r.workOrder {
		meta := r.metadata[id]
		if status != nil && meta.Status != *status {
			continue
		}
		out = append(out, staterepo.Record{WorkOrder: wo, Metadata: meta})
	}

	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].Metadata.CreatedAt, out[j].Metadata.CreatedAt
		if ti.Equal(tj) {
			return out[i].WorkOrder.WorkOrderID > out[j].WorkOrder.WorkOrderID
		}
		return ti.After(tj)
	})
	return out, nil
}

func (r *Repository) UpdateStatus(_ context.Context, id string, status staterepo.Status, update staterepo.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta, ok := r.metadata[id]
	if !ok {
		return nil // missing id: silent no-op, no error.
	}

	meta.Status = status
	meta.UpdatedAt = time.Now().UTC()
	if update.ErrorMessage != nil {
		meta.ErrorMessage = update.ErrorMessage
	}
	if update.GitHubPullRequestURL != nil {
		meta.GitHubPullRequestURL = update.GitHubPullRequestURL
	}
	if update.GitCommitCount != nil {
		meta.GitCommitCount = update.GitCommitCount
	}
	if update.GitFilesChanged != nil {
		meta.GitFilesChanged = update.GitFilesChanged
	}
	r.metadata[id] = meta
	return nil
}

func (r *Repository) UpdateGitBranch(_ context.Context, id string, branch string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	wo, ok := r.workOrder[id]
	if !ok {
		return nil
	}
	wo.GitBranchName = &branch
	r.workOrder[id] = wo

	meta := r.metadata[id]
	meta.UpdatedAt = time.Now().UTC()
	r.metadata[id] = meta
	return nil
}

func (r *Repository) UpdateSessionID(_ context.Context, id string, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	wo, ok := r.workOrder[id]
	if !ok {
		return nil
	}
	wo.AgentSessionID = &sessionID
	r.workOrder[id] = wo

	meta := r.metadata[id]
	meta.UpdatedAt = time.Now().UTC()
	r.metadata[id] = meta
	return nil
}

func (r *Repository) SaveStepHistory(_ context.Context, id string, steps []staterepo.StepExecutionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := make([]staterepo.StepExecutionResult, len(steps))
	copy(copied, steps)
	r.histories[id] = staterepo.StepHistory{WorkOrderID: id, Steps: copied}
	return nil
}

func (r *Repository) GetStepHistory(_ context.Context, id string) (staterepo.StepHistory, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.histories[id]
	return h, ok, nil
}

type alreadyExistsError struct{ id string }

func (e alreadyExistsError) Error() string { return "work order already exists: " + e.id }

func errAlreadyExists(id string) error { return alreadyExistsError{id: id} }
