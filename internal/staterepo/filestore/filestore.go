// Package filestore implements staterepo.Repository as one JSON
// document per work order at "<dir>/<id>.json". All operations are
// serialized by a single lock. Per the Open Question in the design
// notes, writes are made crash-safe by writing to a temporary file in
// the same directory and renaming it over the target, rather than
// rewriting the target file in place.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/agentworkd/orchestrator/internal/staterepo"
	"github.com/agentworkd/orchestrator/internal/woerrors"
)

// document is the on-disk schema for one work order's file.
type document struct {
	State       staterepo.WorkOrder    `json:"state"`
	Metadata    staterepo.Metadata     `json:"metadata"`
	StepHistory *staterepo.StepHistory `json:"step_history"`
}

func nowUTC() time.Time { return time.Now().UTC() }

// Repository is the file-per-id state repository backend.
type Repository struct {
	mu  sync.Mutex
	dir string
}

// New creates a file-per-id repository rooted at dir. The directory is
// created if it does not already exist.
func New(dir string) (*Repository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &woerrors.StateRepositoryError{Operation: "init", Err: err}
	}
	return &Repository{dir: dir}, nil
}

var _ staterepo.Repository = (*Repository)(nil)

func (r *Repository) path(id string) string {
	return filepath.Join(r.dir, id+".json")
}

func (r *Repository) readLocked(id string) (document, bool, error) {
	data, err := os.ReadFile(r.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return document{}, false, nil
		}
		return document{}, false, &woerrors.StateRepositoryError{Operation: "read", Err: err}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, false, &woerrors.StateRepositoryError{Operation: "unmarshal", Err: err}
	}
	return doc, true, nil
}

func (r *Repository) writeLocked(id string, doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &woerrors.StateRepositoryError{Operation: "marshal", Err: err}
	}

	tmp, err := os.CreateTemp(r.dir, id+".*.tmp")
	if err != nil {
		return &woerrors.StateRepositoryError{Operation: "create temp file", Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return &woerrors.StateRepositoryError{Operation: "write temp file", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &woerrors.StateRepositoryError{Operation: "close temp file", Err: err}
	}

	if err := os.Rename(tmpName, r.path(id)); err != nil {
		return &woerrors.StateRepositoryError{Operation: "rename", Err: err}
	}
	return nil
}

func (r *Repository) Create(_ context.Context, wo staterepo.WorkOrder, meta staterepo.Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists, err := r.readLocked(wo.WorkOrderID)
	if err != nil {
		return err
	}
	if exists {
		return &woerrors.StateRepositoryError{Operation: "create", Err: fmt.Errorf("work order already exists: %s", wo.WorkOrderID)}
	}

	now := nowUTC()
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}
	meta.UpdatedAt = now

	return r.writeLocked(wo.WorkOrderID, document{State: wo, Metadata: meta})
}

func (r *Repository) Get(_ context.Context, id string) (staterepo.Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok, err := r.readLocked(id)
	if err != nil || !ok {
		return staterepo.Record{}, ok, err
	}
	return staterepo.Record{WorkOrder: doc.State, Metadata: doc.Metadata}, true, nil
}

func (r *Repository) List(_ context.Context, status *staterepo.Status) ([]staterepo.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, &woerrors.StateRepositoryError{Operation: "list", Err: err}
	}

	var out []staterepo.Record
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		id := entry.Name()[:len(entry.Name())-len(".json")]
		doc, ok, err := r.readLocked(id)
		if err != nil || !ok {
			continue
		}
		if status != nil && doc.Metadata.Status != *status {
			continue
		}
		out = append(out, staterepo.Record{WorkOrder: doc.State, Metadata: doc.Metadata})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metadata.CreatedAt.After(out[j].Metadata.CreatedAt)
	})
	return out, nil
}

func (r *Repository) UpdateStatus(_ context.Context, id string, status staterepo.Status, update staterepo.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok, err := r.readLocked(id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	doc.Metadata.Status = status
	doc.Metadata.UpdatedAt = nowUTC()
	if update.ErrorMessage != nil {
		doc.Metadata.ErrorMessage = update.ErrorMessage
	}
	if update.GitHubPullRequestURL != nil {
		doc.Metadata.GitHubPullRequestURL = update.GitHubPullRequestURL
	}
	if update.GitCommitCount != nil {
		doc.Metadata.GitCommitCount = update.GitCommitCount
	}
	if update.GitFilesChanged != nil {
		doc.Metadata.GitFilesChanged = update.GitFilesChanged
	}
	return r.writeLocked(id, doc)
}

func (r *Repository) UpdateGitBranch(_ context.Context, id string, branch string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok, err := r.readLocked(id)
	if err != nil || !ok {
		return err
	}
	doc.State.GitBranchName = &branch
	doc.Metadata.UpdatedAt = nowUTC()
	return r.writeLocked(id, doc)
}

func (r *Repository) UpdateSessionID(_ context.Context, id string, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok, err := r.readLocked(id)
	if err != nil || !ok {
		return err
	}
	doc.State.AgentSessionID = &sessionID
	doc.Metadata.UpdatedAt = nowUTC()
	return r.writeLocked(id, doc)
}

func (r *Repository) SaveStepHistory(_ context.Context, id string, steps []staterepo.StepExecutionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok, err := r.readLocked(id)
	if err != nil {
		return err
	}
	if !ok {
		doc = document{State: staterepo.WorkOrder{WorkOrderID: id}}
	}

	copied := make([]staterepo.StepExecutionResult, len(steps))
	copy(copied, steps)
	history := staterepo.StepHistory{WorkOrderID: id, Steps: copied}
	doc.StepHistory = &history

	return r.writeLocked(id, doc)
}

func (r *Repository) GetStepHistory(_ context.Context, id string) (staterepo.StepHistory, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok, err := r.readLocked(id)
	if err != nil || !ok || doc.StepHistory == nil {
		return staterepo.StepHistory{}, false, err
	}
	return *doc.StepHistory, true, nil
}
