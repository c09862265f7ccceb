// Package tasks maintains the process-wide registry of in-flight
// background workflow runs, guaranteeing a terminal status is
// recorded even if the orchestrator itself crashes before reaching
// its own failure path.
package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentworkd/orchestrator/internal/staterepo"
	"github.com/agentworkd/orchestrator/internal/wolog"
)

// Runner executes one workflow run to completion.
type Runner func(ctx context.Context) error

// Registry tracks one active task per work order.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]struct{}
	repo  staterepo.Repository
}

// New builds a registry that reports unhandled failures through repo.
func New(repo staterepo.Repository) *Registry {
	return &Registry{tasks: make(map[string]struct{}), repo: repo}
}

// Start launches run in the background under workOrderID, wrapping it
// with error handling and a done-callback that always clears the
// registry entry. Workflow runs are not cancellable once started.
func (r *Registry) Start(ctx context.Context, workOrderID string, run Runner) {
	taskCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.tasks[workOrderID] = struct{}{}
	r.mu.Unlock()

	go func() {
		defer cancel()
		err := r.executeWithErrorHandling(taskCtx, workOrderID, run)
		r.done(taskCtx, workOrderID, err)
	}()
}

// executeWithErrorHandling runs run and, if it panics or returns an
// error the orchestrator itself did not already convert into a failed
// status, marks the work order failed with a diagnostic prefix.
func (r *Registry) executeWithErrorHandling(ctx context.Context, workOrderID string, run Runner) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
		if err != nil {
			if rec, ok, getErr := r.repo.Get(ctx, workOrderID); getErr == nil && ok && rec.Metadata.Status == staterepo.StatusFailed {
				return
			}
			msg := fmt.Sprintf("Workflow execution failed before orchestrator could handle it: %v", err)
			if updateErr := r.repo.UpdateStatus(ctx, workOrderID, staterepo.StatusFailed, staterepo.StatusUpdate{ErrorMessage: &msg}); updateErr != nil {
				wolog.Exception(ctx, "task_status_update_failed", updateErr, "work_order_id", workOrderID)
			}
		}
	}()
	return run(ctx)
}

// done runs synchronously when a task terminates: it emits a
// completion or failure event and always removes the task from the
// registry.
func (r *Registry) done(ctx context.Context, workOrderID string, err error) {
	defer r.remove(workOrderID)

	if err == nil {
		wolog.Info(ctx, "workflow_task_completed", "work_order_id", workOrderID)
		return
	}

	wolog.Warning(ctx, "workflow_task_failed", "work_order_id", workOrderID, "error", err.Error())

	rec, ok, getErr := r.repo.Get(ctx, workOrderID)
	if getErr != nil || !ok || rec.Metadata.Status == staterepo.StatusFailed {
		return
	}
	msg := err.Error()
	if updateErr := r.repo.UpdateStatus(ctx, workOrderID, staterepo.StatusFailed, staterepo.StatusUpdate{ErrorMessage: &msg}); updateErr != nil {
		wolog.Exception(ctx, "task_status_update_failed", updateErr, "work_order_id", workOrderID)
	}
}

func (r *Registry) remove(workOrderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, workOrderID)
}

// Active reports whether a task is currently tracked under
// workOrderID.
func (r *Registry) Active(workOrderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[workOrderID]
	return ok
}
