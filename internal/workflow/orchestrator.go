package workflow

import (
	"context"
	"fmt"

	"github.com/agentworkd/orchestrator/internal/gitinspect"
	"github.com/agentworkd/orchestrator/internal/ids"
	"github.com/agentworkd/orchestrator/internal/sandbox"
	"github.com/agentworkd/orchestrator/internal/staterepo"
	"github.com/agentworkd/orchestrator/internal/woerrors"
	"github.com/agentworkd/orchestrator/internal/wolog"
)

// Orchestrator schedules step operations against a sandbox for one
// work order, persisting progress as it goes.
type Orchestrator struct {
	Repo     staterepo.Repository
	Executor Executor
	Loader   CommandLoader
	Build    BuildOptions
	TempBase string
}

// Run executes the full workflow for one work order. Once the sandbox
// has been set up, it is cleaned up on every exit path; if creating or
// setting up the sandbox fails, the work order is marked failed and no
// cleanup runs. An error from the repository while recording a status
// is returned to the caller without a further status update.
func (o *Orchestrator) Run(ctx context.Context, workOrderID, repositoryURL string, sandboxType staterepo.SandboxType, userRequest string, selectedCommands []string, githubIssueNumber *int) error {
	ctx = wolog.WithWorkOrder(ctx, workOrderID)
	wolog.Info(ctx, "workflow_started")

	if len(selectedCommands) == 0 {
		selectedCommands = DefaultSelectedCommands
	}

	if err := o.Repo.UpdateStatus(ctx, workOrderID, staterepo.StatusRunning, staterepo.StatusUpdate{}); err != nil {
		return err
	}

	sb, err := sandbox.New(sandboxType, sandbox.Config{
		WorkOrderID:       workOrderID,
		SandboxIdentifier: ids.SandboxIdentifier(workOrderID),
		RepositoryURL:     repositoryURL,
		TempBase:          o.TempBase,
	})
	if err != nil {
		return o.fail(ctx, workOrderID, err)
	}
	if err := sb.Setup(ctx); err != nil {
		return o.fail(ctx, workOrderID, err)
	}

	stepCtx := map[string]string{"user_request": userRequest}
	if githubIssueNumber != nil {
		stepCtx["github_issue_number"] = fmt.Sprintf("%d", *githubIssueNumber)
	}
	var history []staterepo.StepExecutionResult
	var prURL string

	runErr := func() error {
		for i, key := range selectedCommands {
			fn, ok := Lookup(key)
			if !ok {
				return &woerrors.WorkflowExecutionError{Message: fmt.Sprintf("unknown command: %s", key)}
			}

			phase := ComputePhase(i, len(selectedCommands))
			wolog.Info(ctx, "step_started", "step", key, "completed_steps", phase.CompletedSteps, "total_steps", phase.TotalSteps, "percent", phase.Percent)

			result := fn(ctx, o.Executor, o.Loader, workOrderID, sb.WorkingDirectory(), stepCtx, o.Build)
			history = append(history, result)
			if saveErr := o.Repo.SaveStepHistory(ctx, workOrderID, history); saveErr != nil {
				wolog.Exception(ctx, "step_history_save_failed", saveErr, "step", key)
			}

			wolog.Info(ctx, "step_completed", "step", key, "success", result.Success)

			if !result.Success {
				msg := ""
				if result.ErrorMessage != nil {
					msg = *result.ErrorMessage
				}
				return &woerrors.WorkflowExecutionError{Message: fmt.Sprintf("step %q failed: %s", key, msg)}
			}

			stepCtx[key] = result.Output
			switch key {
			case StepCreateBranch:
				if err := o.Repo.UpdateGitBranch(ctx, workOrderID, result.Output); err != nil {
					wolog.Exception(ctx, "update_git_branch_failed", err)
				}
			case StepCreatePR:
				prURL = result.Output
			}
		}
		return nil
	}()

	defer func() {
		if cleanupErr := sb.Cleanup(ctx); cleanupErr != nil {
			wolog.Warning(ctx, "sandbox_cleanup_failed", "error", cleanupErr.Error())
		}
	}()

	if runErr != nil {
		_ = o.Repo.SaveStepHistory(ctx, workOrderID, history)
		return o.fail(ctx, workOrderID, runErr)
	}

	branch, _ := sb.GetGitBranchName(ctx)
	commitCount := gitinspect.CommitCount(sb.WorkingDirectory(), branch, "main")
	filesChanged := gitinspect.FilesChanged(sb.WorkingDirectory(), branch, "main")

	update := staterepo.StatusUpdate{
		GitCommitCount:  &commitCount,
		GitFilesChanged: &filesChanged,
	}
	if prURL != "" {
		update.GitHubPullRequestURL = &prURL
	}
	if err := o.Repo.UpdateStatus(ctx, workOrderID, staterepo.StatusCompleted, update); err != nil {
		return err
	}
	if err := o.Repo.SaveStepHistory(ctx, workOrderID, history); err != nil {
		wolog.Exception(ctx, "step_history_save_failed", err)
	}

	wolog.Info(ctx, "workflow_completed")
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, workOrderID string, err error) error {
	wolog.Exception(ctx, "workflow_failed", err)
	msg := err.Error()
	if updateErr := o.Repo.UpdateStatus(ctx, workOrderID, staterepo.StatusFailed, staterepo.StatusUpdate{ErrorMessage: &msg}); updateErr != nil {
		wolog.Exception(ctx, "update_status_failed", updateErr)
	}
	return err
}
