package sandbox

import (
	"context"
	"time"

	"github.com/agentworkd/orchestrator/internal/ports"
	"github.com/agentworkd/orchestrator/internal/worktree"
)

// WorktreeSandbox runs a work order inside a git worktree carved out
// of a shared base clone, with its own allocated port range.
type WorktreeSandbox struct {
	cfg    Config
	layout worktree.Layout
	dir    string
}

var _ Sandbox = (*WorktreeSandbox)(nil)

func (s *WorktreeSandbox) WorkingDirectory() string { return s.dir }

func (s *WorktreeSandbox) Setup(ctx context.Context) error {
	s.layout = worktree.Layout{TempBase: s.cfg.TempBase}

	branch := "wo-" + s.cfg.WorkOrderID
	dir, err := worktree.CreateWorktree(ctx, s.layout, s.cfg.RepositoryURL, s.cfg.SandboxIdentifier, branch)
	if err != nil {
		return err
	}
	s.dir = dir

	if _, err := ports.AllocateAndWrite(s.cfg.WorkOrderID, s.dir); err != nil {
		return err
	}
	return nil
}

func (s *WorktreeSandbox) ExecuteCommand(ctx context.Context, command string, timeout time.Duration) (CommandResult, error) {
	return runShellCommand(ctx, s.dir, command, timeout)
}

func (s *WorktreeSandbox) GetGitBranchName(ctx context.Context) (string, error) {
	return currentBranch(ctx, s.dir)
}

func (s *WorktreeSandbox) Cleanup(ctx context.Context) error {
	return worktree.RemoveWorktree(ctx, s.layout, s.cfg.RepositoryURL, s.cfg.SandboxIdentifier)
}
