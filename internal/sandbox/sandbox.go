// Package sandbox provides the polymorphic sandbox abstraction a
// workflow run executes inside: setup, command execution, branch
// lookup, and cleanup, backed by either a plain git clone or a git
// worktree.
package sandbox

import (
	"context"
	"time"

	"github.com/agentworkd/orchestrator/internal/staterepo"
)

// Sandbox is the capability set every backend implements.
type Sandbox interface {
	Setup(ctx context.Context) error
	ExecuteCommand(ctx context.Context, command string, timeout time.Duration) (CommandResult, error)
	GetGitBranchName(ctx context.Context) (string, error)
	Cleanup(ctx context.Context) error
	WorkingDirectory() string
}

// CommandResult is the outcome of one ExecuteCommand call.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Config describes the repository and identity a sandbox is built
// for. SandboxIdentifier, not WorkOrderID, names the sandbox's
// directory on disk; the two are related but distinct (see
// ids.SandboxIdentifier).
type Config struct {
	WorkOrderID       string
	SandboxIdentifier string
	RepositoryURL     string
	TempBase          string
}

// New builds the sandbox backend named by kind. SandboxE2B and
// SandboxDagger are reserved placeholders and always fail fast with a
// "not implemented" error, per the contract that unimplemented backend
// types must never be silently substituted.
func New(kind staterepo.SandboxType, cfg Config) (Sandbox, error) {
	switch kind {
	case staterepo.SandboxClone:
		return &CloneSandbox{cfg: cfg}, nil
	case staterepo.SandboxWorktree:
		return &WorktreeSandbox{cfg: cfg}, nil
	case staterepo.SandboxE2B, staterepo.SandboxDagger:
		return nil, notImplementedError(kind)
	default:
		return nil, notImplementedError(kind)
	}
}
