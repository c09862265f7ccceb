package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/agentworkd/orchestrator/internal/woerrors"
)

// CloneSandbox runs a work order against a fresh, standalone clone of
// the repository under the temp base.
type CloneSandbox struct {
	cfg Config
	dir string
}

var _ Sandbox = (*CloneSandbox)(nil)

func (s *CloneSandbox) WorkingDirectory() string { return s.dir }

func (s *CloneSandbox) Setup(ctx context.Context) error {
	s.dir = filepath.Join(s.cfg.TempBase, s.cfg.SandboxIdentifier)
	if err := os.MkdirAll(filepath.Dir(s.dir), 0o755); err != nil {
		return &woerrors.SandboxSetupError{Reason: "creating clone parent directory", Err: err}
	}

	cloneCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	cmd := exec.CommandContext(cloneCtx, "git", "clone", s.cfg.RepositoryURL, s.dir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &woerrors.SandboxSetupError{Reason: fmt.Sprintf("git clone failed: %s", string(out)), Err: err}
	}
	return nil
}

func (s *CloneSandbox) ExecuteCommand(ctx context.Context, command string, timeout time.Duration) (CommandResult, error) {
	return runShellCommand(ctx, s.dir, command, timeout)
}

func (s *CloneSandbox) GetGitBranchName(ctx context.Context) (string, error) {
	return currentBranch(ctx, s.dir)
}

func (s *CloneSandbox) Cleanup(ctx context.Context) error {
	if s.dir == "" {
		return nil
	}
	return os.RemoveAll(s.dir)
}
