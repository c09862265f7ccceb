// Package worktree manages the two-tier base-clone-plus-worktree layout
// used by the worktree sandbox backend: a cached base clone per
// repository URL, and one Git worktree per work order checked out from
// it.
package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentworkd/orchestrator/internal/ids"
	"github.com/agentworkd/orchestrator/internal/woerrors"
)

const gitCommandTimeout = 30 * time.Second

// Layout resolves the on-disk paths for a repository's base clone and a
// work order's worktree under a temp base directory.
type Layout struct {
	TempBase string
}

// BaseRepoPath returns "<tempBase>/repos/<repo_hash>/main".
func (l Layout) BaseRepoPath(repoURL string) string {
	return filepath.Join(l.TempBase, "repos", ids.RepoHash(repoURL), "main")
}

// WorktreePath returns "<tempBase>/repos/<repo_hash>/trees/<sandbox_identifier>".
// The leaf directory is named by the sandbox identifier, not the bare
// work-order id, so it lines up with what the state repository records
// and what reconciliation compares against.
func (l Layout) WorktreePath(repoURL, sandboxIdentifier string) string {
	return filepath.Join(l.TempBase, "repos", ids.RepoHash(repoURL), "trees", sandboxIdentifier)
}

func runGit(ctx context.Context, dir string, args ...string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, gitCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// EnsureBaseRepository makes sure the cached base clone for repoURL
// exists, fetching if it already does and cloning it fresh otherwise.
// Fetch failures are reported via onFetchWarning (which may be nil) but
// are non-fatal; clone failures surface a SandboxSetupError.
func EnsureBaseRepository(ctx context.Context, layout Layout, repoURL string, onFetchWarning func(error)) error {
	base := layout.BaseRepoPath(repoURL)

	if _, statErr := os.Stat(base); statErr == nil {
		_, stderr, gitErr := runGit(ctx, base, "fetch", "origin")
		if gitErr != nil && onFetchWarning != nil {
			onFetchWarning(&woerrors.SandboxSetupError{Reason: "git fetch origin: " + strings.TrimSpace(stderr), Err: gitErr})
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return &woerrors.SandboxSetupError{Reason: "creating base repo parent directory", Err: err}
	}

	_, stderr, gitErr := runGit(ctx, filepath.Dir(base), "clone", repoURL, "main")
	if gitErr != nil {
		return &woerrors.SandboxSetupError{Reason: "git clone: " + strings.TrimSpace(stderr), Err: gitErr}
	}
	return nil
}

// CreateWorktree ensures the base repository exists, then adds a
// worktree for sandboxIdentifier rooted at branch. If the worktree
// directory already exists, it is returned idempotently without
// re-running git. If branch creation fails because the branch already
// exists, the worktree is retried without -b against the existing
// branch.
func CreateWorktree(ctx context.Context, layout Layout, repoURL, sandboxIdentifier, branch string) (string, error) {
	path := layout.WorktreePath(repoURL, sandboxIdentifier)

	if _, statErr := os.Stat(path); statErr == nil {
		return path, nil
	}

	if err := EnsureBaseRepository(ctx, layout, repoURL, nil); err != nil {
		return "", err
	}

	base := layout.BaseRepoPath(repoURL)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", &woerrors.SandboxSetupError{Reason: "creating worktree parent directory", Err: err}
	}

	_, stderr, gitErr := runGit(ctx, base, "worktree", "add", "-b", branch, path, "origin/main")
	if gitErr != nil {
		if strings.Contains(stderr, "already exists") {
			_, stderr2, retryErr := runGit(ctx, base, "worktree", "add", path, branch)
			if retryErr != nil {
				return "", &woerrors.SandboxSetupError{Reason: "git worktree add (retry without -b): " + strings.TrimSpace(stderr2), Err: retryErr}
			}
			return path, nil
		}
		return "", &woerrors.SandboxSetupError{Reason: "git worktree add: " + strings.TrimSpace(stderr), Err: gitErr}
	}
	return path, nil
}

// RemoveWorktree removes the worktree for sandboxIdentifier. Absence
// is not an error. If the `git worktree remove` call fails, it falls
// back to a recursive directory delete so cleanup can never strand
// disk space indefinitely.
func RemoveWorktree(ctx context.Context, layout Layout, repoURL, sandboxIdentifier string) error {
	path := layout.WorktreePath(repoURL, sandboxIdentifier)

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return nil
	}

	base := layout.BaseRepoPath(repoURL)
	_, _, gitErr := runGit(ctx, base, "worktree", "remove", "--force", path)
	if gitErr == nil {
		return nil
	}

	if err := os.RemoveAll(path); err != nil {
		return &woerrors.SandboxSetupError{Reason: "removing worktree directory", Err: err}
	}
	return nil
}

// State is the minimal view of persisted work-order state that
// ValidateWorktree needs: whatever path the state repository recorded
// for the sandbox.
type State struct {
	WorktreePath string
}

// ValidateWorktree performs the three-way consistency check from
// invariant 6: the state has a path, the directory exists on disk, and
// the base repository's `git worktree list` actually tracks it. Any
// violation returns a descriptive reason and ok=false.
func ValidateWorktree(ctx context.Context, layout Layout, repoURL string, st State) (ok bool, reason string) {
	if st.WorktreePath == "" {
		return false, "state has no worktree_path"
	}
	if _, err := os.Stat(st.WorktreePath); err != nil {
		return false, "worktree directory does not exist: " + st.WorktreePath
	}

	base := layout.BaseRepoPath(repoURL)
	stdout, _, err := runGit(ctx, base, "worktree", "list", "--porcelain")
	if err != nil {
		return false, "failed to list worktrees in base repository"
	}
	if !strings.Contains(stdout, st.WorktreePath) {
		return false, "git does not track worktree: " + st.WorktreePath
	}
	return true, ""
}
