package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// newLocalOriginRepo creates a bare-ish local repository with one commit
// on main, reachable via a plain filesystem path so CreateWorktree can
// exercise real git commands without network access.
func newLocalOriginRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo := filepath.Join(dir, "origin")
	require.NoError(t, os.MkdirAll(repo, 0o755))

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = repo
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}

	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(repo, "README.md"), []byte("hello"), 0o644))
	run("add", ".")
	run("commit", "-m", "initial commit")

	return repo
}

func TestCreateAndRemoveWorktreeIdempotent(t *testing.T) {
	ctx := context.Background()
	origin := newLocalOriginRepo(t)
	tempBase := t.TempDir()
	layout := Layout{TempBase: tempBase}

	path1, err := CreateWorktree(ctx, layout, origin, "wo-abc12345", "wo-abc12345")
	require.NoError(t, err)
	require.DirExists(t, path1)

	// Second call is idempotent: returns the same path without error.
	path2, err := CreateWorktree(ctx, layout, origin, "wo-abc12345", "wo-abc12345")
	require.NoError(t, err)
	require.Equal(t, path1, path2)

	ok, reason := ValidateWorktree(ctx, layout, origin, State{WorktreePath: path1})
	require.True(t, ok, reason)

	require.NoError(t, RemoveWorktree(ctx, layout, origin, "wo-abc12345"))
	require.NoDirExists(t, path1)

	// Removing again is idempotent.
	require.NoError(t, RemoveWorktree(ctx, layout, origin, "wo-abc12345"))
}

func TestValidateWorktreeDetectsMissingDirectory(t *testing.T) {
	ctx := context.Background()
	origin := newLocalOriginRepo(t)
	layout := Layout{TempBase: t.TempDir()}

	ok, reason := ValidateWorktree(ctx, layout, origin, State{WorktreePath: filepath.Join(layout.TempBase, "nope")})
	require.False(t, ok)
	require.NotEmpty(t, reason)
}

func TestValidateWorktreeDetectsEmptyPath(t *testing.T) {
	ctx := context.Background()
	origin := newLocalOriginRepo(t)
	layout := Layout{TempBase: t.TempDir()}

	ok, reason := ValidateWorktree(ctx, layout, origin, State{})
	require.False(t, ok)
	require.Equal(t, "state has no worktree_path", reason)
}
