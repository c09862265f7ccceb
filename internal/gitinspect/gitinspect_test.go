package gitinspect

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newRepoWithBranch(t *testing.T) (repo, branch string) {
	t.Helper()
	repo = t.TempDir()

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = repo
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}

	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(repo, "a.txt"), []byte("a"), 0o644))
	run("add", ".")
	run("commit", "-m", "first")
	run("remote", "add", "origin", repo)
	run("fetch", "origin")

	run("checkout", "-b", "feature/foo")
	require.NoError(t, os.WriteFile(filepath.Join(repo, "b.txt"), []byte("b"), 0o644))
	run("add", ".")
	run("commit", "-m", "second commit\n\nbody text")

	run("fetch", "origin")
	return repo, "feature/foo"
}

func TestCommitCountAndFilesChanged(t *testing.T) {
	repo, branch := newRepoWithBranch(t)

	require.Equal(t, 1, CommitCount(repo, branch, "main"))
	require.Equal(t, 1, FilesChanged(repo, branch, "main"))
}

func TestLatestCommitMessage(t *testing.T) {
	repo, branch := newRepoWithBranch(t)
	msg := LatestCommitMessage(repo, branch)
	require.NotNil(t, msg)
	require.Contains(t, *msg, "second commit")
}

func TestCurrentBranch(t *testing.T) {
	repo, branch := newRepoWithBranch(t)
	current := CurrentBranch(repo)
	require.NotNil(t, current)
	require.Equal(t, branch, *current)
}

func TestSafeDefaultsOnFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")

	require.Equal(t, 0, CommitCount(missing, "feature", "main"))
	require.Equal(t, 0, FilesChanged(missing, "feature", "main"))
	require.Nil(t, LatestCommitMessage(missing, "feature"))
	require.Nil(t, CurrentBranch(missing))
}
