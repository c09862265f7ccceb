package filestore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentworkd/orchestrator/internal/staterepo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateWritesJSONDocumentAtomically(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	wo := staterepo.WorkOrder{WorkOrderID: "wo-1", RepositoryURL: "https://github.com/example/repo"}
	require.NoError(t, r.Create(ctx, wo, staterepo.Metadata{Status: staterepo.StatusPending}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	// No stray .tmp files should survive a successful write.
	for _, n := range names {
		assert.False(t, strings.HasSuffix(n, ".tmp"), "leftover temp file: %s", n)
	}
	assert.FileExists(t, filepath.Join(dir, "wo-1.json"))
}

func TestGetReturnsPersistedRecord(t *testing.T) {
	dir := t.TempDir()
	r, _ := New(dir)
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, staterepo.WorkOrder{WorkOrderID: "wo-1"}, staterepo.Metadata{Status: staterepo.StatusPending}))

	rec, ok, err := r.Get(ctx, "wo-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, staterepo.StatusPending, rec.Metadata.Status)

	_, ok, err = r.Get(ctx, "wo-missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStepHistoryRoundTripAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	r, _ := New(dir)
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, staterepo.WorkOrder{WorkOrderID: "wo-1"}, staterepo.Metadata{}))
	steps := []staterepo.StepExecutionResult{
		{Step: "create-branch", Success: true, Output: "feat/foo"},
		{Step: "planning", Success: true, Output: "specs/foo.md"},
	}
	require.NoError(t, r.SaveStepHistory(ctx, "wo-1", steps))

	// Reopen against the same directory as a new process would.
	r2, err := New(dir)
	require.NoError(t, err)
	h, ok, err := r2.GetStepHistory(ctx, "wo-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, h.Steps, 2)
	assert.Equal(t, "planning", h.Steps[1].Step)
}

func TestListReturnsAllAndFiltersByStatus(t *testing.T) {
	dir := t.TempDir()
	r, _ := New(dir)
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, staterepo.WorkOrder{WorkOrderID: "wo-1"}, staterepo.Metadata{Status: staterepo.StatusPending}))
	require.NoError(t, r.Create(ctx, staterepo.WorkOrder{WorkOrderID: "wo-2"}, staterepo.Metadata{Status: staterepo.StatusRunning}))

	all, err := r.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	running := staterepo.StatusRunning
	filtered, err := r.List(ctx, &running)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "wo-2", filtered[0].WorkOrder.WorkOrderID)
}
