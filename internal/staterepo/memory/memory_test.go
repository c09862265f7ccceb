package memory

import (
	"context"
	"testing"
	"time"

	"github.com/agentworkd/orchestrator/internal/staterepo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGetRoundTrip(t *testing.T) {
	r := New()
	ctx := context.Background()

	wo := staterepo.WorkOrder{WorkOrderID: "wo-1", RepositoryURL: "https://github.com/example/repo"}
	meta := staterepo.Metadata{SandboxType: staterepo.SandboxWorktree, Status: staterepo.StatusPending}

	require.NoError(t, r.Create(ctx, wo, meta))

	rec, ok, err := r.Get(ctx, "wo-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "wo-1", rec.WorkOrder.WorkOrderID)
	assert.Equal(t, staterepo.StatusPending, rec.Metadata.Status)
	assert.False(t, rec.Metadata.CreatedAt.IsZero())
}

func TestCreateDuplicateFails(t *testing.T) {
	r := New()
	ctx := context.Background()
	wo := staterepo.WorkOrder{WorkOrderID: "wo-1"}
	require.NoError(t, r.Create(ctx, wo, staterepo.Metadata{}))
	err := r.Create(ctx, wo, staterepo.Metadata{})
	assert.Error(t, err)
}

func TestUpdateStatusBumpsUpdatedAtAndMerges(t *testing.T) {
	r := New()
	ctx := context.Background()
	wo := staterepo.WorkOrder{WorkOrderID: "wo-1"}
	require.NoError(t, r.Create(ctx, wo, staterepo.Metadata{Status: staterepo.StatusPending}))

	rec, _, _ := r.Get(ctx, "wo-1")
	firstUpdatedAt := rec.Metadata.UpdatedAt

	time.Sleep(time.Millisecond)
	msg := "boom"
	require.NoError(t, r.UpdateStatus(ctx, "wo-1", staterepo.StatusFailed, staterepo.StatusUpdate{ErrorMessage: &msg}))

	rec, _, _ = r.Get(ctx, "wo-1")
	assert.Equal(t, staterepo.StatusFailed, rec.Metadata.Status)
	require.NotNil(t, rec.Metadata.ErrorMessage)
	assert.Equal(t, "boom", *rec.Metadata.ErrorMessage)
	assert.True(t, rec.Metadata.UpdatedAt.After(firstUpdatedAt))
}

func TestUpdateStatusMissingIDIsNoop(t *testing.T) {
	r := New()
	err := r.UpdateStatus(context.Background(), "wo-nope", staterepo.StatusFailed, staterepo.StatusUpdate{})
	assert.NoError(t, err)
}

func TestListFiltersByStatusOrderedByCreatedAtDesc(t *testing.T) {
	r := New()
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, staterepo.WorkOrder{WorkOrderID: "wo-1"}, staterepo.Metadata{Status: staterepo.StatusPending}))
	time.Sleep(time.Millisecond)
	require.NoError(t, r.Create(ctx, staterepo.WorkOrder{WorkOrderID: "wo-2"}, staterepo.Metadata{Status: staterepo.StatusRunning}))
	time.Sleep(time.Millisecond)
	require.NoError(t, r.Create(ctx, staterepo.WorkOrder{WorkOrderID: "wo-3"}, staterepo.Metadata{Status: staterepo.StatusPending}))

	all, err := r.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "wo-3", all[0].WorkOrder.WorkOrderID)
	assert.Equal(t, "wo-1", all[2].WorkOrder.WorkOrderID)

	pending := staterepo.StatusPending
	filtered, err := r.List(ctx, &pending)
	require.NoError(t, err)
	assert.Len(t, filtered, 2)
}

func TestStepHistoryFreshSave(t *testing.T) {
	r := New()
	ctx := context.Background()

	_, ok, err := r.GetStepHistory(ctx, "wo-1")
	require.NoError(t, err)
	assert.False(t, ok)

	steps := []staterepo.StepExecutionResult{{Step: "create-branch", Success: true, Output: "feat/foo"}}
	require.NoError(t, r.SaveStepHistory(ctx, "wo-1", steps))

	h, ok, err := r.GetStepHistory(ctx, "wo-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, h.Steps, 1)

	// Fresh save replaces the whole vector.
	steps2 := append(steps, staterepo.StepExecutionResult{Step: "planning", Success: true, Output: "specs/foo.md"})
	require.NoError(t, r.SaveStepHistory(ctx, "wo-1", steps2))

	h, _, _ = r.GetStepHistory(ctx, "wo-1")
	assert.Len(t, h.Steps, 2)
}

func TestUpdateGitBranchAndSessionID(t *testing.T) {
	r := New()
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, staterepo.WorkOrder{WorkOrderID: "wo-1"}, staterepo.Metadata{}))

	require.NoError(t, r.UpdateGitBranch(ctx, "wo-1", "feat/foo"))
	require.NoError(t, r.UpdateSessionID(ctx, "wo-1", "sess-123"))

	rec, _, _ := r.Get(ctx, "wo-1")
	require.NotNil(t, rec.WorkOrder.GitBranchName)
	assert.Equal(t, "feat/foo", *rec.WorkOrder.GitBranchName)
	require.NotNil(t, rec.WorkOrder.AgentSessionID)
	assert.Equal(t, "sess-123", *rec.WorkOrder.AgentSessionID)
}
