// Package staterepo defines the state repository abstraction: the
// persisted identity and metadata of a work order, its step history,
// and the interface every backend (in-memory, file-per-id, external
// relational) must implement identically.
package staterepo

import "time"

// Status is a work order's lifecycle stage.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// SandboxType names a sandbox backend. E2B and Dagger are reserved
// placeholders that the sandbox factory must reject with "not
// implemented".
type SandboxType string

const (
	SandboxClone    SandboxType = "clone"
	SandboxWorktree SandboxType = "worktree"
	SandboxE2B      SandboxType = "e2b"
	SandboxDagger   SandboxType = "dagger"
)

// WorkOrder is the minimal persisted identity of a work order.
type WorkOrder struct {
	WorkOrderID       string
	RepositoryURL     string
	SandboxIdentifier string
	GitBranchName     *string
	AgentSessionID    *string
}

// Metadata is the denormalized operational state stored alongside a
// WorkOrder.
type Metadata struct {
	SandboxType          SandboxType
	Status               Status
	CreatedAt            time.Time
	UpdatedAt            time.Time
	GitHubIssueNumber    *int
	GitHubPullRequestURL *string
	GitCommitCount       *int
	GitFilesChanged      *int
	ErrorMessage         *string
}

// Record pairs a WorkOrder with its Metadata, the shape returned by
// Get and List.
type Record struct {
	WorkOrder WorkOrder
	Metadata  Metadata
}

// StepExecutionResult is one step attempt.
type StepExecutionResult struct {
	Step            string
	AgentName       string
	Success         bool
	Output          string
	ErrorMessage    *string
	DurationSeconds float64
	SessionID       *string
	Timestamp       time.Time
}

// StepHistory is the ordered, work-order-scoped sequence of step
// attempts. Insertion order equals execution order.
type StepHistory struct {
	WorkOrderID string
	Steps       []StepExecutionResult
}

// StatusUpdate carries the optional extra fields update_status may
// merge alongside the status transition itself. Nil pointers leave the
// corresponding field untouched.
type StatusUpdate struct {
	ErrorMessage         *string
	GitHubPullRequestURL *string
	GitCommitCount       *int
	GitFilesChanged      *int
}

// NextStep derives the step key to execute next given the ordered
// selected command sequence and the current tail of history: if the
// tail failed, retry that step; otherwise advance by one; once past
// the end, the workflow is complete (ok=false).
func NextStep(selected []string, history []StepExecutionResult) (step string, ok bool) {
	if len(history) == 0 {
		if len(selected) == 0 {
			return "", false
		}
		return selected[0], true
	}

	tail := history[len(history)-1]
	if !tail.Success {
		return tail.Step, true
	}

	nextIndex := len(history)
	if nextIndex >= len(selected) {
		return "", false
	}
	return selected[nextIndex], true
}
