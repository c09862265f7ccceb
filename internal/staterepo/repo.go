package staterepo

import "context"

// Repository is the abstract state repository interface. Every backend
// implements it identically; callers compose against the interface so
// the backend can be swapped via configuration with no changes
// upstream. All methods take a context.Context so call sites are
// uniform regardless of whether a given backend's operations actually
// suspend on I/O.
type Repository interface {
	// Create inserts a new record. It is a programmer error to call it
	// with an id that already exists; implementations return a
	// *woerrors.StateRepositoryError wrapping that condition rather than
	// silently overwriting.
	Create(ctx context.Context, wo WorkOrder, meta Metadata) error

	// Get returns the record for id, or ok=false if it does not exist.
	Get(ctx context.Context, id string) (Record, bool, error)

	// List returns all records, optionally filtered by status, ordered
	// by CreatedAt descending where the backend supports ordering.
	List(ctx context.Context, status *Status) ([]Record, error)

	// UpdateStatus sets status, bumps UpdatedAt, and merges any
	// non-nil fields from update. A missing id is a no-op that returns
	// without error; no warning is logged for it.
	UpdateStatus(ctx context.Context, id string, status Status, update StatusUpdate) error

	// UpdateGitBranch updates the core state's git branch name and
	// bumps UpdatedAt.
	UpdateGitBranch(ctx context.Context, id string, branch string) error

	// UpdateSessionID updates the core state's agent session id and
	// bumps UpdatedAt.
	UpdateSessionID(ctx context.Context, id string, sessionID string) error

	// SaveStepHistory persists the entire step vector, replacing
	// whatever was previously stored (fresh-save pattern).
	SaveStepHistory(ctx context.Context, id string, steps []StepExecutionResult) error

	// GetStepHistory returns the stored history, or ok=false if none
	// has been saved yet.
	GetStepHistory(ctx context.Context, id string) (StepHistory, bool, error)
}
