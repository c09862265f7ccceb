// Package sqlitestore implements staterepo.Repository on top of SQLite
// via the pure-Go ncruces/go-sqlite3 driver. Schema migrations are
// embedded and applied at construction time so a misconfigured or
// missing database path fails at startup rather than on first call.
//
// The core WorkOrder fields map to flat columns; everything else in
// Metadata is folded into a single JSON "metadata" column. This is a
// pragmatic split, not a normalized schema: status is queried and
// indexed often enough to earn its own column, the rest does not.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/agentworkd/orchestrator/internal/staterepo"
	"github.com/agentworkd/orchestrator/internal/woerrors"
)

// Repository is the external relational state repository backend.
type Repository struct {
	db *sql.DB
}

var _ staterepo.Repository = (*Repository)(nil)

// Open opens (creating if necessary) the SQLite database at dsn and
// applies any pending migrations before returning. A bad dsn or a
// migration failure is returned immediately rather than deferred to
// the first repository call.
func Open(dsn string) (*Repository, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &woerrors.StateRepositoryError{Operation: "open", Err: err}
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, &woerrors.StateRepositoryError{Operation: "ping", Err: err}
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, &woerrors.StateRepositoryError{Operation: "migrate", Err: err}
	}
	return &Repository{db: db}, nil
}

// Close releases the underlying database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

// extraMetadata is the shape stored in the metadata JSON column: every
// Metadata field not promoted to its own column.
type extraMetadata struct {
	SandboxType          staterepo.SandboxType `json:"sandbox_type"`
	GitHubIssueNumber    *int                  `json:"github_issue_number,omitempty"`
	GitHubPullRequestURL *string               `json:"github_pull_request_url,omitempty"`
	GitCommitCount       *int                  `json:"git_commit_count,omitempty"`
	GitFilesChanged      *int                  `json:"git_files_changed,omitempty"`
	ErrorMessage         *string               `json:"error_message,omitempty"`
}

func marshalExtra(meta staterepo.Metadata) (string, error) {
	data, err := json.Marshal(extraMetadata{
		SandboxType:          meta.SandboxType,
		GitHubIssueNumber:    meta.GitHubIssueNumber,
		GitHubPullRequestURL: meta.GitHubPullRequestURL,
		GitCommitCount:       meta.GitCommitCount,
		GitFilesChanged:      meta.GitFilesChanged,
		ErrorMessage:         meta.ErrorMessage,
	})
	return string(data), err
}

func unmarshalExtra(raw string) (extraMetadata, error) {
	var extra extraMetadata
	if raw == "" {
		return extra, nil
	}
	err := json.Unmarshal([]byte(raw), &extra)
	return extra, err
}

func (r *Repository) Create(ctx context.Context, wo staterepo.WorkOrder, meta staterepo.Metadata) error {
	now := time.Now().UTC()
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}
	meta.UpdatedAt = now

	extra, err := marshalExtra(meta)
	if err != nil {
		return &woerrors.StateRepositoryError{Operation: "marshal metadata", Err: err}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO work_orders (
			work_order_id, repository_url, sandbox_identifier, git_branch_name, agent_session_id,
			status, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wo.WorkOrderID, wo.RepositoryURL, wo.SandboxIdentifier, wo.GitBranchName, wo.AgentSessionID,
		string(meta.Status), extra, meta.CreatedAt.Unix(), meta.UpdatedAt.Unix(),
	)
	if err != nil {
		return &woerrors.StateRepositoryError{Operation: "create", Err: fmt.Errorf("work order %s: %w", wo.WorkOrderID, err)}
	}
	return nil
}

const selectColumns = `work_order_id, repository_url, sandbox_identifier, git_branch_name, agent_session_id, status, metadata, created_at, updated_at`

func scanRecord(scanner interface{ Scan(...any) error }) (staterepo.Record, error) {
	var (
		rec           staterepo.Record
		status        string
		extraRaw      string
		createdAtUnix int64
		updatedAtUnix int64
	)
	err := scanner.Scan(
		&rec.WorkOrder.WorkOrderID, &rec.WorkOrder.RepositoryURL, &rec.WorkOrder.SandboxIdentifier,
		&rec.WorkOrder.GitBranchName, &rec.WorkOrder.AgentSessionID,
		&status, &extraRaw, &createdAtUnix, &updatedAtUnix,
	)
	if err != nil {
		return staterepo.Record{}, err
	}

	extra, err := unmarshalExtra(extraRaw)
	if err != nil {
		return staterepo.Record{}, err
	}

	rec.Metadata = staterepo.Metadata{
		SandboxType:          extra.SandboxType,
		Status:               staterepo.Status(status),
		CreatedAt:            time.Unix(createdAtUnix, 0).UTC(),
		UpdatedAt:            time.Unix(updatedAtUnix, 0).UTC(),
		GitHubIssueNumber:    extra.GitHubIssueNumber,
		GitHubPullRequestURL: extra.GitHubPullRequestURL,
		GitCommitCount:       extra.GitCommitCount,
		GitFilesChanged:      extra.GitFilesChanged,
		ErrorMessage:         extra.ErrorMessage,
	}
	return rec, nil
}

func (r *Repository) Get(ctx context.Context, id string) (staterepo.Record, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM work_orders WHERE work_order_id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return staterepo.Record{}, false, nil
	}
	if err != nil {
		return staterepo.Record{}, false, &woerrors.StateRepositoryError{Operation: "get", Err: err}
	}
	return rec, true, nil
}

func (r *Repository) List(ctx context.Context, status *staterepo.Status) ([]staterepo.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM work_orders`
	var args []any
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &woerrors.StateRepositoryError{Operation: "list", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []staterepo.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &woerrors.StateRepositoryError{Operation: "scan", Err: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &woerrors.StateRepositoryError{Operation: "list", Err: err}
	}
	return out, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, status staterepo.Status, update staterepo.StatusUpdate) error {
	_, ok, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	row := r.db.QueryRowContext(ctx, `SELECT metadata FROM work_orders WHERE work_order_id = ?`, id)
	var raw string
	if err := row.Scan(&raw); err != nil {
		return &woerrors.StateRepositoryError{Operation: "update status", Err: err}
	}
	extra, err := unmarshalExtra(raw)
	if err != nil {
		return &woerrors.StateRepositoryError{Operation: "update status", Err: err}
	}

	if update.ErrorMessage != nil {
		extra.ErrorMessage = update.ErrorMessage
	}
	if update.GitHubPullRequestURL != nil {
		extra.GitHubPullRequestURL = update.GitHubPullRequestURL
	}
	if update.GitCommitCount != nil {
		extra.GitCommitCount = update.GitCommitCount
	}
	if update.GitFilesChanged != nil {
		extra.GitFilesChanged = update.GitFilesChanged
	}

	newRaw, err := json.Marshal(extra)
	if err != nil {
		return &woerrors.StateRepositoryError{Operation: "marshal metadata", Err: err}
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE work_orders SET status = ?, metadata = ?, updated_at = ? WHERE work_order_id = ?`,
		string(status), string(newRaw), time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return &woerrors.StateRepositoryError{Operation: "update status", Err: err}
	}
	return nil
}

func (r *Repository) UpdateGitBranch(ctx context.Context, id string, branch string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE work_orders SET git_branch_name = ?, updated_at = ? WHERE work_order_id = ?`,
		branch, time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return &woerrors.StateRepositoryError{Operation: "update git branch", Err: err}
	}
	return ignoreIfMissing(result)
}

func (r *Repository) UpdateSessionID(ctx context.Context, id string, sessionID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE work_orders SET agent_session_id = ?, updated_at = ? WHERE work_order_id = ?`,
		sessionID, time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return &woerrors.StateRepositoryError{Operation: "update session id", Err: err}
	}
	return ignoreIfMissing(result)
}

func ignoreIfMissing(result sql.Result) error {
	// A zero-row update against a missing id is not an error: callers
	// treat a missing work order as a silent no-op, not a failure.
	_, err := result.RowsAffected()
	return err
}

// SaveStepHistory replaces the stored step vector: it deletes every
// existing row for id and bulk-inserts steps inside one transaction,
// matching the fresh-save semantics the other backends provide.
func (r *Repository) SaveStepHistory(ctx context.Context, id string, steps []staterepo.StepExecutionResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &woerrors.StateRepositoryError{Operation: "save step history", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM work_order_steps WHERE work_order_id = ?`, id); err != nil {
		return &woerrors.StateRepositoryError{Operation: "save step history", Err: err}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO work_order_steps (
			work_order_id, step, agent_name, success, output, error_message,
			duration_seconds, session_id, executed_at, step_order
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return &woerrors.StateRepositoryError{Operation: "save step history", Err: err}
	}
	defer func() { _ = stmt.Close() }()

	for i, step := range steps {
		executedAt := step.Timestamp
		if executedAt.IsZero() {
			executedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			id, step.Step, step.AgentName, step.Success, step.Output, step.ErrorMessage,
			step.DurationSeconds, step.SessionID, executedAt.Unix(), i,
		); err != nil {
			return &woerrors.StateRepositoryError{Operation: "save step history", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &woerrors.StateRepositoryError{Operation: "save step history", Err: err}
	}
	return nil
}

func (r *Repository) GetStepHistory(ctx context.Context, id string) (staterepo.StepHistory, bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT step, agent_name, success, output, error_message, duration_seconds, session_id, executed_at
		 FROM work_order_steps WHERE work_order_id = ? ORDER BY step_order ASC`, id)
	if err != nil {
		return staterepo.StepHistory{}, false, &woerrors.StateRepositoryError{Operation: "get step history", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var steps []staterepo.StepExecutionResult
	for rows.Next() {
		var (
			s          staterepo.StepExecutionResult
			executedAt int64
		)
		if err := rows.Scan(&s.Step, &s.AgentName, &s.Success, &s.Output, &s.ErrorMessage, &s.DurationSeconds, &s.SessionID, &executedAt); err != nil {
			return staterepo.StepHistory{}, false, &woerrors.StateRepositoryError{Operation: "scan step", Err: err}
		}
		s.Timestamp = time.Unix(executedAt, 0).UTC()
		steps = append(steps, s)
	}
	if err := rows.Err(); err != nil {
		return staterepo.StepHistory{}, false, &woerrors.StateRepositoryError{Operation: "get step history", Err: err}
	}
	if len(steps) == 0 {
		return staterepo.StepHistory{}, false, nil
	}
	return staterepo.StepHistory{WorkOrderID: id, Steps: steps}, true, nil
}
