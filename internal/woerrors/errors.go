// Package woerrors defines the typed error kinds that flow out of the
// orchestration core, per the error handling contract: every kind is
// surfaced as a distinct Go type so callers can branch on errors.As
// instead of string matching.
package woerrors

import "fmt"

// CommandNotFoundError is raised when a workflow step references a
// command file that does not exist under the commands directory.
type CommandNotFoundError struct {
	CommandName string
	Path        string
}

func (e *CommandNotFoundError) Error() string {
	return fmt.Sprintf("command not found: %s (looked for %s)", e.CommandName, e.Path)
}

// SandboxSetupError wraps a failure creating or preparing a sandbox
// (clone, worktree creation, port allocation).
type SandboxSetupError struct {
	Reason string
	Err    error
}

func (e *SandboxSetupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sandbox setup failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("sandbox setup failed: %s", e.Reason)
}

func (e *SandboxSetupError) Unwrap() error { return e.Err }

// TimeoutError is returned when a subprocess exceeds its configured
// deadline and was killed.
type TimeoutError struct {
	Command string
	Seconds float64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command timed out after %.1fs: %s", e.Seconds, e.Command)
}

// CLIAgentError wraps a failure reported by the external agent CLI
// itself (non-zero exit, is_error result, or error_during_execution).
type CLIAgentError struct {
	Message  string
	ExitCode int
}

func (e *CLIAgentError) Error() string {
	return fmt.Sprintf("agent CLI error (exit %d): %s", e.ExitCode, e.Message)
}

// GitHubOperationError wraps a failure from a `gh` subcommand.
type GitHubOperationError struct {
	Operation string
	Stderr    string
	Err       error
}

func (e *GitHubOperationError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("github operation %q failed: %s", e.Operation, e.Stderr)
	}
	return fmt.Sprintf("github operation %q failed: %v", e.Operation, e.Err)
}

func (e *GitHubOperationError) Unwrap() error { return e.Err }

// WorkflowExecutionError represents an orchestrator-level failure: an
// unknown command key, missing required context, or a step that
// failed. It always carries a human-readable message suitable for the
// work order's error_message field.
type WorkflowExecutionError struct {
	Message string
	Err     error
}

func (e *WorkflowExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *WorkflowExecutionError) Unwrap() error { return e.Err }

// StateRepositoryError wraps a backend I/O failure (file, SQL) at the
// operation site.
type StateRepositoryError struct {
	Operation string
	Err       error
}

func (e *StateRepositoryError) Error() string {
	return fmt.Sprintf("state repository: %s: %v", e.Operation, e.Err)
}

func (e *StateRepositoryError) Unwrap() error { return e.Err }

// ValidationError signals malformed caller input (e.g. an
// unrecognized repository URL format) that must not be silently
// coerced.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}
