// Package workflow implements the work-order step operations and the
// orchestrator that schedules them against a sandbox.
package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/agentworkd/orchestrator/internal/cliexec"
	"github.com/agentworkd/orchestrator/internal/staterepo"
	"github.com/agentworkd/orchestrator/internal/woerrors"
)

// Step names recognized by the orchestrator. prp-review is the only
// review step this core supports; a plain "review" key, and any
// resolution-retry machinery built around it, is deliberately not
// implemented.
const (
	StepCreateBranch = "create-branch"
	StepPlanning     = "planning"
	StepExecute      = "execute"
	StepCommit       = "commit"
	StepCreatePR     = "create-pr"
	StepPRPReview    = "prp-review"
)

// Agent names identify which role executed a step, recorded on every
// StepExecutionResult. Each step always runs under the same name; this
// is not configurable per work order.
const (
	AgentNameBranchCreator = "BranchCreator"
	AgentNamePlanner       = "Planner"
	AgentNameImplementor   = "Implementor"
	AgentNameCommitter     = "Committer"
	AgentNamePrCreator     = "PrCreator"
	AgentNameReviewer      = "Reviewer"
)

// DefaultSelectedCommands is the order executed when a work order does
// not specify its own selection.
var DefaultSelectedCommands = []string{StepCreateBranch, StepPlanning, StepExecute, StepCommit, StepCreatePR}

// Executor runs one CLI agent invocation and returns its result.
type Executor interface {
	Execute(ctx context.Context, argv []string, opts cliexec.ExecuteOptions) cliexec.Result
}

// ExecutorFunc adapts a plain function to Executor.
type ExecutorFunc func(ctx context.Context, argv []string, opts cliexec.ExecuteOptions) cliexec.Result

func (f ExecutorFunc) Execute(ctx context.Context, argv []string, opts cliexec.ExecuteOptions) cliexec.Result {
	return f(ctx, argv, opts)
}

// CommandLoader resolves a step's command name to a file path.
type CommandLoader interface {
	Resolve(name string) (string, error)
}

// BuildOptions configures command assembly shared by every step.
type BuildOptions struct {
	CLIPath         string
	Model           string
	Verbose         bool
	MaxTurns        int
	SkipPermissions bool
	Timeout         time.Duration
	ArtifactsDir    string
}

// stepFunc is the common shape of every step operation.
type stepFunc func(ctx context.Context, exec Executor, loader CommandLoader, workOrderID, workingDir string, stepCtx map[string]string, opts BuildOptions) staterepo.StepExecutionResult

// steps maps a recognized step key to its implementation.
var steps = map[string]stepFunc{
	StepCreateBranch: runCreateBranch,
	StepPlanning:     runPlanning,
	StepExecute:      runExecute,
	StepCommit:       runCommit,
	StepCreatePR:     runCreatePR,
	StepPRPReview:    runPRPReview,
}

// Lookup resolves a step key to its function, or ok=false if
// unrecognized.
func Lookup(stepKey string) (stepFunc, bool) {
	fn, ok := steps[stepKey]
	return fn, ok
}

// runStep is the common invoke-and-record pattern shared by every
// step: build the command, execute it, and translate the cliexec
// result into a StepExecutionResult. Any panic-worthy precondition
// (missing required context) is surfaced as a failed result rather
// than propagated, per the step contract.
func runStep(ctx context.Context, exec Executor, loader CommandLoader, name, agentName, workingDir string, args []string, opts BuildOptions) staterepo.StepExecutionResult {
	start := time.Now()

	commandFile, err := loader.Resolve(name)
	if err != nil {
		return failedStep(name, agentName, err, start)
	}

	argv, prompt, err := cliexec.BuildCommand(commandFile, args, cliexec.Options{
		CLIPath:         opts.CLIPath,
		Model:           opts.Model,
		Verbose:         opts.Verbose,
		MaxTurns:        opts.MaxTurns,
		SkipPermissions: opts.SkipPermissions,
	})
	if err != nil {
		return failedStep(name, agentName, err, start)
	}

	result := exec.Execute(ctx, argv, cliexec.ExecuteOptions{
		WorkingDirectory: workingDir,
		Timeout:          opts.Timeout,
		PromptText:       prompt,
		ArtifactsDir:     opts.ArtifactsDir,
	})

	output := strings.TrimSpace(result.ResultText)
	if output == "" {
		output = result.Stdout
	}

	var errMsg *string
	if !result.Success {
		msg := result.ErrorMessage
		errMsg = &msg
	}
	var sessionID *string
	if result.SessionID != "" {
		sessionID = &result.SessionID
	}

	return staterepo.StepExecutionResult{
		Step:            name,
		AgentName:       agentName,
		Success:         result.Success,
		Output:          output,
		ErrorMessage:    errMsg,
		DurationSeconds: time.Since(start).Seconds(),
		SessionID:       sessionID,
		Timestamp:       time.Now().UTC(),
	}
}

func failedStep(name, agentName string, err error, start time.Time) staterepo.StepExecutionResult {
	msg := err.Error()
	return staterepo.StepExecutionResult{
		Step:            name,
		AgentName:       agentName,
		Success:         false,
		ErrorMessage:    &msg,
		DurationSeconds: time.Since(start).Seconds(),
		Timestamp:       time.Now().UTC(),
	}
}

func runCreateBranch(ctx context.Context, exec Executor, loader CommandLoader, workOrderID, workingDir string, stepCtx map[string]string, opts BuildOptions) staterepo.StepExecutionResult {
	return runStep(ctx, exec, loader, StepCreateBranch, AgentNameBranchCreator, workingDir, []string{stepCtx["user_request"]}, opts)
}

func runPlanning(ctx context.Context, exec Executor, loader CommandLoader, workOrderID, workingDir string, stepCtx map[string]string, opts BuildOptions) staterepo.StepExecutionResult {
	return runStep(ctx, exec, loader, StepPlanning, AgentNamePlanner, workingDir, []string{stepCtx["user_request"], stepCtx["github_issue_number"]}, opts)
}

func runExecute(ctx context.Context, exec Executor, loader CommandLoader, workOrderID, workingDir string, stepCtx map[string]string, opts BuildOptions) staterepo.StepExecutionResult {
	plan, ok := stepCtx[StepPlanning]
	if !ok || plan == "" {
		return failedStep(StepExecute, AgentNameImplementor, &woerrors.WorkflowExecutionError{Message: "execute step requires a completed planning step"}, time.Now())
	}
	return runStep(ctx, exec, loader, StepExecute, AgentNameImplementor, workingDir, []string{plan}, opts)
}

func runCommit(ctx context.Context, exec Executor, loader CommandLoader, workOrderID, workingDir string, stepCtx map[string]string, opts BuildOptions) staterepo.StepExecutionResult {
	return runStep(ctx, exec, loader, StepCommit, AgentNameCommitter, workingDir, nil, opts)
}

func runCreatePR(ctx context.Context, exec Executor, loader CommandLoader, workOrderID, workingDir string, stepCtx map[string]string, opts BuildOptions) staterepo.StepExecutionResult {
	branch, ok := stepCtx[StepCreateBranch]
	if !ok || branch == "" {
		return failedStep(StepCreatePR, AgentNamePrCreator, &woerrors.WorkflowExecutionError{Message: "create-pr step requires a branch from create-branch"}, time.Now())
	}
	return runStep(ctx, exec, loader, StepCreatePR, AgentNamePrCreator, workingDir, []string{branch, stepCtx[StepPlanning]}, opts)
}

func runPRPReview(ctx context.Context, exec Executor, loader CommandLoader, workOrderID, workingDir string, stepCtx map[string]string, opts BuildOptions) staterepo.StepExecutionResult {
	return runStep(ctx, exec, loader, StepPRPReview, AgentNameReviewer, workingDir, []string{stepCtx[StepPlanning]}, opts)
}
