// Package githubutil wraps the gh CLI for the operations this core
// needs outside the workflow itself: verifying that a repository URL
// is real and accessible before a work order is accepted.
package githubutil

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"time"

	"github.com/agentworkd/orchestrator/internal/ids"
	"github.com/agentworkd/orchestrator/internal/woerrors"
)

// VerifyResult is the outcome of checking a repository URL.
type VerifyResult struct {
	IsAccessible    bool
	RepositoryName  string
	RepositoryOwner string
	DefaultBranch   string
	ErrorMessage    string
}

// Verifier shells out to the gh CLI to check repository access.
type Verifier struct {
	GHPath  string
	Timeout time.Duration
}

// NewVerifier builds a Verifier using ghPath ("gh" if empty).
func NewVerifier(ghPath string) *Verifier {
	if ghPath == "" {
		ghPath = "gh"
	}
	return &Verifier{GHPath: ghPath, Timeout: 15 * time.Second}
}

type repoViewPayload struct {
	Name  string `json:"name"`
	Owner struct {
		Login string `json:"login"`
	} `json:"owner"`
	DefaultBranchRef struct {
		Name string `json:"name"`
	} `json:"defaultBranchRef"`
}

// VerifyRepository parses repoURL and asks gh whether it exists and
// is accessible, returning a descriptive result either way rather than
// an error for the common "not accessible" case.
func (v *Verifier) VerifyRepository(ctx context.Context, repoURL string) (VerifyResult, error) {
	owner, name, err := ids.ParseGitHubURL(repoURL)
	if err != nil {
		return VerifyResult{IsAccessible: false, ErrorMessage: err.Error()}, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, v.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, v.GHPath, "repo", "view", owner+"/"+name,
		"--json", "name,owner,defaultBranchRef")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return VerifyResult{
			IsAccessible: false,
			ErrorMessage: stderr.String(),
		}, nil
	}

	var payload repoViewPayload
	if err := json.Unmarshal(stdout.Bytes(), &payload); err != nil {
		return VerifyResult{}, &woerrors.GitHubOperationError{Operation: "repo view", Err: err}
	}

	return VerifyResult{
		IsAccessible:    true,
		RepositoryName:  payload.Name,
		RepositoryOwner: payload.Owner.Login,
		DefaultBranch:   payload.DefaultBranchRef.Name,
	}, nil
}
