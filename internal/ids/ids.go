// Package ids provides work-order id generation, GitHub URL parsing, and
// repository hashing for the orchestration core.
package ids

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/agentworkd/orchestrator/internal/woerrors"
)

const idHexLen = 8

// NewWorkOrderID returns a new opaque work-order identifier of the form
// "wo-" followed by 8 cryptographically-random hex characters.
func NewWorkOrderID() string {
	return "wo-" + randomHex(idHexLen)
}

// SandboxIdentifier derives the sandbox directory name for a work order.
func SandboxIdentifier(workOrderID string) string {
	return "sandbox-" + workOrderID
}

func randomHex(n int) string {
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read on the standard reader does not fail in
		// practice. If it ever does, panic with a clear message rather
		// than silently returning a non-random id.
		panic(fmt.Sprintf("ids: crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(buf)[:n]
}

var (
	httpsPattern = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/]+?)(\.git)?/?$`)
	sshPattern   = regexp.MustCompile(`^git@github\.com:([^/]+)/([^/]+?)(\.git)?$`)
	barePattern  = regexp.MustCompile(`^([A-Za-z0-9_.\-]+)/([A-Za-z0-9_.\-]+)$`)
)

// ParseGitHubURL accepts "https://github.com/OWNER/REPO[.git]",
// "git@github.com:OWNER/REPO", or a bare "OWNER/REPO" and returns the
// owner and repository name. Any other shape is a validation error;
// unrecognized formats are never silently coerced.
func ParseGitHubURL(url string) (owner, repo string, err error) {
	url = strings.TrimSpace(url)

	if m := httpsPattern.FindStringSubmatch(url); m != nil {
		return m[1], m[2], nil
	}
	if m := sshPattern.FindStringSubmatch(url); m != nil {
		return m[1], m[2], nil
	}
	if m := barePattern.FindStringSubmatch(url); m != nil {
		return m[1], m[2], nil
	}

	return "", "", &woerrors.ValidationError{
		Field:   "repository_url",
		Message: fmt.Sprintf("unrecognized GitHub URL format: %q", url),
	}
}

// RepoHash returns the first 8 hex characters of the SHA-256 digest of
// url, used as a stable directory key for the cached base clone.
func RepoHash(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:idHexLen]
}
