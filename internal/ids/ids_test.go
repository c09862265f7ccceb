package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNewWorkOrderIDFormat(t *testing.T) {
	id := NewWorkOrderID()
	require.True(t, len(id) == len("wo-")+8)
	assert.Regexp(t, `^wo-[0-9a-f]{8}$`, id)
}

func TestNewWorkOrderIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 5000; i++ {
		id := NewWorkOrderID()
		require.False(t, seen[id], "collision at iteration %d: %s", i, id)
		seen[id] = true
	}
}

func TestSandboxIdentifier(t *testing.T) {
	assert.Equal(t, "sandbox-wo-abc12345", SandboxIdentifier("wo-abc12345"))
}

func TestParseGitHubURL(t *testing.T) {
	cases := []struct {
		url           string
		owner, repo   string
		expectFailure bool
	}{
		{url: "https://github.com/example/repo", owner: "example", repo: "repo"},
		{url: "https://github.com/example/repo.git", owner: "example", repo: "repo"},
		{url: "https://github.com/example/repo/", owner: "example", repo: "repo"},
		{url: "git@github.com:example/repo.git", owner: "example", repo: "repo"},
		{url: "git@github.com:example/repo", owner: "example", repo: "repo"},
		{url: "example/repo", owner: "example", repo: "repo"},
		{url: "not a url at all", expectFailure: true},
		{url: "ftp://github.com/example/repo", expectFailure: true},
		{url: "", expectFailure: true},
	}

	for _, c := range cases {
		owner, repo, err := ParseGitHubURL(c.url)
		if c.expectFailure {
			assert.Error(t, err, c.url)
			continue
		}
		require.NoError(t, err, c.url)
		assert.Equal(t, c.owner, owner, c.url)
		assert.Equal(t, c.repo, repo, c.url)
	}
}

func TestRepoHashDeterministicAndShape(t *testing.T) {
	h1 := RepoHash("https://github.com/example/repo")
	h2 := RepoHash("https://github.com/example/repo")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 8)

	h3 := RepoHash("https://github.com/example/other")
	assert.NotEqual(t, h1, h3)
}

func TestRepoHashPropertyRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		url := rapid.String().Draw(t, "url")
		h1 := RepoHash(url)
		h2 := RepoHash(url)
		if h1 != h2 {
			t.Fatalf("repo hash not deterministic for %q: %s != %s", url, h1, h2)
		}
		if len(h1) != 8 {
			t.Fatalf("repo hash length != 8 for %q: %s", url, h1)
		}
	})
}
