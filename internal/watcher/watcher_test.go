package watcher_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentworkd/orchestrator/internal/watcher"
)

func TestWatcherDebouncesMultipleWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deploy.md")
	require.NoError(t, os.WriteFile(path, []byte("test"), 0644))

	w, err := watcher.New(watcher.Config{Dir: dir, DebounceDur: 50 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start(context.Background())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("test%d", i)), 0644))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-onChange:
	case <-time.After(300 * time.Millisecond):
		t.Fatal("expected notification but got timeout")
	}

	select {
	case <-onChange:
		t.Fatal("unexpected second notification")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcherNotifiesOnNewCommandFile(t *testing.T) {
	dir := t.TempDir()

	w, err := watcher.New(watcher.Config{Dir: dir, DebounceDur: 50 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "review.md"), []byte("do a review"), 0644))

	select {
	case <-onChange:
	case <-time.After(300 * time.Millisecond):
		t.Fatal("expected notification for new command file")
	}
}

func TestWatcherStop(t *testing.T) {
	dir := t.TempDir()
	w, err := watcher.New(watcher.Config{Dir: dir, DebounceDur: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = w.Start(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		assert.NoError(t, w.Stop())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop() timed out - possible deadlock")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := watcher.DefaultConfig("/tmp/commands")
	assert.Equal(t, "/tmp/commands", cfg.Dir)
	assert.Equal(t, 250*time.Millisecond, cfg.DebounceDur)
}
