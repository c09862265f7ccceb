package logbuffer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndGetChronological(t *testing.T) {
	b := New()
	base := time.Now().UTC()

	b.Add("wo-1", "info", "step_started", "planning", base, nil)
	b.Add("wo-1", "info", "step_completed", "planning", base.Add(time.Second), nil)
	b.Add("wo-1", "error", "step_failed", "execute", base.Add(2*time.Second), nil)

	entries := b.Get("wo-1", Filter{})
	require.Len(t, entries, 3)
	assert.Equal(t, "step_started", entries[0].Event)
	assert.Equal(t, "step_completed", entries[1].Event)
	assert.Equal(t, "step_failed", entries[2].Event)
}

func TestGetFiltersByLevelStepSince(t *testing.T) {
	b := New()
	base := time.Now().UTC()
	b.Add("wo-1", "info", "a", "planning", base, nil)
	b.Add("wo-1", "error", "b", "execute", base.Add(time.Second), nil)
	b.Add("wo-1", "info", "c", "execute", base.Add(2*time.Second), nil)

	byLevel := b.Get("wo-1", Filter{Level: "ERROR"})
	require.Len(t, byLevel, 1)
	assert.Equal(t, "b", byLevel[0].Event)

	byStep := b.Get("wo-1", Filter{Step: "execute"})
	require.Len(t, byStep, 2)

	since := b.GetSince("wo-1", base, "", "")
	require.Len(t, since, 2)
}

func TestBoundedCapacityKeepsMostRecent(t *testing.T) {
	b := New()
	base := time.Now().UTC()
	for i := 0; i < Capacity+250; i++ {
		b.Add("wo-1", "info", "tick", "", base.Add(time.Duration(i)*time.Millisecond), nil)
	}

	entries := b.Get("wo-1", Filter{})
	require.Len(t, entries, Capacity)
	// The retained entries must be the most recent Capacity insertions,
	// in insertion order.
	for i := 1; i < len(entries); i++ {
		assert.True(t, entries[i].Timestamp.After(entries[i-1].Timestamp))
	}
}

func TestClearDropsEntriesAndActivity(t *testing.T) {
	b := New()
	b.Add("wo-1", "info", "a", "", time.Now(), nil)
	b.Clear("wo-1")
	assert.Empty(t, b.Get("wo-1", Filter{}))
}

func TestCleanupOldEvictsIdleWorkOrders(t *testing.T) {
	b := New()
	old := time.Now().Add(-2 * time.Hour)
	b.Add("wo-old", "info", "a", "", old, nil)
	b.Add("wo-fresh", "info", "a", "", time.Now(), nil)

	removed := b.CleanupOld(time.Hour)
	assert.Equal(t, 1, removed)
	assert.Empty(t, b.Get("wo-old", Filter{}))
	assert.NotEmpty(t, b.Get("wo-fresh", Filter{}))
}
