// Package logbuffer implements the process-wide, per-work-order bounded
// log ring consumed by the SSE streamer. Each work order gets its own
// fixed-capacity FIFO of structured entries; entries beyond capacity
// evict the oldest first, and ids idle for longer than a TTL are swept
// away by a background cleanup loop.
package logbuffer

import (
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Capacity is the maximum number of entries retained per work order.
const Capacity = 1000

// Entry is one structured log record. Fields carries arbitrary
// caller-supplied key-value data beyond the fixed columns.
type Entry struct {
	WorkOrderID string
	Level       string
	Event       string
	Step        string
	Timestamp   time.Time
	Fields      map[string]any
}

// ring is a fixed-capacity FIFO of entries, backed by a slice used as a
// circular buffer, mirroring the shape of a bounded output buffer: a
// start index, a count, and in-place overwrite once full.
type ring struct {
	entries []Entry
	start   int
	count   int
}

func newRing(capacity int) *ring {
	return &ring{entries: make([]Entry, capacity)}
}

func (r *ring) push(e Entry) {
	capacity := len(r.entries)
	if r.count < capacity {
		r.entries[(r.start+r.count)%capacity] = e
		r.count++
		return
	}
	r.entries[r.start] = e
	r.start = (r.start + 1) % capacity
}

func (r *ring) snapshot() []Entry {
	out := make([]Entry, r.count)
	capacity := len(r.entries)
	for i := 0; i < r.count; i++ {
		out[i] = r.entries[(r.start+i)%capacity]
	}
	return out
}

// Buffer is the process-wide log buffer: a map of work_order_id to its
// bounded ring, guarded by a single mutex, plus a TTL-based activity
// cache used to evict idle work orders.
type Buffer struct {
	mu       sync.Mutex
	byWorkID map[string]*ring
	activity *gocache.Cache

	stopCleanup chan struct{}
	cleanupOnce sync.Once
}

// DefaultIdleThreshold is the duration of inactivity after which a work
// order's entries are eligible for eviction.
const DefaultIdleThreshold = time.Hour

// DefaultCleanupInterval is how often the background cleanup loop runs.
const DefaultCleanupInterval = 5 * time.Minute

// New creates an empty log buffer. The activity cache's default
// expiration is set generously (twice the idle threshold) since actual
// eviction decisions are driven by CleanupOld, not the cache's own
// expiry; the cache here is used purely as a concurrent
// last-activity-timestamp map with built-in janitor support.
func New() *Buffer {
	return &Buffer{
		byWorkID: make(map[string]*ring),
		activity: gocache.New(2*DefaultIdleThreshold, DefaultCleanupInterval),
	}
}

// Add records a timestamped entry for workOrderID and refreshes its
// last-activity stamp. If timestamp is zero, the current UTC time is
// used.
func (b *Buffer) Add(workOrderID, level, event, step string, timestamp time.Time, fields map[string]any) {
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	r, ok := b.byWorkID[workOrderID]
	if !ok {
		r = newRing(Capacity)
		b.byWorkID[workOrderID] = r
	}
	r.push(Entry{
		WorkOrderID: workOrderID,
		Level:       level,
		Event:       event,
		Step:        step,
		Timestamp:   timestamp,
		Fields:      fields,
	})
	b.mu.Unlock()

	b.activity.SetDefault(workOrderID, timestamp)
}

// Filter narrows a Get/GetSince query.
type Filter struct {
	Level string
	Step  string
	Since time.Time
	Limit int
	// Offset skips this many matching entries before applying Limit.
	Offset int
}

// Get returns a filtered, chronologically ordered snapshot of entries
// for workOrderID. Level and Step are exact matches (level lower-cased);
// Since is a strict greater-than filter; Offset/Limit apply last.
func (b *Buffer) Get(workOrderID string, f Filter) []Entry {
	b.mu.Lock()
	r, ok := b.byWorkID[workOrderID]
	var all []Entry
	if ok {
		all = r.snapshot()
	}
	b.mu.Unlock()

	var filtered []Entry
	for _, e := range all {
		if f.Level != "" && e.Level != strings.ToLower(f.Level) {
			continue
		}
		if f.Step != "" && e.Step != f.Step {
			continue
		}
		if !f.Since.IsZero() && !e.Timestamp.After(f.Since) {
			continue
		}
		filtered = append(filtered, e)
	}

	if f.Offset > 0 {
		if f.Offset >= len(filtered) {
			return nil
		}
		filtered = filtered[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(filtered) {
		filtered = filtered[:f.Limit]
	}
	return filtered
}

// GetSince is a shortcut for tailing: all entries strictly newer than
// since, optionally filtered by level/step.
func (b *Buffer) GetSince(workOrderID string, since time.Time, level, step string) []Entry {
	return b.Get(workOrderID, Filter{Level: level, Step: step, Since: since})
}

// Clear drops all entries and activity tracking for workOrderID.
func (b *Buffer) Clear(workOrderID string) {
	b.mu.Lock()
	delete(b.byWorkID, workOrderID)
	b.mu.Unlock()
	b.activity.Delete(workOrderID)
}

// CleanupOld evicts every work order whose last activity is older than
// threshold and returns the number removed.
func (b *Buffer) CleanupOld(threshold time.Duration) int {
	now := time.Now().UTC()
	var stale []string

	for id, item := range b.activity.Items() {
		lastActivity, ok := item.Object.(time.Time)
		if !ok {
			continue
		}
		if now.Sub(lastActivity) > threshold {
			stale = append(stale, id)
		}
	}

	for _, id := range stale {
		b.Clear(id)
	}
	return len(stale)
}

// StartCleanupLoop runs CleanupOld every DefaultCleanupInterval until
// Stop is called. Safe to call at most once per Buffer.
func (b *Buffer) StartCleanupLoop() {
	b.stopCleanup = make(chan struct{})
	go func() {
		ticker := time.NewTicker(DefaultCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.CleanupOld(DefaultIdleThreshold)
			case <-b.stopCleanup:
				return
			}
		}
	}()
}

// Stop halts the background cleanup loop started by StartCleanupLoop.
func (b *Buffer) Stop() {
	b.cleanupOnce.Do(func() {
		if b.stopCleanup != nil {
			close(b.stopCleanup)
		}
	})
}
