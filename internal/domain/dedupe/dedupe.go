// Package dedupe tracks keys that are currently being worked on, so that at
// most one job per key runs at a time.
package dedupe

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

// Deduper records in-flight keys.
type Deduper interface {
	// SeenAndRecord atomically checks whether id is in flight and records it
	// if not. It returns true when the caller must not start work for id.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord releases id once its work has finished or was never started.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// ModeratorKey is the key of a moderator's pipeline.
func ModeratorKey(userID int64) string {
	return "moderator:" + strconv.FormatInt(userID, 10)
}

// inMemoryDeduper implements Deduper with a map. In bounded mode
// (maxSize > 0) new keys are refused once maxSize keys are in flight.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		seen: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		return true
	}
	d.seen[id] = struct{}{}
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		delete(d.seen, id)
		d.size.Add(-1)
	}
}

// Size returns the number of keys in flight.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
