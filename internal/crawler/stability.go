package crawler

import (
	"sync"
	"time"
)

type observation struct {
	modTime time.Time
	size    int64
}

// StabilityTracker remembers the last mtime and size seen for each file. A
// file is stable once two consecutive observations agree, which keeps files
// that are still being copied or recorded out of the queue.
type StabilityTracker struct {
	mu   sync.Mutex
	seen map[string]observation
}

func NewStabilityTracker() *StabilityTracker {
	return &StabilityTracker{seen: make(map[string]observation)}
}

func (t *StabilityTracker) Observe(path string, modTime time.Time, size int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.seen[path]
	t.seen[path] = observation{modTime: modTime, size: size}
	return ok && prev.size == size && prev.modTime.Equal(modTime)
}

func (t *StabilityTracker) Forget(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seen, path)
}

// Retain drops every path not in present, so deleted files do not pile up.
func (t *StabilityTracker) Retain(present map[string]bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for path := range t.seen {
		if !present[path] {
			delete(t.seen, path)
		}
	}
}
