package crawler

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Entry is a video waiting for analysis. ModTime and Size are the values
// that were observed stable when it was enqueued.
type Entry struct {
	Path       string    `json:"path"`
	ModTime    time.Time `json:"mod_time"`
	Size       int64     `json:"size"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue holds at most one entry per path and hands them out oldest file
// first, smaller file first on equal modification times.
type Queue interface {
	// Enqueue reports false when the path is already queued.
	Enqueue(ctx context.Context, entry Entry) (bool, error)
	// Dequeue returns nil when the queue is empty.
	Dequeue(ctx context.Context) (*Entry, error)
	Len(ctx context.Context) (int, error)
	Contains(ctx context.Context, path string) (bool, error)
}

func entryLess(a, b Entry) bool {
	if !a.ModTime.Equal(b.ModTime) {
		return a.ModTime.Before(b.ModTime)
	}
	if a.Size != b.Size {
		return a.Size < b.Size
	}
	return a.Path < b.Path
}

type MemoryQueue struct {
	mu      sync.Mutex
	entries []Entry
	paths   map[string]bool
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{paths: make(map[string]bool)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, entry Entry) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.paths[entry.Path] {
		return false, nil
	}
	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = time.Now()
	}

	i := sort.Search(len(q.entries), func(i int) bool {
		return entryLess(entry, q.entries[i])
	})
	q.entries = append(q.entries, Entry{})
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = entry
	q.paths[entry.Path] = true
	return true, nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return nil, nil
	}
	entry := q.entries[0]
	q.entries = q.entries[1:]
	delete(q.paths, entry.Path)
	return &entry, nil
}

func (q *MemoryQueue) Len(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries), nil
}

func (q *MemoryQueue) Contains(ctx context.Context, path string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paths[path], nil
}
