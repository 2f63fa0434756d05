package pipeline

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Slot is the single in-flight analysis slot shared by every caller.
// Waiters queue in arrival order instead of being rejected.
type Slot struct {
	sem      *semaphore.Weighted
	waiting  atomic.Int64
	inFlight atomic.Bool
}

func NewSlot() *Slot {
	return &Slot{sem: semaphore.NewWeighted(1)}
}

func (s *Slot) Acquire(ctx context.Context) error {
	s.waiting.Add(1)
	err := s.sem.Acquire(ctx, 1)
	s.waiting.Add(-1)
	if err != nil {
		return err
	}
	s.inFlight.Store(true)
	return nil
}

func (s *Slot) Release() {
	s.inFlight.Store(false)
	s.sem.Release(1)
}

// Waiting is the number of callers queued behind the current analysis.
func (s *Slot) Waiting() int {
	return int(s.waiting.Load())
}

func (s *Slot) InFlight() bool {
	return s.inFlight.Load()
}
