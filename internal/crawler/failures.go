package crawler

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// FailureCache keeps videos that failed terminally out of the queue for a
// cooldown period. Only the most recent failures are remembered.
type FailureCache struct {
	cache *lru.Cache[string, time.Time]
	ttl   time.Duration
	now   func() time.Time
}

func NewFailureCache(maxKeys int, ttl time.Duration) *FailureCache {
	if maxKeys <= 0 {
		maxKeys = 1024
	}
	c, _ := lru.New[string, time.Time](maxKeys)
	return &FailureCache{
		cache: c,
		ttl:   ttl,
		now:   time.Now,
	}
}

func (f *FailureCache) Record(path string) {
	f.cache.Add(path, f.now())
}

func (f *FailureCache) CoolingDown(path string) bool {
	failedAt, ok := f.cache.Get(path)
	if !ok {
		return false
	}
	if f.now().Sub(failedAt) < f.ttl {
		return true
	}
	f.cache.Remove(path)
	return false
}

func (f *FailureCache) Len() int {
	return f.cache.Len()
}
