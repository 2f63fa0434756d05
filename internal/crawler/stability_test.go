package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStabilityTracker(t *testing.T) {
	tr := NewStabilityTracker()
	mt := time.Unix(1000, 0)

	assert.False(t, tr.Observe("/a.mp4", mt, 100), "first sighting is never stable")
	assert.False(t, tr.Observe("/a.mp4", mt, 200), "size still growing")
	assert.True(t, tr.Observe("/a.mp4", mt, 200))
	assert.False(t, tr.Observe("/a.mp4", mt.Add(time.Second), 200), "mtime changed")

	tr.Forget("/a.mp4")
	assert.False(t, tr.Observe("/a.mp4", mt, 200))

	tr.Observe("/b.mp4", mt, 1)
	tr.Retain(map[string]bool{"/a.mp4": true})
	assert.False(t, tr.Observe("/b.mp4", mt, 1), "vanished files are forgotten")
}

func TestFailureCache(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fc := NewFailureCache(2, time.Hour)
	fc.now = func() time.Time { return now }

	assert.False(t, fc.CoolingDown("/a.mp4"))
	fc.Record("/a.mp4")
	assert.True(t, fc.CoolingDown("/a.mp4"))

	now = now.Add(59 * time.Minute)
	assert.True(t, fc.CoolingDown("/a.mp4"))

	now = now.Add(2 * time.Minute)
	assert.False(t, fc.CoolingDown("/a.mp4"))
	assert.Equal(t, 0, fc.Len(), "expired entries are evicted on lookup")

	fc.Record("/a.mp4")
	fc.Record("/b.mp4")
	fc.Record("/c.mp4")
	assert.Equal(t, 2, fc.Len())
	assert.False(t, fc.CoolingDown("/a.mp4"), "oldest failure evicted by size bound")
}
