package crawler

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/cori/video-analysis-pipeline/internal/models"
)

// ScanResult summarizes one pass over the video root.
type ScanResult struct {
	// Found counts stable candidates, queued now or earlier.
	Found    int
	Enqueued int
	// Pending counts videos whose size or mtime still changed.
	Pending     int
	Analyzed    int
	CoolingDown int
}

// SidecarChecker reports whether a video already has a sidecar.
type SidecarChecker func(videoPath string) (bool, error)

type Scanner struct {
	root       string
	queue      Queue
	stability  *StabilityTracker
	failures   *FailureCache
	hasSidecar SidecarChecker
	inFlight   func(path string) bool
	now        func() time.Time
}

func NewScanner(root string, queue Queue, failures *FailureCache, hasSidecar SidecarChecker) *Scanner {
	return &Scanner{
		root:       root,
		queue:      queue,
		stability:  NewStabilityTracker(),
		failures:   failures,
		hasSidecar: hasSidecar,
		now:        time.Now,
	}
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// Scan walks the root and enqueues every stable video that has no sidecar
// and is not cooling down after a failure. Unreadable entries are skipped.
func (s *Scanner) Scan(ctx context.Context) (ScanResult, error) {
	var result ScanResult
	present := make(map[string]bool)

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root {
				return err
			}
			log.Printf("[CRAWLER] Warning: skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			if path != s.root && isHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if isHidden(d.Name()) || !models.IsVideoFile(path) {
			return nil
		}

		if s.hasSidecar != nil {
			exists, err := s.hasSidecar(path)
			if err != nil {
				log.Printf("[CRAWLER] Warning: sidecar check failed for %s: %v", path, err)
				return nil
			}
			if exists {
				result.Analyzed++
				return nil
			}
		}
		if s.inFlight != nil && s.inFlight(path) {
			result.Found++
			return nil
		}
		if s.failures != nil && s.failures.CoolingDown(path) {
			result.CoolingDown++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			log.Printf("[CRAWLER] Warning: stat failed for %s: %v", path, err)
			return nil
		}
		present[path] = true

		queued, err := s.queue.Contains(ctx, path)
		if err != nil {
			return err
		}
		if queued {
			result.Found++
			return nil
		}

		if !s.stability.Observe(path, info.ModTime(), info.Size()) {
			result.Pending++
			return nil
		}

		added, err := s.queue.Enqueue(ctx, Entry{
			Path:       path,
			ModTime:    info.ModTime(),
			Size:       info.Size(),
			EnqueuedAt: s.now(),
		})
		if err != nil {
			return err
		}
		// A video that leaves the queue unanalyzed has to settle again.
		s.stability.Forget(path)
		result.Found++
		if added {
			result.Enqueued++
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("scan %s: %w", s.root, err)
	}

	s.stability.Retain(present)
	return result, nil
}
