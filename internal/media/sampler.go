package media

import (
	"fmt"
	"math"
	"sort"

	"github.com/cori/video-analysis-pipeline/internal/models"
)

const (
	DefaultSampleInterval = 2.0
	DefaultMaxFrames      = 100

	// Candidates closer than this are treated as the same instant.
	minTimestampGap = 0.01
)

type SamplerConfig struct {
	Interval  float64
	MaxFrames int
}

// Sampler plans which timestamps of a video get extracted: both ends, one
// every Interval seconds, and every scene change, capped at MaxFrames.
type Sampler struct {
	interval  float64
	maxFrames int
}

func NewSampler(cfg SamplerConfig) *Sampler {
	s := &Sampler{interval: cfg.Interval, maxFrames: cfg.MaxFrames}
	if s.interval <= 0 {
		s.interval = DefaultSampleInterval
	}
	if s.maxFrames <= 0 {
		s.maxFrames = DefaultMaxFrames
	}
	if s.maxFrames < 2 {
		s.maxFrames = 2
	}
	return s
}

// Plan returns strictly increasing timestamps in [0, duration] that always
// start at 0 and end at duration.
func (s *Sampler) Plan(probe *models.ProbeResult, sceneChanges []float64) ([]float64, error) {
	if probe == nil || probe.Duration <= 0 || math.IsNaN(probe.Duration) || math.IsInf(probe.Duration, 0) {
		return nil, fmt.Errorf("%w: duration unknown", ErrProbeUnavailable)
	}
	if probe.Width <= 0 || probe.Height <= 0 {
		return nil, fmt.Errorf("%w: resolution unknown", ErrProbeUnavailable)
	}

	duration := probe.Duration
	candidates := []float64{0}
	for k := 1; ; k++ {
		t := float64(k) * s.interval
		if t >= duration {
			break
		}
		candidates = append(candidates, t)
	}
	for _, t := range sceneChanges {
		if t > 0 && t < duration {
			candidates = append(candidates, t)
		}
	}
	sort.Float64s(candidates)

	return downsample(dedupe(candidates, duration), s.maxFrames), nil
}

// dedupe drops candidates within minTimestampGap of the previous one or of
// the end, then appends the end itself.
func dedupe(sorted []float64, duration float64) []float64 {
	out := make([]float64, 0, len(sorted)+1)
	out = append(out, 0)
	for _, t := range sorted[1:] {
		if t-out[len(out)-1] < minTimestampGap || duration-t < minTimestampGap {
			continue
		}
		out = append(out, t)
	}
	return append(out, duration)
}

// downsample keeps limit timestamps spread evenly over time. For each evenly
// spaced target it picks the nearest remaining candidate while leaving enough
// candidates for the targets after it, so the first and last survive.
func downsample(ts []float64, limit int) []float64 {
	n := len(ts)
	if n <= limit {
		return ts
	}

	duration := ts[n-1]
	out := make([]float64, 0, limit)
	prev := -1
	for i := 0; i < limit; i++ {
		target := duration * float64(i) / float64(limit-1)
		lo := prev + 1
		hi := n - (limit - i)
		best := lo
		for j := lo + 1; j <= hi; j++ {
			if math.Abs(ts[j]-target) < math.Abs(ts[best]-target) {
				best = j
			}
		}
		out = append(out, ts[best])
		prev = best
	}
	return out
}
