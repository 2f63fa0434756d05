package static

import (
	"fmt"
	"image"
	"log"

	"github.com/cori/video-analysis-pipeline/internal/media"
	"github.com/cori/video-analysis-pipeline/internal/models"
)

const (
	DefaultThreshold   = 0.02
	DefaultMinDuration = 1.0

	// DefaultUniformStdDev is the normalized pixel deviation below which a
	// frame is considered a blank screen.
	DefaultUniformStdDev = 0.04
)

type Config struct {
	Threshold     float64
	MinDuration   float64
	Metric        Metric
	Scale         float64
	UniformStdDev float64
	Rules         []Rule
}

// FrameSignal is the per-frame input of the run state machine. Diff is the
// difference from the previous frame and is ignored for the first one.
type FrameSignal struct {
	Timestamp float64
	Diff      float64
	Uniform   bool
}

type Detector struct {
	cfg Config
}

func NewDetector(cfg Config) *Detector {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MinDuration <= 0 {
		cfg.MinDuration = DefaultMinDuration
	}
	if cfg.Metric == "" {
		cfg.Metric = MetricSSIM
	}
	if cfg.Scale <= 0 || cfg.Scale > 1 {
		cfg.Scale = DefaultScale
	}
	if cfg.UniformStdDev <= 0 {
		cfg.UniformStdDev = DefaultUniformStdDev
	}
	if len(cfg.Rules) == 0 {
		cfg.Rules = DefaultRules
	}
	return &Detector{cfg: cfg}
}

// Detect finds static segments in an ordered frame sequence.
func (d *Detector) Detect(frames []models.SampledFrame, duration float64) ([]models.StaticSegment, error) {
	if len(frames) < 2 {
		log.Printf("[STATIC] Not enough frames for static detection (%d)", len(frames))
		return []models.StaticSegment{}, nil
	}

	signals := make([]FrameSignal, len(frames))
	var prev *image.Gray
	for i, f := range frames {
		gray, err := decodeGray(f.Data, d.cfg.Scale)
		if err != nil {
			return nil, fmt.Errorf("%w: frame %d at %.2fs: %v", media.ErrExtractionFailed, f.Index, f.Timestamp, err)
		}
		signals[i] = FrameSignal{
			Timestamp: f.Timestamp,
			Uniform:   stdDev(gray) < d.cfg.UniformStdDev,
		}
		if prev != nil {
			signals[i].Diff = Difference(d.cfg.Metric, prev, gray)
		}
		prev = gray
	}

	return d.Segments(signals, duration), nil
}

// Segments runs the static-run state machine over precomputed signals.
func (d *Detector) Segments(signals []FrameSignal, duration float64) []models.StaticSegment {
	segments := []models.StaticSegment{}
	if len(signals) < 2 {
		return segments
	}

	inRun := false
	runStart := 0
	for i := 1; i < len(signals); i++ {
		if signals[i].Diff < d.cfg.Threshold {
			if !inRun {
				inRun = true
				runStart = i - 1
			}
			continue
		}
		if inRun {
			if seg, ok := d.closeRun(signals[runStart:i], duration); ok {
				segments = append(segments, seg)
			}
			inRun = false
		}
	}
	if inRun {
		if seg, ok := d.closeRun(signals[runStart:], duration); ok {
			segments = append(segments, seg)
		}
	}

	log.Printf("[STATIC] Detected %d static segments (threshold %.3f)", len(segments), d.cfg.Threshold)
	return segments
}

// closeRun turns the frames of a finished run into a segment when the run
// is longer than the minimum duration.
func (d *Detector) closeRun(run []FrameSignal, duration float64) (models.StaticSegment, bool) {
	start := run[0].Timestamp
	end := run[len(run)-1].Timestamp
	length := end - start
	if length <= d.cfg.MinDuration {
		return models.StaticSegment{}, false
	}

	uniform := 0
	for _, s := range run {
		if s.Uniform {
			uniform++
		}
	}

	reason := Classify(d.cfg.Rules, RunContext{
		Start:          start,
		End:            end,
		VideoDuration:  duration,
		SignalArtifact: uniform*2 > len(run),
	})
	seg := models.StaticSegment{
		Start:      start,
		End:        end,
		Reason:     reason,
		Confidence: Confidence(length, boundaryMargin(start, end, duration)),
	}
	log.Printf("[STATIC] %s segment %.1fs - %.1fs (confidence %.2f)", seg.Reason, seg.Start, seg.End, seg.Confidence)
	return seg, true
}
