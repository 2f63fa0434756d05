package ai

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cori/video-analysis-pipeline/internal/metrics"
	"github.com/cori/video-analysis-pipeline/internal/models"
)

type DropReason string

const (
	DropMalformed DropReason = "malformed"
	DropTransport DropReason = "transport"
)

// FrameResult is the outcome for one sampled frame: either an analysis or
// the reason it was dropped.
type FrameResult struct {
	Index     int
	Timestamp float64
	Analysis  *models.FrameAnalysis
	Dropped   DropReason
	Err       error
}

func (r FrameResult) OK() bool {
	return r.Analysis != nil
}

// Successful returns the analyses of the frames that were answered, in order.
func Successful(results []FrameResult) []models.FrameAnalysis {
	analyses := make([]models.FrameAnalysis, 0, len(results))
	for _, r := range results {
		if r.OK() {
			analyses = append(analyses, *r.Analysis)
		}
	}
	return analyses
}

type VisionService struct {
	client VisionClient
	config *Config
	prompt string
}

func NewVisionService(client VisionClient, config *Config) *VisionService {
	if config == nil {
		config = NewConfig()
	}
	return &VisionService{
		client: client,
		config: config,
		prompt: FramePrompt(),
	}
}

// AnalyzeFrames queries the model once per frame, in order. A transport
// failure before any frame has succeeded returns ErrVisionUnavailable. Any
// other failure drops that frame and moves on. Cancellation is honoured between frames;
// the call in flight is allowed to finish.
func (s *VisionService) AnalyzeFrames(ctx context.Context, frames []models.SampledFrame) ([]FrameResult, error) {
	results := make([]FrameResult, 0, len(frames))
	succeeded := false

	for _, frame := range frames {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result := s.AnalyzeFrame(ctx, frame)
		if !succeeded && result.Dropped == DropTransport {
			return nil, fmt.Errorf("%w: %v", ErrVisionUnavailable, result.Err)
		}
		if result.OK() {
			succeeded = true
		} else {
			log.Printf("[VISION] Warning: dropped frame %d at %.1fs (%s): %v", frame.Index, frame.Timestamp, result.Dropped, result.Err)
			metrics.RecordFrameDrop(string(result.Dropped))
		}
		results = append(results, result)
	}

	ok := 0
	for _, r := range results {
		if r.OK() {
			ok++
		}
	}
	log.Printf("[VISION] Analyzed %d/%d frames", ok, len(frames))

	return results, nil
}

func (s *VisionService) AnalyzeFrame(ctx context.Context, frame models.SampledFrame) FrameResult {
	result := FrameResult{Index: frame.Index, Timestamp: frame.Timestamp}

	// The model call outlives ctx so a stop request never cuts a reply in half.
	callCtx := context.WithoutCancel(ctx)

	var text string
	err := withRetry(ctx, s.config.MaxRetries, s.config.RetryBackoff, func() error {
		var err error
		text, err = s.client.DescribeFrame(callCtx, frame.Data, s.prompt)
		if err != nil {
			metrics.RecordVisionRequest("error")
		}
		return err
	})
	if err != nil {
		result.Err = err
		if errors.Is(err, ErrTransport) {
			result.Dropped = DropTransport
		} else {
			result.Dropped = DropMalformed
		}
		return result
	}
	metrics.RecordVisionRequest("ok")

	analysis, err := ParseFrameResponse(text, frame.Timestamp)
	if err != nil {
		result.Err = err
		result.Dropped = DropMalformed
		return result
	}

	result.Analysis = analysis
	return result
}
