package ai

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cori/video-analysis-pipeline/internal/models"
)

type Summarizer struct {
	client TextClient
	config *Config
}

func NewSummarizer(client TextClient, config *Config) *Summarizer {
	if config == nil {
		config = NewConfig()
	}
	return &Summarizer{client: client, config: config}
}

// Summarize makes one text-model call over the frame descriptions. Every
// failure is reported as ErrSummaryUnavailable.
func (s *Summarizer) Summarize(ctx context.Context, analyses []models.FrameAnalysis) (string, error) {
	lines := make([]SummaryLine, 0, len(analyses))
	for _, fa := range analyses {
		if fa.Description == "" {
			continue
		}
		lines = append(lines, SummaryLine{Timestamp: fa.Timestamp, Description: fa.Description})
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("%w: no frame descriptions", ErrSummaryUnavailable)
	}

	prompt := BuildSummaryPrompt(lines)
	callCtx := context.WithoutCancel(ctx)

	var text string
	err := withRetry(ctx, s.config.MaxRetries, s.config.RetryBackoff, func() error {
		var err error
		text, err = s.client.Generate(callCtx, prompt)
		return err
	})
	if err != nil {
		log.Printf("[SUMMARY] Warning: summary generation failed: %v", err)
		return "", fmt.Errorf("%w: %v", ErrSummaryUnavailable, err)
	}

	summary := strings.TrimSpace(text)
	if summary == "" {
		return "", fmt.Errorf("%w: empty response", ErrSummaryUnavailable)
	}
	return summary, nil
}
