package ai

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTransport marks a failure to reach the model or a non-2xx reply.
	ErrTransport = errors.New("model transport error")
	// ErrVisionUnavailable is terminal: the model failed on the first frame.
	ErrVisionUnavailable = errors.New("vision model unavailable")
	// ErrSummaryUnavailable is not terminal; callers fall back to PlaceholderSummary.
	ErrSummaryUnavailable = errors.New("summary unavailable")
	// ErrMalformedResponse means the model answered but not in the expected shape.
	ErrMalformedResponse = errors.New("malformed model response")
)

const PlaceholderSummary = "Summary unavailable."

// VisionClient describes a single JPEG frame and returns the raw model text.
type VisionClient interface {
	DescribeFrame(ctx context.Context, imageData []byte, prompt string) (string, error)
}

// TextClient generates free text from a prompt.
type TextClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Config struct {
	Host         string
	Model        string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

func NewConfig() *Config {
	return &Config{
		Host:         "http://host.docker.internal:11434",
		Model:        "llava:13b",
		Timeout:      300 * time.Second,
		MaxRetries:   0,
		RetryBackoff: 2 * time.Second,
	}
}
