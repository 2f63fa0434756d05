package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cori/video-analysis-pipeline/internal/models"
)

// mockVisionClient answers frames from a per-call script.
type mockVisionClient struct {
	mu        sync.Mutex
	responses []mockResponse
	calls     int
}

type mockResponse struct {
	text string
	err  error
}

func (m *mockVisionClient) DescribeFrame(ctx context.Context, imageData []byte, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	m.calls++
	if i >= len(m.responses) {
		return "", fmt.Errorf("%w: no scripted response", ErrTransport)
	}
	return m.responses[i].text, m.responses[i].err
}

func frameJSON(desc string, score int) string {
	return fmt.Sprintf(`{"description": %q, "environment": ["forest"], "flight_style": "cruising", "interest_score": %d, "quality_issues": []}`, desc, score)
}

func testFrames(n int) []models.SampledFrame {
	frames := make([]models.SampledFrame, n)
	for i := range frames {
		frames[i] = models.SampledFrame{Index: i, Timestamp: float64(i) * 2, Data: []byte("jpeg")}
	}
	return frames
}

func TestVisionServiceAnalyzeFrames(t *testing.T) {
	transportErr := fmt.Errorf("%w: connection refused", ErrTransport)

	tests := []struct {
		name        string
		responses   []mockResponse
		frames      int
		wantErr     error
		wantOK      int
		wantDropped []DropReason
	}{
		{
			name: "all frames answered",
			responses: []mockResponse{
				{text: frameJSON("trees", 5)},
				{text: frameJSON("river", 8)},
			},
			frames:      2,
			wantOK:      2,
			wantDropped: []DropReason{"", ""},
		},
		{
			name: "malformed output is dropped",
			responses: []mockResponse{
				{text: frameJSON("trees", 5)},
				{text: "I cannot see anything"},
				{text: frameJSON("field", 6)},
			},
			frames:      3,
			wantOK:      2,
			wantDropped: []DropReason{"", DropMalformed, ""},
		},
		{
			name: "transport failure after first frame is dropped",
			responses: []mockResponse{
				{text: frameJSON("trees", 5)},
				{err: transportErr},
			},
			frames:      2,
			wantOK:      1,
			wantDropped: []DropReason{"", DropTransport},
		},
		{
			name:      "transport failure on first frame is terminal",
			responses: []mockResponse{{err: transportErr}},
			frames:    3,
			wantErr:   ErrVisionUnavailable,
		},
		{
			name: "malformed first frame is not terminal",
			responses: []mockResponse{
				{text: `{"description": ""}`},
				{text: frameJSON("river", 8)},
			},
			frames:      2,
			wantOK:      1,
			wantDropped: []DropReason{DropMalformed, ""},
		},
		{
			name: "malformed first frame then transport failures is terminal",
			responses: []mockResponse{
				{text: "I cannot see anything"},
				{err: transportErr},
				{err: transportErr},
				{err: transportErr},
			},
			frames:  4,
			wantErr: ErrVisionUnavailable,
		},
		{
			name: "every frame dropped yields an empty set",
			responses: []mockResponse{
				{text: "nope"},
				{text: "{}"},
			},
			frames:      2,
			wantOK:      0,
			wantDropped: []DropReason{DropMalformed, DropMalformed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewVisionService(&mockVisionClient{responses: tt.responses}, &Config{})

			results, err := service.AnalyzeFrames(context.Background(), testFrames(tt.frames))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(results) != tt.frames {
				t.Fatalf("expected %d results, got %d", tt.frames, len(results))
			}
			if got := len(Successful(results)); got != tt.wantOK {
				t.Errorf("expected %d successful frames, got %d", tt.wantOK, got)
			}
			for i, r := range results {
				if r.Dropped != tt.wantDropped[i] {
					t.Errorf("frame %d: expected drop %q, got %q", i, tt.wantDropped[i], r.Dropped)
				}
				if r.OK() && r.Analysis.Timestamp != float64(i)*2 {
					t.Errorf("frame %d: expected timestamp %v, got %v", i, float64(i)*2, r.Analysis.Timestamp)
				}
			}
		})
	}
}

func TestVisionServiceRetriesTransportErrors(t *testing.T) {
	client := &mockVisionClient{responses: []mockResponse{
		{err: fmt.Errorf("%w: timeout", ErrTransport)},
		{err: fmt.Errorf("%w: timeout", ErrTransport)},
		{text: frameJSON("trees", 5)},
	}}
	service := NewVisionService(client, &Config{MaxRetries: 2, RetryBackoff: time.Millisecond})

	results, err := service.AnalyzeFrames(context.Background(), testFrames(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !results[0].OK() {
		t.Fatalf("expected frame to succeed after retries, got %v", results[0].Err)
	}
	if client.calls != 3 {
		t.Errorf("expected 3 calls, got %d", client.calls)
	}
}

func TestVisionServiceDoesNotRetryMalformed(t *testing.T) {
	client := &mockVisionClient{responses: []mockResponse{
		{err: fmt.Errorf("%w: bad shape", ErrMalformedResponse)},
		{text: frameJSON("trees", 5)},
	}}
	service := NewVisionService(client, &Config{MaxRetries: 3, RetryBackoff: time.Millisecond})

	result := service.AnalyzeFrame(context.Background(), testFrames(1)[0])
	if result.OK() || result.Dropped != DropMalformed {
		t.Fatalf("expected malformed drop, got %+v", result)
	}
	if client.calls != 1 {
		t.Errorf("expected 1 call, got %d", client.calls)
	}
}

func TestVisionServiceStopsBetweenFramesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &cancellingClient{cancel: cancel}
	service := NewVisionService(client, &Config{})

	results, err := service.AnalyzeFrames(ctx, testFrames(5))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if client.calls != 1 {
		t.Errorf("expected the in-flight call to finish and no more to start, got %d calls", client.calls)
	}
	if len(results) != 1 || !results[0].OK() {
		t.Errorf("expected the first frame to complete, got %+v", results)
	}
}

// cancellingClient cancels the run while answering its first frame.
type cancellingClient struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancellingClient) DescribeFrame(ctx context.Context, imageData []byte, prompt string) (string, error) {
	c.calls++
	c.cancel()
	if ctx.Err() != nil {
		return "", errors.New("call context should not be cancelled")
	}
	return frameJSON("trees", 5), nil
}
