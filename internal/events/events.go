package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TypeCompleted = "video.analysis.completed"
	TypeFailed    = "video.analysis.failed"
)

// Event announces the end of one analysis run.
type Event struct {
	ID                  string    `json:"id"`
	Type                string    `json:"type"`
	Path                string    `json:"path"`
	SidecarPath         string    `json:"sidecar_path,omitempty"`
	Status              string    `json:"status"`
	FailedStage         string    `json:"failed_stage,omitempty"`
	Tags                []string  `json:"tags"`
	HighlightsCount     int       `json:"highlights_count"`
	StaticSegmentsCount int       `json:"static_segments_count"`
	Error               string    `json:"error,omitempty"`
	At                  time.Time `json:"at"`
}

func NewEvent(eventType, path string) *Event {
	return &Event{
		ID:   uuid.New().String(),
		Type: eventType,
		Path: path,
		Tags: []string{},
		At:   time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// NopPublisher drops events; used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event *Event) error {
	return nil
}
