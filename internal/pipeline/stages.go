package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Stage string

const (
	StageProbing         Stage = "probing"
	StageSampling        Stage = "sampling"
	StageStaticDetection Stage = "static_detection"
	StageVisionAnalysis  Stage = "vision_analysis"
	StageAggregating     Stage = "aggregating"
	StageSummarizing     Stage = "summarizing"
	StageWriting         Stage = "writing"
	StageDone            Stage = "done"
	StageFailed          Stage = "failed"
)

// Static detection and vision analysis run side by side, so either may be
// entered first and either may hand over to aggregating.
var allowedTransitions = map[Stage]map[Stage]bool{
	"": {
		StageProbing: true,
	},
	StageProbing: {
		StageSampling: true,
		StageFailed:   true,
	},
	StageSampling: {
		StageStaticDetection: true,
		StageVisionAnalysis:  true,
		StageFailed:          true,
	},
	StageStaticDetection: {
		StageVisionAnalysis: true,
		StageAggregating:    true,
		StageFailed:         true,
	},
	StageVisionAnalysis: {
		StageStaticDetection: true,
		StageAggregating:     true,
		StageFailed:          true,
	},
	StageAggregating: {
		StageSummarizing: true,
		StageFailed:      true,
	},
	StageSummarizing: {
		StageWriting: true,
		StageFailed:  true,
	},
	StageWriting: {
		StageDone:   true,
		StageFailed: true,
	},
	StageDone:   {},
	StageFailed: {},
}

func CanTransition(from, to Stage) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// StageOutcome records how one stage ended. Outcomes are kept for logs and
// the history index; they are not part of the sidecar.
type StageOutcome struct {
	Stage    Stage         `json:"stage"`
	OK       bool          `json:"ok"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// StageEvent is emitted on every stage change.
type StageEvent struct {
	RunID string    `json:"run_id"`
	Path  string    `json:"path"`
	Stage Stage     `json:"stage"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}

type Observer interface {
	StageChanged(StageEvent)
}

type ObserverFunc func(StageEvent)

func (f ObserverFunc) StageChanged(e StageEvent) {
	f(e)
}

// Run tracks one orchestrator execution for a single video.
type Run struct {
	ID        string
	VideoPath string
	StartedAt time.Time

	mu         sync.Mutex
	stage      Stage
	finishedAt time.Time
	outcomes   []StageOutcome
	observer   Observer
}

func newRun(videoPath string, observer Observer) *Run {
	return &Run{
		ID:        uuid.New().String(),
		VideoPath: videoPath,
		StartedAt: time.Now(),
		observer:  observer,
	}
}

func (r *Run) Stage() Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

func (r *Run) FinishedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finishedAt
}

func (r *Run) Outcomes() []StageOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StageOutcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

func (r *Run) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.finishedAt.Sub(r.StartedAt)
}

func (r *Run) enter(to Stage) error {
	return r.transition(to, "")
}

func (r *Run) fail(cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	// A run that already ended keeps its final stage.
	_ = r.transition(StageFailed, msg)
}

func (r *Run) transition(to Stage, errMsg string) error {
	r.mu.Lock()
	from := r.stage
	if !CanTransition(from, to) {
		r.mu.Unlock()
		return fmt.Errorf("invalid stage transition: %q -> %q (run_id=%s path=%s)", from, to, r.ID, r.VideoPath)
	}
	r.stage = to
	now := time.Now()
	if to == StageDone || to == StageFailed {
		r.finishedAt = now
	}
	observer := r.observer
	r.mu.Unlock()

	if observer != nil {
		observer.StageChanged(StageEvent{RunID: r.ID, Path: r.VideoPath, Stage: to, At: now, Error: errMsg})
	}
	return nil
}

func (r *Run) record(stage Stage, started time.Time, err error) {
	outcome := StageOutcome{Stage: stage, OK: err == nil, Duration: time.Since(started)}
	if err != nil {
		outcome.Error = err.Error()
	}
	r.mu.Lock()
	r.outcomes = append(r.outcomes, outcome)
	r.mu.Unlock()
}
