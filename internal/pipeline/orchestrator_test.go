package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cori/video-analysis-pipeline/internal/ai"
	"github.com/cori/video-analysis-pipeline/internal/media"
	"github.com/cori/video-analysis-pipeline/internal/models"
	"github.com/cori/video-analysis-pipeline/internal/sidecar"
)

type fakeProber struct {
	result *models.ProbeResult
	err    error
}

func (f *fakeProber) Probe(ctx context.Context, videoPath string) (*models.ProbeResult, error) {
	return f.result, f.err
}

type fakeFrames struct {
	calls int
}

func (f *fakeFrames) ExtractFrames(ctx context.Context, videoPath string, timestamps []float64) ([]models.SampledFrame, error) {
	f.calls++
	frames := make([]models.SampledFrame, len(timestamps))
	for i, ts := range timestamps {
		frames[i] = models.SampledFrame{Index: i, Timestamp: ts, Data: []byte("jpeg")}
	}
	return frames, nil
}

type fakeScenes struct {
	times []float64
	err   error
}

func (f *fakeScenes) DetectScenes(ctx context.Context, videoPath string) ([]float64, error) {
	return f.times, f.err
}

type fakeStatic struct {
	segments []models.StaticSegment
	err      error
}

func (f *fakeStatic) Detect(frames []models.SampledFrame, duration float64) ([]models.StaticSegment, error) {
	return f.segments, f.err
}

// fakeVision scores frames with score(ts); onCall runs before answering.
type fakeVision struct {
	score  func(ts float64) int
	err    error
	onCall func()
}

func (f *fakeVision) AnalyzeFrames(ctx context.Context, frames []models.SampledFrame) ([]ai.FrameResult, error) {
	if f.onCall != nil {
		f.onCall()
	}
	if f.err != nil {
		return nil, f.err
	}
	results := make([]ai.FrameResult, len(frames))
	for i, fr := range frames {
		results[i] = ai.FrameResult{
			Index:     fr.Index,
			Timestamp: fr.Timestamp,
			Analysis: &models.FrameAnalysis{
				Timestamp:     fr.Timestamp,
				Description:   fmt.Sprintf("frame at %.0fs", fr.Timestamp),
				Environment:   []string{"forest"},
				FlightStyle:   "freestyle",
				InterestScore: f.score(fr.Timestamp),
				QualityIssues: []string{},
			},
		}
	}
	return results, nil
}

type fakeSummarizer struct {
	text string
	err  error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, analyses []models.FrameAnalysis) (string, error) {
	return f.text, f.err
}

type recordingObserver struct {
	mu     sync.Mutex
	stages []Stage
}

func (r *recordingObserver) StageChanged(e StageEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, e.Stage)
}

type fixture struct {
	video    string
	prober   *fakeProber
	frames   *fakeFrames
	scenes   *fakeScenes
	static   *fakeStatic
	vision   *fakeVision
	summary  *fakeSummarizer
	observer *recordingObserver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	video := filepath.Join(t.TempDir(), "flight.mp4")
	if err := os.WriteFile(video, []byte("not really a video"), 0644); err != nil {
		t.Fatal(err)
	}
	return &fixture{
		video: video,
		prober: &fakeProber{result: &models.ProbeResult{
			Filename: "flight.mp4", Duration: 20, Width: 1920, Height: 1080,
			Framerate: 60, Codec: "h264", SourceType: models.SourceOnboard,
		}},
		frames: &fakeFrames{},
		scenes: &fakeScenes{},
		static: &fakeStatic{segments: []models.StaticSegment{
			{Start: 0, End: 4, Reason: models.ReasonPreArm, Confidence: 0.9},
		}},
		vision: &fakeVision{score: func(ts float64) int {
			if ts >= 8 && ts <= 16 {
				return 9
			}
			return 5
		}},
		summary:  &fakeSummarizer{text: "A forest freestyle flight."},
		observer: &recordingObserver{},
	}
}

func (f *fixture) orchestrator() *Orchestrator {
	return New(Dependencies{
		Prober:     f.prober,
		Frames:     f.frames,
		Scenes:     f.scenes,
		Sampler:    media.NewSampler(media.SamplerConfig{Interval: 2, MaxFrames: 100}),
		Static:     f.static,
		Vision:     f.vision,
		Summarizer: f.summary,
		Store:      sidecar.NewFileRepository(),
		Observer:   f.observer,
	}, Config{AnalyzerVersion: "0.1.0", Model: "llava:13b"})
}

func TestOrchestratorRun(t *testing.T) {
	f := newFixture(t)

	result, err := f.orchestrator().Run(context.Background(), f.video, false, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.SidecarPath != f.video+".meta.json" {
		t.Errorf("unexpected sidecar path %s", result.SidecarPath)
	}
	if result.DurationSeconds != 20 {
		t.Errorf("expected duration 20, got %v", result.DurationSeconds)
	}
	if result.HighlightsCount != 1 {
		t.Errorf("expected 1 highlight, got %d", result.HighlightsCount)
	}
	if result.StaticSegmentsCount != 1 {
		t.Errorf("expected 1 static segment, got %d", result.StaticSegmentsCount)
	}
	if len(result.Tags) != 2 || result.Tags[0] != "forest" || result.Tags[1] != "freestyle" {
		t.Errorf("unexpected tags %v", result.Tags)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", result.Warnings)
	}

	sc, err := sidecar.NewFileRepository().Read(f.video)
	if err != nil {
		t.Fatalf("failed to read sidecar: %v", err)
	}
	if sc.SchemaVersion != "1.0" || sc.OllamaModel != "llava:13b" || sc.AnalyzerVersion != "0.1.0" {
		t.Errorf("unexpected header %+v", sc)
	}
	if sc.Analysis.FramesSampled != 11 || sc.Analysis.FramesAnalyzed != 11 || sc.Analysis.FramesDropped != 0 {
		t.Errorf("unexpected analysis counts %+v", sc.Analysis)
	}
	if sc.Source.Resolution != [2]int{1920, 1080} || sc.Source.SourceType != models.SourceOnboard {
		t.Errorf("unexpected source %+v", sc.Source)
	}
	if sc.Highlights[0].Score != 9 || sc.Highlights[0].Start != 8 || sc.Highlights[0].End != 16 {
		t.Errorf("unexpected highlight %+v", sc.Highlights[0])
	}
	if sc.Summary != "A forest freestyle flight." {
		t.Errorf("unexpected summary %q", sc.Summary)
	}

	want := []Stage{StageProbing, StageSampling, StageStaticDetection, StageVisionAnalysis,
		StageAggregating, StageSummarizing, StageWriting, StageDone}
	if fmt.Sprint(f.observer.stages) != fmt.Sprint(want) {
		t.Errorf("expected stages %v, got %v", want, f.observer.stages)
	}

	if len(result.Outcomes) != 7 {
		t.Errorf("expected 7 stage outcomes, got %d", len(result.Outcomes))
	}
	for _, o := range result.Outcomes {
		if !o.OK {
			t.Errorf("stage %s not ok: %s", o.Stage, o.Error)
		}
	}
}

func TestOrchestratorIdempotence(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator()

	if _, err := o.Run(context.Background(), f.video, false, Options{}); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	first, _ := os.ReadFile(f.video + sidecar.Suffix)

	f.summary.text = "Second opinion."
	extractCalls := f.frames.calls
	_, err := o.Run(context.Background(), f.video, false, Options{})
	if !errors.Is(err, sidecar.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if f.frames.calls != extractCalls {
		t.Error("conflicting run should not execute any stage")
	}
	second, _ := os.ReadFile(f.video + sidecar.Suffix)
	if string(first) != string(second) {
		t.Error("sidecar changed after conflicting run")
	}

	if _, err := o.Run(context.Background(), f.video, true, Options{}); err != nil {
		t.Fatalf("forced run failed: %v", err)
	}
	sc, err := sidecar.NewFileRepository().Read(f.video)
	if err != nil {
		t.Fatal(err)
	}
	if sc.Summary != "Second opinion." {
		t.Errorf("expected forced run to replace the sidecar, got summary %q", sc.Summary)
	}
}

func TestOrchestratorTerminalFailures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(f *fixture)
		wantStage Stage
		wantErr   error
	}{
		{
			name:      "probe unavailable",
			setup:     func(f *fixture) { f.prober.err = media.ErrProbeUnavailable },
			wantStage: StageProbing,
			wantErr:   media.ErrProbeUnavailable,
		},
		{
			name: "zero duration",
			setup: func(f *fixture) {
				f.prober.result.Duration = 0
			},
			wantStage: StageSampling,
			wantErr:   media.ErrProbeUnavailable,
		},
		{
			name:      "vision unavailable",
			setup:     func(f *fixture) { f.vision.err = fmt.Errorf("%w: refused", ai.ErrVisionUnavailable) },
			wantStage: StageVisionAnalysis,
			wantErr:   ai.ErrVisionUnavailable,
		},
		{
			name:      "frames unreadable",
			setup:     func(f *fixture) { f.static.err = fmt.Errorf("%w: bad jpeg", media.ErrExtractionFailed) },
			wantStage: StageStaticDetection,
			wantErr:   media.ErrExtractionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			_, err := f.orchestrator().Run(context.Background(), f.video, false, Options{})
			var ae *AnalysisError
			if !errors.As(err, &ae) {
				t.Fatalf("expected AnalysisError, got %v", err)
			}
			if ae.Stage != tt.wantStage {
				t.Errorf("expected failure at %s, got %s", tt.wantStage, ae.Stage)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if _, statErr := os.Stat(f.video + sidecar.Suffix); !os.IsNotExist(statErr) {
				t.Error("no sidecar should be written on terminal failure")
			}
			last := f.observer.stages[len(f.observer.stages)-1]
			if last != StageFailed {
				t.Errorf("expected last stage failed, got %s", last)
			}
		})
	}
}

func TestOrchestratorCancellationWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.vision.onCall = cancel

	_, err := f.orchestrator().Run(ctx, f.video, false, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, statErr := os.Stat(f.video + sidecar.Suffix); !os.IsNotExist(statErr) {
		t.Error("cancelled run must not write a sidecar")
	}
}

func TestOrchestratorDegradedOutputs(t *testing.T) {
	f := newFixture(t)
	f.summary.err = fmt.Errorf("%w: timeout", ai.ErrSummaryUnavailable)
	f.scenes.err = errors.New("ffmpeg exploded")

	result, err := f.orchestrator().Run(context.Background(), f.video, false, Options{})
	if err != nil {
		t.Fatalf("degraded run should still succeed: %v", err)
	}
	if result.Sidecar.Summary != ai.PlaceholderSummary {
		t.Errorf("expected placeholder summary, got %q", result.Sidecar.Summary)
	}
	if len(result.Warnings) != 2 || len(result.Sidecar.Analysis.Warnings) != 2 {
		t.Errorf("expected 2 warnings, got %v", result.Warnings)
	}
}

func TestOrchestratorXMPOption(t *testing.T) {
	f := newFixture(t)

	result, err := f.orchestrator().Run(context.Background(), f.video, false, Options{GenerateXMP: true, TrimStatic: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.XMPPath != sidecar.XMPPathFor(f.video) {
		t.Errorf("unexpected xmp path %q", result.XMPPath)
	}
	if _, err := os.Stat(result.XMPPath); err != nil {
		t.Errorf("xmp not written: %v", err)
	}
	// no trimmer configured: a warning, not a failure
	if result.TrimmedPath != "" || len(result.Warnings) != 1 {
		t.Errorf("expected one trim warning, got %q %v", result.TrimmedPath, result.Warnings)
	}
}
