package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cori/video-analysis-pipeline/internal/aggregate"
	"github.com/cori/video-analysis-pipeline/internal/ai"
	"github.com/cori/video-analysis-pipeline/internal/media"
	"github.com/cori/video-analysis-pipeline/internal/metrics"
	"github.com/cori/video-analysis-pipeline/internal/models"
	"github.com/cori/video-analysis-pipeline/internal/sidecar"
)

type Prober interface {
	Probe(ctx context.Context, videoPath string) (*models.ProbeResult, error)
}

type FrameSource interface {
	ExtractFrames(ctx context.Context, videoPath string, timestamps []float64) ([]models.SampledFrame, error)
}

type SceneSource interface {
	DetectScenes(ctx context.Context, videoPath string) ([]float64, error)
}

type StaticDetector interface {
	Detect(frames []models.SampledFrame, duration float64) ([]models.StaticSegment, error)
}

type FrameAnalyzer interface {
	AnalyzeFrames(ctx context.Context, frames []models.SampledFrame) ([]ai.FrameResult, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, analyses []models.FrameAnalysis) (string, error)
}

type SidecarStore interface {
	Exists(videoPath string) (bool, error)
	Write(videoPath string, sc *models.Sidecar, force bool) (string, error)
}

type Trimmer interface {
	Trim(ctx context.Context, videoPath string, start, end float64) (string, error)
}

// Dependencies are the collaborators of one Orchestrator. Scenes, Trimmer
// and Observer may be nil.
type Dependencies struct {
	Prober     Prober
	Frames     FrameSource
	Scenes     SceneSource
	Sampler    *media.Sampler
	Static     StaticDetector
	Vision     FrameAnalyzer
	Aggregator *aggregate.Aggregator
	Summarizer Summarizer
	Store      SidecarStore
	Trimmer    Trimmer
	Observer   Observer
}

type Config struct {
	AnalyzerVersion string
	Model           string
}

type Options struct {
	GenerateXMP bool `json:"generate_xmp"`
	TrimStatic  bool `json:"trim_static"`
}

type Result struct {
	RunID               string
	VideoPath           string
	SidecarPath         string
	Sidecar             *models.Sidecar
	DurationSeconds     float64
	Tags                []string
	HighlightsCount     int
	StaticSegmentsCount int
	Warnings            []string
	XMPPath             string
	TrimmedPath         string
	Outcomes            []StageOutcome
	StartedAt           time.Time
	FinishedAt          time.Time
}

type Orchestrator struct {
	deps   Dependencies
	config Config
}

func New(deps Dependencies, config Config) *Orchestrator {
	if deps.Sampler == nil {
		deps.Sampler = media.NewSampler(media.SamplerConfig{})
	}
	if deps.Aggregator == nil {
		deps.Aggregator = aggregate.NewAggregator(aggregate.DefaultConfig())
	}
	return &Orchestrator{deps: deps, config: config}
}

// Run analyzes one video and writes its sidecar. An existing sidecar stops
// the run before any stage unless force is set. Terminal failures are
// returned as *AnalysisError and leave no sidecar behind; so does
// cancellation, which is checked between stages.
func (o *Orchestrator) Run(ctx context.Context, videoPath string, force bool, opts Options) (*Result, error) {
	if !force {
		exists, err := o.deps.Store.Exists(videoPath)
		if err != nil {
			return nil, fmt.Errorf("failed to check sidecar: %w", err)
		}
		if exists {
			log.Printf("[PIPELINE] Sidecar already exists for %s, skipping", videoPath)
			return nil, fmt.Errorf("%w: %s", sidecar.ErrConflict, sidecar.PathFor(videoPath))
		}
	}

	run := newRun(videoPath, o.deps.Observer)
	log.Printf("[PIPELINE] Starting analysis of %s (run %s)", videoPath, run.ID)

	var warnings []string
	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		log.Printf("[PIPELINE] Warning: %s: %s", videoPath, msg)
		warnings = append(warnings, msg)
	}

	// Probing
	if err := o.begin(ctx, run, StageProbing); err != nil {
		return nil, err
	}
	started := time.Now()
	probe, err := o.deps.Prober.Probe(ctx, videoPath)
	o.finish(run, StageProbing, started, err)
	if err != nil {
		return nil, o.abort(run, StageProbing, err)
	}
	log.Printf("[PIPELINE] %s: %.1fs, %dx%d, %s", videoPath, probe.Duration, probe.Width, probe.Height, probe.Codec)

	// Sampling
	if err := o.begin(ctx, run, StageSampling); err != nil {
		return nil, err
	}
	started = time.Now()
	var scenes []float64
	if o.deps.Scenes != nil {
		scenes, err = o.deps.Scenes.DetectScenes(ctx, videoPath)
		if err != nil {
			warn("scene detection failed, using interval sampling only: %v", err)
			scenes = nil
		}
	}
	frames, err := o.sample(ctx, videoPath, probe, scenes)
	o.finish(run, StageSampling, started, err)
	if err != nil {
		return nil, o.abort(run, StageSampling, err)
	}

	// Static detection and vision analysis share the frames read-only.
	if err := o.begin(ctx, run, StageStaticDetection); err != nil {
		return nil, err
	}
	if err := run.enter(StageVisionAnalysis); err != nil {
		return nil, o.abort(run, StageVisionAnalysis, err)
	}

	var segments []models.StaticSegment
	var results []ai.FrameResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		started := time.Now()
		segs, err := o.deps.Static.Detect(frames, probe.Duration)
		o.finish(run, StageStaticDetection, started, err)
		if err != nil {
			return &AnalysisError{Stage: StageStaticDetection, Err: err}
		}
		segments = segs
		return nil
	})
	g.Go(func() error {
		started := time.Now()
		res, err := o.deps.Vision.AnalyzeFrames(gctx, frames)
		o.finish(run, StageVisionAnalysis, started, err)
		if err != nil {
			return &AnalysisError{Stage: StageVisionAnalysis, Err: err}
		}
		results = res
		return nil
	})
	if err := g.Wait(); err != nil {
		var ae *AnalysisError
		if errors.As(err, &ae) {
			return nil, o.abort(run, ae.Stage, ae.Err)
		}
		return nil, o.abort(run, StageVisionAnalysis, err)
	}

	analyses := ai.Successful(results)
	if dropped := len(results) - len(analyses); dropped > 0 {
		warn("%d of %d frames dropped by the vision model", dropped, len(results))
	}

	// Aggregating
	if err := o.begin(ctx, run, StageAggregating); err != nil {
		return nil, err
	}
	started = time.Now()
	agg := o.deps.Aggregator.Aggregate(analyses, segments, probe.Duration)
	o.finish(run, StageAggregating, started, nil)

	// Summarizing
	if err := o.begin(ctx, run, StageSummarizing); err != nil {
		return nil, err
	}
	started = time.Now()
	summary, err := o.deps.Summarizer.Summarize(ctx, analyses)
	o.finish(run, StageSummarizing, started, err)
	if err != nil {
		warn("summary unavailable: %v", err)
		summary = ai.PlaceholderSummary
	}

	// Writing
	if err := o.begin(ctx, run, StageWriting); err != nil {
		return nil, err
	}
	started = time.Now()
	sc := &models.Sidecar{
		SchemaVersion:   models.SchemaVersion,
		AnalyzedAt:      time.Now().UTC().Truncate(time.Second),
		AnalyzerVersion: o.config.AnalyzerVersion,
		OllamaModel:     o.config.Model,
		Source:          models.NewSourceMetadata(videoPath, probe),
		Analysis: models.AnalysisMetadata{
			FramesSampled:           len(frames),
			FramesAnalyzed:          len(analyses),
			FramesDropped:           len(results) - len(analyses),
			AnalysisDurationSeconds: roundSeconds(time.Since(run.StartedAt)),
			Warnings:                append([]string(nil), warnings...),
		},
		Tags:           agg.Tags,
		Summary:        summary,
		StaticSegments: segments,
		Highlights:     agg.Highlights,
		FrameAnalysis:  analyses,
		Quality:        agg.Quality,
	}
	sidecarPath, err := o.deps.Store.Write(videoPath, sc, force)
	o.finish(run, StageWriting, started, err)
	if err != nil {
		return nil, o.abort(run, StageWriting, err)
	}

	result := &Result{
		RunID:               run.ID,
		VideoPath:           videoPath,
		SidecarPath:         sidecarPath,
		Sidecar:             sc,
		DurationSeconds:     probe.Duration,
		Tags:                sc.Tags,
		HighlightsCount:     len(sc.Highlights),
		StaticSegmentsCount: len(sc.StaticSegments),
		StartedAt:           run.StartedAt,
	}

	// Extras run after the sidecar is safely written; they only warn.
	if opts.GenerateXMP {
		xmpPath, err := sidecar.WriteXMP(videoPath, sc)
		if err != nil {
			warn("xmp export failed: %v", err)
		} else {
			result.XMPPath = xmpPath
		}
	}
	if opts.TrimStatic {
		result.TrimmedPath = o.trim(ctx, videoPath, probe.Duration, segments, warn)
	}

	if err := run.enter(StageDone); err != nil {
		return nil, o.abort(run, StageDone, err)
	}

	result.Warnings = warnings
	if result.Warnings == nil {
		result.Warnings = []string{}
	}
	result.Outcomes = run.Outcomes()
	result.FinishedAt = run.FinishedAt()

	log.Printf("[PIPELINE] Analysis of %s complete in %.1fs: %d tags, %d highlights, %d static segments",
		videoPath, run.Elapsed().Seconds(), len(result.Tags), result.HighlightsCount, result.StaticSegmentsCount)

	return result, nil
}

func (o *Orchestrator) sample(ctx context.Context, videoPath string, probe *models.ProbeResult, scenes []float64) ([]models.SampledFrame, error) {
	timestamps, err := o.deps.Sampler.Plan(probe, scenes)
	if err != nil {
		return nil, err
	}
	frames, err := o.deps.Frames.ExtractFrames(ctx, videoPath, timestamps)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no frames extracted", media.ErrExtractionFailed)
	}
	log.Printf("[PIPELINE] %s: sampled %d of %d planned frames", videoPath, len(frames), len(timestamps))
	return frames, nil
}

func (o *Orchestrator) trim(ctx context.Context, videoPath string, duration float64, segments []models.StaticSegment, warn func(string, ...any)) string {
	if o.deps.Trimmer == nil {
		warn("trim requested but ffmpeg is not available")
		return ""
	}
	start, end, ok := media.TrimRange(duration, segments)
	if !ok {
		log.Printf("[PIPELINE] %s: no leading or trailing static footage to trim", videoPath)
		return ""
	}
	path, err := o.deps.Trimmer.Trim(context.WithoutCancel(ctx), videoPath, start, end)
	if err != nil {
		warn("trim failed: %v", err)
		return ""
	}
	return path
}

// begin enters a stage unless the caller has gone away in the meantime.
func (o *Orchestrator) begin(ctx context.Context, run *Run, stage Stage) error {
	if err := ctx.Err(); err != nil {
		log.Printf("[PIPELINE] %s: cancelled before %s", run.VideoPath, stage)
		return o.abort(run, stage, err)
	}
	if err := run.enter(stage); err != nil {
		return o.abort(run, stage, err)
	}
	return nil
}

func (o *Orchestrator) finish(run *Run, stage Stage, started time.Time, err error) {
	run.record(stage, started, err)
	metrics.ObserveStage(string(stage), time.Since(started).Seconds())
}

func (o *Orchestrator) abort(run *Run, stage Stage, err error) error {
	run.fail(err)
	log.Printf("[PIPELINE] Analysis of %s failed at %s after %.1fs: %v", run.VideoPath, stage, run.Elapsed().Seconds(), err)
	return &AnalysisError{Stage: stage, Err: err}
}

func roundSeconds(d time.Duration) float64 {
	return float64(d.Round(10*time.Millisecond)) / float64(time.Second)
}
