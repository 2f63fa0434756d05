package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cori/video-analysis-pipeline/internal/ai"
	"github.com/cori/video-analysis-pipeline/internal/crawler"
	"github.com/cori/video-analysis-pipeline/internal/database"
	"github.com/cori/video-analysis-pipeline/internal/events"
	"github.com/cori/video-analysis-pipeline/internal/metrics"
	"github.com/cori/video-analysis-pipeline/internal/models"
	"github.com/cori/video-analysis-pipeline/internal/pipeline"
	"github.com/cori/video-analysis-pipeline/internal/sidecar"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrCrawlerDisabled = errors.New("crawler is not enabled")
	ErrNoRuns          = errors.New("no analysis runs recorded")
)

type Runner interface {
	Run(ctx context.Context, videoPath string, force bool, opts pipeline.Options) (*pipeline.Result, error)
}

type SidecarReader interface {
	Exists(videoPath string) (bool, error)
	Read(videoPath string) (*models.Sidecar, error)
}

type History interface {
	Create(ctx context.Context, run *database.AnalysisRun) error
	ListRecent(ctx context.Context, limit int) ([]*database.AnalysisRun, error)
	LatestForPath(ctx context.Context, videoPath string) (*database.AnalysisRun, error)
}

type HealthChecker interface {
	Health(ctx context.Context) error
}

type Crawler interface {
	Status(ctx context.Context) crawler.Status
	Trigger(ctx context.Context) (int, error)
	QueueLen(ctx context.Context) int
}

// Dependencies wires a Service. History, Publisher, Health and Crawler are
// optional.
type Dependencies struct {
	Runner    Runner
	Sidecars  SidecarReader
	History   History
	Publisher events.Publisher
	Health    HealthChecker
	Crawler   Crawler
	Slot      *pipeline.Slot
}

type Config struct {
	Model         string
	HealthTimeout time.Duration
}

type AnalyzeRequest struct {
	Path    string           `json:"path"`
	Force   bool             `json:"force"`
	Options pipeline.Options `json:"options"`
}

type AnalyzeResponse struct {
	Status              string   `json:"status"`
	Path                string   `json:"path"`
	Sidecar             string   `json:"sidecar"`
	DurationSeconds     float64  `json:"duration_seconds"`
	Tags                []string `json:"tags"`
	HighlightsCount     int      `json:"highlights_count"`
	StaticSegmentsCount int      `json:"static_segments_count"`
	Warnings            []string `json:"warnings"`
	XMP                 string   `json:"xmp,omitempty"`
	Trimmed             string   `json:"trimmed,omitempty"`
}

type StatusResponse struct {
	Status          string         `json:"status"`
	OllamaConnected bool           `json:"ollama_connected"`
	OllamaModel     string         `json:"ollama_model"`
	QueueDepth      int            `json:"queue_depth"`
	InFlight        bool           `json:"in_flight"`
	Crawler         crawler.Status `json:"crawler"`
}

// Service is the surface shared by the HTTP API, the CLI and the crawler.
// Every analysis goes through the same single-flight slot.
type Service struct {
	runner    Runner
	sidecars  SidecarReader
	history   History
	publisher events.Publisher
	health    HealthChecker
	crawler   Crawler
	slot      *pipeline.Slot
	model     string
	timeout   time.Duration
}

func NewService(deps Dependencies, config Config) *Service {
	if deps.Sidecars == nil {
		deps.Sidecars = sidecar.NewFileRepository()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	if deps.Slot == nil {
		deps.Slot = pipeline.NewSlot()
	}
	if config.HealthTimeout == 0 {
		config.HealthTimeout = 5 * time.Second
	}

	return &Service{
		runner:    deps.Runner,
		sidecars:  deps.Sidecars,
		history:   deps.History,
		publisher: deps.Publisher,
		health:    deps.Health,
		crawler:   deps.Crawler,
		slot:      deps.Slot,
		model:     config.Model,
		timeout:   config.HealthTimeout,
	}
}

// SetCrawler attaches the crawler after construction; the crawler needs the
// service as its dispatcher.
func (s *Service) SetCrawler(c Crawler) {
	s.crawler = c
}

func (s *Service) validate(path string) (models.VideoRef, error) {
	if path == "" {
		return models.VideoRef{}, fmt.Errorf("%w: path is required", ErrInvalidInput)
	}
	ref, err := models.NewVideoRef(path)
	if err != nil {
		return models.VideoRef{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	info, err := os.Stat(ref.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.VideoRef{}, fmt.Errorf("%w: file not found: %s", ErrInvalidInput, path)
		}
		return models.VideoRef{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if info.IsDir() {
		return models.VideoRef{}, fmt.Errorf("%w: not a file: %s", ErrInvalidInput, path)
	}
	if !models.IsVideoFile(ref.Path) {
		return models.VideoRef{}, fmt.Errorf("%w: not a video file: %s", ErrInvalidInput, path)
	}
	return ref, nil
}

// Analyze validates the request, waits for the analysis slot and runs the
// pipeline. Conflicts are reported before waiting.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	ref, err := s.validate(req.Path)
	if err != nil {
		return nil, err
	}
	path := ref.Path

	if !req.Force {
		exists, err := s.sidecars.Exists(path)
		if err != nil {
			return nil, err
		}
		if exists {
			metrics.RecordAnalysis("conflict")
			return nil, fmt.Errorf("%w: %s. Use force=true to re-analyze", sidecar.ErrConflict, sidecar.PathFor(path))
		}
	}

	if s.health != nil {
		hctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := s.health.Health(hctx)
		cancel()
		if err != nil {
			metrics.RecordAnalysis("failed")
			return nil, fmt.Errorf("%w: %v", ai.ErrVisionUnavailable, err)
		}
	}

	if waiting := s.slot.Waiting(); waiting > 0 || s.slot.InFlight() {
		log.Printf("[SERVICE] %s waiting for analysis slot (%d ahead)", path, waiting+1)
	}
	if err := s.slot.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.slot.Release()
	s.refreshQueueDepth(ctx)
	defer s.refreshQueueDepth(context.WithoutCancel(ctx))

	started := time.Now()
	result, err := s.runner.Run(ctx, path, req.Force, req.Options)
	if err != nil {
		if errors.Is(err, sidecar.ErrConflict) {
			metrics.RecordAnalysis("conflict")
			return nil, err
		}
		metrics.RecordAnalysis("failed")
		s.recordFailure(ctx, path, started, err)
		return nil, err
	}

	metrics.RecordAnalysis("complete")
	s.recordSuccess(ctx, result)

	return &AnalyzeResponse{
		Status:              "complete",
		Path:                path,
		Sidecar:             result.SidecarPath,
		DurationSeconds:     result.DurationSeconds,
		Tags:                result.Tags,
		HighlightsCount:     result.HighlightsCount,
		StaticSegmentsCount: result.StaticSegmentsCount,
		Warnings:            result.Warnings,
		XMP:                 result.XMPPath,
		Trimmed:             result.TrimmedPath,
	}, nil
}

// Dispatch lets the crawler feed videos through Analyze without options.
// An unreachable vision backend is not the video's fault, so it is marked
// for retry instead of cooldown.
func (s *Service) Dispatch(ctx context.Context, videoPath string) error {
	_, err := s.Analyze(ctx, AnalyzeRequest{Path: videoPath})
	if errors.Is(err, ai.ErrVisionUnavailable) {
		return errors.Join(crawler.ErrRetryLater, err)
	}
	return err
}

func (s *Service) recordSuccess(ctx context.Context, result *pipeline.Result) {
	ctx = context.WithoutCancel(ctx)

	if s.history != nil {
		run := &database.AnalysisRun{
			ID:                  result.RunID,
			VideoPath:           result.VideoPath,
			Status:              database.RunStatusComplete,
			Warnings:            result.Warnings,
			Tags:                result.Tags,
			HighlightsCount:     result.HighlightsCount,
			StaticSegmentsCount: result.StaticSegmentsCount,
			StartedAt:           result.StartedAt,
			FinishedAt:          result.FinishedAt,
			DurationMS:          result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		}
		if result.Sidecar != nil {
			run.FramesSampled = result.Sidecar.Analysis.FramesSampled
			run.FramesAnalyzed = result.Sidecar.Analysis.FramesAnalyzed
		}
		if err := s.history.Create(ctx, run); err != nil {
			log.Printf("[SERVICE] Warning: failed to record run for %s: %v", result.VideoPath, err)
		}
	}

	event := events.NewEvent(events.TypeCompleted, result.VideoPath)
	event.Status = database.RunStatusComplete
	event.SidecarPath = result.SidecarPath
	event.Tags = result.Tags
	event.HighlightsCount = result.HighlightsCount
	event.StaticSegmentsCount = result.StaticSegmentsCount
	s.publish(ctx, event)
}

func (s *Service) recordFailure(ctx context.Context, path string, started time.Time, runErr error) {
	ctx = context.WithoutCancel(ctx)
	finished := time.Now()

	var stage string
	var ae *pipeline.AnalysisError
	if errors.As(runErr, &ae) {
		stage = string(ae.Stage)
	}

	if s.history != nil {
		run := &database.AnalysisRun{
			VideoPath:   path,
			Status:      database.RunStatusFailed,
			FailedStage: stage,
			Error:       runErr.Error(),
			StartedAt:   started,
			FinishedAt:  finished,
			DurationMS:  finished.Sub(started).Milliseconds(),
		}
		if err := s.history.Create(ctx, run); err != nil {
			log.Printf("[SERVICE] Warning: failed to record run for %s: %v", path, err)
		}
	}

	event := events.NewEvent(events.TypeFailed, path)
	event.Status = database.RunStatusFailed
	event.FailedStage = stage
	event.Error = runErr.Error()
	s.publish(ctx, event)
}

func (s *Service) publish(ctx context.Context, event *events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("[SERVICE] Warning: failed to publish %s for %s: %v", event.Type, event.Path, err)
	}
}

// GetMetadata returns the stored sidecar without analyzing anything.
func (s *Service) GetMetadata(videoPath string) (*models.Sidecar, error) {
	if videoPath == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidInput)
	}
	ref, err := models.NewVideoRef(videoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.sidecars.Read(ref.Path)
}

func (s *Service) queueDepth(ctx context.Context) int {
	depth := s.slot.Waiting()
	if s.crawler != nil {
		depth += s.crawler.QueueLen(ctx)
	}
	return depth
}

func (s *Service) refreshQueueDepth(ctx context.Context) {
	metrics.SetQueueDepth(s.queueDepth(ctx))
}

func (s *Service) Status(ctx context.Context) *StatusResponse {
	connected := false
	if s.health != nil {
		hctx, cancel := context.WithTimeout(ctx, s.timeout)
		connected = s.health.Health(hctx) == nil
		cancel()
	}

	resp := &StatusResponse{
		Status:          "healthy",
		OllamaConnected: connected,
		OllamaModel:     s.model,
		QueueDepth:      s.queueDepth(ctx),
		InFlight:        s.slot.InFlight(),
		Crawler:         crawler.Status{Enabled: false, State: crawler.StateDisabled},
	}
	if !connected {
		resp.Status = "degraded"
	}
	if s.crawler != nil {
		resp.Crawler = s.crawler.Status(ctx)
	}
	metrics.SetQueueDepth(resp.QueueDepth)
	return resp
}

// TriggerCrawl runs a crawl now and reports how many videos it queued.
func (s *Service) TriggerCrawl(ctx context.Context) (int, error) {
	if s.crawler == nil {
		return 0, ErrCrawlerDisabled
	}
	n, err := s.crawler.Trigger(ctx)
	if err != nil {
		return 0, fmt.Errorf("crawl failed: %w", err)
	}
	return n, nil
}

func (s *Service) RecentRuns(ctx context.Context, limit int) ([]*database.AnalysisRun, error) {
	if s.history == nil {
		return []*database.AnalysisRun{}, nil
	}
	return s.history.ListRecent(ctx, limit)
}

// LatestRun returns the newest recorded run for one video.
func (s *Service) LatestRun(ctx context.Context, videoPath string) (*database.AnalysisRun, error) {
	if videoPath == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidInput)
	}
	ref, err := models.NewVideoRef(videoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if s.history == nil {
		return nil, fmt.Errorf("%w for %s", ErrNoRuns, ref.Path)
	}
	run, err := s.history.LatestForPath(ctx, ref.Path)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("%w for %s", ErrNoRuns, ref.Path)
	}
	return run, nil
}
