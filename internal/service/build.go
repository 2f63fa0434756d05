package service

import (
	"fmt"
	"log"
	"time"

	"github.com/cori/video-analysis-pipeline/internal/aggregate"
	"github.com/cori/video-analysis-pipeline/internal/ai"
	"github.com/cori/video-analysis-pipeline/internal/config"
	"github.com/cori/video-analysis-pipeline/internal/database"
	"github.com/cori/video-analysis-pipeline/internal/media"
	"github.com/cori/video-analysis-pipeline/internal/pipeline"
	"github.com/cori/video-analysis-pipeline/internal/sidecar"
	"github.com/cori/video-analysis-pipeline/internal/static"
)

func AIConfig(cfg *config.Config) *ai.Config {
	return &ai.Config{
		Host:         cfg.Ollama.Host,
		Model:        cfg.Ollama.Model,
		Timeout:      cfg.Ollama.Timeout(),
		MaxRetries:   cfg.Ollama.MaxRetries,
		RetryBackoff: cfg.Ollama.RetryBackoff(),
	}
}

func DatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		Type:       cfg.Database.Type,
		Host:       cfg.Database.Host,
		Port:       cfg.Database.Port,
		User:       cfg.Database.User,
		Password:   cfg.Database.Password,
		Name:       cfg.Database.Name,
		SQLitePath: cfg.Database.Path,
	}
}

// BuildOrchestrator wires the media tools, the detectors and the Ollama
// client into one orchestrator. ffprobe and ffmpeg are required; trimming
// degrades to a warning when its tool check fails.
func BuildOrchestrator(cfg *config.Config, observer pipeline.Observer) (*pipeline.Orchestrator, *ai.OllamaClient, error) {
	prober, err := media.NewProber()
	if err != nil {
		return nil, nil, err
	}
	extractor, err := media.NewFrameExtractor(cfg.Analysis.FrameWidth)
	if err != nil {
		return nil, nil, err
	}
	scenes, err := media.NewSceneDetector(cfg.Analysis.SceneThreshold)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize scene detector: %w", err)
	}

	aiCfg := AIConfig(cfg)
	client := ai.NewOllamaClient(aiCfg)

	deps := pipeline.Dependencies{
		Prober: prober,
		Frames: extractor,
		Scenes: scenes,
		Sampler: media.NewSampler(media.SamplerConfig{
			Interval:  cfg.Analysis.SampleInterval,
			MaxFrames: cfg.Analysis.MaxFrames,
		}),
		Static: static.NewDetector(static.Config{
			Threshold:   cfg.Analysis.StaticThreshold,
			MinDuration: cfg.Analysis.MinStaticDuration,
			Metric:      static.Metric(cfg.Analysis.DiffMetric),
		}),
		Vision: ai.NewVisionService(client, aiCfg),
		Aggregator: aggregate.NewAggregator(aggregate.Config{
			TagThreshold:            cfg.Analysis.TagFrequencyThreshold,
			HighlightScoreThreshold: cfg.Analysis.HighlightScoreThreshold,
			HighlightMinDuration:    cfg.Analysis.HighlightMinDuration,
		}),
		Summarizer: ai.NewSummarizer(client, aiCfg),
		Store:      sidecar.NewFileRepository(),
		Observer:   observer,
	}

	// A nil *Trimmer must not end up in the interface.
	if trimmer, err := media.NewTrimmer(); err != nil {
		log.Printf("Warning: static trimming unavailable: %v", err)
	} else {
		deps.Trimmer = trimmer
	}

	orchestrator := pipeline.New(deps, pipeline.Config{
		AnalyzerVersion: cfg.AppVersion,
		Model:           cfg.Ollama.Model,
	})
	return orchestrator, client, nil
}

// HealthTimeout bounds the Ollama reachability probe used by Status and
// before each analysis.
func HealthTimeout(cfg *config.Config) time.Duration {
	if t := cfg.Ollama.Timeout(); t < 5*time.Second {
		return t
	}
	return 5 * time.Second
}
