package models

import (
	"path/filepath"
	"time"
)

const SchemaVersion = "1.0"

type Sidecar struct {
	SchemaVersion   string           `json:"schema_version"`
	AnalyzedAt      time.Time        `json:"analyzed_at"`
	AnalyzerVersion string           `json:"analyzer_version"`
	OllamaModel     string           `json:"ollama_model"`
	Source          SourceMetadata   `json:"source"`
	Analysis        AnalysisMetadata `json:"analysis"`
	Tags            []string         `json:"tags"`
	Summary         string           `json:"summary"`
	StaticSegments  []StaticSegment  `json:"static_segments"`
	Highlights      []Highlight      `json:"highlights"`
	FrameAnalysis   []FrameAnalysis  `json:"frame_analysis"`
	Quality         QualitySummary   `json:"quality"`
	Custom          map[string]any   `json:"custom"`
}

type SourceMetadata struct {
	Filename        string     `json:"filename"`
	DurationSeconds float64    `json:"duration_seconds"`
	Resolution      [2]int     `json:"resolution"`
	Framerate       float64    `json:"framerate"`
	Codec           string     `json:"codec"`
	FileSizeBytes   int64      `json:"file_size_bytes"`
	CreationTime    *time.Time `json:"creation_time,omitempty"`
	SourceType      SourceType `json:"source_type"`
}

type AnalysisMetadata struct {
	FramesSampled           int      `json:"frames_sampled"`
	FramesAnalyzed          int      `json:"frames_analyzed"`
	FramesDropped           int      `json:"frames_dropped"`
	AnalysisDurationSeconds float64  `json:"analysis_duration_seconds"`
	Warnings                []string `json:"warnings"`
}

func NewSourceMetadata(path string, probe *ProbeResult) SourceMetadata {
	name := probe.Filename
	if name == "" {
		name = filepath.Base(path)
	}
	return SourceMetadata{
		Filename:        name,
		DurationSeconds: probe.Duration,
		Resolution:      [2]int{probe.Width, probe.Height},
		Framerate:       probe.Framerate,
		Codec:           probe.Codec,
		FileSizeBytes:   probe.FileSize,
		CreationTime:    probe.CreationTime,
		SourceType:      probe.SourceType,
	}
}

// Normalize replaces nil slices and maps so the JSON form always carries
// arrays and objects rather than nulls.
func (s *Sidecar) Normalize() {
	if s.Tags == nil {
		s.Tags = []string{}
	}
	if s.StaticSegments == nil {
		s.StaticSegments = []StaticSegment{}
	}
	if s.Highlights == nil {
		s.Highlights = []Highlight{}
	}
	if s.FrameAnalysis == nil {
		s.FrameAnalysis = []FrameAnalysis{}
	}
	for i := range s.FrameAnalysis {
		if s.FrameAnalysis[i].Environment == nil {
			s.FrameAnalysis[i].Environment = []string{}
		}
		if s.FrameAnalysis[i].QualityIssues == nil {
			s.FrameAnalysis[i].QualityIssues = []string{}
		}
	}
	for i := range s.Highlights {
		if s.Highlights[i].Tags == nil {
			s.Highlights[i].Tags = []string{}
		}
	}
	if s.Quality.Issues == nil {
		s.Quality.Issues = []string{}
	}
	if s.Quality.SignalLossSegments == nil {
		s.Quality.SignalLossSegments = []TimeRange{}
	}
	if s.Analysis.Warnings == nil {
		s.Analysis.Warnings = []string{}
	}
	if s.Custom == nil {
		s.Custom = map[string]any{}
	}
}
