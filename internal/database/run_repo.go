package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusComplete = "complete"
	RunStatusFailed   = "failed"
)

// AnalysisRun is one row of the analysis history: every orchestrator run,
// completed or failed, for any video.
type AnalysisRun struct {
	ID                  string    `json:"id"`
	VideoPath           string    `json:"video_path"`
	Status              string    `json:"status"`
	FailedStage         string    `json:"failed_stage,omitempty"`
	Error               string    `json:"error,omitempty"`
	Warnings            []string  `json:"warnings"`
	FramesSampled       int       `json:"frames_sampled"`
	FramesAnalyzed      int       `json:"frames_analyzed"`
	Tags                []string  `json:"tags"`
	HighlightsCount     int       `json:"highlights_count"`
	StaticSegmentsCount int       `json:"static_segments_count"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
	DurationMS          int64     `json:"duration_ms"`
}

type RunRepository struct {
	db *DB
}

func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `id, video_path, status, failed_stage, error, warnings, frames_sampled,
	frames_analyzed, tags, highlights_count, static_segments_count, started_at, finished_at, duration_ms`

func (r *RunRepository) Create(ctx context.Context, run *AnalysisRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Warnings == nil {
		run.Warnings = []string{}
	}
	if run.Tags == nil {
		run.Tags = []string{}
	}

	warningsJSON, err := json.Marshal(run.Warnings)
	if err != nil {
		return fmt.Errorf("failed to marshal warnings: %w", err)
	}
	tagsJSON, err := json.Marshal(run.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
		INSERT INTO analysis_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = r.db.conn.ExecContext(ctx, query,
		run.ID,
		run.VideoPath,
		run.Status,
		run.FailedStage,
		run.Error,
		string(warningsJSON),
		run.FramesSampled,
		run.FramesAnalyzed,
		string(tagsJSON),
		run.HighlightsCount,
		run.StaticSegmentsCount,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		run.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis run: %w", err)
	}
	return nil
}

// ListRecent returns up to limit runs, newest first.
func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]*AnalysisRun, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + runColumns + ` FROM analysis_runs ORDER BY started_at DESC LIMIT $1`
	rows, err := r.db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis runs: %w", err)
	}
	defer rows.Close()

	runs := []*AnalysisRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analysis runs: %w", err)
	}
	return runs, nil
}

// LatestForPath returns the newest run for a video, or nil when it was
// never analyzed.
func (r *RunRepository) LatestForPath(ctx context.Context, videoPath string) (*AnalysisRun, error) {
	query := `SELECT ` + runColumns + ` FROM analysis_runs WHERE video_path = $1 ORDER BY started_at DESC LIMIT 1`
	row := r.db.conn.QueryRowContext(ctx, query, videoPath)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*AnalysisRun, error) {
	run := &AnalysisRun{}
	var warningsJSON, tagsJSON string

	err := s.Scan(
		&run.ID,
		&run.VideoPath,
		&run.Status,
		&run.FailedStage,
		&run.Error,
		&warningsJSON,
		&run.FramesSampled,
		&run.FramesAnalyzed,
		&tagsJSON,
		&run.HighlightsCount,
		&run.StaticSegmentsCount,
		&run.StartedAt,
		&run.FinishedAt,
		&run.DurationMS,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan analysis run: %w", err)
	}

	if err := json.Unmarshal([]byte(warningsJSON), &run.Warnings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal warnings: %w", err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &run.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	return run, nil
}
