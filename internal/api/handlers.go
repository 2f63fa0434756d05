package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cori/video-analysis-pipeline/internal/ai"
	"github.com/cori/video-analysis-pipeline/internal/database"
	"github.com/cori/video-analysis-pipeline/internal/models"
	"github.com/cori/video-analysis-pipeline/internal/service"
	"github.com/cori/video-analysis-pipeline/internal/sidecar"
)

type Service interface {
	Analyze(ctx context.Context, req service.AnalyzeRequest) (*service.AnalyzeResponse, error)
	Status(ctx context.Context) *service.StatusResponse
	TriggerCrawl(ctx context.Context) (int, error)
	GetMetadata(videoPath string) (*models.Sidecar, error)
	RecentRuns(ctx context.Context, limit int) ([]*database.AnalysisRun, error)
	LatestRun(ctx context.Context, videoPath string) (*database.AnalysisRun, error)
}

type App struct {
	Service Service
	Hub     *Hub
	Name    string
	Version string
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[API] Error: %v", err)
	}
	writeJSON(w, status, errorResponse{Detail: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrCrawlerDisabled):
		return http.StatusBadRequest
	case errors.Is(err, sidecar.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ai.ErrVisionUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, sidecar.ErrNotFound), errors.Is(err, service.ErrNoRuns):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (app *App) HomeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": app.Name,
		"version": app.Version,
		"endpoints": []string{
			"POST /analyze",
			"GET /status",
			"GET /health",
			"POST /crawler/trigger",
			"GET /video/{path}/metadata",
			"GET /runs",
			"GET /metrics",
			"GET /ws/events",
		},
	})
}

func (app *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"healthy": true})
}

func (app *App) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	var req service.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body: %v", service.ErrInvalidInput, err))
		return
	}
	log.Printf("[API] Analysis requested for %s (force=%v)", req.Path, req.Force)

	resp, err := app.Service.Analyze(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (app *App) StatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.Service.Status(r.Context()))
}

func (app *App) TriggerCrawlerHandler(w http.ResponseWriter, r *http.Request) {
	n, err := app.Service.TriggerCrawl(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"triggered": true, "videos_queued": n})
}

// MetadataHandler serves GET /video/{path...}/metadata. The video path is
// everything between the prefix and the suffix; it is treated as absolute.
func (app *App) MetadataHandler(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "*")
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	videoPath, ok := strings.CutSuffix(raw, "/metadata")
	if !ok || videoPath == "" {
		writeJSON(w, http.StatusNotFound, errorResponse{Detail: "not found"})
		return
	}
	if !filepath.IsAbs(videoPath) {
		videoPath = "/" + videoPath
	}

	sc, err := app.Service.GetMetadata(videoPath)
	if err != nil {
		if errors.Is(err, sidecar.ErrNotFound) {
			err = fmt.Errorf("%w: metadata not found for %s", sidecar.ErrNotFound, videoPath)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// RunsHandler lists recent analysis runs, or only the newest run of one
// video when ?path= is given.
func (app *App) RunsHandler(w http.ResponseWriter, r *http.Request) {
	if videoPath := r.URL.Query().Get("path"); videoPath != "" {
		run, err := app.Service.LatestRun(r.Context(), videoPath)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": []*database.AnalysisRun{run}})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, fmt.Errorf("%w: limit must be a positive integer", service.ErrInvalidInput))
			return
		}
		limit = n
	}

	runs, err := app.Service.RecentRuns(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
