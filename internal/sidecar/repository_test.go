package sidecar

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cori/video-analysis-pipeline/internal/models"
)

func testSidecar(summary string) *models.Sidecar {
	return &models.Sidecar{
		SchemaVersion:   models.SchemaVersion,
		AnalyzedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		AnalyzerVersion: "0.1.0",
		OllamaModel:     "llava:13b",
		Source: models.SourceMetadata{
			Filename:        "flight.mp4",
			DurationSeconds: 62.5,
			Resolution:      [2]int{1920, 1080},
			SourceType:      models.SourceOnboard,
		},
		Tags:    []string{"forest", "cruising"},
		Summary: summary,
		Quality: models.QualitySummary{OverallScore: 8},
	}
}

func TestFileRepository(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "flight.mp4")
	repo := NewFileRepository()

	t.Run("read missing", func(t *testing.T) {
		_, err := repo.Read(video)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		exists, err := repo.Exists(video)
		if err != nil || exists {
			t.Fatalf("expected no sidecar, got %v %v", exists, err)
		}
	})

	t.Run("first write", func(t *testing.T) {
		path, err := repo.Write(video, testSidecar("first"), false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if path != video+".meta.json" {
			t.Errorf("unexpected sidecar path %s", path)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read sidecar: %v", err)
		}
		if !bytes.HasSuffix(data, []byte("}\n")) {
			t.Error("expected trailing newline")
		}
		if !bytes.Contains(data, []byte("\n  \"schema_version\": \"1.0\"")) {
			t.Errorf("expected two-space indented schema_version, got:\n%s", data)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0644 {
			t.Errorf("expected mode 0644, got %v", info.Mode().Perm())
		}
	})

	t.Run("second write without force conflicts", func(t *testing.T) {
		before, _ := os.ReadFile(video + Suffix)

		_, err := repo.Write(video, testSidecar("second"), false)
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}

		after, _ := os.ReadFile(video + Suffix)
		if !bytes.Equal(before, after) {
			t.Error("sidecar changed on conflict")
		}
	})

	t.Run("forced write replaces", func(t *testing.T) {
		if _, err := repo.Write(video, testSidecar("third"), true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		sc, err := repo.Read(video)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sc.Summary != "third" {
			t.Errorf("expected replaced summary, got %q", sc.Summary)
		}
		if sc.Source.Resolution != [2]int{1920, 1080} {
			t.Errorf("unexpected resolution %v", sc.Source.Resolution)
		}
	})

	t.Run("no temp files left behind", func(t *testing.T) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".tmp") {
				t.Errorf("leftover temp file %s", e.Name())
			}
		}
		if len(entries) != 1 {
			t.Errorf("expected only the sidecar in %s, got %d entries", dir, len(entries))
		}
	})
}

func TestWriteNormalizesEmptyLists(t *testing.T) {
	video := filepath.Join(t.TempDir(), "clip.mov")
	repo := NewFileRepository()

	sc := &models.Sidecar{SchemaVersion: models.SchemaVersion}
	path, err := repo.Write(video, sc, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var raw map[string]any
	data, _ := os.ReadFile(path)
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	for _, key := range []string{"tags", "static_segments", "highlights", "frame_analysis"} {
		if _, ok := raw[key].([]any); !ok {
			t.Errorf("expected %s to be an array, got %v", key, raw[key])
		}
	}
	if _, ok := raw["custom"].(map[string]any); !ok {
		t.Errorf("expected custom to be an object, got %v", raw["custom"])
	}
}

func TestReadCorruptSidecar(t *testing.T) {
	video := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(video+Suffix, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := NewFileRepository().Read(video)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected a parse error, got %v", err)
	}
}
