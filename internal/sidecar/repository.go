package sidecar

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/cori/video-analysis-pipeline/internal/models"
)

const Suffix = ".meta.json"

var (
	ErrNotFound = errors.New("sidecar not found")
	// ErrConflict is a policy refusal: the video was already analyzed.
	ErrConflict = errors.New("sidecar already exists")
)

// PathFor returns the sidecar location for a video: the full file name plus
// .meta.json, so clip.mp4 and clip.mov never share one.
func PathFor(videoPath string) string {
	return videoPath + Suffix
}

// FileRepository stores sidecars next to their videos.
type FileRepository struct{}

func NewFileRepository() *FileRepository {
	return &FileRepository{}
}

func (r *FileRepository) Exists(videoPath string) (bool, error) {
	_, err := os.Stat(PathFor(videoPath))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat sidecar: %w", err)
}

func (r *FileRepository) Read(videoPath string) (*models.Sidecar, error) {
	data, err := os.ReadFile(PathFor(videoPath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read sidecar: %w", err)
	}

	var sc models.Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse sidecar %s: %w", PathFor(videoPath), err)
	}
	return &sc, nil
}

// Write stores the sidecar and returns its path. Without force an existing
// sidecar is left untouched and ErrConflict is returned. Readers see either
// the old file or the complete new one.
func (r *FileRepository) Write(videoPath string, sc *models.Sidecar, force bool) (string, error) {
	sc.Normalize()
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode sidecar: %w", err)
	}
	data = append(data, '\n')

	target := PathFor(videoPath)
	tmp, err := writeTemp(target, data)
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp)

	if force {
		if err := os.Rename(tmp, target); err != nil {
			return "", fmt.Errorf("failed to replace sidecar: %w", err)
		}
		return target, nil
	}

	// A hard link fails if the target exists, which makes the
	// check-and-create a single step.
	err = os.Link(tmp, target)
	switch {
	case err == nil:
		return target, nil
	case errors.Is(err, fs.ErrExist):
		return "", ErrConflict
	}

	// Some network filesystems do not support hard links.
	log.Printf("[SIDECAR] Warning: hard link unsupported for %s, falling back to rename: %v", target, err)
	if _, statErr := os.Stat(target); statErr == nil {
		return "", ErrConflict
	}
	if err := os.Rename(tmp, target); err != nil {
		return "", fmt.Errorf("failed to write sidecar: %w", err)
	}
	return target, nil
}

// writeTemp writes data to a temporary file in the target's directory so the
// final rename or link never crosses filesystems.
func writeTemp(target string, data []byte) (string, error) {
	dir := filepath.Dir(target)
	f, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	name := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(name, 0644); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("failed to chmod temp file: %w", err)
	}
	return name, nil
}
