package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cori/video-analysis-pipeline/internal/models"
)

// boundaryTolerance is how close to the start or end of the video a static
// segment must be to count as leading or trailing.
const boundaryTolerance = 0.5

// TrimRange computes the portion of the video left after removing a leading
// pre-arm segment and a trailing post-land segment. ok is false when nothing
// would be removed.
func TrimRange(duration float64, segments []models.StaticSegment) (start, end float64, ok bool) {
	start, end = 0, duration
	for _, seg := range segments {
		if seg.Reason == models.ReasonPreArm && seg.Start <= boundaryTolerance && seg.End > start {
			start = seg.End
		}
		if seg.Reason == models.ReasonPostLand && seg.End >= duration-boundaryTolerance && seg.Start < end {
			end = seg.Start
		}
	}
	if end <= start {
		return 0, duration, false
	}
	return start, end, start > 0 || end < duration
}

func TrimmedPath(videoPath string) string {
	ext := filepath.Ext(videoPath)
	return strings.TrimSuffix(videoPath, ext) + ".trimmed" + ext
}

type Trimmer struct {
	ffmpegPath string
}

func NewTrimmer() (*Trimmer, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	return &Trimmer{ffmpegPath: ffmpegPath}, nil
}

// Trim stream-copies [start, end) of the video next to the original.
func (t *Trimmer) Trim(ctx context.Context, videoPath string, start, end float64) (string, error) {
	out := TrimmedPath(videoPath)
	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-v", "error",
		"-y",
		"-ss", fmt.Sprintf("%.3f", start),
		"-i", videoPath,
		"-t", fmt.Sprintf("%.3f", end-start),
		"-c", "copy",
		out)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("trim failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
