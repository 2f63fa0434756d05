package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
)

var ptsTimePattern = regexp.MustCompile(`pts_time:\s*([0-9]+(?:\.[0-9]+)?)`)

// SceneDetector asks ffmpeg's scene filter for timestamps where the picture
// changes by more than threshold (0..1).
type SceneDetector struct {
	ffmpegPath string
	threshold  float64
}

func NewSceneDetector(threshold float64) (*SceneDetector, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	return &SceneDetector{ffmpegPath: ffmpegPath, threshold: threshold}, nil
}

func (d *SceneDetector) DetectScenes(ctx context.Context, videoPath string) ([]float64, error) {
	filter := fmt.Sprintf("select='gt(scene,%.3f)',showinfo", d.threshold)
	cmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-hide_banner",
		"-i", videoPath,
		"-vf", filter,
		"-an",
		"-f", "null",
		"-")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("scene detection failed: %w", err)
	}

	return ParseSceneTimes(stderr.Bytes()), nil
}

// ParseSceneTimes extracts the pts_time values printed by the showinfo filter.
func ParseSceneTimes(output []byte) []float64 {
	matches := ptsTimePattern.FindAllSubmatch(output, -1)
	times := make([]float64, 0, len(matches))
	for _, m := range matches {
		t, err := strconv.ParseFloat(string(m[1]), 64)
		if err != nil {
			continue
		}
		times = append(times, t)
	}
	sort.Float64s(times)
	return times
}
