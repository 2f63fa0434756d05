package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cori/video-analysis-pipeline/internal/models"
)

type Prober struct {
	ffprobePath string
}

func NewProber() (*Prober, error) {
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe not found in PATH: %v", ErrProbeUnavailable, err)
	}
	log.Printf("Found ffprobe at: %s", ffprobePath)
	return &Prober{ffprobePath: ffprobePath}, nil
}

func (p *Prober) Probe(ctx context.Context, videoPath string) (*models.ProbeResult, error) {
	info, err := os.Stat(videoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: video file not accessible: %v", ErrProbeUnavailable, err)
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		videoPath)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: ffprobe failed: %v: %s", ErrProbeUnavailable, err, strings.TrimSpace(stderr.String()))
	}

	result, err := ParseProbeOutput(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	result.Filename = filepath.Base(videoPath)
	result.FileSize = info.Size()
	return result, nil
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string            `json:"duration"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
}

// ParseProbeOutput reads ffprobe's JSON report. It fails with
// ErrProbeUnavailable when there is no video stream or the duration or
// resolution is missing.
func ParseProbeOutput(data []byte) (*models.ProbeResult, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: invalid ffprobe output: %v", ErrProbeUnavailable, err)
	}

	idx := -1
	for i, s := range out.Streams {
		if s.CodecType == "video" {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: no video stream found", ErrProbeUnavailable)
	}
	stream := out.Streams[idx]

	duration, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64)
	if err != nil || duration <= 0 {
		return nil, fmt.Errorf("%w: invalid duration %q", ErrProbeUnavailable, out.Format.Duration)
	}
	if stream.Width <= 0 || stream.Height <= 0 {
		return nil, fmt.Errorf("%w: invalid resolution %dx%d", ErrProbeUnavailable, stream.Width, stream.Height)
	}

	result := &models.ProbeResult{
		Duration:   duration,
		Width:      stream.Width,
		Height:     stream.Height,
		Framerate:  parseFrameRate(stream.RFrameRate),
		Codec:      stream.CodecName,
		SourceType: models.ClassifySource(stream.Height),
	}

	if raw := out.Format.Tags["creation_time"]; raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			t = t.UTC()
			result.CreationTime = &t
		}
	}

	return result, nil
}

func parseFrameRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
