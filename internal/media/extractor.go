package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"log"
	"os"
	"os/exec"
	"strings"

	"github.com/cori/video-analysis-pipeline/internal/models"
)

// retrySeekOffset is how far from a nominal timestamp the extractor seeks
// when the frame there cannot be decoded: backwards near the end of the
// stream, forwards at the very start.
const retrySeekOffset = 0.5

type FrameExtractor struct {
	ffmpegPath string
	width      int
}

func NewFrameExtractor(width int) (*FrameExtractor, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found in PATH: %v", ErrExtractionFailed, err)
	}
	log.Printf("Found ffmpeg at: %s", ffmpegPath)

	if width <= 0 {
		width = 1280
	}
	return &FrameExtractor{
		ffmpegPath: ffmpegPath,
		width:      width,
	}, nil
}

// ExtractFrames pulls one JPEG frame per timestamp. A timestamp that cannot
// be extracted is skipped; the call fails only when nothing was extracted.
// A running ffmpeg invocation is allowed to finish when ctx is cancelled.
func (fe *FrameExtractor) ExtractFrames(ctx context.Context, videoPath string, timestamps []float64) ([]models.SampledFrame, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return nil, fmt.Errorf("%w: video file not accessible: %v", ErrExtractionFailed, err)
	}

	frames := make([]models.SampledFrame, 0, len(timestamps))
	for i, ts := range timestamps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := fe.extractSingleFrame(ctx, videoPath, ts)
		if err != nil {
			retry := max(0, ts-retrySeekOffset)
			if ts <= 0 {
				retry = retrySeekOffset
			}
			data, err = fe.extractSingleFrame(ctx, videoPath, retry)
		}
		if err != nil {
			log.Printf("Warning: failed to extract frame %d at %.2fs: %v", i, ts, err)
			continue
		}

		frames = append(frames, models.SampledFrame{
			Index:     len(frames),
			Timestamp: ts,
			Data:      data,
		})
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no frames extracted from %s (attempted %d)", ErrExtractionFailed, videoPath, len(timestamps))
	}

	log.Printf("Extracted %d/%d frames from %s", len(frames), len(timestamps), videoPath)
	return frames, nil
}

func (fe *FrameExtractor) extractSingleFrame(ctx context.Context, videoPath string, timestamp float64) ([]byte, error) {
	args := []string{
		"-v", "error",
		"-ss", fmt.Sprintf("%.3f", timestamp),
		"-i", videoPath,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale='min(%d,iw)':-2", fe.width),
		"-q:v", "2",
		"-f", "mjpeg",
		"pipe:1",
	}

	cmd := exec.CommandContext(context.WithoutCancel(ctx), fe.ffmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg at %.3fs: %w: %s", timestamp, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame at %.3fs", timestamp)
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(stdout.Bytes())); err != nil {
		return nil, fmt.Errorf("failed to decode frame at %.3fs: %w", timestamp, err)
	}

	return stdout.Bytes(), nil
}
