package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
)

func writeJPEGFixture(t *testing.T) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	img.Set(0, 0, color.Gray{Y: 255})

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "frame.jpg")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFrameExtractorExtractFrames(t *testing.T) {
	fixture := writeJPEGFixture(t)
	installFakeTool(t, "ffmpeg", "#!/bin/sh\ncat \"$FRAME_FIXTURE\"\n")
	t.Setenv("FRAME_FIXTURE", fixture)

	video := filepath.Join(t.TempDir(), "flight.mp4")
	if err := os.WriteFile(video, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	fe, err := NewFrameExtractor(640)
	if err != nil {
		t.Fatalf("NewFrameExtractor: %v", err)
	}

	timestamps := []float64{0, 2, 4.5}
	frames, err := fe.ExtractFrames(context.Background(), video, timestamps)
	if err != nil {
		t.Fatalf("ExtractFrames: %v", err)
	}
	if len(frames) != len(timestamps) {
		t.Fatalf("expected %d frames, got %d", len(timestamps), len(frames))
	}
	for i, f := range frames {
		if f.Index != i {
			t.Errorf("frame %d has index %d", i, f.Index)
		}
		if f.Timestamp != timestamps[i] {
			t.Errorf("frame %d timestamp = %v, want %v", i, f.Timestamp, timestamps[i])
		}
		if len(f.Data) == 0 {
			t.Errorf("frame %d has no data", i)
		}
	}
}

func TestFrameExtractorNothingExtracted(t *testing.T) {
	installFakeTool(t, "ffmpeg", "#!/bin/sh\nexit 1\n")

	video := filepath.Join(t.TempDir(), "flight.mp4")
	if err := os.WriteFile(video, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	fe, err := NewFrameExtractor(0)
	if err != nil {
		t.Fatalf("NewFrameExtractor: %v", err)
	}
	_, err = fe.ExtractFrames(context.Background(), video, []float64{0, 1})
	if !errors.Is(err, ErrExtractionFailed) {
		t.Errorf("expected ErrExtractionFailed, got %v", err)
	}
}

func TestFrameExtractorMissingVideo(t *testing.T) {
	installFakeTool(t, "ffmpeg", "#!/bin/sh\nexit 0\n")

	fe, err := NewFrameExtractor(0)
	if err != nil {
		t.Fatalf("NewFrameExtractor: %v", err)
	}
	_, err = fe.ExtractFrames(context.Background(), filepath.Join(t.TempDir(), "gone.mp4"), []float64{0})
	if !errors.Is(err, ErrExtractionFailed) {
		t.Errorf("expected ErrExtractionFailed, got %v", err)
	}
}

func TestFrameExtractorRetriesFirstFrame(t *testing.T) {
	fixture := writeJPEGFixture(t)
	// Fails for the seek to exactly 0 and succeeds everywhere else.
	installFakeTool(t, "ffmpeg", "#!/bin/sh\nif [ \"$4\" = \"0.000\" ]; then exit 1; fi\ncat \"$FRAME_FIXTURE\"\n")
	t.Setenv("FRAME_FIXTURE", fixture)

	video := filepath.Join(t.TempDir(), "flight.mp4")
	if err := os.WriteFile(video, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	fe, err := NewFrameExtractor(0)
	if err != nil {
		t.Fatalf("NewFrameExtractor: %v", err)
	}
	frames, err := fe.ExtractFrames(context.Background(), video, []float64{0, 2})
	if err != nil {
		t.Fatalf("ExtractFrames: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Timestamp != 0 {
		t.Errorf("first frame should keep its nominal timestamp, got %v", frames[0].Timestamp)
	}
}
