package models

import (
	"path/filepath"
	"strings"
	"time"
)

type SourceType string

const (
	SourceOnboard SourceType = "onboard"
	SourceDVR     SourceType = "dvr"
	SourceUnknown SourceType = "unknown"
)

// VideoExtensions is the fixed set of file extensions treated as videos.
var VideoExtensions = []string{".mp4", ".mov", ".avi", ".mkv"}

func IsVideoFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, v := range VideoExtensions {
		if ext == v {
			return true
		}
	}
	return false
}

// VideoRef identifies a video by its canonical absolute path.
type VideoRef struct {
	Path       string
	SourceType SourceType
}

func NewVideoRef(path string) (VideoRef, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return VideoRef{}, err
	}
	return VideoRef{Path: filepath.Clean(abs), SourceType: SourceUnknown}, nil
}

type ProbeResult struct {
	Filename     string
	Duration     float64
	Width        int
	Height       int
	Framerate    float64
	Codec        string
	FileSize     int64
	CreationTime *time.Time
	SourceType   SourceType
}

// ClassifySource infers the source type from the vertical resolution:
// onboard HD recordings are 1080p or taller, goggle DVR captures are smaller.
func ClassifySource(height int) SourceType {
	switch {
	case height >= 1080:
		return SourceOnboard
	case height > 0:
		return SourceDVR
	default:
		return SourceUnknown
	}
}

// SampledFrame is one extracted frame, JPEG encoded.
type SampledFrame struct {
	Index     int
	Timestamp float64
	Data      []byte
}
