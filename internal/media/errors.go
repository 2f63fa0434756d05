package media

import "errors"

var (
	// ErrProbeUnavailable means duration or resolution could not be determined.
	ErrProbeUnavailable = errors.New("probe unavailable")
	// ErrExtractionFailed means the frame source could not be read.
	ErrExtractionFailed = errors.New("frame extraction failed")
)
