package static

import "math"

const (
	confidenceLengthScale = 10.0
	confidenceMarginScale = 30.0
)

// Confidence scores a static run from its length and its margin to the
// nearest end of the video, both in seconds:
//
//	0.5*(1 - exp(-length/10)) + 0.5/(1 + margin/30)
//
// It is strictly increasing in length, strictly decreasing in margin, and
// stays within [0, 1].
func Confidence(length, margin float64) float64 {
	length = math.Max(0, length)
	margin = math.Max(0, margin)

	lengthTerm := 1 - math.Exp(-length/confidenceLengthScale)
	marginTerm := 1 / (1 + margin/confidenceMarginScale)
	return clamp01(0.5*lengthTerm + 0.5*marginTerm)
}

func boundaryMargin(start, end, duration float64) float64 {
	return math.Max(0, math.Min(start, duration-end))
}
