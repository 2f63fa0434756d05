package static

import "github.com/cori/video-analysis-pipeline/internal/models"

// BoundaryWindow is the span at either end of a video, in seconds, where a
// static run is attributed to arming or landing.
const BoundaryWindow = 30.0

// RunContext describes a closed static run for classification.
type RunContext struct {
	Start          float64
	End            float64
	VideoDuration  float64
	SignalArtifact bool
}

type Rule struct {
	Reason models.StaticReason
	Match  func(RunContext) bool
}

// DefaultRules is evaluated in order; the first match wins.
var DefaultRules = []Rule{
	{
		Reason: models.ReasonPreArm,
		Match:  func(c RunContext) bool { return c.Start < BoundaryWindow },
	},
	{
		Reason: models.ReasonPostLand,
		Match:  func(c RunContext) bool { return c.VideoDuration > 0 && c.End > c.VideoDuration-BoundaryWindow },
	},
	{
		Reason: models.ReasonSignalLoss,
		Match:  func(c RunContext) bool { return c.VideoDuration > 0 && c.SignalArtifact },
	},
	{
		Reason: models.ReasonDVRFreeze,
		Match:  func(c RunContext) bool { return c.VideoDuration > 0 },
	},
}

func Classify(rules []Rule, ctx RunContext) models.StaticReason {
	for _, r := range rules {
		if r.Match(ctx) {
			return r.Reason
		}
	}
	return models.ReasonUnknown
}
