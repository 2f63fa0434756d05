package models

type StaticReason string

const (
	ReasonPreArm     StaticReason = "pre-arm"
	ReasonPostLand   StaticReason = "post-land"
	ReasonDVRFreeze  StaticReason = "dvr-freeze"
	ReasonSignalLoss StaticReason = "signal-loss"
	ReasonUnknown    StaticReason = "unknown"
)

type StaticSegment struct {
	Start      float64      `json:"start"`
	End        float64      `json:"end"`
	Reason     StaticReason `json:"reason"`
	Confidence float64      `json:"confidence"`
}

func (s StaticSegment) Duration() float64 {
	return s.End - s.Start
}

type FrameAnalysis struct {
	Timestamp     float64  `json:"timestamp"`
	Description   string   `json:"description"`
	Environment   []string `json:"environment"`
	FlightStyle   string   `json:"flight_style"`
	InterestScore int      `json:"interest_score"`
	QualityIssues []string `json:"quality_issues"`
}

// Labels returns the environment tags plus the flight style when it is
// meaningful, deduplicated, in order.
func (fa FrameAnalysis) Labels() []string {
	seen := make(map[string]bool, len(fa.Environment)+1)
	labels := make([]string, 0, len(fa.Environment)+1)
	for _, tag := range fa.Environment {
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		labels = append(labels, tag)
	}
	switch fa.FlightStyle {
	case "", "unknown", "stationary":
	default:
		if !seen[fa.FlightStyle] {
			labels = append(labels, fa.FlightStyle)
		}
	}
	return labels
}

type Highlight struct {
	Start       float64  `json:"start"`
	End         float64  `json:"end"`
	Score       int      `json:"score"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type QualitySummary struct {
	OverallScore         int         `json:"overall_score"`
	Issues               []string    `json:"issues"`
	DVRArtifactsDetected bool        `json:"dvr_artifacts_detected"`
	SignalLossDetected   bool        `json:"signal_loss_detected"`
	SignalLossSegments   []TimeRange `json:"signal_loss_segments"`
}
