package ai

import (
	"fmt"
	"strings"
)

const maxSummaryLines = 50

const framePrompt = `You are analyzing a single frame from an FPV drone video.
Respond with JSON only, using exactly these fields:
{
  "description": "one or two sentences describing what is visible",
  "environment": ["short lowercase scene labels, e.g. forest, urban, mountains, water, field, indoor"],
  "flight_style": "one of: takeoff, landing, cruising, proximity, freestyle, racing, cinematic, stationary",
  "interest_score": 1-10 (how visually interesting this moment is),
  "quality_issues": ["labels such as dvr-artifacts, signal-loss, blur, foggy; empty if none"]
}`

// FramePrompt is the fixed per-frame query sent with every image.
func FramePrompt() string {
	return framePrompt
}

// BuildSummaryPrompt lists the frame descriptions in time order, one per
// line, and asks for a short summary.
func BuildSummaryPrompt(lines []SummaryLine) string {
	var sb strings.Builder
	sb.WriteString("These are descriptions of frames sampled in order from one FPV drone flight video:\n")
	for i, line := range lines {
		if i >= maxSummaryLines {
			break
		}
		fmt.Fprintf(&sb, "- [%.1fs] %s\n", line.Timestamp, line.Description)
	}
	sb.WriteString("\nWrite a 2-3 sentence summary of the whole flight covering where it takes place and its most notable moments. Reply with the summary text only.")
	return sb.String()
}

type SummaryLine struct {
	Timestamp   float64
	Description string
}
