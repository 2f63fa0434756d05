package aggregate

import (
	"math"
	"sort"
	"strings"

	"github.com/cori/video-analysis-pipeline/internal/models"
)

const (
	maxQualityScore = 10
	minQualityScore = 1
	// unknownQualityScore is reported when no frame was analyzed.
	unknownQualityScore = 5
	issueDensityWeight  = 3.0
)

type issueRule struct {
	keywords  []string
	deduction int
}

// Checked in order; an issue takes the first matching deduction only.
var issueRules = []issueRule{
	{keywords: []string{"blur"}, deduction: 2},
	{keywords: []string{"artifact", "dvr"}, deduction: 3},
	{keywords: []string{"signal", "loss"}, deduction: 4},
	{keywords: []string{"fog", "weather"}, deduction: 1},
}

// AssessQuality scores a video from its frames' quality-issue labels and
// interest scores, and reports DVR and signal-loss problems from both the
// labels and the static segments.
func AssessQuality(analyses []models.FrameAnalysis, segments []models.StaticSegment, duration float64) models.QualitySummary {
	q := models.QualitySummary{
		OverallScore:       unknownQualityScore,
		Issues:             []string{},
		SignalLossSegments: []models.TimeRange{},
	}

	var lossRanges []models.TimeRange
	for _, seg := range segments {
		switch seg.Reason {
		case models.ReasonDVRFreeze:
			q.DVRArtifactsDetected = true
		case models.ReasonSignalLoss:
			lossRanges = append(lossRanges, models.TimeRange{Start: seg.Start, End: seg.End})
		}
	}

	counts := make(map[string]int)
	var order []string
	framesWithIssues := 0
	interestTotal := 0

	for _, fa := range analyses {
		interestTotal += fa.InterestScore
		if len(fa.QualityIssues) > 0 {
			framesWithIssues++
		}

		lossLabelled := false
		seen := make(map[string]bool)
		for _, issue := range fa.QualityIssues {
			if seen[issue] {
				continue
			}
			seen[issue] = true
			if counts[issue] == 0 {
				order = append(order, issue)
			}
			counts[issue]++

			lower := strings.ToLower(issue)
			if containsAny(lower, "dvr", "artifact") {
				q.DVRArtifactsDetected = true
			}
			if containsAny(lower, "signal", "loss") {
				lossLabelled = true
			}
		}

		if lossLabelled {
			end := fa.Timestamp + 1
			if duration > 0 && end > duration {
				end = duration
			}
			lossRanges = append(lossRanges, models.TimeRange{Start: fa.Timestamp, End: end})
		}
	}

	q.SignalLossSegments = mergeRanges(lossRanges)
	q.SignalLossDetected = len(q.SignalLossSegments) > 0

	n := len(analyses)
	if n == 0 {
		return q
	}

	minCount := n / 10
	if minCount < 1 {
		minCount = 1
	}

	score := maxQualityScore
	for _, issue := range order {
		if counts[issue] < minCount {
			continue
		}
		q.Issues = append(q.Issues, issue)
		score -= issueDeduction(issue)
	}

	density := float64(framesWithIssues) / float64(n)
	score -= int(math.Round(issueDensityWeight * density))

	meanInterest := float64(interestTotal) / float64(n)
	switch {
	case meanInterest >= 7:
		score++
	case meanInterest <= 3:
		score--
	}

	q.OverallScore = clampScore(score)
	return q
}

func issueDeduction(issue string) int {
	lower := strings.ToLower(issue)
	for _, rule := range issueRules {
		if containsAny(lower, rule.keywords...) {
			return rule.deduction
		}
	}
	return 0
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func clampScore(score int) int {
	if score < minQualityScore {
		return minQualityScore
	}
	if score > maxQualityScore {
		return maxQualityScore
	}
	return score
}

// mergeRanges sorts ranges and joins any that overlap or touch.
func mergeRanges(ranges []models.TimeRange) []models.TimeRange {
	merged := []models.TimeRange{}
	if len(ranges) == 0 {
		return merged
	}

	sorted := make([]models.TimeRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	current := sorted[0]
	for _, r := range sorted[1:] {
		if r.Start <= current.End {
			if r.End > current.End {
				current.End = r.End
			}
			continue
		}
		merged = append(merged, current)
		current = r
	}
	return append(merged, current)
}
