package ai

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cori/video-analysis-pipeline/internal/models"
)

type rawFrameResponse struct {
	Description   string          `json:"description"`
	Environment   json.RawMessage `json:"environment"`
	FlightStyle   string          `json:"flight_style"`
	InterestScore json.RawMessage `json:"interest_score"`
	QualityIssues json.RawMessage `json:"quality_issues"`
}

// ParseFrameResponse turns the model's JSON text into a FrameAnalysis. Models
// are loose with types, so scores may arrive as strings and label lists as a
// single string. Anything without a description or a score is malformed.
func ParseFrameResponse(text string, timestamp float64) (*models.FrameAnalysis, error) {
	body := extractJSONObject(text)
	if body == "" {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrMalformedResponse)
	}

	var raw rawFrameResponse
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	description := strings.TrimSpace(raw.Description)
	if description == "" {
		return nil, fmt.Errorf("%w: empty description", ErrMalformedResponse)
	}

	score, err := parseScore(raw.InterestScore)
	if err != nil {
		return nil, err
	}

	return &models.FrameAnalysis{
		Timestamp:     timestamp,
		Description:   description,
		Environment:   parseLabels(raw.Environment),
		FlightStyle:   normalizeLabel(raw.FlightStyle),
		InterestScore: score,
		QualityIssues: parseLabels(raw.QualityIssues),
	}, nil
}

// extractJSONObject strips code fences and chatter around the first JSON object.
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func parseScore(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("%w: missing interest_score", ErrMalformedResponse)
	}

	var value float64
	var num float64
	var str string
	switch {
	case json.Unmarshal(raw, &num) == nil:
		value = num
	case json.Unmarshal(raw, &str) == nil:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: interest_score %q is not a number", ErrMalformedResponse, str)
		}
		value = parsed
	default:
		return 0, fmt.Errorf("%w: interest_score has unexpected type", ErrMalformedResponse)
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: interest_score is not finite", ErrMalformedResponse)
	}

	// Clamp before converting so huge values cannot overflow the int.
	return int(math.Round(math.Max(1, math.Min(10, value)))), nil
}

// parseLabels accepts a list of strings or a single string. Non-string list
// items are ignored.
func parseLabels(raw json.RawMessage) []string {
	labels := []string{}
	if len(raw) == 0 {
		return labels
	}

	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		var single string
		if err := json.Unmarshal(raw, &single); err != nil {
			return labels
		}
		items = []any{single}
	}

	seen := make(map[string]bool)
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		label := normalizeLabel(s)
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		labels = append(labels, label)
	}
	return labels
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
