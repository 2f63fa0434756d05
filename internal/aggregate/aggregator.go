package aggregate

import (
	"log"
	"sort"
	"strings"

	"github.com/cori/video-analysis-pipeline/internal/models"
)

// eps keeps the strict boundaries strict under float rounding: a tag in
// exactly 20% of frames and a run spanning exactly 5.0s both stay out.
const eps = 1e-9

const maxHighlightSentences = 3

type Config struct {
	TagThreshold            float64
	HighlightScoreThreshold int
	HighlightMinDuration    float64
}

func DefaultConfig() Config {
	return Config{
		TagThreshold:            0.2,
		HighlightScoreThreshold: 7,
		HighlightMinDuration:    5.0,
	}
}

type Result struct {
	Tags       []string
	Highlights []models.Highlight
	Quality    models.QualitySummary
}

type Aggregator struct {
	config Config
}

func NewAggregator(config Config) *Aggregator {
	return &Aggregator{config: config}
}

// Aggregate reduces the successful frame analyses of one video, together
// with its static segments, into tags, highlights and a quality summary.
func (a *Aggregator) Aggregate(analyses []models.FrameAnalysis, segments []models.StaticSegment, duration float64) Result {
	ordered := make([]models.FrameAnalysis, len(analyses))
	copy(ordered, analyses)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})

	result := Result{
		Tags:       a.ExtractTags(ordered),
		Highlights: a.DetectHighlights(ordered),
		Quality:    AssessQuality(ordered, segments, duration),
	}
	log.Printf("[AGGREGATE] %d frames: %d tags, %d highlights, quality %d",
		len(ordered), len(result.Tags), len(result.Highlights), result.Quality.OverallScore)
	return result
}

// ExtractTags keeps labels seen in strictly more than TagThreshold of the
// frames, in first-occurrence order.
func (a *Aggregator) ExtractTags(analyses []models.FrameAnalysis) []string {
	tags := []string{}
	if len(analyses) == 0 {
		return tags
	}

	counts := make(map[string]int)
	var order []string
	for _, fa := range analyses {
		for _, label := range fa.Labels() {
			if counts[label] == 0 {
				order = append(order, label)
			}
			counts[label]++
		}
	}

	limit := a.config.TagThreshold * float64(len(analyses))
	for _, label := range order {
		if float64(counts[label]) > limit+eps {
			tags = append(tags, label)
		}
	}
	return tags
}

// DetectHighlights finds maximal runs of consecutive frames scoring above the
// threshold and keeps those spanning more than HighlightMinDuration. Runs are
// never merged, so highlights cannot overlap.
func (a *Aggregator) DetectHighlights(analyses []models.FrameAnalysis) []models.Highlight {
	highlights := []models.Highlight{}

	runStart := -1
	flush := func(end int) {
		if runStart < 0 {
			return
		}
		run := analyses[runStart:end]
		runStart = -1
		span := run[len(run)-1].Timestamp - run[0].Timestamp
		if span > a.config.HighlightMinDuration+eps {
			highlights = append(highlights, buildHighlight(run))
		}
	}

	for i, fa := range analyses {
		if fa.InterestScore > a.config.HighlightScoreThreshold {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		flush(i)
	}
	flush(len(analyses))

	return highlights
}

func buildHighlight(run []models.FrameAnalysis) models.Highlight {
	h := models.Highlight{
		Start: run[0].Timestamp,
		End:   run[len(run)-1].Timestamp,
		Tags:  []string{},
	}

	seen := make(map[string]bool)
	for _, fa := range run {
		if fa.InterestScore > h.Score {
			h.Score = fa.InterestScore
		}
		for _, label := range fa.Labels() {
			if !seen[label] {
				seen[label] = true
				h.Tags = append(h.Tags, label)
			}
		}
	}

	h.Description = describeRun(run)
	return h
}

// describeRun joins the distinct descriptions of the best-scoring frames,
// highest score first and earlier frames first on ties.
func describeRun(run []models.FrameAnalysis) string {
	ranked := make([]models.FrameAnalysis, len(run))
	copy(ranked, run)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].InterestScore > ranked[j].InterestScore
	})

	var sentences []string
	seen := make(map[string]bool)
	for _, fa := range ranked {
		desc := strings.TrimSpace(fa.Description)
		if desc == "" || seen[desc] {
			continue
		}
		seen[desc] = true
		sentences = append(sentences, ensureSentence(desc))
		if len(sentences) == maxHighlightSentences {
			break
		}
	}
	return strings.Join(sentences, " ")
}

func ensureSentence(s string) string {
	switch s[len(s)-1] {
	case '.', '!', '?':
		return s
	}
	return s + "."
}
