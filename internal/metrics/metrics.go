package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// All labels are low-cardinality: no video paths.

var (
	// AnalysesTotal counts finished analyze calls by outcome
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fpv_analyses_total",
			Help: "Analyze calls by outcome (complete, conflict, failed)",
		},
		[]string{"outcome"},
	)

	// StageDuration tracks how long each pipeline stage takes
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fpv_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 180, 600, 1800},
		},
		[]string{"stage"},
	)

	// FramesDroppedTotal counts frames the vision model did not answer usefully
	FramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fpv_frames_dropped_total",
			Help: "Frames dropped from analysis by reason",
		},
		[]string{"reason"},
	)

	// VisionRequestsTotal counts model calls
	VisionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fpv_vision_requests_total",
			Help: "Vision and summary model requests by outcome",
		},
		[]string{"outcome"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fpv_queue_depth",
			Help: "Videos waiting for analysis (crawler queue plus waiting requests)",
		},
	)

	CrawlerScansTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fpv_crawler_scans_total",
			Help: "Completed crawler directory scans",
		},
	)

	CrawlerEnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fpv_crawler_enqueued_total",
			Help: "Videos enqueued by the crawler",
		},
	)
)

func RecordAnalysis(outcome string) {
	AnalysesTotal.WithLabelValues(outcome).Inc()
}

func ObserveStage(stage string, seconds float64) {
	StageDuration.WithLabelValues(stage).Observe(seconds)
}

func RecordFrameDrop(reason string) {
	FramesDroppedTotal.WithLabelValues(reason).Inc()
}

func RecordVisionRequest(outcome string) {
	VisionRequestsTotal.WithLabelValues(outcome).Inc()
}

func SetQueueDepth(n int) {
	QueueDepth.Set(float64(n))
}

func RecordScan(enqueued int) {
	CrawlerScansTotal.Inc()
	CrawlerEnqueuedTotal.Add(float64(enqueued))
}
