// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TaskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "borp_scheduler_task_runs_total",
			Help: "Scheduled task executions by outcome",
		},
		[]string{"task", "outcome"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "borp_scheduler_task_duration_seconds",
			Help:    "Scheduled task duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"task"},
	)

	CommentsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "borp_comments_processed_total",
			Help: "Comments handled by the selector by outcome",
		},
		[]string{"outcome"},
	)

	ResponsesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "borp_responses_published_total",
			Help: "Responses and animation updates published",
		},
		[]string{"kind"},
	)

	SpeechFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "borp_speech_failures_total",
			Help: "Responses sent text-only because speech failed",
		},
	)

	AnimationRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "borp_animation_rejected_total",
			Help: "Animation labels rejected as out of vocabulary",
		},
		[]string{"source"},
	)

	ViewerPresentations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "borp_viewer_presentations_total",
			Help: "Viewer presentations by outcome",
		},
		[]string{"outcome"},
	)

	HubDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "borp_hub_events_dropped_total",
			Help: "Events rejected because the hub queue was full",
		},
	)

	HubClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "borp_hub_clients",
			Help: "Connected websocket clients",
		},
	)
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomePanic    = "panic"
	OutcomeSkipped  = "skipped"
	OutcomeSelected = "selected"
	OutcomeTimeout  = "timeout"
	OutcomeEnded    = "ended"
	OutcomeFailed   = "failed"
)

// Response kinds.
const (
	KindReply     = "reply"
	KindThought   = "thought"
	KindAnimation = "animation"
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// TaskObserver records scheduler task outcomes.
type TaskObserver struct{}

// TaskFinished implements scheduler.Observer.
func (TaskObserver) TaskFinished(task string, d time.Duration, err error, panicked bool) {
	outcome := OutcomeOK
	switch {
	case panicked:
		outcome = OutcomePanic
	case err != nil:
		outcome = OutcomeError
	}
	TaskRuns.WithLabelValues(task, outcome).Inc()
	TaskDuration.WithLabelValues(task).Observe(d.Seconds())
}
