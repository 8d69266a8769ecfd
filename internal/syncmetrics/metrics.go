// Package syncmetrics exposes Prometheus metrics for the transfer pipeline.
package syncmetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "morango_stages_total",
			Help: "Total number of stage invocations by stage and resulting status",
		},
		[]string{"stage", "status"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "morango_stage_duration_seconds",
			Help:    "Duration of a single middleware invocation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	DequeueStepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "morango_dequeue_step_duration_seconds",
			Help:    "Duration of each step of the dequeue pipeline",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	RecordsQueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "morango_records_queued_total",
			Help: "Total number of store records copied into the buffer",
		},
	)

	RecordsDequeued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "morango_records_dequeued_total",
			Help: "Total number of buffer records merged into the store",
		},
	)

	SignalsFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "morango_signals_fired_total",
			Help: "Total number of sync signals fired by group and event",
		},
		[]string{"group", "event"},
	)
)

func init() {
	prometheus.MustRegister(StagesTotal)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(DequeueStepDuration)
	prometheus.MustRegister(RecordsQueued)
	prometheus.MustRegister(RecordsDequeued)
	prometheus.MustRegister(SignalsFired)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
