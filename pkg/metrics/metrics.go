// Package metrics provides Prometheus metrics for the memory pipeline.
//
// Each Recorder owns its registry so the companion API can expose exactly the
// palace collectors, and tests can assert on a fresh registry.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/papercomputeco/memorypalace/pkg/memory"
)

const namespace = "palace"

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)

// Recorder records pipeline stage metrics.
type Recorder struct {
	registry *prometheus.Registry

	// stageTotal counts stage executions.
	// Labels:
	//   - stage: remote stage name (e.g., "process", "narrate")
	//   - outcome: "success", "failed", or "rejected"
	stageTotal *prometheus.CounterVec

	// stageDuration observes stage latency in seconds. Enrichment stages run
	// ML models remotely, so buckets reach out to the request timeout.
	stageDuration *prometheus.HistogramVec

	// inflight is the number of operations currently holding a guard.
	inflight prometheus.Gauge

	// playbackTotal counts playback actions by op and outcome.
	playbackTotal *prometheus.CounterVec
}

// NewRecorder creates a Recorder with its own registry, including the
// standard Go and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stageTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_executions_total",
				Help:      "Total number of pipeline stage executions",
			},
			[]string{"stage", "outcome"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stage executions in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "operations_inflight",
				Help:      "Number of pipeline operations currently in flight",
			},
		),
		playbackTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "playback_actions_total",
				Help:      "Total number of narration playback actions",
			},
			[]string{"op", "outcome"},
		),
	}

	r.registry.MustRegister(
		r.stageTotal,
		r.stageDuration,
		r.inflight,
		r.playbackTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Registry returns the registry backing this recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveStage records one stage execution. ErrBusy rejections count as
// "rejected" and are not timed.
func (r *Recorder) ObserveStage(stage memory.Stage, elapsed time.Duration, err error) {
	if r == nil {
		return
	}

	switch {
	case errors.Is(err, memory.ErrBusy):
		r.stageTotal.WithLabelValues(string(stage), OutcomeRejected).Inc()
		return
	case err != nil:
		r.stageTotal.WithLabelValues(string(stage), OutcomeFailed).Inc()
	default:
		r.stageTotal.WithLabelValues(string(stage), OutcomeSuccess).Inc()
	}
	r.stageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

// TrackInflight increments the in-flight gauge and returns a func that
// decrements it.
func (r *Recorder) TrackInflight() func() {
	if r == nil {
		return func() {}
	}
	r.inflight.Inc()
	return r.inflight.Dec
}

// ObservePlayback records a playback action.
func (r *Recorder) ObservePlayback(op string, err error) {
	if r == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailed
	}
	r.playbackTotal.WithLabelValues(op, outcome).Inc()
}
