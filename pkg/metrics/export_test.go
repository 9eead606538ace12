package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/papercomputeco/memorypalace/pkg/memory"
)

func (r *Recorder) StageCounter(stage memory.Stage, outcome string) prometheus.Counter {
	return r.stageTotal.WithLabelValues(string(stage), outcome)
}

func (r *Recorder) Inflight() prometheus.Gauge {
	return r.inflight
}

func (r *Recorder) PlaybackCounter(op, outcome string) prometheus.Counter {
	return r.playbackTotal.WithLabelValues(op, outcome)
}
