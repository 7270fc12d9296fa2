// Package metrics exports Sequence measurements to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goliatone/go-sequence"
)

const (
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
)

// Recorder implements sequence.MetricsRecorder on its own registry.
type Recorder struct {
	namespace  string
	registry   *prometheus.Registry
	duration   *prometheus.HistogramVec
	actions    *prometheus.CounterVec
	retries    *prometheus.CounterVec
	queueDepth prometheus.Gauge
}

var _ sequence.MetricsRecorder = (*Recorder)(nil)

// NewRecorder registers the collectors under namespace, "sequence" when empty.
func NewRecorder(namespace string) *Recorder {
	if namespace == "" {
		namespace = "sequence"
	}
	r := &Recorder{
		namespace: namespace,
		registry:  prometheus.NewRegistry(),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Time spent executing an action including retries, in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action_type"},
		),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Total number of actions processed, by final status.",
			},
			[]string{"action_type", "status"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "action_retries_total",
				Help:      "Total number of retry attempts.",
			},
			[]string{"action_type"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Actions waiting in the production queue after the last dequeue.",
			},
		),
	}
	r.registry.MustRegister(r.duration, r.actions, r.retries, r.queueDepth)
	return r
}

func (r *Recorder) RecordDuration(actionType string, d time.Duration) {
	r.duration.WithLabelValues(actionType).Observe(d.Seconds())
}

func (r *Recorder) RecordError(actionType string) {
	r.actions.WithLabelValues(actionType, statusFailed).Inc()
}

func (r *Recorder) RecordSuccess(actionType string) {
	r.actions.WithLabelValues(actionType, statusSucceeded).Inc()
}

func (r *Recorder) RecordRetry(actionType string) {
	r.retries.WithLabelValues(actionType).Inc()
}

func (r *Recorder) RecordQueueDepth(depth int) {
	r.queueDepth.Set(float64(depth))
}

// WatchQueue exports the length of a named queue, sampled on every scrape.
func (r *Recorder) WatchQueue(name string, length func() int) error {
	return r.registry.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   r.namespace,
			Name:        "queue_length",
			Help:        "Actions currently waiting in a named queue.",
			ConstLabels: prometheus.Labels{"queue": name},
		},
		func() float64 { return float64(length()) },
	))
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the recorder's registry in the exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
