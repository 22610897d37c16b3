// Package metrics records run progress as Prometheus metrics.
//
// factmirror runs as a batch job, so nothing is served: at the end of a run
// the registry is written in text exposition format for node_exporter's
// textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/factmirror/internal/engine"
)

const namespace = "factmirror"

// Run holds the metrics of one run. It implements engine.Recorder.
type Run struct {
	registry *prometheus.Registry

	derived     *prometheus.CounterVec
	discarded   *prometheus.CounterVec
	scanned     *prometheus.CounterVec
	failures    *prometheus.CounterVec
	latest      *prometheus.GaugeVec
	quotaUsed   prometheus.Gauge
	lastRun     prometheus.Gauge
	labelsFound prometheus.Counter
	retracted   prometheus.Counter
}

var _ engine.Recorder = (*Run)(nil)

// New creates the metrics on a private registry.
func New() *Run {
	r := &Run{registry: prometheus.NewRegistry()}
	r.derived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "facts_derived_total",
		Help:      "Facts derived from events, by kind",
	}, []string{"what"})
	r.discarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_discarded_total",
		Help:      "Events discarded by the classifier, by event type",
	}, []string{"type"})
	r.scanned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_scanned_total",
		Help:      "Events scanned, by repository",
	}, []string{"repository"})
	r.failures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scan_failures_total",
		Help:      "Failed repository scans",
	}, []string{"repository"})
	r.latest = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "latest_event_id",
		Help:      "Greatest event id seen by the last scan, by repository",
	}, []string{"repository"})
	r.quotaUsed = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "quota_used_calls",
		Help:      "API calls charged to the run quota",
	})
	r.lastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the end of the last run",
	})
	r.labelsFound = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "labels_attached_total",
		Help:      "Label facts recorded by the label judge",
	})
	r.retracted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "facts_retracted_total",
		Help:      "Facts deleted because their issue is gone",
	})
	r.registry.MustRegister(
		r.derived, r.discarded, r.scanned, r.failures, r.latest,
		r.quotaUsed, r.lastRun, r.labelsFound, r.retracted,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Run) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Run) FactDerived(what string) {
	r.derived.WithLabelValues(what).Inc()
}

func (r *Run) EventDiscarded(eventType string) {
	r.discarded.WithLabelValues(eventType).Inc()
}

func (r *Run) ScanFinished(repository string, st engine.Stats, err error) {
	if err != nil {
		r.failures.WithLabelValues(repository).Inc()
		if st.Scanned > 0 {
			r.scanned.WithLabelValues(repository).Add(float64(st.Scanned))
		}
		return
	}
	r.scanned.WithLabelValues(repository).Add(float64(st.Scanned))
	if st.Latest > 0 {
		r.latest.WithLabelValues(repository).Set(float64(st.Latest))
	}
}

// LabelsJudged records one label judge pass.
func (r *Run) LabelsJudged(attached int, retracted int64) {
	r.labelsFound.Add(float64(attached))
	r.FactsRetracted(retracted)
}

// FactsRetracted records facts deleted because their issue is gone.
// It implements classify.Recorder.
func (r *Run) FactsRetracted(n int64) {
	r.retracted.Add(float64(n))
}

// Finish stamps the end of the run with its quota usage.
func (r *Run) Finish(quota *engine.Governor, at time.Time) {
	if quota != nil {
		r.quotaUsed.Set(float64(quota.Used()))
	}
	r.lastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry to path atomically.
func (r *Run) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
