// Package observability exposes response logging outcomes as Prometheus metrics.
package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"responselog/internal/responselog"
)

// MetricRecorder implements responselog.EventRecorder.
//
// The metrics produced are
//
//	responselog_records_total{measurement=<m>, outcome=<committed|failed|dropped>, method=<method>} ...
//	responselog_commit_duration_seconds{measurement=<m>, outcome=<committed|failed>} ...
type MetricRecorder struct {
	records        *prometheus.CounterVec
	commitDuration *prometheus.HistogramVec
}

// NewMetricRecorder returns a recorder whose collectors are not yet registered.
func NewMetricRecorder() *MetricRecorder {
	const namespace = "responselog"

	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_total",
		Help:      "Total number of requests seen by the response log, by outcome",
	}, []string{"measurement", "outcome", "method"})

	commitDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "commit_duration_seconds",
		Help:      "Time spent committing a record to the store",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"measurement", "outcome"})

	return &MetricRecorder{
		records:        records,
		commitDuration: commitDuration,
	}
}

// Record counts the event and, for committed or failed records, observes the commit duration.
func (r *MetricRecorder) Record(_ context.Context, e responselog.Event) {
	r.records.With(prometheus.Labels{
		"measurement": e.Measurement,
		"outcome":     string(e.Outcome),
		"method":      e.Method,
	}).Inc()

	if e.Outcome == responselog.OutcomeDropped {
		return
	}
	r.commitDuration.With(prometheus.Labels{
		"measurement": e.Measurement,
		"outcome":     string(e.Outcome),
	}).Observe(e.CommitDuration.Seconds())
}

// Collectors exposes the prometheus collectors associated with a metric recorder.
func (r *MetricRecorder) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		r.records,
		r.commitDuration,
	}
}

// MustRegister registers the recorder's collectors with reg.
func (r *MetricRecorder) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(r.Collectors()...)
}
