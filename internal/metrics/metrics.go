// Package metrics provides Prometheus metrics for factpane.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ppiankov/factpane/internal/source"
	"github.com/ppiankov/factpane/internal/timeline"
)

const namespace = "factpane"

// Metrics holds the collectors for one registry.
type Metrics struct {
	// FetchTotal counts fetches by source, outcome and error kind.
	FetchTotal *prometheus.CounterVec
	// FetchDuration measures fetch latency.
	FetchDuration *prometheus.HistogramVec
	// PolicyTotal counts timeline results by refresh policy.
	PolicyTotal *prometheus.CounterVec
	// NextRefresh is the unix time of the next scheduled reload, 0 when none.
	NextRefresh prometheus.Gauge
	// TriggersTotal counts external reload triggers by origin.
	TriggersTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_total",
				Help:      "Total number of fetches",
			},
			[]string{"source", "outcome", "error_kind"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Duration of fetches in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		PolicyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "timeline_policy_total",
				Help:      "Total number of timelines by refresh policy",
			},
			[]string{"policy"},
		),
		NextRefresh: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "next_refresh_timestamp_seconds",
				Help:      "Unix time of the next automatic reload (0 = never)",
			},
		),
		TriggersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reload_triggers_total",
				Help:      "Total number of external reload triggers",
			},
			[]string{"origin"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.FetchTotal, m.FetchDuration, m.PolicyTotal, m.NextRefresh, m.TriggersTotal)
	}
	return m
}

// ObserveFetch implements timeline.Observer.
func (m *Metrics) ObserveFetch(rec timeline.FetchRecord) {
	outcome, kind := "success", ""
	switch {
	case rec.Cancelled:
		outcome = "cancelled"
	case rec.Err != nil:
		outcome = "failure"
		kind = source.KindOf(rec.Err).String()
	}

	m.FetchTotal.WithLabelValues(rec.Source, outcome, kind).Inc()
	m.FetchDuration.WithLabelValues(rec.Source).Observe(rec.FinishedAt.Sub(rec.StartedAt).Seconds())

	if rec.Policy == nil {
		return
	}
	m.PolicyTotal.WithLabelValues(rec.Policy.Kind.String()).Inc()
	if rec.Policy.Kind == timeline.PolicyAfter {
		m.NextRefresh.Set(float64(rec.Policy.Date.Unix()))
	} else {
		m.NextRefresh.Set(0)
	}
}

// RecordTrigger counts an external reload trigger.
func (m *Metrics) RecordTrigger(origin string) {
	m.TriggersTotal.WithLabelValues(origin).Inc()
}
