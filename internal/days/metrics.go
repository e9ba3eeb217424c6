package days

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/daybook/internal/reconcile"
)

// Metrics exposes Prometheus collectors for the day lifecycle.
type Metrics struct {
	closed   prometheus.Counter
	rejected *prometheus.CounterVec
	alerts   *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics registers the collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	m := &Metrics{
		closed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "daybook_days_closed_total",
			Help: "Days successfully closed.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "daybook_close_rejected_total",
			Help: "Close attempts rejected by the reconciliation gate, by issue kind.",
		}, []string{"kind"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "daybook_discrepancy_alerts_total",
			Help: "Discrepancy alerts recorded on closed days, by severity.",
		}, []string{"severity"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "daybook_reconcile_duration_seconds",
			Help:    "Duration of one reconciliation run including input loading.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	registerer.MustRegister(m.closed, m.rejected, m.alerts, m.duration)
	return m
}

func (m *Metrics) observeRun(start time.Time) {
	if m == nil {
		return
	}
	m.duration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeClosed(res reconcile.Result) {
	if m == nil {
		return
	}
	m.closed.Inc()
	for _, alert := range res.Alerts {
		m.alerts.WithLabelValues(string(alert.Severity)).Inc()
	}
}

func (m *Metrics) observeRejected(err error) {
	if m == nil {
		return
	}
	for _, issue := range reconcile.Issues(err) {
		m.rejected.WithLabelValues(string(issue.Kind)).Inc()
	}
}
