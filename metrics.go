package access

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "access"

// Metrics holds the reconciliation collectors.
type Metrics struct {
	Reconciliations *prometheus.CounterVec
	StaffUpdates    prometheus.Counter
	BulkRuns        *prometheus.CounterVec
	BulkDuration    prometheus.Histogram
	LastBulkUpdated prometheus.Gauge
}

// NewMetrics builds the collectors and registers them on reg when it is not
// nil. Collectors already registered on reg are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reconciliations_total",
			Help:      "Per principal staff flag reconciliations by outcome.",
		}, []string{"outcome"}),
		StaffUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "staff_flag_updates_total",
			Help:      "Staff flags written by the reconciler.",
		}),
		BulkRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bulk_reconciliations_total",
			Help:      "Bulk staff flag reconciliation runs by outcome.",
		}, []string{"outcome"}),
		BulkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "bulk_reconciliation_duration_seconds",
			Help:      "Duration of bulk staff flag reconciliation runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		LastBulkUpdated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "bulk_reconciliation_last_updated",
			Help:      "Principals updated by the last bulk run.",
		}),
	}

	if reg != nil {
		m.Reconciliations = register(reg, m.Reconciliations)
		m.StaffUpdates = register(reg, m.StaffUpdates)
		m.BulkRuns = register(reg, m.BulkRuns)
		m.BulkDuration = register(reg, m.BulkDuration)
		m.LastBulkUpdated = register(reg, m.LastBulkUpdated)
	}
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

const (
	outcomeUnchanged = "unchanged"
	outcomeUpdated   = "updated"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
)

func (m *Metrics) reconciled(outcome string) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(outcome).Inc()
	if outcome == outcomeUpdated {
		m.StaffUpdates.Inc()
	}
}

func (m *Metrics) bulkFinished(outcome string, seconds float64, updated int) {
	if m == nil {
		return
	}
	m.BulkRuns.WithLabelValues(outcome).Inc()
	m.BulkDuration.Observe(seconds)
	m.LastBulkUpdated.Set(float64(updated))
}
