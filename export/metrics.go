package export

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the pipeline's Prometheus collectors.
type Metrics struct {
	exports  *prometheus.CounterVec
	tickets  prometheus.Counter
	duration *prometheus.HistogramVec
}

// NewMetrics registers the pipeline collectors with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		exports: f.NewCounterVec(prometheus.CounterOpts{
			Name: "railpass_exports_total",
			Help: "The total number of export batches by format and result",
		}, []string{"format", "result"}),
		tickets: f.NewCounter(prometheus.CounterOpts{
			Name: "railpass_export_tickets_total",
			Help: "The total number of tickets rasterized for export",
		}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "railpass_export_duration_seconds",
			Help:    "Time taken to export one batch",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		}, []string{"format"}),
	}
}

func (m *Metrics) observe(format Format, result string, seconds float64) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(string(format), result).Inc()
	m.duration.WithLabelValues(string(format)).Observe(seconds)
}

func (m *Metrics) ticket() {
	if m == nil {
		return
	}
	m.tickets.Inc()
}
