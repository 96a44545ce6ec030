package miner

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of one pipeline. Each pipeline
// owns its registry so several can coexist in tests.
type Metrics struct {
	Registry *prometheus.Registry

	Events         *prometheus.CounterVec
	Media          *prometheus.CounterVec
	IndexErrors    prometheus.Counter
	RawLogErrors   prometheus.Counter
	HandleDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tgminer_events_total",
			Help: "Chat events handled, by outcome",
		}, []string{"outcome"}),

		Media: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tgminer_media_total",
			Help: "Attachments seen, by kind and disposition",
		}, []string{"kind", "disposition"}),

		IndexErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "tgminer_index_errors_total",
			Help: "Index commits that failed",
		}),

		RawLogErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "tgminer_raw_log_errors_total",
			Help: "Raw log appends that failed",
		}),

		HandleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tgminer_handle_duration_seconds",
			Help:    "Time spent handling one event, media fetch included",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
