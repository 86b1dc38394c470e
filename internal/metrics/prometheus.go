package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusRecorder struct {
	counters  *prometheus.CounterVec
	histogram *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the deposit collectors on reg. Pass
// prometheus.DefaultRegisterer to expose them through promhttp.Handler.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	counters := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pix_deposit",
			Name:      "events_total",
			Help:      "PIX deposit event counters",
		},
		[]string{"type", "outcome"},
	)

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pix_deposit",
			Name:      "latency_seconds",
			Help:      "PIX deposit operation latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)

	reg.MustRegister(counters, histogram)

	return &PrometheusRecorder{
		counters:  counters,
		histogram: histogram,
	}
}

func (p *PrometheusRecorder) IncCounter(name string, labels map[string]string) {
	p.counters.With(prometheus.Labels{
		"type":    name,
		"outcome": labels["outcome"],
	}).Inc()
}

func (p *PrometheusRecorder) ObserveLatency(name string, d time.Duration, labels map[string]string) {
	p.histogram.With(prometheus.Labels{
		"operation": name,
		"outcome":   labels["outcome"],
	}).Observe(d.Seconds())
}
