package backend

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	translationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doctrans_backend_requests_total",
			Help: "Total number of backend translation requests",
		},
		[]string{"backend", "status"},
	)

	translationRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doctrans_backend_request_duration_seconds",
			Help:    "Duration of backend translation requests in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0, 120.0},
		},
		[]string{"backend", "status"},
	)

	translationRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doctrans_backend_request_size_bytes",
			Help:    "Size of text sent to the backend in bytes",
			Buckets: []float64{100, 500, 1000, 2000, 4000, 8000, 16000, 64000},
		},
		[]string{"backend"},
	)
)

// instrumented records every call of the wrapped backend in Prometheus and,
// when set, in an LLMStats window.
type instrumented struct {
	next  Backend
	name  string
	stats *LLMStats
}

// Instrument wraps b so each call is counted and timed under name.
func Instrument(b Backend, name string, stats *LLMStats) Backend {
	return &instrumented{next: b, name: name, stats: stats}
}

func (m *instrumented) Translate(ctx context.Context, text, targetLanguage, model string) (string, error) {
	start := time.Now()
	out, err := m.next.Translate(ctx, text, targetLanguage, model)
	elapsed := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
	}
	translationRequestsTotal.WithLabelValues(m.name, status).Inc()
	translationRequestDuration.WithLabelValues(m.name, status).Observe(elapsed.Seconds())
	translationRequestSize.WithLabelValues(m.name).Observe(float64(len(text)))
	if m.stats != nil {
		m.stats.Record(elapsed, text, err != nil)
	}
	return out, err
}

func (m *instrumented) Close() { Close(m.next) }
