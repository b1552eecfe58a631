package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prom is the prometheus view of a Recorder, for embedding processes that
// already expose a registry. The CLI binaries do not serve one
type Prom struct {
	apiCalls    *prometheus.CounterVec
	retries     prometheus.Counter
	entities    prometheus.Counter
	errorsTotal *prometheus.CounterVec
	callLatency prometheus.Histogram
}

// NewProm registers the submission counters on reg
func NewProm(reg prometheus.Registerer) *Prom {
	f := promauto.With(reg)
	return &Prom{
		apiCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "detrelay_api_calls_total",
				Help: "Total number of submission API calls by result",
			},
			[]string{"result"}, // success, failed
		),
		retries: f.NewCounter(
			prometheus.CounterOpts{
				Name: "detrelay_retries_total",
				Help: "Total number of retry attempts",
			},
		),
		entities: f.NewCounter(
			prometheus.CounterOpts{
				Name: "detrelay_entities_processed_total",
				Help: "Total number of indicators handed to the API",
			},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "detrelay_errors_total",
				Help: "Total number of submission failures by error type",
			},
			[]string{"type"},
		),
		callLatency: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "detrelay_call_latency_seconds",
				Help:    "Latency of individual submission attempts",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
	}
}

func (p *Prom) recordCall(latency time.Duration, success bool) {
	result := "failed"
	if success {
		result = "success"
	}
	p.apiCalls.WithLabelValues(result).Inc()
	p.callLatency.Observe(latency.Seconds())
}

func (p *Prom) recordRetry() { p.retries.Inc() }

func (p *Prom) recordEntities(n int) { p.entities.Add(float64(n)) }

func (p *Prom) recordError(typ string) { p.errorsTotal.WithLabelValues(typ).Inc() }
