package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jarvis"

var (
	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_processed_total",
		Help:      "Inbound messages processed by platform and outcome.",
	}, []string{"platform", "outcome"})

	CompletionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "completion_errors_total",
		Help:      "Primary completion call failures.",
	})

	ExtractionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "extraction_runs_total",
		Help:      "Fact extraction cycles by outcome.",
	}, []string{"outcome"})

	FactsLearned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "facts_learned_total",
		Help:      "New facts merged into user profiles.",
	})

	ReplyLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reply_latency_ms",
		Help:      "End-to-end reply latency in milliseconds.",
		Buckets:   []float64{200, 500, 1000, 2000, 4000, 8000, 15000, 30000, 60000},
	})
)

func ObserveReplyLatency(d time.Duration) {
	ReplyLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
