package ingest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics owned by the ingestion pipeline.
// All Pipeline methods accept a nil *Metrics and skip instrumentation.
type Metrics struct {
	// documentsTotal counts documents reaching a terminal state,
	// partitioned by outcome: "processed" or "error".
	documentsTotal *prometheus.CounterVec

	// documentDurationSeconds records the wall-clock time from pipeline
	// start to terminal state, partitioned by outcome.
	documentDurationSeconds *prometheus.HistogramVec

	// chunksIndexedTotal counts chunks successfully added to a namespace.
	chunksIndexedTotal prometheus.Counter

	// documentsInFlight tracks documents currently being ingested.
	documentsInFlight prometheus.Gauge
}

// NewMetrics registers the pipeline metrics against reg. Each call
// registers into the provided registry rather than the global default.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		documentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "askdocs",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total number of documents reaching a terminal ingestion state, partitioned by outcome.",
		}, []string{"outcome"}),

		documentDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "askdocs",
			Subsystem: "ingest",
			Name:      "document_duration_seconds",
			Help:      "Wall-clock duration of document ingestion from start to terminal state.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"outcome"}),

		chunksIndexedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "askdocs",
			Subsystem: "ingest",
			Name:      "chunks_indexed_total",
			Help:      "Total number of chunks embedded and added to a vector namespace.",
		}),

		documentsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "askdocs",
			Subsystem: "ingest",
			Name:      "documents_in_flight",
			Help:      "Number of documents currently being ingested.",
		}),
	}
}

// trackInFlight marks a document as in flight and returns the matching
// decrement for the caller to defer.
func (m *Metrics) trackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.documentsInFlight.Inc()
	return m.documentsInFlight.Dec
}

// observeDocument records one terminal document outcome.
func (m *Metrics) observeDocument(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.documentsTotal.WithLabelValues(outcome).Inc()
	m.documentDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// addChunks records n successfully indexed chunks.
func (m *Metrics) addChunks(n int) {
	if m == nil {
		return
	}
	m.chunksIndexedTotal.Add(float64(n))
}
