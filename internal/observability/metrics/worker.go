package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	processedTotal  *prometheus.CounterVec
	processDuration prometheus.Histogram
	inFlight        prometheus.Gauge
	chunksIndexed   prometheus.Counter
}

func NewWorkerMetrics() *WorkerMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &WorkerMetrics{
		registry: registry,
		processedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "worker",
			Name:      "documents_processed_total",
			Help:      "Processed documents by outcome.",
		}, []string{"outcome"}),
		processDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "worker",
			Name:      "process_duration_seconds",
			Help:      "End-to-end document processing latency.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rag",
			Subsystem: "worker",
			Name:      "documents_in_flight",
			Help:      "Documents currently being processed.",
		}),
		chunksIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "worker",
			Name:      "chunks_indexed_total",
			Help:      "Chunks written to the vector index.",
		}),
	}

	registry.MustRegister(m.processedTotal, m.processDuration, m.inFlight, m.chunksIndexed)
	return m
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveProcessing wraps one document-processing run.
func (m *WorkerMetrics) ObserveProcessing(run func() error) error {
	started := time.Now()
	m.inFlight.Inc()
	defer m.inFlight.Dec()

	err := run()
	m.processDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		m.processedTotal.WithLabelValues("error").Inc()
		return err
	}
	m.processedTotal.WithLabelValues("ok").Inc()
	return nil
}

func (m *WorkerMetrics) AddChunksIndexed(n int) {
	if n > 0 {
		m.chunksIndexed.Add(float64(n))
	}
}
