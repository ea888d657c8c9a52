package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	indexRunsTotal     *prometheus.CounterVec
	indexDuration      *prometheus.HistogramVec
	filesIndexed       prometheus.Gauge
	chunksIndexed      prometheus.Gauge
	chunksChangedTotal *prometheus.CounterVec

	retrieveDuration prometheus.Histogram
	retrieveResults  prometheus.Histogram

	watchEventsTotal   *prometheus.CounterVec
	watchTriggersTotal prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			indexRunsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_index_runs_total",
					Help: "Total indexer runs by operation and status.",
				},
				[]string{"op", "status"},
			),
			indexDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "memory_index_duration_seconds",
					Help:    "Indexer run duration in seconds by operation.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"op"},
			),
			filesIndexed: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_files_indexed",
					Help: "Files currently tracked in the file index.",
				},
			),
			chunksIndexed: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_chunks_indexed",
					Help: "Chunks currently stored in the vector store.",
				},
			),
			chunksChangedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_chunks_changed_total",
					Help: "Chunks added to or removed from the vector store.",
				},
				[]string{"direction"},
			),
			retrieveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_retrieve_duration_seconds",
					Help:    "Pointer retrieval duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			retrieveResults: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_retrieve_results",
					Help:    "Pointers returned per retrieval.",
					Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
				},
			),
			watchEventsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_watch_events_total",
					Help: "Filtered filesystem events seen by the watcher by kind.",
				},
				[]string{"kind"},
			),
			watchTriggersTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_watch_triggers_total",
					Help: "Debounced update triggers fired by the watcher.",
				},
			),
		}

		prometheus.MustRegister(
			m.indexRunsTotal,
			m.indexDuration,
			m.filesIndexed,
			m.chunksIndexed,
			m.chunksChangedTotal,
			m.retrieveDuration,
			m.retrieveResults,
			m.watchEventsTotal,
			m.watchTriggersTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordIndexRun(op, status string, duration time.Duration) {
	m := getMetrics()
	m.indexRunsTotal.WithLabelValues(op, status).Inc()
	m.indexDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordChunksChanged counts chunks by direction ("added" or "removed").
func RecordChunksChanged(direction string, n int) {
	if n <= 0 {
		return
	}
	m := getMetrics()
	m.chunksChangedTotal.WithLabelValues(direction).Add(float64(n))
}

func SetIndexSize(files, chunks int) {
	m := getMetrics()
	m.filesIndexed.Set(float64(files))
	m.chunksIndexed.Set(float64(chunks))
}

func RecordRetrieve(duration time.Duration, results int) {
	m := getMetrics()
	m.retrieveDuration.Observe(duration.Seconds())
	m.retrieveResults.Observe(float64(results))
}

func RecordWatchEvent(kind string) {
	m := getMetrics()
	m.watchEventsTotal.WithLabelValues(kind).Inc()
}

func RecordWatchTrigger() {
	m := getMetrics()
	m.watchTriggersTotal.Inc()
}
