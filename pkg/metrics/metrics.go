package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "glov"

// Metrics records pipeline activity. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	failures      *prometheus.CounterVec
	runs          *prometheus.CounterVec
	chunksIndexed prometheus.Counter
	pdfBytes      prometheus.Histogram
}

func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 3, 10),
		}, []string{"stage"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "failures_total",
			Help:      "Pipeline failures by stage and error kind.",
		}, []string{"stage", "kind"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Completed pipeline runs by outcome.",
		}, []string{"outcome"}),
		chunksIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "chunks_indexed_total",
			Help:      "Chunks embedded and written to the vector store.",
		}),
		pdfBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "pdf_bytes",
			Help:      "Size of downloaded PDFs.",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 4, 8),
		}),
	}

	for _, c := range []prometheus.Collector{m.stageDuration, m.failures, m.runs, m.chunksIndexed, m.pdfBytes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) Failure(stage, kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(stage, kind).Inc()
	m.runs.WithLabelValues("failure").Inc()
}

func (m *Metrics) Success(chunks int) {
	if m == nil {
		return
	}
	m.chunksIndexed.Add(float64(chunks))
	m.runs.WithLabelValues("success").Inc()
}

func (m *Metrics) Downloaded(bytes int64) {
	if m == nil {
		return
	}
	m.pdfBytes.Observe(float64(bytes))
}
