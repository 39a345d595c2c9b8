package spanz

import (
	"github.com/prometheus/client_golang/prometheus"
)

// droppedCounter is implemented by queues that can lose entries.
type droppedCounter interface {
	Dropped() uint64
}

// Metrics exposes tracer health as Prometheus metrics. Values are read from
// the tracer on every scrape.
type Metrics struct {
	tracer          *Tracer
	queueDropped    *prometheus.Desc
	exportDropped   *prometheus.Desc
	exportedSpans   *prometheus.Desc
	runningSpans    *prometheus.Desc
	sampledSpans    *prometheus.Desc
	registeredNames *prometheus.Desc
}

// NewMetrics creates a collector for t. Register it with a prometheus.Registerer.
func NewMetrics(t *Tracer) *Metrics {
	return &Metrics{
		tracer: t,
		queueDropped: prometheus.NewDesc(
			"spanz_queue_dropped_total",
			"Event queue entries dropped because the queue was full",
			nil, nil,
		),
		exportDropped: prometheus.NewDesc(
			"spanz_export_dropped_total",
			"Spans dropped because the export buffer was full",
			nil, nil,
		),
		exportedSpans: prometheus.NewDesc(
			"spanz_exported_spans_total",
			"Spans handed to export handlers",
			nil, nil,
		),
		runningSpans: prometheus.NewDesc(
			"spanz_running_spans",
			"Spans currently running, by span name",
			[]string{"span_name"}, nil,
		),
		sampledSpans: prometheus.NewDesc(
			"spanz_sampled_spans",
			"Spans retained by the sampled span store, by span name and kind",
			[]string{"span_name", "kind"}, nil,
		),
		registeredNames: prometheus.NewDesc(
			"spanz_sampled_span_names",
			"Span names registered for local sampling",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.queueDropped
	ch <- m.exportDropped
	ch <- m.exportedSpans
	ch <- m.runningSpans
	ch <- m.sampledSpans
	ch <- m.registeredNames
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	var queueDropped uint64
	if q, ok := m.tracer.Queue().(droppedCounter); ok {
		queueDropped = q.Dropped()
	}
	ch <- prometheus.MustNewConstMetric(m.queueDropped, prometheus.CounterValue, float64(queueDropped))

	exporter := m.tracer.Exporter()
	ch <- prometheus.MustNewConstMetric(m.exportDropped, prometheus.CounterValue, float64(exporter.Dropped()))
	ch <- prometheus.MustNewConstMetric(m.exportedSpans, prometheus.CounterValue, float64(exporter.Exported()))

	for name, s := range m.tracer.RunningSpanStore().GetSummary().PerSpanName {
		ch <- prometheus.MustNewConstMetric(m.runningSpans, prometheus.GaugeValue, float64(s.NumRunningSpans), name)
	}

	summary := m.tracer.SampledSpanStore().GetSummary()
	for name, s := range summary.PerSpanName {
		var latency, errs int
		for _, n := range s.LatencyCounts {
			latency += n
		}
		for _, n := range s.ErrorCounts {
			errs += n
		}
		ch <- prometheus.MustNewConstMetric(m.sampledSpans, prometheus.GaugeValue, float64(latency), name, "latency")
		ch <- prometheus.MustNewConstMetric(m.sampledSpans, prometheus.GaugeValue, float64(errs), name, "error")
	}
	ch <- prometheus.MustNewConstMetric(m.registeredNames, prometheus.GaugeValue, float64(len(summary.PerSpanName)))
}
