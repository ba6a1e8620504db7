package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "statusboard"

// FeedMetrics holds all Prometheus metrics for the feed server.
type FeedMetrics struct {
	Registry *prometheus.Registry

	EventsTotal        *prometheus.CounterVec
	BytesTotal         prometheus.Counter
	ObserversConnected prometheus.Gauge
	BroadcastEvictions prometheus.Counter
	SnapshotEvents     prometheus.Histogram

	startedAt time.Time
}

// NewFeedMetrics creates the metrics on a private registry, so that several
// servers (or tests) can coexist in one process.
func NewFeedMetrics() *FeedMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &FeedMetrics{
		Registry: reg,
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Total number of submitted events by status.",
		}, []string{"status"}), // status: accepted, malformed, persist_error, rate_limited, too_large
		BytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "bytes_total",
			Help:      "Total number of payload bytes accepted.",
		}),
		ObserversConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "observers_connected",
			Help:      "Number of observer connections currently registered.",
		}),
		BroadcastEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "evictions_total",
			Help:      "Observers dropped because their outbound queue was full.",
		}),
		SnapshotEvents: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "snapshot_events",
			Help:      "Number of events sent in each initial snapshot.",
			Buckets:   []float64{0, 1, 10, 25, 50, 100, 250, 500},
		}),
		startedAt: time.Now(),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *FeedMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// statNames maps exported metric families onto analytics keys.
var statNames = map[string]string{
	namespace + "_ingest_events_total":           "eventsTotal",
	namespace + "_ingest_bytes_total":            "bytesTotal",
	namespace + "_broadcast_observers_connected": "observersConnected",
	namespace + "_broadcast_evictions_total":     "broadcastEvictions",
	namespace + "_session_snapshot_events":       "snapshotsSent",
	"go_goroutines":                              "goroutines",
	"go_memstats_heap_alloc_bytes":               "heapAllocBytes",
	"process_resident_memory_bytes":              "residentMemoryBytes",
	"process_cpu_seconds_total":                  "cpuSeconds",
}

// PerformanceStats gathers a point in time view of the registry for the
// analytics sub-protocol. Labelled counters are summed and also reported per
// label value as "<key>.<value>".
func (m *FeedMetrics) PerformanceStats() (map[string]float64, error) {
	families, err := m.Registry.Gather()
	if err != nil {
		return nil, err
	}

	stats := map[string]float64{
		"uptimeSeconds": time.Since(m.startedAt).Seconds(),
	}
	for _, mf := range families {
		key, ok := statNames[mf.GetName()]
		if !ok {
			continue
		}
		var total float64
		for _, metric := range mf.GetMetric() {
			v := metricValue(mf.GetType(), metric)
			total += v
			for _, lp := range metric.GetLabel() {
				stats[key+"."+lp.GetValue()] = v
			}
		}
		stats[key] = total
	}
	return stats, nil
}

func metricValue(t dto.MetricType, m *dto.Metric) float64 {
	switch t {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	case dto.MetricType_HISTOGRAM:
		return float64(m.GetHistogram().GetSampleCount())
	case dto.MetricType_UNTYPED:
		return m.GetUntyped().GetValue()
	default:
		return 0
	}
}
