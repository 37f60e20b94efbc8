package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "honeywatch"

// Metrics holds all Prometheus metrics for the sensor pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	IngestRequests   *prometheus.CounterVec
	BytesTotal       prometheus.Counter
	EventsTotal      *prometheus.CounterVec
	RiskScore        prometheus.Histogram
	EnrichmentErrors prometheus.Counter
	StoreSize        prometheus.Gauge
	StoreEvictions   prometheus.Counter
	SinkErrors       *prometheus.CounterVec
	ExportsTotal     *prometheus.CounterVec
	ExportedEvents   prometheus.Counter
	ExportBytes      prometheus.Counter
	ExportBuffer     prometheus.Gauge
	AlertsTotal      *prometheus.CounterVec
	AlertSpoolActive prometheus.Gauge
	CorpusReloads    *prometheus.CounterVec
}

// New registers the metrics with reg. Pass prometheus.DefaultRegisterer in
// binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IngestRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "requests_total",
			Help:      "Total number of ingest requests by status.",
		}, []string{"status"}), // status: accepted, error_parse, error_size, error_media_type, error_rate_limited
		BytesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "bytes_total",
			Help:      "Total number of bytes ingested.",
		}),
		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "events_total",
			Help:      "Enriched events by threat level.",
		}, []string{"level"}),
		RiskScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "risk_score",
			Help:      "Distribution of computed risk scores.",
			Buckets:   []float64{0, 15, 20, 35, 50, 70, 95, 120},
		}),
		EnrichmentErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "rule_errors_total",
			Help:      "Events for which at least one rule was skipped.",
		}),
		StoreSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "events",
			Help:      "Events currently held by the event store.",
		}),
		StoreEvictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "evictions_total",
			Help:      "Events evicted from the event store by capacity.",
		}),
		SinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "errors_total",
			Help:      "Failed sink writes by sink.",
		}, []string{"sink"}),
		ExportsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "runs_total",
			Help:      "Exports by trigger and outcome.",
		}, []string{"trigger", "status"}),
		ExportedEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "events_total",
			Help:      "Events written by exports.",
		}),
		ExportBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "bytes_total",
			Help:      "Bytes written by exports.",
		}),
		ExportBuffer: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "buffered_events",
			Help:      "Events waiting in the export buffer.",
		}),
		AlertsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "published_total",
			Help:      "Alert publications by bus and outcome.",
		}, []string{"bus", "status"}),
		AlertSpoolActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "spool_active_gauge",
			Help:      "1 while alerts are being spooled to disk because the bus is unavailable.",
		}),
		CorpusReloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "corpus",
			Name:      "reloads_total",
			Help:      "Corpus reload attempts by outcome.",
		}, []string{"status"}),
	}
}

func (m *Metrics) ObserveRequest(status string, bytes int) {
	if m == nil {
		return
	}
	m.IngestRequests.WithLabelValues(status).Inc()
	if bytes > 0 {
		m.BytesTotal.Add(float64(bytes))
	}
}

func (m *Metrics) ObserveInsight(level string, score int, failedRules bool) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(level).Inc()
	m.RiskScore.Observe(float64(score))
	if failedRules {
		m.EnrichmentErrors.Inc()
	}
}

func (m *Metrics) ObserveStore(size int, evicted bool) {
	if m == nil {
		return
	}
	m.StoreSize.Set(float64(size))
	if evicted {
		m.StoreEvictions.Inc()
	}
}

func (m *Metrics) SinkFailed(sink string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(sink).Inc()
}

func (m *Metrics) ObserveExport(trigger string, ok bool, events int, bytes int64) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "failure"
	}
	m.ExportsTotal.WithLabelValues(trigger, status).Inc()
	if ok {
		m.ExportedEvents.Add(float64(events))
		m.ExportBytes.Add(float64(bytes))
	}
}

func (m *Metrics) SetExportBuffer(n int) {
	if m == nil {
		return
	}
	m.ExportBuffer.Set(float64(n))
}

func (m *Metrics) ObserveAlert(bus, status string) {
	if m == nil {
		return
	}
	m.AlertsTotal.WithLabelValues(bus, status).Inc()
}

func (m *Metrics) SetSpoolActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.AlertSpoolActive.Set(1)
	} else {
		m.AlertSpoolActive.Set(0)
	}
}

func (m *Metrics) ObserveCorpusReload(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.CorpusReloads.WithLabelValues("success").Inc()
	} else {
		m.CorpusReloads.WithLabelValues("failure").Inc()
	}
}
