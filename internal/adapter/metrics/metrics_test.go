package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("accepted", 10)
	m.ObserveInsight("high", 20, true)
	m.ObserveStore(3, true)
	m.SinkFailed("relational")
	m.ObserveExport("manual", true, 1, 1)
	m.SetExportBuffer(1)
	m.ObserveAlert("redis", "published")
	m.SetSpoolActive(true)
	m.ObserveCorpusReload(false)
}

func TestMetrics_Observe(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveInsight("critical", 95, true)
	m.ObserveInsight("critical", 70, false)
	m.ObserveExport("auto", false, 10, 100)
	m.ObserveExport("auto", true, 10, 100)

	if got := counterValue(t, m.EventsTotal.WithLabelValues("critical")); got != 2 {
		t.Errorf("critical events = %v, want 2", got)
	}
	if got := counterValue(t, m.EnrichmentErrors); got != 1 {
		t.Errorf("enrichment errors = %v, want 1", got)
	}
	if got := counterValue(t, m.ExportsTotal.WithLabelValues("auto", "failure")); got != 1 {
		t.Errorf("failed exports = %v, want 1", got)
	}
	if got := counterValue(t, m.ExportedEvents); got != 10 {
		t.Errorf("exported events = %v, want 10", got)
	}
}
