package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/davidahmann/graphkernel/core/incident"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := &dto.Metric{}
	if err := (<-ch).Write(m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRecordQuarantineIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)
	p.RecordQuarantine()
	p.RecordQuarantine()
	if got := counterValue(t, p.quarantineTotal); got != 2 {
		t.Fatalf("expected quarantine counter at 2, got %v", got)
	}
}

func TestRecordBoundaryViolationIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)
	p.RecordBoundaryViolation()
	if got := counterValue(t, p.boundaryViolationsTotal); got != 1 {
		t.Fatalf("expected boundary violation counter at 1, got %v", got)
	}
}

func TestRecordTokenVerifyFailureIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)
	p.RecordTokenVerifyFailure()
	if got := counterValue(t, p.tokenVerifyFailures); got != 1 {
		t.Fatalf("expected token verify failure counter at 1, got %v", got)
	}
}

func TestRecordIncidentIsLabeledByTypeAndSeverity(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)
	p.RecordIncident(incident.AnchorNotSelected, incident.SeverityCritical)

	ch := make(chan prometheus.Metric, 1)
	p.incidentTotal.WithLabelValues("1", "critical").Collect(ch)
	m := &dto.Metric{}
	if err := (<-ch).Write(m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if m.GetCounter().GetValue() != 1 {
		t.Fatalf("expected labeled incident counter at 1, got %v", m.GetCounter().GetValue())
	}
}

func TestPrometheusSatisfiesMetricsInterface(t *testing.T) {
	var _ incident.Metrics = NewPrometheus(prometheus.NewRegistry())
}
