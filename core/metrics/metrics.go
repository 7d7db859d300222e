// Package metrics implements core/incident.Metrics against
// prometheus/client_golang, modeled on the promauto counter/histogram
// vectors the wider example pack's routing and execution metrics use
// (structure only: label sets and naming are the kernel's own).
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/davidahmann/graphkernel/core/incident"
)

// Prometheus is an incident.Metrics backed by a set of registered
// counter vectors, one per reserved metric name in core/incident.
type Prometheus struct {
	incidentTotal           *prometheus.CounterVec
	quarantineTotal         prometheus.Counter
	boundaryViolationsTotal prometheus.Counter
	tokenVerifyFailures     prometheus.Counter
}

// NewPrometheus registers the kernel's counters against reg. Passing
// nil uses prometheus.DefaultRegisterer, the same default promauto's
// package-level constructors use.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Prometheus{
		incidentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: incident.MetricIncidentTotal,
			Help: "Count of detected invariant violations by type and severity.",
		}, []string{"type", "severity"}),
		quarantineTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: incident.MetricQuarantinedTokensTotal,
			Help: "Count of tokens quarantined following an incident.",
		}),
		boundaryViolationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: incident.MetricBoundaryViolationsTotal,
			Help: "Count of slice boundary access violations.",
		}),
		tokenVerifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: incident.MetricTokenVerifyFailuresTotal,
			Help: "Count of admissibility token verification failures.",
		}),
	}
}

func (p *Prometheus) RecordIncident(t incident.Type, s incident.Severity) {
	p.incidentTotal.WithLabelValues(strconv.Itoa(int(t)), string(s)).Inc()
}

func (p *Prometheus) RecordQuarantine() {
	p.quarantineTotal.Inc()
}

func (p *Prometheus) RecordBoundaryViolation() {
	p.boundaryViolationsTotal.Inc()
}

func (p *Prometheus) RecordTokenVerifyFailure() {
	p.tokenVerifyFailures.Inc()
}

var _ incident.Metrics = (*Prometheus)(nil)
