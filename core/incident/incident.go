// Package incident implements the kernel's incident model: the eight
// named invariant violations it can detect, their severities, the
// quarantine record for a token pulled from service after a violation,
// and the metrics sink interface implementations inject.
package incident

import (
	"time"
)

// Severity bounds how quickly an incident must be acknowledged.
type Severity string

const (
	SeverityCritical Severity = "critical" // <= 15 min
	SeverityHigh     Severity = "high"     // <= 1 h
	SeverityMedium   Severity = "medium"   // <= 4 h
	SeverityLow      Severity = "low"      // <= 1 day
)

// AckWindow returns the maximum time this severity allows before
// acknowledgment.
func (s Severity) AckWindow() time.Duration {
	switch s {
	case SeverityCritical:
		return 15 * time.Minute
	case SeverityHigh:
		return time.Hour
	case SeverityMedium:
		return 4 * time.Hour
	case SeverityLow:
		return 24 * time.Hour
	default:
		return 0
	}
}

// LogLevel returns the level alert() should log at for this severity.
func (s Severity) LogLevel() string {
	switch s {
	case SeverityCritical, SeverityHigh:
		return "error"
	case SeverityMedium:
		return "warn"
	default:
		return "info"
	}
}

// Type enumerates the eight invariants the kernel guards, one per
// INV-GK-00N. Each carries its own severity: correctness invariants
// that would admit an unauthorized or unreproducible slice are
// Critical/High; ordering and content-hash violations are Medium. No
// type defaults to Low.
type Type int

const (
	AnchorNotSelected Type = iota + 1 // INV-GK-001: anchor missing from its own slice
	BudgetExceeded                    // INV-GK-002: |turns| > max_nodes
	RadiusExceeded                    // INV-GK-003: a turn beyond max_radius was selected
	DanglingEdge                      // INV-GK-004: an edge endpoint outside turns
	OrderingViolation                 // INV-GK-005: turns/edges not in required sort order
	NonReproducible                   // INV-GK-006: identical inputs produced different canonical bytes
	PolicyRebind                      // INV-GK-007: a PolicyRef was rebound to different parameters
	ContentHashMismatch               // INV-GK-008: content_hash did not match canonical_content(text)
)

var invariantIDs = map[Type]string{
	AnchorNotSelected:   "INV-GK-001",
	BudgetExceeded:      "INV-GK-002",
	RadiusExceeded:      "INV-GK-003",
	DanglingEdge:        "INV-GK-004",
	OrderingViolation:   "INV-GK-005",
	NonReproducible:     "INV-GK-006",
	PolicyRebind:        "INV-GK-007",
	ContentHashMismatch: "INV-GK-008",
}

var defaultSeverity = map[Type]Severity{
	AnchorNotSelected:   SeverityCritical,
	BudgetExceeded:      SeverityHigh,
	RadiusExceeded:      SeverityHigh,
	DanglingEdge:        SeverityHigh,
	OrderingViolation:   SeverityMedium,
	NonReproducible:     SeverityCritical,
	PolicyRebind:        SeverityCritical,
	ContentHashMismatch: SeverityMedium,
}

// Invariant returns the stable invariant id string, e.g. "INV-GK-001".
func (t Type) Invariant() string {
	return invariantIDs[t]
}

// Severity returns this type's default severity.
func (t Type) Severity() Severity {
	return defaultSeverity[t]
}

// Incident records a single detected invariant violation.
type Incident struct {
	ID             string
	Timestamp      time.Time
	Type           Type
	Severity       Severity
	Context        map[string]any
	AcknowledgedAt *time.Time
	AcknowledgedBy string
}

// alertFunc is overridable in tests; production code goes through
// internal/obslog via the service layer, which sets this at startup.
var alertFunc = func(level, invariant string, severity Severity, context map[string]any) {}

// SetAlertFunc installs the sink alert() writes to. The service
// entrypoint calls this once at startup to wire internal/obslog.
func SetAlertFunc(f func(level, invariant string, severity Severity, context map[string]any)) {
	alertFunc = f
}

// Alert emits a structured log record for i at the level its severity
// implies (error for Critical/High, warn for Medium, info for Low).
func (i Incident) Alert() {
	alertFunc(i.Severity.LogLevel(), i.Type.Invariant(), i.Severity, i.Context)
}

// QuarantinedToken records a token pulled from service following an
// incident, pending review.
type QuarantinedToken struct {
	SliceFingerprint string
	Token            string
	Reason           string
	IncidentID       string
	QuarantinedAt    time.Time
	ReviewedAt       *time.Time
	ReviewedBy       string
	Approved         *bool
}

// Metrics is the interface incident reporting is injected through.
// Names match the Prometheus metrics the kernel reserves.
type Metrics interface {
	RecordIncident(t Type, s Severity)
	RecordQuarantine()
	RecordBoundaryViolation()
	RecordTokenVerifyFailure()
}

// Reserved Prometheus metric names (registered by core/metrics'
// NewPrometheus, not by this package).
const (
	MetricBoundaryViolationsTotal  = "graph_kernel_slice_boundary_violations_total"
	MetricTokenVerifyFailuresTotal = "graph_kernel_token_verification_failures_total"
	MetricQuarantinedTokensTotal   = "graph_kernel_quarantined_tokens_total"
	MetricIncidentTotal            = "graph_kernel_incident_total" // labels: type, severity
)
