package incident

import (
	"testing"
	"time"
)

func TestAckWindowOrdering(t *testing.T) {
	if SeverityCritical.AckWindow() >= SeverityHigh.AckWindow() {
		t.Fatalf("expected critical's ack window to be shorter than high's")
	}
	if SeverityHigh.AckWindow() >= SeverityMedium.AckWindow() {
		t.Fatalf("expected high's ack window to be shorter than medium's")
	}
	if SeverityMedium.AckWindow() >= SeverityLow.AckWindow() {
		t.Fatalf("expected medium's ack window to be shorter than low's")
	}
	if SeverityCritical.AckWindow() != 15*time.Minute {
		t.Fatalf("expected critical ack window of 15m, got %v", SeverityCritical.AckWindow())
	}
}

func TestLogLevelBySeverity(t *testing.T) {
	cases := map[Severity]string{
		SeverityCritical: "error",
		SeverityHigh:     "error",
		SeverityMedium:   "warn",
		SeverityLow:      "info",
	}
	for severity, want := range cases {
		if got := severity.LogLevel(); got != want {
			t.Fatalf("%s.LogLevel() = %q, want %q", severity, got, want)
		}
	}
}

func TestEveryTypeHasAnInvariantIDAndSeverity(t *testing.T) {
	types := []Type{
		AnchorNotSelected, BudgetExceeded, RadiusExceeded, DanglingEdge,
		OrderingViolation, NonReproducible, PolicyRebind, ContentHashMismatch,
	}
	seen := map[string]bool{}
	for _, ty := range types {
		id := ty.Invariant()
		if id == "" {
			t.Fatalf("expected type %d to carry an invariant id", ty)
		}
		if seen[id] {
			t.Fatalf("duplicate invariant id %s", id)
		}
		seen[id] = true
		if ty.Severity() == "" {
			t.Fatalf("expected type %d (%s) to have a default severity", ty, id)
		}
	}
	if len(seen) != 8 {
		t.Fatalf("expected 8 distinct invariant ids, got %d", len(seen))
	}
}

func TestAlertInvokesInstalledSink(t *testing.T) {
	var gotLevel, gotInvariant string
	var gotSeverity Severity
	SetAlertFunc(func(level, invariant string, severity Severity, context map[string]any) {
		gotLevel, gotInvariant, gotSeverity = level, invariant, severity
	})
	defer SetAlertFunc(func(string, string, Severity, map[string]any) {})

	i := Incident{Type: AnchorNotSelected, Severity: AnchorNotSelected.Severity()}
	i.Alert()

	if gotInvariant != "INV-GK-001" {
		t.Fatalf("expected INV-GK-001, got %s", gotInvariant)
	}
	if gotSeverity != SeverityCritical {
		t.Fatalf("expected critical severity, got %s", gotSeverity)
	}
	if gotLevel != "error" {
		t.Fatalf("expected error log level, got %s", gotLevel)
	}
}
