package obslog

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmitWritesOneJSONLineToOut(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Emit("warn", "SLICE_BOUNDARY_VIOLATION", map[string]any{"anchor_turn_id": "abc"})

	line := strings.TrimSuffix(buf.String(), "\n")
	var event Event
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		t.Fatalf("unmarshal emitted line: %v", err)
	}
	if event.Level != "warn" || event.Marker != "SLICE_BOUNDARY_VIOLATION" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Fields["anchor_turn_id"] != "abc" {
		t.Fatalf("expected fields to round trip, got %+v", event.Fields)
	}
}

func TestEmitAppendsToAuditPathWhenConfigured(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	auditPath := filepath.Join(t.TempDir(), "audit.jsonl")
	w.SetAuditPath(auditPath)

	w.Emit("error", "INCIDENT_INV-GK-001", map[string]any{"severity": "critical"})
	w.Emit("warn", "INCIDENT_INV-GK-003", map[string]any{"severity": "high"})

	raw, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("read audit path: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 audit lines, got %d: %q", len(lines), raw)
	}
	for _, line := range lines {
		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			t.Fatalf("invalid audit line json: %v (%q)", err, line)
		}
	}
}

func TestEmitWithoutAuditPathWritesNoAuditFile(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Emit("info", "SERVICE_STARTING", nil)

	auditPath := filepath.Join(t.TempDir(), "should-not-exist.jsonl")
	if _, err := os.Stat(auditPath); !os.IsNotExist(err) {
		t.Fatalf("expected no audit file to be created, stat err=%v", err)
	}
}
