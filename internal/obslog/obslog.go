// Package obslog writes single-line JSON operational events to
// stderr, modeled on the teacher's cmd/gait operational-event writer
// (core/scout/operational.go) — the one ambient concern the teacher
// itself implements on the standard library rather than a logging
// framework. The kernel's incidents (core/incident) and the
// GRAPH_SNAPSHOT_HASH_STATS_FALLBACK warning marker are emitted
// through it. When an audit path is configured (SetAuditPath), every
// Event is additionally appended to that JSONL file via
// core/fsx.AppendLineLocked, so incident and boundary-violation
// history survives beyond the stderr stream.
package obslog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/davidahmann/graphkernel/core/fsx"
)

// Event is one structured log line.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Marker    string         `json:"marker"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Writer emits Events as newline-delimited JSON. The zero value writes
// to os.Stderr.
type Writer struct {
	out       io.Writer
	auditPath string
}

// NewWriter wraps out. A nil out defaults to os.Stderr.
func NewWriter(out io.Writer) *Writer {
	if out == nil {
		out = os.Stderr
	}
	return &Writer{out: out}
}

var defaultWriter = NewWriter(os.Stderr)

// SetAuditPath configures w to additionally append every emitted Event
// to the JSONL file at path, via fsx.AppendLineLocked, so events
// survive the stderr stream's loss on process restart or log rotation.
// An empty path disables auditing. Set once at startup, before the
// writer is shared across goroutines, the same way core/incident's
// alertFunc is installed.
func (w *Writer) SetAuditPath(path string) {
	w.auditPath = path
}

// Emit writes one Event as a single JSON line, best-effort — a
// marshaling or write failure is reported to stderr directly rather
// than propagated, since logging must never fail the caller's request.
func (w *Writer) Emit(level, marker string, fields map[string]any) {
	event := Event{Timestamp: time.Now().UTC(), Level: level, Marker: marker, Fields: fields}
	encoded, err := json.Marshal(event)
	if err != nil {
		fmt.Fprintf(os.Stderr, "obslog: marshal failed for marker=%s: %v\n", marker, err)
		return
	}
	out := w.out
	if out == nil {
		out = os.Stderr
	}
	if _, err := out.Write(append(encoded, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "obslog: write failed for marker=%s: %v\n", marker, err)
	}
	if w.auditPath != "" {
		if err := fsx.AppendLineLocked(w.auditPath, encoded, 0o600); err != nil {
			fmt.Fprintf(os.Stderr, "obslog: audit append failed for marker=%s: %v\n", marker, err)
		}
	}
}

// Emit writes through the default (stderr) writer.
func Emit(level, marker string, fields map[string]any) {
	defaultWriter.Emit(level, marker, fields)
}

// SetAuditPath configures the default writer's audit sink. Called once
// from cmd/graphkernel-service's startup when
// GRAPHKERNEL_AUDIT_LOG_PATH is set.
func SetAuditPath(path string) {
	defaultWriter.SetAuditPath(path)
}

// Warn is shorthand for Emit("warn", marker, fields).
func Warn(marker string, fields map[string]any) {
	Emit("warn", marker, fields)
}

// Error is shorthand for Emit("error", marker, fields).
func Error(marker string, fields map[string]any) {
	Emit("error", marker, fields)
}

// Info is shorthand for Emit("info", marker, fields).
func Info(marker string, fields map[string]any) {
	Emit("info", marker, fields)
}
