package trace

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestEmitWritesJSONL(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, "run-1")

	if err := w.EmitRunStart("login flow", 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.EmitStepComplete("login", true, false, "", 12*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	var first Event
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first.Type != EventRunStart || first.RunID != "run-1" {
		t.Fatalf("got %+v", first)
	}
}

func TestNilWriterIsNoop(t *testing.T) {
	var w *Writer
	if err := w.EmitStepStart("k", "name"); err != nil {
		t.Fatalf("nil writer should be a no-op, got error: %v", err)
	}
}
