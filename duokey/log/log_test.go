package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(zapcore.AddSync(&buf), InfoLevel, true).Named("identity").With("name", "alice")

	l.Debugw("dropped")
	l.Warnw("identity not authenticated", "sender", "bob")
	_ = l.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected exactly one entry, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if entry["level"] != "WARN" {
		t.Fatalf("unexpected level %v", entry["level"])
	}
	if entry["logger"] != "identity" || entry["name"] != "alice" || entry["sender"] != "bob" {
		t.Fatalf("unexpected fields %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("debug")
	if err != nil || lvl != DebugLevel {
		t.Fatalf("ParseLevel(debug) = %d, %v", lvl, err)
	}
	lvl, err = ParseLevel("WARN")
	if err != nil || lvl != WarnLevel {
		t.Fatalf("ParseLevel(WARN) = %d, %v", lvl, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatalf("expected a logger")
	}
	l := Nop()
	if OrNop(l) != l {
		t.Fatalf("expected the same logger back")
	}
}
