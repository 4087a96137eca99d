package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, false)
	l.Warn("detector failed", map[string]any{"detector": "no_pii", "error": errors.New("boom")})
	l.Debug("hidden", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if entry["level"] != "warn" || entry["msg"] != "detector failed" {
		t.Errorf("entry = %v", entry)
	}
	if entry["error"] != "boom" || entry["detector"] != "no_pii" {
		t.Errorf("fields = %v", entry)
	}
}

func TestJSONLoggerVerbose(t *testing.T) {
	var buf bytes.Buffer
	NewJSONLogger(&buf, true).Debug("shown", nil)
	if !strings.Contains(buf.String(), `"level":"debug"`) {
		t.Errorf("debug entry missing: %q", buf.String())
	}
}

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewZapLogger(zap.New(core))
	l.Info("reloaded", map[string]any{"scaffolds": 3, "dir": "scaffolds"})
	l.Error("watch failed", map[string]any{"error": errors.New("gone")})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["scaffolds"] != int64(3) || ctx["dir"] != "scaffolds" {
		t.Errorf("context = %v", ctx)
	}
	if entries[1].ContextMap()["error"] != "gone" {
		t.Errorf("error field = %v", entries[1].ContextMap())
	}
}

func TestOrNop(t *testing.T) {
	OrNop(nil).Info("ignored", nil)
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, false)
	if OrNop(l) != Logger(l) {
		t.Error("OrNop should return the given logger")
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	l := With(NewJSONLogger(&buf, false), map[string]any{"command": "guard", "scaffold": "a"})
	l.Info("checked", map[string]any{"scaffold": "b"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if entry["command"] != "guard" || entry["scaffold"] != "b" {
		t.Errorf("entry = %v", entry)
	}
	if With(nil, nil) == nil {
		t.Error("With(nil, nil) must return a usable logger")
	}
}
