package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNew_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "debug", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Info("record inserted",
		"table", "punishments",
		"count", 3,
		"ok", true,
		"elapsed", 1500*time.Millisecond,
		"error", errors.New("boom"),
	)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(lines))
	}
	rec := lines[0]
	if rec["message"] != "record inserted" || rec["level"] != "info" {
		t.Errorf("record = %v", rec)
	}
	if rec["table"] != "punishments" || rec["count"] != float64(3) || rec["ok"] != true {
		t.Errorf("attrs = %v", rec)
	}
	if rec["error"] != "boom" {
		t.Errorf("error = %v, want boom", rec["error"])
	}
	if rec["session"] != l.SessionID || l.SessionID == "" {
		t.Errorf("session = %v, want %s", rec["session"], l.SessionID)
	}
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "warn", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	l.Error("shown")

	if n := len(decodeLines(t, &buf)); n != 2 {
		t.Errorf("lines = %d, want 2", n)
	}
	if l.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info enabled at warn level")
	}
}

func TestNew_GroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.With("component", "ingest").WithGroup("tail").Info("opened", "offset", 42)

	rec := decodeLines(t, &buf)[0]
	if rec["component"] != "ingest" {
		t.Errorf("component = %v", rec["component"])
	}
	if rec["tail.offset"] != float64(42) {
		t.Errorf("tail.offset = %v", rec["tail.offset"])
	}
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "mclog.log")
	var buf bytes.Buffer
	l, err := New(Config{Format: "console", File: path, Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("--- starting new session ---")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "starting new session") {
		t.Errorf("file = %q", data)
	}
	if !strings.Contains(buf.String(), "starting new session") {
		t.Errorf("console = %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	for _, lvl := range []string{"", "trace", "DEBUG", "info", "warning", "error"} {
		if _, err := ParseLevel(lvl); err != nil {
			t.Errorf("ParseLevel(%q): %v", lvl, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
