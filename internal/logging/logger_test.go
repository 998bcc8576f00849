package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"info", "info", slog.LevelInfo},
		{"debug", "debug", slog.LevelDebug},
		{"trace", "trace", LevelTrace},
		{"error", "error", slog.LevelError},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"mixed case Trace", "Trace", LevelTrace},
		{"unknown defaults to info", "unknown", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		logAtDebug bool
		logAtInfo  bool
	}{
		{"info filters debug", "info", false, true},
		{"debug passes debug", "debug", true, true},
		{"trace passes debug", "trace", true, true},
		{"error filters info", "error", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, "text", &buf)

			logger.Debug("debug message")
			hasDebug := strings.Contains(buf.String(), "debug message")
			if hasDebug != tt.logAtDebug {
				t.Errorf("debug message visible = %v, want %v (buf: %q)", hasDebug, tt.logAtDebug, buf.String())
			}

			buf.Reset()
			logger.Info("info message")
			hasInfo := strings.Contains(buf.String(), "info message")
			if hasInfo != tt.logAtInfo {
				t.Errorf("info message visible = %v, want %v (buf: %q)", hasInfo, tt.logAtInfo, buf.String())
			}
		})
	}
}

func TestNewLogger_TraceLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", "text", &buf)
	logger.Log(t.Context(), LevelTrace, "step detail")

	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("trace output = %q, want level=TRACE", buf.String())
	}
}

func TestNewLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("info", "json", &buf)
	logger.Info("hello", "scenario", "base")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "hello" || entry["scenario"] != "base" {
		t.Errorf("entry = %v, want msg=hello scenario=base", entry)
	}
}

func TestSlogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlogSink(NewLogger("info", "text", &buf))

	sink.Log(LevelInfo, "Attempting to load scenarios")
	sink.Log(LevelError, "No simulation model containing equation x")

	out := buf.String()
	if !strings.Contains(out, "level=INFO") || !strings.Contains(out, "Attempting to load scenarios") {
		t.Errorf("missing info line in %q", out)
	}
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "equation x") {
		t.Errorf("missing error line in %q", out)
	}
}

func TestCollector(t *testing.T) {
	var forwarded []string
	next := SinkFunc(func(level Level, msg string) {
		forwarded = append(forwarded, string(level)+":"+msg)
	})
	c := NewCollector(next)

	c.Log(LevelInfo, "one")
	c.Log(LevelError, "two")
	c.Log(LevelError, "three")

	if diff := cmp.Diff([]string{"two", "three"}, c.Messages(LevelError)); diff != "" {
		t.Errorf("Messages(ERROR) mismatch (-want +got):\n%s", diff)
	}
	if !c.Contains(LevelInfo, "on") {
		t.Error("Contains(INFO, on) = false, want true")
	}
	if c.Contains(LevelInfo, "two") {
		t.Error("Contains(INFO, two) = true, want false")
	}
	if diff := cmp.Diff([]string{"INFO:one", "ERROR:two", "ERROR:three"}, forwarded); diff != "" {
		t.Errorf("forwarded mismatch (-want +got):\n%s", diff)
	}

	c.Reset()
	if len(c.Entries()) != 0 {
		t.Errorf("Entries() after Reset = %v, want empty", c.Entries())
	}
}

func TestOpenJournal_InfoLevel(t *testing.T) {
	dir := t.TempDir()
	j := OpenJournal(dir, "info")

	if j != nil {
		t.Error("expected nil Journal at info level")
	}

	// Nil journal should still be safe to use
	j.Record(RunEvent{Mode: "run"})
	j.Close()

	if _, err := os.Stat(filepath.Join(dir, JournalFile)); err == nil {
		t.Errorf("%s should not exist at info level", JournalFile)
	}
}

func TestJournal_Record(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", ".sdrun")
	j := OpenJournal(dir, "debug")
	if j == nil {
		t.Fatal("expected non-nil Journal at debug level")
	}

	step := 2.0
	j.Record(RunEvent{Mode: "run", Manager: "m", Scenario: "base", Columns: []string{"population"}})
	j.Record(RunEvent{Mode: "step", Manager: "m", Scenario: "base", Step: &step})
	j.Close()
	j.Record(RunEvent{Mode: "after_close"})

	path := filepath.Join(dir, JournalFile)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", JournalFile, err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), string(data))
	}

	var first, second RunEvent
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if first.Mode != "run" || first.Time == "" {
		t.Errorf("first = %+v, want mode run with time", first)
	}
	if second.Step == nil || *second.Step != 2 {
		t.Errorf("second.Step = %v, want 2", second.Step)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}
