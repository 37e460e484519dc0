package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: "json", Output: &buf})

	l.Info("snapshot imported", "snapshot_id", "snap-1", "records", 42)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if entry["msg"] != "snapshot imported" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["snapshot_id"] != "snap-1" {
		t.Errorf("snapshot_id = %v", entry["snapshot_id"])
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: "text", Output: &buf})

	l.Info("store opened", "dir", "/tmp/db")

	out := buf.String()
	if !strings.Contains(out, "store opened") || !strings.Contains(out, "/tmp/db") {
		t.Errorf("unexpected text output: %s", out)
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Format: "json", Output: &buf})

	l.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info logged below level: %s", buf.String())
	}

	l.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Error("warn entry missing")
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: "json", Output: &buf})

	SetLevel("debug")
	defer SetLevel("info")

	if GetLevel() != "debug" {
		t.Fatalf("GetLevel() = %q, want debug", GetLevel())
	}

	l.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Error("debug entry missing after SetLevel(debug)")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "DEBUG"},
		{"INFO", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"bogus", "INFO"},
		{"", "INFO"},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in).String(); got != tt.want {
			t.Errorf("parseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestNew_NilOutputDefaultsToStderr(t *testing.T) {
	// Must not panic.
	l := New(Config{Level: "error"})
	l.Debug("discarded")
}
