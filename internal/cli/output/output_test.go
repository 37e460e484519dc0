package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/yndnr/msgvault-go/internal/core/domain"
)

func TestTableRender(t *testing.T) {
	tbl := NewTable("ID", "STATUS", "MESSAGES")
	tbl.AddRow("snap-1", "completed", "37000/37000")
	tbl.AddRow("snap-2", "error", "400/1000")

	var buf bytes.Buffer
	if err := tbl.Render(&buf); err != nil {
		t.Fatalf("Render: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	if !strings.HasPrefix(lines[0], "ID") {
		t.Errorf("header line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "snap-1") || !strings.Contains(lines[1], "completed") {
		t.Errorf("row = %q", lines[1])
	}
	// Columns align: STATUS starts at the same offset in every line.
	idx := strings.Index(lines[0], "STATUS")
	if !strings.HasPrefix(lines[1][idx:], "completed") {
		t.Errorf("columns not aligned:\n%s", buf.String())
	}
}

func TestFormatMillis(t *testing.T) {
	if got := FormatMillis(0); got != "-" {
		t.Errorf("FormatMillis(0) = %q", got)
	}
	if got := FormatMillis(1700000000000); got != "2023-11-14 22:13" {
		t.Errorf("FormatMillis = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"a longer message body", 10, "a longe..."},
		{"abc", 2, "ab"},
		{"whatever", 0, "whatever"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressBar(&buf)

	p.Handle(domain.ProgressEvent{SnapshotID: "snap-1", Stage: domain.StageDecrypting, Progress: 25})
	p.Handle(domain.ProgressEvent{
		SnapshotID: "snap-1", Stage: domain.StageSaving, Progress: 70,
		ProcessedMessages: 500, TotalMessages: 1000,
	})
	p.Handle(domain.ProgressEvent{
		SnapshotID: "snap-1", Stage: domain.StageCompleted, Progress: 100,
		ProcessedMessages: 1000, TotalMessages: 1000, TotalDurationMs: 1500,
	})
	p.Finish()

	out := buf.String()
	if !strings.Contains(out, "decrypting") {
		t.Errorf("missing decrypting stage: %q", out)
	}
	if !strings.Contains(out, "500/1000") {
		t.Errorf("missing counts: %q", out)
	}
	if !strings.Contains(out, "1000 records in 1.5s") {
		t.Errorf("missing completion summary: %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("completed line not terminated")
	}
}

func TestProgressBar_Error(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressBar(&buf)

	p.Handle(domain.ProgressEvent{SnapshotID: "snap-1", Stage: domain.StageError, Error: "key unwrap failed"})

	if !strings.Contains(buf.String(), "failed: key unwrap failed") {
		t.Errorf("error line = %q", buf.String())
	}
}

func TestProgressBar_NewSnapshotBreaksLine(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressBar(&buf)

	p.Handle(domain.ProgressEvent{SnapshotID: "snap-1", Stage: domain.StageProcessing, Progress: 40})
	p.Handle(domain.ProgressEvent{SnapshotID: "snap-2", Stage: domain.StagePending})
	p.Finish()

	if strings.Count(buf.String(), "\n") != 2 {
		t.Errorf("expected line break between snapshots:\n%q", buf.String())
	}
}

func TestEventLogger(t *testing.T) {
	var buf bytes.Buffer
	e := NewEventLogger(&buf)

	e.Handle(domain.ProgressEvent{SnapshotID: "snap-1", Stage: domain.StageSaving, Progress: 55})

	var ev domain.ProgressEvent
	if err := json.Unmarshal(buf.Bytes(), &ev); err != nil {
		t.Fatalf("not a JSON line: %v", err)
	}
	if ev.SnapshotID != "snap-1" || ev.Stage != domain.StageSaving || ev.Progress != 55 {
		t.Fatalf("event = %+v", ev)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, map[string]int{"records": 3}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if !strings.Contains(buf.String(), "\"records\": 3") {
		t.Errorf("output = %q", buf.String())
	}
}
