package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/yndnr/msgvault-go/internal/core/domain"
)

// ProgressBar renders import progress events as a single updating line.
// Terminal stages (completed, error) finish the line; a new snapshot id
// starts a fresh one.
type ProgressBar struct {
	w       io.Writer
	width   int
	mu      sync.Mutex
	current string
	open    bool
}

// NewProgressBar creates a progress bar writing to w.
func NewProgressBar(w io.Writer) *ProgressBar {
	return &ProgressBar{w: w, width: 30}
}

// Handle renders one progress event. It satisfies domain.ProgressFunc.
func (p *ProgressBar) Handle(ev domain.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.open && ev.SnapshotID != p.current {
		fmt.Fprintln(p.w)
		p.open = false
	}
	p.current = ev.SnapshotID

	switch ev.Stage {
	case domain.StageError:
		p.finishLine("%s  failed: %s", ev.SnapshotID, ev.Error)
	case domain.StageCompleted:
		if ev.TotalDurationMs > 0 {
			p.finishLine("%s  [%s] 100%%  %d records in %.1fs",
				ev.SnapshotID, p.bar(100), ev.ProcessedMessages,
				float64(ev.TotalDurationMs)/1000)
		} else {
			p.finishLine("%s  [%s] 100%%  %s",
				ev.SnapshotID, p.bar(100), ev.Message)
		}
	default:
		p.open = true
		line := fmt.Sprintf("\r%s  [%s] %3d%%  %s",
			ev.SnapshotID, p.bar(ev.Progress), ev.Progress, ev.Stage)
		if ev.TotalMessages > 0 {
			line += fmt.Sprintf(" %d/%d", ev.ProcessedMessages, ev.TotalMessages)
		}
		fmt.Fprint(p.w, line)
	}
}

// Finish terminates a dangling progress line, if any.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		fmt.Fprintln(p.w)
		p.open = false
	}
}

func (p *ProgressBar) finishLine(format string, args ...any) {
	fmt.Fprintf(p.w, "\r"+format+"\n", args...)
	p.open = false
}

func (p *ProgressBar) bar(percent int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := p.width * percent / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", p.width-filled)
}

// EventLogger emits progress events as JSON lines, one object per event.
// It is the machine-readable counterpart of ProgressBar.
type EventLogger struct {
	w  io.Writer
	mu sync.Mutex
}

// NewEventLogger creates a JSON-lines progress sink.
func NewEventLogger(w io.Writer) *EventLogger {
	return &EventLogger{w: w}
}

// Handle writes one event. It satisfies domain.ProgressFunc.
func (e *EventLogger) Handle(ev domain.ProgressEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(e.w, "%s\n", data)
}
