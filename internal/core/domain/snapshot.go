package domain

import (
	"fmt"
	"time"
)

// Status is the durable lifecycle state of a snapshot.
type Status string

const (
	// StatusProcessing marks a snapshot whose import has started but not
	// finished. Combined with ProcessedMessages > 0 it signals a resumable
	// partial run.
	StatusProcessing Status = "processing"

	// StatusCompleted marks a fully persisted snapshot. Terminal.
	StatusCompleted Status = "completed"

	// StatusError marks a snapshot whose import failed. Terminal.
	StatusError Status = "error"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// SnapshotMetadata is the durable per-snapshot record. It is created on first
// touch of a snapshot id, mutated by every pipeline stage, and deleted only by
// explicit eviction.
type SnapshotMetadata struct {
	// ID is the snapshot identifier.
	ID string `json:"id"`

	// ProjectID is an optional upstream project identifier.
	ProjectID string `json:"project_id,omitempty"`

	// QueueID is an optional upstream queue identifier.
	QueueID string `json:"queue_id,omitempty"`

	// DeclaredMessages is the message count the upstream catalog declared.
	DeclaredMessages int `json:"declared_messages"`

	// TotalMessages is the message count found after decryption.
	TotalMessages int `json:"total_messages"`

	// ProcessedMessages counts records confirmed written to the store.
	// Invariant: ProcessedMessages <= TotalMessages.
	ProcessedMessages int `json:"processed_messages"`

	// FirstMessageAt and LastMessageAt bound the record timestamps
	// (Unix milliseconds, zero when unknown).
	FirstMessageAt int64 `json:"first_message_at,omitempty"`
	LastMessageAt  int64 `json:"last_message_at,omitempty"`

	// CreatedAt is the metadata creation timestamp (Unix milliseconds).
	CreatedAt int64 `json:"created_at"`

	// Status is the last reached lifecycle state.
	Status Status `json:"status"`

	// Error holds the failure message when Status is StatusError.
	Error string `json:"error,omitempty"`
}

// NewSnapshotMetadata creates metadata for a first-touched snapshot id.
func NewSnapshotMetadata(id string) *SnapshotMetadata {
	return &SnapshotMetadata{
		ID:        id,
		CreatedAt: time.Now().UnixMilli(),
		Status:    StatusProcessing,
	}
}

// Transition moves the snapshot to the next status, enforcing that terminal
// states are never left.
func (m *SnapshotMetadata) Transition(next Status) error {
	if !next.Valid() {
		return fmt.Errorf("unknown status %q", next)
	}
	if m.Status.Terminal() && next != m.Status {
		return fmt.Errorf("illegal status transition %s -> %s for snapshot %s", m.Status, next, m.ID)
	}
	m.Status = next
	return nil
}

// MarkError records a terminal failure with the captured message.
func (m *SnapshotMetadata) MarkError(msg string) {
	m.Status = StatusError
	m.Error = msg
}

// MarkCompleted records successful completion. ProcessedMessages is set to
// TotalMessages unconditionally.
func (m *SnapshotMetadata) MarkCompleted() {
	m.Status = StatusCompleted
	m.ProcessedMessages = m.TotalMessages
	m.Error = ""
}

// Resumable reports whether a prior partial run can be resumed.
func (m *SnapshotMetadata) Resumable() bool {
	return m.Status == StatusProcessing && m.ProcessedMessages > 0
}

// ResumePoint returns the record index persistence should resume from,
// clamped to total.
func (m *SnapshotMetadata) ResumePoint(total int) int {
	if m.ProcessedMessages > total {
		return total
	}
	if m.ProcessedMessages < 0 {
		return 0
	}
	return m.ProcessedMessages
}
