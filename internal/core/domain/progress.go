package domain

// Stage identifies a step of the import state machine. Every snapshot moves
// pending -> downloading -> decrypting -> processing -> saving -> completed,
// with error reachable from any non-terminal stage.
type Stage string

const (
	StagePending     Stage = "pending"
	StageDownloading Stage = "downloading"
	StageDecrypting  Stage = "decrypting"
	StageProcessing  Stage = "processing"
	StageSaving      Stage = "saving"
	StageCompleted   Stage = "completed"
	StageError       Stage = "error"
)

// ProgressEvent is delivered to the caller at each stage transition and at
// bounded intervals during saving.
type ProgressEvent struct {
	SnapshotID string `json:"snapshot_id"`
	Stage      Stage  `json:"stage"`

	// Progress is the overall completion estimate, 0..100.
	Progress int `json:"progress"`

	// Message is a human-readable status line.
	Message string `json:"message,omitempty"`

	ProcessedMessages int `json:"processed_messages,omitempty"`
	TotalMessages     int `json:"total_messages,omitempty"`

	// Error carries the failure text for StageError events.
	Error string `json:"error,omitempty"`

	// Timing fields, populated on completion.
	DecryptDurationMs int64 `json:"decrypt_duration_ms,omitempty"`
	InsertDurationMs  int64 `json:"insert_duration_ms,omitempty"`
	TotalDurationMs   int64 `json:"total_duration_ms,omitempty"`

	InsertedMessages         int     `json:"inserted_messages,omitempty"`
	ThroughputMessagesPerSec float64 `json:"throughput_messages_per_sec,omitempty"`
}

// ProgressFunc receives progress events. Implementations must be fast; the
// pipeline invokes it from the coordinating goroutine only.
type ProgressFunc func(ProgressEvent)

// NopProgress discards all events.
func NopProgress(ProgressEvent) {}
