package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/msgvault-go/internal/core/domain"
	"github.com/yndnr/msgvault-go/internal/decrypt"
)

// Store is the slice of the record store the importer needs.
type Store interface {
	RecordWriter
	EnsureMetadata(ctx context.Context, snapshotID string) (*domain.SnapshotMetadata, error)
	PutMetadata(ctx context.Context, meta *domain.SnapshotMetadata) error
}

// Overall progress mapping: decryption lands at 25, record extraction at 40,
// saving advances 40..99, completion is 100.
const (
	pctDecrypting = 25
	pctProcessing = 40
	pctSavingSpan = 59
)

// progressMinInterval throttles saving-stage events so a fast import does not
// flood the callback.
const progressMinInterval = 50 * time.Millisecond

// Importer drives one snapshot through the import state machine. Safe for
// sequential reuse across snapshots; do not share one Importer between
// concurrent runs of the same snapshot id.
type Importer struct {
	store   Store
	tuning  Tuning
	logger  *slog.Logger
	metrics *Metrics
	limiter *rate.Limiter
}

// NewImporter creates an importer over the given store.
func NewImporter(st Store, tuning Tuning, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		store:   st,
		tuning:  tuning.withDefaults(),
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(progressMinInterval), 1),
	}
}

// WithMetrics attaches pipeline metrics and returns the importer.
func (i *Importer) WithMetrics(m *Metrics) *Importer {
	i.metrics = m
	return i
}

// Import decrypts raw snapshot bytes and persists the records. A snapshot
// already at completed status is skipped without decryption or writes.
func (i *Importer) Import(ctx context.Context, snapshotID string, data, privateKeyPEM []byte, progress domain.ProgressFunc) (*domain.SnapshotMetadata, error) {
	if progress == nil {
		progress = domain.NopProgress
	}

	meta, err := i.store.EnsureMetadata(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if meta.Status == domain.StatusCompleted {
		i.reportAlreadyImported(meta, progress)
		return meta, nil
	}

	progress(domain.ProgressEvent{
		SnapshotID: snapshotID,
		Stage:      domain.StageDecrypting,
		Progress:   pctDecrypting,
		Message:    "decrypting snapshot",
	})

	decryptStart := time.Now()
	records, err := decrypt.Records(data, privateKeyPEM)
	if err != nil {
		return i.fail(ctx, meta, progress, err)
	}
	return i.Persist(ctx, meta, records, time.Since(decryptStart), progress)
}

// Persist runs the write half of the pipeline for already-decrypted records:
// resume computation, chunk partitioning, worker pool dispatch, and durable
// metadata updates. The bulk orchestrator calls this directly with staged
// records; decryptDur carries the decryption time measured by the caller.
func (i *Importer) Persist(ctx context.Context, meta *domain.SnapshotMetadata, records []*domain.MessageRecord, decryptDur time.Duration, progress domain.ProgressFunc) (*domain.SnapshotMetadata, error) {
	if progress == nil {
		progress = domain.NopProgress
	}
	if meta.Status == domain.StatusCompleted {
		i.reportAlreadyImported(meta, progress)
		return meta, nil
	}
	// An explicit re-run reopens a failed snapshot. The processed count is
	// kept so the resume point survives.
	if meta.Status == domain.StatusError {
		meta.Status = domain.StatusProcessing
		meta.Error = ""
	}

	started := time.Now()
	snapshotID := meta.ID
	total := len(records)

	meta.TotalMessages = total
	if first, last, ok := timestampBounds(records); ok {
		meta.FirstMessageAt = first
		meta.LastMessageAt = last
	}

	resume := meta.ResumePoint(total)
	if resume > 0 {
		i.logger.Info("resuming snapshot import",
			"snapshot_id", snapshotID,
			"resume_from", resume,
			"total", total)
	}

	progress(domain.ProgressEvent{
		SnapshotID:        snapshotID,
		Stage:             domain.StageProcessing,
		Progress:          pctProcessing,
		Message:           fmt.Sprintf("%d records decoded", total),
		ProcessedMessages: resume,
		TotalMessages:     total,
	})

	// Durable before any write: a crash mid-run leaves a resumable row.
	if err := i.store.PutMetadata(ctx, meta); err != nil {
		return i.fail(ctx, meta, progress, err)
	}

	pending := records[resume:]
	if len(pending) == 0 {
		meta.MarkCompleted()
		if err := i.store.PutMetadata(ctx, meta); err != nil {
			return i.fail(ctx, meta, progress, err)
		}
		i.reportCompleted(meta, progress, decryptDur, 0, time.Since(started)+decryptDur, 0)
		return meta, nil
	}

	chunks := Partition(len(pending), i.tuning.Workers)
	i.logger.Info("dispatching chunks",
		"snapshot_id", snapshotID,
		"pending", len(pending),
		"chunks", len(chunks),
		"workers", i.tuning.Workers)

	// Chunk completions interleave arbitrarily; aggregate progress is the
	// resume point plus the per-chunk processed counts. The callback runs on
	// the pool's event goroutine, so the plain map is safe.
	chunkProcessed := make(map[int]int, len(chunks))
	onChunkProgress := func(c Chunk, processed int) {
		chunkProcessed[c.Index] = processed
		if !i.limiter.Allow() {
			return
		}
		agg := resume
		for _, n := range chunkProcessed {
			agg += n
		}
		progress(domain.ProgressEvent{
			SnapshotID:        snapshotID,
			Stage:             domain.StageSaving,
			Progress:          pctProcessing + pctSavingSpan*agg/total,
			Message:           "saving records",
			ProcessedMessages: agg,
			TotalMessages:     total,
		})
	}

	insertStart := time.Now()
	pool := NewPool(ctx, PoolConfig{
		Writer:     i.store,
		SnapshotID: snapshotID,
		Tuning:     i.tuning,
		Logger:     i.logger,
		OnProgress: onChunkProgress,
		Metrics:    i.metrics,
	})
	for _, c := range chunks {
		pool.Submit(pending[c.Start:c.End], c)
	}
	summary := pool.AwaitAll()
	insertDur := time.Since(insertStart)

	// The processed count doubles as the next run's resume point, so it must
	// be the contiguous confirmed prefix. Chunks complete out of order; after
	// a failure, records saved beyond the first unconfirmed chunk are kept in
	// the store but not counted.
	confirmed := resume + summary.Saved
	if summary.Failed() {
		f := summary.Failures[0]
		confirmed = resume + f.Chunk.Start + f.Saved
	}
	meta.ProcessedMessages = confirmed

	if err := ctx.Err(); err != nil {
		return i.fail(ctx, meta, progress, domain.ErrOrchestration.
			WithDetails("import cancelled").WithCause(err))
	}
	if summary.Failed() {
		return i.fail(ctx, meta, progress, domain.ErrChunkFailed.
			WithDetails(failureMessage(summary)))
	}

	meta.MarkCompleted()
	if err := i.store.PutMetadata(ctx, meta); err != nil {
		return i.fail(ctx, meta, progress, err)
	}

	totalDur := decryptDur + time.Since(started)
	if i.metrics != nil {
		i.metrics.SnapshotsCompleted.Inc()
		i.metrics.RecordsPersisted.Add(float64(summary.Saved))
		i.metrics.ImportDuration.Observe(totalDur.Seconds())
	}
	i.logger.Info("snapshot import completed",
		"snapshot_id", snapshotID,
		"messages", total,
		"inserted", summary.Saved,
		"decrypt_ms", decryptDur.Milliseconds(),
		"insert_ms", insertDur.Milliseconds())

	i.reportCompleted(meta, progress, decryptDur, insertDur, totalDur, summary.Saved)
	return meta, nil
}

// fail records a terminal failure into durable metadata before surfacing it.
func (i *Importer) fail(ctx context.Context, meta *domain.SnapshotMetadata, progress domain.ProgressFunc, cause error) (*domain.SnapshotMetadata, error) {
	meta.MarkError(cause.Error())
	if err := i.store.PutMetadata(ctx, meta); err != nil {
		i.logger.Error("failed to persist error status",
			"snapshot_id", meta.ID,
			"error", err)
	}
	if i.metrics != nil {
		i.metrics.SnapshotsFailed.Inc()
	}
	i.logger.Error("snapshot import failed",
		"snapshot_id", meta.ID,
		"error", cause)

	progress(domain.ProgressEvent{
		SnapshotID:        meta.ID,
		Stage:             domain.StageError,
		Message:           "import failed",
		Error:             cause.Error(),
		ProcessedMessages: meta.ProcessedMessages,
		TotalMessages:     meta.TotalMessages,
	})
	return meta, cause
}

func (i *Importer) reportAlreadyImported(meta *domain.SnapshotMetadata, progress domain.ProgressFunc) {
	i.logger.Info("snapshot already imported", "snapshot_id", meta.ID)
	progress(domain.ProgressEvent{
		SnapshotID:        meta.ID,
		Stage:             domain.StageCompleted,
		Progress:          100,
		Message:           "already imported",
		ProcessedMessages: meta.ProcessedMessages,
		TotalMessages:     meta.TotalMessages,
	})
}

func (i *Importer) reportCompleted(meta *domain.SnapshotMetadata, progress domain.ProgressFunc, decryptDur, insertDur, totalDur time.Duration, inserted int) {
	throughput := 0.0
	if secs := insertDur.Seconds(); secs > 0 {
		throughput = float64(inserted) / secs
	}
	progress(domain.ProgressEvent{
		SnapshotID:               meta.ID,
		Stage:                    domain.StageCompleted,
		Progress:                 100,
		Message:                  "import completed",
		ProcessedMessages:        meta.ProcessedMessages,
		TotalMessages:            meta.TotalMessages,
		DecryptDurationMs:        decryptDur.Milliseconds(),
		InsertDurationMs:         insertDur.Milliseconds(),
		TotalDurationMs:          totalDur.Milliseconds(),
		InsertedMessages:         inserted,
		ThroughputMessagesPerSec: throughput,
	})
}

// failureMessage lists failed chunk ordinals with their unconfirmed record
// counts, for the durable metadata error text.
func failureMessage(s Summary) string {
	parts := make([]string, len(s.Failures))
	for idx, f := range s.Failures {
		parts[idx] = fmt.Sprintf("chunk %d: %d records unconfirmed (%v)",
			f.Chunk.Index, f.Chunk.Len()-f.Saved, f.Err)
	}
	return "batch write failed: " + strings.Join(parts, "; ")
}

func timestampBounds(records []*domain.MessageRecord) (first, last int64, ok bool) {
	for _, r := range records {
		if r.Timestamp == 0 {
			continue
		}
		if !ok {
			first, last = r.Timestamp, r.Timestamp
			ok = true
			continue
		}
		if r.Timestamp < first {
			first = r.Timestamp
		}
		if r.Timestamp > last {
			last = r.Timestamp
		}
	}
	return first, last, ok
}
