// Package bulk orchestrates multi-snapshot imports: concurrent producers
// fetch and decrypt snapshots ahead of time under an in-flight size budget,
// staging the results, while a single consumer drains staged snapshots into
// the persistence pipeline in completion order.
package bulk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/yndnr/msgvault-go/internal/core/domain"
	"github.com/yndnr/msgvault-go/internal/decrypt"
	"github.com/yndnr/msgvault-go/internal/pipeline"
	"github.com/yndnr/msgvault-go/internal/source"
	"github.com/yndnr/msgvault-go/internal/staging"
	"github.com/yndnr/msgvault-go/pkg/cmap"
)

// DefaultBudget bounds the estimated decrypted bytes staged ahead of the
// consumer.
const DefaultBudget = 25 << 20

// defaultEstimate stands in when a descriptor does not declare a size.
const defaultEstimate = 4 << 20

// Store is the slice of the record store the orchestrator needs.
type Store interface {
	pipeline.Store
	GetMetadata(ctx context.Context, snapshotID string) (*domain.SnapshotMetadata, error)
}

// Result is the terminal outcome for one snapshot of a bulk run.
type Result struct {
	SnapshotID string
	Meta       *domain.SnapshotMetadata
	Err        error
}

// Orchestrator coordinates staged bulk imports.
type Orchestrator struct {
	store    Store
	staging  *staging.Store
	importer *pipeline.Importer
	resolver source.Resolver
	fetcher  *source.Fetcher
	budget   int64
	logger   *slog.Logger
}

// New creates an orchestrator. budget <= 0 selects DefaultBudget.
func New(st Store, stg *staging.Store, imp *pipeline.Importer, resolver source.Resolver, fetcher *source.Fetcher, budget int64, logger *slog.Logger) *Orchestrator {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if logger == nil {
		logger = slog.Default()
	}
	if fetcher == nil {
		fetcher = source.NewFetcher(nil)
	}
	return &Orchestrator{
		store:    st,
		staging:  stg,
		importer: imp,
		resolver: resolver,
		fetcher:  fetcher,
		budget:   budget,
		logger:   logger,
	}
}

type stagedMsg struct {
	snapshotID string
	weight     int64
}

// Run imports the given snapshots. Results come back in input order; the
// returned error is non-nil when any snapshot failed, after every snapshot
// had its outcome recorded in durable metadata. The staging area is cleared
// unconditionally on return.
func (o *Orchestrator) Run(ctx context.Context, snapshotIDs []string, progress domain.ProgressFunc) ([]Result, error) {
	defer o.staging.Clear()

	if progress == nil {
		progress = domain.NopProgress
	}
	// Producers report concurrently; serialize delivery to the caller.
	progress = serializeProgress(progress)

	sem := semaphore.NewWeighted(o.budget)
	results := cmap.New[Result]()
	staged := make(chan stagedMsg, len(snapshotIDs))

	var producers sync.WaitGroup
	for _, id := range snapshotIDs {
		producers.Add(1)
		go func(snapshotID string) {
			defer producers.Done()
			o.produce(ctx, snapshotID, sem, staged, results, progress)
		}(id)
	}
	go func() {
		producers.Wait()
		close(staged)
	}()

	// Single consumer, completion order.
	for msg := range staged {
		o.consume(ctx, msg, results, progress)
		sem.Release(msg.weight)
	}

	out := make([]Result, 0, len(snapshotIDs))
	var failed []string
	for _, id := range snapshotIDs {
		res, ok := results.Get(id)
		if !ok {
			res = Result{SnapshotID: id, Err: domain.ErrOrchestration.
				WithDetails(fmt.Sprintf("snapshot %s produced no outcome", id))}
		}
		if res.Err != nil {
			failed = append(failed, id)
		}
		out = append(out, res)
	}

	if len(failed) > 0 {
		return out, domain.ErrOrchestration.WithDetails(fmt.Sprintf(
			"%d of %d snapshots failed: %s",
			len(failed), len(snapshotIDs), strings.Join(failed, ", ")))
	}
	return out, nil
}

// produce fetches, decrypts, and stages one snapshot. Budget admission uses
// the descriptor's estimated decrypted size, capped at the whole budget so a
// single oversized snapshot still makes forward progress.
func (o *Orchestrator) produce(ctx context.Context, snapshotID string, sem *semaphore.Weighted, staged chan<- stagedMsg, results *cmap.Map[Result], progress domain.ProgressFunc) {
	// Completed snapshots are skipped before any fetch or decryption.
	if meta, err := o.store.GetMetadata(ctx, snapshotID); err == nil && meta.Status == domain.StatusCompleted {
		o.logger.Info("skipping completed snapshot", "snapshot_id", snapshotID)
		progress(domain.ProgressEvent{
			SnapshotID:        snapshotID,
			Stage:             domain.StageCompleted,
			Progress:          100,
			Message:           "already imported",
			ProcessedMessages: meta.ProcessedMessages,
			TotalMessages:     meta.TotalMessages,
		})
		results.Set(snapshotID, Result{SnapshotID: snapshotID, Meta: meta})
		return
	}

	progress(domain.ProgressEvent{
		SnapshotID: snapshotID,
		Stage:      domain.StagePending,
		Message:    "queued",
	})

	desc, err := o.resolver.Resolve(ctx, snapshotID)
	if err != nil {
		o.recordFailure(ctx, snapshotID, results, progress, err)
		return
	}

	weight := desc.ApproxSizeBytes
	if weight <= 0 {
		weight = defaultEstimate
	}
	if weight > o.budget {
		weight = o.budget
	}
	if err := sem.Acquire(ctx, weight); err != nil {
		o.recordFailure(ctx, snapshotID, results, progress, domain.ErrOrchestration.
			WithDetails("bulk run cancelled").WithCause(err))
		return
	}

	ok := false
	defer func() {
		if !ok {
			sem.Release(weight)
		}
	}()

	progress(domain.ProgressEvent{
		SnapshotID: snapshotID,
		Stage:      domain.StageDownloading,
		Progress:   10,
		Message:    "fetching snapshot",
	})
	data, err := o.fetcher.Fetch(ctx, desc.Location)
	if err != nil {
		o.recordFailure(ctx, snapshotID, results, progress, err)
		return
	}

	key, err := desc.Key()
	if err != nil {
		o.recordFailure(ctx, snapshotID, results, progress, err)
		return
	}

	progress(domain.ProgressEvent{
		SnapshotID: snapshotID,
		Stage:      domain.StageDecrypting,
		Progress:   25,
		Message:    "decrypting snapshot",
	})
	decryptStart := time.Now()
	records, err := decrypt.Records(data, key)
	if err != nil {
		o.recordFailure(ctx, snapshotID, results, progress, err)
		return
	}

	if err := o.seedMetadata(ctx, snapshotID, desc); err != nil {
		o.recordFailure(ctx, snapshotID, results, progress, err)
		return
	}

	err = o.staging.Put(&staging.Staged{
		SnapshotID:      snapshotID,
		Records:         records,
		DecryptDuration: time.Since(decryptStart),
		ApproxSize:      weight,
	})
	if err != nil {
		o.recordFailure(ctx, snapshotID, results, progress, domain.ErrOrchestration.WithCause(err))
		return
	}

	ok = true
	staged <- stagedMsg{snapshotID: snapshotID, weight: weight}
}

// consume persists one staged snapshot, then deletes the staged copy.
func (o *Orchestrator) consume(ctx context.Context, msg stagedMsg, results *cmap.Map[Result], progress domain.ProgressFunc) {
	defer o.staging.Delete(msg.snapshotID)

	st, err := o.staging.Load(msg.snapshotID)
	if err != nil {
		o.recordFailure(ctx, msg.snapshotID, results, progress, err)
		return
	}

	meta, err := o.store.EnsureMetadata(ctx, msg.snapshotID)
	if err != nil {
		o.recordFailure(ctx, msg.snapshotID, results, progress, err)
		return
	}

	meta, err = o.importer.Persist(ctx, meta, st.Records, st.DecryptDuration, progress)
	// Persist already recorded any failure in durable metadata.
	results.Set(msg.snapshotID, Result{SnapshotID: msg.snapshotID, Meta: meta, Err: err})
}

// seedMetadata copies the descriptor's catalog fields into the snapshot's
// metadata row before persistence starts.
func (o *Orchestrator) seedMetadata(ctx context.Context, snapshotID string, desc *source.Snapshot) error {
	meta, err := o.store.EnsureMetadata(ctx, snapshotID)
	if err != nil {
		return err
	}
	meta.ProjectID = desc.ProjectID
	meta.QueueID = desc.QueueID
	meta.DeclaredMessages = desc.DeclaredMessages
	return o.store.PutMetadata(ctx, meta)
}

// recordFailure writes status=error into durable metadata and reports the
// outcome, matching the single-snapshot failure path.
func (o *Orchestrator) recordFailure(ctx context.Context, snapshotID string, results *cmap.Map[Result], progress domain.ProgressFunc, cause error) {
	o.logger.Error("bulk snapshot failed", "snapshot_id", snapshotID, "error", cause)

	meta, err := o.store.EnsureMetadata(ctx, snapshotID)
	if err == nil {
		meta.MarkError(cause.Error())
		if perr := o.store.PutMetadata(ctx, meta); perr != nil {
			o.logger.Error("failed to persist error status",
				"snapshot_id", snapshotID, "error", perr)
		}
	}

	progress(domain.ProgressEvent{
		SnapshotID: snapshotID,
		Stage:      domain.StageError,
		Message:    "import failed",
		Error:      cause.Error(),
	})
	results.Set(snapshotID, Result{SnapshotID: snapshotID, Meta: meta, Err: cause})
}

// serializeProgress wraps a callback so concurrent producers never invoke it
// concurrently.
func serializeProgress(fn domain.ProgressFunc) domain.ProgressFunc {
	var mu sync.Mutex
	return func(ev domain.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		fn(ev)
	}
}
