package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/yndnr/msgvault-go/internal/core/domain"
)

// RecordWriter is the slice of the record store the pool needs.
type RecordWriter interface {
	PutBatch(ctx context.Context, snapshotID string, records []*domain.MessageRecord) (int, error)
}

// ChunkProgressFunc receives intra-chunk progress: the count of records
// written within the chunk so far. It fires at fixed record-count intervals
// and once more with the final count when the chunk finishes. Invocations are
// serialized on a single goroutine.
type ChunkProgressFunc func(chunk Chunk, processed int)

// ChunkFailure describes one chunk that exhausted its retries or hit a
// non-retryable error.
type ChunkFailure struct {
	Chunk Chunk
	Saved int
	Err   error
}

// Summary is the outcome of a drained pool.
type Summary struct {
	// Saved counts records confirmed written across all successful chunks.
	Saved int

	// Failures lists failed chunks in ordinal order. Sibling chunks are
	// unaffected by a failure; their writes are kept.
	Failures []ChunkFailure
}

// Failed reports whether any chunk failed.
func (s Summary) Failed() bool { return len(s.Failures) > 0 }

// Unwritten returns the count of records not confirmed written.
func (s Summary) Unwritten() int {
	n := 0
	for _, f := range s.Failures {
		n += f.Chunk.Len() - f.Saved
	}
	return n
}

type job struct {
	chunk   Chunk
	records []*domain.MessageRecord
}

type result struct {
	chunk Chunk
	saved int
	err   error
}

type progressMsg struct {
	chunk     Chunk
	processed int
}

// PoolConfig configures a batch worker pool for one snapshot.
type PoolConfig struct {
	Writer     RecordWriter
	SnapshotID string
	Tuning     Tuning
	Logger     *slog.Logger
	OnProgress ChunkProgressFunc
	Metrics    *Metrics
}

// Pool is a fixed-size batch worker pool. Chunks are dispatched greedy FIFO
// to whichever worker frees up first; workers communicate with the
// coordinator only through channels. Completion is detected by accounting,
// never by polling: AwaitAll returns once every submitted chunk has produced
// a result.
type Pool struct {
	cfg PoolConfig

	jobs    chan job
	results chan result
	events  chan progressMsg

	workerWG   sync.WaitGroup
	resultDone chan struct{}
	eventsDone chan struct{}

	summary Summary
}

// NewPool starts the workers and returns a pool ready for Submit.
func NewPool(ctx context.Context, cfg PoolConfig) *Pool {
	cfg.Tuning = cfg.Tuning.withDefaults()
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	p := &Pool{
		cfg:        cfg,
		jobs:       make(chan job),
		results:    make(chan result),
		events:     make(chan progressMsg, 64),
		resultDone: make(chan struct{}),
		eventsDone: make(chan struct{}),
	}

	for i := 0; i < cfg.Tuning.Workers; i++ {
		p.workerWG.Add(1)
		go p.worker(ctx)
	}
	go p.collect()
	go p.forwardEvents()
	return p
}

// Submit queues one chunk. It blocks until a worker picks the chunk up or
// buffering admits it; call from the coordinating goroutine only.
func (p *Pool) Submit(records []*domain.MessageRecord, chunk Chunk) {
	p.jobs <- job{chunk: chunk, records: records}
}

// AwaitAll closes submission and blocks until every submitted chunk has
// completed or failed, then returns the drained summary.
func (p *Pool) AwaitAll() Summary {
	close(p.jobs)
	p.workerWG.Wait()
	close(p.results)
	close(p.events)
	<-p.resultDone
	<-p.eventsDone

	sort.Slice(p.summary.Failures, func(i, j int) bool {
		return p.summary.Failures[i].Chunk.Index < p.summary.Failures[j].Chunk.Index
	})
	return p.summary
}

func (p *Pool) worker(ctx context.Context) {
	defer p.workerWG.Done()
	for j := range p.jobs {
		p.results <- p.runChunk(ctx, j)
	}
}

// runChunk writes one chunk, retrying the whole chunk on storage contention
// with linearly increasing backoff plus jitter. Rewrites are idempotent:
// records are keyed by id, so a retry overwrites its own partial progress.
func (p *Pool) runChunk(ctx context.Context, j job) result {
	t := p.cfg.Tuning

	var saved int
	var err error
	for attempt := 1; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return result{chunk: j.chunk, saved: saved, err: cerr}
		}

		saved, err = p.writeChunk(ctx, j)
		if err == nil {
			return result{chunk: j.chunk, saved: saved}
		}
		if !errors.Is(err, domain.ErrStorageContention) || attempt >= t.RetryAttempts {
			return result{chunk: j.chunk, saved: saved, err: err}
		}

		if p.cfg.Metrics != nil {
			p.cfg.Metrics.ChunkRetries.Inc()
		}
		backoff := time.Duration(attempt) * t.RetryBackoff
		if t.RetryJitter > 0 {
			backoff += rand.N(t.RetryJitter)
		}
		p.cfg.Logger.Warn("storage contention, retrying chunk",
			"snapshot_id", p.cfg.SnapshotID,
			"chunk", j.chunk.Index,
			"attempt", attempt,
			"backoff", backoff)
		if !sleepCtx(ctx, backoff) {
			return result{chunk: j.chunk, saved: saved, err: ctx.Err()}
		}
	}
}

// writeChunk persists the chunk in progress-interval segments, emitting a
// progress message after each full segment and once more at the end.
func (p *Pool) writeChunk(ctx context.Context, j job) (int, error) {
	interval := p.cfg.Tuning.ProgressInterval

	saved := 0
	for off := 0; off < len(j.records); off += interval {
		end := off + interval
		if end > len(j.records) {
			end = len(j.records)
		}
		n, err := p.cfg.Writer.PutBatch(ctx, p.cfg.SnapshotID, j.records[off:end])
		if err != nil {
			return saved, err
		}
		saved += n
		if end < len(j.records) {
			p.emit(j.chunk, end)
		}
	}
	p.emit(j.chunk, len(j.records))
	return saved, nil
}

func (p *Pool) emit(chunk Chunk, processed int) {
	if p.cfg.OnProgress == nil {
		return
	}
	p.events <- progressMsg{chunk: chunk, processed: processed}
}

func (p *Pool) collect() {
	defer close(p.resultDone)
	for res := range p.results {
		if res.err != nil {
			p.cfg.Logger.Error("chunk failed",
				"snapshot_id", p.cfg.SnapshotID,
				"chunk", res.chunk.Index,
				"records", res.chunk.Len(),
				"error", res.err)
			p.summary.Failures = append(p.summary.Failures, ChunkFailure{
				Chunk: res.chunk,
				Saved: res.saved,
				Err:   res.err,
			})
			continue
		}
		p.summary.Saved += res.saved
	}
}

func (p *Pool) forwardEvents() {
	defer close(p.eventsDone)
	for msg := range p.events {
		p.cfg.OnProgress(msg.chunk, msg.processed)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
