package pipeline

import (
	"runtime"
	"time"
)

// Worker pool bounds. Explicit requests are clamped to [MinWorkers,
// MaxWorkers]; auto mode derives the count from hardware parallelism with a
// tighter ceiling.
const (
	DefaultWorkers = 4
	MinWorkers     = 2
	MaxWorkers     = 12
	AutoMaxWorkers = 8

	DefaultRetryAttempts    = 3
	DefaultRetryBackoff     = 150 * time.Millisecond
	DefaultRetryJitter      = 100 * time.Millisecond
	DefaultProgressInterval = 250
)

// Tuning is the immutable pipeline tuning value threaded into each run.
// Concurrent imports with different tunings never observe each other.
type Tuning struct {
	// Workers is the worker pool size.
	Workers int `koanf:"workers"`

	// RetryAttempts bounds write attempts per chunk on storage contention.
	RetryAttempts int `koanf:"retry_attempts"`

	// RetryBackoff is the base backoff, scaled linearly by attempt number.
	RetryBackoff time.Duration `koanf:"retry_backoff"`

	// RetryJitter is the maximum random addition to each backoff.
	RetryJitter time.Duration `koanf:"retry_jitter"`

	// ProgressInterval is the record count between intra-chunk progress
	// callbacks.
	ProgressInterval int `koanf:"progress_interval"`
}

// DefaultTuning returns the default pipeline tuning.
func DefaultTuning() Tuning {
	return Tuning{
		Workers:          DefaultWorkers,
		RetryAttempts:    DefaultRetryAttempts,
		RetryBackoff:     DefaultRetryBackoff,
		RetryJitter:      DefaultRetryJitter,
		ProgressInterval: DefaultProgressInterval,
	}
}

func (t Tuning) withDefaults() Tuning {
	d := DefaultTuning()
	if t.Workers < 1 {
		t.Workers = d.Workers
	}
	if t.RetryAttempts < 1 {
		t.RetryAttempts = d.RetryAttempts
	}
	if t.RetryBackoff <= 0 {
		t.RetryBackoff = d.RetryBackoff
	}
	if t.RetryJitter < 0 {
		t.RetryJitter = d.RetryJitter
	}
	if t.ProgressInterval < 1 {
		t.ProgressInterval = d.ProgressInterval
	}
	return t
}

// ResolveWorkers maps a requested worker count to an effective pool size.
// Zero selects auto mode: half the CPUs, clamped to [MinWorkers,
// AutoMaxWorkers]. Any other request is clamped to [MinWorkers, MaxWorkers].
func ResolveWorkers(requested int) int {
	if requested == 0 {
		return clampWorkers(runtime.NumCPU()/2, MinWorkers, AutoMaxWorkers)
	}
	return clampWorkers(requested, MinWorkers, MaxWorkers)
}

func clampWorkers(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
