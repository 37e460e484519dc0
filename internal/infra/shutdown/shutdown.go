// Package shutdown provides graceful shutdown handling.
package shutdown

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Hook is a cleanup function invoked during shutdown. The context carries
// the drain deadline.
type Hook func(context.Context) error

// Handler coordinates graceful process shutdown. A signal cancels the
// context handed to in-flight work; cleanup hooks run exactly once when the
// process unwinds, whether it exits normally or on a signal.
type Handler struct {
	timeout time.Duration
	mu      sync.Mutex
	hooks   []Hook
	once    sync.Once
	stop    context.CancelFunc
	done    chan struct{}
}

// NewHandler creates a new shutdown handler. timeout bounds how long the
// hooks may take in total.
func NewHandler(timeout time.Duration) *Handler {
	return &Handler{
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// OnShutdown registers a shutdown hook.
// Hooks are called in reverse order of registration.
func (h *Handler) OnShutdown(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
}

// Context returns a copy of parent that is cancelled when the process
// receives SIGINT or SIGTERM.
func (h *Handler) Context(parent context.Context) context.Context {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	h.mu.Lock()
	h.stop = stop
	h.mu.Unlock()
	return ctx
}

// Close runs the registered hooks in reverse order under the drain timeout
// and releases the signal watch. Safe to call more than once; only the
// first call does work.
func (h *Handler) Close() error {
	var lastErr error
	h.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		h.mu.Lock()
		hooks := make([]Hook, len(h.hooks))
		copy(hooks, h.hooks)
		stop := h.stop
		h.mu.Unlock()

		for i := len(hooks) - 1; i >= 0; i-- {
			if err := hooks[i](ctx); err != nil {
				lastErr = err
			}
		}
		if stop != nil {
			stop()
		}
		close(h.done)
	})
	return lastErr
}

// Done returns a channel that closes when shutdown is complete.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
