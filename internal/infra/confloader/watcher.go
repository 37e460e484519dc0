package confloader

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports writes to a configuration file so callers can re-read
// settings while the process runs.
type Watcher struct {
	fs        *fsnotify.Watcher
	logger    *slog.Logger
	mu        sync.RWMutex
	callbacks []func(string)
	done      chan struct{}
	stopOnce  sync.Once
	stopErr   error
}

// NewWatcher creates a watcher. A nil logger falls back to slog.Default.
func NewWatcher(logger *slog.Logger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("confloader: watcher: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		fs:     fs,
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

// Watch registers the file's directory. Watching the directory rather than
// the file keeps the watch alive across editors that replace the file on
// save.
func (w *Watcher) Watch(path string) error {
	dir := filepath.Dir(path)
	if err := w.fs.Add(dir); err != nil {
		return fmt.Errorf("confloader: watch %s: %w", dir, err)
	}
	w.logger.Debug("watching configuration directory",
		"dir", dir,
		"file", filepath.Base(path))
	return nil
}

// OnChange registers a callback invoked with the path of each changed file.
// Callbacks run on the watch goroutine and should return quickly.
func (w *Watcher) OnChange(fn func(string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Start consumes filesystem events until Stop is called. Only writes and
// creates reach the callbacks; other events in the directory are noise.
func (w *Watcher) Start() {
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.logger.Debug("configuration changed",
					"file", ev.Name,
					"op", ev.Op.String())
				w.notify(ev.Name)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("configuration watch error", "error", err)
		case <-w.done:
			return
		}
	}
}

// StartAsync runs Start on its own goroutine.
func (w *Watcher) StartAsync() {
	go w.Start()
}

// Stop shuts the watcher down. Safe to call more than once.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
		w.stopErr = w.fs.Close()
	})
	return w.stopErr
}

func (w *Watcher) notify(path string) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, fn := range w.callbacks {
		fn(path)
	}
}
