package config

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/amelia-orch/amelia/internal/state"
)

// Update carries a freshly reloaded, validated profile set, or the error
// that reload attempt produced. A failed reload never touches the
// watcher's last-known-good state.
type Update struct {
	Profiles map[string]state.Profile
	Err      error
}

// Watcher hot-reloads a profiles.yaml on write, debouncing bursts of
// editor saves (write-then-rename, multiple writes in one "save") the way
// DocWatcher debounces source-file churn: buffer the fact that *something*
// changed and flush on a short ticker instead of reloading per-fsevent.
type Watcher struct {
	path   string
	logger *zap.Logger

	watcher *fsnotify.Watcher
	updates chan Update

	pendingMu sync.Mutex
	pending   bool

	dropped atomic.Int64
}

const watchDebounce = 200 * time.Millisecond

// NewWatcher builds a Watcher for path. A nil logger defaults to
// zap.NewNop(). Call Start to begin watching.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the containing directory rather than the file itself: editors
	// that save via rename-into-place replace the inode fsnotify was
	// watching, which silently stops delivering events for it.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		path:    path,
		logger:  logger,
		watcher: fw,
		updates: make(chan Update, 1),
	}, nil
}

// Updates returns the channel Start delivers reload results on. Sends are
// non-blocking: a consumer that falls behind observes dropped reloads via
// Dropped rather than stalling the watch loop.
func (w *Watcher) Updates() <-chan Update {
	return w.updates
}

// Dropped reports how many reload results were discarded because Updates
// was not being drained.
func (w *Watcher) Dropped() int64 {
	return w.dropped.Load()
}

// Start runs the debounced watch loop until ctx is canceled.
func (w *Watcher) Start(ctx context.Context) {
	go w.processEvents(ctx)
}

// Stop releases the underlying fsnotify handle.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) processEvents(ctx context.Context) {
	ticker := time.NewTicker(watchDebounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.markPending()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("profile watcher error", zap.Error(err))
		case <-ticker.C:
			w.flushPending()
		}
	}
}

func (w *Watcher) markPending() {
	w.pendingMu.Lock()
	w.pending = true
	w.pendingMu.Unlock()
}

func (w *Watcher) flushPending() {
	w.pendingMu.Lock()
	if !w.pending {
		w.pendingMu.Unlock()
		return
	}
	w.pending = false
	w.pendingMu.Unlock()

	profiles, err := Load(w.path)
	if err != nil {
		w.logger.Warn("profile reload failed, keeping prior config", zap.Error(err))
	}
	w.send(Update{Profiles: profiles, Err: err})
}

func (w *Watcher) send(u Update) {
	select {
	case w.updates <- u:
	default:
		w.dropped.Add(1)
		w.logger.Warn("dropped profile reload result, consumer too slow", zap.Int64("dropped_total", w.dropped.Load()))
	}
}
