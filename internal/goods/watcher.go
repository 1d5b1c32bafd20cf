package goods

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher hot-reloads a catalog override file so a long-running bot can
// retune price bands and limits without a restart. It watches the file's
// directory (editors replace files on save) and debounces rapid writes.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	catalog     *Catalog
	path        string
	log         *zap.Logger
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats WatcherStats
}

// WatcherStats tracks reload activity.
type WatcherStats struct {
	Reloads       int
	ReloadErrors  int
	Resets        int
	LastReload    time.Time
	LastOverrides int
}

// NewWatcher creates a watcher for the override file at path.
func NewWatcher(catalog *Catalog, path string, log *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		watcher:     fsw,
		catalog:     catalog,
		path:        filepath.Clean(path),
		log:         log.Named("goods"),
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start loads the override file if it already exists and begins watching
// for changes. Non-blocking.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if _, err := os.Stat(w.path); err == nil {
		w.reload()
	}

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.log.Warn("override watch failed, running without hot reload",
			zap.String("path", w.path), zap.Error(err))
	}

	go w.run()
	return nil
}

// Stop stops the watcher and waits for the event loop to drain.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.log.Error("error closing override watcher", zap.Error(err))
	}
}

// Stats returns a snapshot of reload counters.
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("override watcher error", zap.Error(err))

		case <-ticker.C:
			w.processSettled()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}

	switch {
	case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
		w.mu.Lock()
		w.debounceMap[w.path] = time.Now()
		w.mu.Unlock()

	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.catalog.Reset()
		w.mu.Lock()
		w.stats.Resets++
		delete(w.debounceMap, w.path)
		w.mu.Unlock()
		w.log.Info("override file removed, catalog reset to builtins")
	}
}

// processSettled reloads the file once writes have quieted for the
// debounce window.
func (w *Watcher) processSettled() {
	w.mu.Lock()
	eventTime, pending := w.debounceMap[w.path]
	if !pending || time.Since(eventTime) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	delete(w.debounceMap, w.path)
	w.mu.Unlock()

	w.reload()
}

func (w *Watcher) reload() {
	count, err := w.catalog.LoadOverrides(w.path)
	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		// Keep the current catalog on a bad file; a partial table is
		// worse than a stale one.
		w.stats.ReloadErrors++
		w.log.Warn("failed to load catalog overrides", zap.Error(err))
		return
	}
	w.stats.Reloads++
	w.stats.LastReload = time.Now()
	w.stats.LastOverrides = count
	w.log.Info("catalog overrides loaded", zap.Int("goods", count))
}
