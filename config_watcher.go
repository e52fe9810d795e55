package sage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher reports changes to the configuration file. The containing
// directory is watched because editors often replace files instead of
// writing them in place.
type ConfigWatcher struct {
	path     string
	logger   Logger
	debounce time.Duration

	mu        sync.Mutex
	callbacks []func()
	timer     *time.Timer

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewConfigWatcher creates a watcher for path. Nothing happens until Start.
func NewConfigWatcher(path string, logger Logger) *ConfigWatcher {
	return &ConfigWatcher{
		path:     filepath.Clean(path),
		logger:   logger,
		debounce: 200 * time.Millisecond,
	}
}

// OnChange registers fn to run after each (debounced) change.
func (w *ConfigWatcher) OnChange(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Start begins watching. It returns once the watch is established.
func (w *ConfigWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("config watcher: watch %s: %w", w.path, err)
	}

	w.watcher = watcher
	w.stopCh = make(chan struct{})
	w.wg.Add(1)
	go w.watchLoop(ctx)

	w.logger.Info("Watching config file", "path", w.path)
	return nil
}

// Stop ends watching and cancels any pending notification.
func (w *ConfigWatcher) Stop() {
	if w.watcher == nil {
		return
	}
	close(w.stopCh)
	_ = w.watcher.Close()
	w.wg.Wait()
	w.watcher = nil

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}

func (w *ConfigWatcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.schedule()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

func (w *ConfigWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *ConfigWatcher) fire() {
	w.mu.Lock()
	callbacks := append([]func(){}, w.callbacks...)
	w.mu.Unlock()

	w.logger.Info("Config file changed", "path", w.path)
	for _, fn := range callbacks {
		fn()
	}
}
