package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Watcher holds the currently active ServerConfig behind an atomic
// pointer (spec §3, §5: replacement is atomic, new requests see the new
// config, in-flight requests keep their borrowed reference) and
// optionally reloads it whenever the backing file changes on disk.
type Watcher struct {
	path    string
	current atomic.Pointer[ServerConfig]
	logger  *slog.Logger

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc

	onReload func(*ServerConfig)
}

// OnReload registers a callback invoked after every successful reload
// triggered by Watch, with the newly active configuration. It does not
// fire for the initial Load. Only one callback may be registered.
func (w *Watcher) OnReload(fn func(*ServerConfig)) {
	w.onReload = fn
}

// Load parses path once and returns a Watcher holding the result. Call
// Watch to additionally pick up subsequent edits to the file.
func Load(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{path: path, logger: logger}
	if err := w.reload(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Watcher) reload() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", w.path, err)
	}
	sc, err := Parse(data)
	if err != nil {
		return fmt.Errorf("config: %s: %w", w.path, err)
	}
	w.current.Store(sc)
	return nil
}

// Current returns the active ServerConfig. The returned pointer remains
// valid even after a subsequent reload swaps in a new one.
func (w *Watcher) Current() *ServerConfig {
	return w.current.Load()
}

// Watch starts watching the config file for changes and reloads it into
// the atomic pointer on every write, logging (and ignoring) a reload
// that fails to parse - the previous good config stays active.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	if err := fw.Add(w.path); err != nil {
		fw.Close()
		return fmt.Errorf("config: watch %s: %w", w.path, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.watcher = fw
	w.cancel = cancel

	go w.watchLoop(watchCtx)
	return nil
}

// Stop halts the file watcher, if one was started.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.watcher != nil {
		w.watcher.Close()
	}
}

func (w *Watcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := w.reload(); err != nil {
				w.logger.Error("config reload failed, keeping previous configuration", "path", w.path, "error", err)
				continue
			}
			w.logger.Info("configuration reloaded", "path", w.path)
			if w.onReload != nil {
				w.onReload(w.Current())
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}
