package config

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/idforge/idforge/pkg/telemetry"
)

// Watcher reloads the configuration file on change. Reload events are
// debounced; a file that fails to parse keeps the previous configuration.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	log     *telemetry.Logger
}

// NewWatcher creates a watcher for one configuration file.
func NewWatcher(path string, log *telemetry.Logger) *Watcher {
	return &Watcher{
		path: path,
		log:  log.NewComponentLogger("config-watcher"),
	}
}

// Watch starts watching and calls reloadFn with each successfully loaded
// configuration until the context is cancelled.
func (w *Watcher) Watch(ctx context.Context, reloadFn func(*Config) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.path); err != nil {
		_ = watcher.Close()
		return err
	}
	w.watcher = watcher

	go w.processEvents(ctx, reloadFn)
	w.log.Infof("watching %s", w.path)
	return nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

func (w *Watcher) processEvents(ctx context.Context, reloadFn func(*Config) error) {
	var reloadTimer *time.Timer
	const reloadDelay = 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				w.reload(reloadFn)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Error("watcher error")
		}
	}
}

func (w *Watcher) reload(reloadFn func(*Config) error) {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.WithError(err).Error("reload failed, keeping previous configuration")
		return
	}
	if err := reloadFn(cfg); err != nil {
		w.log.WithError(err).Error("applying reloaded configuration failed")
		return
	}
	w.log.Info("configuration reloaded")
}
