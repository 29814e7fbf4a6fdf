package script

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"pkt.systems/pslog"
)

// Watch reloads the script at path whenever it changes, until ctx is done.
//
// The parent directory is watched rather than the file so editors that
// replace the file on save are still picked up. A failed reload is logged
// and the previous program stays active.
func (e *Engine) Watch(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("script: create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("script: watch directory %q: %w", dir, err)
	}

	logger := e.logger.With("path", path)
	logger.Info("script.watch.start")
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				logger.Debug("script.watch.stop")
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != path {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				e.reload(logger, path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("script.watch.error", "error", err)
			}
		}
	}()
	return nil
}

func (e *Engine) reload(logger pslog.Logger, path string) {
	changed, err := e.LoadFile(path)
	if err != nil {
		logger.Warn("script.reload.failed", "error", err)
		return
	}
	if changed {
		logger.Info("script.reloaded")
	}
}
