package resume

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads the store from path whenever the file is written or
// replaced, until ctx is cancelled. The parent directory is watched so that
// editors which save by rename are picked up. Blank file contents are ignored.
func (s *Store) Watch(ctx context.Context, path string, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("resume watch: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("resume watch %s: %w", path, err)
	}

	target := filepath.Clean(path)
	logger.Info("watching resume file", "path", target)

	go func() {
		defer func() { _ = watcher.Close() }()

		var debounce *time.Timer
		for {
			select {
			case <-ctx.Done():
				if debounce != nil {
					debounce.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, func() { s.reload(target, logger) })
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("resume watcher error", "err", err)
			}
		}
	}()
	return nil
}

func (s *Store) reload(path string, logger *slog.Logger) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("resume reload failed", "path", path, "err", err)
		return
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		logger.Warn("resume file is empty, keeping current resume", "path", path)
		return
	}
	s.cur.Store(&entry{text: text, real: true})
	logger.Info("resume reloaded", "path", path, "chars", len(text))
}
