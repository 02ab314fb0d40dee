package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/sodav-monitor/sodav/pkg/observability"
)

// Watch reloads the file at path whenever it changes and applies the new
// log level to logger. The directory is watched rather than the file so
// editors that replace it by rename are seen. Invalid files are logged and
// ignored. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, logger *observability.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", target, err)
	}
	logger.WithField("path", target).Info("Watching config file")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(target)
			if err != nil {
				logger.WithError(err).Warn("Ignoring invalid config change")
				continue
			}
			logger.SetLevel(cfg.Observability.Level())
			logger.WithField("log_level", cfg.Observability.LogLevel).Info("Config reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("Config watcher error")
		}
	}
}
