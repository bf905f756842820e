package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/codefionn/amchat/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config file at path whenever it changes and hands the
// fresh config to onChange. It blocks until ctx is done. The parent directory
// is watched so that editors replacing the file by rename are noticed.
func Watch(ctx context.Context, path string, log *logger.Logger, onChange func(*Config)) error {
	log = logger.OrGlobal(log).WithPrefix("config")

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(absPath)
			if err != nil {
				log.Warn("Ignoring config change: %v", err)
				continue
			}
			log.Info("Config reloaded from %s", absPath)
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("config watcher error: %v", err)
		}
	}
}
