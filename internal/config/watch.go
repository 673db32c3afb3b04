package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchTuning следит за файлом конфигурации и вызывает apply
// с новой секцией tuning после каждого изменения.
//
// Следим за каталогом, а не за файлом: редакторы часто заменяют файл
// переименованием. Невалидная конфигурация логируется и пропускается.
// Блокирует до отмены ctx.
func WatchTuning(ctx context.Context, path string, logger *slog.Logger, apply func(Tuning)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			tuning, err := LoadTuning(target)
			if err != nil {
				logger.Warn("ignoring invalid tuning", "path", target, "error", err)
				continue
			}
			logger.Info("tuning reloaded", "path", target)
			apply(tuning)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("fsnotify error", "error", err)
		}
	}
}
