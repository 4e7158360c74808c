package dictionary

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the dictionary whenever its file is written, created or
// replaced, until ctx is cancelled. The parent directory is watched so that
// atomic renames by editors and by [Dictionary.Add] are seen.
func (d *Dictionary) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("dictionary: create watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(d.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("dictionary: watch %q: %w", dir, err)
	}
	target := filepath.Clean(d.path)
	slog.Debug("dictionary: watching for changes", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := d.Reload(); err != nil {
				slog.Warn("dictionary: reload failed; keeping previous entries", "path", target, "err", err)
				continue
			}
			slog.Info("dictionary: reloaded", "path", target, "rows", d.Len())
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Debug("dictionary: watcher error", "path", target, "err", err)
		}
	}
}
