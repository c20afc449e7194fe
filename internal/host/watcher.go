package host

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// TriggerWatcher fires when a trigger file is created, written or touched.
type TriggerWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	logger  *slog.Logger
}

// NewTriggerWatcher watches the directory holding path. The directory is
// created if missing; the file itself need not exist.
func NewTriggerWatcher(path string, logger *slog.Logger) (*TriggerWatcher, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve trigger file: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create trigger dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TriggerWatcher{watcher: w, path: path, logger: logger}, nil
}

// Path returns the absolute path of the trigger file.
func (tw *TriggerWatcher) Path() string {
	return tw.path
}

// Run calls fire for every change to the trigger file until ctx is done.
// It closes the watcher before returning.
func (tw *TriggerWatcher) Run(ctx context.Context, fire func()) error {
	defer tw.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-tw.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != tw.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Chmod) == 0 {
				continue
			}
			tw.logger.Debug("trigger file changed", "path", event.Name, "op", event.Op.String())
			fire()
		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return nil
			}
			tw.logger.Warn("trigger watcher error", "error", err)
		}
	}
}

// Touch creates path or updates its modification time.
func Touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create trigger dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open trigger file: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		return fmt.Errorf("touch trigger file: %w", err)
	}
	return nil
}
