package routes

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// dirWatcher delivers filtered fsnotify events for a single directory.
type dirWatcher struct {
	watcher    *fsnotify.Watcher
	dir        string
	extensions []string
	onEvent    func(fsnotify.Event)
	logger     *slog.Logger
	done       chan struct{}
}

func newDirWatcher(dir string, extensions []string, onEvent func(fsnotify.Event), logger *slog.Logger) (*dirWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %q: %w", dir, err)
	}

	return &dirWatcher{
		watcher:    watcher,
		dir:        dir,
		extensions: extensions,
		onEvent:    onEvent,
		logger:     logger,
		done:       make(chan struct{}),
	}, nil
}

// run processes events until ctx is cancelled or the watcher is closed.
func (w *dirWatcher) run(ctx context.Context) {
	defer close(w.done)

	w.logger.Debug("Directory watcher started", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.shouldProcessEvent(event) {
				continue
			}

			w.logger.Debug("File event detected",
				"path", event.Name,
				"op", event.Op.String(),
			)
			w.onEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Keep watching; a dropped event is recovered by the next one.
			w.logger.Error("File watcher error", "dir", w.dir, "error", err)
		}
	}
}

// Close stops the watcher and waits for its event loop to exit.
func (w *dirWatcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

// shouldProcessEvent drops chmod-only events, hidden files (including the
// manager's own temp files) and extensions that are not watched.
func (w *dirWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}

	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}

	ext := strings.ToLower(filepath.Ext(base))
	for _, valid := range w.extensions {
		if ext == valid {
			return true
		}
	}
	return false
}
