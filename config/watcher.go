package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// PromptWatcher watches the selector's on-disk prompt template files and
// invokes a reload callback after changes settle, debounced the way
// source-ingester's document watcher debounces filesystem churn. Only
// paths that ResolvePromptTemplate treats as files (as opposed to inline
// template text) are ever watched.
type PromptWatcher struct {
	watcher      *fsnotify.Watcher
	paths        map[string]bool // absolute path -> watched
	debounce     time.Duration
	logger       *slog.Logger
	onChange     func()
	pendingMu    sync.Mutex
	pendingFired bool
}

// NewPromptWatcher creates a PromptWatcher over paths, which may include
// non-existent or non-file entries (e.g. inline template text); those are
// silently skipped. onChange is invoked, debounced by debounceDelay, after
// any watched file is written. Returns (nil, nil) if no path in paths names
// a real file, since there is then nothing to watch.
func NewPromptWatcher(paths []string, debounceDelay time.Duration, onChange func(), logger *slog.Logger) (*PromptWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounceDelay <= 0 {
		debounceDelay = 500 * time.Millisecond
	}

	watched := make(map[string]bool)
	for _, p := range paths {
		if resolvesToFile(p) {
			abs, err := filepath.Abs(p)
			if err != nil {
				continue
			}
			watched[abs] = true
		}
	}
	if len(watched) == 0 {
		return nil, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dirs := make(map[string]bool)
	for p := range watched {
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			logger.Warn("failed to watch prompt directory", "dir", dir, "error", err)
		}
	}

	return &PromptWatcher{
		watcher:  fsw,
		paths:    watched,
		debounce: debounceDelay,
		logger:   logger,
		onChange: onChange,
	}, nil
}

// Start runs the debounced event loop until ctx is cancelled.
func (w *PromptWatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !w.paths[abs] {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.pendingMu.Lock()
				w.pendingFired = true
				w.pendingMu.Unlock()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("prompt watcher error", "error", err)

		case <-ticker.C:
			w.pendingMu.Lock()
			fired := w.pendingFired
			w.pendingFired = false
			w.pendingMu.Unlock()

			if fired {
				w.logger.Info("prompt template file changed, reloading")
				w.onChange()
			}
		}
	}
}

// resolvesToFile reports whether p names an existing, readable,
// non-directory file, matching the condition ResolvePromptTemplate uses to
// decide between file and literal-template treatment.
func resolvesToFile(p string) bool {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		return false
	}
	info, err := os.Stat(trimmed)
	return err == nil && !info.IsDir()
}
