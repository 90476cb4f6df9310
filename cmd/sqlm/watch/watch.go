// Package watch reruns a callback when query definition files change.
package watch

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

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches the directories of a set of glob patterns.
type Watcher struct {
	patterns []string
	callback func() error
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration
}

// New watches the directory of every pattern. callback runs once per burst
// of changes to a file matching one of the patterns.
func New(patterns []string, callback func() error, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	abs := make([]string, 0, len(patterns))
	seen := make(map[string]bool)
	for _, p := range patterns {
		a, err := filepath.Abs(p)
		if err != nil {
			fw.Close()
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}
		abs = append(abs, a)
		dirs, err := watchDirs(a)
		if err != nil {
			fw.Close()
			return nil, err
		}
		for _, dir := range dirs {
			if seen[dir] {
				continue
			}
			seen[dir] = true
			if err := fw.Add(dir); err != nil {
				fw.Close()
				return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
			}
		}
	}

	return &Watcher{
		patterns: abs,
		callback: callback,
		watcher:  fw,
		logger:   logger,
		debounce: DefaultDebounce,
	}, nil
}

// watchDirs returns the directories that can hold files matching pattern.
// A glob in the directory part is expanded against the directories that
// exist now.
func watchDirs(pattern string) ([]string, error) {
	dir := filepath.Dir(pattern)
	if !strings.ContainsAny(dir, "*?[") {
		return []string{dir}, nil
	}
	matches, err := filepath.Glob(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
	}
	dirs := matches[:0]
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.IsDir() {
			dirs = append(dirs, m)
		}
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("failed to watch directory %s: no directory matches", dir)
	}
	return dirs, nil
}

// Matches reports whether path is one of the watched files.
func (w *Watcher) Matches(path string) bool {
	a, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, p := range w.patterns {
		if ok, _ := filepath.Match(p, a); ok {
			return true
		}
	}
	return false
}

// Run calls the callback once, then again after every change, until ctx is
// done. Callback errors are logged and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	w.fire()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	var settled <-chan time.Time

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !w.Matches(event.Name) {
				continue
			}
			w.logger.Debug("change detected", "file", event.Name, "op", event.Op.String())
			timer.Reset(w.debounce)
			settled = timer.C

		case <-settled:
			settled = nil
			w.fire()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) fire() {
	if err := w.callback(); err != nil {
		w.logger.Error("regeneration failed", "error", err)
	}
}
