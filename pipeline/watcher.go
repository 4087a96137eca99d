package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/initializ/cip/logging"
)

// Watcher invokes a callback when scaffold or domain documents change.
type Watcher struct {
	paths    []string
	onChange func()
	logger   logging.Logger
	debounce time.Duration
}

// NewWatcher creates a watcher over paths, which may be files or
// directories. Directories are watched recursively. onChange is called once
// per burst of changes, after debounce has passed without further events.
func NewWatcher(onChange func(), logger logging.Logger, paths ...string) *Watcher {
	return &Watcher{
		paths:    paths,
		onChange: onChange,
		logger:   logging.OrNop(logger),
		debounce: 300 * time.Millisecond,
	}
}

// SetDebounce overrides the quiet period before onChange fires.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

var watchedExtensions = map[string]bool{".yaml": true, ".yml": true}

// Watch blocks until ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fw.Close() //nolint:errcheck

	for _, p := range w.paths {
		if err := w.add(fw, p); err != nil {
			return err
		}
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.add(fw, ev.Name)
					continue
				}
			}
			if !watchedExtensions[strings.ToLower(filepath.Ext(ev.Name))] {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("config change detected", map[string]any{"path": ev.Name, "op": ev.Op.String()})
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
			pending = true

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", map[string]any{"error": err.Error()})

		case <-timer.C:
			pending = false
			w.logger.Info("config change detected, reloading", nil)
			w.onChange()
		}
	}
}

// add watches p. A file is watched through its directory so editors that
// replace files on save are still seen.
func (w *Watcher) add(fw *fsnotify.Watcher, p string) error {
	info, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("watching %s: %w", p, err)
	}
	if !info.IsDir() {
		return fw.Add(filepath.Dir(p))
	}
	return filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := fw.Add(path); err != nil {
				return fmt.Errorf("watching %s: %w", path, err)
			}
		}
		return nil
	})
}
