// Package watch notifies about changes to a single file, such as the lock
// document, which is replaced by rename on every write.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/efiop/dvc/internal/logging"
)

// DefaultDebounce collapses the burst of events produced by one
// write-then-rename into a single notification.
const DefaultDebounce = 50 * time.Millisecond

// File watches one path. It watches the parent directory so that the file
// may be created, removed, or replaced while being watched.
type File struct {
	path     string
	debounce time.Duration
	logger   *logging.Logger
}

// Option configures a File watcher.
type Option func(*File)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(f *File) {
		f.debounce = d
	}
}

// WithLogger attaches a logger for watcher errors.
func WithLogger(l *logging.Logger) Option {
	return func(f *File) {
		f.logger = l
	}
}

// New returns a watcher for path.
func New(path string, opts ...Option) *File {
	f := &File{
		path:     filepath.Clean(path),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = logging.OrNop(f.logger)
	return f
}

// Run calls onChange after each burst of changes to the file until ctx is
// done. It returns nil when ctx ends and an error only if the watch cannot
// be set up or the event stream breaks.
func (f *File) Run(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(f.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	debounce := time.NewTimer(0)
	<-debounce.C // drain initial timer
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watch %s: event stream closed", dir)
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			debounce.Reset(f.debounce)

		case <-debounce.C:
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watch %s: error stream closed", dir)
			}
			f.logger.Warn("file watcher error", "path", f.path, "error", err.Error())
		}
	}
}
