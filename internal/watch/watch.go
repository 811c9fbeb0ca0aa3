// Package watch re-runs scenarios when their files change on disk.
// Editors rarely write a file once: a save arrives as a burst of
// create, write, and rename events, so changes are debounced into a
// single coalesced notification.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the window used when no debounce is configured.
const DefaultDebounce = 500 * time.Millisecond

// Debouncer coalesces change notifications. Hit records a path and
// re-arms the timer; once the window passes with no new hits, flush
// fires once with the sorted unique paths seen.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	pending map[string]struct{}
	timer   *time.Timer
	flush   func(paths []string)
	stopped bool
}

// NewDebouncer builds a debouncer that calls flush after window elapses
// without new hits. A non-positive window selects DefaultDebounce.
func NewDebouncer(window time.Duration, flush func(paths []string)) *Debouncer {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Debouncer{
		window:  window,
		pending: make(map[string]struct{}),
		flush:   flush,
	}
}

// Hit records a changed path and restarts the debounce window.
func (d *Debouncer) Hit(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending[path] = struct{}{}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(d.pending))
	for p := range d.pending {
		paths = append(paths, p)
	}
	d.pending = make(map[string]struct{})
	flush := d.flush
	d.mu.Unlock()

	sort.Strings(paths)
	if flush != nil {
		flush(paths)
	}
}

// Stop cancels any armed timer and drops pending paths.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = make(map[string]struct{})
}

// Pending returns the number of paths waiting to flush.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Watcher reports coalesced changes to a fixed set of scenario files.
// The parent directory of each file is watched rather than the file
// itself: editors replace files on save, and a watch on the old inode
// dies with it.
type Watcher struct {
	fsw       *fsnotify.Watcher
	files     map[string]struct{}
	debouncer *Debouncer
	logger    *slog.Logger
}

// New builds a watcher over the given files. onChange receives the
// coalesced set of changed files after each debounce window.
func New(files []string, window time.Duration, onChange func(paths []string), logger *slog.Logger) (*Watcher, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("watch: at least one file is required")
	}
	if onChange == nil {
		return nil, fmt.Errorf("watch: onChange callback is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	fileSet := make(map[string]struct{}, len(files))
	dirs := make(map[string]struct{})
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", f, err)
		}
		fileSet[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	return &Watcher{
		fsw:       fsw,
		files:     fileSet,
		debouncer: NewDebouncer(window, onChange),
		logger:    logger,
	}, nil
}

// Start consumes filesystem events until ctx is canceled or the watcher
// is closed. It blocks; run it in a goroutine when the caller has other
// work to do.
func (w *Watcher) Start(ctx context.Context) {
	w.run(ctx, w.fsw.Events, w.fsw.Errors)
}

// run is split from Start so tests can feed synthetic events.
func (w *Watcher) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			if _, watched := w.files[abs]; !watched {
				continue
			}
			w.logger.Debug("scenario file changed", "path", abs, "op", event.Op.String())
			w.debouncer.Hit(abs)
		case err, ok := <-errs:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// Close stops the underlying watcher and drops pending notifications.
func (w *Watcher) Close() error {
	w.debouncer.Stop()
	return w.fsw.Close()
}
