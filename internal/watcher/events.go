package watcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	mwerrors "github.com/Aman-CERP/mosaicwatch/internal/errors"
)

// EventDetector turns fsnotify events on the watched directory into one-shot
// tile notifications. It keeps no seen-set: a path is reported once per
// settled create or write.
type EventDetector struct {
	dir       string
	filter    *filter
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	logger    *slog.Logger

	notify chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	queue   []string
	queued  map[string]struct{}
	err     error
	stopped bool
}

var (
	_ Detector = (*EventDetector)(nil)
	_ Notifier = (*EventDetector)(nil)
)

// NewEventDetector subscribes to dir (non-recursive) and starts the reader
// goroutine. Close must be called to release it.
func NewEventDetector(dir string, opts Options) (*EventDetector, error) {
	opts = opts.WithDefaults()
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, mwerrors.WatchError(mwerrors.ErrCodeWatchUnavailable, "cannot resolve watched directory", dir, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, mwerrors.WatchError(mwerrors.ErrCodeWatchUnavailable, "failed to create file system watcher", abs, err)
	}
	if err := fsw.Add(abs); err != nil {
		_ = fsw.Close()
		code := mwerrors.ErrCodeWatchUnavailable
		if os.IsNotExist(err) {
			code = mwerrors.ErrCodeWatchDirGone
		}
		return nil, mwerrors.WatchError(code, "failed to watch directory", abs, err)
	}

	e := &EventDetector{
		dir:       abs,
		filter:    newFilter(abs, opts),
		fsWatcher: fsw,
		debouncer: NewDebouncer(opts.DebounceWindow),
		logger:    opts.Logger,
		notify:    make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		queued:    make(map[string]struct{}),
	}

	e.wg.Add(1)
	go e.run()
	return e, nil
}

// run reads fsnotify events and debounced batches until Close.
func (e *EventDetector) run() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case event, ok := <-e.fsWatcher.Events:
			if !ok {
				return
			}
			e.handleEvent(event)
		case err, ok := <-e.fsWatcher.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				e.logger.Warn("file system event queue overflowed, some tiles may be missed",
					slog.String("path", e.dir))
				continue
			}
			e.logger.Warn("file system watcher error",
				slog.String("path", e.dir),
				slog.String("error", err.Error()))
		case batch, ok := <-e.debouncer.Output():
			if !ok {
				return
			}
			for _, ev := range batch {
				if ev.Operation == OpCreate || ev.Operation == OpWrite {
					e.enqueue(ev.Path)
				}
			}
		}
	}
}

// handleEvent converts and filters one fsnotify event.
func (e *EventDetector) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	if path == e.dir {
		if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			e.fail(mwerrors.WatchError(mwerrors.ErrCodeWatchDirGone, "watched directory was removed", e.dir, nil))
		}
		return
	}

	if !e.filter.accept(path) {
		return
	}

	var op Operation
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpWrite
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpRemove
	default:
		// Chmod
		return
	}

	if op == OpCreate {
		// Directories created inside the watched folder are not tiles.
		if info, err := os.Stat(path); err == nil && !info.Mode().IsRegular() {
			return
		}
	}

	e.debouncer.Add(FileEvent{Path: path, Operation: op, Timestamp: time.Now()})
}

func (e *EventDetector) enqueue(path string) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	if _, ok := e.queued[path]; !ok {
		e.queued[path] = struct{}{}
		e.queue = append(e.queue, path)
	}
	e.mu.Unlock()
	e.signal()
}

func (e *EventDetector) fail(err error) {
	e.mu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.mu.Unlock()
	e.signal()
}

func (e *EventDetector) signal() {
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// Notify receives a value whenever tiles are queued or the watch fails.
func (e *EventDetector) Notify() <-chan struct{} {
	return e.notify
}

// DetectNew drains the queued notifications in arrival order.
func (e *EventDetector) DetectNew(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.err != nil {
		return nil, e.err
	}
	if e.stopped {
		return nil, nil
	}
	if _, err := os.Stat(e.dir); os.IsNotExist(err) {
		e.err = mwerrors.WatchError(mwerrors.ErrCodeWatchDirGone, "watched directory no longer exists", e.dir, err)
		return nil, e.err
	}

	paths := e.queue
	e.queue = nil
	e.queued = make(map[string]struct{})
	return paths, nil
}

// Close stops the reader goroutine and releases the fsnotify watcher.
// Safe to call multiple times.
func (e *EventDetector) Close() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	e.mu.Unlock()

	close(e.stopCh)
	err := e.fsWatcher.Close()
	e.wg.Wait()
	e.debouncer.Stop()
	return err
}
