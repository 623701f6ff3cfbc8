package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	mwerrors "github.com/Aman-CERP/mosaicwatch/internal/errors"
)

// PollingDetector finds new tiles by listing the watched directory and
// diffing it against the set of files it has already reported.
type PollingDetector struct {
	dir    string
	filter *filter

	mu     sync.Mutex
	seen   map[string]struct{}
	closed bool
}

type candidate struct {
	path    string
	modTime time.Time
}

// NewPollingDetector creates a polling detector for dir. The seen-set starts
// empty, so files already present are reported by the first call.
func NewPollingDetector(dir string, opts Options) (*PollingDetector, error) {
	opts = opts.WithDefaults()
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, mwerrors.WatchError(mwerrors.ErrCodeWatchUnavailable, "cannot resolve watched directory", dir, err)
	}
	return &PollingDetector{
		dir:    abs,
		filter: newFilter(abs, opts),
		seen:   make(map[string]struct{}),
	}, nil
}

// DetectNew returns the tiles present now that were not returned before,
// ordered by modification time then name, and marks them seen.
func (p *PollingDetector) DetectNew(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, nil
	}

	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, mwerrors.WatchError(mwerrors.ErrCodeWatchDirGone, "watched directory no longer exists", p.dir, err)
		}
		return nil, mwerrors.WatchError(mwerrors.ErrCodeWatchUnavailable, "failed to list watched directory", p.dir, err)
	}

	var fresh []candidate
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(p.dir, entry.Name())
		if _, ok := p.seen[path]; ok || !p.filter.accept(path) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		fresh = append(fresh, candidate{path: path, modTime: info.ModTime()})
	}

	sort.Slice(fresh, func(i, j int) bool {
		if !fresh[i].modTime.Equal(fresh[j].modTime) {
			return fresh[i].modTime.Before(fresh[j].modTime)
		}
		return fresh[i].path < fresh[j].path
	})

	paths := make([]string, len(fresh))
	for i, c := range fresh {
		paths[i] = c.path
		p.seen[c.path] = struct{}{}
	}
	return paths, nil
}

// MarkSeen adds paths to the seen-set without reporting them.
func (p *PollingDetector) MarkSeen(paths ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for _, path := range paths {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		p.seen[path] = struct{}{}
	}
}

// SeenCount returns the size of the seen-set.
func (p *PollingDetector) SeenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

// Close discards the seen-set. Safe to call multiple times.
func (p *PollingDetector) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.seen = nil
	return nil
}
