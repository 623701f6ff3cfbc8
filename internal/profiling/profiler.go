// Package profiling captures CPU, heap and execution-trace profiles of a
// mosaicwatch run and tracks the heap high-water mark across merges.
package profiling

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"sort"
	"strings"
	"sync"
)

// Profile kinds accepted by ParseKinds.
const (
	KindCPU   = "cpu"
	KindHeap  = "heap"
	KindTrace = "trace"
	KindBlock = "block"
)

// File names written into the profile directory.
const (
	CPUFile   = "cpu.pprof"
	HeapFile  = "heap.pprof"
	TraceFile = "trace.out"
	BlockFile = "block.pprof"
)

// Options selects which profiles a Session captures.
type Options struct {
	// Dir receives the profile files. It is created if missing.
	Dir   string
	Kinds []string
}

// ParseKinds parses a comma-separated list such as "cpu,heap".
func ParseKinds(s string) ([]string, error) {
	seen := map[string]bool{}
	var kinds []string
	for _, k := range strings.Split(s, ",") {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		switch k {
		case KindCPU, KindHeap, KindTrace, KindBlock:
		default:
			return nil, fmt.Errorf("unknown profile %q (want cpu, heap, trace or block)", k)
		}
		seen[k] = true
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds, nil
}

// Session is a running set of profiles. Stop flushes them.
type Session struct {
	dir       string
	kinds     map[string]bool
	cpuFile   *os.File
	traceFile *os.File

	mu       sync.Mutex
	stopped  bool
	peakHeap uint64
}

// Start begins the continuous profiles (cpu, trace, block) and returns a
// Session. Snapshot profiles (heap, block) are written by Stop.
func Start(opts Options) (*Session, error) {
	if opts.Dir == "" {
		return nil, errors.New("profile directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	s := &Session{dir: opts.Dir, kinds: map[string]bool{}}
	for _, k := range opts.Kinds {
		s.kinds[k] = true
	}

	if s.kinds[KindCPU] {
		f, err := os.Create(s.Path(CPUFile))
		if err != nil {
			return nil, fmt.Errorf("failed to create CPU profile file: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to start CPU profile: %w", err)
		}
		s.cpuFile = f
	}

	if s.kinds[KindTrace] {
		f, err := os.Create(s.Path(TraceFile))
		if err != nil {
			s.stopCPU()
			return nil, fmt.Errorf("failed to create trace file: %w", err)
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			s.stopCPU()
			return nil, fmt.Errorf("failed to start trace: %w", err)
		}
		s.traceFile = f
	}

	if s.kinds[KindBlock] {
		runtime.SetBlockProfileRate(1)
	}
	return s, nil
}

// Path returns the location of a profile file in the session directory.
func (s *Session) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Enabled reports whether kind is being captured.
func (s *Session) Enabled(kind string) bool {
	return s.kinds[kind]
}

// SampleHeap reads the live heap size and updates the high-water mark.
// Call it after each merge.
func (s *Session) SampleHeap() (current, peak uint64) {
	m := MemStats()
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.HeapAlloc > s.peakHeap {
		s.peakHeap = m.HeapAlloc
	}
	return m.HeapAlloc, s.peakHeap
}

// PeakHeap returns the highest heap size seen by SampleHeap.
func (s *Session) PeakHeap() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peakHeap
}

// Stop ends the continuous profiles and writes the snapshot ones. It is
// safe to call more than once.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.stopCPU()
	if s.traceFile != nil {
		trace.Stop()
		_ = s.traceFile.Close()
		s.traceFile = nil
	}

	var errs []error
	if s.kinds[KindHeap] {
		errs = append(errs, writeHeap(s.Path(HeapFile)))
	}
	if s.kinds[KindBlock] {
		errs = append(errs, writeLookup("block", s.Path(BlockFile)))
		runtime.SetBlockProfileRate(0)
	}
	return errors.Join(errs...)
}

func (s *Session) stopCPU() {
	if s.cpuFile == nil {
		return
	}
	pprof.StopCPUProfile()
	_ = s.cpuFile.Close()
	s.cpuFile = nil
}

func writeHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create heap profile file: %w", err)
	}
	defer func() { _ = f.Close() }()

	// Collect first so the profile shows live rasters only.
	runtime.GC()

	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("failed to write heap profile: %w", err)
	}
	return nil
}

func writeLookup(name, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s profile file: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	if err := pprof.Lookup(name).WriteTo(f, 0); err != nil {
		return fmt.Errorf("failed to write %s profile: %w", name, err)
	}
	return nil
}

// MemStats returns current memory statistics.
func MemStats() runtime.MemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m
}

// FormatBytes formats bytes into human-readable form.
func FormatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
