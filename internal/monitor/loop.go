package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	mwerrors "github.com/Aman-CERP/mosaicwatch/internal/errors"
	"github.com/Aman-CERP/mosaicwatch/internal/merge"
	"github.com/Aman-CERP/mosaicwatch/internal/store"
	"github.com/Aman-CERP/mosaicwatch/internal/watcher"
)

// ErrAlreadyStarted is returned by Start on a loop that left StateIdle.
var ErrAlreadyStarted = errors.New("monitor loop already started")

// Swapper shows a raster as the current mosaic layer.
type Swapper interface {
	Swap(ctx context.Context, path string) error
}

// Deps are the collaborators of a Loop.
type Deps struct {
	Merger    merge.Merger
	Presenter Swapper

	// History records merges and the session. Optional.
	History store.HistoryStore

	// Reporter receives progress events. Optional.
	Reporter Reporter

	// NewDetector creates the change detector. Default: watcher.New.
	NewDetector func(strategy watcher.Strategy, dir string, opts watcher.Options) (watcher.Detector, error)

	// Now is the clock. Default: time.Now.
	Now func() time.Time

	// SessionID identifies the session. Default: a new UUID.
	SessionID string

	Logger *slog.Logger
}

// Loop drives a change detector, merges each batch of new tiles into the
// running mosaic and swaps the displayed layer. It runs on one worker
// goroutine and moves Idle → Watching → Stopped.
type Loop struct {
	deps   Deps
	logger *slog.Logger

	mu       sync.Mutex
	state    SessionState
	detector watcher.Detector
	waitErr  error

	stopOnce   sync.Once
	stopCh     chan struct{}
	closeOnce  sync.Once
	closeErr   error
	done       chan struct{}
	doneClosed bool
}

// New creates a loop in StateIdle.
func New(cfg WatchConfig, deps Deps) *Loop {
	if deps.NewDetector == nil {
		deps.NewDetector = watcher.New
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.SessionID == "" {
		deps.SessionID = uuid.NewString()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("session_id", deps.SessionID))

	return &Loop{
		deps:   deps,
		logger: logger,
		state: SessionState{
			ID:            deps.SessionID,
			Config:        cfg,
			State:         StateIdle,
			CurrentMosaic: cfg.BaseRaster,
		},
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start validates the configuration, creates the detector and launches the
// worker goroutine. On failure the loop stays Idle and the error is returned.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.state.State != StateIdle {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	cfg := l.state.Config
	l.mu.Unlock()

	if err := cfg.Validate(); err != nil {
		l.logger.Error("session configuration rejected", slog.String("error", err.Error()))
		return err
	}

	det, err := l.deps.NewDetector(cfg.Strategy, cfg.WatchedDir, cfg.detectorOptions())
	if err != nil {
		l.logger.Error("failed to start change detector",
			slog.String("path", cfg.WatchedDir),
			slog.String("error", err.Error()))
		return err
	}

	now := l.deps.Now()
	l.mu.Lock()
	if l.state.State != StateIdle {
		// Stop won the race.
		l.mu.Unlock()
		_ = det.Close()
		return ErrAlreadyStarted
	}
	l.detector = det
	l.state.State = StateWatching
	l.state.StartedAt = now
	l.state.LastActivity = now
	l.mu.Unlock()

	l.logger.Info("watching for tiles",
		slog.String("path", cfg.WatchedDir),
		slog.String("strategy", string(cfg.Strategy)),
		slog.String("policy", string(cfg.Policy)),
		slog.String("output", cfg.OutputPath))
	l.saveSession(ctx)
	l.report(Event{Kind: EventStateChanged})

	go l.run(ctx, det)
	return nil
}

// Stop asks the worker to finish and closes the detector. A batch already
// being merged completes first. Safe to call multiple times and before Start.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})

	l.mu.Lock()
	idle := l.state.State == StateIdle
	if idle {
		l.state.State = StateStopped
		l.state.StopReason = ReasonStopped
		l.state.StoppedAt = l.deps.Now()
		l.markDoneLocked()
	}
	l.mu.Unlock()

	l.closeDetector()
}

// Wait blocks until the worker goroutine has exited. It returns the error
// that stopped the session, or nil for a requested or idle stop.
func (l *Loop) Wait() error {
	<-l.done
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waitErr
}

// Done is closed when the loop reaches StateStopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.State
}

// Snapshot returns a copy of the session state.
func (l *Loop) Snapshot() SessionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) run(ctx context.Context, det watcher.Detector) {
	reason, err := l.watch(ctx, det)
	l.finish(ctx, reason, err)
}

// watch runs until a stop condition and returns why it stopped.
func (l *Loop) watch(ctx context.Context, det watcher.Detector) (StopReason, error) {
	if n, ok := det.(watcher.Notifier); ok {
		return l.watchEvents(ctx, det, n)
	}
	return l.watchPolling(ctx, det)
}

func (l *Loop) watchPolling(ctx context.Context, det watcher.Detector) (StopReason, error) {
	interval := l.Snapshot().Config.PollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if reason, stop, err := l.poll(ctx, det); stop {
			return reason, err
		}
		select {
		case <-ctx.Done():
			return ReasonCancelled, nil
		case <-l.stopCh:
			return ReasonStopped, nil
		case <-ticker.C:
		}
	}
}

func (l *Loop) watchEvents(ctx context.Context, det watcher.Detector, n watcher.Notifier) (StopReason, error) {
	watchdog := time.NewTicker(l.Snapshot().Config.WatchdogInterval)
	defer watchdog.Stop()

	// Tiles that arrived before the subscription settled.
	if reason, stop, err := l.poll(ctx, det); stop {
		return reason, err
	}
	for {
		select {
		case <-ctx.Done():
			return ReasonCancelled, nil
		case <-l.stopCh:
			return ReasonStopped, nil
		case <-n.Notify():
		case <-watchdog.C:
		}
		if reason, stop, err := l.poll(ctx, det); stop {
			return reason, err
		}
	}
}

// poll runs one detection step: merge a non-empty batch, or check the idle
// timeout on an empty one. stop reports whether the loop must end.
func (l *Loop) poll(ctx context.Context, det watcher.Detector) (reason StopReason, stop bool, err error) {
	select {
	case <-l.stopCh:
		return ReasonStopped, true, nil
	default:
	}

	tiles, err := det.DetectNew(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ReasonCancelled, true, nil
		}
		if mwerrors.IsCategory(err, mwerrors.CategoryWatch) {
			l.logger.Error("watched directory unavailable",
				slog.String("path", l.Snapshot().Config.WatchedDir),
				slog.String("error", err.Error()))
			return ReasonWatchError, true, err
		}
		l.recordError(err)
		l.logger.Warn("change detection failed", slog.String("error", err.Error()))
		return "", false, nil
	}

	select {
	case <-l.stopCh:
		// A closed detector reports nothing; that is not idleness.
		if len(tiles) == 0 {
			return ReasonStopped, true, nil
		}
	default:
	}

	now := l.deps.Now()
	if len(tiles) == 0 {
		l.mu.Lock()
		timeout := l.state.Config.IdleTimeout
		idle := l.state.IdleFor(now)
		l.mu.Unlock()
		if timeout > 0 && idle >= timeout {
			l.logger.Info("no new tiles, stopping",
				slog.Duration("idle", idle),
				slog.Duration("idle_timeout", timeout))
			return ReasonIdle, true, nil
		}
		return "", false, nil
	}

	l.mu.Lock()
	l.state.LastActivity = now
	l.state.Tiles += len(tiles)
	l.mu.Unlock()

	l.logger.Info("new tiles detected", slog.Int("count", len(tiles)), slog.Any("tiles", tiles))
	l.report(Event{Kind: EventTilesDetected, Tiles: tiles})
	l.processBatch(ctx, tiles)
	return "", false, nil
}

// processBatch merges tiles into the current mosaic and presents the result.
// Failures are logged and reported; the loop continues with the next batch.
func (l *Loop) processBatch(ctx context.Context, tiles []string) {
	l.mu.Lock()
	cfg := l.state.Config
	existing := l.state.CurrentMosaic
	l.mu.Unlock()

	if existing == "" {
		// No base raster: the first tile is shown as-is and becomes the mosaic.
		first := tiles[0]
		tiles = tiles[1:]
		l.setMosaic(first)
		l.present(ctx, first)
		if len(tiles) == 0 {
			l.batchDone()
			return
		}
		existing = first
	}

	started := l.deps.Now()
	out, err := l.deps.Merger.Merge(ctx, existing, tiles, cfg.OutputPath)
	elapsed := l.deps.Now().Sub(started)

	rec := store.MergeRecord{
		SessionID: l.state.ID,
		Policy:    string(cfg.Policy),
		Existing:  existing,
		Output:    cfg.OutputPath,
		Tiles:     tiles,
		Duration:  elapsed,
		Status:    store.MergeStatusOK,
	}
	if err != nil {
		rec.Status = store.MergeStatusFailed
		rec.Error = err.Error()
		l.recordHistory(ctx, rec)
		l.recordError(err)
		attrs := append([]slog.Attr{slog.String("existing", existing), slog.Int("tiles", len(tiles))},
			mwerrors.LogAttrs(err)...)
		l.logger.LogAttrs(ctx, slog.LevelError, "merge failed, batch skipped", attrs...)
		l.report(Event{Kind: EventError, Tiles: tiles, Err: err})
		return
	}
	l.recordHistory(ctx, rec)

	l.setMosaic(out)
	l.logger.Info("merged batch",
		slog.String("path", out),
		slog.Int("tiles", len(tiles)),
		slog.Duration("duration", elapsed))
	l.report(Event{Kind: EventMerged, Tiles: tiles, Output: out, Duration: elapsed})
	l.present(ctx, out)
	l.batchDone()
}

func (l *Loop) present(ctx context.Context, path string) {
	if l.deps.Presenter == nil {
		return
	}
	if err := l.deps.Presenter.Swap(ctx, path); err != nil {
		l.recordError(err)
		l.logger.Error("failed to show mosaic layer",
			slog.String("path", path),
			slog.String("error", err.Error()))
		l.report(Event{Kind: EventError, Output: path, Err: err})
	}
}

func (l *Loop) setMosaic(path string) {
	l.mu.Lock()
	l.state.CurrentMosaic = path
	l.mu.Unlock()
}

func (l *Loop) batchDone() {
	l.mu.Lock()
	l.state.Batches++
	l.mu.Unlock()
}

func (l *Loop) recordError(err error) {
	l.mu.Lock()
	l.state.Errors++
	l.state.LastError = err.Error()
	l.mu.Unlock()
}

func (l *Loop) recordHistory(ctx context.Context, rec store.MergeRecord) {
	if l.deps.History == nil {
		return
	}
	if _, err := l.deps.History.RecordMerge(context.WithoutCancel(ctx), rec); err != nil {
		l.logger.Warn("failed to record merge history", slog.String("error", err.Error()))
	}
}

func (l *Loop) finish(ctx context.Context, reason StopReason, err error) {
	l.closeDetector()

	l.mu.Lock()
	l.state.State = StateStopped
	l.state.StopReason = reason
	l.state.StoppedAt = l.deps.Now()
	if err != nil {
		l.waitErr = err
		l.state.LastError = err.Error()
	}
	snap := l.state
	l.mu.Unlock()

	l.logger.Info("session stopped",
		slog.String("reason", string(reason)),
		slog.Int("batches", snap.Batches),
		slog.Int("tiles", snap.Tiles),
		slog.Int("errors", snap.Errors))
	l.saveSession(ctx)
	l.report(Event{Kind: EventStateChanged, Err: err})

	l.mu.Lock()
	l.markDoneLocked()
	l.mu.Unlock()
}

func (l *Loop) markDoneLocked() {
	if !l.doneClosed {
		l.doneClosed = true
		close(l.done)
	}
}

func (l *Loop) closeDetector() {
	l.mu.Lock()
	det := l.detector
	l.mu.Unlock()
	if det == nil {
		return
	}
	l.closeOnce.Do(func() {
		l.closeErr = det.Close()
		if l.closeErr != nil {
			l.logger.Warn("failed to close change detector", slog.String("error", l.closeErr.Error()))
		}
	})
}

func (l *Loop) saveSession(ctx context.Context) {
	if l.deps.History == nil {
		return
	}
	snap := l.Snapshot()
	rec := store.SessionRecord{
		ID:         snap.ID,
		Name:       snap.Config.Name,
		WatchedDir: snap.Config.WatchedDir,
		BaseRaster: snap.Config.BaseRaster,
		Output:     snap.Config.OutputPath,
		Strategy:   string(snap.Config.Strategy),
		Policy:     string(snap.Config.Policy),
		State:      snap.State.String(),
		StopReason: string(snap.StopReason),
		Batches:    snap.Batches,
		Errors:     snap.Errors,
		StartedAt:  snap.StartedAt,
		StoppedAt:  snap.StoppedAt,
	}
	if err := l.deps.History.SaveSession(context.WithoutCancel(ctx), rec); err != nil {
		l.logger.Warn("failed to record session", slog.String("error", err.Error()))
	}
}

func (l *Loop) report(e Event) {
	if l.deps.Reporter == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = l.deps.Now()
	}
	e.Session = l.Snapshot()
	l.deps.Reporter.Report(e)
}

// String describes the loop for logs and status output.
func (l *Loop) String() string {
	s := l.Snapshot()
	return fmt.Sprintf("session %s (%s): %s", s.ID, s.State, s.Config.WatchedDir)
}
