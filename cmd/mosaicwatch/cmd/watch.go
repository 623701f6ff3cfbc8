package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/mosaicwatch/internal/config"
	"github.com/Aman-CERP/mosaicwatch/internal/control"
	"github.com/Aman-CERP/mosaicwatch/internal/merge"
	"github.com/Aman-CERP/mosaicwatch/internal/monitor"
	"github.com/Aman-CERP/mosaicwatch/internal/preflight"
	"github.com/Aman-CERP/mosaicwatch/internal/profiling"
	"github.com/Aman-CERP/mosaicwatch/internal/project"
	"github.com/Aman-CERP/mosaicwatch/internal/session"
	"github.com/Aman-CERP/mosaicwatch/internal/store"
	"github.com/Aman-CERP/mosaicwatch/internal/ui"
	"github.com/Aman-CERP/mosaicwatch/internal/watcher"
)

// DefaultOutputName is the mosaic written into the watched folder when
// --output is not given.
const DefaultOutputName = "mosaic.tif"

type watchOptions struct {
	base         string
	output       string
	strategy     string
	policy       string
	pollInterval string
	idleTimeout  string
	name         string
	skipCheck    bool
	plain        bool
}

func newWatchCmd() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch DIR",
		Short: "Watch a folder and merge new tiles into a mosaic",
		Long: `Watch DIR for new raster tiles and merge every batch into the output mosaic.

Each merge result becomes the base of the next batch, and the map project
always holds exactly one "current mosaic" layer showing the latest output.

Strategies:
  polling  Scan the folder every --poll-interval and stop after --idle-timeout
           without new tiles. Requires --base.
  events   React to file system notifications. Without --base the first
           tile becomes the mosaic.
  auto     Events where supported, polling otherwise.

Merge policies:
  warp       Union extent of all inputs, newest pixels win (default)
  overwrite  Newest tile's bands written over the base at the origin

The session can be saved under a name with --name and started again later
with 'mosaicwatch resume NAME'.`,
		Example: `  # Poll a drone drop folder, stop after 10 minutes without tiles
  mosaicwatch watch ./incoming --base base.tif --output mosaic.tif --idle-timeout 10m

  # React to file events and remember the session
  mosaicwatch watch ./incoming --strategy events --output mosaic.tif --name survey

  # Plain log-style output (no TUI)
  mosaicwatch watch ./incoming --base base.tif --plain`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.base, "base", "b", "", "Existing raster the first batch merges into")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output mosaic path (default: DIR/"+DefaultOutputName+")")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "", "Change detection: polling, events or auto")
	cmd.Flags().StringVar(&opts.policy, "policy", "", "Merge policy: warp or overwrite")
	cmd.Flags().StringVar(&opts.pollInterval, "poll-interval", "", "Polling interval (e.g. 5s)")
	cmd.Flags().StringVar(&opts.idleTimeout, "idle-timeout", "", "Stop after this long without new tiles (0 disables)")
	cmd.Flags().StringVar(&opts.name, "name", "", "Save the session under NAME for 'mosaicwatch resume'")
	cmd.Flags().BoolVar(&opts.skipCheck, "skip-check", false, "Skip pre-flight system checks")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain text output instead of the TUI")

	return cmd
}

func runWatch(cmd *cobra.Command, dir string, opts watchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	watchedDir := absPath(dir)
	output := opts.output
	if output == "" {
		output = filepath.Join(watchedDir, DefaultOutputName)
	}
	paths := session.Paths{
		WatchedDir: watchedDir,
		BaseRaster: absPath(opts.base),
		OutputPath: absPath(output),
	}

	// Flags are recorded as profile overrides so resume reproduces them.
	profile := &session.Session{
		Strategy:     opts.strategy,
		Policy:       opts.policy,
		PollInterval: opts.pollInterval,
		IdleTimeout:  opts.idleTimeout,
	}

	var mgr *session.Manager
	if opts.name != "" {
		mgr, err = getSessionManager(cfg)
		if err != nil {
			return err
		}
		saved, err := mgr.Open(opts.name, paths)
		if err != nil {
			return err
		}
		saved.BaseRaster = paths.BaseRaster
		saved.Strategy = profile.Strategy
		saved.Policy = profile.Policy
		saved.PollInterval = profile.PollInterval
		saved.IdleTimeout = profile.IdleTimeout
		profile = saved
	} else {
		profile.WatchedDir = paths.WatchedDir
		profile.BaseRaster = paths.BaseRaster
		profile.OutputPath = paths.OutputPath
	}

	wc, err := profile.WatchConfig(cfg)
	if err != nil {
		return err
	}

	run := sessionRun{
		cfg:       cfg,
		watch:     wc,
		skipCheck: opts.skipCheck,
		plain:     opts.plain,
	}
	if mgr != nil {
		run.profile = profile
		run.profiles = mgr
	}
	return run.execute(cmd)
}

// sessionRun wires one monitor session: project store, presenter, renderer,
// merge engine and control socket.
type sessionRun struct {
	cfg       *config.Config
	watch     monitor.WatchConfig
	skipCheck bool
	plain     bool

	// Saved profile to update when the run ends. Optional.
	profile  *session.Session
	profiles *session.Manager
}

func (r sessionRun) execute(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := slog.Default()

	if !r.skipCheck {
		if err := runPreflight(ctx, r.cfg, r.watch.Strategy); err != nil {
			return err
		}
	}

	st, err := store.Open(r.cfg.Project.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctlCfg := control.FromConfig(r.cfg.Control)
	if err := ctlCfg.EnsureDir(); err != nil {
		return err
	}
	pid := control.NewPIDFile(ctlCfg.PIDPath)
	if err := pid.Acquire(); err != nil {
		return fmt.Errorf("cannot start session: %w", err)
	}
	defer func() { _ = pid.Release() }()

	sessionID := uuid.New().String()
	proj := project.New(project.Options{Store: st, SessionID: sessionID, Logger: logger})
	if err := proj.Load(ctx); err != nil {
		return err
	}

	title := r.watch.Name
	if title == "" {
		title = "mosaicwatch"
	}
	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(r.plain || r.cfg.UI.Plain),
		ui.WithNoColor(noColor || r.cfg.UI.NoColor || ui.DetectNoColor()),
		ui.WithTitle(title),
		ui.WithWatchedDir(r.watch.WatchedDir),
	))
	proj.OnChange(renderer.SetLayers)
	if err := renderer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start display: %w", err)
	}
	defer func() { _ = renderer.Stop() }()
	renderer.SetLayers(proj.Layers())

	presenter := project.NewPresenter(proj, renderer, project.PresenterOptions{Logger: logger})
	if ref, ok, err := presenter.AdoptLatest(ctx); err != nil {
		logger.Warn("failed to adopt previous mosaic layer", slog.String("error", err.Error()))
	} else if ok {
		logger.Debug("adopted previous mosaic layer",
			slog.String("layer_id", ref.ID),
			slog.String("path", ref.Source))
	}

	merger, err := merge.FromConfig(r.cfg.Merge, r.watch.Policy, logger)
	if err != nil {
		return err
	}

	loop := monitor.New(r.watch, monitor.Deps{
		Merger:    merger,
		Presenter: presenter,
		History:   st,
		Reporter:  withHeapSampling(renderer, profileSession),
		SessionID: sessionID,
		Logger:    logger,
	})

	server := control.NewServer(ctlCfg, logger)
	server.SetHandler(control.LoopHandler{Loop: loop, Project: proj})

	g, gctx := errgroup.WithContext(ctx)
	if err := loop.Start(gctx); err != nil {
		return err
	}

	g.Go(func() error {
		if err := loop.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := server.ListenAndServe(gctx); err != nil && !errors.Is(err, context.Canceled) {
			loop.Stop()
			return err
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-renderer.Done():
			// The user quit the TUI.
			loop.Stop()
			<-loop.Done()
		case <-loop.Done():
		case <-gctx.Done():
			loop.Stop()
			<-loop.Done()
		}
		_ = server.Close()
		return nil
	})

	runErr := g.Wait()
	state := loop.Snapshot()
	logger.Info("session ended",
		slog.String("session", state.ID),
		slog.String("reason", string(state.StopReason)),
		slog.Int("batches", state.Batches),
		slog.Int("tiles", state.Tiles),
		slog.Int("errors", state.Errors))

	if r.profile != nil && r.profiles != nil {
		r.profile.RecordRun(state)
		if err := r.profiles.Save(r.profile); err != nil {
			logger.Warn("failed to save session profile",
				slog.String("session", r.profile.Name),
				slog.String("error", err.Error()))
		}
	}
	if profileSession != nil && profileSession.Enabled(profiling.KindHeap) {
		logger.Info("peak heap during session",
			slog.String("heap", profiling.FormatBytes(profileSession.PeakHeap())))
	}
	return runErr
}

// withHeapSampling samples the heap after every merge when heap profiling
// is on, so the peak reflects merge buffers rather than the idle process.
func withHeapSampling(r monitor.Reporter, prof *profiling.Session) monitor.Reporter {
	if prof == nil || !prof.Enabled(profiling.KindHeap) {
		return r
	}
	return monitor.ReporterFunc(func(e monitor.Event) {
		if e.Kind == monitor.EventMerged {
			prof.SampleHeap()
		}
		r.Report(e)
	})
}

// runPreflight runs the system checks once per installed version.
func runPreflight(ctx context.Context, cfg *config.Config, strategy watcher.Strategy) error {
	dataDir := config.DataDir()
	if !preflight.NeedsCheck(dataDir) {
		return nil
	}

	checker := preflight.New(preflight.WithOutput(io.Discard))
	results := checker.RunAll(ctx, preflight.Target{
		DataDir:      dataDir,
		DatabasePath: cfg.Project.DatabasePath,
		Strategy:     strategy,
	})
	if checker.HasCriticalFailures(results) {
		slog.Error("system check failed", slog.String("summary", string(checker.SummaryStatus(results))))
		return fmt.Errorf("system check failed; run 'mosaicwatch doctor' for details")
	}
	if err := preflight.MarkPassed(dataDir); err != nil {
		slog.Debug("failed to mark preflight as passed", slog.String("error", err.Error()))
	}
	return nil
}

func absPath(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
