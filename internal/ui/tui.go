package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/mosaicwatch/internal/monitor"
	"github.com/Aman-CERP/mosaicwatch/internal/project"
)

// TUIRenderer shows the session in a full screen bubbletea program. Layer
// mutations passed to Do run inside the program's Update, so they are
// serialized with rendering.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *mapModel
	tracker *SessionTracker
	started bool
	stopped bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails for non-terminal output.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewSessionTracker()
	model := newMapModel(tracker, cfg)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started || r.stopped {
		return nil
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// Do runs fn inside the program's update loop and waits for it to finish.
// If ctx ends after fn was handed to the program, fn may still run.
func (r *TUIRenderer) Do(ctx context.Context, fn func()) error {
	r.mu.Lock()
	p, running := r.program, r.started && !r.stopped
	r.mu.Unlock()
	if !running {
		return project.ErrDispatcherClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return project.ErrDispatcherClosed
	default:
	}

	msg := dispatchMsg{fn: fn, result: make(chan error, 1)}
	// Send returns without delivering once the program has exited.
	p.Send(msg)

	select {
	case err := <-msg.result:
		return err
	case <-r.done:
		return project.ErrDispatcherClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Report implements monitor.Reporter.
func (r *TUIRenderer) Report(e monitor.Event) {
	r.tracker.Apply(e)
	r.send(eventMsg(e))
}

// SetLayers implements Renderer.
func (r *TUIRenderer) SetLayers(layers []project.Layer) {
	r.tracker.SetLayers(layers)
	r.send(layersMsg{})
}

// send delivers msg if the program is running. It never blocks on a program
// that has not started.
func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	p, running := r.program, r.started && !r.stopped
	r.mu.Unlock()
	if !running {
		return
	}
	go p.Send(msg)
}

// Done implements Renderer.
func (r *TUIRenderer) Done() <-chan struct{} {
	return r.done
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	p, started := r.program, r.started
	r.mu.Unlock()

	if !started {
		close(r.done)
		return nil
	}

	p.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		// An unresponsive program must not hang shutdown.
		p.Kill()
	}
	return nil
}

// Message types for bubbletea.
type (
	eventMsg    monitor.Event
	layersMsg   struct{}
	tickMsg     time.Time
	dispatchMsg struct {
		fn     func()
		result chan error
	}
)

// runDispatched runs fn, turning a panic into an error so one bad mutation
// does not take down the terminal.
func runDispatched(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatched task panicked: %v", r)
		}
	}()
	fn()
	return nil
}

// mapModel is the bubbletea model of the session view.
type mapModel struct {
	tracker    *SessionTracker
	title      string
	watchedDir string
	width      int
	height     int
	quitting   bool
	spinner    spinner.Model
	idleBar    progress.Model
	styles     Styles
	now        func() time.Time
}

func newMapModel(tracker *SessionTracker, cfg Config) *mapModel {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	bar := progress.New(
		progress.WithSolidFill(ColorAmber),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)

	return &mapModel{
		tracker:    tracker,
		title:      cfg.Title,
		watchedDir: cfg.WatchedDir,
		width:      80,
		height:     24,
		spinner:    s,
		idleBar:    bar,
		styles:     DefaultStyles(),
		now:        time.Now,
	}
}

// Init implements tea.Model.
func (m *mapModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *mapModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.idleBar.Width = max(msg.Width-30, 10)

	case dispatchMsg:
		msg.result <- runDispatched(msg.fn)

	case eventMsg, layersMsg:
		// State lives in the tracker; receiving the message triggers a render.

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m *mapModel) View() string {
	if m.quitting {
		return "Stopping...\n"
	}

	width := max(m.width-4, 40)
	stats := m.tracker.Stats()

	sections := []string{
		m.renderState(stats),
		m.renderCounters(stats),
	}
	if idle := m.renderIdle(stats); idle != "" {
		sections = append(sections, idle)
	}
	sections = append(sections,
		m.renderDivider(width),
		m.renderLayers(stats, width),
		m.renderDivider(width),
		m.renderActivity(width),
	)

	title := m.title
	if m.watchedDir != "" {
		title = fmt.Sprintf("%s • %s", m.title, m.watchedDir)
	}
	panel := lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		m.styles.Panel.Width(width).Render(strings.Join(sections, "\n")),
	)
	return panel + "\n" + m.renderStatusBar(stats)
}

func (m *mapModel) renderState(stats Stats) string {
	s := stats.Session
	var icon string
	var style lipgloss.Style
	switch s.State {
	case monitor.StateWatching:
		icon, style = m.spinner.View(), m.styles.OK
	case monitor.StateStopped:
		icon, style = "■", m.styles.Warning
	default:
		icon, style = "○", m.styles.Dim
	}
	line := style.Render(icon + " " + s.State.String())
	if s.StopReason != "" {
		line += m.styles.Dim.Render(" (" + string(s.StopReason) + ")")
	}
	if s.CurrentMosaic != "" {
		line += m.styles.Label.Render("  mosaic: ") + m.styles.Value.Render(filepath.Base(s.CurrentMosaic))
	}
	return line
}

func (m *mapModel) renderCounters(stats Stats) string {
	s := stats.Session
	parts := []string{
		m.styles.Label.Render("batches ") + m.styles.Value.Render(fmt.Sprint(s.Batches)),
		m.styles.Label.Render("tiles ") + m.styles.Value.Render(fmt.Sprint(s.Tiles)),
	}
	if stats.MergeSamples > 0 {
		parts = append(parts, m.styles.Label.Render("last merge ")+
			m.styles.Value.Render(stats.LastMerge.Round(time.Millisecond).String())+
			" "+m.styles.Sparkline.Render(m.tracker.RenderSparkline(20)))
	}
	return strings.Join(parts, m.styles.Dim.Render("  •  "))
}

// renderIdle shows how close the session is to its idle stop.
func (m *mapModel) renderIdle(stats Stats) string {
	s := stats.Session
	timeout := s.Config.IdleTimeout
	if s.State != monitor.StateWatching || timeout <= 0 {
		return ""
	}
	idle := s.IdleFor(m.now())
	ratio := min(float64(idle)/float64(timeout), 1)
	return m.idleBar.ViewAs(ratio) + "  " +
		m.styles.Label.Render(fmt.Sprintf("idle %s / %s", formatDuration(idle), formatDuration(timeout)))
}

func (m *mapModel) renderLayers(stats Stats, width int) string {
	lines := []string{m.styles.Title.Render("Layers")}
	if len(stats.Layers) == 0 {
		return strings.Join(append(lines, m.styles.Dim.Render("  (none)")), "\n")
	}
	mosaic := stats.Session.CurrentMosaic
	for _, l := range stats.Layers {
		text := fmt.Sprintf("  %s  %dx%d, %d band(s)  %s", l.Name, l.Width, l.Height, l.Bands, l.Source)
		text = truncate(text, width-2)
		if l.Source == mosaic {
			lines = append(lines, m.styles.ActiveLayer.Render(text))
		} else {
			lines = append(lines, m.styles.Layer.Render(text))
		}
	}
	return strings.Join(lines, "\n")
}

func (m *mapModel) renderActivity(width int) string {
	rows := max(m.height-16, 3)
	lines := []string{m.styles.Title.Render("Activity")}
	recent := m.tracker.Recent(rows)
	if len(recent) == 0 {
		lines = append(lines, m.styles.Dim.Render("  waiting for tiles..."))
	}
	for _, a := range recent {
		text := truncate(a.Time.Format("15:04:05")+"  "+a.Text, width-2)
		if a.IsError {
			lines = append(lines, m.styles.Error.Render(text))
		} else {
			lines = append(lines, m.styles.Label.Render(text))
		}
	}
	return strings.Join(lines, "\n")
}

func (m *mapModel) renderDivider(width int) string {
	return m.styles.Border.Render(strings.Repeat("─", width))
}

func (m *mapModel) renderStatusBar(stats Stats) string {
	hint := m.styles.Dim.Render("q to stop")
	if n := stats.Session.Errors; n > 0 {
		return m.styles.Error.Render(fmt.Sprintf("✗ %d %s", n, plural(n, "error", "errors"))) +
			m.styles.Dim.Render("  │  ") + hint
	}
	return hint
}

// truncate shortens s to width runes, keeping the end where file names live.
func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 3 || len(r) <= width {
		return s
	}
	return "..." + string(r[len(r)-width+3:])
}
