// internal/tui/app.go
//
// The meeting view for quorum. It uses bubbletea's Elm architecture:
//
// 1. Model: Your application state
// 2. Update: A function that updates state based on messages
// 3. View: A function that renders state to a string
//
// Events arrive from the stream (or a replay) through an inbox channel and
// are folded into the deliberation session; every update pass re-renders the
// session's render model into the viewport.

package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/quorumlabs/quorum/internal/config"
	"github.com/quorumlabs/quorum/internal/control"
	"github.com/quorumlabs/quorum/internal/deliberation"
	"github.com/quorumlabs/quorum/internal/logbook"
	"github.com/quorumlabs/quorum/internal/replay"
	"github.com/quorumlabs/quorum/internal/stream"
)

const (
	tickInterval = time.Second
	inboxSize    = 256
)

// Messages folded into the Update loop.

type streamEventMsg struct{ raw []byte }

type streamResumeMsg struct{ info deliberation.ResumeInfo }

type streamStoppedMsg struct{ err error }

type replayDoneMsg struct{ err error }

// phaseTickMsg drives elapsed time, message rotation, and auto-reveal. It
// carries the tracker epoch it was scheduled under; a tick from a superseded
// epoch is discarded without touching state.
type phaseTickMsg struct{ epoch int }

type controlResultMsg struct {
	action string
	err    error
}

type exportResultMsg struct {
	path string
	err  error
}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithReplay runs the app against a recording instead of a live connection.
func WithReplay(rec *replay.Recording, instant bool) AppOption {
	return func(a *App) {
		a.recording = rec
		a.replayInstant = instant
	}
}

// WithClock overrides the wall clock, for deterministic tests.
func WithClock(now func() time.Time) AppOption {
	return func(a *App) {
		if now != nil {
			a.now = now
		}
	}
}

// App is the top-level bubbletea model for a meeting.
type App struct {
	cfg     *config.Config
	logbook *logbook.Logbook
	session *deliberation.Session
	control *control.Client
	stream  *stream.Client

	inbox      chan tea.Msg
	streamStop context.CancelFunc

	recording     *replay.Recording
	replayInstant bool
	replayDone    bool
	recorder      *replay.Recorder

	spinner  spinner.Model
	viewport viewport.Model
	ready    bool
	width    int
	height   int

	selection int    // group the card-mode and reveal keys act on
	follow    bool   // keep viewport pinned to the newest group
	showLog   bool   // render the logbook tail below the transcript
	statusMsg string
	paused    bool
	quitting  bool

	now func() time.Time
}

// NewApp builds the meeting app for one session. The project directory must
// already have been initialized (config.Init).
func NewApp(cfg *config.Config, sessionID string, opts ...AppOption) (*App, error) {
	lb, err := logbook.New(filepath.Join(cfg.LogsDir(), sessionID+".log"))
	if err != nil {
		lb = nil // degraded but usable; the session logger goes inert
	}

	session := deliberation.NewSession(sessionID, deliberation.SessionConfig{
		Tracker: deliberation.TrackerConfig{
			SelectionGrace:  cfg.SelectionGrace(),
			MessageInterval: cfg.MessageInterval(),
		},
		Window: deliberation.WindowConfig{
			InitialReveal:      cfg.Project.Visibility.InitialReveal,
			RevealStep:         cfg.Project.Visibility.RevealStep,
			AutoRevealInterval: cfg.AutoRevealInterval(),
			LazyThreshold:      cfg.Project.Visibility.LazyThreshold,
			RecentWindow:       cfg.Project.Visibility.RecentWindow,
		},
	}, lb.Component("core"))

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = spinnerStyle

	app := &App{
		cfg:     cfg,
		logbook: lb,
		session: session,
		inbox:   make(chan tea.Msg, inboxSize),
		spinner: sp,
		follow:  true,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(app)
	}

	if app.recording == nil {
		ctl, err := control.New(cfg.ServerURL(), sessionID, control.WithLogger(lb.Component("control")))
		if err != nil {
			return nil, err
		}
		app.control = ctl

		sc, err := stream.New(stream.Config{
			ServerURL: cfg.ServerURL(),
			SessionID: sessionID,
			Marker:    session.ResumeMarker,
			OnEvent: func(raw []byte) {
				frame := append([]byte(nil), raw...)
				app.inbox <- streamEventMsg{raw: frame}
			},
			OnResume: func(info deliberation.ResumeInfo) {
				app.inbox <- streamResumeMsg{info: info}
			},
			Logger:      lb.Component("stream"),
			BackoffBase: cfg.ReconnectBase(),
			BackoffMax:  cfg.ReconnectMax(),
		})
		if err != nil {
			return nil, err
		}
		app.stream = sc
	}

	lb.Info("Meeting opened · session %s", sessionID)
	return app, nil
}

// Session exposes the deliberation core, for export and tests.
func (a *App) Session() *deliberation.Session {
	return a.session
}

// SetRecorder mirrors every received event frame into a JSONL recorder.
func (a *App) SetRecorder(r *replay.Recorder) {
	a.recorder = r
}

// Init starts the transport (or replay), the spinner, the inbox pump, and the
// phase tick.
func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.spinner.Tick, a.awaitInbox(), a.tickCmd()}
	if a.recording != nil {
		cmds = append(cmds, a.startReplay())
	} else {
		cmds = append(cmds, a.startStream())
	}
	return tea.Batch(cmds...)
}

func (a *App) startStream() tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	a.streamStop = cancel
	client := a.stream
	inbox := a.inbox
	return func() tea.Msg {
		err := client.Run(ctx)
		inbox <- streamStoppedMsg{err: err}
		return nil
	}
}

func (a *App) startReplay() tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	a.streamStop = cancel
	rec := a.recording
	inbox := a.inbox
	instant := a.replayInstant
	return func() tea.Msg {
		err := replay.Play(ctx, rec, func(raw []byte) {
			frame := append([]byte(nil), raw...)
			inbox <- streamEventMsg{raw: frame}
		}, replay.PlayOptions{Instant: instant})
		inbox <- replayDoneMsg{err: err}
		return nil
	}
}

// awaitInbox hands the next transport message to Update. It re-arms itself
// after every delivery.
func (a *App) awaitInbox() tea.Cmd {
	inbox := a.inbox
	return func() tea.Msg {
		return <-inbox
	}
}

func (a *App) tickCmd() tea.Cmd {
	epoch := a.session.Tracker().Epoch()
	return tea.Tick(tickInterval, func(time.Time) tea.Msg {
		return phaseTickMsg{epoch: epoch}
	})
}

// Update is the single state-transition function.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.resize(m.Width, m.Height)
		a.refreshViewport()
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(m)

	case streamEventMsg:
		if a.recorder != nil {
			a.recorder.Record(m.raw)
		}
		if a.session.Ingest(m.raw, a.now()) {
			a.refreshViewport()
		}
		return a, a.awaitInbox()

	case streamResumeMsg:
		a.session.OnReconnect(m.info)
		if m.info.Continuous {
			a.statusMsg = "Reconnected"
		} else {
			a.statusMsg = "Reconnected · stream had a gap"
		}
		a.refreshViewport()
		return a, a.awaitInbox()

	case streamStoppedMsg:
		if m.err != nil && m.err != stream.ErrClosed && m.err != context.Canceled {
			a.statusMsg = fmt.Sprintf("Stream stopped: %v", m.err)
			a.logbook.Warn("stream stopped: %v", m.err)
		}
		return a, a.awaitInbox()

	case replayDoneMsg:
		a.replayDone = true
		if m.err != nil && m.err != context.Canceled {
			a.statusMsg = fmt.Sprintf("Replay ended early: %v", m.err)
		} else {
			a.statusMsg = "Replay finished"
		}
		a.refreshViewport()
		return a, a.awaitInbox()

	case phaseTickMsg:
		tracker := a.session.Tracker()
		if !tracker.ValidTick(m.epoch) {
			// A phase transition superseded this tick; schedule a fresh
			// one under the current epoch.
			return a, a.tickCmd()
		}
		a.session.Advance(a.now())
		a.refreshViewport()
		if tracker.Phase().IsTerminal() {
			return a, nil // terminal phases stop the clock
		}
		return a, a.tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(m)
		return a, cmd

	case controlResultMsg:
		a.applyControlResult(m)
		return a, nil

	case exportResultMsg:
		if m.err != nil {
			a.statusMsg = fmt.Sprintf("Export failed: %v", m.err)
		} else {
			a.statusMsg = fmt.Sprintf("Exported to %s", m.path)
		}
		return a, nil
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		a.quitting = true
		a.shutdown()
		return a, tea.Quit

	case "up", "k":
		a.follow = false
		a.viewport.LineUp(1)
		return a, nil
	case "down", "j":
		a.viewport.LineDown(1)
		if a.viewport.AtBottom() {
			a.follow = true
		}
		return a, nil
	case "pgup":
		a.follow = false
		a.viewport.ViewUp()
		return a, nil
	case "pgdown":
		a.viewport.ViewDown()
		if a.viewport.AtBottom() {
			a.follow = true
		}
		return a, nil
	case "end", "G":
		a.follow = true
		a.viewport.GotoBottom()
		return a, nil

	case "[":
		if a.selection > 0 {
			a.selection--
			a.refreshViewport()
		}
		return a, nil
	case "]":
		if a.selection < len(a.session.Render().Groups)-1 {
			a.selection++
			a.refreshViewport()
		}
		return a, nil

	case "m":
		// Reveal more contributions in the selected round group.
		if round, ok := a.selectedRound(); ok {
			a.session.RequestMore(round)
			a.refreshViewport()
		}
		return a, nil

	case "v", "tab":
		a.session.ToggleCardMode(a.selection)
		a.refreshViewport()
		return a, nil

	case "x", "esc":
		a.session.DismissGap()
		a.refreshViewport()
		return a, nil

	case "l":
		a.showLog = !a.showLog
		a.resize(a.width, a.height)
		a.refreshViewport()
		return a, nil

	case "p":
		return a, a.controlCmd("pause", func(ctx context.Context) error {
			return a.control.Pause(ctx)
		})
	case "r":
		return a, a.controlCmd("resume", func(ctx context.Context) error {
			return a.control.Resume(ctx)
		})
	case "t":
		return a, a.controlCmd("terminate", func(ctx context.Context) error {
			return a.control.Terminate(ctx, "stopped from terminal")
		})
	case "e":
		return a, a.exportCmd()
	}
	return a, nil
}

func (a *App) controlCmd(action string, call func(context.Context) error) tea.Cmd {
	if a.control == nil {
		a.statusMsg = "Session control is unavailable during replay"
		return nil
	}
	a.statusMsg = fmt.Sprintf("Sending %s…", action)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return controlResultMsg{action: action, err: call(ctx)}
	}
}

func (a *App) applyControlResult(m controlResultMsg) {
	if m.err != nil {
		a.statusMsg = fmt.Sprintf("%s failed: %v", m.action, m.err)
		a.logbook.Warn("%s failed: %v", m.action, m.err)
		return
	}
	switch m.action {
	case "pause":
		a.paused = true
		a.statusMsg = "Paused · deliberation will idle after the current turn"
	case "resume":
		a.paused = false
		a.statusMsg = "Resumed"
	case "terminate":
		a.statusMsg = "Termination requested"
	}
	a.logbook.Info("control %s succeeded", m.action)
}

func (a *App) exportCmd() tea.Cmd {
	if a.control == nil {
		return a.exportLocalCmd()
	}
	ctl := a.control
	dir := a.cfg.ExportsDir()
	sessionID := a.session.ID()
	a.statusMsg = "Exporting transcript…"
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		transcript, err := ctl.Export(ctx)
		if err != nil {
			return exportResultMsg{err: err}
		}
		path := filepath.Join(dir, fmt.Sprintf("%s-%s.json", sessionID, time.Now().Format("20060102-150405")))
		data, err := json.MarshalIndent(transcript, "", "  ")
		if err != nil {
			return exportResultMsg{err: err}
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return exportResultMsg{err: err}
		}
		return exportResultMsg{path: path}
	}
}

// exportLocalCmd writes what this client buffered; used in replay mode where
// there is no service to ask.
func (a *App) exportLocalCmd() tea.Cmd {
	dir := a.cfg.ExportsDir()
	sessionID := a.session.ID()
	events := a.session.Events()
	return func() tea.Msg {
		out := control.Transcript{
			SessionID:  sessionID,
			ExportedAt: time.Now().UTC().Format(time.RFC3339),
		}
		for _, ev := range events {
			frame, err := json.Marshal(map[string]any{
				"event_type": ev.WireType,
				"timestamp":  ev.RawTimestamp,
				"data":       ev.Payload,
			})
			if err != nil {
				continue
			}
			out.Events = append(out.Events, frame)
		}
		path := filepath.Join(dir, fmt.Sprintf("%s-%s.json", sessionID, time.Now().Format("20060102-150405")))
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return exportResultMsg{err: err}
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return exportResultMsg{err: err}
		}
		return exportResultMsg{path: path}
	}
}

func (a *App) selectedRound() (int, bool) {
	model := a.session.Render()
	if a.selection >= len(model.Groups) {
		return 0, false
	}
	view := model.Groups[a.selection]
	if view.Kind != deliberation.GroupRound {
		return 0, false
	}
	return view.Round, true
}

func (a *App) shutdown() {
	if a.streamStop != nil {
		a.streamStop()
	}
	if a.stream != nil {
		a.stream.Close()
	}
	a.logbook.Info("Meeting closed")
}

func (a *App) resize(width, height int) {
	a.width = width
	a.height = height
	bodyHeight := height - chromeHeight(a.width)
	if a.showLog {
		bodyHeight -= logPanelLines + 1
	}
	if bodyHeight < 3 {
		bodyHeight = 3
	}
	if !a.ready {
		a.viewport = viewport.New(width, bodyHeight)
		a.ready = true
	} else {
		a.viewport.Width = width
		a.viewport.Height = bodyHeight
	}
}

// refreshViewport re-renders the meeting content. Keeping all rendering off
// the hot Ingest path means a burst of events costs one re-render per Update,
// not per event.
func (a *App) refreshViewport() {
	if !a.ready {
		return
	}
	model := a.session.Render()
	a.clampSelection(len(model.Groups))
	a.viewport.SetContent(renderMeeting(model, a.viewport.Width, a.selection))
	if a.follow {
		a.viewport.GotoBottom()
	}
}

func (a *App) clampSelection(groups int) {
	if groups == 0 {
		a.selection = 0
		return
	}
	if a.selection >= groups {
		a.selection = groups - 1
	}
}

// View assembles header, transcript viewport, phase banner, and footer.
func (a *App) View() string {
	if a.quitting {
		return "Leaving the meeting.\n"
	}
	if !a.ready {
		return "Joining the meeting…"
	}
	model := a.session.Render()

	header := renderHeader(model, a.width, a.replayMode(), a.paused)
	banner := renderPhaseBanner(model.Phase, a.spinner.View(), a.width)
	gap := renderGapBanner(model.Gap, a.width)
	footer := renderFooter(a.statusMsg, a.width)

	sections := []string{header, a.viewport.View(), banner}
	if gap != "" {
		sections = append(sections, gap)
	}
	if a.showLog {
		sections = append(sections, renderLogPanel(a.logbook.Tail(logPanelLines), a.width))
	}
	sections = append(sections, footer)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (a *App) replayMode() bool {
	return a.recording != nil
}
