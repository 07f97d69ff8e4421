package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	strix "github.com/strixvm/strix-go"
	"github.com/strixvm/strix-go/engine"
	"github.com/strixvm/strix-go/inspector"
	"github.com/strixvm/strix-go/vm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	pausedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	outboundStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// debugTarget owns the context goroutine. The TUI goroutine never touches
// the context: commands travel through the commands channel and are drained
// by the pause driver between Ticks; traffic and pause events come back on
// the session's channels.
type debugTarget struct {
	script   string
	commands chan inspector.Message
	traffic  <-chan []byte
	events   <-chan strix.PauseEvent
	done     chan error
}

func startDebugTarget(enginePath, scriptPath string, asModule bool, log *zap.Logger) (*debugTarget, error) {
	dt := &debugTarget{
		script:   filepath.ToSlash(scriptPath),
		commands: make(chan inspector.Message, 32),
		done:     make(chan error, 1),
	}

	source, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}

	ready := make(chan error, 1)
	go func() {
		ctx := context.Background()

		eng, err := engine.NewFromFile(ctx, enginePath, &engine.Config{
			Logger: log,
			FS:     os.DirFS("."),
		})
		if err != nil {
			ready <- err
			return
		}
		defer eng.Close(ctx)

		rt := vm.NewRuntime(eng, vm.WithLogger(log))
		defer rt.Close()

		jsctx, err := rt.NewContext()
		if err != nil {
			ready <- err
			return
		}

		session, err := inspector.Attach(jsctx)
		if err != nil {
			ready <- err
			return
		}
		dt.traffic = session.Notifications()
		dt.events = session.Events()

		driver := inspector.NewPauseDriver(session)
		driver.OnTick = func(d *inspector.PauseDriver) {
			for {
				select {
				case m := <-dt.commands:
					if _, err := d.Send(m); err != nil {
						log.Warn("debug command rejected", zap.Error(err))
					}
				default:
					return
				}
			}
		}

		// Arm the debugger before the script starts: domain on,
		// breakpoints active, one breakpoint on the first line.
		for _, m := range []inspector.Message{
			inspector.EnableDebugger(),
			inspector.SetBreakpointsActive(true),
			inspector.SetBreakpointByURL(dt.script, 0),
		} {
			if _, err := session.SendCommand(m); err != nil {
				ready <- err
				return
			}
		}
		ready <- nil

		var runErr error
		if asModule {
			runErr = jsctx.EvaluateModuleSource(string(source), dt.script)
		} else {
			_, runErr = jsctx.EvaluateScript(string(source), vm.WithSourceURL(dt.script))
		}

		// Closing the session closes its channels, which tells the TUI no
		// further traffic is coming.
		_ = session.Detach()
		dt.done <- runErr
	}()

	if err := <-ready; err != nil {
		return nil, err
	}
	return dt, nil
}

// submit hands a command to the context goroutine without blocking the TUI.
func (dt *debugTarget) submit(m inspector.Message) bool {
	select {
	case dt.commands <- m:
		return true
	default:
		return false
	}
}

type trafficMsg []byte
type pauseMsg strix.PauseEvent
type doneMsg struct{ err error }
type channelClosedMsg struct{}

func waitTraffic(ch <-chan []byte) tea.Cmd {
	return func() tea.Msg {
		raw, ok := <-ch
		if !ok {
			return channelClosedMsg{}
		}
		return trafficMsg(raw)
	}
}

func waitEvent(ch <-chan strix.PauseEvent) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return channelClosedMsg{}
		}
		return pauseMsg(e)
	}
}

func waitDone(ch chan error) tea.Cmd {
	return func() tea.Msg {
		return doneMsg{err: <-ch}
	}
}

type debugModel struct {
	target *debugTarget

	view  viewport.Model
	input textinput.Model
	lines []string

	paused   bool
	finished bool
	result   error
	sized    bool
}

func newDebugModel(target *debugTarget) *debugModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "step | resume | bp <line> | eval <expr> | raw <method>"
	ti.Focus()

	return &debugModel{
		target: target,
		view:   viewport.New(80, 20),
		input:  ti,
	}
}

func (m *debugModel) Init() tea.Cmd {
	return tea.Batch(
		waitTraffic(m.target.traffic),
		waitEvent(m.target.events),
		waitDone(m.target.done),
	)
}

func (m *debugModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.view.Width = msg.Width
		m.view.Height = msg.Height - 5
		if m.view.Height < 3 {
			m.view.Height = 3
		}
		m.sized = true
		m.refresh()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line != "" {
				m.dispatch(line)
			}
			return m, nil
		}

	case trafficMsg:
		m.append("<- " + string(msg))
		return m, waitTraffic(m.target.traffic)

	case pauseMsg:
		switch strix.PauseEvent(msg) {
		case strix.Paused:
			m.paused = true
			m.append("** paused")
		case strix.Resumed:
			m.paused = false
			m.append("** resumed")
		}
		return m, waitEvent(m.target.events)

	case doneMsg:
		m.finished = true
		m.result = msg.err
		if msg.err != nil {
			m.append(errorStyle.Render("** script failed: " + msg.err.Error()))
		} else {
			m.append("** script finished")
		}
		return m, nil

	case channelClosedMsg:
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// dispatch parses one input line into a protocol command.
func (m *debugModel) dispatch(line string) {
	fields := strings.Fields(line)
	var cmd inspector.Message

	switch fields[0] {
	case "s", "step":
		cmd = inspector.StepNext()
	case "si":
		cmd = inspector.StepInto()
	case "so":
		cmd = inspector.StepOut()
	case "r", "resume":
		cmd = inspector.Resume()
	case "pause":
		cmd = inspector.Pause()
	case "bp":
		if len(fields) != 2 {
			m.append(errorStyle.Render("usage: bp <line>"))
			return
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			m.append(errorStyle.Render("bad line number: " + fields[1]))
			return
		}
		cmd = inspector.SetBreakpointByURL(m.target.script, n)
	case "eval":
		if len(fields) < 2 {
			m.append(errorStyle.Render("usage: eval <expr>"))
			return
		}
		cmd = inspector.EvaluateOnCallFrame("frame-0", strings.Join(fields[1:], " "))
	case "raw":
		if len(fields) != 2 {
			m.append(errorStyle.Render("usage: raw <method>"))
			return
		}
		cmd = inspector.Message{Method: fields[1]}
	default:
		m.append(errorStyle.Render("unknown command: " + fields[0]))
		return
	}

	if !m.target.submit(cmd) {
		m.append(errorStyle.Render("command queue full"))
		return
	}
	m.append(outboundStyle.Render("-> " + cmd.Method))
}

func (m *debugModel) append(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > 500 {
		m.lines = m.lines[len(m.lines)-500:]
	}
	m.refresh()
}

func (m *debugModel) refresh() {
	m.view.SetContent(strings.Join(m.lines, "\n"))
	m.view.GotoBottom()
}

func (m *debugModel) View() string {
	if !m.sized {
		return "Attaching inspector..."
	}

	status := runningStyle.Render("running")
	switch {
	case m.finished && m.result != nil:
		status = errorStyle.Render("failed")
	case m.finished:
		status = runningStyle.Render("finished")
	case m.paused:
		status = pausedStyle.Render("paused")
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("strix debugger"))
	b.WriteString(" ")
	b.WriteString(m.target.script)
	b.WriteString("  [")
	b.WriteString(status)
	b.WriteString("]\n")
	b.WriteString(m.view.View())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("step/si/so • resume • bp <line> • eval <expr> • ctrl+c quit"))
	return b.String()
}

func runDebug(enginePath, scriptPath string, asModule bool, log *zap.Logger) error {
	target, err := startDebugTarget(enginePath, scriptPath, asModule, log)
	if err != nil {
		return err
	}

	p := tea.NewProgram(newDebugModel(target), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}

	// The script may still be paused; let it run to completion so the
	// context goroutine can tear down cleanly.
	target.submit(inspector.Resume())
	return nil
}
