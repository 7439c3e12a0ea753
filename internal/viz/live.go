package viz

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/fluidhost/internal/frame"
	"github.com/san-kum/fluidhost/internal/surface"
)

const (
	statsWidth      = 42
	historyCapacity = 120
)

type TickMsg time.Time

// Scheduler is the part of a frame scheduler the view controls.
type Scheduler interface {
	State() frame.State
	Stop()
	Resize(width, height int) error
}

// Info describes the run shown in the stats panel.
type Info struct {
	Title     string
	Engine    string
	Workers   int
	Particles int
	FPS       int
}

// Model shows one scheduler run. Each tick fires the pacer the scheduler
// requests frames from.
type Model struct {
	sched    Scheduler
	pacer    *frame.ManualPacer
	canvas   *surface.Canvas
	info     Info
	theme    Theme
	styles   styles
	paused   bool
	showHelp bool
	quitting bool
	state    frame.State
	stepMs   []float64
}

func NewModel(sched Scheduler, pacer *frame.ManualPacer, canvas *surface.Canvas, info Info, theme Theme) Model {
	if info.FPS <= 0 {
		info.FPS = 60
	}
	return Model{
		sched:  sched,
		pacer:  pacer,
		canvas: canvas,
		info:   info,
		theme:  theme,
		styles: newStyles(theme),
		state:  sched.State(),
		stepMs: make([]float64, 0, historyCapacity),
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(m.info.FPS), func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.sched.Stop()
			m.state = m.sched.State()
			m.quitting = true
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
		case "t":
			m.theme = nextTheme(m.theme)
			m.styles = newStyles(m.theme)
		case "?":
			m.showHelp = !m.showHelp
		}
	case tea.WindowSizeMsg:
		cols := msg.Width - statsWidth - 8
		rows := msg.Height - 4
		if cols > 0 && rows > 0 {
			// Takes effect at the start of the next frame.
			_ = m.sched.Resize(cols*2, rows*4)
		}
	case TickMsg:
		if m.state.Status != frame.Running {
			return m, nil
		}
		if !m.paused {
			m.pacer.Fire(time.Time(msg))
		}
		m.observe(m.sched.State())
		if m.state.Status != frame.Running {
			return m, nil
		}
		return m, m.tick()
	}
	return m, nil
}

func (m *Model) observe(st frame.State) {
	if st.FrameIndex > m.state.FrameIndex {
		m.stepMs = append(m.stepMs, st.LastStepDurationMs)
		if len(m.stepMs) > historyCapacity {
			m.stepMs = m.stepMs[1:]
		}
	}
	m.state = st
}

// Err is the error that stopped the run, if any.
func (m Model) Err() error {
	return m.state.Err
}

func (m Model) status() string {
	switch {
	case m.state.Err != nil:
		return m.styles.failed.Render("FAILED")
	case m.state.Status != frame.Running:
		return m.styles.paused.Render("STOPPED")
	case m.paused:
		return m.styles.paused.Render("PAUSED")
	}
	return m.styles.running.Render("RUNNING")
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	st := m.styles

	var s strings.Builder
	s.WriteString(st.header.Render(strings.ToUpper(m.info.Title)) + "\n")
	s.WriteString(m.status() + "\n\n")

	if len(m.stepMs) > 1 {
		chart := asciigraph.Plot(m.stepMs, asciigraph.Height(5), asciigraph.Width(statsWidth-12), asciigraph.Caption("step ms"))
		s.WriteString(st.graph.Render(chart) + "\n\n")
	}

	s.WriteString(st.row("Frame", fmt.Sprintf("%d", m.state.FrameIndex)))
	s.WriteString(st.row("Step", fmt.Sprintf("%.2f ms", m.state.LastStepDurationMs)))
	s.WriteString(st.row("Engine", m.info.Engine))
	s.WriteString(st.row("Workers", fmt.Sprintf("%d", m.info.Workers)))
	s.WriteString(st.row("Particles", fmt.Sprintf("%d", m.info.Particles)))
	s.WriteString(st.row("Theme", m.theme.Name))
	if m.state.Err != nil {
		s.WriteString("\n" + st.failed.Render(m.state.Err.Error()) + "\n")
	}

	s.WriteString("\n" + st.separator(statsWidth-6) + "\n")
	s.WriteString(st.help.Render("SP:Pause T:Theme ?:Help Q:Quit"))

	canvasView := st.canvas.Render(m.canvas.String())
	mainView := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, st.stats.Render(s.String()))
	if m.showHelp {
		return `
╔══════════════════════════════════════╗
║          KEYBOARD SHORTCUTS          ║
╠══════════════════════════════════════╣
║  Space    - Pause/Resume frames      ║
║  T        - Cycle themes             ║
║  ?        - Toggle this help         ║
║  Q        - Stop and quit            ║
╚══════════════════════════════════════╝
` + "\n\n" + mainView
	}
	return mainView
}

// Run shows the model until the user quits or the run stops with an error.
func Run(m Model, opts ...tea.ProgramOption) error {
	final, err := tea.NewProgram(m, opts...).Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(Model); ok {
		return fm.Err()
	}
	return nil
}
