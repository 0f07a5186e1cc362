package main

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/olivier-w/fmap/internal/ui"
)

type startupPhase uint8

const (
	phaseOpening startupPhase = iota
	phaseFailed
)

// startupOpenFunc builds the now-playing model, reporting progress lines.
type startupOpenFunc func(ctx context.Context, status func(string)) (ui.Model, error)

type startupResolvedMsg struct {
	model ui.Model
	err   error
}

type startupStatusMsg string

// startupModel shows a spinner while the catalog warms up, then hands the
// program over to the now-playing model.
type startupModel struct {
	ctx      context.Context
	open     startupOpenFunc
	phase    startupPhase
	errMsg   string
	width    int
	height   int
	spinner  spinner.Model
	status   string
	statusCh chan string
}

func newStartupModel(ctx context.Context, open startupOpenFunc) startupModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#AAAAAA"})

	return startupModel{
		ctx:      ctx,
		open:     open,
		phase:    phaseOpening,
		spinner:  s,
		status:   "Opening...",
		statusCh: make(chan string, 16),
	}
}

func (m startupModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.waitForStatus(),
		openCmd(m.ctx, m.open, m.statusCh),
		tea.SetWindowTitle("fmap"),
	)
}

func (m startupModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		if m.phase != phaseOpening {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case startupStatusMsg:
		m.status = string(msg)
		return m, m.waitForStatus()

	case startupResolvedMsg:
		if msg.err != nil {
			m.phase = phaseFailed
			m.errMsg = msg.err.Error()
			m.statusCh = nil
			return m, nil
		}

		cmds := []tea.Cmd{msg.model.Init()}
		if m.width > 0 || m.height > 0 {
			w, h := m.width, m.height
			cmds = append(cmds, func() tea.Msg {
				return tea.WindowSizeMsg{Width: w, Height: h}
			})
		}
		return msg.model, tea.Batch(cmds...)

	case tea.KeyMsg:
		if startupIsQuit(msg) {
			return m, tea.Sequence(tea.SetWindowTitle(""), tea.Quit)
		}
	}
	return m, nil
}

func (m startupModel) waitForStatus() tea.Cmd {
	if m.statusCh == nil {
		return nil
	}
	statusCh := m.statusCh
	return func() tea.Msg {
		status, ok := <-statusCh
		if !ok {
			return nil
		}
		return startupStatusMsg(status)
	}
}

func (m startupModel) View() string {
	var b strings.Builder
	b.WriteString("\n  ")
	b.WriteString(startupHeaderStyle.Render("fmap"))
	b.WriteString("\n\n  ")

	if m.phase == phaseFailed {
		b.WriteString(startupErrorStyle.Render(m.errMsg))
	} else {
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(startupStatusStyle.Render(m.status))
	}

	b.WriteString("\n\n  ")
	b.WriteString(startupHelpStyle.Render("q quit"))
	b.WriteString("\n")
	return b.String()
}

func openCmd(ctx context.Context, open startupOpenFunc, statusCh chan string) tea.Cmd {
	return func() tea.Msg {
		defer close(statusCh)
		model, err := open(ctx, func(line string) {
			select {
			case statusCh <- line:
			default:
			}
		})
		return startupResolvedMsg{model: model, err: err}
	}
}

func startupIsQuit(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return true
	}
	return false
}

var (
	startupHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#888888"})
	startupStatusStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#BBBBBB"})
	startupHelpStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#999999", Dark: "#666666"})
	startupErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#A00000", Dark: "#FF8080"})
)
