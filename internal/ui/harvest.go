package ui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/olivier-w/fmap/internal/downloader"
)

const harvestLogLines = 8

// HarvestResult holds the outcome of a grab run.
type HarvestResult struct {
	Report downloader.Report
	Err    error
}

type harvestStatusMsg string

type harvestDoneMsg struct {
	report downloader.Report
	err    error
}

// HarvestModel shows a running search harvest.
type HarvestModel struct {
	term     string
	ctx      context.Context
	cancel   context.CancelFunc
	h        *downloader.Harvester
	results  downloader.Results
	spinner  spinner.Model
	lines    []string
	count    int
	result   *HarvestResult
	quitting bool
	statusCh chan string
}

// NewHarvest creates the grab screen for term.
func NewHarvest(ctx context.Context, term string, h *downloader.Harvester, results downloader.Results) HarvestModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#AAAAAA"})

	ctx, cancel := context.WithCancel(ctx)
	statusCh := make(chan string, 64)
	h.OnStatus = func(line string) { statusCh <- line }

	return HarvestModel{
		term:     term,
		ctx:      ctx,
		cancel:   cancel,
		h:        h,
		results:  results,
		spinner:  s,
		statusCh: statusCh,
	}
}

// Result returns the harvest outcome after the program finishes.
func (m HarvestModel) Result() HarvestResult {
	if m.result != nil {
		return *m.result
	}
	return HarvestResult{Err: errors.New("grab was cancelled")}
}

func (m HarvestModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.startHarvest(),
		m.waitForStatus(),
		tea.SetWindowTitle("fmap grab "+m.term),
	)
}

func (m HarvestModel) startHarvest() tea.Cmd {
	return func() tea.Msg {
		rep, err := m.h.Harvest(m.ctx, m.results)
		close(m.statusCh)
		return harvestDoneMsg{report: rep, err: err}
	}
}

func (m HarvestModel) waitForStatus() tea.Cmd {
	return func() tea.Msg {
		s, ok := <-m.statusCh
		if !ok {
			return nil
		}
		return harvestStatusMsg(s)
	}
}

func (m HarvestModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			// The harvest goroutine sees the cancelled context and reports back.
			m.cancel()
			return m, nil
		}

	case harvestStatusMsg:
		m.count++
		m.lines = append(m.lines, string(msg))
		if len(m.lines) > harvestLogLines {
			m.lines = m.lines[len(m.lines)-harvestLogLines:]
		}
		return m, m.waitForStatus()

	case harvestDoneMsg:
		m.cancel()
		m.result = &HarvestResult{Report: msg.report, Err: msg.err}
		m.quitting = true
		return m, tea.Sequence(tea.SetWindowTitle(""), tea.Quit)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m HarvestModel) View() string {
	if m.quitting {
		return ""
	}

	lines := "\n"
	lines += "  " + headerStyle.Render("fmap grab") + "  " + artistStyle.Render(m.term) + "\n"
	lines += "\n"
	for _, l := range m.lines {
		lines += "  " + statusStyle.Render(l) + "\n"
	}
	lines += "\n"
	lines += "  " + m.spinner.View() + " " + helpStyle.Render(fmt.Sprintf("harvesting... %d downloads tried", max(m.count-1, 0))) + "\n"
	lines += "  " + helpStyle.Render("q stop") + "\n"
	return lines
}
