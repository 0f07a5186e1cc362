package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/olivier-w/fmap/internal/catalog"
)

const tickInterval = 200 * time.Millisecond

type tickMsg time.Time

type genresLoadedMsg struct {
	title  string
	genres []catalog.Genre
	err    error
}

type randomGenreMsg struct {
	genre catalog.Genre
	err   error
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
