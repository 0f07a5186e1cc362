// Package ui is the terminal interface: a now-playing screen driven by
// playback snapshots, plus genre browsing and search.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/olivier-w/fmap/internal/catalog"
	"github.com/olivier-w/fmap/internal/playback"
	"github.com/olivier-w/fmap/internal/util"
)

const noticeTTL = 5 * time.Second

// Player is the part of the playback controller the UI may touch directly.
type Player interface {
	Snapshot() playback.Snapshot
	SetGenre(g catalog.Genre)
	Favourite() error
	Hate() error
	ToggleOnlyNew() bool
	ToggleOnlyInstrumental() bool
}

// Transport posts play intents to the playback loop.
type Transport interface {
	Play()
	Pause()
	Next()
	Stop()
	Start(ctx context.Context)
	Running() bool
}

// Genres looks up genres for the pickers.
type Genres interface {
	ParentGenres(ctx context.Context) ([]catalog.Genre, error)
	SearchGenres(ctx context.Context, term string) ([]catalog.Genre, error)
	RandomGenre(ctx context.Context, parentsOnly bool) (catalog.Genre, error)
}

type screen int

const (
	screenPlayer screen = iota
	screenGenres
	screenSearch
)

// Model is the Bubbletea model for the fmap TUI.
type Model struct {
	ctx       context.Context
	player    Player
	transport Transport
	genres    Genres

	screen   screen
	list     list.Model
	input    textinput.Model
	snap     playback.Snapshot
	progress progressSpring
	barPos   float64

	notice     string
	noticeTime time.Time
	loading    bool
	width      int
	quitting   bool
}

// New creates a Model. ctx bounds the playback loop and catalog lookups.
func New(ctx context.Context, p Player, t Transport, g Genres) Model {
	return Model{
		ctx:       ctx,
		player:    p,
		transport: t,
		genres:    g,
		list:      newGenreList(),
		input:     newSearchInput(),
		snap:      p.Snapshot(),
		progress:  newProgressSpring(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), tea.SetWindowTitle("fmap"))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.snap = m.player.Snapshot()
		m.barPos = m.progress.step(progressRatio(m.snap))
		if m.notice != "" && time.Since(m.noticeTime) > noticeTTL {
			m.notice = ""
		}
		return m, tea.Batch(tickCmd(), tea.SetWindowTitle(windowTitle(m.snap)))

	case genresLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.notify(fmt.Sprintf("genres: %v", msg.err))
			return m, nil
		}
		if len(msg.genres) == 0 {
			m.notify("no genres found")
			return m, nil
		}
		return m.showGenres(msg.title, msg.genres), nil

	case randomGenreMsg:
		m.loading = false
		if msg.err != nil {
			m.notify(fmt.Sprintf("random genre: %v", msg.err))
			return m, nil
		}
		m.player.SetGenre(msg.genre)
		m.notify("genre: " + msg.genre.Title)
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.list.SetWidth(msg.Width)
		m.list.SetHeight(msg.Height)
		return m, nil
	}

	switch m.screen {
	case screenGenres:
		return m.updateGenres(msg)
	case screenSearch:
		return m.updateSearch(msg)
	}

	if key, ok := msg.(tea.KeyMsg); ok {
		return m.handleKey(key)
	}
	return m, nil
}

func (m Model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch keyAction(key) {
	case actionQuit:
		return m.quit()
	case actionGenres:
		if m.loading {
			return m, nil
		}
		m.loading = true
		return m, m.parentGenresCmd()
	case actionSearch:
		m.screen = screenSearch
		m.input.Focus()
		return m, textinput.Blink
	case actionRandom:
		if m.loading {
			return m, nil
		}
		m.loading = true
		return m, m.randomGenreCmd()
	case actionPlay:
		m.ensureLoop()
		m.transport.Play()
	case actionPause:
		m.ensureLoop()
		m.transport.Pause()
	case actionNext:
		m.ensureLoop()
		m.transport.Next()
	case actionStop:
		m.transport.Stop()
	case actionToggleNew:
		m.notify(fmt.Sprintf("only new: %s", onOff(m.player.ToggleOnlyNew())))
	case actionToggleInstrumental:
		m.notify(fmt.Sprintf("only instrumental: %s", onOff(m.player.ToggleOnlyInstrumental())))
	case actionFavourite:
		m.mark("favourite", m.player.Favourite)
	case actionHate:
		m.mark("hated", m.player.Hate)
	}
	return m, nil
}

func (m *Model) ensureLoop() {
	if !m.transport.Running() {
		m.transport.Start(m.ctx)
	}
}

func (m *Model) mark(what string, f func() error) {
	if !m.snap.HasTrack {
		m.notify("nothing playing")
		return
	}
	if err := f(); err != nil {
		m.notify(fmt.Sprintf("%s failed: %v", what, err))
		return
	}
	m.notify(what + ": " + m.snap.Track.DisplayName())
}

func (m *Model) notify(s string) {
	m.notice = s
	m.noticeTime = time.Now()
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.transport.Stop()
	return m, tea.Sequence(tea.SetWindowTitle(""), tea.Quit)
}

func (m Model) parentGenresCmd() tea.Cmd {
	ctx, g := m.ctx, m.genres
	return func() tea.Msg {
		genres, err := g.ParentGenres(ctx)
		return genresLoadedMsg{title: "genres", genres: genres, err: err}
	}
}

func (m Model) searchGenresCmd(term string) tea.Cmd {
	ctx, g := m.ctx, m.genres
	return func() tea.Msg {
		genres, err := g.SearchGenres(ctx, term)
		return genresLoadedMsg{title: "genres matching " + term, genres: genres, err: err}
	}
}

func (m Model) randomGenreCmd() tea.Cmd {
	ctx, g := m.ctx, m.genres
	return func() tea.Msg {
		genre, err := g.RandomGenre(ctx, false)
		return randomGenreMsg{genre: genre, err: err}
	}
}

func progressRatio(s playback.Snapshot) float64 {
	if s.Duration <= 0 {
		return 0
	}
	return s.Position.Seconds() / s.Duration.Seconds()
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	switch m.screen {
	case screenGenres:
		return m.list.View()
	case screenSearch:
		return m.searchView()
	}

	w := m.width
	if w < 30 {
		w = 50
	}
	s := m.snap

	header := headerStyle.Render("fmap")
	if s.Genre.Title != "" {
		header += "  " + artistStyle.Render(s.Genre.Title)
		if s.HasTrack && s.Page > 0 {
			header += "  " + timeStyle.Render(fmt.Sprintf("page %d #%d", s.Page, s.Index+1))
		}
	}

	title := titleStyle.Render("nothing playing")
	subtitle := ""
	if s.HasTrack {
		title = titleStyle.Render(s.Track.Title)
		switch {
		case s.Track.Artist != "" && s.Track.Album != "":
			subtitle = artistStyle.Render(fmt.Sprintf("%s - %s", s.Track.Artist, s.Track.Album))
		case s.Track.Artist != "":
			subtitle = artistStyle.Render(s.Track.Artist)
		case s.Track.Album != "":
			subtitle = artistStyle.Render(s.Track.Album)
		}
	}

	duration := util.TrackLength(s.Duration, s.Track.Duration)
	elapsedStr := util.FormatDuration(s.Position)
	durationStr := util.FormatDuration(duration)
	barWidth := w - len(elapsedStr) - len(durationStr) - 6
	if barWidth < 10 {
		barWidth = 10
	}
	bar := renderProgressBar(m.barPos, barWidth)
	progressLine := fmt.Sprintf("%s %s %s", timeStyle.Render(elapsedStr), bar, timeStyle.Render(durationStr))

	statusLine := statusStyle.Render(stateIcon(s.State)+"  "+s.State.String()) + "  " +
		renderFlag("new", s.Settings.OnlyNew) + "  " +
		renderFlag("instrumental", s.Settings.OnlyInstrumental)

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString("  " + header + "\n")
	b.WriteString("\n")
	b.WriteString("  " + title + "\n")
	if subtitle != "" {
		b.WriteString("  " + subtitle + "\n")
	}
	b.WriteString("\n")
	b.WriteString("  " + progressLine + "\n")
	b.WriteString("\n")
	b.WriteString("  " + statusLine + "\n")
	if s.Status != "" {
		b.WriteString("  " + helpStyle.Render(s.Status) + "\n")
	}
	if s.Err != nil {
		b.WriteString("  " + errorStyle.Render("error: "+s.Err.Error()) + "\n")
	}
	if m.loading {
		b.WriteString("  " + helpStyle.Render("loading genres...") + "\n")
	}
	if m.notice != "" {
		b.WriteString("  " + helpStyle.Render(m.notice) + "\n")
	}
	b.WriteString("\n")
	b.WriteString("  " + helpStyle.Render(helpText()) + "\n")
	return b.String()
}

func stateIcon(s playback.State) string {
	switch s {
	case playback.Playing:
		return "▶"
	case playback.Paused:
		return "❚❚"
	}
	return "■"
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func windowTitle(s playback.Snapshot) string {
	if !s.HasTrack || s.State == playback.Stopped {
		return "fmap"
	}
	if s.State == playback.Paused {
		return "⏸ " + s.Track.DisplayName() + " - fmap"
	}
	return "▶ " + s.Track.DisplayName() + " - fmap"
}
