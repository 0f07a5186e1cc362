package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/olivier-w/fmap/internal/catalog"
)

type genreItem struct {
	genre catalog.Genre
}

func (i genreItem) Title() string { return i.genre.Title }
func (i genreItem) Description() string {
	if i.genre.IsParent() {
		return "genre"
	}
	return "sub-genre"
}
func (i genreItem) FilterValue() string { return i.genre.Title }

func newGenreList() list.Model {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#FFFFFF"}).
		BorderLeftForeground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#AAAAAA"})
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"}).
		BorderLeftForeground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#AAAAAA"})

	l := list.New(nil, delegate, 80, 20)
	l.Title = "genres"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Filter = genreFilter
	l.DisableQuitKeybindings()
	l.Styles.Title = headerStyle
	return l
}

func newSearchInput() textinput.Model {
	ti := textinput.New()
	ti.Placeholder = "genre name"
	ti.CharLimit = 128
	ti.Width = 40
	return ti
}

func (m Model) showGenres(title string, genres []catalog.Genre) Model {
	items := make([]list.Item, len(genres))
	for i, g := range genres {
		items[i] = genreItem{genre: g}
	}
	m.list.ResetFilter()
	m.list.SetItems(items)
	m.list.Select(0)
	m.list.Title = title
	m.screen = screenGenres
	return m
}

func (m Model) updateGenres(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && m.list.FilterState() != list.Filtering {
		switch key.String() {
		case "enter":
			if item, ok := m.list.SelectedItem().(genreItem); ok {
				m.player.SetGenre(item.genre)
				m.notify("genre: " + item.genre.Title)
			}
			m.screen = screenPlayer
			return m, nil
		case "esc", "q":
			if m.list.FilterState() == list.FilterApplied {
				break
			}
			m.screen = screenPlayer
			return m, nil
		case "ctrl+c":
			return m.quit()
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) updateSearch(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			term := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			m.input.Blur()
			m.screen = screenPlayer
			if term == "" {
				return m, nil
			}
			return m, m.searchGenresCmd(term)
		case "esc":
			m.input.Reset()
			m.input.Blur()
			m.screen = screenPlayer
			return m, nil
		case "ctrl+c":
			return m.quit()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) searchView() string {
	s := "\n"
	s += "  " + headerStyle.Render("fmap") + "\n"
	s += "\n"
	s += "  " + statusStyle.Render("Search genres:") + "\n"
	s += "  " + m.input.View() + "\n"
	s += "\n"
	s += "  " + helpStyle.Render("enter search  esc back  ctrl+c quit") + "\n"
	return s
}
