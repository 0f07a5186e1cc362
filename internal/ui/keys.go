package ui

import tea "github.com/charmbracelet/bubbletea"

// action is what a key does on the now-playing screen.
type action int

const (
	actionNone action = iota
	actionGenres
	actionSearch
	actionRandom
	actionPlay
	actionPause
	actionNext
	actionStop
	actionToggleNew
	actionToggleInstrumental
	actionFavourite
	actionHate
	actionQuit
)

var keyActions = map[string]action{
	"g":      actionGenres,
	"s":      actionSearch,
	"r":      actionRandom,
	"a":      actionPlay,
	"p":      actionPause,
	" ":      actionPause,
	"n":      actionNext,
	"t":      actionStop,
	"o":      actionToggleNew,
	"i":      actionToggleInstrumental,
	"f":      actionFavourite,
	"h":      actionHate,
	"q":      actionQuit,
	"ctrl+c": actionQuit,
}

func keyAction(msg tea.KeyMsg) action {
	return keyActions[msg.String()]
}

func helpText() string {
	return "g genres  s search  r random  a play  p pause  n next  t stop  o new  i instr  f fav  h hate  q quit"
}
