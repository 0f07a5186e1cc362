// Package gui is the desktop front end: transport buttons, a genre picker
// and a now-playing line, built with Fyne.
package gui

import (
	"context"
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog/log"

	"github.com/olivier-w/fmap/internal/catalog"
	"github.com/olivier-w/fmap/internal/playback"
	"github.com/olivier-w/fmap/internal/ui"
	"github.com/olivier-w/fmap/internal/util"
)

const (
	WindowWidth  = 420
	WindowHeight = 200

	refreshInterval = 500 * time.Millisecond
)

// Window is the fmap main window.
type Window struct {
	ctx       context.Context
	win       fyne.Window
	player    ui.Player
	transport ui.Transport
	genres    ui.Genres

	playBtn  *widget.Button
	pauseBtn *widget.Button
	nextBtn  *widget.Button
	stopBtn  *widget.Button
	picker   *widget.Select
	track    *widget.Label
	status   *widget.Label

	choices []catalog.Genre
}

// New builds the window on app a.
func New(ctx context.Context, a fyne.App, p ui.Player, t ui.Transport, g ui.Genres) *Window {
	w := &Window{
		ctx:       ctx,
		win:       a.NewWindow("fmap"),
		player:    p,
		transport: t,
		genres:    g,
	}

	w.playBtn = widget.NewButton("Play", func() { w.send(w.transport.Play) })
	w.pauseBtn = widget.NewButton("Pause", func() { w.send(w.transport.Pause) })
	w.nextBtn = widget.NewButton("Next", func() { w.send(w.transport.Next) })
	w.stopBtn = widget.NewButton("Stop", w.transport.Stop)

	w.picker = widget.NewSelect(nil, w.onPick)
	w.picker.PlaceHolder = "loading genres..."
	w.track = widget.NewLabel("nothing playing")
	w.track.Truncation = fyne.TextTruncateEllipsis
	w.status = widget.NewLabel("")

	buttons := container.NewGridWithColumns(4, w.playBtn, w.pauseBtn, w.nextBtn, w.stopBtn)
	w.win.SetContent(container.NewVBox(w.picker, w.track, buttons, w.status))
	w.win.Resize(fyne.NewSize(WindowWidth, WindowHeight))
	w.win.SetOnClosed(w.transport.Stop)
	return w
}

// ShowAndRun loads genres in the background, starts the refresh ticker
// and runs the app until the window closes.
func (w *Window) ShowAndRun() {
	go w.loadGenres()
	go w.refreshLoop()
	w.win.ShowAndRun()
}

func (w *Window) send(intent func()) {
	if !w.transport.Running() {
		w.transport.Start(w.ctx)
	}
	intent()
}

func (w *Window) onPick(title string) {
	for _, g := range w.choices {
		if g.Title == title {
			w.player.SetGenre(g)
			w.status.SetText("genre: " + g.Title)
			return
		}
	}
}

func (w *Window) loadGenres() {
	genres, err := w.genres.ParentGenres(w.ctx)
	fyne.Do(func() {
		if err != nil {
			log.Error().Err(err).Msg("failed to load genres")
			w.picker.PlaceHolder = "genres unavailable"
			w.picker.Refresh()
			return
		}
		w.setGenres(genres)
	})
}

func (w *Window) setGenres(genres []catalog.Genre) {
	w.choices = genres
	titles := make([]string, len(genres))
	for i, g := range genres {
		titles[i] = g.Title
	}
	w.picker.PlaceHolder = "choose a genre"
	w.picker.SetOptions(titles)
}

func (w *Window) refreshLoop() {
	t := time.NewTicker(refreshInterval)
	defer t.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-t.C:
			s := w.player.Snapshot()
			fyne.Do(func() { w.render(s) })
		}
	}
}

func (w *Window) render(s playback.Snapshot) {
	if s.HasTrack {
		length := util.TrackLength(s.Duration, s.Track.Duration)
		w.track.SetText(fmt.Sprintf("%s  %s  %s", s.State, s.Track.DisplayName(), util.FormatProgress(s.Position, length)))
	} else {
		w.track.SetText("nothing playing")
	}
	switch {
	case s.Err != nil:
		w.status.SetText("error: " + s.Err.Error())
	case s.Status != "":
		w.status.SetText(s.Status)
	}
	w.pauseBtn.SetText("Pause")
	if s.State == playback.Paused {
		w.pauseBtn.SetText("Resume")
	}
}
