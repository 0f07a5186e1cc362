package gui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"fyne.io/fyne/v2/test"

	"github.com/olivier-w/fmap/internal/catalog"
	"github.com/olivier-w/fmap/internal/playback"
)

type fakePlayer struct {
	snap  playback.Snapshot
	genre catalog.Genre
}

func (f *fakePlayer) Snapshot() playback.Snapshot  { return f.snap }
func (f *fakePlayer) SetGenre(g catalog.Genre)     { f.genre = g }
func (f *fakePlayer) Favourite() error             { return nil }
func (f *fakePlayer) Hate() error                  { return nil }
func (f *fakePlayer) ToggleOnlyNew() bool          { return false }
func (f *fakePlayer) ToggleOnlyInstrumental() bool { return false }

type fakeTransport struct {
	calls   []string
	running bool
}

func (f *fakeTransport) Play()         { f.calls = append(f.calls, "play") }
func (f *fakeTransport) Pause()        { f.calls = append(f.calls, "pause") }
func (f *fakeTransport) Next()         { f.calls = append(f.calls, "next") }
func (f *fakeTransport) Stop()         { f.calls = append(f.calls, "stop") }
func (f *fakeTransport) Running() bool { return f.running }

func (f *fakeTransport) Start(context.Context) {
	f.calls = append(f.calls, "start")
	f.running = true
}

type fakeGenres struct{}

func (fakeGenres) ParentGenres(context.Context) ([]catalog.Genre, error) { return nil, nil }
func (fakeGenres) SearchGenres(context.Context, string) ([]catalog.Genre, error) {
	return nil, nil
}
func (fakeGenres) RandomGenre(context.Context, bool) (catalog.Genre, error) {
	return catalog.Genre{}, nil
}

func newTestWindow(t *testing.T) (*Window, *fakePlayer, *fakeTransport) {
	t.Helper()
	a := test.NewApp()
	t.Cleanup(a.Quit)
	p := &fakePlayer{}
	tr := &fakeTransport{}
	return New(context.Background(), a, p, tr, fakeGenres{}), p, tr
}

func TestButtons(t *testing.T) {
	w, _, tr := newTestWindow(t)

	test.Tap(w.playBtn)
	test.Tap(w.pauseBtn)
	test.Tap(w.nextBtn)
	test.Tap(w.stopBtn)

	want := "start,play,pause,next,stop"
	if got := strings.Join(tr.calls, ","); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestGenrePicker(t *testing.T) {
	w, p, _ := newTestWindow(t)
	w.setGenres([]catalog.Genre{{ID: "12", Title: "Rock"}, {ID: "15", Title: "Electronic"}})

	if len(w.picker.Options) != 2 {
		t.Fatalf("expected 2 options, got %v", w.picker.Options)
	}
	w.picker.SetSelected("Electronic")
	if p.genre.ID != "15" {
		t.Fatalf("expected Electronic chosen, got %+v", p.genre)
	}
	if w.status.Text != "genre: Electronic" {
		t.Fatalf("unexpected status %q", w.status.Text)
	}
}

func TestRender(t *testing.T) {
	w, _, _ := newTestWindow(t)

	w.render(playback.Snapshot{
		State:    playback.Paused,
		HasTrack: true,
		Track:    catalog.Track{Title: "Song", Artist: "Band", Duration: 180},
		Position: 30 * time.Second,
		Status:   "skipping not new",
	})
	if w.track.Text != "paused  Band - Song  0:30 / 3:00" || w.status.Text != "skipping not new" {
		t.Fatalf("unexpected labels %q / %q", w.track.Text, w.status.Text)
	}
	if w.pauseBtn.Text != "Resume" {
		t.Fatalf("expected Resume while paused, got %q", w.pauseBtn.Text)
	}

	w.render(playback.Snapshot{Err: errors.New("disk full")})
	if w.track.Text != "nothing playing" || w.status.Text != "error: disk full" {
		t.Fatalf("unexpected labels %q / %q", w.track.Text, w.status.Text)
	}
}
