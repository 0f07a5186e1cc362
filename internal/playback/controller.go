// Package playback decides which track plays next and drives the audio backend.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/olivier-w/fmap/internal/audiocache"
	"github.com/olivier-w/fmap/internal/catalog"
	"github.com/olivier-w/fmap/internal/category"
	"github.com/olivier-w/fmap/internal/queue"
)

// State is the controller's playback state.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return "stopped"
}

// Skip reasons reported when a track fails the admission chain.
const (
	ReasonHated           = "haters gonna hate"
	ReasonNotNew          = "skipping not new"
	ReasonNotInstrumental = "skipping not instrumental"
)

// Categories records track outcomes.
type Categories interface {
	Contains(name category.Name, id string) (bool, error)
	Append(name category.Name, id string, allowDuplicates bool) error
}

// AudioCache maps tracks to local files.
type AudioCache interface {
	Has(id string) bool
	Path(ctx context.Context, t catalog.Track) (string, error)
	Remove(id string) error
}

// Snapshot is what the UIs render. It never waits on a running download.
type Snapshot struct {
	State    State
	Track    catalog.Track
	HasTrack bool
	Genre    catalog.Genre
	Settings SettingsSnapshot
	Status   string
	Err      error
	Position time.Duration
	Duration time.Duration
	Page     int // catalog page of the current track
	Index    int // index of the current track within Page
}

// Controller owns the play queue and the backend. Its Request and On
// methods are serialised by mu and are meant to be called from the
// playback loop only; the marking, genre and snapshot methods are safe
// to call from the UI at any time.
type Controller struct {
	queue    *queue.Queue
	store    Categories
	cache    AudioCache
	backend  Backend
	settings *Settings

	mu    sync.Mutex
	state State
	gen   uint64

	vmu          sync.Mutex
	view         Snapshot
	pendingGenre *catalog.Genre
}

// NewController wires a controller. settings may be nil for defaults.
func NewController(q *queue.Queue, store Categories, cache AudioCache, backend Backend, settings *Settings) *Controller {
	if settings == nil {
		settings = NewSettings(false, false)
	}
	return &Controller{
		queue:    q,
		store:    store,
		cache:    cache,
		backend:  backend,
		settings: settings,
	}
}

// Settings returns the admission toggles.
func (c *Controller) Settings() *Settings {
	return c.settings
}

// Backend returns the audio backend.
func (c *Controller) Backend() Backend {
	return c.backend
}

// RequestPlay starts playback. It does nothing while playing, resumes when
// paused, and otherwise plays the current queue track or the first one after
// it that passes the admission chain.
func (c *Controller) RequestPlay(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.applyPendingGenreLocked() {
		return c.playLocked(ctx, false)
	}
	switch c.state {
	case Playing:
		return nil
	case Paused:
		return c.resumeLocked()
	}
	return c.playLocked(ctx, false)
}

// RequestNext is an explicit user skip: the current track is recorded as
// skipped and the next admissible track starts.
func (c *Controller) RequestNext(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.applyPendingGenreLocked() {
		return c.playLocked(ctx, false)
	}
	cur, ok := c.currentTrack()
	if !ok {
		return c.playLocked(ctx, false)
	}
	if err := c.recordLocked(category.Skipped, cur); err != nil {
		return err
	}
	c.stopBackendLocked()
	return c.playLocked(ctx, true)
}

// RequestPause toggles between playing and paused. While stopped it plays.
func (c *Controller) RequestPause(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Playing:
		if err := c.backend.Pause(); err != nil {
			return c.failLocked(fmt.Errorf("pausing: %w", err))
		}
		c.setStateLocked(Paused)
		return nil
	case Paused:
		return c.resumeLocked()
	}
	c.applyPendingGenreLocked()
	return c.playLocked(ctx, false)
}

// RequestStop stops the backend. The current track is kept for display and
// as the position a later next continues from.
func (c *Controller) RequestStop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopBackendLocked()
	c.setStateLocked(Stopped)
}

// HandleEvent dispatches a backend event to OnTrackEnded or OnPlaybackFailed.
func (c *Controller) HandleEvent(ctx context.Context, ev Event) error {
	if ev.Kind == EventFailed {
		return c.OnPlaybackFailed(ctx, ev.Generation, ev.Err)
	}
	return c.OnTrackEnded(ctx, ev.Generation)
}

// OnTrackEnded records the finished track in endeds and plays the next one.
// Events for a generation other than the playing one are ignored.
func (c *Controller) OnTrackEnded(ctx context.Context, gen uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.currentTrack()
	if !ok || c.state == Stopped || gen != c.gen {
		log.Debug().Uint64("generation", gen).Msg("ignoring stale track end")
		return nil
	}
	if err := c.recordLocked(category.Endeds, cur); err != nil {
		return err
	}
	return c.playLocked(ctx, true)
}

// OnPlaybackFailed records the track in failed and plays the next one.
func (c *Controller) OnPlaybackFailed(ctx context.Context, gen uint64, cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.currentTrack()
	if !ok || c.state == Stopped || gen != c.gen {
		return nil
	}
	log.Warn().Err(cause).Str("id", cur.ID).Msg("playback failed")
	if err := c.markFailedLocked(cur); err != nil {
		return err
	}
	return c.playLocked(ctx, true)
}

// SetGenre selects the genre to play. It takes effect on the next play,
// next or pause request, restarting playback from the genre's first track.
func (c *Controller) SetGenre(g catalog.Genre) {
	c.vmu.Lock()
	c.pendingGenre = &g
	c.view.Genre = g
	c.view.Status = "genre: " + g.Title
	c.vmu.Unlock()
}

// Favourite marks the current track as a favourite.
func (c *Controller) Favourite() error {
	return c.mark(category.Favourites)
}

// Hate marks the current track as hated. Hated tracks never pass admission.
func (c *Controller) Hate() error {
	return c.mark(category.Hates)
}

func (c *Controller) mark(name category.Name) error {
	cur, ok := c.currentTrack()
	if !ok {
		return nil
	}
	if err := c.store.Append(name, cur.ID, name.AllowsDuplicates()); err != nil {
		c.setErr(err)
		return err
	}
	c.setStatus(fmt.Sprintf("%s: %s", name, cur.DisplayName()))
	return nil
}

// ToggleOnlyNew flips the only_new setting.
func (c *Controller) ToggleOnlyNew() bool {
	v := c.settings.ToggleOnlyNew()
	c.setStatus(fmt.Sprintf("only new: %t", v))
	return v
}

// ToggleOnlyInstrumental flips the only_instrumental setting.
func (c *Controller) ToggleOnlyInstrumental() bool {
	v := c.settings.ToggleOnlyInstrumental()
	c.setStatus(fmt.Sprintf("only instrumental: %t", v))
	return v
}

// Snapshot returns the current state for display.
func (c *Controller) Snapshot() Snapshot {
	c.vmu.Lock()
	s := c.view
	c.vmu.Unlock()

	s.Settings = c.settings.Snapshot()
	if p, ok := c.backend.(Progress); ok && s.State != Stopped {
		s.Position = p.Position()
		s.Duration = p.Duration()
	}
	return s
}

// State returns the playback state.
func (c *Controller) State() State {
	c.vmu.Lock()
	defer c.vmu.Unlock()
	return c.view.State
}

// playLocked walks the queue until a track is admitted and loaded. Policy
// skips advance silently, download and load failures are recorded in
// failed, and storage failures abort. advance selects the track after the
// current one instead of the current one.
func (c *Controller) playLocked(ctx context.Context, advance bool) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var (
			t   catalog.Track
			err error
		)
		if advance {
			t, err = c.queue.Advance(ctx)
		} else {
			t, err = c.queue.Current(ctx)
		}
		advance = true
		if errors.Is(err, queue.ErrEndOfQueue) {
			c.stopBackendLocked()
			c.setStateLocked(Stopped)
			c.setStatus("end of queue")
			return err
		}
		if err != nil {
			c.stopBackendLocked()
			c.setStateLocked(Stopped)
			return c.failLocked(fmt.Errorf("loading tracks: %w", err))
		}

		reason, err := c.admitLocked(t)
		if err != nil {
			return c.failLocked(err)
		}
		if reason != "" {
			log.Info().Str("id", t.ID).Str("title", t.Title).Msg(reason)
			c.setStatus(reason)
			continue
		}

		c.setTrack(t)
		path, err := c.cache.Path(ctx, t)
		if err != nil {
			if errors.Is(err, audiocache.ErrWrite) || ctx.Err() != nil {
				c.setStateLocked(Stopped)
				return c.failLocked(err)
			}
			log.Warn().Err(err).Str("id", t.ID).Msg("download failed")
			if err := c.recordLocked(category.Failed, t); err != nil {
				return err
			}
			continue
		}

		c.stopBackendLocked()
		gen, err := c.backend.Load(path)
		if err != nil {
			log.Warn().Err(err).Str("id", t.ID).Str("path", path).Msg("load failed")
			if err := c.markFailedLocked(t); err != nil {
				return err
			}
			continue
		}

		c.gen = gen
		c.setStateLocked(Playing)
		c.setStatus("")
		c.setErr(nil)
		log.Info().Str("id", t.ID).Str("title", t.DisplayName()).Uint64("generation", gen).Msg("playing")
		return nil
	}
}

// admitLocked returns the reason t is skipped, or "" when it may play.
func (c *Controller) admitLocked(t catalog.Track) (string, error) {
	hated, err := c.store.Contains(category.Hates, t.ID)
	if err != nil {
		return "", err
	}
	if hated {
		return ReasonHated, nil
	}
	s := c.settings.Snapshot()
	if s.OnlyNew && c.cache.Has(t.ID) {
		return ReasonNotNew, nil
	}
	if s.OnlyInstrumental && !t.Instrumental {
		return ReasonNotInstrumental, nil
	}
	return "", nil
}

func (c *Controller) applyPendingGenreLocked() bool {
	c.vmu.Lock()
	g := c.pendingGenre
	c.pendingGenre = nil
	c.vmu.Unlock()
	if g == nil {
		return false
	}

	c.stopBackendLocked()
	c.setStateLocked(Stopped)
	c.queue.SetGenre(*g)
	c.vmu.Lock()
	c.view.Track = catalog.Track{}
	c.view.HasTrack = false
	c.vmu.Unlock()
	log.Info().Str("genre", g.Title).Str("id", g.ID).Msg("genre selected")
	return true
}

func (c *Controller) resumeLocked() error {
	if err := c.backend.Resume(); err != nil {
		return c.failLocked(fmt.Errorf("resuming: %w", err))
	}
	c.setStateLocked(Playing)
	return nil
}

func (c *Controller) markFailedLocked(t catalog.Track) error {
	if err := c.cache.Remove(t.ID); err != nil {
		log.Warn().Err(err).Str("id", t.ID).Msg("removing cached file")
	}
	return c.recordLocked(category.Failed, t)
}

func (c *Controller) recordLocked(name category.Name, t catalog.Track) error {
	if err := c.store.Append(name, t.ID, name.AllowsDuplicates()); err != nil {
		c.stopBackendLocked()
		c.setStateLocked(Stopped)
		return c.failLocked(err)
	}
	return nil
}

func (c *Controller) stopBackendLocked() {
	if err := c.backend.Stop(); err != nil {
		log.Warn().Err(err).Msg("stopping backend")
	}
}

func (c *Controller) failLocked(err error) error {
	c.setErr(err)
	return err
}

func (c *Controller) setStateLocked(s State) {
	c.state = s
	c.vmu.Lock()
	c.view.State = s
	c.vmu.Unlock()
}

func (c *Controller) currentTrack() (catalog.Track, bool) {
	c.vmu.Lock()
	defer c.vmu.Unlock()
	return c.view.Track, c.view.HasTrack
}

func (c *Controller) setTrack(t catalog.Track) {
	c.vmu.Lock()
	c.view.Track = t
	c.view.HasTrack = true
	c.view.Genre = c.queue.Genre()
	c.view.Page, c.view.Index = c.queue.Position()
	c.vmu.Unlock()
}

func (c *Controller) setStatus(s string) {
	c.vmu.Lock()
	c.view.Status = s
	c.vmu.Unlock()
}

func (c *Controller) setErr(err error) {
	c.vmu.Lock()
	c.view.Err = err
	c.vmu.Unlock()
}
