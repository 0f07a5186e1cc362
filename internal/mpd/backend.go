// Package mpd plays tracks through a Music Player Daemon using gompd.
package mpd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"

	"github.com/olivier-w/fmap/internal/playback"
)

// DefaultPollInterval is how often MPD status is checked for track end.
const DefaultPollInterval = 500 * time.Millisecond

var errNotConnected = errors.New("mpd: not connected")

// conn is the part of *mpd.Client the backend uses.
type conn interface {
	Ping() error
	Clear() error
	Add(uri string) error
	Play(pos int) error
	Pause(pause bool) error
	Stop() error
	Status() (mpd.Attrs, error)
	Close() error
}

type dialFunc func(network, addr, password string) (conn, error)

func dialMPD(network, addr, password string) (conn, error) {
	if password != "" {
		return mpd.DialAuthenticated(network, addr, password)
	}
	return mpd.Dial(network, addr)
}

// Backend is a playback.Backend driving MPD. Files are handed over as
// file:// URIs, which MPD accepts from local clients.
type Backend struct {
	network  string
	addr     string
	password string
	dial     dialFunc
	poll     time.Duration

	mu       sync.Mutex
	client   conn
	gen      uint64
	active   bool
	paused   bool
	elapsed  time.Duration
	duration time.Duration

	events chan playback.Event
	done   chan struct{}
	once   sync.Once
}

var (
	_ playback.Backend  = (*Backend)(nil)
	_ playback.Progress = (*Backend)(nil)
)

// New creates a Backend for the daemon at addr. network is "tcp" or "unix".
func New(network, addr, password string, poll time.Duration) *Backend {
	return newBackend(network, addr, password, poll, dialMPD)
}

func newBackend(network, addr, password string, poll time.Duration, dial dialFunc) *Backend {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	b := &Backend{
		network:  network,
		addr:     addr,
		password: password,
		dial:     dial,
		poll:     poll,
		events:   make(chan playback.Event, 4),
		done:     make(chan struct{}),
	}
	go b.watch()
	return b
}

// Connect dials the daemon.
func (b *Backend) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectLocked()
}

func (b *Backend) connectLocked() error {
	log.Info().Str("addr", b.addr).Msg("connecting to MPD")
	c, err := b.dial(b.network, b.addr, b.password)
	if err != nil {
		return fmt.Errorf("failed to connect to MPD: %w", err)
	}
	b.client = c
	return nil
}

// ensureConnectedLocked pings the daemon and redials once if the
// connection dropped.
func (b *Backend) ensureConnectedLocked() error {
	if b.client == nil {
		return b.connectLocked()
	}
	if err := b.client.Ping(); err != nil {
		log.Warn().Err(err).Msg("MPD connection lost, reconnecting")
		b.client.Close()
		b.client = nil
		return b.connectLocked()
	}
	return nil
}

// Load replaces the MPD queue with path and starts playing it.
func (b *Backend) Load(path string) (uint64, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureConnectedLocked(); err != nil {
		return 0, err
	}
	// Stop first so the poller cannot mistake the swap for a track end.
	b.active = false
	if err := b.client.Clear(); err != nil {
		return 0, fmt.Errorf("mpd clear: %w", err)
	}
	if err := b.client.Add("file://" + abs); err != nil {
		return 0, fmt.Errorf("mpd add %s: %w", abs, err)
	}
	if err := b.client.Play(-1); err != nil {
		return 0, fmt.Errorf("mpd play: %w", err)
	}

	b.gen++
	b.active = true
	b.paused = false
	b.elapsed, b.duration = 0, 0
	return b.gen, nil
}

// Pause pauses playback.
func (b *Backend) Pause() error {
	return b.setPaused(true)
}

// Resume resumes paused playback.
func (b *Backend) Resume() error {
	return b.setPaused(false)
}

func (b *Backend) setPaused(pause bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client == nil {
		return errNotConnected
	}
	if err := b.client.Pause(pause); err != nil {
		return err
	}
	b.paused = pause
	return nil
}

// Stop stops playback. No event is emitted for a stopped track.
func (b *Backend) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.active = false
	b.paused = false
	if b.client == nil {
		return nil
	}
	return b.client.Stop()
}

// Events delivers end-of-track notifications.
func (b *Backend) Events() <-chan playback.Event {
	return b.events
}

// Position returns the elapsed time seen at the last status poll.
func (b *Backend) Position() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.elapsed
}

// Duration returns the track length reported by MPD.
func (b *Backend) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.duration
}

// Close stops the status poller and closes the connection.
func (b *Backend) Close() error {
	b.once.Do(func() { close(b.done) })

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}

func (b *Backend) watch() {
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			if ev, ok := b.check(); ok {
				b.emit(ev)
			}
		}
	}
}

// check polls MPD once and reports an event when the loaded track is over.
func (b *Backend) check() (playback.Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active || b.paused || b.client == nil {
		return playback.Event{}, false
	}
	attrs, err := b.client.Status()
	if err != nil {
		log.Warn().Err(err).Msg("MPD status failed")
		return playback.Event{}, false
	}

	b.elapsed = seconds(attrs["elapsed"])
	if d := seconds(attrs["duration"]); d > 0 {
		b.duration = d
	}

	if msg := attrs["error"]; msg != "" {
		b.active = false
		return playback.Event{Kind: playback.EventFailed, Generation: b.gen, Err: errors.New(msg)}, true
	}
	if attrs["state"] == "stop" {
		b.active = false
		return playback.Event{Kind: playback.EventEnded, Generation: b.gen}, true
	}
	return playback.Event{}, false
}

func (b *Backend) emit(ev playback.Event) {
	select {
	case b.events <- ev:
	default:
		log.Warn().Stringer("kind", ev.Kind).Uint64("gen", ev.Generation).Msg("dropping MPD event, channel full")
	}
}

func seconds(s string) time.Duration {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}
