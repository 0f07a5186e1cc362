// Package player plays local audio files through the system audio device.
package player

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog/log"

	"github.com/olivier-w/fmap/internal/playback"
)

const (
	sampleRate   = 44100
	channelCount = 2
	bitDepth     = 2 // 16-bit = 2 bytes
	bytesPerSec  = sampleRate * channelCount * bitDepth

	defaultPollInterval = 200 * time.Millisecond
)

// countingReader wraps an io.Reader and tracks bytes read.
type countingReader struct {
	reader io.Reader
	pos    int64
	mu     sync.Mutex
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.reader.Read(p)
	cr.mu.Lock()
	cr.pos += int64(n)
	cr.mu.Unlock()
	return n, err
}

func (cr *countingReader) Pos() int64 {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return cr.pos
}

// output is the part of *oto.Player the engine drives.
type output interface {
	Play()
	Pause()
	SetVolume(float64)
	Err() error
}

// session is one loaded file.
type session struct {
	gen     uint64
	file    io.Closer
	dec     decoder
	counter *countingReader
	out     output
	paused  bool
	stop    chan struct{}
}

// Engine is the local audio backend. It plays one file at a time and
// reports natural ends and decode failures on its event channel.
type Engine struct {
	mu     sync.Mutex
	cur    *session
	gen    uint64
	volume float64
	poll   time.Duration
	events chan playback.Event
}

var (
	globalOtoCtx *oto.Context
	otoOnce      sync.Once
	otoInitErr   error
)

func initOto() (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channelCount,
			Format:       oto.FormatSignedInt16LE,
		}
		var ready chan struct{}
		globalOtoCtx, ready, otoInitErr = oto.NewContext(op)
		if otoInitErr == nil {
			<-ready
		}
	})
	return globalOtoCtx, otoInitErr
}

// NewEngine creates an idle engine. The audio device is opened on first Load.
func NewEngine() *Engine {
	return &Engine{
		volume: 0.8,
		poll:   defaultPollInterval,
		events: make(chan playback.Event, 8),
	}
}

// Load stops the current file and starts playing path.
func (e *Engine) Load(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	dec, err := newDecoder(f)
	if err != nil {
		f.Close()
		return 0, err
	}
	if dec.SampleRate() != sampleRate || dec.ChannelCount() != channelCount {
		f.Close()
		return 0, fmt.Errorf("unsupported audio format %d Hz, %d channels (want %d Hz stereo)",
			dec.SampleRate(), dec.ChannelCount(), sampleRate)
	}

	ctx, err := initOto()
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("opening audio device: %w", err)
	}

	counter := &countingReader{reader: dec}
	e.mu.Lock()
	defer e.mu.Unlock()

	out := ctx.NewPlayer(counter)
	return e.startLocked(f, dec, counter, out), nil
}

func (e *Engine) startLocked(file io.Closer, dec decoder, counter *countingReader, out output) uint64 {
	e.stopLocked()
	e.gen++
	s := &session{
		gen:     e.gen,
		file:    file,
		dec:     dec,
		counter: counter,
		out:     out,
		stop:    make(chan struct{}),
	}
	out.SetVolume(e.volume)
	out.Play()
	e.cur = s

	go e.monitor(s)
	log.Debug().Uint64("generation", s.gen).Msg("playback started")
	return s.gen
}

func (e *Engine) monitor(s *session) {
	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		e.mu.Lock()
		paused := s.paused
		e.mu.Unlock()

		ev := playback.Event{Generation: s.gen}
		if err := s.out.Err(); err != nil {
			ev.Kind = playback.EventFailed
			ev.Err = err
		} else if paused || s.counter.Pos() < s.dec.Length() {
			continue
		}

		select {
		case e.events <- ev:
		case <-s.stop:
		}
		return
	}
}

// Events delivers end-of-track notifications.
func (e *Engine) Events() <-chan playback.Event {
	return e.events
}

// Pause pauses the current file.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil || e.cur.paused {
		return nil
	}
	e.cur.out.Pause()
	e.cur.paused = true
	return nil
}

// Resume continues a paused file.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil || !e.cur.paused {
		return nil
	}
	e.cur.out.Play()
	e.cur.paused = false
	return nil
}

// Stop halts playback and releases the file.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	return nil
}

func (e *Engine) stopLocked() {
	if e.cur == nil {
		return
	}
	close(e.cur.stop)
	e.cur.out.Pause()
	if e.cur.file != nil {
		e.cur.file.Close()
	}
	e.cur = nil
}

// Close releases resources.
func (e *Engine) Close() {
	e.Stop()
}

// Position returns the current playback position.
func (e *Engine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil {
		return 0
	}
	return bytesToDuration(e.cur.counter.Pos())
}

// Duration returns the total duration of the current file.
func (e *Engine) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil {
		return 0
	}
	return bytesToDuration(e.cur.dec.Length())
}

// Volume returns current volume (0.0 to 1.0).
func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// AdjustVolume changes volume by delta, clamped to 0.0 - 1.0.
func (e *Engine) AdjustVolume(delta float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = max(0, min(e.volume+delta, 1))
	if e.cur != nil {
		e.cur.out.SetVolume(e.volume)
	}
}

func bytesToDuration(n int64) time.Duration {
	return time.Duration(float64(n) / float64(bytesPerSec) * float64(time.Second))
}
