package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/olivier-w/fmap/internal/queue"
)

// DefaultPollInterval is how often the loop drains intents and backend events.
const DefaultPollInterval = 150 * time.Millisecond

type intents struct {
	play, pause, next, stop bool
}

// Loop is the single goroutine allowed to drive the backend. UIs set intent
// flags from any goroutine; each tick drains them and applies them in a
// fixed order. A pending stop wins over everything else in its tick, stops
// playback and ends the loop.
type Loop struct {
	ctrl     *Controller
	interval time.Duration

	mu      sync.Mutex
	pending intents
	running bool
	done    chan struct{}

	// OnError is called with every error a tick produces. Optional.
	OnError func(error)
}

// NewLoop creates a loop around ctrl. A zero interval uses DefaultPollInterval.
func NewLoop(ctrl *Controller, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	done := make(chan struct{})
	close(done)
	return &Loop{ctrl: ctrl, interval: interval, done: done}
}

// Play asks for playback to start or resume.
func (l *Loop) Play() { l.set(func(in *intents) { in.play = true }) }

// Pause asks for playback to toggle pause.
func (l *Loop) Pause() { l.set(func(in *intents) { in.pause = true }) }

// Next asks for an explicit skip.
func (l *Loop) Next() { l.set(func(in *intents) { in.next = true }) }

// Stop asks for playback to stop and the loop to exit. With no loop
// running it stops the controller directly, so nothing is left queued to
// cancel the next Start.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.running {
		l.pending.stop = true
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	l.ctrl.RequestStop()
}

func (l *Loop) set(f func(*intents)) {
	l.mu.Lock()
	f(&l.pending)
	l.mu.Unlock()
}

func (l *Loop) drain() intents {
	l.mu.Lock()
	defer l.mu.Unlock()
	in := l.pending
	l.pending = intents{}
	return in
}

// Start runs the loop in a new goroutine unless it is already running.
// It is how a UI brings playback back after a stop.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.done = make(chan struct{})
	l.mu.Unlock()

	go l.run(ctx)
}

// Running reports whether the loop goroutine is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Done is closed when the running loop exits.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Run drives the loop on the calling goroutine until a stop intent is seen
// or ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.done = make(chan struct{})
	l.mu.Unlock()

	l.run(ctx)
}

func (l *Loop) run(ctx context.Context) {
	defer func() {
		l.mu.Lock()
		l.running = false
		close(l.done)
		l.mu.Unlock()
	}()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		if l.Tick(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			l.ctrl.RequestStop()
			return
		case <-ticker.C:
		}
	}
}

// Tick applies one round of intents and backend events. It reports whether
// the loop should exit.
func (l *Loop) Tick(ctx context.Context) bool {
	in := l.drain()
	if in.stop {
		l.ctrl.RequestStop()
		log.Debug().Msg("playback loop stopped")
		return true
	}

	l.pollEvents(ctx)
	if in.pause {
		l.report(l.ctrl.RequestPause(ctx))
	}
	if in.play {
		l.report(l.ctrl.RequestPlay(ctx))
	}
	if in.next {
		l.report(l.ctrl.RequestNext(ctx))
	}
	return false
}

func (l *Loop) pollEvents(ctx context.Context) {
	events := l.ctrl.Backend().Events()
	for {
		select {
		case ev := <-events:
			l.report(l.ctrl.HandleEvent(ctx, ev))
		default:
			return
		}
	}
}

func (l *Loop) report(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, queue.ErrEndOfQueue) {
		log.Info().Msg("end of queue")
	} else {
		log.Error().Err(err).Msg("playback")
	}
	if l.OnError != nil {
		l.OnError(err)
	}
}
