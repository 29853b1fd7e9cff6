// Package loop provides the single-threaded cooperative scheduler the
// playback core runs on: posted tasks, one-shot timers, repeating intervals
// and per-frame callbacks all execute on one goroutine, so state owned by
// loop callbacks needs no locking.
package loop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Timer cancels a scheduled callback. Stop reports whether the callback was
// still pending. A stopped callback never runs, even if its deadline passed
// while it waited in the queue.
type Timer interface {
	Stop() bool
}

// Scheduler is the set of asynchronous primitives available to loop code.
type Scheduler interface {
	Now() time.Time
	// Post queues f to run on the loop. Safe from any goroutine.
	Post(f func())
	AfterFunc(d time.Duration, f func()) Timer
	Every(d time.Duration, f func()) Timer
	// RequestFrame runs f once, on the next frame tick.
	RequestFrame(f func(now time.Time)) Timer
}

const DefaultFPS = 60

// Loop is the production Scheduler backed by wall-clock timers.
type Loop struct {
	fps  int
	wake chan struct{}
	log  zerolog.Logger

	mu     sync.Mutex
	tasks  []func()
	frames []*frameReq

	running atomic.Bool
}

type frameReq struct {
	f       func(time.Time)
	stopped atomic.Bool
}

func (r *frameReq) Stop() bool { return !r.stopped.Swap(true) }

// New returns a Loop ticking frames at fps (DefaultFPS when <= 0).
func New(fps int, log zerolog.Logger) *Loop {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Loop{
		fps:  fps,
		wake: make(chan struct{}, 1),
		log:  log.With().Str("component", "loop").Logger(),
	}
}

func (l *Loop) FPS() int { return l.fps }

func (l *Loop) Now() time.Time { return time.Now() }

func (l *Loop) Post(f func()) {
	if f == nil {
		return
	}
	l.mu.Lock()
	l.tasks = append(l.tasks, f)
	l.mu.Unlock()
	l.signal()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// runTasks runs the tasks queued so far in post order. Tasks they post wait
// for the next wake so frames are not starved.
func (l *Loop) runTasks() {
	l.mu.Lock()
	batch := l.tasks
	l.tasks = nil
	l.mu.Unlock()
	for _, f := range batch {
		l.safe(f)
	}
}

// Run drains tasks and drives frames until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	if !l.running.CompareAndSwap(false, true) {
		l.log.Warn().Msg("loop already running")
		return
	}
	defer l.running.Store(false)

	tick := time.NewTicker(time.Second / time.Duration(l.fps))
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
			l.runTasks()
		case now := <-tick.C:
			l.runFrames(now)
		}
	}
}

func (l *Loop) runFrames(now time.Time) {
	l.mu.Lock()
	due := l.frames
	l.frames = nil
	l.mu.Unlock()
	for _, r := range due {
		if r.stopped.Swap(true) {
			continue
		}
		f := r.f
		l.safe(func() { f(now) })
	}
}

func (l *Loop) safe(f func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Msg("loop callback panicked")
		}
	}()
	f()
}

func (l *Loop) RequestFrame(f func(now time.Time)) Timer {
	r := &frameReq{f: f}
	l.mu.Lock()
	l.frames = append(l.frames, r)
	l.mu.Unlock()
	return r
}

type wallTimer struct {
	t       *time.Timer
	stopped atomic.Bool
}

func (w *wallTimer) Stop() bool {
	w.t.Stop()
	return !w.stopped.Swap(true)
}

func (l *Loop) AfterFunc(d time.Duration, f func()) Timer {
	w := &wallTimer{}
	w.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if w.stopped.Swap(true) {
				return
			}
			f()
		})
	})
	return w
}

type interval struct {
	stop    chan struct{}
	stopped atomic.Bool
}

func (i *interval) Stop() bool {
	if i.stopped.Swap(true) {
		return false
	}
	close(i.stop)
	return true
}

func (l *Loop) Every(d time.Duration, f func()) Timer {
	iv := &interval{stop: make(chan struct{})}
	go func() {
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-iv.stop:
				return
			case <-t.C:
				l.Post(func() {
					if iv.stopped.Load() {
						return
					}
					f()
				})
			}
		}
	}()
	return iv
}
