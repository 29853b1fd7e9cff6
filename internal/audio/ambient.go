// Package audio is the ambient chord loop that plays under a timeline
// session. It synthesizes its own tones, schedules whole repetitions of the
// progression ahead of time and fades in and out around its session.
package audio

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coreman2200/relive/internal/loop"
)

// ErrUnavailable means the host refused to give us an output.
var ErrUnavailable = errors.New("audio: output unavailable")

// Host opens an output stream that pulls PCM from src.
type Host interface {
	Open(sampleRate int, src io.Reader) (Stream, error)
}

// Stream is a playing output. Close releases it.
type Stream interface {
	Close() error
}

type Config struct {
	SampleRate       int
	ChordInterval    time.Duration
	Lookahead        time.Duration
	ScheduleInterval time.Duration
	FadeIn           time.Duration
	FadeOut          time.Duration
	Attack           time.Duration
	Release          time.Duration
	Volume           float64
	WetMix           float64
	DetuneCents      float64
	ReverbDecay      time.Duration
	Seed             int64
}

func DefaultConfig() Config {
	return Config{
		SampleRate:       44100,
		ChordInterval:    3 * time.Second,
		Lookahead:        2 * time.Second,
		ScheduleInterval: 500 * time.Millisecond,
		FadeIn:           2 * time.Second,
		FadeOut:          1500 * time.Millisecond,
		Attack:           800 * time.Millisecond,
		Release:          1200 * time.Millisecond,
		Volume:           0.5,
		WetMix:           0.35,
		DetuneCents:      6,
		ReverbDecay:      2400 * time.Millisecond,
		Seed:             7,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.ChordInterval <= 0 {
		c.ChordInterval = d.ChordInterval
	}
	if c.Lookahead <= 0 {
		c.Lookahead = d.Lookahead
	}
	if c.ScheduleInterval <= 0 {
		c.ScheduleInterval = d.ScheduleInterval
	}
	if c.FadeIn < 0 {
		c.FadeIn = 0
	}
	if c.FadeOut < 0 {
		c.FadeOut = 0
	}
	if c.Attack <= 0 {
		c.Attack = d.Attack
	}
	if c.Release <= 0 {
		c.Release = d.Release
	}
	if c.Volume <= 0 {
		c.Volume = d.Volume
	}
	if c.ReverbDecay <= 0 {
		c.ReverbDecay = d.ReverbDecay
	}
	return c
}

// LoopLength is the duration of one pass through the progression.
func (c Config) LoopLength() time.Duration {
	return time.Duration(len(Progression)) * c.ChordInterval
}

// Hooks allow observers to follow the session lifecycle.
type Hooks struct {
	OnStart       func(id string)
	OnStop        func(id string)
	OnRelease     func(id string)
	OnUnavailable func(err error)
	OnBatch       func(id string, batch int)
}

// Session is one live audio graph and its scheduling loop. It exists from
// Start until its fade-out finishes.
type Session struct {
	ID string

	graph   *Graph
	stream  Stream
	started time.Time
	queued  float64 // session seconds where scheduled material ends
	batches int

	ticker   loop.Timer
	teardown loop.Timer
	stopping bool
	released bool
}

func (s *Session) Graph() *Graph { return s.graph }

// NextBatchStart is when the next queued repetition begins, on the wall clock.
func (s *Session) NextBatchStart() time.Time {
	return s.started.Add(time.Duration(s.queued * float64(time.Second)))
}

func (s *Session) Batches() int       { return s.batches }
func (s *Session) Stopping() bool     { return s.stopping }
func (s *Session) Released() bool     { return s.released }
func (s *Session) Started() time.Time { return s.started }

// Ambient owns at most one live Session. All methods must be called on the
// loop goroutine.
type Ambient struct {
	sched loop.Scheduler
	host  Host
	cfg   Config
	log   zerolog.Logger
	hooks Hooks

	session  *Session
	draining map[*Session]struct{}
}

func NewAmbient(sched loop.Scheduler, host Host, cfg Config, log zerolog.Logger) *Ambient {
	return &Ambient{
		sched:    sched,
		host:     host,
		cfg:      cfg.withDefaults(),
		log:      log.With().Str("component", "audio").Logger(),
		draining: map[*Session]struct{}{},
	}
}

func (a *Ambient) SetHooks(h Hooks) { a.hooks = h }
func (a *Ambient) Config() Config   { return a.cfg }

// IsActive reports whether a session is playing (not counting one that is
// fading out after Stop).
func (a *Ambient) IsActive() bool { return a.session != nil }

// Session returns the live session, or nil.
func (a *Ambient) Session() *Session { return a.session }

// Draining returns the number of stopped sessions still fading out.
func (a *Ambient) Draining() int { return len(a.draining) }

// Start opens a session and begins scheduling. It is a no-op when one is
// already active, and fails silently when the host refuses.
func (a *Ambient) Start() {
	if a.session != nil {
		return
	}
	cfg := a.cfg
	rev := NewReverb(cfg.SampleRate, cfg.ReverbDecay.Seconds(), 200, cfg.Seed)
	g := NewGraph(cfg.SampleRate, cfg.WetMix, rev)

	st, err := a.open(g)
	if err != nil {
		a.log.Debug().Err(err).Msg("audio unavailable; continuing silently")
		if a.hooks.OnUnavailable != nil {
			a.hooks.OnUnavailable(err)
		}
		return
	}

	s := &Session{ID: uuid.NewString(), graph: g, stream: st, started: a.sched.Now()}
	g.RampMaster(0, cfg.FadeIn.Seconds(), cfg.Volume)
	a.queueBatch(s)
	s.ticker = a.sched.Every(cfg.ScheduleInterval, func() { a.lookahead(s) })
	a.session = s
	a.log.Info().Str("session", s.ID).Msg("ambient audio started")
	if a.hooks.OnStart != nil {
		a.hooks.OnStart(s.ID)
	}
}

func (a *Ambient) open(g *Graph) (st Stream, err error) {
	if a.host == nil {
		return nil, ErrUnavailable
	}
	defer func() {
		if r := recover(); r != nil {
			st = nil
			err = fmt.Errorf("%w: %v", ErrUnavailable, r)
		}
	}()
	st, err = a.host.Open(g.SampleRate(), g)
	if err != nil && !errors.Is(err, ErrUnavailable) {
		err = fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err == nil && st == nil {
		err = ErrUnavailable
	}
	return st, err
}

func (a *Ambient) elapsed(s *Session) float64 {
	return a.sched.Now().Sub(s.started).Seconds()
}

// lookahead queues the next repetition once the clock is within the lead
// margin of the end of the queued material.
func (a *Ambient) lookahead(s *Session) {
	if s.released {
		return
	}
	lead := a.cfg.Lookahead.Seconds()
	for a.elapsed(s) >= s.queued-lead {
		a.queueBatch(s)
	}
}

func (a *Ambient) queueBatch(s *Session) {
	step := a.cfg.ChordInterval.Seconds()
	base := s.queued
	for i, ch := range Progression {
		start := base + float64(i)*step
		n := len(ch.Freqs)
		for j, f := range ch.Freqs {
			s.graph.Schedule(Voice{
				Freq:    f * detune(j, n, a.cfg.DetuneCents),
				Start:   start,
				Hold:    step,
				Attack:  a.cfg.Attack.Seconds(),
				Release: a.cfg.Release.Seconds(),
				Gain:    0.6 / float64(n),
			})
		}
	}
	s.queued = base + float64(len(Progression))*step
	s.batches++
	a.log.Debug().Str("session", s.ID).Int("batch", s.batches).Float64("until", s.queued).Msg("queued progression")
	if a.hooks.OnBatch != nil {
		a.hooks.OnBatch(s.ID, s.batches)
	}
}

// Stop fades the live session out and releases it after the fade. The
// session detaches at once, so a Start right after gets a fresh one while
// the old one finishes its fade on its own timer.
func (a *Ambient) Stop() {
	s := a.session
	if s == nil {
		return
	}
	a.session = nil
	s.stopping = true
	s.graph.RampMaster(a.elapsed(s), a.cfg.FadeOut.Seconds(), 0)
	a.draining[s] = struct{}{}
	s.teardown = a.sched.AfterFunc(a.cfg.FadeOut, func() { a.release(s) })
	a.log.Info().Str("session", s.ID).Dur("fade", a.cfg.FadeOut).Msg("ambient audio stopping")
	if a.hooks.OnStop != nil {
		a.hooks.OnStop(s.ID)
	}
}

func (a *Ambient) release(s *Session) {
	if s.released {
		return
	}
	s.released = true
	if s.ticker != nil {
		s.ticker.Stop()
	}
	if s.teardown != nil {
		s.teardown.Stop()
	}
	s.graph.Close()
	if err := s.stream.Close(); err != nil {
		a.log.Warn().Err(err).Str("session", s.ID).Msg("close audio stream")
	}
	delete(a.draining, s)
	if a.session == s {
		a.session = nil
	}
	a.log.Debug().Str("session", s.ID).Msg("audio session released")
	if a.hooks.OnRelease != nil {
		a.hooks.OnRelease(s.ID)
	}
}

// Shutdown releases every session immediately, skipping fades.
func (a *Ambient) Shutdown() {
	if s := a.session; s != nil {
		a.release(s)
	}
	for s := range a.draining {
		a.release(s)
	}
}
