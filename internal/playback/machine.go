// Package playback is the state machine that replays a timeline: it owns the
// current position, hands segments to the animator, runs the autoplay timer
// and starts and stops the ambient audio around the session.
package playback

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/relive/internal/animate"
	"github.com/coreman2200/relive/internal/geo"
	"github.com/coreman2200/relive/internal/loop"
	"github.com/coreman2200/relive/internal/timeline"
)

// Audio is the ambient loop as seen by the machine.
type Audio interface {
	Start()
	Stop()
	IsActive() bool
}

type silent struct{}

func (silent) Start()         {}
func (silent) Stop()          {}
func (silent) IsActive() bool { return false }

// View is a camera position.
type View struct {
	Center geo.Point `json:"center" yaml:"center"`
	Zoom   float64   `json:"zoom" yaml:"zoom"`
}

type Config struct {
	Animate  animate.Config
	Dwell    time.Duration
	Overview View
	Autoplay bool
	Music    bool
	FPS      int
}

func DefaultConfig() Config {
	return Config{
		Animate:  animate.DefaultConfig(),
		Dwell:    4 * time.Second,
		Overview: View{Center: geo.Point{Lat: 20, Lng: 0}, Zoom: 2},
		Music:    true,
		FPS:      loop.DefaultFPS,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Dwell <= 0 {
		c.Dwell = d.Dwell
	}
	if c.Overview.Zoom <= 0 {
		c.Overview = d.Overview
	}
	if c.FPS <= 0 {
		c.FPS = d.FPS
	}
	return c
}

// Hooks let observers follow what the machine does. All are optional and
// run on the loop goroutine.
type Hooks struct {
	OnChange           func(State)
	OnSegmentDone      func(index int)
	OnSegmentCancelled func(index int)
	OnAutoplayAdvance  func(index int)
	OnExit             func()
}

// Machine is the playback state machine. Every method must run on the
// scheduler's goroutine; Session wraps it for use from anywhere else.
type Machine struct {
	sched loop.Scheduler
	cam   animate.Camera
	anim  *animate.Animator
	audio Audio
	cfg   Config
	log   zerolog.Logger
	hooks Hooks

	tl     timeline.Timeline
	points []geo.Point
	st     State
	last   State

	auto    loop.Timer
	autoKey autoKey
	autoGen uint64

	observers []observer
	nextObs   int
}

type observer struct {
	id int
	fn func(State)
}

// NewMachine builds an Idle machine over the chronologically sorted records.
func NewMachine(sched loop.Scheduler, records []timeline.Record, cam animate.Camera, surf animate.Surface, a Audio, cfg Config, log zerolog.Logger) *Machine {
	if a == nil {
		a = silent{}
	}
	cfg = cfg.withDefaults()
	log = log.With().Str("component", "playback").Logger()
	m := &Machine{
		sched: sched,
		cam:   cam,
		anim:  animate.New(sched, cam, surf, cfg.Animate, log),
		audio: a,
		cfg:   cfg,
		log:   log,
	}
	m.setTimeline(timeline.Sort(records))
	m.st.CurrentIndex = -1
	m.st.Autoplaying = cfg.Autoplay
	m.st.MusicEnabled = cfg.Music
	m.last = m.snapshot()
	return m
}

func (m *Machine) SetHooks(h Hooks) { m.hooks = h }

func (m *Machine) setTimeline(tl timeline.Timeline) {
	m.tl = tl
	m.points = tl.Points()
	m.st.Total = tl.Len()
}

// State returns the current state.
func (m *Machine) State() State { return m.snapshot() }

func (m *Machine) snapshot() State {
	s := m.st
	s.AudioActive = m.audio.IsActive()
	return s
}

func (m *Machine) Timeline() timeline.Timeline { return m.tl }

// Current returns the record at the current index.
func (m *Machine) Current() (timeline.Record, bool) {
	if m.st.CurrentIndex < 0 || m.st.CurrentIndex >= m.tl.Len() {
		return timeline.Record{}, false
	}
	return m.tl.At(m.st.CurrentIndex), true
}

// Segment returns the animation in flight, or nil.
func (m *Machine) Segment() *animate.Segment { return m.anim.Active() }

// Subscribe registers fn for every state change. The returned function
// removes it.
func (m *Machine) Subscribe(fn func(State)) func() {
	m.nextObs++
	id := m.nextObs
	m.observers = append(m.observers, observer{id: id, fn: fn})
	return func() {
		for i, o := range m.observers {
			if o.id == id {
				m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
				return
			}
		}
	}
}

// changed re-arms autoplay for the new state and notifies observers when
// anything visible moved.
func (m *Machine) changed() {
	m.reconcileAutoplay()
	s := m.snapshot()
	if s == m.last {
		return
	}
	m.last = s
	m.log.Debug().Stringer("state", s).Msg("state")
	if m.hooks.OnChange != nil {
		m.hooks.OnChange(s)
	}
	for _, o := range append([]observer(nil), m.observers...) {
		o.fn(s)
	}
}

// Apply runs one command.
func (m *Machine) Apply(c Command) {
	switch c {
	case CmdStart:
		m.Start()
	case CmdNext:
		m.GoNext()
	case CmdPrev:
		m.GoPrev()
	case CmdToggleAutoplay:
		m.ToggleAutoplay()
	case CmdToggleMusic:
		m.ToggleMusic()
	case CmdSkipToEnd:
		m.SkipToEnd()
	case CmdExit:
		m.Exit()
	}
}

func (m *Machine) flyTo(i int) {
	m.cam.FlyTo(m.points[i], m.anim.Config().TravelZoom, m.anim.Config().Fly, nil)
}

// Start begins playback at the first record. It does nothing once started,
// after Exit, or when there is nothing to play.
func (m *Machine) Start() {
	if m.st.Exited || m.st.Started {
		return
	}
	if m.tl.Empty() {
		m.log.Debug().Msg("start ignored: empty timeline")
		return
	}
	m.st.Started = true
	m.st.CurrentIndex = 0
	if m.st.MusicEnabled {
		m.audio.Start()
	}
	m.anim.DrawTrail(m.points, 0)
	m.flyTo(0)
	m.log.Info().Int("records", m.tl.Len()).Msg("playback started")
	m.changed()
}

// GoNext animates the segment to the next record. The index moves only when
// the animation completes.
func (m *Machine) GoNext() {
	if m.st.Exited || !m.st.Started || m.st.Transitioning || m.st.CurrentIndex >= m.tl.Len()-1 {
		return
	}
	idx := m.st.CurrentIndex
	m.st.Transitioning = true
	m.changed()
	m.anim.Run(idx, m.points[idx], m.points[idx+1], func() { m.segmentDone(idx) })
}

func (m *Machine) segmentDone(idx int) {
	if m.st.Exited || !m.st.Transitioning || m.st.CurrentIndex != idx {
		m.log.Debug().Int("index", idx).Msg("stale segment completion dropped")
		return
	}
	m.st.CurrentIndex = idx + 1
	m.st.Transitioning = false
	m.anim.DrawTrail(m.points, m.st.CurrentIndex)
	if m.hooks.OnSegmentDone != nil {
		m.hooks.OnSegmentDone(idx)
	}
	m.changed()
}

// cancelSegment stops the animation in flight, if any.
func (m *Machine) cancelSegment() {
	seg := m.anim.Active()
	if seg == nil || !m.anim.Cancel() {
		return
	}
	if m.hooks.OnSegmentCancelled != nil {
		m.hooks.OnSegmentCancelled(seg.Index)
	}
}

// GoPrev steps back one record at once, with a plain camera flight and no
// path drawing.
func (m *Machine) GoPrev() {
	if m.st.Exited || !m.st.Started || m.st.Transitioning || m.st.CurrentIndex <= 0 {
		return
	}
	m.st.CurrentIndex--
	m.anim.DrawTrail(m.points, m.st.CurrentIndex)
	m.flyTo(m.st.CurrentIndex)
	m.changed()
}

func (m *Machine) ToggleAutoplay() {
	if m.st.Exited {
		return
	}
	m.st.Autoplaying = !m.st.Autoplaying
	m.changed()
}

// ToggleMusic flips the music preference, starting or stopping the ambient
// loop with it. A preference that is on while the audio is unavailable
// counts as on.
func (m *Machine) ToggleMusic() {
	if m.st.Exited {
		return
	}
	if m.st.MusicEnabled || m.audio.IsActive() {
		m.audio.Stop()
		m.st.MusicEnabled = false
	} else {
		m.st.MusicEnabled = true
		m.audio.Start()
	}
	m.changed()
}

// SkipToEnd jumps straight to the last record and turns autoplay off.
func (m *Machine) SkipToEnd() {
	if m.st.Exited || !m.st.Started || m.st.Transitioning {
		return
	}
	last := m.tl.Len() - 1
	m.st.CurrentIndex = last
	m.st.Autoplaying = false
	m.anim.DrawTrail(m.points, last)
	m.flyTo(last)
	m.changed()
}

// Exit tears the session down: the animation and autoplay timer are
// cancelled, audio fades out and the camera returns to the overview. The
// index is left where it was. Exit is idempotent and final.
func (m *Machine) Exit() {
	if m.st.Exited {
		return
	}
	m.st.Exited = true
	m.cancelSegment()
	m.cancelAutoplay()
	m.audio.Stop()
	m.anim.Clear()
	m.st.Transitioning = false
	m.st.Autoplaying = false
	m.cam.FlyTo(m.cfg.Overview.Center, m.cfg.Overview.Zoom, m.anim.Config().Fly, nil)
	m.log.Info().Int("index", m.st.CurrentIndex).Msg("playback exited")
	m.changed()
	if m.hooks.OnExit != nil {
		m.hooks.OnExit()
	}
}

// Reload swaps in a new record set. The current record is kept when it is
// still present, otherwise the index is clamped. An animation in flight is
// cancelled. An empty set returns the machine to Idle.
func (m *Machine) Reload(records []timeline.Record) {
	if m.st.Exited {
		return
	}
	var curID string
	if r, ok := m.Current(); ok {
		curID = r.ID
	}
	m.cancelSegment()
	m.st.Transitioning = false
	m.setTimeline(timeline.Sort(records))

	switch {
	case m.tl.Empty():
		m.st.Started = false
		m.st.CurrentIndex = -1
		m.anim.Clear()
	case m.st.Started:
		idx := m.tl.IndexOf(curID)
		if idx < 0 {
			idx = min(m.st.CurrentIndex, m.tl.Len()-1)
		}
		m.st.CurrentIndex = idx
		m.anim.DrawTrail(m.points, idx)
		m.flyTo(idx)
	}
	m.log.Info().Int("records", m.tl.Len()).Int("index", m.st.CurrentIndex).Msg("timeline reloaded")
	m.changed()
}
