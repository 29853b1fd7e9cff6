// Package animate draws one timeline segment at a time: the camera flies to
// the segment start, holds briefly, then a path grows toward the segment end
// with the camera locked to its leading edge.
package animate

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/relive/internal/envelope"
	"github.com/coreman2200/relive/internal/geo"
	"github.com/coreman2200/relive/internal/loop"
)

// FlyOptions controls a smooth camera flight. Ease names an envelope easing
// curve, or EaseSpring for a damped spring that settles within Duration.
type FlyOptions struct {
	Duration time.Duration
	Ease     string
}

const EaseSpring = "spring"

// Camera is the map viewport. FlyTo animates on its own and calls arrived
// (from any goroutine) once the flight settles; it may never call it if the
// flight is superseded, and arrived may be nil. SnapTo moves immediately
// without animation.
type Camera interface {
	FlyTo(p geo.Point, zoom float64, opts FlyOptions, arrived func())
	SnapTo(p geo.Point, zoom float64)
}

// LineStyle describes a stroke. Z-order is left to the Surface.
type LineStyle struct {
	Color   string    `json:"color"`
	Width   float64   `json:"width"`
	Opacity float64   `json:"opacity"`
	Dash    []float64 `json:"dash,omitempty"`
}

// Surface is the path-drawing handle. Set calls create or replace by id.
type Surface interface {
	SetLine(id string, pts []geo.Point, style LineStyle)
	RemoveLine(id string)
	SetMarker(id string, p geo.Point)
	RemoveMarker(id string)
}

// Ids of the shapes this package owns on the Surface.
const (
	GlowLine   = "segment-glow"
	CoreLine   = "segment-core"
	TrailLine  = "trail"
	LeadMarker = "leading-edge"
)

var (
	GlowStyle  = LineStyle{Color: "#f5c26b", Width: 10, Opacity: 0.25}
	CoreStyle  = LineStyle{Color: "#ffe3a3", Width: 2.5, Opacity: 0.95, Dash: []float64{2, 1.5}}
	TrailStyle = LineStyle{Color: "#f5c26b", Width: 2, Opacity: 0.35, Dash: []float64{1, 2}}
)

// Config holds the animator's timing. Zero fields take the defaults.
type Config struct {
	SegmentDuration time.Duration
	TravelPause     time.Duration
	TravelZoom      float64
	Fly             FlyOptions
}

func DefaultConfig() Config {
	return Config{
		SegmentDuration: 5 * time.Second,
		TravelPause:     400 * time.Millisecond,
		TravelZoom:      12,
		Fly:             FlyOptions{Duration: 1500 * time.Millisecond, Ease: EaseSpring},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SegmentDuration <= 0 {
		c.SegmentDuration = d.SegmentDuration
	}
	if c.TravelPause < 0 {
		c.TravelPause = 0
	}
	if c.TravelZoom == 0 {
		c.TravelZoom = d.TravelZoom
	}
	if c.Fly.Duration <= 0 {
		c.Fly = d.Fly
	}
	return c
}

// Phase of an in-flight segment.
type Phase int

const (
	Flying Phase = iota + 1
	Pausing
	Drawing
	Done
	Cancelled
)

func (p Phase) String() string {
	switch p {
	case Flying:
		return "flying"
	case Pausing:
		return "pausing"
	case Drawing:
		return "drawing"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Segment is the state of one animated hop. All fields are touched only on
// the loop goroutine.
type Segment struct {
	Index    int
	From, To geo.Point

	phase     Phase
	started   time.Time
	cancelled bool
	timer     loop.Timer
	frame     loop.Timer
	onDone    func()
	ticks     int
}

func (s *Segment) Phase() Phase { return s.phase }
func (s *Segment) Ticks() int   { return s.ticks }

// Animator runs at most one Segment at a time.
type Animator struct {
	sched  loop.Scheduler
	cam    Camera
	surf   Surface
	cfg    Config
	log    zerolog.Logger
	active *Segment
}

func New(sched loop.Scheduler, cam Camera, surf Surface, cfg Config, log zerolog.Logger) *Animator {
	return &Animator{
		sched: sched,
		cam:   cam,
		surf:  surf,
		cfg:   cfg.withDefaults(),
		log:   log.With().Str("component", "animator").Logger(),
	}
}

func (a *Animator) Config() Config { return a.cfg }

// Active returns the running segment, or nil.
func (a *Animator) Active() *Segment { return a.active }

// Run starts animating index -> index+1. Any running segment is cancelled
// first. onDone fires at most once, after the flight, the pause and the full
// draw, and never after Cancel.
func (a *Animator) Run(index int, from, to geo.Point, onDone func()) *Segment {
	a.Cancel()
	seg := &Segment{Index: index, From: from, To: to, phase: Flying, onDone: onDone}
	a.active = seg
	a.log.Debug().Int("index", index).Stringer("from", from).Stringer("to", to).Msg("segment start")

	a.cam.FlyTo(from, a.cfg.TravelZoom, a.cfg.Fly, func() {
		a.sched.Post(func() { a.arrived(seg) })
	})
	return seg
}

func (a *Animator) arrived(seg *Segment) {
	if seg.cancelled || seg.phase != Flying {
		return
	}
	seg.phase = Pausing
	seg.timer = a.sched.AfterFunc(a.cfg.TravelPause, func() {
		if seg.cancelled {
			return
		}
		seg.phase = Drawing
		seg.started = a.sched.Now()
		seg.frame = a.sched.RequestFrame(func(now time.Time) { a.tick(seg, now) })
	})
}

func (a *Animator) tick(seg *Segment, now time.Time) {
	if seg.cancelled {
		return
	}
	seg.ticks++
	raw := float64(now.Sub(seg.started)) / float64(a.cfg.SegmentDuration)
	if raw > 1 {
		raw = 1
	}
	if raw < 0 {
		raw = 0
	}
	p := geo.Lerp(seg.From, seg.To, envelope.InOutSine(raw))

	pts := []geo.Point{seg.From, p}
	a.surf.SetLine(GlowLine, pts, GlowStyle)
	a.surf.SetLine(CoreLine, pts, CoreStyle)
	a.surf.SetMarker(LeadMarker, p)
	a.cam.SnapTo(p, a.cfg.TravelZoom)

	if raw < 1 {
		seg.frame = a.sched.RequestFrame(func(now time.Time) { a.tick(seg, now) })
		return
	}
	a.finish(seg)
}

func (a *Animator) finish(seg *Segment) {
	if seg.cancelled || seg.phase == Done {
		return
	}
	seg.phase = Done
	if a.active == seg {
		a.active = nil
	}
	a.clearLive()
	a.log.Debug().Int("index", seg.Index).Int("ticks", seg.ticks).Msg("segment complete")
	if seg.onDone != nil {
		seg.onDone()
	}
}

// Cancel stops the running segment, if any, with no completion callback.
func (a *Animator) Cancel() bool {
	seg := a.active
	if seg == nil {
		return false
	}
	a.active = nil
	seg.cancel()
	a.clearLive()
	a.log.Debug().Int("index", seg.Index).Stringer("phase", seg.phase).Msg("segment cancelled")
	return true
}

func (s *Segment) cancel() {
	if s.cancelled {
		return
	}
	s.cancelled = true
	s.phase = Cancelled
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.frame != nil {
		s.frame.Stop()
	}
}

func (a *Animator) clearLive() {
	a.surf.RemoveLine(GlowLine)
	a.surf.RemoveLine(CoreLine)
	a.surf.RemoveMarker(LeadMarker)
}

// DrawTrail renders the already-visited part of the timeline, points[0..upTo],
// as one static dashed line.
func (a *Animator) DrawTrail(points []geo.Point, upTo int) {
	if upTo < 1 || len(points) < 2 {
		a.surf.RemoveLine(TrailLine)
		return
	}
	if upTo >= len(points) {
		upTo = len(points) - 1
	}
	pts := make([]geo.Point, upTo+1)
	copy(pts, points[:upTo+1])
	a.surf.SetLine(TrailLine, pts, TrailStyle)
}

// Clear removes everything this package drew.
func (a *Animator) Clear() {
	a.clearLive()
	a.surf.RemoveLine(TrailLine)
}
