// Package mapview is an in-memory map: a camera that flies on damped springs
// or eased tweens, and a drawing surface that keeps shapes by id. Headless
// hosts render from its snapshots.
package mapview

import (
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/harmonica"
	"github.com/rs/zerolog"

	"github.com/coreman2200/relive/internal/animate"
	"github.com/coreman2200/relive/internal/envelope"
	"github.com/coreman2200/relive/internal/geo"
	"github.com/coreman2200/relive/internal/loop"
)

// View is where the camera points.
type View struct {
	Center geo.Point `json:"center"`
	Zoom   float64   `json:"zoom"`
}

type Line struct {
	Points []geo.Point        `json:"points"`
	Style  animate.LineStyle `json:"style"`
}

// Snapshot is a copy of everything on the map.
type Snapshot struct {
	View     View                 `json:"view"`
	Flying   bool                 `json:"flying"`
	Lines    map[string]Line      `json:"lines"`
	Markers  map[string]geo.Point `json:"markers"`
	Revision uint64               `json:"revision"`
}

type flight struct {
	from    View
	target  View
	dur     time.Duration
	started time.Time
	ease    string
	spring  harmonica.Spring
	vLat    float64
	vLng    float64
	vZoom   float64
	arrived func()
	frame   loop.Timer
	stopped bool
}

const settleEpsilon = 1e-7

// Sim implements animate.Camera and animate.Surface. Mutating calls come from
// the loop goroutine; Snapshot may be called from anywhere.
type Sim struct {
	sched loop.Scheduler
	fps   int
	log   zerolog.Logger

	mu       sync.RWMutex
	view     View
	lines    map[string]Line
	markers  map[string]geo.Point
	flight   *flight
	revision uint64
}

func NewSim(sched loop.Scheduler, fps int, start View, log zerolog.Logger) *Sim {
	if fps <= 0 {
		fps = loop.DefaultFPS
	}
	return &Sim{
		sched:   sched,
		fps:     fps,
		log:     log.With().Str("component", "mapview").Logger(),
		view:    start,
		lines:   map[string]Line{},
		markers: map[string]geo.Point{},
	}
}

// FlyTo moves the camera over opts.Duration, then snaps exactly onto the
// target and calls arrived. With opts.Ease empty or animate.EaseSpring the
// camera rides critically damped springs; any other ease tweens along that
// envelope curve. A flight replaced by another FlyTo or a SnapTo never
// arrives.
func (s *Sim) FlyTo(p geo.Point, zoom float64, opts animate.FlyOptions, arrived func()) {
	dur := opts.Duration
	if dur <= 0 {
		dur = time.Second
	}
	// e^{-wt}(1+wt) is about 0.3% at wt = 8
	omega := 8 / dur.Seconds()
	f := &flight{
		target:  View{Center: p, Zoom: zoom},
		dur:     dur,
		started: s.sched.Now(),
		spring:  harmonica.NewSpring(harmonica.FPS(s.fps), omega, 1.0),
		arrived: arrived,
	}
	if opts.Ease != animate.EaseSpring {
		f.ease = opts.Ease
	}
	s.mu.Lock()
	f.from = s.view
	s.stopFlightLocked()
	s.flight = f
	s.revision++
	s.mu.Unlock()
	f.frame = s.sched.RequestFrame(func(now time.Time) { s.step(f, now) })
}

func (s *Sim) stopFlightLocked() {
	if s.flight == nil {
		return
	}
	s.flight.stopped = true
	if s.flight.frame != nil {
		s.flight.frame.Stop()
	}
	s.flight = nil
}

func (s *Sim) step(f *flight, now time.Time) {
	s.mu.Lock()
	if f.stopped {
		s.mu.Unlock()
		return
	}
	v := s.view
	if f.ease == "" {
		v.Center.Lat, f.vLat = f.spring.Update(v.Center.Lat, f.vLat, f.target.Center.Lat)
		v.Center.Lng, f.vLng = f.spring.Update(v.Center.Lng, f.vLng, f.target.Center.Lng)
		v.Zoom, f.vZoom = f.spring.Update(v.Zoom, f.vZoom, f.target.Zoom)
	} else {
		u := envelope.Apply(f.ease, now.Sub(f.started).Seconds()/f.dur.Seconds())
		v.Center = geo.Lerp(f.from.Center, f.target.Center, u)
		v.Zoom = f.from.Zoom + (f.target.Zoom-f.from.Zoom)*u
	}

	done := now.Sub(f.started) >= f.dur || settled(v, f)
	if done {
		v = f.target
		f.stopped = true
		s.flight = nil
	}
	s.view = v
	s.revision++
	s.mu.Unlock()

	if !done {
		f.frame = s.sched.RequestFrame(func(now time.Time) { s.step(f, now) })
		return
	}
	s.log.Debug().Stringer("center", v.Center).Float64("zoom", v.Zoom).Msg("flight arrived")
	if f.arrived != nil {
		f.arrived()
	}
}

func settled(v View, f *flight) bool {
	d := math.Abs(v.Center.Lat-f.target.Center.Lat) + math.Abs(v.Center.Lng-f.target.Center.Lng) + math.Abs(v.Zoom-f.target.Zoom)
	vel := math.Abs(f.vLat) + math.Abs(f.vLng) + math.Abs(f.vZoom)
	return d < settleEpsilon && vel < settleEpsilon
}

// SnapTo moves immediately, cancelling any flight.
func (s *Sim) SnapTo(p geo.Point, zoom float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopFlightLocked()
	s.view = View{Center: p, Zoom: zoom}
	s.revision++
}

func (s *Sim) SetLine(id string, pts []geo.Point, style animate.LineStyle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[id] = Line{Points: append([]geo.Point(nil), pts...), Style: style}
	s.revision++
}

func (s *Sim) RemoveLine(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lines[id]; ok {
		delete(s.lines, id)
		s.revision++
	}
}

func (s *Sim) SetMarker(id string, p geo.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[id] = p
	s.revision++
}

func (s *Sim) RemoveMarker(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markers[id]; ok {
		delete(s.markers, id)
		s.revision++
	}
}

// View returns the current camera position.
func (s *Sim) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Revision increases on every visible change.
func (s *Sim) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

func (s *Sim) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Snapshot{
		View:     s.view,
		Flying:   s.flight != nil,
		Lines:    make(map[string]Line, len(s.lines)),
		Markers:  make(map[string]geo.Point, len(s.markers)),
		Revision: s.revision,
	}
	for id, l := range s.lines {
		out.Lines[id] = Line{Points: append([]geo.Point(nil), l.Points...), Style: l.Style}
	}
	for id, p := range s.markers {
		out.Markers[id] = p
	}
	return out
}
