package loop

import (
	"sort"
	"sync"
	"time"
)

// Manual is a virtual-clock Scheduler for tests and offline rendering.
// Nothing runs until Advance or Flush is called; callbacks then execute on
// the caller's goroutine in deadline order.
type Manual struct {
	mu         sync.Mutex
	start      time.Time
	now        time.Time
	frameEvery time.Duration
	seq        uint64
	timers     []*manualTimer
	frames     []*frameReq
	posted     []func()

	// frameAt is the tick the pending frames run on, fixed when the first
	// of them is requested.
	frameAt time.Time
}

type manualTimer struct {
	due     time.Time
	every   time.Duration
	seq     uint64
	f       func()
	stopped bool
	m       *Manual
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// NewManual returns a Manual clock at start with frames every 1/fps.
func NewManual(start time.Time, fps int) *Manual {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Manual{
		start:      start,
		now:        start,
		frameEvery: time.Second / time.Duration(fps),
	}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Post(f func()) {
	if f == nil {
		return
	}
	m.mu.Lock()
	m.posted = append(m.posted, f)
	m.mu.Unlock()
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	return m.add(d, 0, f)
}

func (m *Manual) Every(d time.Duration, f func()) Timer {
	if d <= 0 {
		d = m.frameEvery
	}
	return m.add(d, d, f)
}

func (m *Manual) add(d, every time.Duration, f func()) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{due: m.now.Add(d), every: every, seq: m.seq, f: f, m: m}
	m.timers = append(m.timers, t)
	return t
}

func (m *Manual) RequestFrame(f func(now time.Time)) Timer {
	r := &frameReq{f: f}
	m.mu.Lock()
	if len(m.frames) == 0 {
		k := m.now.Sub(m.start)/m.frameEvery + 1
		m.frameAt = m.start.Add(k * m.frameEvery)
	}
	m.frames = append(m.frames, r)
	m.mu.Unlock()
	return r
}

// Flush runs posted tasks, including tasks posted by those tasks.
func (m *Manual) Flush() {
	for {
		m.mu.Lock()
		if len(m.posted) == 0 {
			m.mu.Unlock()
			return
		}
		f := m.posted[0]
		m.posted = m.posted[1:]
		m.mu.Unlock()
		f()
	}
}

// Advance moves the clock forward by d, firing everything that falls due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	m.Flush()
	for m.step(target) {
		m.Flush()
	}

	m.mu.Lock()
	if m.now.Before(target) {
		m.now = target
	}
	m.mu.Unlock()
}

// step fires the earliest pending event at or before target.
func (m *Manual) step(target time.Time) bool {
	m.mu.Lock()
	m.compact()

	var next *manualTimer
	if len(m.timers) > 0 {
		sort.SliceStable(m.timers, func(i, j int) bool {
			if m.timers[i].due.Equal(m.timers[j].due) {
				return m.timers[i].seq < m.timers[j].seq
			}
			return m.timers[i].due.Before(m.timers[j].due)
		})
		next = m.timers[0]
	}
	frameAt, haveFrames := m.nextFrameLocked()

	switch {
	case next != nil && !next.due.After(target) && (!haveFrames || !next.due.After(frameAt)):
		m.now = next.due
		if next.every > 0 {
			next.due = next.due.Add(next.every)
		} else {
			next.stopped = true
		}
		f := next.f
		m.mu.Unlock()
		f()
		return true
	case haveFrames && !frameAt.After(target):
		m.now = frameAt
		due := m.frames
		m.frames = nil
		m.mu.Unlock()
		for _, r := range due {
			if r.stopped.Swap(true) {
				continue
			}
			r.f(frameAt)
		}
		return true
	}
	m.mu.Unlock()
	return false
}

func (m *Manual) nextFrameLocked() (time.Time, bool) {
	live := false
	for _, r := range m.frames {
		if !r.stopped.Load() {
			live = true
			break
		}
	}
	if !live {
		m.frames = nil
		return time.Time{}, false
	}
	return m.frameAt, true
}

func (m *Manual) compact() {
	kept := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped {
			kept = append(kept, t)
		}
	}
	m.timers = kept
}

// Pending reports live timers and frame requests.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compact()
	n := len(m.timers)
	for _, r := range m.frames {
		if !r.stopped.Load() {
			n++
		}
	}
	return n
}
