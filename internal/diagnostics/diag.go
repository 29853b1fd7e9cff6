package diagnostics

import (
	"sync"
	"time"
)

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

type Diagnostic struct {
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
	At             time.Time      `json:"at"`
}

// Codes emitted by the playback host.
const (
	AudioUnavailable = "AUDIO.UNAVAILABLE"
	AudioStarted     = "AUDIO.STARTED"
	TimelineEmpty    = "TIMELINE.EMPTY"
	TimelineReloaded = "TIMELINE.RELOADED"
	TimelineInvalid  = "TIMELINE.INVALID"
	SegmentCancelled = "SEGMENT.CANCELLED"
	SessionExited    = "SESSION.EXITED"
)

func AudioUnavailableDiag(err error) Diagnostic {
	d := Diagnostic{
		Severity: Warn,
		Code:     AudioUnavailable,
		Summary:  "Ambient audio is unavailable; playback continues silently",
		LikelyCauses: []string{
			"no audio device or driver on this host",
			"another audio context already runs at a different sample rate",
		},
		SuggestedFixes: []string{"set audio.backend to none to skip audio", "check the system sound output"},
	}
	if err != nil {
		d.Detail = err.Error()
	}
	return d
}

func TimelineInvalidDiag(path string, err error) Diagnostic {
	return Diagnostic{
		Severity:       Err,
		Code:           TimelineInvalid,
		Summary:        "Record file could not be loaded; keeping the previous timeline",
		Detail:         err.Error(),
		SuggestedFixes: []string{"every record needs a date or created_at"},
		Evidence:       map[string]any{"path": path},
	}
}

// Feed keeps the most recent diagnostics and fans new ones out to
// subscribers.
type Feed struct {
	mu     sync.Mutex
	max    int
	items  []Diagnostic
	subs   map[int]chan Diagnostic
	nextID int
	now    func() time.Time
}

func NewFeed(max int) *Feed {
	if max <= 0 {
		max = 64
	}
	return &Feed{max: max, subs: map[int]chan Diagnostic{}, now: time.Now}
}

// Push records d. Slow subscribers miss items rather than block.
func (f *Feed) Push(d Diagnostic) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.At.IsZero() {
		d.At = f.now()
	}
	f.items = append(f.items, d)
	if len(f.items) > f.max {
		f.items = f.items[len(f.items)-f.max:]
	}
	for _, ch := range f.subs {
		select {
		case ch <- d:
		default:
		}
	}
}

// Recent returns the retained diagnostics, oldest first.
func (f *Feed) Recent() []Diagnostic {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Diagnostic(nil), f.items...)
}

// Subscribe returns a channel of new diagnostics and a cancel function.
func (f *Feed) Subscribe(buffer int) (<-chan Diagnostic, func()) {
	ch := make(chan Diagnostic, buffer)
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.subs[id] = ch
	f.mu.Unlock()
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(ch)
		}
	}
}
