package envelope

import "math"

// Easing kinds understood by Apply.
const (
	Linear = "linear"
	Smooth = "smooth"
	Cubic  = "cubic"
	Sine   = "sine"
)

// Keyframe represents a value at time T (seconds) with an easing function
// that applies to the segment starting at this keyframe.
type Keyframe struct {
	T    float64 `json:"t" yaml:"t"`
	V    float64 `json:"v" yaml:"v"`
	Ease string  `json:"ease,omitempty" yaml:"ease,omitempty"`
}

// Envelope is a sorted list of keyframes; Eval(t) interpolates a value.
type Envelope struct {
	Keys []Keyframe `json:"keys" yaml:"keys"`
}

// Clamp01 clamps x in [0,1].
func Clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// InOutSine is the slow-start/slow-end curve used for camera travel.
// InOutSine(0)=0, InOutSine(1)=1, monotonic in between.
func InOutSine(x float64) float64 {
	x = Clamp01(x)
	switch x {
	case 0:
		return 0
	case 1:
		return 1
	}
	return -(math.Cos(math.Pi*x) - 1) / 2
}

// smootherstep (cubic-ish) for ease="cubic"
func smootherstep(x float64) float64 {
	// 6x^5 - 15x^4 + 10x^3
	return x * x * x * (x*(x*6-15) + 10)
}

// Apply maps x in [0,1] through the named easing. Unknown kinds are linear.
func Apply(kind string, x float64) float64 {
	x = Clamp01(x)
	switch kind {
	case Smooth:
		// classic smoothstep 3x^2 - 2x^3
		return x * x * (3 - 2*x)
	case Cubic:
		return smootherstep(x)
	case Sine:
		return InOutSine(x)
	default:
		return x
	}
}

// Eval returns the value of the envelope at time t (seconds).
// If there are no keys, returns 0; if one key, returns its value.
// Keys must be sorted by T ascending.
func (e Envelope) Eval(t float64) float64 {
	n := len(e.Keys)
	if n == 0 {
		return 0
	}
	if n == 1 || t <= e.Keys[0].T {
		return e.Keys[0].V
	}
	if t >= e.Keys[n-1].T {
		return e.Keys[n-1].V
	}
	for i := 0; i < n-1; i++ {
		a := e.Keys[i]
		b := e.Keys[i+1]
		if t >= a.T && t <= b.T {
			den := b.T - a.T
			if den <= 0 {
				return b.V
			}
			u := Apply(a.Ease, (t-a.T)/den)
			return a.V + (b.V-a.V)*u
		}
	}
	return e.Keys[n-1].V
}

// RampTo schedules a move from the envelope's value at `at` to v over dur
// seconds. Keys after `at` are discarded, so a later ramp overrides an
// unfinished earlier one.
func (e *Envelope) RampTo(at, dur, v float64, ease string) {
	cur := e.Eval(at)
	kept := e.Keys[:0]
	for _, k := range e.Keys {
		if k.T < at {
			kept = append(kept, k)
		}
	}
	e.Keys = append(kept, Keyframe{T: at, V: cur, Ease: ease})
	if dur <= 0 {
		e.Keys[len(e.Keys)-1].V = v
		return
	}
	e.Keys = append(e.Keys, Keyframe{T: at + dur, V: v})
}

// Prune drops keyframes that can no longer affect values at or after t,
// keeping the last one at or before t as the hold value.
func (e *Envelope) Prune(t float64) {
	last := -1
	for i, k := range e.Keys {
		if k.T <= t {
			last = i
		}
	}
	if last > 0 {
		e.Keys = append(e.Keys[:0], e.Keys[last:]...)
	}
}

// End returns the time of the final keyframe, or 0 for an empty envelope.
func (e Envelope) End() float64 {
	if len(e.Keys) == 0 {
		return 0
	}
	return e.Keys[len(e.Keys)-1].T
}
