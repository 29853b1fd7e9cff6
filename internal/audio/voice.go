package audio

import (
	"math"

	"github.com/coreman2200/relive/internal/envelope"
)

// Voice is one enveloped tone placed on the session clock (seconds).
type Voice struct {
	Freq    float64
	Start   float64
	Hold    float64
	Attack  float64
	Release float64
	Gain    float64

	amp envelope.Envelope
}

func (v *Voice) prepare() {
	attack := math.Min(v.Attack, v.Hold)
	v.amp = envelope.Envelope{Keys: []envelope.Keyframe{
		{T: 0, V: 0, Ease: envelope.Smooth},
		{T: attack, V: 1},
		{T: v.Hold, V: 1, Ease: envelope.Smooth},
		{T: v.Hold + v.Release, V: 0},
	}}
}

// End is the time the voice falls silent.
func (v *Voice) End() float64 { return v.Start + v.Hold + v.Release }

// sample renders the voice at absolute time t. A quiet octave partial
// rounds out the sine.
func (v *Voice) sample(t float64) float64 {
	local := t - v.Start
	if local < 0 || local > v.Hold+v.Release {
		return 0
	}
	ph := 2 * math.Pi * v.Freq * local
	return v.Gain * v.amp.Eval(local) * (math.Sin(ph) + 0.15*math.Sin(2*ph))
}
