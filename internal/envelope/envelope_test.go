package envelope

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInOutSineBoundsAndMonotonic(t *testing.T) {
	assert.Equal(t, 0.0, InOutSine(0))
	assert.Equal(t, 1.0, InOutSine(1))
	assert.InDelta(t, 0.5, InOutSine(0.5), 1e-12)

	prev := InOutSine(0)
	for i := 1; i <= 1000; i++ {
		x := float64(i) / 1000
		v := InOutSine(x)
		if v < prev {
			t.Fatalf("not monotonic at x=%v: %v < %v", x, v, prev)
		}
		if v < 0 || v > 1 {
			t.Fatalf("out of range at x=%v: %v", x, v)
		}
		prev = v
	}
}

func TestInOutSineSymmetric(t *testing.T) {
	for _, x := range []float64{0.1, 0.25, 0.4} {
		assert.InDelta(t, 1.0, InOutSine(x)+InOutSine(1-x), 1e-12, "x=%v", x)
	}
}

func TestInOutSineClampsOutside(t *testing.T) {
	assert.Equal(t, 0.0, InOutSine(-3))
	assert.Equal(t, 1.0, InOutSine(7))
}

func TestApplyKinds(t *testing.T) {
	for _, kind := range []string{Linear, Smooth, Cubic, Sine, "unknown", ""} {
		assert.Equal(t, 0.0, Apply(kind, 0), kind)
		assert.InDelta(t, 1.0, Apply(kind, 1), 1e-12, kind)
	}
	assert.Equal(t, 0.25, Apply(Linear, 0.25))
	assert.InDelta(t, 0.15625, Apply(Smooth, 0.25), 1e-12)
}

func TestEnvelopeEval(t *testing.T) {
	env := Envelope{Keys: []Keyframe{
		{T: 0, V: 0, Ease: Linear},
		{T: 10, V: 10, Ease: Linear},
	}}
	if v := env.Eval(-1); v != 0 {
		t.Fatalf("expected 0 before start, got %v", v)
	}
	if v := env.Eval(5); v != 5 {
		t.Fatalf("expected 5 at t=5, got %v", v)
	}
	if v := env.Eval(11); v != 10 {
		t.Fatalf("expected 10 after end, got %v", v)
	}
	assert.Equal(t, 0.0, Envelope{}.Eval(3))
}

func TestRampToOverridesUnfinishedRamp(t *testing.T) {
	var env Envelope
	env.RampTo(0, 2, 1, Linear) // fade in over 2s
	assert.InDelta(t, 0.5, env.Eval(1), 1e-12)

	// fade out starting half way through the fade in
	env.RampTo(1, 1.5, 0, Linear)
	assert.InDelta(t, 0.5, env.Eval(1), 1e-12, "ramp starts from current value")
	assert.InDelta(t, 0.25, env.Eval(1.75), 1e-12)
	assert.Equal(t, 0.0, env.Eval(2.5))
	assert.Equal(t, 2.5, env.End())
}

func TestRampToZeroDurationJumps(t *testing.T) {
	var env Envelope
	env.RampTo(3, 0, 0.7, Linear)
	assert.Equal(t, 0.7, env.Eval(3))
	assert.Equal(t, 0.7, env.Eval(100))
}

func TestPruneKeepsHoldValue(t *testing.T) {
	env := Envelope{Keys: []Keyframe{{T: 0, V: 0}, {T: 1, V: 1}, {T: 2, V: 0.5}, {T: 4, V: 0}}}
	env.Prune(2.5)
	assert.Len(t, env.Keys, 2)
	assert.InDelta(t, 0.25, env.Eval(3), 1e-12)
	assert.False(t, math.IsNaN(env.Eval(2.5)))
}
