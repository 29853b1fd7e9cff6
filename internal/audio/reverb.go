package audio

import (
	"math"
	"math/rand"
)

type tap struct {
	delay int
	gain  float32
}

// Reverb convolves with a sparse (velvet noise) impulse response: random
// sign impulses on a jittered grid under an exponential decay. Sparse taps
// keep the convolution cheap enough to run per sample.
type Reverb struct {
	taps []tap
	hist []float32
	pos  int
}

// NewReverb builds an impulse response reaching -60 dB at decay seconds
// with roughly density impulses per second.
func NewReverb(rate int, decay float64, density int, seed int64) *Reverb {
	if decay <= 0 || density <= 0 {
		return &Reverb{hist: make([]float32, 1)}
	}
	rng := rand.New(rand.NewSource(seed))
	grid := float64(rate) / float64(density)
	n := int(decay * float64(density))
	taps := make([]tap, 0, n)
	var energy float64
	maxDelay := 0
	for k := 0; k < n; k++ {
		d := int(float64(k)*grid + rng.Float64()*grid)
		if d < 1 {
			d = 1
		}
		t := float64(d) / float64(rate)
		g := math.Pow(10, -3*t/decay)
		if rng.Intn(2) == 0 {
			g = -g
		}
		energy += g * g
		taps = append(taps, tap{delay: d, gain: float32(g)})
		if d > maxDelay {
			maxDelay = d
		}
	}
	norm := float32(1 / math.Sqrt(math.Max(energy, 1e-9)))
	for i := range taps {
		taps[i].gain *= norm
	}
	return &Reverb{taps: taps, hist: make([]float32, maxDelay+1)}
}

// Process convolves dry into wet. len(wet) must be >= len(dry).
func (r *Reverb) Process(wet, dry []float32) {
	size := len(r.hist)
	for i, x := range dry {
		r.hist[r.pos] = x
		var acc float32
		for _, tp := range r.taps {
			j := r.pos - tp.delay
			if j < 0 {
				j += size
			}
			acc += tp.gain * r.hist[j]
		}
		wet[i] = acc
		r.pos++
		if r.pos == size {
			r.pos = 0
		}
	}
}

// Mix blends two buffers (a,b) into dst using alpha (0..1).
func Mix(dst, a, b []float32, alpha float64) {
	if alpha <= 0 {
		copy(dst, a)
		return
	}
	if alpha >= 1 {
		copy(dst, b)
		return
	}
	af := float32(1.0 - alpha)
	bf := float32(alpha)
	for i := range dst {
		dst[i] = a[i]*af + b[i]*bf
	}
}

// Limit soft-clips above knee so the sum of many voices never wraps.
func Limit(buf []float32, knee float32) {
	if knee <= 0 || knee >= 1 {
		knee = 0.8
	}
	span := 1 - knee
	for i, x := range buf {
		ax := x
		if ax < 0 {
			ax = -ax
		}
		if ax <= knee {
			continue
		}
		y := knee + span*float32(math.Tanh(float64((ax-knee)/span)))
		if x < 0 {
			y = -y
		}
		buf[i] = y
	}
}
