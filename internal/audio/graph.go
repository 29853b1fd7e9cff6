package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync"

	"github.com/coreman2200/relive/internal/envelope"
)

const bytesPerFrame = 4 // 16-bit stereo

// Graph is the live audio graph: scheduled voices feed a dry path and a
// reverberant path, summed into a master gain. Read renders it as 16-bit
// little-endian stereo PCM for a host sink; the other methods are called
// from the loop. Times are seconds on the session clock.
type Graph struct {
	mu     sync.Mutex
	rate   int
	pos    int64
	voices []*Voice
	master envelope.Envelope
	reverb *Reverb
	wet    float64
	closed bool

	dry, rev []float32
}

func NewGraph(rate int, wet float64, reverb *Reverb) *Graph {
	if rate <= 0 {
		rate = 44100
	}
	if reverb == nil {
		reverb = NewReverb(rate, 0, 0, 0)
	}
	return &Graph{rate: rate, wet: envelope.Clamp01(wet), reverb: reverb}
}

func (g *Graph) SampleRate() int { return g.rate }

// Position is how far the sink has pulled, in seconds.
func (g *Graph) Position() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return float64(g.pos) / float64(g.rate)
}

// Schedule adds a voice. Voices that already ended are dropped.
func (g *Graph) Schedule(v Voice) {
	v.prepare()
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || v.End() <= float64(g.pos)/float64(g.rate) {
		return
	}
	g.voices = append(g.voices, &v)
}

// Voices returns the number of voices not yet finished.
func (g *Graph) Voices() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.voices)
}

// RampMaster moves the master gain from its value at `at` to v over dur.
func (g *Graph) RampMaster(at, dur, v float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.master.RampTo(at, dur, v, envelope.Smooth)
}

// Gain evaluates the master envelope at t.
func (g *Graph) Gain(t float64) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.master.Eval(t)
}

// Close ends the stream; subsequent reads return io.EOF.
func (g *Graph) Close() {
	g.mu.Lock()
	g.closed = true
	g.voices = nil
	g.mu.Unlock()
}

func (g *Graph) Read(p []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, io.EOF
	}
	n := len(p) / bytesPerFrame
	if n == 0 {
		return 0, nil
	}
	if cap(g.dry) < n {
		g.dry = make([]float32, n)
		g.rev = make([]float32, n)
	}
	dry, rev := g.dry[:n], g.rev[:n]
	g.render(dry, rev)
	for i, s := range dry {
		v := int16(math.Round(float64(s) * math.MaxInt16))
		binary.LittleEndian.PutUint16(p[i*4:], uint16(v))
		binary.LittleEndian.PutUint16(p[i*4+2:], uint16(v))
	}
	return n * bytesPerFrame, nil
}

// render fills dry with n mono samples of final output; rev is scratch.
func (g *Graph) render(dry, rev []float32) {
	t0 := float64(g.pos) / float64(g.rate)
	step := 1 / float64(g.rate)
	for i := range dry {
		t := t0 + float64(i)*step
		var acc float64
		for _, v := range g.voices {
			acc += v.sample(t)
		}
		dry[i] = float32(acc)
	}
	g.reverb.Process(rev, dry)
	Mix(dry, dry, rev, g.wet)
	for i := range dry {
		dry[i] *= float32(g.master.Eval(t0 + float64(i)*step))
	}
	Limit(dry, 0.8)

	g.pos += int64(len(dry))
	now := float64(g.pos) / float64(g.rate)
	live := g.voices[:0]
	for _, v := range g.voices {
		if v.End() > now {
			live = append(live, v)
		}
	}
	for i := len(live); i < len(g.voices); i++ {
		g.voices[i] = nil
	}
	g.voices = live
	g.master.Prune(now)
}
