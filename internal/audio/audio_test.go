package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/relive/internal/loop"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeStream struct{ closed int }

func (s *fakeStream) Close() error { s.closed++; return nil }

type fakeHost struct {
	err     error
	panics  bool
	streams []*fakeStream
	srcs    []io.Reader
}

func (h *fakeHost) Open(rate int, src io.Reader) (Stream, error) {
	if h.panics {
		panic("no gesture")
	}
	if h.err != nil {
		return nil, h.err
	}
	st := &fakeStream{}
	h.streams = append(h.streams, st)
	h.srcs = append(h.srcs, src)
	return st, nil
}

func newAmbient(h Host) (*loop.Manual, *Ambient) {
	m := loop.NewManual(epoch, 60)
	return m, NewAmbient(m, h, DefaultConfig(), zerolog.Nop())
}

func TestProgression(t *testing.T) {
	require.Len(t, Progression, 8)
	for _, c := range Progression {
		assert.NotEmpty(t, c.Freqs, c.Name)
		for _, f := range c.Freqs {
			assert.Greater(t, f, 50.0)
			assert.Less(t, f, 1000.0)
		}
	}
	assert.InDelta(t, 440.0, midiHz(69), 1e-9)
	assert.Equal(t, 24*time.Second, DefaultConfig().LoopLength())
}

func TestDetuneSpread(t *testing.T) {
	assert.Equal(t, 1.0, detune(0, 1, 10))
	assert.Equal(t, 1.0, detune(2, 4, 0))
	lo, hi := detune(0, 4, 6), detune(3, 4, 6)
	assert.Less(t, lo, 1.0)
	assert.Greater(t, hi, 1.0)
	assert.InDelta(t, 1.0, lo*hi, 1e-12, "symmetric in cents")
}

func TestAmbient_StartIsIdempotent(t *testing.T) {
	h := &fakeHost{}
	_, a := newAmbient(h)
	started := 0
	a.SetHooks(Hooks{OnStart: func(string) { started++ }})

	a.Start()
	first := a.Session()
	a.Start()

	assert.True(t, a.IsActive())
	assert.Same(t, first, a.Session())
	assert.Len(t, h.streams, 1)
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, first.Batches(), "first repetition queued immediately")
	assert.Equal(t, 8*4, first.Graph().Voices())
}

func TestAmbient_UnavailableFailsSilently(t *testing.T) {
	cases := map[string]Host{
		"refused": &fakeHost{err: errors.New("not allowed")},
		"panics":  &fakeHost{panics: true},
		"no host": nil,
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			m, a := newAmbient(h)
			var got error
			a.SetHooks(Hooks{OnUnavailable: func(err error) { got = err }})

			require.NotPanics(t, a.Start)
			assert.False(t, a.IsActive())
			assert.ErrorIs(t, got, ErrUnavailable)
			assert.Equal(t, 0, m.Pending(), "nothing scheduled")
			require.NotPanics(t, a.Stop)
		})
	}
}

func TestAmbient_LookaheadQueuesBeforeLoopEnd(t *testing.T) {
	m, a := newAmbient(&fakeHost{})
	a.Start()
	s := a.Session()
	assert.Equal(t, epoch.Add(24*time.Second), s.NextBatchStart())

	m.Advance(21500 * time.Millisecond)
	assert.Equal(t, 1, s.Batches(), "still more than the lead away from the end")

	m.Advance(500 * time.Millisecond)
	assert.Equal(t, 2, s.Batches(), "queued two seconds before the end")
	assert.Equal(t, epoch.Add(48*time.Second), s.NextBatchStart())

	m.Advance(2*time.Minute + time.Second)
	assert.Equal(t, 7, s.Batches())
	assert.True(t, s.NextBatchStart().After(m.Now().Add(2*time.Second)), "always ahead of the clock")
}

func TestAmbient_FadeIn(t *testing.T) {
	_, a := newAmbient(&fakeHost{})
	a.Start()
	g := a.Session().Graph()
	vol := a.Config().Volume

	assert.Equal(t, 0.0, g.Gain(0))
	mid := g.Gain(1)
	assert.Greater(t, mid, 0.0)
	assert.Less(t, mid, vol)
	assert.Equal(t, vol, g.Gain(2))
	assert.Equal(t, vol, g.Gain(60))
}

func TestAmbient_StopFadesThenReleases(t *testing.T) {
	h := &fakeHost{}
	m, a := newAmbient(h)
	released := 0
	a.SetHooks(Hooks{OnRelease: func(string) { released++ }})
	a.Start()
	s := a.Session()
	m.Advance(10 * time.Second)

	a.Stop()
	assert.False(t, a.IsActive())
	assert.True(t, s.Stopping())
	assert.Equal(t, 1, a.Draining())
	assert.Equal(t, a.Config().Volume, s.Graph().Gain(10), "fade starts from the current level")
	assert.Equal(t, 0.0, s.Graph().Gain(11.5))

	m.Advance(1499 * time.Millisecond)
	assert.Equal(t, 0, h.streams[0].closed, "held open for the whole fade")

	m.Advance(time.Millisecond)
	assert.True(t, s.Released())
	assert.Equal(t, 1, h.streams[0].closed)
	assert.Equal(t, 0, a.Draining())
	assert.Equal(t, 1, released)
	assert.Equal(t, 0, m.Pending(), "look-ahead ticker torn down")

	a.Stop()
	m.Advance(time.Minute)
	assert.Equal(t, 1, h.streams[0].closed, "stop when inactive is a no-op")
}

func TestAmbient_RestartDuringFadeDoesNotCollide(t *testing.T) {
	h := &fakeHost{}
	m, a := newAmbient(h)
	a.Start()
	old := a.Session()
	a.Stop()
	a.Start()
	fresh := a.Session()

	require.NotNil(t, fresh)
	assert.NotEqual(t, old.ID, fresh.ID)
	assert.Len(t, h.streams, 2)

	m.Advance(2 * time.Second)
	assert.True(t, old.Released())
	assert.False(t, fresh.Released())
	assert.True(t, a.IsActive())
	assert.Equal(t, 0, h.streams[1].closed, "old teardown leaves the new session alone")
	assert.Equal(t, a.Config().Volume, fresh.Graph().Gain(2))
}

func TestAmbient_ToggleTwiceRestoresState(t *testing.T) {
	m, a := newAmbient(&fakeHost{})
	before := a.IsActive()
	a.Start()
	a.Stop()
	m.Advance(2 * time.Second)
	assert.Equal(t, before, a.IsActive())
}

func TestAmbient_Shutdown(t *testing.T) {
	h := &fakeHost{}
	m, a := newAmbient(h)
	a.Start()
	a.Stop()
	a.Start()
	a.Shutdown()

	assert.False(t, a.IsActive())
	assert.Equal(t, 0, a.Draining())
	for _, st := range h.streams {
		assert.Equal(t, 1, st.closed)
	}
	m.Advance(time.Minute)
	for _, st := range h.streams {
		assert.Equal(t, 1, st.closed)
	}
}

func TestGraph_ReadsStereoPCM(t *testing.T) {
	h := &fakeHost{}
	_, a := newAmbient(h)
	a.Start()
	src := h.srcs[0]

	buf := make([]byte, 44100*bytesPerFrame) // one second
	n, err := io.ReadFull(src, buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)

	nonzero := 0
	for i := 0; i < n; i += bytesPerFrame {
		l := int16(binary.LittleEndian.Uint16(buf[i:]))
		r := int16(binary.LittleEndian.Uint16(buf[i+2:]))
		require.Equal(t, l, r)
		if l != 0 {
			nonzero++
		}
	}
	assert.Greater(t, nonzero, 1000)
	assert.InDelta(t, 1.0, a.Session().Graph().Position(), 1e-9)

	a.Shutdown()
	_, err = src.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestGraph_DropsFinishedVoices(t *testing.T) {
	g := NewGraph(1000, 0, nil)
	g.Schedule(Voice{Freq: 100, Start: 0, Hold: 0.1, Attack: 0.01, Release: 0.1, Gain: 1})
	g.Schedule(Voice{Freq: 100, Start: 5, Hold: 1, Attack: 0.1, Release: 0.1, Gain: 1})
	require.Equal(t, 2, g.Voices())

	_, err := g.Read(make([]byte, 500*bytesPerFrame))
	require.NoError(t, err)
	assert.Equal(t, 1, g.Voices())

	g.Schedule(Voice{Freq: 100, Start: 0, Hold: 0.1, Release: 0.1, Gain: 1})
	assert.Equal(t, 1, g.Voices(), "voices already in the past are ignored")
}

func TestReverb_ImpulseResponse(t *testing.T) {
	r := NewReverb(1000, 1, 100, 1)
	dry := make([]float32, 2000)
	dry[0] = 1
	wet := make([]float32, len(dry))
	r.Process(wet, dry)

	assert.Equal(t, float32(0), wet[0], "no direct path through the wet side")
	var early, late float64
	for i, v := range wet {
		e := float64(v * v)
		if i < 300 {
			early += e
		} else if i > 700 {
			late += e
		}
	}
	assert.Greater(t, early, late*10, "decays")

	again := make([]float32, len(dry))
	NewReverb(1000, 1, 100, 1).Process(again, dry)
	assert.Equal(t, wet, again, "seeded impulse response is deterministic")
}

func TestMixAndLimit(t *testing.T) {
	a := []float32{1, 1}
	b := []float32{0, -1}
	dst := make([]float32, 2)
	Mix(dst, a, b, 0)
	assert.Equal(t, a, dst)
	Mix(dst, a, b, 1)
	assert.Equal(t, b, dst)
	Mix(dst, a, b, 0.5)
	assert.Equal(t, []float32{0.5, 0}, dst)

	buf := []float32{0.5, -0.5, 1, -1}
	Limit(buf, 0.8)
	assert.Equal(t, float32(0.5), buf[0])
	assert.Equal(t, float32(-0.5), buf[1])
	assert.Greater(t, buf[2], float32(0.8))
	assert.Less(t, buf[2], float32(1))
	assert.Equal(t, -buf[2], buf[3])
}
