package sink

import (
	"bytes"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/relive/internal/audio"
)

type countingReader struct{ n atomic.Int64 }

func (r *countingReader) Read(p []byte) (int, error) {
	r.n.Add(int64(len(p)))
	return len(p), nil
}

func TestNull_Refuse(t *testing.T) {
	n := &Null{Refuse: true}
	st, err := n.Open(44100, bytes.NewReader(nil))
	assert.Nil(t, st)
	assert.ErrorIs(t, err, audio.ErrUnavailable)
	assert.Equal(t, 0, n.Opened())
}

func TestNull_TracksStreams(t *testing.T) {
	n := &Null{}
	a, err := n.Open(44100, bytes.NewReader(nil))
	require.NoError(t, err)
	b, err := n.Open(44100, bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Equal(t, 2, n.Live())

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Equal(t, 1, n.Live())
	require.NoError(t, b.Close())
	assert.Equal(t, 0, n.Live())
	assert.Equal(t, 2, n.Opened())
}

func TestNull_PacedPull(t *testing.T) {
	n := &Null{Pace: true}
	src := &countingReader{}
	st, err := n.Open(1000, src)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return src.n.Load() >= 3*80 }, time.Second, 5*time.Millisecond)
	require.NoError(t, st.Close())
	after := src.n.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, after, src.n.Load(), "no pulls after close")
}

func TestNull_PacedStopsAtEOF(t *testing.T) {
	n := &Null{Pace: true}
	st, err := n.Open(1000, io.LimitReader(&countingReader{}, 80))
	require.NoError(t, err)
	done := make(chan struct{})
	go func() { _ = st.Close(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("close blocked")
	}
}

func TestNull_DrivesAmbientGraph(t *testing.T) {
	n := &Null{Pace: true}
	g := audio.NewGraph(8000, 0.3, audio.NewReverb(8000, 0.5, 100, 1))
	g.RampMaster(0, 0, 1)
	st, err := n.Open(g.SampleRate(), g)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return g.Position() > 0 }, time.Second, 5*time.Millisecond)
	g.Close()
	require.NoError(t, st.Close())
}
