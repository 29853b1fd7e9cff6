package playback

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/relive/internal/geo"
	"github.com/coreman2200/relive/internal/loop"
	"github.com/coreman2200/relive/internal/timeline"
)

type fakeInput struct {
	mu   sync.Mutex
	fn   func(string)
	subs int
}

func (in *fakeInput) Subscribe(fn func(string)) func() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.fn = fn
	in.subs++
	return func() {
		in.mu.Lock()
		in.fn = nil
		in.mu.Unlock()
	}
}

func (in *fakeInput) press(key string) {
	in.mu.Lock()
	fn := in.fn
	in.mu.Unlock()
	if fn != nil {
		fn(key)
	}
}

func newTestSession(t *testing.T, opts ...Option) (*loop.Manual, *fakeInput, *fakeCamera, *Session) {
	t.Helper()
	m := loop.NewManual(epoch, 60)
	in := &fakeInput{}
	cam := &fakeCamera{}
	surf := &fakeSurface{lines: map[string][]geo.Point{}}
	opts = append([]Option{WithScheduler(m), WithInput(in), WithAudio(&fakeAudio{}), WithLogger(zerolog.Nop())}, opts...)
	return m, in, cam, BeginSession(threeRecords(), cam, surf, opts...)
}

func TestSession_KeysDriveTheMachine(t *testing.T) {
	m, in, _, s := newTestSession(t)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, 1, in.subs, "one listener set per session")
	assert.Equal(t, -1, s.State().CurrentIndex)

	in.press("enter")
	in.press("right")
	m.Flush()
	assert.True(t, s.State().Transitioning)

	m.Advance(segmentTime)
	assert.Equal(t, 1, s.State().CurrentIndex)

	in.press("left")
	in.press("x")
	m.Flush()
	assert.Equal(t, 0, s.State().CurrentIndex)

	in.press("G")
	m.Flush()
	assert.Equal(t, 2, s.State().CurrentIndex)
}

func TestSession_ExitUnbindsAndSignals(t *testing.T) {
	exits := 0
	m, in, _, s := newTestSession(t, WithOnExit(func() { exits++ }))
	in.press("s")
	m.Flush()

	in.press("esc")
	m.Flush()
	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed")
	}
	assert.True(t, s.State().Exited)
	assert.Nil(t, in.fn, "listeners removed on exit")

	Exit(s)
	s.Exit()
	m.Flush()
	assert.Equal(t, 1, exits)
}

func TestSession_Subscribe(t *testing.T) {
	m, _, _, s := newTestSession(t)
	var got []State
	unsub := s.Subscribe(func(st State) { got = append(got, st) })
	s.Start()
	s.ToggleAutoplay()
	m.Flush()
	require.Len(t, got, 2)
	assert.True(t, got[1].Autoplaying)

	unsub()
	s.ToggleMusic()
	m.Flush()
	assert.Len(t, got, 2)
	assert.False(t, s.State().MusicEnabled)
}

func TestSession_ReloadAndInspect(t *testing.T) {
	m, _, _, s := newTestSession(t)
	s.Start()
	s.Reload(append(threeRecords(), timeline.Record{ID: "d", Date: day("2025-01-01")}))
	var cur timeline.Record
	var total int
	s.Inspect(func(mc *Machine) {
		cur, _ = mc.Current()
		total = mc.Timeline().Len()
	})
	m.Flush()
	assert.Equal(t, "c", cur.ID)
	assert.Equal(t, 4, total)
	assert.Equal(t, 4, s.State().Total)
}

func TestSession_SnapshotPairsRecordWithIndex(t *testing.T) {
	m, _, _, s := newTestSession(t)
	st, cur := s.Snapshot()
	assert.Equal(t, -1, st.CurrentIndex)
	assert.Nil(t, cur)

	var pushed []string
	s.Subscribe(func(st State) {
		_, rec := s.Snapshot()
		require.NotNil(t, rec)
		pushed = append(pushed, fmt.Sprintf("%d:%s", st.CurrentIndex, rec.ID))
	})
	s.Start()
	m.Flush()

	s.Reload(append(threeRecords(), timeline.Record{ID: "early", Date: day("2020-01-01")}))
	m.Flush()
	st, cur = s.Snapshot()
	assert.Equal(t, 1, st.CurrentIndex)
	require.NotNil(t, cur)
	assert.Equal(t, "c", cur.ID)
	assert.Equal(t, []string{"0:c", "1:c"}, pushed)

	edited := append(threeRecords(), timeline.Record{ID: "early", Date: day("2020-01-01")})
	edited[2].Caption = "Christmas"
	s.Reload(edited)
	m.Flush()
	_, cur = s.Snapshot()
	assert.Equal(t, "Christmas", cur.Caption)
}

func TestSession_OwnsALoopWhenNoneGiven(t *testing.T) {
	s := BeginSession(threeRecords(), &fakeCamera{}, &fakeSurface{lines: map[string][]geo.Point{}})
	defer s.Close()
	s.Start()
	s.Exit()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not exit")
	}
	assert.Equal(t, 0, s.State().CurrentIndex)
}

// TestSession_GoldenTrace replays a scripted session and compares the
// published state sequence with testdata/session_trace.golden.
func TestSession_GoldenTrace(t *testing.T) {
	m, _, _, s := newTestSession(t)
	var buf bytes.Buffer
	s.Subscribe(func(st State) { fmt.Fprintf(&buf, "  %s\n", st) })

	cmd := func(c Command) {
		fmt.Fprintf(&buf, "> %s\n", c)
		s.Do(c)
		m.Flush()
	}
	wait := func(d time.Duration) {
		fmt.Fprintf(&buf, "~ %s\n", d)
		m.Advance(d)
	}

	cmd(CmdStart)
	cmd(CmdNext)
	cmd(CmdNext)
	cmd(CmdSkipToEnd)
	wait(6 * time.Second)
	cmd(CmdPrev)
	cmd(CmdToggleAutoplay)
	wait(4 * time.Second)
	wait(6 * time.Second)
	cmd(CmdToggleMusic)
	wait(4 * time.Second)
	wait(6 * time.Second)
	wait(4 * time.Second)
	cmd(CmdPrev)
	cmd(CmdNext)
	wait(2 * time.Second)
	cmd(CmdExit)
	cmd(CmdExit)
	wait(10 * time.Second)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "session_trace", buf.Bytes())
}
