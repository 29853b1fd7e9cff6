package loop

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestManual_AfterFuncFiresAtDeadline(t *testing.T) {
	m := NewManual(epoch, 60)
	fired := time.Time{}
	m.AfterFunc(400*time.Millisecond, func() { fired = m.Now() })

	m.Advance(399 * time.Millisecond)
	assert.True(t, fired.IsZero())

	m.Advance(time.Millisecond)
	assert.Equal(t, epoch.Add(400*time.Millisecond), fired)
	assert.Equal(t, 0, m.Pending())
}

func TestManual_StoppedTimerNeverFires(t *testing.T) {
	m := NewManual(epoch, 60)
	fired := false
	tm := m.AfterFunc(time.Second, func() { fired = true })
	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop(), "second stop reports nothing pending")

	m.Advance(5 * time.Second)
	assert.False(t, fired)
}

func TestManual_EveryRepeatsUntilStopped(t *testing.T) {
	m := NewManual(epoch, 60)
	n := 0
	var tm Timer
	tm = m.Every(500*time.Millisecond, func() {
		n++
		if n == 3 {
			tm.Stop()
		}
	})
	m.Advance(10 * time.Second)
	assert.Equal(t, 3, n)
}

func TestManual_FramesRunOnGrid(t *testing.T) {
	m := NewManual(epoch, 10) // 100ms frames
	var seen []time.Duration
	var frame func(now time.Time)
	frame = func(now time.Time) {
		seen = append(seen, now.Sub(epoch))
		if len(seen) < 3 {
			m.RequestFrame(frame)
		}
	}
	m.RequestFrame(frame)
	m.Advance(time.Second)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}, seen)
}

func TestManual_TimersBeforeFramesAtSameInstant(t *testing.T) {
	m := NewManual(epoch, 10)
	var order []string
	m.RequestFrame(func(time.Time) { order = append(order, "frame") })
	m.AfterFunc(100*time.Millisecond, func() { order = append(order, "timer") })
	m.Advance(100 * time.Millisecond)
	assert.Equal(t, []string{"timer", "frame"}, order)
}

func TestManual_FrameDeadlineHoldsAcrossTimers(t *testing.T) {
	m := NewManual(epoch, 10)
	var frames []time.Duration
	record := func(now time.Time) { frames = append(frames, now.Sub(epoch)) }
	m.RequestFrame(record)
	m.AfterFunc(50*time.Millisecond, func() { m.RequestFrame(record) })
	m.AfterFunc(100*time.Millisecond, func() {})
	m.Advance(100 * time.Millisecond)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond}, frames)
	assert.Equal(t, 0, m.Pending())

	m.RequestFrame(record)
	m.Advance(100 * time.Millisecond)
	assert.Equal(t, 200*time.Millisecond, frames[2], "a frame asked for on a tick waits for the next one")
}

func TestManual_PostRunsOnFlush(t *testing.T) {
	m := NewManual(epoch, 60)
	ran := 0
	m.Post(func() {
		ran++
		m.Post(func() { ran++ })
	})
	assert.Equal(t, 0, ran)
	m.Flush()
	assert.Equal(t, 2, ran)
}

func TestLoop_RunsPostedTasksAndTimers(t *testing.T) {
	l := New(120, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	var posted, timed, framed atomic.Int32
	l.Post(func() { posted.Add(1) })
	l.AfterFunc(10*time.Millisecond, func() { timed.Add(1) })
	l.RequestFrame(func(time.Time) { framed.Add(1) })
	stopped := l.AfterFunc(10*time.Millisecond, func() { timed.Add(100) })
	require.True(t, stopped.Stop())

	require.Eventually(t, func() bool {
		return posted.Load() == 1 && timed.Load() == 1 && framed.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), timed.Load())
}

func TestLoop_RecoversPanickingCallback(t *testing.T) {
	l := New(60, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	var after atomic.Bool
	l.Post(func() { panic("boom") })
	l.Post(func() { after.Store(true) })
	require.Eventually(t, after.Load, time.Second, 5*time.Millisecond)
}

func TestLoop_PostKeepsOrderPastAnyBacklog(t *testing.T) {
	l := New(60, zerolog.Nop())
	var mu sync.Mutex
	var got []int
	for i := 0; i < 1000; i++ {
		i := i
		l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1000
	}, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	for i, v := range got {
		require.Equal(t, i, v)
	}
	mu.Unlock()

	cancel()
	done := make(chan struct{})
	go func() {
		l.Post(func() {})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("post blocked after the loop stopped")
	}
}
