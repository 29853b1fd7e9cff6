// Package sink provides audio.Host implementations.
package sink

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/coreman2200/relive/internal/audio"
)

// Null accepts streams without producing sound. With Pace set it pulls PCM
// in real time, 20ms at a time, so the graph renders as it would on a
// device. Refuse makes every Open fail with audio.ErrUnavailable.
type Null struct {
	Refuse bool
	Pace   bool

	mu     sync.Mutex
	opened int
	open   int
}

// Opened returns how many streams were ever opened.
func (n *Null) Opened() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.opened
}

// Live returns the number of streams not yet closed.
func (n *Null) Live() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.open
}

func (n *Null) Open(sampleRate int, src io.Reader) (audio.Stream, error) {
	if n.Refuse {
		return nil, audio.ErrUnavailable
	}
	n.mu.Lock()
	n.opened++
	n.open++
	n.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	st := &nullStream{owner: n, cancel: cancel, done: make(chan struct{})}
	if n.Pace {
		go st.pull(ctx, sampleRate, src)
	} else {
		close(st.done)
	}
	return st, nil
}

type nullStream struct {
	owner  *Null
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

const frameDuration = 20 * time.Millisecond

func (s *nullStream) pull(ctx context.Context, sampleRate int, src io.Reader) {
	defer close(s.done)
	buf := make([]byte, sampleRate*int(frameDuration)/int(time.Second)*4)
	tick := time.NewTicker(frameDuration)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if _, err := io.ReadFull(src, buf); err != nil {
				return
			}
		}
	}
}

func (s *nullStream) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		s.owner.mu.Lock()
		s.owner.open--
		s.owner.mu.Unlock()
	})
	return nil
}
