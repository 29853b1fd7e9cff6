package sink

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"

	relaudio "github.com/coreman2200/relive/internal/audio"
)

// Ebiten plays through ebiten's audio context. Only one context can exist
// per process, at one sample rate, so it is created lazily and shared.
type Ebiten struct {
	BufferSize time.Duration

	once sync.Once
	ctx  *audio.Context
	rate int
	err  error
}

func (e *Ebiten) context(sampleRate int) (*audio.Context, error) {
	e.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				e.err = fmt.Errorf("%w: %v", relaudio.ErrUnavailable, r)
			}
		}()
		if c := audio.CurrentContext(); c != nil {
			e.ctx, e.rate = c, c.SampleRate()
			return
		}
		e.ctx, e.rate = audio.NewContext(sampleRate), sampleRate
	})
	if e.err != nil {
		return nil, e.err
	}
	if e.rate != sampleRate {
		return nil, fmt.Errorf("%w: context runs at %d Hz, want %d", relaudio.ErrUnavailable, e.rate, sampleRate)
	}
	return e.ctx, nil
}

func (e *Ebiten) Open(sampleRate int, src io.Reader) (relaudio.Stream, error) {
	ctx, err := e.context(sampleRate)
	if err != nil {
		return nil, err
	}
	p, err := ctx.NewPlayer(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", relaudio.ErrUnavailable, err)
	}
	if e.BufferSize > 0 {
		p.SetBufferSize(e.BufferSize)
	}
	p.Play()
	return p, nil
}
