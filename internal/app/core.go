// Package app wires a playback session to its host: records on disk, the
// map, ambient audio, metrics, diagnostics and the websocket hub.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/relive/internal/audio"
	"github.com/coreman2200/relive/internal/audio/sink"
	"github.com/coreman2200/relive/internal/config"
	"github.com/coreman2200/relive/internal/diagnostics"
	"github.com/coreman2200/relive/internal/loop"
	"github.com/coreman2200/relive/internal/mapview"
	"github.com/coreman2200/relive/internal/metrics"
	"github.com/coreman2200/relive/internal/playback"
	"github.com/coreman2200/relive/internal/timeline"
	"github.com/coreman2200/relive/internal/ws"
)

type Options struct {
	Config *config.Config
	Log    zerolog.Logger
	// Inputs are key sources besides the hub's control socket.
	Inputs []playback.InputSource
	// Host overrides the audio backend named in the config.
	Host audio.Host
	// OnReload sees every record set the watcher delivers.
	OnReload func([]timeline.Record)
	OnExit   func()
}

type Core struct {
	Cfg     *config.Config
	Loop    *loop.Loop
	Map     *mapview.Sim
	Audio   *audio.Ambient
	Session *playback.Session
	Metrics *metrics.Recorder
	Diag    *diagnostics.Feed
	Hub     *ws.Hub

	log      zerolog.Logger
	onReload func([]timeline.Record)
	mu       sync.RWMutex
	records  []timeline.Record
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	detach   func()
}

// HostFor returns the audio host for a backend name. "none" and "" give no
// host, so the session plays silently.
func HostFor(backend string) (audio.Host, error) {
	switch strings.ToLower(backend) {
	case "", "none":
		return nil, nil
	case "null":
		return &sink.Null{Pace: true}, nil
	case "ebiten":
		return &sink.Ebiten{}, nil
	}
	return nil, fmt.Errorf("unknown audio backend %q", backend)
}

// LoadRecords reads the records file. A missing file is an empty timeline.
func LoadRecords(path string) ([]timeline.Record, error) {
	if path == "" {
		return nil, nil
	}
	recs, err := timeline.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return recs, err
}

func InitCore(ctx context.Context, o Options) (*Core, error) {
	cfg := o.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := o.Log

	// 1) Records
	records, err := LoadRecords(cfg.Records.Path)
	if err != nil {
		return nil, fmt.Errorf("records: %w", err)
	}

	// 2) Loop, map and observers
	pc := cfg.PlaybackConfig()
	ctx, cancel := context.WithCancel(ctx)
	c := &Core{
		Cfg:      cfg,
		Loop:     loop.New(pc.FPS, log),
		Metrics:  metrics.New(),
		Diag:     diagnostics.NewFeed(0),
		log:      log.With().Str("component", "app").Logger(),
		onReload: o.OnReload,
		records:  records,
		cancel:   cancel,
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Loop.Run(ctx)
	}()
	c.Map = mapview.NewSim(c.Loop, pc.FPS, mapview.View{Center: pc.Overview.Center, Zoom: pc.Overview.Zoom}, log)
	c.Hub = ws.NewHub(c.Map, c.Diag, c.Metrics, 15, log)
	c.Metrics.SetTimelineRecords(len(records))
	if len(records) == 0 {
		c.Hub.PushDiag(diagnostics.Diagnostic{
			Severity: diagnostics.Info,
			Code:     diagnostics.TimelineEmpty,
			Summary:  "No records to replay",
			Evidence: map[string]any{"path": cfg.Records.Path},
		})
	}

	// 3) Audio
	host := o.Host
	if host == nil {
		if host, err = HostFor(cfg.Audio.Backend); err != nil {
			cancel()
			c.wg.Wait()
			return nil, err
		}
	}
	var amb playback.Audio
	if host != nil {
		c.Audio = audio.NewAmbient(c.Loop, host, cfg.AudioConfig(), log)
		c.Audio.SetHooks(c.Metrics.AudioHooks(audio.Hooks{
			OnStart: func(id string) {
				c.Hub.PushDiag(diagnostics.Diagnostic{
					Severity: diagnostics.Info,
					Code:     diagnostics.AudioStarted,
					Summary:  "Ambient audio started",
					Evidence: map[string]any{"session": id},
				})
			},
			OnUnavailable: func(err error) { c.Hub.PushDiag(diagnostics.AudioUnavailableDiag(err)) },
		}))
		amb = c.Audio
	}

	// 4) Session wiring (hooks -> metrics, diagnostics)
	hooks := c.Metrics.PlaybackHooks(playback.Hooks{
		OnSegmentCancelled: func(i int) {
			c.Hub.PushDiag(diagnostics.Diagnostic{
				Severity: diagnostics.Info,
				Code:     diagnostics.SegmentCancelled,
				Summary:  "Segment animation cancelled",
				Evidence: map[string]any{"index": i},
			})
		},
	})
	inputs := append([]playback.InputSource{c.Hub}, o.Inputs...)
	c.Session = playback.BeginSession(records, c.Map, c.Map,
		playback.WithScheduler(c.Loop),
		playback.WithAudio(amb),
		playback.WithConfig(pc),
		playback.WithLogger(log),
		playback.WithInput(fanIn(inputs)),
		playback.WithHooks(hooks),
		playback.WithOnExit(o.OnExit),
	)
	c.detach = c.Hub.Attach(c.Session, records)

	// 5) Record watcher and view stream
	if cfg.Records.Watch && cfg.Records.Path != "" {
		invalid := func(err error) { c.Hub.PushDiag(diagnostics.TimelineInvalidDiag(cfg.Records.Path, err)) }
		w := &timeline.Watcher{
			Path:     cfg.Records.Path,
			OnChange: c.reload,
			OnError:  invalid,
			Log:      log,
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := w.Run(ctx); err != nil {
				c.log.Warn().Err(err).Str("path", cfg.Records.Path).Msg("records watch disabled")
			}
		}()
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Hub.RunViewLoop(ctx)
	}()

	c.log.Info().Int("records", len(records)).Str("audio", cfg.Audio.Backend).Str("session", c.Session.ID).Msg("core ready")
	return c, nil
}

func (c *Core) reload(recs []timeline.Record) {
	c.mu.Lock()
	c.records = recs
	c.mu.Unlock()
	c.Session.Reload(recs)
	c.Session.Inspect(func(m *playback.Machine) { c.Hub.SetRecords(m.Timeline().Records()) })
	c.Metrics.SetTimelineRecords(len(recs))
	c.Hub.PushDiag(diagnostics.Diagnostic{
		Severity: diagnostics.Info,
		Code:     diagnostics.TimelineReloaded,
		Summary:  "Records reloaded",
		Evidence: map[string]any{"records": len(recs)},
	})
	if c.onReload != nil {
		c.onReload(recs)
	}
}

// Records returns the record set the session was last given.
func (c *Core) Records() []timeline.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]timeline.Record(nil), c.records...)
}

// Shutdown exits the session, releases audio at once and stops every
// goroutine the core started.
func (c *Core) Shutdown(ctx context.Context) error {
	c.Session.Exit()
	var err error
	select {
	case <-c.Session.Done():
	case <-ctx.Done():
		err = ctx.Err()
	}
	if c.Audio != nil {
		released := make(chan struct{})
		c.Loop.Post(func() {
			c.Audio.Shutdown()
			close(released)
		})
		select {
		case <-released:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if c.detach != nil {
		c.detach()
	}
	c.cancel()
	c.wg.Wait()
	c.log.Info().Msg("core stopped")
	return err
}

// ShutdownTimeout is Shutdown bounded by d.
func (c *Core) ShutdownTimeout(d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return c.Shutdown(ctx)
}

// fanIn merges several key sources into one.
type fanIn []playback.InputSource

func (in fanIn) Subscribe(fn func(string)) func() {
	stops := make([]func(), 0, len(in))
	for _, src := range in {
		stops = append(stops, src.Subscribe(fn))
	}
	return func() {
		for _, s := range stops {
			s()
		}
	}
}
