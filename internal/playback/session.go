package playback

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coreman2200/relive/internal/animate"
	"github.com/coreman2200/relive/internal/loop"
	"github.com/coreman2200/relive/internal/timeline"
)

// Session is the host's handle on one playback. Its methods are safe from
// any goroutine: commands are posted onto the scheduler and state is read
// from the last published snapshot.
type Session struct {
	ID string

	sched    loop.Scheduler
	m        *Machine
	log      zerolog.Logger
	bindings Bindings
	onExit   func()
	stopLoop context.CancelFunc

	unsubInput func()

	mu        sync.RWMutex
	state     State
	current   *timeline.Record
	observers map[int]func(State)
	nextObs   int

	done     chan struct{}
	doneOnce sync.Once
}

type options struct {
	sched    loop.Scheduler
	audio    Audio
	cfg      Config
	log      zerolog.Logger
	onExit   func()
	input    InputSource
	bindings Bindings
	hooks    Hooks
}

// Option configures BeginSession.
type Option func(*options)

// WithScheduler runs the session on s. Without it the session starts and
// owns a real-time loop.
func WithScheduler(s loop.Scheduler) Option { return func(o *options) { o.sched = s } }
func WithAudio(a Audio) Option              { return func(o *options) { o.audio = a } }
func WithConfig(c Config) Option            { return func(o *options) { o.cfg = c } }
func WithLogger(l zerolog.Logger) Option    { return func(o *options) { o.log = l } }
func WithInput(in InputSource) Option       { return func(o *options) { o.input = in } }
func WithBindings(b Bindings) Option        { return func(o *options) { o.bindings = b } }
func WithHooks(h Hooks) Option              { return func(o *options) { o.hooks = h } }

// WithOnExit is called once, on the loop, when the session exits. The host
// tears its playback view down here.
func WithOnExit(f func()) Option { return func(o *options) { o.onExit = f } }

// BeginSession creates an Idle session over records drawing on cam and surf.
func BeginSession(records []timeline.Record, cam animate.Camera, surf animate.Surface, opts ...Option) *Session {
	o := options{cfg: DefaultConfig(), log: zerolog.Nop(), bindings: DefaultBindings()}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Session{
		ID:        uuid.NewString(),
		bindings:  o.bindings,
		onExit:    o.onExit,
		observers: map[int]func(State){},
		done:      make(chan struct{}),
	}
	s.log = o.log.With().Str("session", s.ID).Logger()

	if o.sched == nil {
		l := loop.New(o.cfg.FPS, s.log)
		ctx, cancel := context.WithCancel(context.Background())
		go l.Run(ctx)
		o.sched = l
		s.stopLoop = cancel
	}
	s.sched = o.sched

	s.m = NewMachine(s.sched, records, cam, surf, o.audio, o.cfg, s.log)
	hooks := o.hooks
	userExit := hooks.OnExit
	hooks.OnExit = func() {
		if userExit != nil {
			userExit()
		}
		s.exited()
	}
	s.m.SetHooks(hooks)
	s.state = s.m.State()
	s.current = s.currentRecord()
	s.m.Subscribe(s.publish)

	if o.input != nil {
		s.unsubInput = o.input.Subscribe(s.Key)
	}
	s.log.Info().Int("records", s.state.Total).Msg("session begun")
	return s
}

func (s *Session) currentRecord() *timeline.Record {
	if r, ok := s.m.Current(); ok {
		return &r
	}
	return nil
}

func (s *Session) publish(st State) {
	cur := s.currentRecord()
	s.mu.Lock()
	s.state = st
	s.current = cur
	obs := make([]func(State), 0, len(s.observers))
	for i := 1; i <= s.nextObs; i++ {
		if fn, ok := s.observers[i]; ok {
			obs = append(obs, fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range obs {
		fn(st)
	}
}

// exited runs on the loop once the machine has exited.
func (s *Session) exited() {
	if s.unsubInput != nil {
		s.unsubInput()
		s.unsubInput = nil
	}
	s.doneOnce.Do(func() {
		if s.onExit != nil {
			s.onExit()
		}
		close(s.done)
	})
}

// State returns the last published state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns the last published state with the record at its index.
// The two always come from the same timeline.
func (s *Session) Snapshot() (State, *timeline.Record) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.current
}

// Subscribe registers fn for state pushes; fn runs on the loop goroutine.
func (s *Session) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextObs++
	id := s.nextObs
	s.observers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Do posts a command to the machine.
func (s *Session) Do(c Command) {
	s.sched.Post(func() { s.m.Apply(c) })
}

// Key posts the command bound to key. Unknown keys are ignored.
func (s *Session) Key(key string) {
	c, ok := s.bindings.Lookup(key)
	if !ok {
		s.log.Debug().Str("key", key).Msg("unbound key")
		return
	}
	s.Do(c)
}

func (s *Session) Start()          { s.Do(CmdStart) }
func (s *Session) Next()           { s.Do(CmdNext) }
func (s *Session) Prev()           { s.Do(CmdPrev) }
func (s *Session) ToggleAutoplay() { s.Do(CmdToggleAutoplay) }
func (s *Session) ToggleMusic()    { s.Do(CmdToggleMusic) }
func (s *Session) SkipToEnd()      { s.Do(CmdSkipToEnd) }
func (s *Session) Exit()           { s.Do(CmdExit) }

// Reload replaces the session's records.
func (s *Session) Reload(records []timeline.Record) {
	s.sched.Post(func() {
		s.m.Reload(records)
		// an edit that leaves the state alone publishes nothing
		cur := s.currentRecord()
		s.mu.Lock()
		s.current = cur
		s.mu.Unlock()
	})
}

// Inspect runs f on the loop with the machine. Hosts use it to read the
// timeline or the current record consistently.
func (s *Session) Inspect(f func(m *Machine)) {
	s.sched.Post(func() { f(s.m) })
}

// Done is closed once the session has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close stops the loop the session started for itself, if any. Call it
// after Done.
func (s *Session) Close() {
	if s.stopLoop != nil {
		s.stopLoop()
	}
}

// Exit ends a session. It is safe to call more than once.
func Exit(s *Session) {
	if s != nil {
		s.Exit()
	}
}
