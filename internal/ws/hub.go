package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/coreman2200/relive/internal/diagnostics"
	"github.com/coreman2200/relive/internal/mapview"
	"github.com/coreman2200/relive/internal/metrics"
	"github.com/coreman2200/relive/internal/playback"
	"github.com/coreman2200/relive/internal/timeline"
)

const (
	writeWait = 2 * time.Second
	// sendBuffer bounds what a client may fall behind before it is dropped.
	sendBuffer = 128
)

// Viewer is the map the hub streams view frames from.
type Viewer interface {
	Snapshot() mapview.Snapshot
	Revision() uint64
}

// client owns one websocket. Only writePump writes to conn, so nothing on
// the loop goroutine ever waits on the network.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// enqueue never blocks. It reports false when the client is closed or its
// queue is full.
func (c *client) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *client) writePump(log zerolog.Logger) {
	defer c.close()
	for {
		select {
		case <-c.done:
			return
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				log.Debug().Err(err).Msg("write")
				return
			}
		}
	}
}

// Hub serves one playback session over HTTP and websockets. It is also the
// session's InputSource: keys arriving on /ws/control reach the session's
// bindings through it.
type Hub struct {
	mu        sync.RWMutex
	sess      *playback.Session
	view      Viewer
	records   []timeline.Record
	feed      *diagnostics.Feed
	metrics   *metrics.Recorder
	viewFPS   int
	startTime time.Time
	log       zerolog.Logger

	stateClients map[*client]bool
	diagClients  map[*client]bool

	keyMu     sync.Mutex
	listeners map[int]func(string)
	nextKey   int

	upgrader websocket.Upgrader
}

func NewHub(view Viewer, feed *diagnostics.Feed, rec *metrics.Recorder, viewFPS int, log zerolog.Logger) *Hub {
	if feed == nil {
		feed = diagnostics.NewFeed(0)
	}
	if viewFPS <= 0 {
		viewFPS = 15
	}
	return &Hub{
		view:         view,
		feed:         feed,
		metrics:      rec,
		viewFPS:      viewFPS,
		startTime:    time.Now(),
		log:          log.With().Str("component", "ws").Logger(),
		stateClients: map[*client]bool{},
		diagClients:  map[*client]bool{},
		listeners:    map[int]func(string){},
		upgrader:     websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// Subscribe implements playback.InputSource.
func (h *Hub) Subscribe(fn func(key string)) func() {
	h.keyMu.Lock()
	h.nextKey++
	id := h.nextKey
	h.listeners[id] = fn
	h.keyMu.Unlock()
	return func() {
		h.keyMu.Lock()
		delete(h.listeners, id)
		h.keyMu.Unlock()
	}
}

func (h *Hub) press(key string) {
	h.keyMu.Lock()
	fns := make([]func(string), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.keyMu.Unlock()
	for _, fn := range fns {
		fn(key)
	}
}

// Attach binds the hub to a session and pushes its state changes.
func (h *Hub) Attach(s *playback.Session, records []timeline.Record) (detach func()) {
	h.mu.Lock()
	h.sess = s
	h.records = timeline.Sort(records).Records()
	h.mu.Unlock()
	return s.Subscribe(h.PushState)
}

// SetRecords replaces the records served by /api/timeline and /health.
func (h *Hub) SetRecords(records []timeline.Record) {
	h.mu.Lock()
	h.records = timeline.Sort(records).Records()
	h.mu.Unlock()
}

// Feed returns the diagnostics feed.
func (h *Hub) Feed() *diagnostics.Feed { return h.feed }

func (h *Hub) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws/state", h.HandleStateWS)
	r.HandleFunc("/ws/control", h.HandleControlWS)
	r.HandleFunc("/ws/diag", h.HandleDiagWS)
	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/timeline", h.HandleTimeline).Methods(http.MethodGet)
	r.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)
	return r
}

type stateMsg struct {
	Type   string            `json:"type"`
	State  playback.State    `json:"state"`
	Record *timeline.Record  `json:"record,omitempty"`
	View   *mapview.Snapshot `json:"view,omitempty"`
}

func stateMessage(st playback.State, rec *timeline.Record) []byte {
	b, _ := json.Marshal(stateMsg{Type: "state", State: st, Record: rec})
	return b
}

// PushState broadcasts the session's state to every state client. The
// record comes from the session so it always matches the index.
func (h *Hub) PushState(st playback.State) {
	snap, rec := h.snapshot()
	if snap != st {
		rec = nil
	}
	h.broadcast(h.stateClients, stateMessage(st, rec))
	if st.Exited {
		h.PushDiag(diagnostics.Diagnostic{Severity: diagnostics.Info, Code: diagnostics.SessionExited, Summary: "Playback session exited"})
	}
}

// PushDiag records d in the feed and broadcasts it to diag clients.
func (h *Hub) PushDiag(d diagnostics.Diagnostic) {
	h.feed.Push(d)
	b, _ := json.Marshal(d)
	h.broadcast(h.diagClients, b)
}

func (h *Hub) broadcast(set map[*client]bool, b []byte) {
	h.mu.RLock()
	targets := make([]*client, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		if !c.enqueue(b) {
			h.log.Warn().Msg("dropping slow websocket client")
			h.remove(set, c)
		}
	}
}

func (h *Hub) remove(set map[*client]bool, c *client) {
	h.mu.Lock()
	delete(set, c)
	h.mu.Unlock()
	c.close()
}

// RunViewLoop streams map snapshots to state clients whenever the map
// changes, at most viewFPS times a second.
func (h *Hub) RunViewLoop(ctx context.Context) {
	if h.view == nil {
		return
	}
	ticker := time.NewTicker(time.Second / time.Duration(h.viewFPS))
	defer ticker.Stop()
	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rev := h.view.Revision()
			if rev == last {
				continue
			}
			last = rev
			snap := h.view.Snapshot()
			st, _ := h.snapshot()
			b, _ := json.Marshal(stateMsg{Type: "view", View: &snap, State: st})
			h.broadcast(h.stateClients, b)
		}
	}
}

func (h *Hub) snapshot() (playback.State, *timeline.Record) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshotLocked()
}

func (h *Hub) snapshotLocked() (playback.State, *timeline.Record) {
	if h.sess == nil {
		return playback.State{CurrentIndex: -1}, nil
	}
	return h.sess.Snapshot()
}

// register upgrades the request and queues first ahead of any broadcast.
func (h *Hub) register(set map[*client]bool, w http.ResponseWriter, r *http.Request, first func() [][]byte) *client {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil
	}
	c := newClient(conn)
	h.mu.Lock()
	for _, b := range first() {
		c.enqueue(b)
	}
	set[c] = true
	h.mu.Unlock()
	go c.writePump(h.log)
	return c
}

// drain reads until the peer goes away, then drops the client.
func (h *Hub) drain(set map[*client]bool, c *client) {
	go func() {
		defer h.remove(set, c)
		for {
			if _, _, err := c.conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) HandleStateWS(w http.ResponseWriter, r *http.Request) {
	c := h.register(h.stateClients, w, r, func() [][]byte {
		st, rec := h.snapshotLocked()
		return [][]byte{stateMessage(st, rec)}
	})
	if c == nil {
		return
	}
	h.drain(h.stateClients, c)
}

func (h *Hub) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	c := h.register(h.diagClients, w, r, func() [][]byte {
		recent := h.feed.Recent()
		out := make([][]byte, 0, len(recent))
		for _, d := range recent {
			b, _ := json.Marshal(d)
			out = append(out, b)
		}
		return out
	})
	if c == nil {
		return
	}
	h.drain(h.diagClients, c)
}

type controlMsg struct {
	Key string `json:"key,omitempty"`
	Cmd string `json:"cmd,omitempty"`
}

func (h *Hub) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			h.PushDiag(diagnostics.Diagnostic{
				Severity: diagnostics.Warn,
				Code:     "CONTROL.BAD_MESSAGE",
				Summary:  "Control message is not JSON",
				Detail:   err.Error(),
			})
			continue
		}
		h.applyControl(msg)
	}
}

func (h *Hub) applyControl(msg controlMsg) {
	if msg.Key != "" {
		h.press(msg.Key)
	}
	if msg.Cmd == "" {
		return
	}
	c, err := playback.ParseCommand(msg.Cmd)
	if err != nil {
		h.PushDiag(diagnostics.Diagnostic{
			Severity: diagnostics.Warn,
			Code:     "CONTROL.UNKNOWN",
			Summary:  "Unknown command",
			Evidence: map[string]any{"cmd": msg.Cmd},
		})
		return
	}
	h.mu.RLock()
	s := h.sess
	h.mu.RUnlock()
	if s != nil {
		s.Do(c)
	}
}

func (h *Hub) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	resp := map[string]any{
		"uptime_s": time.Since(h.startTime).Seconds(),
		"records":  len(h.records),
		"clients":  len(h.stateClients),
	}
	s := h.sess
	h.mu.RUnlock()
	if s != nil {
		st := s.State()
		resp["session"] = s.ID
		resp["phase"] = st.Phase()
		resp["index"] = st.CurrentIndex
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Hub) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	recs := append([]timeline.Record(nil), h.records...)
	h.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"records": recs})
}
