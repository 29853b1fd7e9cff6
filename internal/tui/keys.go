package tui

import (
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/key"

	"github.com/coreman2200/relive/internal/playback"
)

var keyLabels = map[string]string{
	"right": "→",
	"left":  "←",
	"space": "space",
}

func helpKeys(keys []string) string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if l, ok := keyLabels[k]; ok {
			k = l
		}
		out = append(out, k)
	}
	return strings.Join(out, "/")
}

// keyMap is the help view of the session's bindings.
type keyMap struct {
	Start    key.Binding
	Next     key.Binding
	Prev     key.Binding
	Autoplay key.Binding
	Music    key.Binding
	End      key.Binding
	Exit     key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func newKeyMap(b playback.Bindings) keyMap {
	bind := func(c playback.Command, desc string) key.Binding {
		ks := b.Keys(c)
		return key.NewBinding(key.WithKeys(ks...), key.WithHelp(helpKeys(ks), desc))
	}
	return keyMap{
		Start:    bind(playback.CmdStart, "start"),
		Next:     bind(playback.CmdNext, "next"),
		Prev:     bind(playback.CmdPrev, "back"),
		Autoplay: bind(playback.CmdToggleAutoplay, "autoplay"),
		Music:    bind(playback.CmdToggleMusic, "music"),
		End:      bind(playback.CmdSkipToEnd, "skip to end"),
		Exit:     bind(playback.CmdExit, "exit"),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more")),
		Quit:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Prev, k.Autoplay, k.Exit, k.Help}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Start, k.Next, k.Prev},
		{k.Autoplay, k.Music, k.End},
		{k.Exit, k.Quit, k.Help},
	}
}

// Keys is the playback.InputSource behind the terminal. The model feeds it
// every key press it does not handle itself.
type Keys struct {
	mu   sync.Mutex
	subs map[int]func(string)
	next int
}

func NewKeys() *Keys { return &Keys{subs: map[int]func(string){}} }

func (k *Keys) Subscribe(fn func(key string)) func() {
	k.mu.Lock()
	k.next++
	id := k.next
	k.subs[id] = fn
	k.mu.Unlock()
	return func() {
		k.mu.Lock()
		delete(k.subs, id)
		k.mu.Unlock()
	}
}

// Press delivers key to every listener.
func (k *Keys) Press(key string) {
	k.mu.Lock()
	fns := make([]func(string), 0, len(k.subs))
	for i := 1; i <= k.next; i++ {
		if fn, ok := k.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	k.mu.Unlock()
	for _, fn := range fns {
		fn(key)
	}
}
