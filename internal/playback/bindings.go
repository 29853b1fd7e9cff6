package playback

import (
	"fmt"
	"sort"
	"strings"
)

// Command is one user intent understood by the Machine.
type Command int

const (
	CmdStart Command = iota + 1
	CmdNext
	CmdPrev
	CmdToggleAutoplay
	CmdToggleMusic
	CmdSkipToEnd
	CmdExit
)

var commandNames = map[Command]string{
	CmdStart:          "start",
	CmdNext:           "next",
	CmdPrev:           "prev",
	CmdToggleAutoplay: "autoplay",
	CmdToggleMusic:    "music",
	CmdSkipToEnd:      "end",
	CmdExit:           "exit",
}

func (c Command) String() string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// ParseCommand maps a command name (as printed by String) to a Command.
func ParseCommand(name string) (Command, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for c, n := range commandNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown command %q", name)
}

// Bindings maps key names to commands.
type Bindings map[string]Command

// DefaultBindings is the keyboard layout for a session.
func DefaultBindings() Bindings {
	return Bindings{
		"right": CmdNext,
		"space": CmdNext,
		" ":     CmdNext,
		"l":     CmdNext,
		"left":  CmdPrev,
		"h":     CmdPrev,
		"esc":   CmdExit,
		"q":     CmdExit,
		"a":     CmdToggleAutoplay,
		"m":     CmdToggleMusic,
		"end":   CmdSkipToEnd,
		"G":     CmdSkipToEnd,
		"enter": CmdStart,
		"s":     CmdStart,
	}
}

// Lookup resolves a key. Names are matched exactly first so that "G" and
// "g" can differ, then case-insensitively.
func (b Bindings) Lookup(key string) (Command, bool) {
	if c, ok := b[key]; ok {
		return c, true
	}
	c, ok := b[strings.ToLower(key)]
	return c, ok
}

// Keys lists the keys bound to c.
func (b Bindings) Keys(c Command) []string {
	var out []string
	for k, v := range b {
		if v == c && k != " " {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// InputSource delivers key presses from the host. The returned function
// removes the listener.
type InputSource interface {
	Subscribe(fn func(key string)) (unsubscribe func())
}
