// Package tui is a terminal host for a playback session. Key presses go to
// the session through Keys; state comes back as StateMsg.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/coreman2200/relive/internal/mapview"
	"github.com/coreman2200/relive/internal/playback"
	"github.com/coreman2200/relive/internal/timeline"
)

// StateMsg carries a pushed playback state into the program.
type StateMsg playback.State

// RecordsMsg replaces the records shown after a reload.
type RecordsMsg []timeline.Record

type viewTickMsg time.Time

const (
	viewRefresh = 100 * time.Millisecond
	maxDots     = 40
)

// Viewer is where the camera readout comes from.
type Viewer interface {
	View() mapview.View
}

type Model struct {
	keys    *Keys
	km      keyMap
	help    help.Model
	records []timeline.Record
	state   playback.State
	viewer  Viewer
	cam     mapview.View
	width   int

	quitting bool
}

func New(keys *Keys, b playback.Bindings, records []timeline.Record, initial playback.State, viewer Viewer) Model {
	return Model{
		keys:    keys,
		km:      newKeyMap(b),
		help:    help.New(),
		records: timeline.Sort(records).Records(),
		state:   initial,
		viewer:  viewer,
	}
}

func (m Model) State() playback.State { return m.state }

func (m Model) tick() tea.Cmd {
	if m.viewer == nil {
		return nil
	}
	return tea.Tick(viewRefresh, func(t time.Time) tea.Msg { return viewTickMsg(t) })
}

func (m Model) Init() tea.Cmd { return m.tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.km.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.km.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}
		m.keys.Press(msg.String())
	case StateMsg:
		m.state = playback.State(msg)
		if m.state.Exited {
			m.quitting = true
			return m, tea.Quit
		}
	case RecordsMsg:
		m.records = timeline.Sort(msg).Records()
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
	case viewTickMsg:
		m.cam = m.viewer.View()
		return m, m.tick()
	}
	return m, nil
}

func (m Model) current() (timeline.Record, bool) {
	i := m.state.CurrentIndex
	if i < 0 || i >= len(m.records) {
		return timeline.Record{}, false
	}
	return m.records[i], true
}

func (m Model) dots() string {
	total := len(m.records)
	lo, hi := 0, total
	if total > maxDots {
		lo = max(0, m.state.CurrentIndex-maxDots/2)
		hi = min(total, lo+maxDots)
		lo = hi - maxDots
	}
	var b strings.Builder
	if lo > 0 {
		b.WriteString(dimStyle.Render("…"))
	}
	for i := lo; i < hi; i++ {
		switch {
		case i == m.state.CurrentIndex:
			b.WriteString(dotCurrent.Render("◉"))
		case i < m.state.CurrentIndex:
			b.WriteString(dotDone.Render("●"))
		default:
			b.WriteString(dotAhead.Render("○"))
		}
	}
	if hi < total {
		b.WriteString(dimStyle.Render("…"))
	}
	return b.String()
}

func flag(name string, on bool) string {
	if on {
		return onStyle.Render(name + " on")
	}
	return dimStyle.Render(name + " off")
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	lines := []string{titleStyle.Render("Relive")}

	st := m.state
	switch st.Phase() {
	case playback.Idle:
		if len(m.records) == 0 {
			lines = append(lines, dimStyle.Render("No memories to replay yet."))
		} else {
			lines = append(lines, fmt.Sprintf("%d memories", len(m.records)), dimStyle.Render("press enter to begin"))
		}
	default:
		lines = append(lines, m.dots()+"  "+dimStyle.Render(fmt.Sprintf("%d / %d", st.CurrentIndex+1, len(m.records))))
		if rec, ok := m.current(); ok {
			caption := rec.Caption
			if caption == "" {
				caption = "Untitled memory"
			}
			lines = append(lines,
				captionStyle.Render(caption),
				dateStyle.Render(rec.EffectiveTime().Format("2 January 2006"))+dimStyle.Render("  "+rec.Point().String()),
			)
		}
		switch st.Phase() {
		case playback.Transitioning:
			lines = append(lines, dimStyle.Render("travelling…"))
		case playback.Ended:
			lines = append(lines, dimStyle.Render("the end of the timeline"))
		}
	}

	music := flag("music", st.MusicEnabled)
	if st.MusicEnabled && !st.AudioActive {
		music += dimStyle.Render(" (silent)")
	}
	lines = append(lines, flag("autoplay", st.Autoplaying)+"  "+music)
	if m.viewer != nil {
		lines = append(lines, dimStyle.Render(fmt.Sprintf("camera %s ×%.1f", m.cam.Center, m.cam.Zoom)))
	}

	body := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
	return body + "\n" + m.help.View(m.km) + "\n"
}

// Bridge forwards session state pushes into p in order without blocking
// the session's loop on the terminal. The returned function stops it.
func Bridge(p *tea.Program, s *playback.Session) (stop func()) {
	ch := make(chan playback.State, 64)
	done := make(chan struct{})
	unsub := s.Subscribe(func(st playback.State) {
		select {
		case ch <- st:
		case <-done:
		}
	})
	go func() {
		for {
			select {
			case st := <-ch:
				p.Send(StateMsg(st))
			case <-done:
				return
			}
		}
	}()
	return func() {
		unsub()
		close(done)
	}
}
