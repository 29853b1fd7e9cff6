package playback

// autoKey is the slice of state an armed autoplay timer was armed against.
// Any change to it invalidates the timer.
type autoKey struct {
	index         int
	started       bool
	transitioning bool
	autoplaying   bool
	exited        bool
}

func (m *Machine) currentAutoKey() autoKey {
	return autoKey{
		index:         m.st.CurrentIndex,
		started:       m.st.Started,
		transitioning: m.st.Transitioning,
		autoplaying:   m.st.Autoplaying,
		exited:        m.st.Exited,
	}
}

func (m *Machine) wantAutoplay() bool {
	s := m.st
	return s.Autoplaying && s.Started && s.CurrentIndex >= 0 && !s.Transitioning && !s.Exited
}

// reconcileAutoplay keeps exactly one dwell timer armed while autoplay
// applies, and none otherwise.
func (m *Machine) reconcileAutoplay() {
	key := m.currentAutoKey()
	if m.auto != nil && key == m.autoKey {
		return
	}
	m.cancelAutoplay()
	if !m.wantAutoplay() {
		return
	}
	m.autoKey = key
	gen := m.autoGen
	m.auto = m.sched.AfterFunc(m.cfg.Dwell, func() { m.autoplayFired(gen) })
}

func (m *Machine) cancelAutoplay() {
	if m.auto != nil {
		m.auto.Stop()
		m.auto = nil
	}
	m.autoGen++
}

func (m *Machine) autoplayFired(gen uint64) {
	if gen != m.autoGen || m.auto == nil || !m.wantAutoplay() {
		m.log.Debug().Msg("stale autoplay timer dropped")
		return
	}
	m.auto = nil
	m.autoGen++
	if m.st.CurrentIndex >= m.tl.Len()-1 {
		m.st.Autoplaying = false
		m.log.Info().Msg("autoplay reached the end")
		m.changed()
		return
	}
	if m.hooks.OnAutoplayAdvance != nil {
		m.hooks.OnAutoplayAdvance(m.st.CurrentIndex)
	}
	m.GoNext()
}
