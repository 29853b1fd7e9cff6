package playback

import "fmt"

// State is the observable playback state pushed to the host on every change.
type State struct {
	CurrentIndex  int  `json:"current_index"`
	Total         int  `json:"total"`
	Started       bool `json:"started"`
	Transitioning bool `json:"transitioning"`
	Autoplaying   bool `json:"autoplaying"`
	MusicEnabled  bool `json:"music_enabled"`
	AudioActive   bool `json:"audio_active"`
	Exited        bool `json:"exited"`
}

// Phase names the state machine node a State sits in.
type Phase string

const (
	Idle          Phase = "idle"
	Arrived       Phase = "arrived"
	Transitioning Phase = "transitioning"
	Ended         Phase = "ended"
	Exited        Phase = "exited"
)

func (s State) Phase() Phase {
	switch {
	case s.Exited:
		return Exited
	case !s.Started:
		return Idle
	case s.Transitioning:
		return Transitioning
	case s.CurrentIndex == s.Total-1 && !s.Autoplaying:
		return Ended
	}
	return Arrived
}

// AtEnd reports whether the current record is the last one.
func (s State) AtEnd() bool { return s.Total > 0 && s.CurrentIndex == s.Total-1 }

func (s State) String() string {
	return fmt.Sprintf("%s idx=%d/%d transitioning=%t autoplay=%t music=%t audio=%t",
		s.Phase(), s.CurrentIndex, s.Total, s.Transitioning, s.Autoplaying, s.MusicEnabled, s.AudioActive)
}
