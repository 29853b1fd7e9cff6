// Package metrics exports playback counters to Prometheus. A nil *Recorder
// is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coreman2200/relive/internal/audio"
	"github.com/coreman2200/relive/internal/playback"
)

type Recorder struct {
	reg *prometheus.Registry

	segmentsCompleted prometheus.Counter
	segmentsCancelled prometheus.Counter
	autoplayAdvances  prometheus.Counter
	audioSessions     *prometheus.CounterVec
	stateChanges      prometheus.Counter
	timelineRecords   prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		segmentsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relive_segments_completed_total",
			Help: "Segments drawn to completion.",
		}),
		segmentsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relive_segments_cancelled_total",
			Help: "Segments cancelled before completion.",
		}),
		autoplayAdvances: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relive_autoplay_advances_total",
			Help: "Advances triggered by the autoplay timer.",
		}),
		audioSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relive_audio_sessions_total",
			Help: "Ambient audio session starts by result.",
		}, []string{"result"}),
		stateChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relive_state_changes_total",
			Help: "Playback state notifications.",
		}),
		timelineRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relive_timeline_records",
			Help: "Records in the current timeline.",
		}),
	}
	r.reg.MustRegister(r.segmentsCompleted, r.segmentsCancelled, r.autoplayAdvances,
		r.audioSessions, r.stateChanges, r.timelineRecords)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// Handler serves the metrics in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// PlaybackHooks returns machine hooks feeding the counters, chained in
// front of next.
func (r *Recorder) PlaybackHooks(next playback.Hooks) playback.Hooks {
	if r == nil {
		return next
	}
	return playback.Hooks{
		OnChange: func(s playback.State) {
			r.stateChanges.Inc()
			r.timelineRecords.Set(float64(s.Total))
			if next.OnChange != nil {
				next.OnChange(s)
			}
		},
		OnSegmentDone: func(i int) {
			r.segmentsCompleted.Inc()
			if next.OnSegmentDone != nil {
				next.OnSegmentDone(i)
			}
		},
		OnSegmentCancelled: func(i int) {
			r.segmentsCancelled.Inc()
			if next.OnSegmentCancelled != nil {
				next.OnSegmentCancelled(i)
			}
		},
		OnAutoplayAdvance: func(i int) {
			r.autoplayAdvances.Inc()
			if next.OnAutoplayAdvance != nil {
				next.OnAutoplayAdvance(i)
			}
		},
		OnExit: next.OnExit,
	}
}

// AudioHooks returns ambient loop hooks feeding the session counter,
// chained in front of next.
func (r *Recorder) AudioHooks(next audio.Hooks) audio.Hooks {
	if r == nil {
		return next
	}
	h := next
	h.OnStart = func(id string) {
		r.audioSessions.WithLabelValues("started").Inc()
		if next.OnStart != nil {
			next.OnStart(id)
		}
	}
	h.OnUnavailable = func(err error) {
		r.audioSessions.WithLabelValues("unavailable").Inc()
		if next.OnUnavailable != nil {
			next.OnUnavailable(err)
		}
	}
	return h
}

// SetTimelineRecords sets the record gauge directly.
func (r *Recorder) SetTimelineRecords(n int) {
	if r == nil {
		return
	}
	r.timelineRecords.Set(float64(n))
}
