package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/coreman2200/relive/internal/animate"
	"github.com/coreman2200/relive/internal/audio"
	"github.com/coreman2200/relive/internal/envelope"
	"github.com/coreman2200/relive/internal/geo"
	"github.com/coreman2200/relive/internal/playback"
)

type Overview struct {
	Lat  float64 `yaml:"lat"`
	Lng  float64 `yaml:"lng"`
	Zoom float64 `yaml:"zoom"`
}

type Playback struct {
	SegmentDuration time.Duration `yaml:"segment_duration"`
	TravelPause     time.Duration `yaml:"travel_pause"`
	Dwell           time.Duration `yaml:"dwell"`
	TravelZoom      float64       `yaml:"travel_zoom"`
	FlyDuration     time.Duration `yaml:"fly_duration"`
	FlyEase         string        `yaml:"fly_ease"`
	Overview        Overview      `yaml:"overview"`
	FPS             int           `yaml:"fps"`
	Autoplay        bool          `yaml:"autoplay"`
	Music           bool          `yaml:"music"`
}

type Audio struct {
	Backend          string        `yaml:"backend"` // "none" | "null" | "ebiten"
	SampleRate       int           `yaml:"sample_rate"`
	ChordInterval    time.Duration `yaml:"chord_interval"`
	Lookahead        time.Duration `yaml:"lookahead"`
	ScheduleInterval time.Duration `yaml:"schedule_interval"`
	FadeIn           time.Duration `yaml:"fade_in"`
	FadeOut          time.Duration `yaml:"fade_out"`
	Volume           float64       `yaml:"volume"`
	WetMix           float64       `yaml:"wet_mix"`
	DetuneCents      float64       `yaml:"detune_cents"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Records struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type Config struct {
	Playback Playback `yaml:"playback"`
	Audio    Audio    `yaml:"audio"`
	Server   Server   `yaml:"server"`
	Records  Records  `yaml:"records"`
	Log      Log      `yaml:"log"`
}

// Default returns a Config carrying every design constant.
func Default() *Config {
	pb := playback.DefaultConfig()
	au := audio.DefaultConfig()
	return &Config{
		Playback: Playback{
			SegmentDuration: pb.Animate.SegmentDuration,
			TravelPause:     pb.Animate.TravelPause,
			Dwell:           pb.Dwell,
			TravelZoom:      pb.Animate.TravelZoom,
			FlyDuration:     pb.Animate.Fly.Duration,
			FlyEase:         pb.Animate.Fly.Ease,
			Overview:        Overview{Lat: pb.Overview.Center.Lat, Lng: pb.Overview.Center.Lng, Zoom: pb.Overview.Zoom},
			FPS:             pb.FPS,
			Autoplay:        pb.Autoplay,
			Music:           pb.Music,
		},
		Audio: Audio{
			Backend:          "ebiten",
			SampleRate:       au.SampleRate,
			ChordInterval:    au.ChordInterval,
			Lookahead:        au.Lookahead,
			ScheduleInterval: au.ScheduleInterval,
			FadeIn:           au.FadeIn,
			FadeOut:          au.FadeOut,
			Volume:           au.Volume,
			WetMix:           au.WetMix,
			DetuneCents:      au.DetuneCents,
		},
		Server:  Server{Addr: ":8080"},
		Records: Records{Path: "records.yaml", Watch: true},
		Log:     Log{Level: "info", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28},
	}
}

// Load reads path over the defaults; fields missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	c := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

// ApplyEnv overlays RELIVE_* variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("RELIVE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := getenv("RELIVE_RECORDS"); v != "" {
		c.Records.Path = v
	}
	if v := getenv("RELIVE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("RELIVE_LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := getenv("RELIVE_AUDIO_BACKEND"); v != "" {
		c.Audio.Backend = v
	}
	if v := getenv("RELIVE_MUSIC"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RELIVE_MUSIC: %w", err)
		}
		c.Playback.Music = b
	}
	if v := getenv("RELIVE_AUTOPLAY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RELIVE_AUTOPLAY: %w", err)
		}
		c.Playback.Autoplay = b
	}
	return c.Validate()
}

func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Audio.Backend) {
	case "", "none", "null", "ebiten":
	default:
		errs = append(errs, fmt.Errorf("audio.backend %q: want none, null or ebiten", c.Audio.Backend))
	}
	// the audio package reads a zero volume as unset; silence is music: false
	if c.Audio.Volume <= 0 || c.Audio.Volume > 1 {
		errs = append(errs, fmt.Errorf("audio.volume %.2f out of (0,1]; set playback.music false for silence", c.Audio.Volume))
	}
	if c.Audio.WetMix < 0 || c.Audio.WetMix > 1 {
		errs = append(errs, fmt.Errorf("audio.wet_mix %.2f out of [0,1]", c.Audio.WetMix))
	}
	switch c.Playback.FlyEase {
	case "", animate.EaseSpring, envelope.Linear, envelope.Smooth, envelope.Cubic, envelope.Sine:
	default:
		errs = append(errs, fmt.Errorf("playback.fly_ease %q: want spring, linear, smooth, cubic or sine", c.Playback.FlyEase))
	}
	if c.Playback.FPS < 0 || c.Playback.FPS > 240 {
		errs = append(errs, fmt.Errorf("playback.fps %d out of range", c.Playback.FPS))
	}
	if c.Playback.SegmentDuration < 0 || c.Playback.Dwell < 0 || c.Playback.TravelPause < 0 {
		errs = append(errs, errors.New("playback durations must not be negative"))
	}
	return errors.Join(errs...)
}

// PlaybackConfig converts to the machine's configuration.
func (c *Config) PlaybackConfig() playback.Config {
	p := c.Playback
	return playback.Config{
		Animate: animate.Config{
			SegmentDuration: p.SegmentDuration,
			TravelPause:     p.TravelPause,
			TravelZoom:      p.TravelZoom,
			Fly:             animate.FlyOptions{Duration: p.FlyDuration, Ease: p.FlyEase},
		},
		Dwell:    p.Dwell,
		Overview: playback.View{Center: geo.Point{Lat: p.Overview.Lat, Lng: p.Overview.Lng}, Zoom: p.Overview.Zoom},
		Autoplay: p.Autoplay,
		Music:    p.Music,
		FPS:      p.FPS,
	}
}

// AudioConfig converts to the ambient loop's configuration.
func (c *Config) AudioConfig() audio.Config {
	a := audio.DefaultConfig()
	s := c.Audio
	a.SampleRate = s.SampleRate
	a.ChordInterval = s.ChordInterval
	a.Lookahead = s.Lookahead
	a.ScheduleInterval = s.ScheduleInterval
	a.FadeIn = s.FadeIn
	a.FadeOut = s.FadeOut
	a.Volume = s.Volume
	a.WetMix = s.WetMix
	a.DetuneCents = s.DetuneCents
	return a
}
