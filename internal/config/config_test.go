package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/relive/internal/animate"
)

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relive.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
playback:
  dwell: 6s
  autoplay: true
audio:
  backend: none
server:
  addr: ":9999"
`), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6*time.Second, c.Playback.Dwell)
	assert.True(t, c.Playback.Autoplay)
	assert.Equal(t, "none", c.Audio.Backend)
	assert.Equal(t, ":9999", c.Server.Addr)

	d := Default()
	assert.Equal(t, d.Playback.SegmentDuration, c.Playback.SegmentDuration)
	assert.Equal(t, d.Audio.FadeOut, c.Audio.FadeOut)
	assert.True(t, c.Playback.Music)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("audio:\n  backend: cassette\n"), 0644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "audio.backend")
}

func TestValidate_RejectsSettingsThatWouldBeIgnored(t *testing.T) {
	c := Default()
	c.Audio.Volume = 0
	assert.ErrorContains(t, c.Validate(), "audio.volume")

	c = Default()
	c.Playback.FlyEase = "bouncy"
	assert.ErrorContains(t, c.Validate(), "playback.fly_ease")

	c = Default()
	c.Playback.FlyEase = "linear"
	require.NoError(t, c.Validate())
	assert.Equal(t, "linear", c.PlaybackConfig().Animate.Fly.Ease)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	c := Default()
	c.Playback.TravelZoom = 9
	c.Audio.Volume = 0.25
	require.NoError(t, Save(path, c))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"RELIVE_ADDR":          ":7000",
		"RELIVE_RECORDS":       "/tmp/r.yaml",
		"RELIVE_LOG_LEVEL":     "debug",
		"RELIVE_AUDIO_BACKEND": "null",
		"RELIVE_MUSIC":         "false",
	}
	c := Default()
	require.NoError(t, c.ApplyEnv(func(k string) string { return env[k] }))
	assert.Equal(t, ":7000", c.Server.Addr)
	assert.Equal(t, "/tmp/r.yaml", c.Records.Path)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "null", c.Audio.Backend)
	assert.False(t, c.Playback.Music)

	env["RELIVE_MUSIC"] = "loud"
	assert.Error(t, Default().ApplyEnv(func(k string) string { return env[k] }))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("RELIVE_TEST_DOTENV=from-file\n"), 0644))
	t.Setenv("RELIVE_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("RELIVE_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("RELIVE_TEST_DOTENV"))
	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "nope.env")))
}

func TestConversions(t *testing.T) {
	c := Default()
	pb := c.PlaybackConfig()
	assert.Equal(t, 5*time.Second, pb.Animate.SegmentDuration)
	assert.Equal(t, 400*time.Millisecond, pb.Animate.TravelPause)
	assert.Equal(t, 4*time.Second, pb.Dwell)
	assert.Equal(t, 12.0, pb.Animate.TravelZoom)
	assert.Equal(t, animate.EaseSpring, pb.Animate.Fly.Ease)

	au := c.AudioConfig()
	assert.Equal(t, 2*time.Second, au.Lookahead)
	assert.Equal(t, 1500*time.Millisecond, au.FadeOut)
	assert.Equal(t, 24*time.Second, au.LoopLength())
}
