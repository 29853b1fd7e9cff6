package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/coreman2200/relive/internal/config"
	"github.com/coreman2200/relive/internal/timeline"
)

const recordsYAML = `records:
  - id: b
    date: "2021-07-04"
    lat: 40.7128
    lng: -74.006
    caption: New York
  - id: a
    created_at: "2019-02-11T09:30:00Z"
    lat: 35.6762
    lng: 139.6503
    caption: Tokyo
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	base := []string{
		"--config", filepath.Join(dir, "missing.yaml"),
		"--env-file", filepath.Join(dir, "missing.env"),
	}
	cmd.SetArgs(append(base, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeRecords(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "records.yaml")
	require.NoError(t, os.WriteFile(p, []byte(recordsYAML), 0o644))
	return p
}

func TestTimelineText(t *testing.T) {
	out, err := run(t, "timeline", "--records", writeRecords(t))
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace([]byte(out)), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[1]), "2019-02-11")
	assert.Contains(t, string(lines[1]), "Tokyo")
	assert.Contains(t, string(lines[2]), "New York")
}

func TestTimelineJSON(t *testing.T) {
	out, err := run(t, "timeline", "--records", writeRecords(t), "--format", "json")
	require.NoError(t, err)
	var recs []timeline.Record
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].ID)
	assert.Equal(t, "b", recs[1].ID)
}

func TestTimelineEmptyAndBadFormat(t *testing.T) {
	out, err := run(t, "timeline", "--records", filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "no records\n", out)

	_, err = run(t, "timeline", "--records", writeRecords(t), "--format", "xml")
	assert.ErrorContains(t, err, "invalid format")
}

func TestConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("RELIVE_AUDIO_BACKEND", "null")
	t.Setenv("RELIVE_RECORDS", "from-env.yaml")

	out, err := run(t, "config", "--records", "from-flag.yaml")
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "null", cfg.Audio.Backend)
	assert.Equal(t, "from-flag.yaml", cfg.Records.Path)
}

func TestInvalidAudioBackendRejected(t *testing.T) {
	_, err := run(t, "config", "--audio", "alsa")
	assert.ErrorContains(t, err, "audio.backend")
}

func TestConfigFileIsRead(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "relive.yaml")
	c := config.Default()
	c.Playback.Dwell = 7_000_000_000
	require.NoError(t, config.Save(p, c))

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", p, "--env-file", filepath.Join(dir, "none"), "config"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "dwell: 7s")
}
