package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/motionvec/internal/analyzer"
	"github.com/bdougie/motionvec/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "motionvec.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadWithoutPathReturnsDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), *cfg)
	assert.Equal(t, analyzer.DefaultOptions(), cfg.ClassifierOptions())
}

func TestLoadOverridesOnlyGivenKeys(t *testing.T) {
	path := writeConfig(t, `
[classifier]
threshold = 3.5
workers = 4
degenerate_policy = " Moving "

[video]
codec = "mjpg"

[logging]
format = "JSON"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	want := config.Default()
	want.Classifier.Threshold = 3.5
	want.Classifier.Workers = 4
	want.Classifier.DegeneratePolicy = "moving"
	want.Video.Codec = "MJPG"
	want.Logging.Format = "json"
	assert.Equal(t, want, *cfg)
	assert.Equal(t, analyzer.PolicyMoving, cfg.ClassifierOptions().Policy)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"negative threshold": "[classifier]\nthreshold = -1.0\n",
		"confidence":         "[classifier]\nconfidence = 1.5\n",
		"policy":             "[classifier]\ndegenerate_policy = \"drop\"\n",
		"workers":            "[classifier]\nworkers = 0\n",
		"codec":              "[video]\ncodec = \"h265x\"\n",
		"fps":                "[video]\ndefault_fps = 0.0\n",
		"thickness":          "[video]\nline_thickness = -2.0\n",
		"empty ffmpeg":       "[video]\nffmpeg = \"\"\n",
		"level":              "[logging]\nlevel = \"trace\"\n",
		"format":             "[logging]\nformat = \"xml\"\n",
		"unknown key":        "[classifier]\nthreshhold = 2\n",
		"bad toml":           "[classifier\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "open config"))
}

func TestSampleMatchesDefaults(t *testing.T) {
	var cfg config.Config
	require.NoError(t, toml.Unmarshal([]byte(config.Sample()), &cfg))
	assert.Equal(t, config.Default(), cfg)
}
