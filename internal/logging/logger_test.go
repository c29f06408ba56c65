package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/lmittmann/tint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/motionvec/internal/config"
	"github.com/bdougie/motionvec/internal/logging"
)

func TestConsoleLoggerDefaultsToWarn(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Output: &buf})
	require.NoError(t, err)

	logger.Info("frame fitted", "frame", 1)
	logger.Warn("frame could not be fitted", "frame", 2, tint.Err(errors.New("too few points")))

	out := buf.String()
	assert.NotContains(t, out, "frame fitted")
	assert.Contains(t, out, "frame could not be fitted")
	assert.Contains(t, out, "too few points")
	// Buffers are not terminals, so no colour escapes are written.
	assert.NotContains(t, out, "\x1b[")
}

func TestVerboseEnablesInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "warn", Verbose: true, Output: &buf})
	require.NoError(t, err)

	logger.Info("classification finished")
	logger.Debug("hidden")
	assert.Contains(t, buf.String(), "classification finished")
	assert.NotContains(t, buf.String(), "hidden")

	// Verbose never raises an explicitly lower level.
	buf.Reset()
	logger, err = logging.New(logging.Options{Level: "debug", Verbose: true, Output: &buf})
	require.NoError(t, err)
	logger.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", Output: &buf})
	require.NoError(t, err)

	logger.Info("no vectors for frame", "frame", 4)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "no vectors for frame", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.EqualValues(t, 4, entry["frame"])
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	_, err := logging.New(logging.Options{Format: "xml"})
	assert.Error(t, err)

	_, err = logging.New(logging.Options{Level: "trace"})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelWarn,
		"DEBUG":   slog.LevelDebug,
		" info ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := logging.ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Format = "json"
	var buf bytes.Buffer
	logger, err := logging.NewFromConfig(&cfg, false, &buf)
	require.NoError(t, err)
	logger.Warn("frame could not be fitted", "frame", 3)
	assert.Contains(t, buf.String(), `"frame":3`)

	logger, err = logging.NewFromConfig(nil, true, io.Discard)
	require.NoError(t, err)
	assert.True(t, logger.Enabled(t.Context(), slog.LevelInfo))
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, logging.IsTerminal(&bytes.Buffer{}))
}
