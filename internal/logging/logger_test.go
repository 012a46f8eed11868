package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)

	logger := Component("reconciler")
	logger.Info().Msg("dropped event")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "reconciler", entry["cmp"])
	assert.Equal(t, "dropped event", entry["message"])
}

func TestNew_WritesJSONToFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "taskboard.log")

	l, closer, err := New("warn", file)
	require.NoError(t, err)
	l.Info().Msg("filtered")
	l.Warn().Str("id", "a").Msg("kept")
	closer()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "a", entry["id"])
}

func TestNew_BadLevel(t *testing.T) {
	_, _, err := New("loud", "")
	assert.Error(t, err)
}

func TestSetup_RetargetsEarlierComponents(t *testing.T) {
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		output.set(consoleWriter())
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	dir := t.TempDir()
	first := filepath.Join(dir, "cli.log")
	second := filepath.Join(dir, "tui.log")

	closeFirst, err := Setup("info", first)
	require.NoError(t, err)
	logger := Component("engine")

	closeSecond, err := Setup("info", second)
	require.NoError(t, err)
	closeFirst()
	logger.Info().Msg("after switch")
	closeSecond()

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Empty(t, data)

	data, err = os.ReadFile(second)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "engine", entry["cmp"])
	assert.Equal(t, "after switch", entry["message"])
}

func TestSetup_LevelAppliesToComponents(t *testing.T) {
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		output.set(consoleWriter())
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	file := filepath.Join(t.TempDir(), "taskboard.log")
	closer, err := Setup("warn", file)
	require.NoError(t, err)
	logger := Component("feed")
	logger.Info().Msg("filtered")
	closer()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Empty(t, data)
}
