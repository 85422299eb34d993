package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("bogus"))
}

func TestNew_FileOutputJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "rpcbatch.log")

	log, closer, err := New(Options{Level: "warn", Format: "json", Output: path})
	require.NoError(t, err)

	log.Info().Msg("dropped")
	log.Warn().Str("batch", "b1").Msg("kept")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"batch":"b1"`)
	assert.Contains(t, lines[0], `"message":"kept"`)
}

func TestNew_ConsoleFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")

	log, closer, err := New(Options{Level: "debug", Format: "console", Output: path})
	require.NoError(t, err)
	log.Debug().Msg("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.NotContains(t, string(data), "\x1b[")
}

func TestNew_StandardStreams(t *testing.T) {
	for _, out := range []string{"", "stderr", "stdout"} {
		_, closer, err := New(Options{Output: out})
		require.NoError(t, err)
		assert.NoError(t, closer.Close())
	}
}
