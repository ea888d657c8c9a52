package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readJSONLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry), "line: %s", sc.Text())
		out = append(out, entry)
	}
	return out
}

func TestNew(t *testing.T) {
	t.Run("levels", func(t *testing.T) {
		tests := []struct {
			level string
			want  zerolog.Level
		}{
			{"debug", zerolog.DebugLevel},
			{"warn", zerolog.WarnLevel},
			{"", zerolog.InfoLevel},
			{"verbose", zerolog.InfoLevel},
		}
		for _, tt := range tests {
			l, err := New(Config{Level: tt.level, Output: &bytes.Buffer{}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, l.GetZerolog().GetLevel(), "level %q", tt.level)
			require.NoError(t, l.Close())
		}
	})

	t.Run("file sink without rotation", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "nested", "memdex.log")

		l, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)
		_, isFile := l.file.(*os.File)
		assert.True(t, isFile)

		l.Debug().Str("file", "MEMORY.md").Msg("indexed")
		require.NoError(t, l.Close())
		require.NoError(t, l.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		entries := readJSONLines(t, data)
		require.Len(t, entries, 1)
		assert.Equal(t, "MEMORY.md", entries[0]["file"])
		assert.Equal(t, "debug", entries[0]["level"])
	})

	t.Run("file sink with rotation", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "memdex.log")

		l, err := New(Config{Level: "info", File: logFile, MaxSize: 1, MaxAge: 1})
		require.NoError(t, err)
		_, isRotating := l.file.(*RotatingWriter)
		assert.True(t, isRotating)

		l.Info().Msg("rotated sink")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "rotated sink")
	})

	t.Run("unwritable file", func(t *testing.T) {
		dir := t.TempDir()
		blocker := filepath.Join(dir, "blocker")
		require.NoError(t, os.WriteFile(blocker, nil, 0644))

		_, err := New(Config{File: filepath.Join(blocker, "memdex.log")})
		assert.Error(t, err)
	})
}

func TestConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	logFile := filepath.Join(t.TempDir(), "memdex.log")

	l, err := New(Config{
		Level:     "info",
		Console:   true,
		Output:    &console,
		File:      logFile,
		Redaction: true,
	})
	require.NoError(t, err)

	idx := l.Component("indexer")
	idx.Info().Str("auth", "Bearer abc.def").Msg("index run")
	idx.Debug().Msg("dropped")
	require.NoError(t, l.Close())

	entries := readJSONLines(t, console.Bytes())
	require.Len(t, entries, 1)
	assert.Equal(t, "indexer", entries[0]["component"])
	assert.Equal(t, "index run", entries[0]["message"])
	assert.Equal(t, "Bearer [REDACTED]", entries[0]["auth"])

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, console.String(), string(data))
}

func TestPrettyConsole(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Console: true, Pretty: true, Output: &buf})
	require.NoError(t, err)

	l.Warn().Msg("watch root missing")
	assert.Contains(t, buf.String(), "watch root missing")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Output: &buf})
	require.NoError(t, err)

	child := l.With().Str("run_id", "r1").Logger()
	child.Info().Msg("run")
	l.Error().Msg("plain")

	entries := readJSONLines(t, buf.Bytes())
	require.Len(t, entries, 2)
	assert.Equal(t, "r1", entries[0]["run_id"])
	assert.NotContains(t, entries[1], "run_id")
	assert.Equal(t, "error", entries[1]["level"])
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Redaction)
	assert.Equal(t, 100, cfg.MaxSize)
	assert.Equal(t, 7, cfg.MaxAge)
	assert.True(t, cfg.Compress)
}
