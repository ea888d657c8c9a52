package logger

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSmallWriter(t *testing.T, cfg RotationConfig, maxBytes int64) *RotatingWriter {
	t.Helper()
	if cfg.MaxSizeMB == 0 {
		cfg.MaxSizeMB = 1
	}
	w, err := NewRotatingWriter(cfg)
	require.NoError(t, err)
	w.maxBytes = maxBytes
	return w
}

func TestNewRotatingWriter(t *testing.T) {
	t.Run("creates nested directory and file", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "memdex.log")

		w, err := NewRotatingWriter(RotationConfig{Filename: logFile, MaxSizeMB: 10})
		require.NoError(t, err)
		defer w.Close()

		_, err = os.Stat(logFile)
		assert.NoError(t, err)
	})

	t.Run("picks up existing size", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "memdex.log")
		require.NoError(t, os.WriteFile(logFile, []byte("previous run\n"), 0644))

		w, err := NewRotatingWriter(RotationConfig{Filename: logFile, MaxSizeMB: 10})
		require.NoError(t, err)
		defer w.Close()

		assert.Equal(t, int64(len("previous run\n")), w.size)
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := NewRotatingWriter(RotationConfig{MaxSizeMB: 1})
		assert.Error(t, err)

		_, err = NewRotatingWriter(RotationConfig{Filename: filepath.Join(t.TempDir(), "x.log")})
		assert.Error(t, err)
	})
}

func TestRotatingWriter_Rotates(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "memdex.log")
	w := newSmallWriter(t, RotationConfig{Filename: logFile}, 32)

	line := []byte(strings.Repeat("a", 20) + "\n")
	for i := 0; i < 3; i++ {
		_, err := w.Write(line)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	backups, err := filepath.Glob(logFile + ".*")
	require.NoError(t, err)
	assert.Len(t, backups, 2)

	current, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, line, current)
}

func TestRotatingWriter_OversizedWriteStaysWhole(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "memdex.log")
	w := newSmallWriter(t, RotationConfig{Filename: logFile}, 8)

	big := []byte(strings.Repeat("b", 64))
	n, err := w.Write(big)
	require.NoError(t, err)
	assert.Equal(t, len(big), n)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, big, data)
}

func TestRotatingWriter_Compress(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "memdex.log")
	w := newSmallWriter(t, RotationConfig{Filename: logFile, Compress: true}, 16)

	_, err := w.Write([]byte("first entry....\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("second entry...\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	gzs, err := filepath.Glob(logFile + ".*.gz")
	require.NoError(t, err)
	require.Len(t, gzs, 1)

	f, err := os.Open(gzs[0])
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "first entry....\n", string(data))

	_, err = os.Stat(strings.TrimSuffix(gzs[0], ".gz"))
	assert.True(t, os.IsNotExist(err))
}

func TestRotatingWriter_PrunesOldBackups(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "memdex.log")

	old := logFile + ".20200101-120000.gz"
	recent := logFile + ".20991231-120000"
	require.NoError(t, os.WriteFile(old, []byte("old"), 0644))
	require.NoError(t, os.WriteFile(recent, []byte("recent"), 0644))
	past := time.Now().AddDate(0, 0, -10)
	require.NoError(t, os.Chtimes(old, past, past))

	w, err := NewRotatingWriter(RotationConfig{Filename: logFile, MaxSizeMB: 1, MaxAgeDays: 7})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(recent)
	assert.NoError(t, err)
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "memdex.log")
	w := newSmallWriter(t, RotationConfig{Filename: logFile}, 256)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, err := w.Write([]byte("concurrent line\n"))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	require.NoError(t, w.Close())

	files, err := filepath.Glob(logFile + "*")
	require.NoError(t, err)
	var total int
	for _, f := range files {
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		total += strings.Count(string(data), "concurrent line\n")
	}
	assert.Equal(t, 400, total)
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(RotationConfig{Filename: filepath.Join(t.TempDir(), "memdex.log"), MaxSizeMB: 1})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}
