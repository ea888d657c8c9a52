package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFileAcquireRelease(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	p := NewPIDFile(PIDFilePath(dataDir))

	// Nothing to remove before Acquire.
	require.NoError(t, p.Release())

	require.NoError(t, p.Acquire())
	pid, err := ReadPID(p.Path())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	running, ok := RunningPID(dataDir)
	assert.True(t, ok)
	assert.Equal(t, os.Getpid(), running)

	require.NoError(t, p.Release())
	_, err = os.Stat(p.Path())
	assert.True(t, os.IsNotExist(err))
	_, ok = RunningPID(dataDir)
	assert.False(t, ok)

	require.NoError(t, p.Release())
}

func TestPIDFileRefusesLiveDaemon(t *testing.T) {
	dataDir := t.TempDir()
	path := PIDFilePath(dataDir)
	p := NewPIDFile(path)

	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getppid())), 0644))
	assert.Error(t, p.Acquire())

	// Refusing leaves the other daemon's file alone.
	require.NoError(t, p.Release())
	_, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("999999999"), 0644))
	require.NoError(t, p.Acquire())
	pid, err := ReadPID(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{"valid", "1234", 1234, false},
		{"trailing newline", "1234\n", 1234, false},
		{"garbage", "abc", 0, true},
		{"empty", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".pid")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			pid, err := ReadPID(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, pid)
		})
	}

	_, err := ReadPID(filepath.Join(dir, "missing.pid"))
	assert.True(t, os.IsNotExist(err))
}

func TestProcessAlive(t *testing.T) {
	assert.True(t, ProcessAlive(os.Getpid()))
	assert.False(t, ProcessAlive(0))
	assert.False(t, ProcessAlive(-5))
}
