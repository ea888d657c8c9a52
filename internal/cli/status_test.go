package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		output, err := executeCommand(t, "", "status", "--help")
		require.NoError(t, err)
		assert.Contains(t, output, "status")
	})
}

func TestReadDaemonReport(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "memdex.pid")

	assert.False(t, readDaemonReport(dir).Running)

	require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0644))
	report := readDaemonReport(dir)
	assert.True(t, report.Running)
	assert.Equal(t, os.Getpid(), report.PID)
	assert.NotEmpty(t, report.Uptime)

	require.NoError(t, os.WriteFile(pidFile, []byte("not-a-pid"), 0644))
	assert.False(t, readDaemonReport(dir).Running)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"seconds only", 45 * time.Second, "45s"},
		{"minutes and seconds", 2*time.Minute + 30*time.Second, "2m30s"},
		{"hours minutes seconds", 3*time.Hour + 15*time.Minute + 20*time.Second, "3h15m20s"},
		{"zero", 0, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatDuration(tt.duration)
			assert.Equal(t, tt.expected, result)
		})
	}
}
