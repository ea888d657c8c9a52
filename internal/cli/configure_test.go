package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/memdex/internal/config"
)

func TestConfigureCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		output, err := executeCommand(t, "", "configure", "--help")
		require.NoError(t, err)
		assert.Contains(t, output, "interactive configuration wizard")
	})

	t.Run("writes config", func(t *testing.T) {
		dir := t.TempDir()
		workspace := filepath.Join(dir, "ws")
		require.NoError(t, os.MkdirAll(workspace, 0755))
		configPath := filepath.Join(dir, "memdex.json")

		// workspace, then defaults for backend, provider, debounce and log level
		stdin := strings.Join([]string{workspace, "", "", "", ""}, "\n") + "\n"
		output, err := executeCommand(t, stdin, "configure", "--config", configPath)
		require.NoError(t, err)
		assert.Contains(t, output, "Configuration saved to: "+configPath)

		cfg, err := config.Load(configPath)
		require.NoError(t, err)
		assert.Equal(t, workspace, cfg.WorkspacePath)
		assert.Equal(t, "sqlite", cfg.Store.Backend)
	})
}
