package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWizardRun(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		dir := t.TempDir()
		in := strings.NewReader(dir + "\n\n\n\n\n")
		var out bytes.Buffer

		cfg, err := NewWizardWithIO(in, &out).Run()
		require.NoError(t, err)
		assert.Equal(t, dir, cfg.WorkspacePath)
		assert.Equal(t, "sqlite", cfg.Store.Backend)
		assert.Equal(t, "hashing", cfg.Embedding.Provider)
		assert.Equal(t, 30, cfg.Watcher.DebounceSeconds)
		assert.Contains(t, out.String(), "Configuration complete!")
	})

	t.Run("qdrant and openai with retries", func(t *testing.T) {
		dir := t.TempDir()
		answers := []string{
			"",                   // empty workspace, re-asked
			dir + "/missing",     // not a directory, re-asked
			dir,                  // ok
			"qdrant",             // backend
			"not a url",          // rejected
			"http://qdrant:6333", // ok
			"openai",             // provider
			"bad-key",            // rejected
			"sk-test",            // ok
			"10",                 // debounce
			"debug",              // log level
		}
		in := strings.NewReader(strings.Join(answers, "\n"))
		var out bytes.Buffer

		cfg, err := NewWizardWithIO(in, &out).Run()
		require.NoError(t, err)
		assert.Equal(t, dir, cfg.WorkspacePath)
		assert.Equal(t, "qdrant", cfg.Store.Backend)
		assert.Equal(t, "http://qdrant:6333", cfg.Store.QdrantURL)
		assert.Equal(t, "openai", cfg.Embedding.Provider)
		assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
		assert.Equal(t, 10, cfg.Watcher.DebounceSeconds)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Contains(t, out.String(), "workspace path is required")
	})

	t.Run("invalid choices fall back", func(t *testing.T) {
		dir := t.TempDir()
		in := strings.NewReader(dir + "\nredis\ncohere\n-3\nloud\n")
		var out bytes.Buffer

		cfg, err := NewWizardWithIO(in, &out).Run()
		require.NoError(t, err)
		assert.Equal(t, "sqlite", cfg.Store.Backend)
		assert.Equal(t, "hashing", cfg.Embedding.Provider)
		assert.Equal(t, 30, cfg.Watcher.DebounceSeconds)
		assert.Equal(t, "info", cfg.Logging.Level)
	})

	t.Run("input ends early", func(t *testing.T) {
		_, err := NewWizardWithIO(strings.NewReader(""), &bytes.Buffer{}).Run()
		assert.Error(t, err)
	})
}
