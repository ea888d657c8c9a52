package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("defaults when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nonexistent.json")

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "sqlite", cfg.Store.Backend)
		assert.NotEmpty(t, cfg.DataDir)
		assert.Equal(t, filepath.Join(cfg.DataDir, "memory.db"), cfg.Store.Path)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"workspace_path": "` + tmpDir + `",
			"data_dir": "` + filepath.Join(tmpDir, "data") + `",
			"store": {"backend": "qdrant", "qdrant_url": "http://qdrant:6333"},
			"chunker": {"chunk_size_limit": 800, "fence_aware": true},
			"watcher": {"debounce_seconds": 5},
			"reconcile": {"schedule": "@hourly"}
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, tmpDir, cfg.WorkspacePath)
		assert.Equal(t, "qdrant", cfg.Store.Backend)
		assert.Equal(t, "http://qdrant:6333", cfg.Store.QdrantURL)
		assert.Equal(t, "agent_memory", cfg.Store.Collection)
		assert.Equal(t, 800, cfg.Chunker.ChunkSizeLimit)
		assert.Equal(t, 100, cfg.Chunker.ChunkOverlap)
		assert.True(t, cfg.Chunker.FenceAware)
		assert.Equal(t, 5, cfg.Watcher.DebounceSeconds)
		assert.Equal(t, "@hourly", cfg.Reconcile.Schedule)
		assert.Equal(t, filepath.Join(tmpDir, "data", "memory.db"), cfg.Store.Path)
		assert.Equal(t, filepath.Join(tmpDir, "data", "memdex.log"), cfg.Logging.File)
		assert.Equal(t, filepath.Join(tmpDir, "data", "audit.log"), cfg.Logging.AuditFile)
	})

	t.Run("environment overrides", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv("MEMDEX_WORKSPACE_PATH", tmpDir)
		t.Setenv("OPENAI_API_KEY", "sk-from-env")

		cfg, err := NewLoader(filepath.Join(tmpDir, "missing.json")).Load()

		require.NoError(t, err)
		assert.Equal(t, tmpDir, cfg.WorkspacePath)
		assert.Equal(t, "sk-from-env", cfg.Embedding.APIKey)
	})

	t.Run("schema violation", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"store": {"backend": "redis"}}`), 0644))

		_, err := NewLoader(configPath).Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "schema validation")
	})

	t.Run("unknown key", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"chunker": {"chunk_sise_limit": 10}}`), 0644))

		_, err := NewLoader(configPath).Load()
		assert.Error(t, err)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "invalid.json")
		require.NoError(t, os.WriteFile(configPath, []byte("invalid json"), 0644))

		_, err := NewLoader(configPath).Load()
		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	t.Run("save and reload", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		cfg := DefaultConfig()
		cfg.WorkspacePath = tmpDir
		cfg.DataDir = tmpDir
		cfg.Store.Path = filepath.Join(tmpDir, "memory.db")
		cfg.Embedding.Provider = "openai"
		cfg.Embedding.APIKey = "sk-test-key"
		cfg.Watcher.DebounceSeconds = 12

		require.NoError(t, NewLoader(configPath).Save(cfg))

		_, err := os.Stat(configPath)
		require.NoError(t, err)

		loaded, err := NewLoader(configPath).Load()
		require.NoError(t, err)
		assert.Equal(t, "openai", loaded.Embedding.Provider)
		assert.Equal(t, "sk-test-key", loaded.Embedding.APIKey)
		assert.Equal(t, 12, loaded.Watcher.DebounceSeconds)
		assert.NoError(t, loaded.Validate())
	})

	t.Run("create directory if not exists", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "subdir", "config.json")

		require.NoError(t, NewLoader(configPath).Save(DefaultConfig()))

		_, err := os.Stat(filepath.Dir(configPath))
		assert.NoError(t, err)
	})
}

func TestLoaderGetConfigPath(t *testing.T) {
	t.Run("custom path", func(t *testing.T) {
		loader := NewLoader("/custom/path/config.json")
		assert.Equal(t, "/custom/path/config.json", loader.GetConfigPath())
	})

	t.Run("default path", func(t *testing.T) {
		path := NewLoader("").GetConfigPath()
		assert.NotEmpty(t, path)
		assert.Contains(t, path, ".memdex")
	})
}

func TestValidateSchema(t *testing.T) {
	assert.NoError(t, ValidateSchema([]byte(`{}`)))
	assert.NoError(t, ValidateSchema([]byte(`{"retrieval": {"default_top_k": 3, "min_relevance": 0.4}}`)))
	assert.Error(t, ValidateSchema([]byte(`{"retrieval": {"min_relevance": 2}}`)))
	assert.Error(t, ValidateSchema([]byte(`{"server": {"port": "8080"}}`)))
	assert.Error(t, ValidateSchema([]byte(`{"store": {"collection": "has space"}}`)))
}

func TestResolvePaths(t *testing.T) {
	dataDir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = dataDir
	cfg.WorkspacePath = "relative/ws"
	cfg.Logging.File = "/var/log/memdex.log"

	require.NoError(t, cfg.ResolvePaths())
	assert.Equal(t, filepath.Join(dataDir, "memory.db"), cfg.Store.Path)
	assert.Equal(t, "/var/log/memdex.log", cfg.Logging.File)
	assert.Equal(t, filepath.Join(dataDir, "audit.log"), cfg.Logging.AuditFile)
	assert.True(t, filepath.IsAbs(cfg.WorkspacePath))
}
