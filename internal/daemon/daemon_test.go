package daemon

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/memdex/internal/config"
	"github.com/harun/memdex/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig returns a config over a fresh workspace using the in-process
// store and the offline embedder.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	tmpDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(tmpDir, "data")
	cfg.WorkspacePath = filepath.Join(tmpDir, "workspace")
	cfg.Store.Backend = "memory"
	cfg.Logging.AuditFile = filepath.Join(tmpDir, "audit.log")
	cfg.Server.Port = 0
	cfg.Watcher.DebounceSeconds = 1

	require.NoError(t, os.MkdirAll(cfg.WorkspacePath, 0755))
	return cfg
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

func createTestDaemon(t *testing.T, cfg *config.Config, opts Options) *Daemon {
	t.Helper()
	d, err := New(cfg, testLogger(t), opts)
	require.NoError(t, err)
	return d
}

func writeWorkspaceFile(t *testing.T, cfg *config.Config, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.WorkspacePath, name), []byte(content), 0644))
}

func TestNew(t *testing.T) {
	t.Run("one-shot", func(t *testing.T) {
		d := createTestDaemon(t, testConfig(t), Options{})
		defer d.Close()

		assert.NotNil(t, d.GetStore())
		assert.NotNil(t, d.GetIndexer())
		assert.NotNil(t, d.GetRetriever())
		assert.NotNil(t, d.GetConfig())
		assert.NotNil(t, d.GetLogger())
		assert.Nil(t, d.GetWatcher())
		assert.Nil(t, d.GetServer())
		assert.Nil(t, d.sweeper)
		assert.Equal(t, "memory", d.GetStore().Location())
	})

	t.Run("services", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Reconcile.Schedule = "@hourly"
		d := createTestDaemon(t, cfg, Options{Watch: true, Serve: true})
		defer d.Close()

		assert.NotNil(t, d.GetWatcher())
		assert.NotNil(t, d.GetServer())
		assert.NotNil(t, d.sweeper)
	})

	t.Run("invalid store backend", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Store.Backend = "cassandra"
		_, err := New(cfg, testLogger(t), Options{})
		assert.Error(t, err)
	})

	t.Run("invalid schedule", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Reconcile.Schedule = "every tuesday"
		_, err := New(cfg, testLogger(t), Options{Watch: true})
		assert.Error(t, err)
	})

	t.Run("missing dependencies", func(t *testing.T) {
		_, err := New(nil, testLogger(t), Options{})
		assert.Error(t, err)
		_, err = New(testConfig(t), nil, Options{})
		assert.Error(t, err)
	})
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "sqlite"
	cfg.Store.Path = filepath.Join(cfg.DataDir, "memory.db")
	writeWorkspaceFile(t, cfg, "MEMORY.md", "# Trips\nVisited Kyoto.\n# Food\nLikes ramen.")

	d := createTestDaemon(t, cfg, Options{Serve: true})

	require.NoError(t, d.Start())
	assert.Error(t, d.Start())

	status := d.Status()
	assert.True(t, status.Running)
	assert.True(t, status.Serving)
	assert.False(t, status.Watching)

	// Startup catch-up indexed the existing file.
	idx := d.GetIndexer().Status(t.Context())
	assert.Equal(t, 1, idx.TotalFilesIndexed)
	assert.Equal(t, 2, idx.TotalChunks)

	_, err := os.Stat(PIDFilePath(cfg.DataDir))
	assert.NoError(t, err)

	resp, err := http.Get("http://" + d.GetServer().Addr() + "/v1/memory/search?q=kyoto")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, d.Stop())
	assert.False(t, d.Status().Running)
	assert.Error(t, d.Stop())

	_, err = os.Stat(PIDFilePath(cfg.DataDir))
	assert.True(t, os.IsNotExist(err))

	// A closed daemon cannot be restarted.
	assert.Error(t, d.Start())

	// The index survives a restart.
	d2 := createTestDaemon(t, cfg, Options{})
	defer d2.Close()
	assert.Equal(t, 2, d2.GetIndexer().Status(t.Context()).TotalChunks)
}

func TestDaemonStartMissingWorkspaceKeepsIndex(t *testing.T) {
	for _, opts := range []Options{{Serve: true}, {Watch: true}} {
		cfg := testConfig(t)
		writeWorkspaceFile(t, cfg, "AGENT.md", "# Rules\nBe brief.")

		d := createTestDaemon(t, cfg, opts)
		_, err := d.GetIndexer().IndexAll(t.Context(), false)
		require.NoError(t, err)
		require.NoError(t, os.RemoveAll(cfg.WorkspacePath))

		err = d.Start()
		if opts.Watch {
			assert.Error(t, err)
		} else {
			require.NoError(t, err)
			require.NoError(t, d.Stop())
		}

		status := d.GetIndexer().Status(t.Context())
		assert.Equal(t, 1, status.TotalFilesIndexed)
		assert.Equal(t, 1, status.TotalChunks)
		require.NoError(t, d.Close())
	}
}

func TestDaemonWatch(t *testing.T) {
	cfg := testConfig(t)
	d := createTestDaemon(t, cfg, Options{Watch: true})

	require.NoError(t, d.Start())
	defer d.Stop()

	assert.True(t, d.Status().Watching)
	writeWorkspaceFile(t, cfg, "USER.md", "# Preferences\nGreen tea.")

	require.Eventually(t, func() bool {
		return d.GetIndexer().Status(t.Context()).TotalFilesIndexed == 1
	}, 10*time.Second, 50*time.Millisecond)
}

func TestDaemonStatus(t *testing.T) {
	d := createTestDaemon(t, testConfig(t), Options{})

	status := d.Status()
	assert.False(t, status.Running)
	assert.Equal(t, time.Duration(0), status.Uptime)

	require.NoError(t, d.Start())
	defer d.Stop()

	time.Sleep(20 * time.Millisecond)
	status = d.Status()
	assert.True(t, status.Running)
	assert.Greater(t, status.Uptime, time.Duration(0))
	assert.FileExists(t, d.pidFile.Path())
}

func TestDaemonClose(t *testing.T) {
	d := createTestDaemon(t, testConfig(t), Options{})
	require.NoError(t, d.Close())
	assert.NoError(t, d.Close())
}
