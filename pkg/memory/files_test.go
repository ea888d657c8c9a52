package memory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDataDirectory(t *testing.T) {
	t.Run("create new directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "data", "memdex")

		result, err := EnsureDataDirectory(dir)
		require.NoError(t, err)
		assert.Equal(t, dir, result)

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("directory already exists", func(t *testing.T) {
		dir := t.TempDir()

		result, err := EnsureDataDirectory(dir)
		require.NoError(t, err)
		assert.Equal(t, dir, result)
	})

	t.Run("path exists but is not directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "data")
		require.NoError(t, os.WriteFile(path, []byte("test"), 0644))

		_, err := EnsureDataDirectory(path)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not a directory")
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := EnsureDataDirectory("")
		assert.Error(t, err)
	})
}

func TestValidateRelativePath(t *testing.T) {
	t.Run("valid relative path", func(t *testing.T) {
		assert.NoError(t, ValidateRelativePath("MEMORY.md"))
	})

	t.Run("empty path", func(t *testing.T) {
		err := ValidateRelativePath("")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "cannot be empty")
	})

	t.Run("absolute path rejected", func(t *testing.T) {
		err := ValidateRelativePath("/absolute/MEMORY.md")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "must be relative")
	})

	t.Run("parent directory reference rejected", func(t *testing.T) {
		err := ValidateRelativePath("../MEMORY.md")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "parent directories")
	})

	t.Run("dotted file name allowed", func(t *testing.T) {
		assert.NoError(t, ValidateRelativePath("..notes.md"))
	})
}

func TestResolveWorkspacePath(t *testing.T) {
	root := t.TempDir()

	t.Run("valid path", func(t *testing.T) {
		fullPath, err := ResolveWorkspacePath(root, "USER.md")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "USER.md"), fullPath)
	})

	t.Run("parent reference rejected", func(t *testing.T) {
		_, err := ResolveWorkspacePath(root, "../USER.md")
		assert.Error(t, err)
	})

	t.Run("path traversal blocked", func(t *testing.T) {
		_, err := ResolveWorkspacePath(root, "notes/../../USER.md")
		require.Error(t, err)
		msg := err.Error()
		assert.True(t,
			strings.Contains(msg, "invalid components") || strings.Contains(msg, "escapes workspace"),
			"expected path validation error, got: %v", err)
	})
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()

	t.Run("file exists", func(t *testing.T) {
		path := filepath.Join(dir, "AGENT.md")
		require.NoError(t, os.WriteFile(path, []byte("test"), 0644))

		exists, err := FileExists(path)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("file does not exist", func(t *testing.T) {
		exists, err := FileExists(filepath.Join(dir, "missing.md"))
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("directory is not a file", func(t *testing.T) {
		exists, err := FileExists(dir)
		require.NoError(t, err)
		assert.False(t, exists)
		assert.True(t, DirExists(dir))
	})
}
