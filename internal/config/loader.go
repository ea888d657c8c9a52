package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultDirName  = ".memdex"
	defaultFileName = "memdex.json"
)

// envBindings maps config keys to the environment variables that override
// them. The first variable found wins.
var envBindings = map[string][]string{
	"workspace_path":       {"MEMDEX_WORKSPACE_PATH"},
	"data_dir":             {"MEMDEX_DATA_DIR"},
	"store.backend":        {"MEMDEX_STORE_BACKEND"},
	"store.path":           {"MEMDEX_STORE_PATH"},
	"store.qdrant_url":     {"MEMDEX_STORE_QDRANT_URL", "QDRANT_URL"},
	"store.qdrant_api_key": {"MEMDEX_STORE_QDRANT_API_KEY", "QDRANT_API_KEY"},
	"embedding.provider":   {"MEMDEX_EMBEDDING_PROVIDER"},
	"embedding.model":      {"MEMDEX_EMBEDDING_MODEL"},
	"embedding.api_key":    {"MEMDEX_EMBEDDING_API_KEY", "OPENAI_API_KEY"},
	"embedding.base_url":   {"MEMDEX_EMBEDDING_BASE_URL"},
	"logging.level":        {"MEMDEX_LOGGING_LEVEL"},
}

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file (if present), validates it against Schema,
// applies environment overrides and fills derived paths.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to determine config path")
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("MEMDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := ValidateSchema(data); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.ResolvePaths(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to determine config path")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("workspace_path", cfg.WorkspacePath)
	v.Set("data_dir", cfg.DataDir)
	v.Set("store", cfg.Store)
	v.Set("embedding", cfg.Embedding)
	v.Set("chunker", cfg.Chunker)
	v.Set("watcher", cfg.Watcher)
	v.Set("reconcile", cfg.Reconcile)
	v.Set("retrieval", cfg.Retrieval)
	v.Set("server", cfg.Server)
	v.Set("logging", cfg.Logging)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// ResolvePaths fills the paths derived from the data directory and makes the
// workspace path absolute.
func (c *Config) ResolvePaths() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		c.DataDir = filepath.Join(home, defaultDirName)
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.DataDir, "memory.db")
	}
	if c.Logging.File == "" {
		c.Logging.File = filepath.Join(c.DataDir, "memdex.log")
	}
	if c.Logging.AuditFile == "" {
		c.Logging.AuditFile = filepath.Join(c.DataDir, "audit.log")
	}
	if c.WorkspacePath != "" {
		if abs, err := filepath.Abs(c.WorkspacePath); err == nil {
			c.WorkspacePath = abs
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, defaultDirName, defaultFileName)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
