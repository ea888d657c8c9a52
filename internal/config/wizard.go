package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard reading from stdin and writing to stdout
func NewWizard() *Wizard {
	return NewWizardWithIO(os.Stdin, os.Stdout)
}

func NewWizardWithIO(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run asks for the settings that differ between installations and returns
// a config built on DefaultConfig.
func (w *Wizard) Run() (*Config, error) {
	fmt.Fprintln(w.out, "=== memdex Configuration Wizard ===")
	fmt.Fprintln(w.out)

	cfg := DefaultConfig()
	validator := NewValidator()

	// Workspace
	for {
		fmt.Fprint(w.out, "Workspace path (directory holding MEMORY.md and friends): ")
		path, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if path == "" {
			fmt.Fprintln(w.out, "Error: workspace path is required")
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			fmt.Fprintf(w.out, "Error: %s is not a directory\n", abs)
			continue
		}
		cfg.WorkspacePath = abs
		break
	}

	fmt.Fprintln(w.out)

	// Vector store
	fmt.Fprintln(w.out, "Vector store options:")
	fmt.Fprintln(w.out, "  sqlite - local sqlite-vec database (default)")
	fmt.Fprintln(w.out, "  qdrant - Qdrant server")
	fmt.Fprintln(w.out, "  memory - in-process, nothing persisted")
	fmt.Fprint(w.out, "Store backend [sqlite]: ")
	backend, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if backend != "" {
		if err := validator.ValidateBackend(backend); err != nil {
			fmt.Fprintf(w.out, "Warning: %v, using default (sqlite)\n", err)
		} else {
			cfg.Store.Backend = backend
		}
	}

	if cfg.Store.Backend == "qdrant" {
		for {
			fmt.Fprintf(w.out, "Qdrant URL [%s]: ", cfg.Store.QdrantURL)
			u, err := w.readLine()
			if err != nil {
				return nil, err
			}
			if u == "" {
				break
			}
			if err := validator.ValidateQdrantURL(u); err != nil {
				fmt.Fprintf(w.out, "Error: %v\n", err)
				continue
			}
			cfg.Store.QdrantURL = u
			break
		}
	}

	fmt.Fprintln(w.out)

	// Embeddings
	fmt.Fprint(w.out, "Embedding provider (hashing/openai) [hashing]: ")
	provider, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if provider != "" {
		if err := validator.ValidateProvider(provider); err != nil {
			fmt.Fprintf(w.out, "Warning: %v, using default (hashing)\n", err)
		} else {
			cfg.Embedding.Provider = provider
		}
	}

	if cfg.Embedding.Provider == "openai" {
		for {
			fmt.Fprint(w.out, "OpenAI API Key: ")
			key, err := w.readLine()
			if err != nil {
				return nil, err
			}
			if err := validator.ValidateAPIKey(key, "openai"); err != nil {
				fmt.Fprintf(w.out, "Error: %v\n", err)
				continue
			}
			cfg.Embedding.APIKey = key
			break
		}
	}

	fmt.Fprintln(w.out)

	// Watcher
	fmt.Fprintf(w.out, "Watcher debounce in seconds [%d]: ", cfg.Watcher.DebounceSeconds)
	debounce, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if debounce != "" {
		n, err := strconv.Atoi(debounce)
		if err != nil || n < 0 {
			fmt.Fprintf(w.out, "Warning: invalid debounce %q, using default (%d)\n", debounce, cfg.Watcher.DebounceSeconds)
		} else {
			cfg.Watcher.DebounceSeconds = n
		}
	}

	// Log Level
	fmt.Fprint(w.out, "Log level (debug/info/warn/error) [info]: ")
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Fprintf(w.out, "Warning: %v, using default (info)\n", err)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return cfg, nil
}

// readLine returns the next trimmed line. A final line without a newline is
// accepted; io.EOF is returned only when nothing was read.
func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}
