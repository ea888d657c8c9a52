package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	megabyte        = 1024 * 1024
	backupTimestamp = "20060102-150405"
)

// RotationConfig describes a size-rotated log file.
type RotationConfig struct {
	Filename   string
	MaxSizeMB  int  // rotate once the file would grow past this
	MaxAgeDays int  // backups older than this are pruned; 0 keeps them all
	Compress   bool // gzip backups after rotation
}

// RotatingWriter appends to a log file and moves it aside once it reaches
// its size limit. Safe for concurrent use.
type RotatingWriter struct {
	cfg      RotationConfig
	maxBytes int64

	mu   sync.Mutex
	file *os.File
	size int64
	seq  int

	// background compression and pruning
	bg sync.WaitGroup
}

// NewRotatingWriter opens (or creates) cfg.Filename for appending.
func NewRotatingWriter(cfg RotationConfig) (*RotatingWriter, error) {
	if cfg.Filename == "" {
		return nil, fmt.Errorf("rotating writer: filename is required")
	}
	if cfg.MaxSizeMB <= 0 {
		return nil, fmt.Errorf("rotating writer: max size must be positive, got %d", cfg.MaxSizeMB)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Filename), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &RotatingWriter{
		cfg:      cfg,
		maxBytes: int64(cfg.MaxSizeMB) * megabyte,
	}
	if err := w.open(); err != nil {
		return nil, err
	}

	w.bg.Add(1)
	go func() {
		defer w.bg.Done()
		w.prune(time.Now())
	}()

	return w, nil
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.cfg.Filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// Write appends p, rotating first when p would push the file past its limit.
// A single write larger than the limit still lands in one file.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.size > 0 && w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotate(time.Now()); err != nil {
			return 0, fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the active file and waits for pending compression.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	var err error
	if w.file != nil {
		err = w.file.Close()
		w.file = nil
	}
	w.mu.Unlock()

	w.bg.Wait()
	return err
}

// rotate must be called with mu held.
func (w *RotatingWriter) rotate(now time.Time) error {
	if err := w.file.Close(); err != nil {
		return err
	}
	w.file = nil

	backup := w.backupName(now)
	if err := os.Rename(w.cfg.Filename, backup); err != nil {
		return err
	}
	if err := w.open(); err != nil {
		return err
	}

	w.bg.Add(1)
	go func() {
		defer w.bg.Done()
		if w.cfg.Compress {
			_ = gzipFile(backup)
		}
		w.prune(now)
	}()
	return nil
}

// backupName is "<file>.<timestamp>", with a counter appended when several
// rotations land in the same second.
func (w *RotatingWriter) backupName(now time.Time) string {
	name := fmt.Sprintf("%s.%s", w.cfg.Filename, now.Format(backupTimestamp))
	if _, err := os.Stat(name); err != nil {
		if _, gzErr := os.Stat(name + ".gz"); gzErr != nil {
			return name
		}
	}
	w.seq++
	return fmt.Sprintf("%s-%d", name, w.seq)
}

// Backups lists rotated files for this log, compressed or not.
func (w *RotatingWriter) Backups() ([]string, error) {
	return filepath.Glob(w.cfg.Filename + ".*")
}

// prune removes backups last modified before now - MaxAgeDays.
func (w *RotatingWriter) prune(now time.Time) {
	if w.cfg.MaxAgeDays <= 0 {
		return
	}
	backups, err := w.Backups()
	if err != nil {
		return
	}

	cutoff := now.AddDate(0, 0, -w.cfg.MaxAgeDays)
	for _, path := range backups {
		info, err := os.Stat(path)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		os.Remove(path)
	}
}

// gzipFile replaces path with path.gz.
func gzipFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		dst.Close()
		os.Remove(path + ".gz")
		return err
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	src.Close()
	return os.Remove(path)
}
