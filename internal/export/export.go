package export

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/dgnsrekt/gamma-exposure/internal/data"
)

// Result describes a finished export.
type Result struct {
	Ticker string
	Path   string
	Count  int
	Bytes  int64
}

// Manager writes gamma history as JSON Lines under baseDir. Files are built in
// a staging directory and renamed into place, so readers never see a partial file.
type Manager struct {
	baseDir     string
	stagingRoot string
	compress    bool
	now         func() time.Time
}

type Option func(*Manager)

// WithCompression writes zstd-compressed files with a .jsonl.zst suffix.
func WithCompression(enabled bool) Option {
	return func(m *Manager) { m.compress = enabled }
}

func NewManager(baseDir string, opts ...Option) *Manager {
	m := &Manager{
		baseDir:     baseDir,
		stagingRoot: filepath.Join(baseDir, ".staging"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) FinalDir() string {
	return m.baseDir
}

func (m *Manager) StagingRoot() string {
	return m.stagingRoot
}

// FileName returns the export file name for ticker on the given date.
// Index carets are dropped so "^GSPC" becomes "GSPC".
func (m *Manager) FileName(ticker string, date time.Time) string {
	safe := strings.NewReplacer("^", "", "/", "_", string(filepath.Separator), "_").Replace(ticker)
	name := fmt.Sprintf("%s_gamma_%s.jsonl", safe, date.Format("2006-01-02"))
	if m.compress {
		name += ".zst"
	}
	return name
}

// ExportGammaHistory writes up to limit snapshots for ticker, oldest first, one
// JSON object per line.
func (m *Manager) ExportGammaHistory(ctx context.Context, store data.Store, ticker string, limit int) (*Result, error) {
	history, err := store.GammaHistory(ctx, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("loading gamma history: %w", err)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("no gamma history for %s: %w", ticker, data.ErrNotFound)
	}

	name := m.FileName(ticker, m.now())
	stagingPath := filepath.Join(m.stagingRoot, name)
	finalPath := filepath.Join(m.baseDir, name)

	if err := os.MkdirAll(m.stagingRoot, 0750); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	size, err := m.writeStaged(stagingPath, history)
	if err != nil {
		return nil, err
	}

	// Atomic rename
	if err := os.Rename(stagingPath, finalPath); err != nil {
		_ = os.Remove(stagingPath)
		return nil, fmt.Errorf("committing export: %w", err)
	}

	return &Result{Ticker: ticker, Path: finalPath, Count: len(history), Bytes: size}, nil
}

func (m *Manager) writeStaged(path string, history []data.GammaSnapshot) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}

	err = m.writeLines(f, history)
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("writing export: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat export: %w", err)
	}
	return info.Size(), nil
}

func (m *Manager) writeLines(w io.Writer, history []data.GammaSnapshot) error {
	var zw *zstd.Encoder
	if m.compress {
		var err error
		zw, err = zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("creating zstd writer: %w", err)
		}
		defer func() {
			if zw != nil {
				_ = zw.Close()
			}
		}()
		w = zw
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	// History comes newest first.
	for i := len(history) - 1; i >= 0; i-- {
		if err := enc.Encode(&history[i]); err != nil {
			return fmt.Errorf("encoding line: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing: %w", err)
	}

	if zw != nil {
		err := zw.Close()
		zw = nil
		if err != nil {
			return fmt.Errorf("closing zstd writer: %w", err)
		}
	}
	return nil
}

// CleanupStaging removes leftovers from interrupted exports.
func (m *Manager) CleanupStaging() error {
	return os.RemoveAll(m.stagingRoot)
}

// ReadGammaHistory reads an export written by ExportGammaHistory.
func ReadGammaHistory(path string) ([]data.GammaSnapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening export: %w", err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("creating zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	var out []data.GammaSnapshot
	dec := json.NewDecoder(r)
	for dec.More() {
		var snap data.GammaSnapshot
		if err := dec.Decode(&snap); err != nil {
			return nil, fmt.Errorf("decoding line %d: %w", len(out)+1, err)
		}
		out = append(out, snap)
	}
	return out, nil
}
