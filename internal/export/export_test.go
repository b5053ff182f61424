package export

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgnsrekt/gamma-exposure/internal/data"
	"github.com/dgnsrekt/gamma-exposure/internal/gamma"
)

var exportDay = time.Date(2025, 11, 14, 21, 0, 0, 0, time.UTC)

func seededStore(t *testing.T, ticker string, n int) data.Store {
	t.Helper()

	store := data.NewMemoryStore()
	for i := 0; i < n; i++ {
		err := store.SaveGammaSnapshot(context.Background(), &data.GammaSnapshot{
			ID:          ticker + "-" + string(rune('0'+i)),
			Ticker:      ticker,
			Timestamp:   exportDay.Add(time.Duration(i) * time.Hour),
			SpotPrice:   100 + float64(i),
			NetGamma:    float64(i * 10),
			GammaLevels: []gamma.StrikeExposure{{Strike: 100, GammaExposure: float64(i)}},
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return store
}

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	mgr := NewManager(t.TempDir(), opts...)
	mgr.now = func() time.Time { return exportDay }
	return mgr
}

func TestExportGammaHistory(t *testing.T) {
	mgr := newTestManager(t)
	store := seededStore(t, "^GSPC", 4)

	result, err := mgr.ExportGammaHistory(context.Background(), store, "^GSPC", 3)
	if err != nil {
		t.Fatalf("ExportGammaHistory failed: %v", err)
	}

	expectedPath := filepath.Join(mgr.FinalDir(), "GSPC_gamma_2025-11-14.jsonl")
	if result.Path != expectedPath {
		t.Errorf("expected path %s, got %s", expectedPath, result.Path)
	}
	if result.Count != 3 {
		t.Errorf("expected 3 lines, got %d", result.Count)
	}

	content, err := os.ReadFile(result.Path)
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	if int64(len(content)) != result.Bytes {
		t.Errorf("expected %d bytes, got %d", len(content), result.Bytes)
	}
	if lines := bytes.Count(content, []byte("\n")); lines != 3 {
		t.Errorf("expected 3 JSONL lines, got %d", lines)
	}

	snaps, err := ReadGammaHistory(result.Path)
	if err != nil {
		t.Fatalf("ReadGammaHistory failed: %v", err)
	}
	// The newest three, written oldest first.
	if snaps[0].ID != "^GSPC-1" || snaps[2].ID != "^GSPC-3" {
		t.Errorf("unexpected order: %s .. %s", snaps[0].ID, snaps[2].ID)
	}

	// Verify nothing is left in staging
	entries, err := os.ReadDir(mgr.StagingRoot())
	if err != nil {
		t.Fatalf("failed to read staging: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("staging should be empty after commit, found %d entries", len(entries))
	}
}

func TestExportGammaHistory_Compressed(t *testing.T) {
	mgr := newTestManager(t, WithCompression(true))
	store := seededStore(t, "AAPL", 2)

	result, err := mgr.ExportGammaHistory(context.Background(), store, "AAPL", 10)
	if err != nil {
		t.Fatalf("ExportGammaHistory failed: %v", err)
	}
	if filepath.Base(result.Path) != "AAPL_gamma_2025-11-14.jsonl.zst" {
		t.Errorf("unexpected file name %s", filepath.Base(result.Path))
	}

	snaps, err := ReadGammaHistory(result.Path)
	if err != nil {
		t.Fatalf("ReadGammaHistory failed: %v", err)
	}
	if len(snaps) != 2 || snaps[1].NetGamma != 10 {
		t.Errorf("unexpected snapshots: %+v", snaps)
	}
}

func TestExportGammaHistory_Empty(t *testing.T) {
	mgr := newTestManager(t)

	_, err := mgr.ExportGammaHistory(context.Background(), data.NewMemoryStore(), "MSFT", 10)
	if !errors.Is(err, data.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if _, err := os.Stat(filepath.Join(mgr.FinalDir(), mgr.FileName("MSFT", exportDay))); !os.IsNotExist(err) {
		t.Error("no file should be written for empty history")
	}
}

func TestCleanupStaging(t *testing.T) {
	mgr := newTestManager(t)
	if err := os.MkdirAll(mgr.StagingRoot(), 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(mgr.StagingRoot(), "partial.jsonl"), []byte("{"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := mgr.CleanupStaging(); err != nil {
		t.Fatalf("CleanupStaging failed: %v", err)
	}
	if _, err := os.Stat(mgr.StagingRoot()); !os.IsNotExist(err) {
		t.Error("staging directory should be removed after cleanup")
	}
}

func TestExportGammaHistory_CompressedEncodeFailure(t *testing.T) {
	mgr := newTestManager(t, WithCompression(true))
	store := data.NewMemoryStore()
	err := store.SaveGammaSnapshot(context.Background(), &data.GammaSnapshot{
		ID: "bad", Ticker: "AAPL", Timestamp: exportDay, NetGamma: math.NaN(),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := mgr.ExportGammaHistory(context.Background(), store, "AAPL", 10); err == nil {
		t.Fatal("expected error for unencodable snapshot")
	}

	name := mgr.FileName("AAPL", exportDay)
	for _, dir := range []string{mgr.FinalDir(), mgr.StagingRoot()} {
		if _, err := os.Stat(filepath.Join(dir, name)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected no partial export in %s, stat err: %v", dir, err)
		}
	}
}
