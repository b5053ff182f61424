package data

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("data not found")

// Store persists snapshots and serves the latest ones per ticker.
// Implementations must be safe for concurrent use.
type Store interface {
	SaveMarketData(ctx context.Context, md *MarketData) error
	LatestMarketData(ctx context.Context, ticker string) (*MarketData, error)
	ListLatestMarketData(ctx context.Context) ([]MarketData, error)

	SaveOptionSnapshot(ctx context.Context, snap *OptionSnapshot) error
	LatestOptionSnapshot(ctx context.Context, ticker string) (*OptionSnapshot, error)

	SaveGammaSnapshot(ctx context.Context, snap *GammaSnapshot) error
	LatestGammaSnapshot(ctx context.Context, ticker string) (*GammaSnapshot, error)
	ListLatestGammaSnapshots(ctx context.Context) ([]GammaSnapshot, error)

	// GammaHistory returns up to limit snapshots for ticker, newest first.
	GammaHistory(ctx context.Context, ticker string, limit int) ([]GammaSnapshot, error)

	Close() error
}

// Open creates the store for the given driver ("sqlite" or "memory").
func Open(driver, path string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLiteStore(path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, errors.New("unknown store driver: " + driver)
	}
}
