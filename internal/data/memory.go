package data

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps snapshots in process memory. Used for tests and for
// running without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	market  map[string][]MarketData
	options map[string]OptionSnapshot
	gamma   map[string][]GammaSnapshot
}

// Compile-time interface verification
var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		market:  make(map[string][]MarketData),
		options: make(map[string]OptionSnapshot),
		gamma:   make(map[string][]GammaSnapshot),
	}
}

func (m *MemoryStore) SaveMarketData(ctx context.Context, md *MarketData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.market[md.Ticker] = upsertBar(m.market[md.Ticker], *md)
	return nil
}

// upsertBar keeps rows ordered by timestamp, replacing a bar with the same timestamp.
func upsertBar(rows []MarketData, md MarketData) []MarketData {
	i := sort.Search(len(rows), func(i int) bool { return !rows[i].Timestamp.Before(md.Timestamp) })
	if i < len(rows) && rows[i].Timestamp.Equal(md.Timestamp) {
		rows[i] = md
		return rows
	}
	rows = append(rows, MarketData{})
	copy(rows[i+1:], rows[i:])
	rows[i] = md
	return rows
}

func (m *MemoryStore) LatestMarketData(ctx context.Context, ticker string) (*MarketData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.market[ticker]
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	md := rows[len(rows)-1]
	return &md, nil
}

func (m *MemoryStore) ListLatestMarketData(ctx context.Context) ([]MarketData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]MarketData, 0, len(m.market))
	for _, rows := range m.market {
		if len(rows) > 0 {
			out = append(out, rows[len(rows)-1])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func (m *MemoryStore) SaveOptionSnapshot(ctx context.Context, snap *OptionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.options[snap.Ticker] = *snap
	return nil
}

func (m *MemoryStore) LatestOptionSnapshot(ctx context.Context, ticker string) (*OptionSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.options[ticker]
	if !ok {
		return nil, ErrNotFound
	}
	return &snap, nil
}

func (m *MemoryStore) SaveGammaSnapshot(ctx context.Context, snap *GammaSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gamma[snap.Ticker] = append(m.gamma[snap.Ticker], *snap)
	return nil
}

func (m *MemoryStore) LatestGammaSnapshot(ctx context.Context, ticker string) (*GammaSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.gamma[ticker]
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	snap := rows[len(rows)-1]
	return &snap, nil
}

func (m *MemoryStore) ListLatestGammaSnapshots(ctx context.Context) ([]GammaSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]GammaSnapshot, 0, len(m.gamma))
	for _, rows := range m.gamma {
		if len(rows) > 0 {
			out = append(out, rows[len(rows)-1])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func (m *MemoryStore) GammaHistory(ctx context.Context, ticker string, limit int) ([]GammaSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		return []GammaSnapshot{}, nil
	}

	rows := m.gamma[ticker]
	out := make([]GammaSnapshot, 0, min(limit, len(rows)))
	for i := len(rows) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, rows[i])
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.market = make(map[string][]MarketData)
	m.options = make(map[string]OptionSnapshot)
	m.gamma = make(map[string][]GammaSnapshot)
	return nil
}
