package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store on top of SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time interface verification
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and creates if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Refresh workers write while HTTP handlers read.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS market_data (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticker TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		previous_close REAL NOT NULL,
		change REAL NOT NULL,
		volume INTEGER NOT NULL,
		UNIQUE(ticker, timestamp)
	);

	CREATE TABLE IF NOT EXISTS options_data (
		ticker TEXT PRIMARY KEY,
		fetched_at INTEGER NOT NULL,
		spot_price REAL NOT NULL,
		spot_time INTEGER NOT NULL,
		expirations TEXT NOT NULL,
		calls TEXT NOT NULL,
		puts TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS gamma_analysis (
		id TEXT PRIMARY KEY,
		ticker TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		spot_price REAL NOT NULL,
		spot_time INTEGER NOT NULL,
		net_gamma REAL NOT NULL,
		gamma_by_strike TEXT NOT NULL,
		gamma_levels TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_gamma_ticker_ts ON gamma_analysis(ticker, timestamp DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) SaveMarketData(ctx context.Context, md *MarketData) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_data (ticker, timestamp, open, high, low, close, previous_close, change, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, timestamp) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			previous_close = excluded.previous_close,
			change = excluded.change,
			volume = excluded.volume`,
		md.Ticker, unixNanos(md.Timestamp), md.Open, md.High, md.Low, md.Close,
		md.PreviousClose, md.Change, md.Volume,
	)
	if err != nil {
		return fmt.Errorf("saving market data for %s: %w", md.Ticker, err)
	}
	return nil
}

const marketColumns = `ticker, timestamp, open, high, low, close, previous_close, change, volume`

func (s *SQLiteStore) LatestMarketData(ctx context.Context, ticker string) (*MarketData, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+marketColumns+` FROM market_data
		WHERE ticker = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`, ticker)

	md, err := scanMarketData(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading market data for %s: %w", ticker, err)
	}
	return md, nil
}

func (s *SQLiteStore) ListLatestMarketData(ctx context.Context) ([]MarketData, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+marketColumns+` FROM market_data m
		WHERE m.id = (
			SELECT id FROM market_data
			WHERE ticker = m.ticker
			ORDER BY timestamp DESC, id DESC
			LIMIT 1
		)
		ORDER BY m.ticker`)
	if err != nil {
		return nil, fmt.Errorf("listing market data: %w", err)
	}
	defer rows.Close()

	out := []MarketData{}
	for rows.Next() {
		md, err := scanMarketData(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning market data: %w", err)
		}
		out = append(out, *md)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveOptionSnapshot(ctx context.Context, snap *OptionSnapshot) error {
	expirations, err := json.Marshal(snap.Expirations)
	if err != nil {
		return fmt.Errorf("encoding expirations: %w", err)
	}
	calls, err := json.Marshal(snap.Calls)
	if err != nil {
		return fmt.Errorf("encoding calls: %w", err)
	}
	puts, err := json.Marshal(snap.Puts)
	if err != nil {
		return fmt.Errorf("encoding puts: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO options_data (ticker, fetched_at, spot_price, spot_time, expirations, calls, puts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.Ticker, unixNanos(snap.FetchedAt), snap.SpotPrice, unixNanos(snap.SpotTime),
		string(expirations), string(calls), string(puts),
	)
	if err != nil {
		return fmt.Errorf("saving options data for %s: %w", snap.Ticker, err)
	}
	return nil
}

func (s *SQLiteStore) LatestOptionSnapshot(ctx context.Context, ticker string) (*OptionSnapshot, error) {
	var (
		snap                     OptionSnapshot
		fetchedAt, spotTime      int64
		expirations, calls, puts string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT ticker, fetched_at, spot_price, spot_time, expirations, calls, puts
		FROM options_data WHERE ticker = ?`, ticker).
		Scan(&snap.Ticker, &fetchedAt, &snap.SpotPrice, &spotTime, &expirations, &calls, &puts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading options data for %s: %w", ticker, err)
	}

	snap.FetchedAt = fromUnixNanos(fetchedAt)
	snap.SpotTime = fromUnixNanos(spotTime)
	if err := json.Unmarshal([]byte(expirations), &snap.Expirations); err != nil {
		return nil, fmt.Errorf("decoding expirations: %w", err)
	}
	if err := json.Unmarshal([]byte(calls), &snap.Calls); err != nil {
		return nil, fmt.Errorf("decoding calls: %w", err)
	}
	if err := json.Unmarshal([]byte(puts), &snap.Puts); err != nil {
		return nil, fmt.Errorf("decoding puts: %w", err)
	}
	return &snap, nil
}

func (s *SQLiteStore) SaveGammaSnapshot(ctx context.Context, snap *GammaSnapshot) error {
	byStrike, err := json.Marshal(snap.GammaByStrike)
	if err != nil {
		return fmt.Errorf("encoding gamma by strike: %w", err)
	}
	levels, err := json.Marshal(snap.GammaLevels)
	if err != nil {
		return fmt.Errorf("encoding gamma levels: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO gamma_analysis (id, ticker, timestamp, spot_price, spot_time, net_gamma, gamma_by_strike, gamma_levels)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.Ticker, unixNanos(snap.Timestamp), snap.SpotPrice, unixNanos(snap.SpotTime),
		snap.NetGamma, string(byStrike), string(levels),
	)
	if err != nil {
		return fmt.Errorf("saving gamma analysis for %s: %w", snap.Ticker, err)
	}
	return nil
}

const gammaColumns = `id, ticker, timestamp, spot_price, spot_time, net_gamma, gamma_by_strike, gamma_levels`

func (s *SQLiteStore) LatestGammaSnapshot(ctx context.Context, ticker string) (*GammaSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+gammaColumns+` FROM gamma_analysis
		WHERE ticker = ?
		ORDER BY timestamp DESC
		LIMIT 1`, ticker)

	snap, err := scanGammaSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading gamma analysis for %s: %w", ticker, err)
	}
	return snap, nil
}

func (s *SQLiteStore) ListLatestGammaSnapshots(ctx context.Context) ([]GammaSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+gammaColumns+` FROM gamma_analysis g
		WHERE g.id = (
			SELECT id FROM gamma_analysis
			WHERE ticker = g.ticker
			ORDER BY timestamp DESC
			LIMIT 1
		)
		ORDER BY g.ticker`)
	if err != nil {
		return nil, fmt.Errorf("listing gamma analysis: %w", err)
	}
	return collectGammaSnapshots(rows)
}

func (s *SQLiteStore) GammaHistory(ctx context.Context, ticker string, limit int) ([]GammaSnapshot, error) {
	if limit <= 0 {
		return []GammaSnapshot{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+gammaColumns+` FROM gamma_analysis
		WHERE ticker = ?
		ORDER BY timestamp DESC
		LIMIT ?`, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("loading gamma history for %s: %w", ticker, err)
	}
	return collectGammaSnapshots(rows)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// unixNanos maps the zero time to 0, since UnixNano is undefined for it.
func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMarketData(sc scanner) (*MarketData, error) {
	var (
		md MarketData
		ts int64
	)
	if err := sc.Scan(&md.Ticker, &ts, &md.Open, &md.High, &md.Low, &md.Close,
		&md.PreviousClose, &md.Change, &md.Volume); err != nil {
		return nil, err
	}
	md.Timestamp = fromUnixNanos(ts)
	return &md, nil
}

func scanGammaSnapshot(sc scanner) (*GammaSnapshot, error) {
	var (
		snap             GammaSnapshot
		ts, spotTime     int64
		byStrike, levels string
	)
	if err := sc.Scan(&snap.ID, &snap.Ticker, &ts, &snap.SpotPrice, &spotTime,
		&snap.NetGamma, &byStrike, &levels); err != nil {
		return nil, err
	}

	snap.Timestamp = fromUnixNanos(ts)
	snap.SpotTime = fromUnixNanos(spotTime)
	if err := json.Unmarshal([]byte(byStrike), &snap.GammaByStrike); err != nil {
		return nil, fmt.Errorf("decoding gamma by strike: %w", err)
	}
	if err := json.Unmarshal([]byte(levels), &snap.GammaLevels); err != nil {
		return nil, fmt.Errorf("decoding gamma levels: %w", err)
	}
	return &snap, nil
}

func collectGammaSnapshots(rows *sql.Rows) ([]GammaSnapshot, error) {
	defer rows.Close()

	out := []GammaSnapshot{}
	for rows.Next() {
		snap, err := scanGammaSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning gamma analysis: %w", err)
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}
