package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gamma-exposure/internal/config"
	"github.com/dgnsrekt/gamma-exposure/internal/data"
	"github.com/dgnsrekt/gamma-exposure/internal/gamma"
	"github.com/dgnsrekt/gamma-exposure/internal/refresh"
	"github.com/dgnsrekt/gamma-exposure/internal/strategy"
)

var testTime = time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)

type fakeRefresher struct {
	mu      sync.Mutex
	kinds   []refresh.Kind
	results map[refresh.Kind]*refresh.BatchResult
	err     error
	last    time.Time
	ctxErr  error
}

func (f *fakeRefresher) Trigger(ctx context.Context, kinds ...refresh.Kind) (map[refresh.Kind]*refresh.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kinds...)
	f.ctxErr = ctx.Err()
	return f.results, f.err
}

func (f *fakeRefresher) LastRun(kind refresh.Kind) time.Time {
	if kind == refresh.KindOptions {
		return f.last
	}
	return time.Time{}
}

func testConfig() *config.Config {
	return &config.Config{
		Store: config.StoreConfig{Driver: "memory", HistoryLimit: 2, HistoryMax: 3},
		Tickers: config.TickersConfig{
			Indices: []string{"^GSPC"},
			Stocks:  []string{"AAPL", "MSFT"},
		},
	}
}

func newTestRouter(t *testing.T, store data.Store, refresher Refresher) http.Handler {
	t.Helper()

	advisor := strategy.NewAdvisor(strategy.Config{NearbyPct: strategy.DefaultNearbyPct})
	srv := NewServer(store, testConfig(), advisor, refresher, nil, zap.NewNop())
	router, err := NewRouter(srv, zap.NewNop())
	require.NoError(t, err)
	return router
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	}
	return rec, body
}

func seedGamma(t *testing.T, store data.Store, ticker string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, store.SaveGammaSnapshot(context.Background(), &data.GammaSnapshot{
			ID:        ticker + "-" + string(rune('a'+i)),
			Ticker:    ticker,
			Timestamp: testTime.Add(time.Duration(i) * time.Minute),
			SpotPrice: 100,
			SpotTime:  testTime,
			NetGamma:  50,
			GammaByStrike: []gamma.StrikeExposure{
				{Strike: 98, GammaExposure: 30},
				{Strike: 103, GammaExposure: -20},
			},
			GammaLevels: []gamma.StrikeExposure{
				{Strike: 98, GammaExposure: 30},
				{Strike: 103, GammaExposure: -20},
			},
		}))
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, data.NewMemoryStore(), &fakeRefresher{last: testTime})

	rec, body := do(t, router, http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "memory", body["store"])
	require.EqualValues(t, 3, body["tickers"])
	require.Nil(t, body["lastMarketRefresh"])
	require.Equal(t, testTime.Format(time.RFC3339), body["lastOptionsRefresh"])
}

func TestTickers(t *testing.T) {
	router := newTestRouter(t, data.NewMemoryStore(), nil)

	rec, body := do(t, router, http.MethodGet, "/api/tickers")
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 3, body["count"])

	tickers := body["tickers"].([]any)
	first := tickers[0].(map[string]any)
	require.Equal(t, "^GSPC", first["symbol"])
	require.Equal(t, "index", first["type"])
}

func TestUntrackedTicker(t *testing.T) {
	router := newTestRouter(t, data.NewMemoryStore(), nil)

	for _, path := range []string{
		"/api/market-data/XYZ",
		"/api/gamma-data/xyz",
		"/api/options-data/XYZ",
		"/api/trading-strategy/XYZ",
		"/api/gamma-data/XYZ/history",
	} {
		rec, body := do(t, router, http.MethodGet, path)
		require.Equal(t, http.StatusNotFound, rec.Code, path)
		require.Equal(t, "Ticker not tracked: XYZ", body["error"], path)
	}
}

func TestMarketData(t *testing.T) {
	store := data.NewMemoryStore()
	router := newTestRouter(t, store, nil)

	rec, body := do(t, router, http.MethodGet, "/api/market-data/AAPL")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "No market data for AAPL", body["error"])

	require.NoError(t, store.SaveMarketData(context.Background(), &data.MarketData{
		Ticker: "AAPL", Timestamp: testTime, Close: 201.5, PreviousClose: 200, Change: 0.75, Volume: 1000,
	}))

	rec, body = do(t, router, http.MethodGet, "/api/market-data/aapl")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 201.5, body["close"])

	rec, body = do(t, router, http.MethodGet, "/api/market-data")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, body, "AAPL")
}

func TestGammaData_IndexTicker(t *testing.T) {
	store := data.NewMemoryStore()
	seedGamma(t, store, "^GSPC", 1)
	router := newTestRouter(t, store, nil)

	rec, body := do(t, router, http.MethodGet, "/api/gamma-data/%5EGSPC")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "^GSPC", body["ticker"])
	require.EqualValues(t, 50, body["netGamma"])

	rec, body = do(t, router, http.MethodGet, "/api/gamma-data")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, body, "^GSPC")
}

func TestGammaHistory(t *testing.T) {
	store := data.NewMemoryStore()
	seedGamma(t, store, "MSFT", 5)
	router := newTestRouter(t, store, nil)

	rec, body := do(t, router, http.MethodGet, "/api/gamma-data/MSFT/history")
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 2, body["count"], "default limit")

	snaps := body["snapshots"].([]any)
	newest := snaps[0].(map[string]any)
	require.Equal(t, "MSFT-e", newest["id"])

	rec, body = do(t, router, http.MethodGet, "/api/gamma-data/MSFT/history?limit=100")
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 3, body["count"], "clamped to max")

	rec, _ = do(t, router, http.MethodGet, "/api/gamma-data/MSFT/history?limit=0")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTradingStrategy(t *testing.T) {
	store := data.NewMemoryStore()
	router := newTestRouter(t, store, nil)

	rec, body := do(t, router, http.MethodGet, "/api/trading-strategy/AAPL")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, map[string]any{"error": strategy.MsgDataNotAvailable}, body)

	require.NoError(t, store.SaveMarketData(context.Background(), &data.MarketData{
		Ticker: "AAPL", Timestamp: testTime, Close: 100,
	}))
	seedGamma(t, store, "AAPL", 1)

	rec, body = do(t, router, http.MethodGet, "/api/trading-strategy/AAPL")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "bullish", body["bias"])
	require.NotContains(t, body, "error")
	require.Len(t, body["supportLevels"], 1)
	require.Len(t, body["resistanceLevels"], 1)
}

func TestRefreshData(t *testing.T) {
	fake := &fakeRefresher{results: map[refresh.Kind]*refresh.BatchResult{
		refresh.KindMarket: {
			Total: 2, Success: 1, Failed: 1,
			Results: []refresh.TaskResult{
				{Task: refresh.Task{Ticker: "AAPL", Kind: refresh.KindMarket}, Success: true},
				{Task: refresh.Task{Ticker: "MSFT", Kind: refresh.KindMarket}},
			},
		},
	}}
	router := newTestRouter(t, data.NewMemoryStore(), fake)

	rec, body := do(t, router, http.MethodPost, "/api/refresh-data?kind=market")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "partial", body["status"])
	require.Equal(t, []refresh.Kind{refresh.KindMarket}, fake.kinds)

	results := body["results"].([]any)
	require.Len(t, results, 1)
	summary := results[0].(map[string]any)
	require.Equal(t, []any{"AAPL"}, summary["succeeded"])
	require.EqualValues(t, 1, summary["failed"])

	rec, _ = do(t, router, http.MethodPost, "/api/refresh-data?kind=greeks")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshData_InProgress(t *testing.T) {
	fake := &fakeRefresher{err: refresh.ErrInProgress}
	router := newTestRouter(t, data.NewMemoryStore(), fake)

	rec, body := do(t, router, http.MethodPost, "/api/refresh-data")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, refresh.ErrInProgress.Error(), body["error"])
	require.Equal(t, refresh.AllKinds, fake.kinds)
}

func TestRefreshData_OutlivesClientDisconnect(t *testing.T) {
	fake := &fakeRefresher{results: map[refresh.Kind]*refresh.BatchResult{
		refresh.KindOptions: {Total: 1, Success: 1},
	}}
	router := newTestRouter(t, data.NewMemoryStore(), fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/refresh-data?kind=options", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, fake.ctxErr)
}

func TestOpenAPIDocument(t *testing.T) {
	router := newTestRouter(t, data.NewMemoryStore(), nil)

	rec, _ := do(t, router, http.MethodGet, "/openapi.yaml")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "openapi: 3.0.3")
}
