package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gamma-exposure/internal/config"
	"github.com/dgnsrekt/gamma-exposure/internal/data"
	"github.com/dgnsrekt/gamma-exposure/internal/refresh"
	"github.com/dgnsrekt/gamma-exposure/internal/strategy"
	"github.com/dgnsrekt/gamma-exposure/internal/ws"
)

// Refresher runs on-demand refreshes and reports when each kind last ran.
type Refresher interface {
	Trigger(ctx context.Context, kinds ...refresh.Kind) (map[refresh.Kind]*refresh.BatchResult, error)
	LastRun(kind refresh.Kind) time.Time
}

type Server struct {
	store        data.Store
	storeDriver  string
	tickers      config.TickersConfig
	historyLimit int
	historyMax   int
	advisor      *strategy.Advisor
	refresher    Refresher
	hub          *ws.Hub
	logger       *zap.Logger
}

// NewServer wires the HTTP handlers. refresher and hub may be nil, which
// disables on-demand refreshes and the websocket endpoint.
func NewServer(store data.Store, cfg *config.Config, advisor *strategy.Advisor, refresher Refresher, hub *ws.Hub, logger *zap.Logger) *Server {
	return &Server{
		store:        store,
		storeDriver:  cfg.Store.Driver,
		tickers:      cfg.Tickers,
		historyLimit: cfg.Store.HistoryLimit,
		historyMax:   cfg.Store.HistoryMax,
		advisor:      advisor,
		refresher:    refresher,
		hub:          hub,
		logger:       logger,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status             string     `json:"status"`
	Store              string     `json:"store"`
	Tickers            int        `json:"tickers"`
	WebsocketClients   int        `json:"websocketClients"`
	LastMarketRefresh  *time.Time `json:"lastMarketRefresh"`
	LastOptionsRefresh *time.Time `json:"lastOptionsRefresh"`
}

type tickersResponse struct {
	Tickers []config.Ticker `json:"tickers"`
	Count   int             `json:"count"`
}

type gammaHistoryResponse struct {
	Ticker    string               `json:"ticker"`
	Count     int                  `json:"count"`
	Snapshots []data.GammaSnapshot `json:"snapshots"`
}

type refreshSummary struct {
	Kind       refresh.Kind           `json:"kind"`
	Total      int                    `json:"total"`
	Success    int                    `json:"success"`
	NotFound   int                    `json:"notFound"`
	Failed     int                    `json:"failed"`
	DurationMs int64                  `json:"durationMs"`
	Succeeded  []string               `json:"succeeded"`
	Tickers    []refresh.TickerStatus `json:"tickers"`
}

type refreshResponse struct {
	Status  string           `json:"status"`
	Error   string           `json:"error,omitempty"`
	Results []refreshSummary `json:"results"`
}

// GetHealth reports service status and when each refresh kind last ran.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Store:   s.storeDriver,
		Tickers: len(s.tickers.Symbols()),
	}
	if s.hub != nil {
		resp.WebsocketClients = s.hub.ClientCount()
	}
	if s.refresher != nil {
		resp.LastMarketRefresh = timePtr(s.refresher.LastRun(refresh.KindMarket))
		resp.LastOptionsRefresh = timePtr(s.refresher.LastRun(refresh.KindOptions))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTickers lists the tracked universe.
func (s *Server) GetTickers(w http.ResponseWriter, r *http.Request) {
	all := s.tickers.All()
	writeJSON(w, http.StatusOK, tickersResponse{Tickers: all, Count: len(all)})
}

func (s *Server) ListMarketData(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListLatestMarketData(r.Context())
	if err != nil {
		s.internalError(w, "list market data", err)
		return
	}

	out := make(map[string]data.MarketData, len(list))
	for _, md := range list {
		out[md.Ticker] = md
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) GetMarketData(w http.ResponseWriter, r *http.Request) {
	ticker, ok := s.tickerParam(w, r)
	if !ok {
		return
	}

	md, err := s.store.LatestMarketData(r.Context(), ticker)
	if err != nil {
		s.lookupError(w, "market data", ticker, err)
		return
	}
	writeJSON(w, http.StatusOK, md)
}

func (s *Server) GetOptionsData(w http.ResponseWriter, r *http.Request) {
	ticker, ok := s.tickerParam(w, r)
	if !ok {
		return
	}

	snap, err := s.store.LatestOptionSnapshot(r.Context(), ticker)
	if err != nil {
		s.lookupError(w, "options data", ticker, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) ListGammaData(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListLatestGammaSnapshots(r.Context())
	if err != nil {
		s.internalError(w, "list gamma data", err)
		return
	}

	out := make(map[string]data.GammaSnapshot, len(list))
	for _, snap := range list {
		out[snap.Ticker] = snap
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) GetGammaData(w http.ResponseWriter, r *http.Request) {
	ticker, ok := s.tickerParam(w, r)
	if !ok {
		return
	}

	snap, err := s.store.LatestGammaSnapshot(r.Context(), ticker)
	if err != nil {
		s.lookupError(w, "gamma data", ticker, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetGammaHistory returns stored snapshots newest first. The limit defaults to
// the configured history limit and is clamped to the configured maximum.
func (s *Server) GetGammaHistory(w http.ResponseWriter, r *http.Request) {
	ticker, ok := s.tickerParam(w, r)
	if !ok {
		return
	}

	limit := s.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if s.historyMax > 0 && limit > s.historyMax {
		limit = s.historyMax
	}

	history, err := s.store.GammaHistory(r.Context(), ticker, limit)
	if err != nil {
		s.internalError(w, "gamma history", err)
		return
	}
	writeJSON(w, http.StatusOK, gammaHistoryResponse{Ticker: ticker, Count: len(history), Snapshots: history})
}

// GetTradingStrategy derives a strategy from the latest stored market and
// gamma snapshots. Missing data yields 404 with the error result.
func (s *Server) GetTradingStrategy(w http.ResponseWriter, r *http.Request) {
	ticker, ok := s.tickerParam(w, r)
	if !ok {
		return
	}

	md, err := s.store.LatestMarketData(r.Context(), ticker)
	if err != nil && !errors.Is(err, data.ErrNotFound) {
		s.internalError(w, "strategy market data", err)
		return
	}
	snap, err := s.store.LatestGammaSnapshot(r.Context(), ticker)
	if err != nil && !errors.Is(err, data.ErrNotFound) {
		s.internalError(w, "strategy gamma data", err)
		return
	}

	result := s.advisor.ForTicker(ticker, md, snap)
	if !result.OK() {
		writeJSON(w, http.StatusNotFound, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RefreshData runs the requested refresh kinds and reports per-ticker outcomes.
func (s *Server) RefreshData(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh is not available")
		return
	}

	kinds, err := refresh.ParseKinds(r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("on-demand refresh requested", zap.Any("kinds", kinds))

	// The batch outlives a disconnected client; the scheduler bounds it with its batch timeout.
	results, err := s.refresher.Trigger(context.WithoutCancel(r.Context()), kinds...)
	if len(results) == 0 && err != nil {
		if errors.Is(err, refresh.ErrInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.internalError(w, "refresh", err)
		return
	}

	resp := refreshResponse{Status: "ok", Results: make([]refreshSummary, 0, len(results))}
	for _, kind := range kinds {
		result, ok := results[kind]
		if !ok {
			continue
		}
		resp.Results = append(resp.Results, summarize(kind, result))
		if result.HasFailures() {
			resp.Status = "partial"
		}
	}
	if err != nil {
		resp.Status = "partial"
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func summarize(kind refresh.Kind, result *refresh.BatchResult) refreshSummary {
	succeeded := make([]string, 0, result.Success)
	for _, task := range result.Succeeded() {
		succeeded = append(succeeded, task.Ticker)
	}
	sort.Strings(succeeded)

	return refreshSummary{
		Kind:       kind,
		Total:      result.Total,
		Success:    result.Success,
		NotFound:   result.NotFound,
		Failed:     result.Failed,
		DurationMs: result.Duration.Milliseconds(),
		Succeeded:  succeeded,
		Tickers:    result.Statuses(),
	}
}

// tickerParam resolves the {ticker} path parameter and rejects tickers
// outside the tracked universe.
func (s *Server) tickerParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "ticker")
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	ticker := strings.ToUpper(strings.TrimSpace(raw))

	if !s.tickers.Tracked(ticker) {
		writeError(w, http.StatusNotFound, "Ticker not tracked: "+ticker)
		return "", false
	}
	return ticker, true
}

func (s *Server) lookupError(w http.ResponseWriter, what, ticker string, err error) {
	if errors.Is(err, data.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No "+what+" for "+ticker)
		return
	}
	s.internalError(w, what, err)
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("request failed", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
