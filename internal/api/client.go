package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/gamma-exposure/internal/data"
)

const defaultUserAgent = "Mozilla/5.0 (compatible; gamma-exposure/1.0)"

// Client interface for testability
type Client interface {
	GetQuote(ctx context.Context, ticker string) (*data.MarketData, error)
	GetOptionChain(ctx context.Context, ticker string, maxExpirations int) (*data.OptionSnapshot, error)
}

// HTTPClient talks to a Yahoo Finance compatible quote and options API.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	retryCount int
	retryDelay time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// Compile-time interface verification
var _ Client = (*HTTPClient)(nil)

func NewClient(baseURL, userAgent string, ratePerSec int, timeout, retryDelay time.Duration, retryCount int, logger *zap.Logger) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:       100,
		MaxConnsPerHost:    10,
		IdleConnTimeout:    90 * time.Second,
		DisableCompression: false,
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if ratePerSec <= 0 {
		ratePerSec = 1
	}

	return &HTTPClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		baseURL:    baseURL,
		userAgent:  userAgent,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec*2),
		retryCount: retryCount,
		retryDelay: retryDelay,
		logger:     logger,
		now:        time.Now,
	}
}

// GetQuote returns the latest daily bar for ticker.
func (c *HTTPClient) GetQuote(ctx context.Context, ticker string) (*data.MarketData, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?range=5d&interval=1d", c.baseURL, url.PathEscape(ticker))

	var resp chartResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("fetching quote for %s: %w", ticker, err)
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("fetching quote for %s: %w", ticker, resp.Chart.Error.err())
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("fetching quote for %s: %w", ticker, ErrNoData)
	}

	md, err := resp.Chart.Result[0].marketData(ticker)
	if err != nil {
		return nil, fmt.Errorf("fetching quote for %s: %w", ticker, err)
	}
	return md, nil
}

// GetOptionChain returns the calls and puts of the nearest maxExpirations
// expirations, paired with the spot quote delivered alongside them.
func (c *HTTPClient) GetOptionChain(ctx context.Context, ticker string, maxExpirations int) (*data.OptionSnapshot, error) {
	base := fmt.Sprintf("%s/v7/finance/options/%s", c.baseURL, url.PathEscape(ticker))

	first, err := c.fetchOptions(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("fetching options for %s: %w", ticker, err)
	}
	if first.Quote.RegularMarketPrice <= 0 {
		return nil, fmt.Errorf("fetching options for %s: missing spot price: %w", ticker, ErrNoData)
	}

	snap := &data.OptionSnapshot{
		Ticker:      ticker,
		FetchedAt:   c.now().UTC(),
		SpotPrice:   first.Quote.RegularMarketPrice,
		SpotTime:    time.Unix(first.Quote.RegularMarketTime, 0).UTC(),
		Expirations: []time.Time{},
	}

	expirations := first.ExpirationDates
	if maxExpirations > 0 && len(expirations) > maxExpirations {
		expirations = expirations[:maxExpirations]
	}

	for i, exp := range expirations {
		// The unparameterized response already carries the nearest expiration.
		page := first
		if i > 0 || !first.hasExpiration(exp) {
			page, err = c.fetchOptions(ctx, fmt.Sprintf("%s?date=%d", base, exp))
			if err != nil {
				return nil, fmt.Errorf("fetching options for %s expiring %d: %w", ticker, exp, err)
			}
		}

		for _, set := range page.Options {
			if set.ExpirationDate != exp {
				continue
			}
			snap.Calls = append(snap.Calls, convertContracts(set.Calls, c.logger)...)
			snap.Puts = append(snap.Puts, convertContracts(set.Puts, c.logger)...)
		}
		snap.Expirations = append(snap.Expirations, time.Unix(exp, 0).UTC())
	}

	if len(snap.Calls) == 0 && len(snap.Puts) == 0 {
		return nil, fmt.Errorf("fetching options for %s: %w", ticker, ErrNoData)
	}
	return snap, nil
}

func (c *HTTPClient) fetchOptions(ctx context.Context, u string) (*optionResult, error) {
	var resp optionsResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	if resp.OptionChain.Error != nil {
		return nil, resp.OptionChain.Error.err()
	}
	if len(resp.OptionChain.Result) == 0 {
		return nil, ErrNoData
	}
	return &resp.OptionChain.Result[0], nil
}

// getJSON performs a rate limited GET with retries and decodes the body into out.
func (c *HTTPClient) getJSON(ctx context.Context, u string, out any) error {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	c.logger.Debug("requesting", zap.String("url", u))

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1)) // Exponential backoff
			c.logger.Debug("retrying request", zap.Int("attempt", attempt), zap.Duration("delay", delay))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		// Read body before closing for error messages
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if readErr != nil {
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
			return ErrAuthFailed
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = ErrRateLimited
			continue
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
