package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

var symbolPattern = regexp.MustCompile(`^\^?[A-Z0-9][A-Z0-9.\-=]{0,14}$`)

var validPriorities = map[string]bool{
	"min": true, "low": true, "default": true, "high": true, "urgent": true,
}

// FieldError is a single invalid setting.
type FieldError struct {
	Field  string
	Reason string
}

// ValidationErrors collects all validation errors
type ValidationErrors struct {
	InvalidTickers   []string
	DuplicateTickers []string
	InvalidFields    []FieldError
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return len(e.InvalidTickers) > 0 || len(e.DuplicateTickers) > 0 || len(e.InvalidFields) > 0
}

func (e *ValidationErrors) addField(field, format string, args ...any) {
	e.InvalidFields = append(e.InvalidFields, FieldError{Field: field, Reason: fmt.Sprintf(format, args...)})
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")

	if len(e.InvalidTickers) > 0 {
		sb.WriteString("\nInvalid tickers:\n")
		for _, t := range e.InvalidTickers {
			sb.WriteString(fmt.Sprintf("  - %q\n", t))
		}
		sb.WriteString("\nTickers are upper case symbols, indices prefixed with ^ (e.g. ^GSPC, AAPL)\n")
	}

	if len(e.DuplicateTickers) > 0 {
		sb.WriteString("\nDuplicate tickers:\n")
		for _, t := range e.DuplicateTickers {
			sb.WriteString(fmt.Sprintf("  - %s\n", t))
		}
	}

	if len(e.InvalidFields) > 0 {
		sb.WriteString("\nInvalid settings:\n")
		for _, f := range e.InvalidFields {
			sb.WriteString(fmt.Sprintf("  - %s: %s\n", f.Field, f.Reason))
		}
	}

	return sb.String()
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	validateTickers(errs, c.Tickers)

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs.addField("server.port", "must be between 1 and 65535, got %d", c.Server.Port)
	}

	if u, err := url.Parse(c.Provider.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs.addField("provider.base_url", "must be an absolute URL, got %q", c.Provider.BaseURL)
	}
	if c.Provider.RatePerSecond < 1 {
		errs.addField("provider.rate_per_second", "must be >= 1")
	}
	if c.Provider.RetryCount < 0 {
		errs.addField("provider.retry_count", "must be >= 0")
	}
	if c.Provider.MaxExpirations < 1 {
		errs.addField("provider.max_expirations", "must be >= 1")
	}

	if c.Refresh.Workers < 1 {
		errs.addField("refresh.workers", "must be >= 1")
	}
	if c.Refresh.MarketInterval <= 0 {
		errs.addField("refresh.market_interval", "must be positive")
	}
	if c.Refresh.OptionsInterval <= 0 {
		errs.addField("refresh.options_interval", "must be positive")
	}
	if _, err := time.LoadLocation(c.Refresh.Timezone); err != nil {
		errs.addField("refresh.timezone", "unknown time zone %q", c.Refresh.Timezone)
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			errs.addField("store.path", "is required for the sqlite driver")
		}
	case "memory":
	default:
		errs.addField("store.driver", "must be 'sqlite' or 'memory', got %q", c.Store.Driver)
	}
	if c.Store.HistoryLimit < 1 || c.Store.HistoryLimit > c.Store.HistoryMax {
		errs.addField("store.history_limit", "must be between 1 and history_max (%d)", c.Store.HistoryMax)
	}

	if c.Gamma.DaysInYear <= 0 {
		errs.addField("gamma.days_in_year", "must be positive")
	}
	if c.Gamma.MaxLevels < 1 {
		errs.addField("gamma.max_levels", "must be >= 1")
	}
	if c.Strategy.NearbyPct <= 0 {
		errs.addField("strategy.nearby_pct", "must be positive")
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs.addField("logging.level", "unknown level %q", c.Logging.Level)
	}
	if c.Logging.File.Enabled && c.Logging.File.Path == "" {
		errs.addField("logging.file.path", "is required when file logging is enabled")
	}

	if c.Notify.Enabled {
		if c.Notify.Topic == "" {
			errs.addField("notify.topic", "is required when notifications are enabled")
		}
		if !validPriorities[c.Notify.Priority] {
			errs.addField("notify.priority", "%q is not one of min, low, default, high, urgent", c.Notify.Priority)
		}
	}

	if c.WS.SendBuffer < 1 {
		errs.addField("ws.send_buffer", "must be >= 1")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateTickers(errs *ValidationErrors, tickers TickersConfig) {
	all := tickers.Symbols()
	if len(all) == 0 {
		errs.addField("tickers", "at least one index or stock is required")
		return
	}

	seen := make(map[string]bool, len(all))
	for _, s := range all {
		if !symbolPattern.MatchString(s) {
			errs.InvalidTickers = append(errs.InvalidTickers, s)
			continue
		}
		if seen[s] {
			errs.DuplicateTickers = append(errs.DuplicateTickers, s)
		}
		seen[s] = true
	}
}
