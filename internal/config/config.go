package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/gamma-exposure/internal/gamma"
	"github.com/dgnsrekt/gamma-exposure/internal/strategy"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Provider ProviderConfig `mapstructure:"provider"`
	Refresh  RefreshConfig  `mapstructure:"refresh"`
	Store    StoreConfig    `mapstructure:"store"`
	Gamma    GammaConfig    `mapstructure:"gamma"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Tickers  TickersConfig  `mapstructure:"tickers"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	WS       WSConfig       `mapstructure:"ws"`
	Export   ExportConfig   `mapstructure:"export"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type ProviderConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RetryCount     int           `mapstructure:"retry_count"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	RatePerSecond  int           `mapstructure:"rate_per_second"`
	MaxExpirations int           `mapstructure:"max_expirations"`
}

type RefreshConfig struct {
	Workers         int           `mapstructure:"workers"`
	MarketInterval  time.Duration `mapstructure:"market_interval"`
	OptionsInterval time.Duration `mapstructure:"options_interval"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
	RunOnStartup    bool          `mapstructure:"run_on_startup"`
	MarketDaysOnly  bool          `mapstructure:"market_days_only"`
	Timezone        string        `mapstructure:"timezone"`
}

// Location resolves Timezone. Validate has already checked it loads.
func (r RefreshConfig) Location() *time.Location {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type StoreConfig struct {
	Driver       string `mapstructure:"driver"`
	Path         string `mapstructure:"path"`
	HistoryLimit int    `mapstructure:"history_limit"`
	HistoryMax   int    `mapstructure:"history_max"`
}

type GammaConfig struct {
	RiskFreeRate float64 `mapstructure:"risk_free_rate"`
	DaysInYear   float64 `mapstructure:"days_in_year"`
	MaxLevels    int     `mapstructure:"max_levels"`
}

// Engine converts to the aggregator configuration.
func (g GammaConfig) Engine() gamma.Config {
	return gamma.Config{
		RiskFreeRate: g.RiskFreeRate,
		DaysInYear:   g.DaysInYear,
		MaxLevels:    g.MaxLevels,
	}
}

type StrategyConfig struct {
	NearbyPct float64 `mapstructure:"nearby_pct"`
}

// Advisor converts to the advisor configuration.
func (s StrategyConfig) Advisor() strategy.Config {
	return strategy.Config{NearbyPct: s.NearbyPct}
}

type LoggingConfig struct {
	Level       string        `mapstructure:"level"`
	Development bool          `mapstructure:"development"`
	File        FileLogConfig `mapstructure:"file"`
}

type FileLogConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// NotifyConfig holds ntfy notification configuration.
type NotifyConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Server   string `mapstructure:"server"`   // ntfy server URL
	Topic    string `mapstructure:"topic"`    // required if enabled
	Priority string `mapstructure:"priority"` // min, low, default, high, urgent
	Tags     string `mapstructure:"tags"`     // comma-separated emoji tags
	Token    string `mapstructure:"token"`    // optional access token for private topics
}

type WSConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	SendBuffer int  `mapstructure:"send_buffer"`
}

type ExportConfig struct {
	Directory string `mapstructure:"directory"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("provider.base_url", "https://query2.finance.yahoo.com")
	v.SetDefault("provider.user_agent", "")
	v.SetDefault("provider.timeout", "30s")
	v.SetDefault("provider.retry_count", 3)
	v.SetDefault("provider.retry_delay", "2s")
	v.SetDefault("provider.rate_per_second", 2)
	v.SetDefault("provider.max_expirations", 3)

	v.SetDefault("refresh.workers", 4)
	v.SetDefault("refresh.market_interval", "15m")
	v.SetDefault("refresh.options_interval", "30m")
	v.SetDefault("refresh.batch_timeout", "5m")
	v.SetDefault("refresh.run_on_startup", true)
	v.SetDefault("refresh.market_days_only", true)
	v.SetDefault("refresh.timezone", "America/New_York")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "data/gamma_exposure.db")
	v.SetDefault("store.history_limit", 50)
	v.SetDefault("store.history_max", 500)

	v.SetDefault("gamma.risk_free_rate", 0.05)
	v.SetDefault("gamma.days_in_year", gamma.DefaultDaysInYear)
	v.SetDefault("gamma.max_levels", 5)

	v.SetDefault("strategy.nearby_pct", strategy.DefaultNearbyPct)

	v.SetDefault("tickers.indices", DefaultIndices)
	v.SetDefault("tickers.stocks", DefaultStocks)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.file.enabled", false)
	v.SetDefault("logging.file.path", "logs/gamma-exposure.log")
	v.SetDefault("logging.file.max_size_mb", 50)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age_days", 14)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.server", "https://ntfy.sh")
	v.SetDefault("notify.topic", "")
	v.SetDefault("notify.priority", "default")
	v.SetDefault("notify.tags", "chart_with_upwards_trend")
	v.SetDefault("notify.token", "")

	v.SetDefault("ws.enabled", true)
	v.SetDefault("ws.send_buffer", 64)

	v.SetDefault("export.directory", "exports")
}

// Load reads configuration from defaults, an optional YAML file, a local .env
// file and GEX_* environment variables, in increasing order of precedence.
func Load(configPath string) (*Config, error) {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	// Environment variable support
	v.SetEnvPrefix("GEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind secrets and common overrides to short names
	_ = v.BindEnv("notify.token", "GEX_NOTIFY_TOKEN", "NTFY_TOKEN")
	_ = v.BindEnv("notify.topic", "GEX_NOTIFY_TOPIC", "NTFY_TOPIC")
	_ = v.BindEnv("server.port", "GEX_SERVER_PORT", "PORT")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Tickers.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}
