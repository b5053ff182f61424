package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/dgnsrekt/gamma-exposure/internal/api"
	"github.com/dgnsrekt/gamma-exposure/internal/data"
)

func newProviderClient() *api.HTTPClient {
	return api.NewClient(
		cfg.Provider.BaseURL,
		cfg.Provider.UserAgent,
		cfg.Provider.RatePerSecond,
		cfg.Provider.Timeout,
		cfg.Provider.RetryDelay,
		cfg.Provider.RetryCount,
		logger,
	)
}

func openStore() (data.Store, error) {
	store, err := data.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return store, nil
}

// resolveTickers returns the override list, normalized, or every tracked ticker.
func resolveTickers(override []string) []string {
	if len(override) == 0 {
		return cfg.Tickers.Symbols()
	}
	out := make([]string, 0, len(override))
	for _, t := range override {
		if t = normalizeTicker(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func normalizeTicker(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

// progress bar initialization
func progressBar(length int) *progressbar.ProgressBar {
	return progressbar.NewOptions(
		length,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
