package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gamma-exposure/internal/data"
	"github.com/dgnsrekt/gamma-exposure/internal/gamma"
	"github.com/dgnsrekt/gamma-exposure/internal/strategy"
)

type analyzeOutput struct {
	Ticker        string               `json:"ticker"`
	SpotPrice     float64              `json:"spotPrice"`
	SpotTime      time.Time            `json:"spotTime"`
	FetchedAt     time.Time            `json:"fetchedAt"`
	Quotes        int                  `json:"quotes"`
	Analysis      *gamma.Analysis      `json:"analysis"`
	Strategy      *strategy.Strategy   `json:"strategy"`
	Contributions []gamma.Contribution `json:"contributions,omitempty"`
}

func analyzeCmd() *cobra.Command {
	var contributions bool

	cmd := &cobra.Command{
		Use:   "analyze TICKER",
		Short: "Fetch a live option chain and print its gamma analysis",
		Long: `Fetch the nearest expirations for TICKER from the provider, compute dealer
gamma exposure and the resulting strategy, and print both as JSON.
Nothing is written to the store.

Examples:
  gexctl analyze AAPL
  gexctl analyze ^GSPC --contributions`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticker := normalizeTicker(args[0])

			snap, err := newProviderClient().GetOptionChain(cmd.Context(), ticker, cfg.Provider.MaxExpirations)
			if err != nil {
				return fmt.Errorf("fetching option chain: %w", err)
			}

			agg := gamma.NewAggregator(cfg.Gamma.Engine())
			analysis, err := agg.Aggregate(snap.Chain(), snap.SpotPrice)
			if err != nil {
				return fmt.Errorf("aggregating gamma: %w", err)
			}

			advisor := strategy.NewAdvisor(cfg.Strategy.Advisor())
			out := analyzeOutput{
				Ticker:    ticker,
				SpotPrice: snap.SpotPrice,
				SpotTime:  snap.SpotTime,
				FetchedAt: snap.FetchedAt,
				Quotes:    len(snap.Calls) + len(snap.Puts),
				Analysis:  analysis,
				Strategy:  advisor.Advise(ticker, snap.SpotPrice, analysis.NetGamma, analysis.GammaLevels),
			}
			if contributions {
				out.Contributions, err = agg.Contributions(snap.Chain(), snap.SpotPrice)
				if err != nil {
					return fmt.Errorf("computing contributions: %w", err)
				}
			}

			logger.Debug("analysis complete",
				zap.String("ticker", ticker),
				zap.Int("quotes", out.Quotes),
				zap.Float64("netGamma", analysis.NetGamma),
			)
			return printJSON(out)
		},
	}

	cmd.Flags().BoolVar(&contributions, "contributions", false, "include the signed exposure of every quote")

	return cmd
}

func strategyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategy TICKER",
		Short: "Print the strategy for TICKER from the latest stored snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ticker := normalizeTicker(args[0])

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			md, err := store.LatestMarketData(ctx, ticker)
			if err != nil && !errors.Is(err, data.ErrNotFound) {
				return fmt.Errorf("loading market data: %w", err)
			}
			snap, err := store.LatestGammaSnapshot(ctx, ticker)
			if err != nil && !errors.Is(err, data.ErrNotFound) {
				return fmt.Errorf("loading gamma snapshot: %w", err)
			}

			result := strategy.NewAdvisor(cfg.Strategy.Advisor()).ForTicker(ticker, md, snap)
			if err := printJSON(result); err != nil {
				return err
			}
			if !result.OK() {
				return errors.New(result.Error)
			}
			return nil
		},
	}
}
