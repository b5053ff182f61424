package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gamma-exposure/internal/gamma"
	"github.com/dgnsrekt/gamma-exposure/internal/notify"
	"github.com/dgnsrekt/gamma-exposure/internal/refresh"
)

func refreshCmd() *cobra.Command {
	var (
		kind    string
		tickers []string
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch market data and option chains into the store",
		Long: `Fetch market data and/or option chains for the tracked tickers, compute
gamma exposure for every fetched chain and persist the snapshots.

Examples:
  # Refresh everything
  gexctl refresh

  # Refresh only option chains for two tickers
  gexctl refresh --kind options --tickers SPY,^GSPC

  # Dry run to see what would be fetched
  gexctl refresh --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			kinds, err := refresh.ParseKinds(kind)
			if err != nil {
				return err
			}
			tasks := refresh.Tasks(resolveTickers(tickers), kinds...)

			logger.Info("generated tasks", zap.Int("count", len(tasks)))

			if dryRun {
				for _, t := range tasks {
					fmt.Printf("Would refresh: %s\n", t)
				}
				return nil
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			bar := progressBar(len(tasks))
			mgr := refresh.NewManager(
				newProviderClient(),
				store,
				gamma.NewAggregator(cfg.Gamma.Engine()),
				cfg.Refresh.Workers,
				cfg.Provider.MaxExpirations,
				logger,
				refresh.WithProgress(func(r refresh.TaskResult) {
					bar.Describe(r.Task.String())
					_ = bar.Add(1)
				}),
			)

			result, execErr := mgr.Execute(ctx, tasks)
			_ = bar.Finish()

			printStatuses(result)

			// Print summary
			logger.Info("refresh complete",
				zap.Int("total", result.Total),
				zap.Int("success", result.Success),
				zap.Int("not_found", result.NotFound),
				zap.Int("failed", result.Failed),
				zap.Duration("duration", result.Duration),
			)

			notifier := notify.New(cfg.Notify, logger)
			label := kind
			if label == "" {
				label = "all"
			}
			if execErr != nil || result.HasFailures() {
				_ = notifier.SendFailure(ctx, result, label, result.Duration, execErr)
			} else {
				_ = notifier.SendSuccess(ctx, result, label, result.Duration)
			}

			if execErr != nil {
				return execErr
			}
			if result.Failed > 0 {
				for _, e := range result.Errors {
					logger.Error("refresh error", zap.String("error", e))
				}
				return fmt.Errorf("%d refresh tasks failed", result.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "all", "what to refresh (market, options, all)")
	cmd.Flags().StringSliceVar(&tickers, "tickers", nil, "override tickers from config")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be fetched")

	return cmd
}

func printStatuses(result *refresh.BatchResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tTICKER\tSTATUS\tERROR")
	for _, s := range result.Statuses() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Kind, s.Ticker, s.Status, s.Error)
	}
	_ = w.Flush()
}
