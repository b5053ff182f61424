package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gamma-exposure/internal/export"
)

func exportCmd() *cobra.Command {
	var (
		limit    int
		outDir   string
		compress bool
	)

	cmd := &cobra.Command{
		Use:   "export TICKER [TICKER...]",
		Short: "Export stored gamma history as JSON Lines",
		Long: `Write the stored gamma snapshots of each TICKER to a JSONL file, oldest first.
Files are staged and renamed into place, so a partial export is never visible.

Examples:
  gexctl export AAPL
  gexctl export ^GSPC ^NDX --limit 500 --out /tmp/gex --compress`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if limit <= 0 {
				limit = cfg.Store.HistoryLimit
			}
			if outDir == "" {
				outDir = cfg.Export.Directory
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			mgr := export.NewManager(outDir, export.WithCompression(compress))
			defer func() {
				if err := mgr.CleanupStaging(); err != nil {
					logger.Warn("failed to cleanup staging", zap.Error(err))
				}
			}()

			var failed int
			for _, arg := range args {
				ticker := normalizeTicker(arg)
				result, err := mgr.ExportGammaHistory(ctx, store, ticker, limit)
				if err != nil {
					logger.Error("export failed", zap.String("ticker", ticker), zap.Error(err))
					failed++
					continue
				}
				logger.Info("exported",
					zap.String("ticker", ticker),
					zap.String("path", result.Path),
					zap.Int("snapshots", result.Count),
					zap.Int64("bytes", result.Bytes),
				)
				fmt.Println(result.Path)
			}

			if failed > 0 {
				return fmt.Errorf("%d exports failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum snapshots per ticker (default: store.history_limit)")
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (default: export.directory)")
	cmd.Flags().BoolVar(&compress, "compress", false, "write zstd-compressed .jsonl.zst files")

	return cmd
}
