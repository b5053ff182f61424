package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gamma-exposure/internal/api"
	"github.com/dgnsrekt/gamma-exposure/internal/config"
	"github.com/dgnsrekt/gamma-exposure/internal/data"
	"github.com/dgnsrekt/gamma-exposure/internal/gamma"
	"github.com/dgnsrekt/gamma-exposure/internal/logging"
	"github.com/dgnsrekt/gamma-exposure/internal/notify"
	"github.com/dgnsrekt/gamma-exposure/internal/refresh"
	"github.com/dgnsrekt/gamma-exposure/internal/server"
	"github.com/dgnsrekt/gamma-exposure/internal/strategy"
	"github.com/dgnsrekt/gamma-exposure/internal/ws"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load config
	cfg, err := config.Load(os.Getenv("GEX_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	// Setup logger
	logger, err := logging.New(cfg.Logging, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Driver),
		zap.String("storePath", cfg.Store.Path),
		zap.String("provider", cfg.Provider.BaseURL),
		zap.Strings("tickers", cfg.Tickers.Symbols()),
		zap.Duration("marketInterval", cfg.Refresh.MarketInterval),
		zap.Duration("optionsInterval", cfg.Refresh.OptionsInterval),
		zap.Bool("wsEnabled", cfg.WS.Enabled),
		zap.Bool("notifyEnabled", cfg.Notify.Enabled),
	)

	// Open store
	store, err := data.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open store", zap.Error(err))
		return 1
	}
	defer store.Close()

	// Create context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// WebSocket hub (optional)
	var hub *ws.Hub
	if cfg.WS.Enabled {
		hub, err = ws.NewHub(cfg.WS.SendBuffer, cfg.Tickers.Tracked, logger)
		if err != nil {
			logger.Error("failed to create websocket hub", zap.Error(err))
			return 1
		}
		go hub.Run(ctx)
	}

	// Refresh pipeline
	client := api.NewClient(
		cfg.Provider.BaseURL,
		cfg.Provider.UserAgent,
		cfg.Provider.RatePerSecond,
		cfg.Provider.Timeout,
		cfg.Provider.RetryDelay,
		cfg.Provider.RetryCount,
		logger,
	)
	aggregator := gamma.NewAggregator(cfg.Gamma.Engine())

	var opts []refresh.ManagerOption
	if hub != nil {
		opts = append(opts, refresh.WithPublisher(hub))
	}
	manager := refresh.NewManager(client, store, aggregator, cfg.Refresh.Workers, cfg.Provider.MaxExpirations, logger, opts...)

	scheduler := refresh.NewScheduler(manager, cfg.Tickers.Symbols(), refresh.SchedulerConfig{
		MarketInterval:  cfg.Refresh.MarketInterval,
		OptionsInterval: cfg.Refresh.OptionsInterval,
		BatchTimeout:    cfg.Refresh.BatchTimeout,
		RunOnStartup:    cfg.Refresh.RunOnStartup,
		MarketDaysOnly:  cfg.Refresh.MarketDaysOnly,
		Location:        cfg.Refresh.Location(),
	}, notify.New(cfg.Notify, logger), logger)

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if err := scheduler.Run(ctx); err != nil {
			logger.Error("scheduler error", zap.Error(err))
		}
	}()

	// Create server and router
	srv := server.NewServer(store, cfg, strategy.NewAdvisor(cfg.Strategy.Advisor()), scheduler, hub, logger)
	router, err := server.NewRouter(srv, logger)
	if err != nil {
		logger.Error("failed to create router", zap.Error(err))
		return 1
	}

	// Setup HTTP server
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt or a listener failure
	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("shutting down server...")
	case err := <-serverErr:
		logger.Error("server error", zap.Error(err))
		exitCode = 1
		cancel()
	}

	// Graceful HTTP server shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		exitCode = 1
	}

	// In-flight refreshes observe ctx and finish quickly.
	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		logger.Warn("scheduler did not stop before shutdown timeout")
	}

	logger.Info("server stopped")
	return exitCode
}
