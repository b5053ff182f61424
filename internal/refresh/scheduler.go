package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/scmhub/calendar"
	"go.uber.org/zap"
)

// ErrInProgress is returned by Trigger when a refresh of the same kind is running.
var ErrInProgress = errors.New("refresh already in progress")

// Notifier is told about batches that had failures.
type Notifier interface {
	SendFailure(ctx context.Context, result *BatchResult, label string, duration time.Duration, err error) error
}

type SchedulerConfig struct {
	MarketInterval  time.Duration
	OptionsInterval time.Duration
	BatchTimeout    time.Duration
	RunOnStartup    bool
	MarketDaysOnly  bool
	Location        *time.Location
}

// Scheduler runs periodic market and options refreshes and serves on-demand
// triggers. Runs of the same kind never overlap.
type Scheduler struct {
	manager  *Manager
	tickers  []string
	cfg      SchedulerConfig
	nyse     *calendar.Calendar
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time

	locks map[Kind]*sync.Mutex
	wg    sync.WaitGroup
}

func NewScheduler(manager *Manager, tickers []string, cfg SchedulerConfig, notifier Notifier, logger *zap.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{
		manager:  manager,
		tickers:  tickers,
		cfg:      cfg,
		nyse:     calendar.XNYS(),
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		locks: map[Kind]*sync.Mutex{
			KindMarket:  {},
			KindOptions: {},
		},
	}
}

// IsMarketDay checks if t falls on an NYSE trading day in the configured timezone.
func (s *Scheduler) IsMarketDay(t time.Time) bool {
	return s.nyse.IsBusinessDay(t.In(s.cfg.Location))
}

// LastRun returns when a refresh of kind last finished, or the zero time.
func (s *Scheduler) LastRun(kind Kind) time.Time {
	return s.manager.LastRun(kind)
}

// Run blocks until ctx is cancelled, refreshing each kind on its interval.
// In-flight refreshes are waited for before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.wg.Wait()

	s.logger.Info("scheduler started",
		zap.Duration("marketInterval", s.cfg.MarketInterval),
		zap.Duration("optionsInterval", s.cfg.OptionsInterval),
		zap.Bool("marketDaysOnly", s.cfg.MarketDaysOnly),
		zap.String("timezone", s.cfg.Location.String()),
		zap.Int("tickers", len(s.tickers)),
	)

	if s.cfg.RunOnStartup {
		s.logger.Info("running startup refresh")
		// Startup refresh ignores the market calendar so the store is never empty.
		for _, kind := range AllKinds {
			s.spawn(ctx, kind)
		}
	}

	marketTicker := time.NewTicker(s.cfg.MarketInterval)
	defer marketTicker.Stop()
	optionsTicker := time.NewTicker(s.cfg.OptionsInterval)
	defer optionsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("context cancelled, stopping scheduler")
			return nil

		case <-marketTicker.C:
			s.scheduled(ctx, KindMarket)

		case <-optionsTicker.C:
			s.scheduled(ctx, KindOptions)
		}
	}
}

func (s *Scheduler) scheduled(ctx context.Context, kind Kind) {
	if s.cfg.MarketDaysOnly && !s.IsMarketDay(s.now()) {
		s.logger.Debug("not a market day, skipping refresh", zap.String("kind", string(kind)))
		return
	}
	s.spawn(ctx, kind)
}

func (s *Scheduler) spawn(ctx context.Context, kind Kind) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.run(ctx, kind); errors.Is(err, ErrInProgress) {
			s.logger.Info("previous refresh still running, skipping", zap.String("kind", string(kind)))
		}
	}()
}

// Trigger runs the given kinds now, in order, and returns one result per kind
// that ran. A kind already running is reported through ErrInProgress after the
// other kinds complete.
func (s *Scheduler) Trigger(ctx context.Context, kinds ...Kind) (map[Kind]*BatchResult, error) {
	if len(kinds) == 0 {
		kinds = AllKinds
	}

	out := make(map[Kind]*BatchResult, len(kinds))
	var errs []error
	for _, kind := range kinds {
		result, err := s.run(ctx, kind)
		if result != nil {
			out[kind] = result
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return out, errors.Join(errs...)
}

func (s *Scheduler) run(ctx context.Context, kind Kind) (*BatchResult, error) {
	lock, ok := s.locks[kind]
	if !ok {
		return nil, errors.New("unknown refresh kind " + string(kind))
	}
	if !lock.TryLock() {
		return nil, ErrInProgress
	}
	defer lock.Unlock()

	runCtx := ctx
	if s.cfg.BatchTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.BatchTimeout)
		defer cancel()
	}

	s.logger.Info("starting refresh", zap.String("kind", string(kind)), zap.Int("tickers", len(s.tickers)))

	result, err := s.manager.Execute(runCtx, Tasks(s.tickers, kind))

	s.logger.Info("refresh complete",
		zap.String("kind", string(kind)),
		zap.Int("total", result.Total),
		zap.Int("success", result.Success),
		zap.Int("notFound", result.NotFound),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration),
	)

	if (err != nil || result.HasFailures()) && s.notifier != nil {
		// Notification failures are logged by the notifier; they never fail the run.
		_ = s.notifier.SendFailure(context.WithoutCancel(ctx), result, string(kind), result.Duration, err)
	}

	return result, err
}
