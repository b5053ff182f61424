// Package refresh pulls market data and option chains from the provider,
// computes gamma exposure and persists the resulting snapshots.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gamma-exposure/internal/api"
	"github.com/dgnsrekt/gamma-exposure/internal/data"
	"github.com/dgnsrekt/gamma-exposure/internal/gamma"
)

// Publisher receives every gamma snapshot right after it is stored.
type Publisher interface {
	PublishGamma(snap *data.GammaSnapshot)
}

type Manager struct {
	client         api.Client
	store          data.Store
	aggregator     *gamma.Aggregator
	workers        int
	maxExpirations int
	publisher      Publisher
	progress       func(TaskResult)
	logger         *zap.Logger

	mu      sync.RWMutex
	lastRun map[Kind]time.Time
}

type ManagerOption func(*Manager)

// WithPublisher registers a sink for freshly computed gamma snapshots.
func WithPublisher(p Publisher) ManagerOption {
	return func(m *Manager) { m.publisher = p }
}

// WithProgress registers a callback invoked once per finished task, from the
// goroutine collecting results.
func WithProgress(fn func(TaskResult)) ManagerOption {
	return func(m *Manager) { m.progress = fn }
}

func NewManager(client api.Client, store data.Store, aggregator *gamma.Aggregator, workers, maxExpirations int, logger *zap.Logger, opts ...ManagerOption) *Manager {
	if workers < 1 {
		workers = 1
	}
	m := &Manager{
		client:         client,
		store:          store,
		aggregator:     aggregator,
		workers:        workers,
		maxExpirations: maxExpirations,
		logger:         logger,
		lastRun:        make(map[Kind]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LastRun returns when a batch containing kind last finished, or the zero time.
func (m *Manager) LastRun(kind Kind) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRun[kind]
}

// Execute runs tasks on the worker pool. Per-ticker failures are recorded in
// the result and never abort the batch; the returned error is only set when
// ctx is cancelled before every task finished.
func (m *Manager) Execute(ctx context.Context, tasks []Task) (*BatchResult, error) {
	result := &BatchResult{Total: len(tasks), StartedAt: time.Now()}

	if len(tasks) == 0 {
		return result, nil
	}

	jobs := make(chan Task, len(tasks))
	results := make(chan TaskResult, len(tasks))

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < m.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			m.worker(ctx, workerID, jobs, results)
		}(i)
	}

	// Send jobs
	go func() {
		defer close(jobs)
		for _, task := range tasks {
			select {
			case <-ctx.Done():
				return
			case jobs <- task:
			}
		}
	}()

	// Wait for workers and close results
	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results
	kinds := make(map[Kind]bool)
	for r := range results {
		result.Results = append(result.Results, r)
		kinds[r.Task.Kind] = true
		if m.progress != nil {
			m.progress(r)
		}

		switch {
		case r.Success:
			result.Success++
		case r.NotFound:
			result.NotFound++
		default:
			result.Failed++
			if r.Error != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", r.Task, r.Error))
			}
		}
	}
	result.Duration = time.Since(result.StartedAt)

	m.mu.Lock()
	for kind := range kinds {
		m.lastRun[kind] = time.Now()
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil && len(result.Results) < len(tasks) {
		missing := len(tasks) - len(result.Results)
		result.Failed += missing
		result.Errors = append(result.Errors, fmt.Sprintf("%d tasks not run: %v", missing, err))
		return result, err
	}

	return result, nil
}

func (m *Manager) worker(ctx context.Context, id int, jobs <-chan Task, results chan<- TaskResult) {
	for task := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		start := time.Now()
		result := m.processTask(ctx, task)
		result.Duration = time.Since(start)

		if result.Error != nil {
			m.logger.Warn("refresh task failed",
				zap.Int("worker", id),
				zap.String("task", task.String()),
				zap.Error(result.Error))
		}

		select {
		case <-ctx.Done():
			return
		case results <- result:
		}
	}
}

func (m *Manager) processTask(ctx context.Context, task Task) TaskResult {
	result := TaskResult{Task: task}

	var err error
	switch task.Kind {
	case KindMarket:
		err = m.refreshMarket(ctx, task.Ticker)
	case KindOptions:
		err = m.refreshOptions(ctx, task.Ticker)
	default:
		err = fmt.Errorf("unknown refresh kind %q", task.Kind)
	}

	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			m.logger.Debug("not found", zap.String("task", task.String()))
			result.NotFound = true
		}
		result.Error = err
		return result
	}

	result.Success = true
	return result
}

func (m *Manager) refreshMarket(ctx context.Context, ticker string) error {
	md, err := m.client.GetQuote(ctx, ticker)
	if err != nil {
		return err
	}
	if err := m.store.SaveMarketData(ctx, md); err != nil {
		return err
	}

	m.logger.Info("market data refreshed",
		zap.String("ticker", ticker),
		zap.Float64("close", md.Close),
		zap.Float64("change", md.Change))
	return nil
}

func (m *Manager) refreshOptions(ctx context.Context, ticker string) error {
	snap, err := m.client.GetOptionChain(ctx, ticker, m.maxExpirations)
	if err != nil {
		return err
	}
	if err := m.store.SaveOptionSnapshot(ctx, snap); err != nil {
		return err
	}

	analysis, err := m.aggregator.Aggregate(snap.Chain(), snap.SpotPrice)
	if err != nil {
		return fmt.Errorf("computing gamma for %s: %w", ticker, err)
	}

	gs := &data.GammaSnapshot{
		ID:            uuid.NewString(),
		Ticker:        ticker,
		Timestamp:     snap.FetchedAt,
		SpotPrice:     snap.SpotPrice,
		SpotTime:      snap.SpotTime,
		NetGamma:      analysis.NetGamma,
		GammaByStrike: analysis.GammaByStrike,
		GammaLevels:   analysis.GammaLevels,
	}
	if err := m.store.SaveGammaSnapshot(ctx, gs); err != nil {
		return err
	}

	m.logger.Info("gamma exposure refreshed",
		zap.String("ticker", ticker),
		zap.Float64("spot", gs.SpotPrice),
		zap.Float64("netGamma", gs.NetGamma),
		zap.Int("strikes", len(gs.GammaByStrike)),
		zap.Int("calls", len(snap.Calls)),
		zap.Int("puts", len(snap.Puts)))

	if m.publisher != nil {
		m.publisher.PublishGamma(gs)
	}
	return nil
}
