package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gamma-exposure/internal/data"
)

type mockNotifier struct {
	mu     sync.Mutex
	labels []string
}

func (n *mockNotifier) SendFailure(_ context.Context, _ *BatchResult, label string, _ time.Duration, _ error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.labels = append(n.labels, label)
	return nil
}

func newTestScheduler(client *mockClient, notifier Notifier, cfg SchedulerConfig) (*Scheduler, data.Store) {
	store := data.NewMemoryStore()
	mgr := newTestManager(client, store)
	return NewScheduler(mgr, []string{"AAPL", "NVDA"}, cfg, notifier, zap.NewNop()), store
}

func TestScheduler_TriggerAllKinds(t *testing.T) {
	sched, store := newTestScheduler(&mockClient{}, nil, SchedulerConfig{})

	results, err := sched.Trigger(context.Background())
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected results for 2 kinds, got %d", len(results))
	}
	if results[KindMarket].Success != 2 || results[KindOptions].Success != 2 {
		t.Errorf("expected all tasks to succeed, got market=%d options=%d",
			results[KindMarket].Success, results[KindOptions].Success)
	}

	if _, err := store.LatestGammaSnapshot(context.Background(), "NVDA"); err != nil {
		t.Errorf("expected NVDA gamma snapshot: %v", err)
	}
}

func TestScheduler_NotifiesOnFailure(t *testing.T) {
	client := &mockClient{failing: map[string]error{"NVDA": errors.New("boom")}}
	notifier := &mockNotifier{}
	sched, _ := newTestScheduler(client, notifier, SchedulerConfig{})

	results, err := sched.Trigger(context.Background(), KindMarket)
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if results[KindMarket].Failed != 1 {
		t.Errorf("expected 1 failure, got %d", results[KindMarket].Failed)
	}
	if len(notifier.labels) != 1 || notifier.labels[0] != "market" {
		t.Errorf("expected one market failure notification, got %v", notifier.labels)
	}
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	client := &mockClient{block: make(chan struct{})}
	sched, _ := newTestScheduler(client, nil, SchedulerConfig{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = sched.Trigger(context.Background(), KindMarket)
	}()

	// Wait until the first run holds the lock.
	deadline := time.Now().Add(2 * time.Second)
	for {
		client.mu.Lock()
		started := len(client.calls) > 0
		client.mu.Unlock()
		if started {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first refresh never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, err := sched.Trigger(context.Background(), KindMarket)
	if !errors.Is(err, ErrInProgress) {
		t.Errorf("expected ErrInProgress, got %v", err)
	}

	close(client.block)
	<-done
}

func TestScheduler_IsMarketDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	sched, _ := newTestScheduler(&mockClient{}, nil, SchedulerConfig{Location: ny})

	cases := []struct {
		name string
		day  time.Time
		want bool
	}{
		{"monday", time.Date(2025, 6, 2, 12, 0, 0, 0, ny), true},
		{"saturday", time.Date(2025, 6, 7, 12, 0, 0, 0, ny), false},
		{"sunday", time.Date(2025, 6, 8, 12, 0, 0, 0, ny), false},
		{"christmas", time.Date(2025, 12, 25, 12, 0, 0, 0, ny), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sched.IsMarketDay(tc.day); got != tc.want {
				t.Errorf("IsMarketDay(%s) = %v, want %v", tc.day.Format("2006-01-02"), got, tc.want)
			}
		})
	}
}

func TestScheduler_RunOnStartupAndStop(t *testing.T) {
	sched, store := newTestScheduler(&mockClient{}, nil, SchedulerConfig{
		MarketInterval:  time.Hour,
		OptionsInterval: time.Hour,
		RunOnStartup:    true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sched.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := store.LatestGammaSnapshot(context.Background(), "AAPL"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("startup refresh did not store a snapshot")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
