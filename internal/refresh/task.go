package refresh

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the type of data a refresh pulls from the provider.
type Kind string

const (
	KindMarket  Kind = "market"
	KindOptions Kind = "options"
)

// AllKinds lists every kind in refresh order. Market data goes first so a
// strategy computed right after a full refresh sees a fresh close.
var AllKinds = []Kind{KindMarket, KindOptions}

// ParseKinds accepts "market", "options", "all" or "" (all).
func ParseKinds(s string) ([]Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return AllKinds, nil
	case string(KindMarket):
		return []Kind{KindMarket}, nil
	case string(KindOptions):
		return []Kind{KindOptions}, nil
	default:
		return nil, fmt.Errorf("unknown refresh kind %q (valid: market, options, all)", s)
	}
}

type Task struct {
	Ticker string
	Kind   Kind
}

func (t Task) String() string {
	return fmt.Sprintf("%s/%s", t.Kind, t.Ticker)
}

// Tasks builds one task per ticker for each kind.
func Tasks(tickers []string, kinds ...Kind) []Task {
	tasks := make([]Task, 0, len(tickers)*len(kinds))
	for _, kind := range kinds {
		for _, ticker := range tickers {
			tasks = append(tasks, Task{Ticker: ticker, Kind: kind})
		}
	}
	return tasks
}

type TaskResult struct {
	Task     Task
	Success  bool
	NotFound bool
	Error    error
	Duration time.Duration
}

// TickerStatus is the per-ticker outcome reported to API callers.
type TickerStatus struct {
	Ticker string `json:"ticker"`
	Kind   Kind   `json:"kind"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Status returns the reportable form of the result.
func (r TaskResult) Status() TickerStatus {
	s := TickerStatus{Ticker: r.Task.Ticker, Kind: r.Task.Kind}
	switch {
	case r.Success:
		s.Status = "ok"
	case r.NotFound:
		s.Status = "not_found"
	default:
		s.Status = "failed"
	}
	if r.Error != nil {
		s.Error = r.Error.Error()
	}
	return s
}

// BatchResult summarizes a refresh run. Every task appears in Results, so
// callers can tell a batch where nothing succeeded from one where all did.
type BatchResult struct {
	Total     int
	Success   int
	NotFound  int
	Failed    int
	Errors    []string
	Results   []TaskResult
	StartedAt time.Time
	Duration  time.Duration
}

// Succeeded returns the tasks that completed.
func (b *BatchResult) Succeeded() []Task {
	var out []Task
	for _, r := range b.Results {
		if r.Success {
			out = append(out, r.Task)
		}
	}
	return out
}

// Statuses returns per-ticker outcomes in completion order.
func (b *BatchResult) Statuses() []TickerStatus {
	out := make([]TickerStatus, 0, len(b.Results))
	for _, r := range b.Results {
		out = append(out, r.Status())
	}
	return out
}

// HasFailures reports whether any task failed or was not found upstream.
func (b *BatchResult) HasFailures() bool {
	return b.Failed > 0 || b.NotFound > 0
}
