package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gamma-exposure/internal/config"
	"github.com/dgnsrekt/gamma-exposure/internal/refresh"
)

func TestFormatFailureMessage_TruncatesErrors(t *testing.T) {
	result := &refresh.BatchResult{Total: 10, Success: 5, Failed: 5}
	for i := 0; i < 5; i++ {
		result.Errors = append(result.Errors, fmt.Sprintf("options/T%d: timeout", i))
	}

	msg := FormatFailureMessage(result, 90*time.Second, errors.New("deadline exceeded"))

	if !strings.Contains(msg, "Error: deadline exceeded") {
		t.Errorf("expected batch error, got:\n%s", msg)
	}
	if !strings.Contains(msg, "options/T2: timeout") || strings.Contains(msg, "options/T3: timeout") {
		t.Errorf("expected only the first 3 errors, got:\n%s", msg)
	}
	if !strings.Contains(msg, "... and 2 more errors") {
		t.Errorf("expected truncation note, got:\n%s", msg)
	}
	if !strings.Contains(msg, "Duration: 1m30s") {
		t.Errorf("expected rounded duration, got:\n%s", msg)
	}
}

func TestFormatMessages_GroupTickersByOutcome(t *testing.T) {
	result := &refresh.BatchResult{
		Total: 4, Success: 2, NotFound: 1, Failed: 1,
		Results: []refresh.TaskResult{
			{Task: refresh.Task{Ticker: "TSLA", Kind: refresh.KindOptions}, Success: true},
			{Task: refresh.Task{Ticker: "^GSPC", Kind: refresh.KindOptions}, NotFound: true},
			{Task: refresh.Task{Ticker: "AAPL", Kind: refresh.KindOptions}, Success: true},
			{Task: refresh.Task{Ticker: "NVDA", Kind: refresh.KindOptions}, Error: errors.New("timeout")},
		},
	}

	success := FormatSuccessMessage(result, 2*time.Second)
	if !strings.Contains(success, "Refreshed (2): AAPL, TSLA") {
		t.Errorf("expected sorted refreshed tickers, got:\n%s", success)
	}
	if !strings.Contains(success, "No upstream data (1): ^GSPC") {
		t.Errorf("expected not-found ticker, got:\n%s", success)
	}

	failure := FormatFailureMessage(result, 2*time.Second, nil)
	if !strings.HasPrefix(failure, "Failed (1): NVDA\n") {
		t.Errorf("expected failed tickers first, got:\n%s", failure)
	}

	n := successNotification(result, "options", time.Second)
	if n.title != "GEX options refresh: 2/4 tickers" {
		t.Errorf("unexpected title %q", n.title)
	}
}

func TestClient_SendFailure(t *testing.T) {
	var (
		gotPath, gotTitle, gotPriority, gotAuth, gotBody, gotTags string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTitle = r.Header.Get("Title")
		gotPriority = r.Header.Get("Priority")
		gotAuth = r.Header.Get("Authorization")
		gotTags = r.Header.Get("Tags")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
	}))
	defer server.Close()

	client := NewClient(config.NotifyConfig{
		Enabled:  true,
		Server:   server.URL + "/",
		Topic:    "gex-alerts",
		Priority: "default",
		Tags:     "chart",
		Token:    "tk_123",
	}, zap.NewNop())

	result := &refresh.BatchResult{
		Total: 2, Success: 1, Failed: 1,
		Errors: []string{"market/AAPL: boom"},
		Results: []refresh.TaskResult{
			{Task: refresh.Task{Ticker: "AAPL", Kind: refresh.KindMarket}, Error: errors.New("boom")},
			{Task: refresh.Task{Ticker: "MSFT", Kind: refresh.KindMarket}, Success: true},
		},
	}
	if err := client.SendFailure(context.Background(), result, "market", time.Second, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/gex-alerts" {
		t.Errorf("expected topic path, got %s", gotPath)
	}
	if gotTitle != "GEX market refresh failed: 1/2 tickers" {
		t.Errorf("unexpected title %q", gotTitle)
	}
	if gotPriority != "high" {
		t.Errorf("expected high priority for failures, got %q", gotPriority)
	}
	if gotAuth != "Bearer tk_123" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if !strings.Contains(gotBody, "market/AAPL: boom") {
		t.Errorf("expected error in body, got %q", gotBody)
	}
	if !strings.Contains(gotBody, "Failed (1): AAPL") {
		t.Errorf("expected failed ticker in body, got %q", gotBody)
	}
	if gotTags != "chart,x" {
		t.Errorf("unexpected tags %q", gotTags)
	}
}

func TestClient_SendStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(config.NotifyConfig{Enabled: true, Server: server.URL, Topic: "t", Priority: "default"}, zap.NewNop())

	err := client.SendSuccess(context.Background(), &refresh.BatchResult{}, "options", time.Second)
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestNew_DisabledIsNoop(t *testing.T) {
	n := New(config.NotifyConfig{Enabled: false}, zap.NewNop())
	if _, ok := n.(*NoopNotifier); !ok {
		t.Errorf("expected NoopNotifier, got %T", n)
	}
	if err := n.SendFailure(context.Background(), &refresh.BatchResult{}, "market", 0, nil); err != nil {
		t.Errorf("noop should not fail: %v", err)
	}
}
