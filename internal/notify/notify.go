package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gamma-exposure/internal/config"
	"github.com/dgnsrekt/gamma-exposure/internal/refresh"
)

// Notifier is the interface for sending refresh notifications.
type Notifier interface {
	SendSuccess(ctx context.Context, result *refresh.BatchResult, label string, duration time.Duration) error
	SendFailure(ctx context.Context, result *refresh.BatchResult, label string, duration time.Duration, err error) error
}

// Client implements the ntfy notification client.
type Client struct {
	httpClient *http.Client
	config     config.NotifyConfig
	logger     *zap.Logger
}

// NewClient creates a new ntfy client.
func NewClient(cfg config.NotifyConfig, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
	}
}

// SendSuccess reports a refresh where every ticker succeeded.
func (c *Client) SendSuccess(ctx context.Context, result *refresh.BatchResult, label string, duration time.Duration) error {
	if !c.config.Enabled {
		return nil
	}
	return c.send(ctx, successNotification(result, label, duration))
}

// SendFailure reports a refresh with failed tickers, always at high priority.
func (c *Client) SendFailure(ctx context.Context, result *refresh.BatchResult, label string, duration time.Duration, err error) error {
	if !c.config.Enabled {
		return nil
	}
	return c.send(ctx, failureNotification(result, label, duration, err))
}

func (c *Client) send(ctx context.Context, n notification) error {
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(c.config.Server, "/"), c.config.Topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(n.body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	priority := n.priority
	if priority == "" {
		priority = c.config.Priority
	}
	tags := n.tags
	if c.config.Tags != "" {
		tags = c.config.Tags + "," + tags
	}

	req.Header.Set("Title", n.title)
	req.Header.Set("Priority", priority)
	req.Header.Set("Tags", tags)
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("failed to send notification", zap.String("title", n.title), zap.Error(err))
		return fmt.Errorf("sending notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("notification rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("topic", c.config.Topic),
		)
		return fmt.Errorf("notification failed with status: %d", resp.StatusCode)
	}

	c.logger.Debug("notification sent", zap.String("title", n.title))
	return nil
}

// Compile-time interface verification
var (
	_ Notifier         = (*Client)(nil)
	_ Notifier         = (*NoopNotifier)(nil)
	_ refresh.Notifier = (*Client)(nil)
)

// NoopNotifier is a no-op implementation for when notifications are disabled.
type NoopNotifier struct{}

// SendSuccess is a no-op.
func (n *NoopNotifier) SendSuccess(_ context.Context, _ *refresh.BatchResult, _ string, _ time.Duration) error {
	return nil
}

// SendFailure is a no-op.
func (n *NoopNotifier) SendFailure(_ context.Context, _ *refresh.BatchResult, _ string, _ time.Duration, _ error) error {
	return nil
}

// New creates the appropriate notifier based on config.
func New(cfg config.NotifyConfig, logger *zap.Logger) Notifier {
	if !cfg.Enabled {
		return &NoopNotifier{}
	}
	return NewClient(cfg, logger)
}
