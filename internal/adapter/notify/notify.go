// Package notify delivers pipeline messages to the chat side.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwygoda/vidbot/internal/domain"
)

const userAgent = "vidbot/0.1"

// DefaultTimeout bounds one webhook delivery.
const DefaultTimeout = 10 * time.Second

// New returns a webhook notifier when url is set and a log-only notifier
// otherwise.
func New(url string, timeout time.Duration, logger *slog.Logger) domain.Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return &LogNotifier{logger: logger.With("component", "notify")}
	}
	return NewWebhook(url, timeout)
}

// Webhook posts messages as JSON to a chat bridge.
type Webhook struct {
	endpoint string
	client   *http.Client
}

type webhookPayload struct {
	Target string `json:"target"`
	Text   string `json:"text"`
}

// NewWebhook creates a webhook notifier.
func NewWebhook(endpoint string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Webhook{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

// Notify posts {"target","text"} to the bridge.
func (w *Webhook) Notify(ctx context.Context, target, text string) error {
	body, err := json.Marshal(webhookPayload{Target: target, Text: text})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("chat webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// LogNotifier writes messages to the log only.
type LogNotifier struct {
	logger *slog.Logger
}

// Notify logs the message.
func (n *LogNotifier) Notify(_ context.Context, target, text string) error {
	n.logger.Info("chat message", "target", target, "text", text)
	return nil
}
