package notify

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/graaaaa/mclog-companion/internal/config"
)

// SendResult is what the notifier does with a payload after a send.
type SendResult int

const (
	SendOK        SendResult = iota // delivered, drop from the queue
	SendRetryable                   // requeue and back off
	SendFatal                       // webhook misconfigured, disable notifications
)

func (r SendResult) String() string {
	switch r {
	case SendOK:
		return "ok"
	case SendRetryable:
		return "retryable"
	default:
		return "fatal"
	}
}

// Sender delivers one payload. retryAfter is non-zero only when the remote
// side asked for a specific delay.
type Sender interface {
	Send(ctx context.Context, payload DiscordPayload) (result SendResult, retryAfter time.Duration)
}

const (
	webhookTimeout = 10 * time.Second
	// rate limit bodies are small JSON objects
	maxResponseBody = 4096
)

// Webhook posts payloads to a Discord webhook URL.
type Webhook struct {
	url    config.Secret
	client *http.Client
	logger *slog.Logger
}

// NewWebhook returns a Sender for url. The URL embeds the webhook token, so
// it is only ever logged through config.Secret.
func NewWebhook(url config.Secret, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
		logger: logger,
	}
}

// Send implements Sender.
func (w *Webhook) Send(ctx context.Context, payload DiscordPayload) (SendResult, time.Duration) {
	if w.url.IsEmpty() {
		w.logger.Warn("discord webhook not configured")
		return SendFatal, 0
	}
	body, err := json.Marshal(payload)
	if err != nil {
		w.logger.Error("encode discord payload", "error", err)
		return SendFatal, 0
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url.Value(), bytes.NewReader(body))
	if err != nil {
		w.logger.Error("build discord request", "webhook_url", w.url, "error", err)
		return SendFatal, 0
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("discord webhook unreachable", "error", err)
		return SendRetryable, 0
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	return w.classify(resp)
}

// classify maps a webhook response onto the notifier's three outcomes. A 4xx
// other than 429 will not change on retry: the webhook was deleted or its
// token is wrong.
func (w *Webhook) classify(resp *http.Response) (SendResult, time.Duration) {
	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		w.logger.Debug("discord notification delivered", "status", status)
		return SendOK, 0
	case status == http.StatusTooManyRequests:
		wait := rateLimitWait(resp)
		w.logger.Warn("discord rate limited", "retry_after", wait)
		return SendRetryable, wait
	case status >= 400 && status < 500:
		w.logger.Error("discord rejected webhook", "status", status, "webhook_url", w.url)
		return SendFatal, 0
	default:
		w.logger.Warn("discord webhook failed", "status", status)
		return SendRetryable, 0
	}
}

// rateLimitWait reads the delay from the Retry-After header, falling back to
// the retry_after field Discord puts in the 429 body. Both are seconds and
// may be fractional.
func rateLimitWait(resp *http.Response) time.Duration {
	if secs, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	var body struct {
		RetryAfter float64 `json:"retry_after"`
	}
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody))
	if err := dec.Decode(&body); err == nil && body.RetryAfter > 0 {
		return time.Duration(body.RetryAfter * float64(time.Second))
	}
	return 0
}
