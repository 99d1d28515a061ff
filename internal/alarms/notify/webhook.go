package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Webhook payload formats.
const (
	// FormatText posts {"msgtype":"text","text":{"content":...}} as chat robots expect.
	FormatText = "text"
	// FormatSlack posts {"text":...}, accepted by Slack and Teams incoming webhooks.
	FormatSlack = "slack"
	// FormatJSON posts the alert itself.
	FormatJSON = "json"
)

// AlertKeyHeader carries the fault type of the alert on every webhook request.
const AlertKeyHeader = "X-HVAC-Alert"

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

type slackPayload struct {
	Text string `json:"text"`
}

// WebhookChannel posts alerts to an HTTP endpoint.
type WebhookChannel struct {
	url    string
	format string
	client *http.Client
}

// WebhookOption configures the webhook channel.
type WebhookOption func(*WebhookChannel)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(ch *WebhookChannel) {
		if client != nil {
			ch.client = client
		}
	}
}

// WithFormat selects the payload format. Empty keeps FormatText.
func WithFormat(format string) WebhookOption {
	return func(ch *WebhookChannel) {
		if format != "" {
			ch.format = format
		}
	}
}

// NewWebhookChannel constructs a webhook channel.
func NewWebhookChannel(url string, opts ...WebhookOption) (*WebhookChannel, error) {
	if url == "" {
		return nil, errors.New("webhook channel: empty url")
	}
	channel := &WebhookChannel{
		url:    url,
		format: FormatText,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(channel)
	}
	switch channel.format {
	case FormatText, FormatSlack, FormatJSON:
	default:
		return nil, fmt.Errorf("webhook channel: unknown format %q", channel.format)
	}
	return channel, nil
}

// Name implements Channel.
func (w *WebhookChannel) Name() string { return "webhook" }

// Send posts msg in the configured format.
func (w *WebhookChannel) Send(ctx context.Context, msg Message) error {
	if w == nil || w.url == "" {
		return errors.New("webhook channel: empty url")
	}
	body, err := w.encode(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if msg.Key != "" {
		req.Header.Set(AlertKeyHeader, msg.Key)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook channel: %s returned %d", w.format, resp.StatusCode)
	}
	return nil
}

func (w *WebhookChannel) encode(msg Message) ([]byte, error) {
	content := msg.Text
	if msg.Subject != "" {
		content = msg.Subject + "\n" + content
	}
	switch w.format {
	case FormatSlack:
		return json.Marshal(slackPayload{Text: content})
	case FormatJSON:
		if len(msg.Payload) == 0 {
			return nil, errors.New("webhook channel: message has no json payload")
		}
		return msg.Payload, nil
	default:
		return json.Marshal(webhookPayload{MsgType: "text", Text: webhookText{Content: content}})
	}
}
