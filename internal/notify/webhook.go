package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pulseflow/pkg/constraints"
)

// WebhookSender posts a JSON document to the recipient address. It backs
// SMS gateways and chat integrations that accept a plain HTTP callback.
type WebhookSender struct {
	Method  string
	Headers map[string]string
	client  *http.Client
}

func NewWebhookSender(method string, headers map[string]string, timeout time.Duration) *WebhookSender {
	if method == "" {
		method = http.MethodPost
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{
		Method:  method,
		Headers: headers,
		client:  &http.Client{Timeout: timeout},
	}
}

func (w *WebhookSender) Channel() string { return constraints.ChannelWebhook }

func (w *WebhookSender) Validate() error {
	if w.Method == "" {
		return errors.New("webhook: method is required")
	}
	return nil
}

func (w *WebhookSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("webhook: url is empty")
	}

	body, err := json.Marshal(map[string]any{
		"subject":   msg.Subject,
		"message":   msg.Body,
		"timestamp": time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, w.Method, msg.To, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
