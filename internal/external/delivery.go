package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"occasions/internal/types"
)

// maxErrorBodyBytes bounds how much of a rejected response is kept for the
// error message.
const maxErrorBodyBytes = 512

// DeliverySender posts notification text to the configured endpoint.
type DeliverySender interface {
	Send(ctx context.Context, text string) error
}

// deliveryPayload is the wire format understood by chat-style incoming
// webhooks.
type deliveryPayload struct {
	Text string `json:"text"`
}

// WebhookSender delivers notifications with a single JSON POST.
type WebhookSender struct {
	base *BaseClient
	url  string
}

// NewWebhookSender creates a WebhookSender for url.
func NewWebhookSender(base *BaseClient, url string) *WebhookSender {
	return &WebhookSender{base: base, url: url}
}

// Send POSTs {"text": text}. Any transport error or non-2xx status is
// reported as a delivery failure.
func (s *WebhookSender) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(deliveryPayload{Text: text})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamDelivery, "failed to encode delivery payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamDelivery, "failed to build delivery request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.base.Do(req)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamDelivery, "delivery request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamDelivery,
			fmt.Sprintf("delivery endpoint returned %d", resp.StatusCode), nil,
			map[string]any{"status": resp.StatusCode, "body": string(snippet)})
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
