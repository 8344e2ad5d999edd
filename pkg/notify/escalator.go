package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/praxlaw/crm-alert-engine/pkg/models"
)

// Escalator delivers a best-effort out-of-band notification for a critical
// alert. No delivery guarantee, no retry; callers swallow errors.
type Escalator interface {
	Escalate(ctx context.Context, alert models.Alert) error
}

// WebhookEscalator posts the alert as JSON to a configured endpoint,
// typically a chat or paging integration.
type WebhookEscalator struct {
	url    string
	client *http.Client
}

// NewWebhookEscalator creates an escalator posting to url. timeout bounds
// each delivery attempt.
func NewWebhookEscalator(url string, timeout time.Duration) *WebhookEscalator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookEscalator{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Escalate posts the alert payload. A non-2xx response is an error.
func (w *WebhookEscalator) Escalate(ctx context.Context, alert models.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to serialize alert %s: %w", alert.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build escalation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver escalation for alert %s: %w", alert.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("escalation endpoint returned status %d for alert %s", resp.StatusCode, alert.ID)
	}
	return nil
}
