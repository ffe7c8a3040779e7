package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonathan/purchase-tracker/internal/logging"
)

// DefaultTimeout bounds a single webhook delivery.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 512

// DeliveryError describes a webhook POST that did not succeed.
type DeliveryError struct {
	URL        string
	StatusCode int
	Body       string
	Cause      error
}

func (e *DeliveryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("webhook delivery to %s failed: %v", redact(e.URL), e.Cause)
	}
	return fmt.Sprintf("webhook delivery to %s failed with status %d", redact(e.URL), e.StatusCode)
}

func (e *DeliveryError) Unwrap() error {
	return e.Cause
}

// DeliveryResult is returned by TestWebhook.
type DeliveryResult struct {
	Delivered  bool   `json:"delivered"`
	StatusCode int    `json:"status_code"`
	Error      string `json:"error,omitempty"`
}

// Dispatcher posts JSON payloads to webhook URLs. Each delivery is a single attempt.
type Dispatcher struct {
	client *http.Client
	log    *logging.Logger
}

// NewDispatcher creates a dispatcher whose requests time out after timeout.
func NewDispatcher(timeout time.Duration, log *logging.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		client: &http.Client{Timeout: timeout},
		log:    logging.OrNop(log).With("component", "notify"),
	}
}

// Send POSTs payload to url and reports the response status. Non-2xx responses
// and transport failures return a *DeliveryError.
func (d *Dispatcher) Send(ctx context.Context, url string, payload any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, &DeliveryError{URL: url, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, &DeliveryError{URL: url, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, &DeliveryError{URL: url, StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// Dispatch sends payload and logs the outcome. Failures are not returned.
func (d *Dispatcher) Dispatch(ctx context.Context, url string, payload any) {
	if url == "" {
		return
	}
	status, err := d.Send(ctx, url, payload)
	if err != nil {
		d.log.Warn("webhook delivery failed", "url", redact(url), "status", status, "error", err)
		return
	}
	d.log.Info("webhook delivered", "url", redact(url), "status", status)
}

// TestWebhook sends a synthetic price drop to url and reports what happened.
func (d *Dispatcher) TestWebhook(ctx context.Context, url string) DeliveryResult {
	payload := PriceDropPayload{
		ItemName:           "Test Item",
		URL:                "https://www.amazon.com/dp/B000000000",
		Currency:           "$",
		PreviousPrice:      100,
		CurrentPrice:       80,
		PriceChange:        -20,
		PriceChangePercent: -20,
		ThresholdType:      "percent",
		ThresholdValue:     10,
	}
	status, err := d.Send(ctx, url, payload)
	if err != nil {
		return DeliveryResult{StatusCode: status, Error: err.Error()}
	}
	return DeliveryResult{Delivered: true, StatusCode: status}
}

// redact keeps webhook tokens out of logs.
func redact(url string) string {
	if len(url) <= 30 {
		return url
	}
	return url[:30] + "..."
}
