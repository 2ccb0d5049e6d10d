package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/vaultgate/vaultgate/internal/config"
	"github.com/vaultgate/vaultgate/internal/logging"
	"github.com/vaultgate/vaultgate/internal/metrics"
	"github.com/vaultgate/vaultgate/pkg/models"
)

// Client delivers audit events to the external sink. Delivery is strictly
// fire-and-forget: it runs off the request path, retries a fixed number of
// times with a fixed backoff, and swallows every failure. The sink can never
// block or fail a request.
type Client struct {
	endpoint   string
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
	log        *logging.Logger

	now func() time.Time
	// sleep is swapped out in tests to avoid real backoff waits
	sleep func(time.Duration)
}

// NewClient creates a new audit sink client
func NewClient(cfg config.AuditConfig, log *logging.Logger) *Client {
	return &Client{
		endpoint:   cfg.Endpoint,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log:   log,
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// Notify sends an audit event asynchronously. It returns immediately; the
// delivery happens in the background with its own context.
func (c *Client) Notify(event, status, principal, fileName string) {
	evt := &models.AuditEvent{
		Event:     event,
		Status:    status,
		Timestamp: c.now(),
		UserID:    principal,
		FileName:  fileName,
	}

	go c.deliver(context.Background(), evt)
}

// NotifySync delivers an event on the calling goroutine. Failures are still
// swallowed; the return value only feeds tests and logging.
func (c *Client) NotifySync(ctx context.Context, evt *models.AuditEvent) bool {
	return c.deliver(ctx, evt)
}

// deliver attempts to post the event, retrying with fixed backoff
func (c *Client) deliver(ctx context.Context, evt *models.AuditEvent) bool {
	payload, err := json.Marshal(evt)
	if err != nil {
		c.log.ErrorWithErr("failed to marshal audit event", err)
		return false
	}

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		err := c.post(ctx, payload)
		c.log.LogAuditDelivery(evt.Event, evt.UserID, attempt, err)

		if err == nil {
			return true
		}

		if attempt < c.maxRetries {
			c.sleep(c.retryDelay)
		}
	}

	metrics.AuditDeliveryFailures.Inc()
	return false
}

func (c *Client) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode}
	}

	return nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return http.StatusText(e.code)
}
