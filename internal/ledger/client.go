package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/vaultgate/vaultgate/internal/config"
	"github.com/vaultgate/vaultgate/pkg/models"
)

// Client talks to the ledger HTTP surface. All transport failures, timeouts
// and 5xx responses surface as ErrUnavailable so callers can choose their
// failure posture: the upload path fails closed, the delete path records a
// reconciliation gap.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a ledger client with a bounded per-call timeout
func NewClient(cfg config.LedgerConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type usageRequest struct {
	UserID     string  `json:"userId"`
	FileSizeMB float64 `json:"fileSizeMB"`
}

type usageResponse struct {
	Response int `json:"response"`
}

type remainingResponse struct {
	RemainingStorage   float64 `json:"remainingStorage"`
	RemainingBandwidth float64 `json:"remainingBandwidth"`
}

type absoluteRequest struct {
	UserID  string  `json:"userId"`
	TotalMB float64 `json:"totalMB"`
}

// Admit requests admission of a byte delta for a principal
func (c *Client) Admit(ctx context.Context, principal string, deltaBytes int64) (Decision, error) {
	body, err := json.Marshal(usageRequest{
		UserID:     principal,
		FileSizeMB: models.BytesToMegabytes(deltaBytes),
	})
	if err != nil {
		return Admitted, fmt.Errorf("failed to marshal usage request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/usage", bytes.NewReader(body))
	if err != nil {
		return Admitted, fmt.Errorf("failed to create usage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Admitted, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Admitted, fmt.Errorf("%w: ledger returned status %d", ErrUnavailable, resp.StatusCode)
	}

	var out usageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Admitted, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return Decision(out.Response), nil
}

// Query reads remaining storage and bandwidth for a principal
func (c *Client) Query(ctx context.Context, principal string) (models.Remaining, error) {
	u := fmt.Sprintf("%s/usage?userId=%s", c.baseURL, url.QueryEscape(principal))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.Remaining{}, fmt.Errorf("failed to create query request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Remaining{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Remaining{}, fmt.Errorf("%w: ledger returned status %d", ErrUnavailable, resp.StatusCode)
	}

	var out remainingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.Remaining{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return models.Remaining{
		StorageBytes:   models.MegabytesToBytes(out.RemainingStorage),
		BandwidthBytes: models.MegabytesToBytes(out.RemainingBandwidth),
	}, nil
}

// SetAbsolute overwrites a principal's stored total with a reconciled value
func (c *Client) SetAbsolute(ctx context.Context, principal string, totalBytes int64) error {
	body, err := json.Marshal(absoluteRequest{
		UserID:  principal,
		TotalMB: models.BytesToMegabytes(totalBytes),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal absolute request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/usage/absolute", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create absolute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ledger returned status %d", ErrUnavailable, resp.StatusCode)
	}

	return nil
}
