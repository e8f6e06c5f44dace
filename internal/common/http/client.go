// internal/common/http/client.go
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "permohonan-service/internal/common/errors"

	"golang.org/x/time/rate"
)

// Client is a JSON-over-HTTP client with a per-client request budget.
type Client struct {
	name       string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client. ratePerSecond <= 0 disables throttling.
func NewClient(name string, timeout time.Duration, ratePerSecond float64) *Client {
	limit := rate.Inf
	burst := 1
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
		burst = int(ratePerSecond) + 1
	}
	return &Client{
		name: name,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.httpClient.Do(req.WithContext(ctx))
}

// PostJSON sends payload and treats any non-2xx status as a gateway failure.
// The returned error carries the status code so callers can classify it.
func (c *Client) PostJSON(ctx context.Context, url string, payload interface{}, headers map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return apperrors.NewGatewayError(c.name, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperrors.NewGatewayError(c.name, resp.StatusCode,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// GetJSON decodes a 2xx response body into out.
func (c *Client) GetJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", c.name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(ctx, req)
	if err != nil {
		return apperrors.NewGatewayError(c.name, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.NewGatewayError(c.name, resp.StatusCode,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.name, err)
	}
	return nil
}
