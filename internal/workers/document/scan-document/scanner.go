// internal/workers/document/scan-document/scanner.go
package scandocument

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"permohonan-service/internal/common/errors"
)

// Doer is satisfied by the shared rate-limited http client.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// HTTPScanner posts raw file content to an antivirus endpoint.
type HTTPScanner struct {
	client Doer
	url    string
}

func NewHTTPScanner(client Doer, url string) *HTTPScanner {
	return &HTTPScanner{client: client, url: url}
}

func (s *HTTPScanner) Scan(ctx context.Context, filename string, content []byte) (*Verdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("build scan request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Filename", filename)

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, errors.NewGatewayError("antivirus", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewGatewayError("antivirus", resp.StatusCode,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	var v Verdict
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, errors.NewGatewayError("antivirus", 0, fmt.Errorf("decode verdict: %w", err))
	}
	return &v, nil
}
