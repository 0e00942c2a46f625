// Package netx holds the small HTTP helpers shared by the mint, Lightning
// address and price clients.
package netx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single request when the caller passes no client.
const DefaultTimeout = 15 * time.Second

const maxBody = 4 << 20

// StatusError is returned for any non-2xx response. Body holds at most the
// first few MiB of the response.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, bytes.TrimSpace(e.Body))
}

// Temporary reports whether retrying later may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// NewClient returns an http.Client with the default timeout.
func NewClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// DoJSON sends in (when non-nil) as a JSON body and decodes the response
// into out (when non-nil).
func DoJSON(ctx context.Context, c *http.Client, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c == nil {
		c = NewClient()
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: raw}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}

func GetJSON(ctx context.Context, c *http.Client, url string, out any) error {
	return DoJSON(ctx, c, http.MethodGet, url, nil, out)
}

func PostJSON(ctx context.Context, c *http.Client, url string, in, out any) error {
	return DoJSON(ctx, c, http.MethodPost, url, in, out)
}
