package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/markmybytes/HKETA-Server/internal/eta"
)

const (
	requestTimeout = 15 * time.Second

	// maxRetries bounds retry attempts for transient network failures.
	// Schema errors are permanent for a response and never retried.
	maxRetries     = 2
	retryBaseDelay = 500 * time.Millisecond
)

// getJSON fetches url and decodes the body into out, retrying transient
// failures with exponential backoff.
func getJSON(ctx context.Context, client *http.Client, p eta.Provider, url string, out any) error {
	return fetchJSON(ctx, client, p, http.MethodGet, url, nil, out)
}

// postJSON posts body as JSON to url and decodes the response into out.
func postJSON(ctx context.Context, client *http.Client, p eta.Provider, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return fetchJSON(ctx, client, p, http.MethodPost, url, payload, out)
}

func fetchJSON(ctx context.Context, client *http.Client, p eta.Provider, method, url string, body []byte, out any) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(delay):
			}
		}

		err := fetchOnce(ctx, client, p, method, url, body, out)
		if err == nil {
			return nil
		}
		lastErr = err

		var schemaErr *eta.UpstreamSchemaError
		if errors.As(err, &schemaErr) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return lastErr
}

func fetchOnce(ctx context.Context, client *http.Client, p eta.Provider, method, url string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%s: %w", p, eta.ErrUpstreamTimeout)
		}
		return fmt.Errorf("%s: %v: %w", p, err, eta.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d: %w", p, resp.StatusCode, eta.ErrUpstreamUnavailable)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%s: %w", p, eta.ErrUpstreamTimeout)
		}
		return fmt.Errorf("%s: failed to read response: %w", p, eta.ErrUpstreamUnavailable)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &eta.UpstreamSchemaError{Provider: p, Reason: "failed to decode response", Err: err}
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
