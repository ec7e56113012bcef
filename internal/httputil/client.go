// Package httputil provides the HTTP plumbing shared by handlers and
// outbound clients: bounded body reading, JSON encode/decode helpers, and a
// small retrying client for upstream APIs.
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/proteinlens/proteinlens/internal/trace"
)

// Client is a JSON HTTP client for one upstream base URL. It retries
// transient failures with the server-suggested delay when present.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	bearerToken string
	tokenSource func(context.Context) (string, error)
	headers     map[string]string
	userAgent   string
	maxRetries  int
}

// ClientConfig configures the upstream client.
type ClientConfig struct {
	BaseURL     string
	BearerToken string
	// TokenSource supplies a fresh bearer token per request. It takes
	// precedence over BearerToken when set.
	TokenSource func(context.Context) (string, error)
	// Headers are added to every request.
	Headers    map[string]string
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
}

// NewClient creates a client with sane defaults: 30s timeout, 2 retries.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		bearerToken: cfg.BearerToken,
		tokenSource: cfg.TokenSource,
		headers:     cfg.Headers,
		userAgent:   cfg.UserAgent,
		maxRetries:  maxRetries,
	}
}

// Do executes a request, retrying 429 and 5xx responses. A Retry-After
// header, when parsable, overrides the backoff delay.
func (c *Client) Do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.tokenSource != nil {
			token, err := c.tokenSource(ctx)
			if err != nil {
				return nil, fmt.Errorf("acquire token: %w", err)
			}
			req.Header.Set("Authorization", "Bearer "+token)
		} else if c.bearerToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.bearerToken)
		}
		for name, value := range c.headers {
			req.Header.Set(name, value)
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		if tc, ok := trace.FromContext(ctx); ok {
			req.Header.Set(trace.Header, tc.Child().String())
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			delay := retryDelay(resp, attempt)
			resp.Body.Close()
			lastErr = fmt.Errorf("upstream status %d", resp.StatusCode)
			if attempt < c.maxRetries {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(delay):
				}
				continue
			}
		} else {
			return resp, nil
		}

		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryBackoff(attempt)):
			}
		}
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

func retryDelay(resp *http.Response, attempt int) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 && secs <= 60 {
			return time.Duration(secs) * time.Second
		}
	}
	return retryBackoff(attempt)
}

func retryBackoff(attempt int) time.Duration {
	return time.Duration(attempt+1) * 500 * time.Millisecond
}

// DecodeResponse decodes a JSON response into target, treating >=400 as an
// error whose body is read with a hard cap.
func DecodeResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, truncated, err := ReadAllWithLimit(resp.Body, 64<<10)
		if err != nil {
			return fmt.Errorf("read error response body: %w", err)
		}
		msg := strings.TrimSpace(string(body))
		if truncated {
			msg += "...(truncated)"
		}
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, msg)
	}

	if target == nil {
		if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 8<<20)); err != nil {
			return fmt.Errorf("discard response body: %w", err)
		}
		return nil
	}

	body, err := ReadAllStrict(resp.Body, 8<<20)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
