package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"UsageSync/internal/config"
)

// Error codes the sharing API uses for an invalid or expired token.
const (
	codeInvalidToken  = 498
	codeTokenRequired = 499
)

// APIError is the error object the sharing API returns inside a 200 response.
type APIError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func (e *APIError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("portal error %d: %s (%s)", e.Code, e.Message, strings.Join(e.Details, "; "))
	}
	return fmt.Sprintf("portal error %d: %s", e.Code, e.Message)
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Status string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s: %s", e.Status, e.Body)
}

// Client talks to the portal sharing REST API with pacing and bounded retry.
type Client struct {
	baseURL     string
	userAgent   string
	pageSize    int
	maxAttempts int
	retryDelay  time.Duration
	http        *http.Client
	limiter     *rate.Limiter
	now         func() time.Time
}

// NewClient builds a client from configuration. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg config.PortalConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	pageSize := cfg.SearchPageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "UsageSync/1.0"
	}

	return &Client{
		baseURL:     strings.TrimSuffix(cfg.URL, "/"),
		userAgent:   userAgent,
		pageSize:    pageSize,
		maxAttempts: attempts,
		retryDelay:  cfg.RetryDelay,
		http:        httpClient,
		limiter:     rate.NewLimiter(limit, 1),
		now:         time.Now,
	}
}

// call performs one request and decodes the JSON body into v.
// Error objects embedded in 200 responses are returned as *APIError.
func (c *Client) call(ctx context.Context, method, path string, form url.Values, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	endpoint := c.baseURL + path
	var body io.Reader
	if method == http.MethodGet {
		endpoint += "?" + form.Encode()
	} else {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Status: resp.Status, Code: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// retry runs op with a constant delay until it succeeds, returns a permanent
// error, or maxAttempts is spent. It reports how many attempts were made.
func (c *Client) retry(ctx context.Context, op func() error) (int, error) {
	attempts := 0
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), uint64(c.maxAttempts-1)),
		ctx,
	)
	err := backoff.Retry(func() error {
		attempts++
		return op()
	}, policy)
	return attempts, err
}

// permanent marks errors that retrying cannot fix. A per-request timeout is
// transient; cancellation of the caller's context is not.
func permanent(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return backoff.Permanent(err)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Code == codeInvalidToken || apiErr.Code == codeTokenRequired || apiErr.Code == http.StatusForbidden) {
		return backoff.Permanent(err)
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code >= 400 && statusErr.Code < 500 && statusErr.Code != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}

	return err
}
