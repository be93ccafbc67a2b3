package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"research-assistant/llm/providers/shared"
)

const maxErrorBody = 4096

// RetryTransport is an http.RoundTripper that paces requests per host and
// retries rate-limited, overloaded and failed requests with exponential backoff.
type RetryTransport struct {
	base     http.RoundTripper
	opts     shared.ClientOptions
	limiters *RateLimiter
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewRetryTransport wraps base; a nil base gets a tuned http.Transport.
func NewRetryTransport(base http.RoundTripper, opts shared.ClientOptions) *RetryTransport {
	if base == nil {
		base = newBaseTransport(opts)
	}
	opts = withDefaults(opts)
	return &RetryTransport{
		base:     base,
		opts:     opts,
		limiters: NewRateLimiter(),
		sleep:    sleepContext,
	}
}

func withDefaults(opts shared.ClientOptions) shared.ClientOptions {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.MaxBackoff == 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.MaxIdleConns == 0 {
		opts.MaxIdleConns = 10
	}
	if opts.IdleConnTTL == 0 {
		opts.IdleConnTTL = 90 * time.Second
	}
	if opts.Burst == 0 {
		opts.Burst = 1
	}
	return opts
}

func newBaseTransport(opts shared.ClientOptions) *http.Transport {
	opts = withDefaults(opts)
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        opts.MaxIdleConns,
		MaxIdleConnsPerHost: opts.MaxIdleConns,
		IdleConnTimeout:     opts.IdleConnTTL,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if t.opts.RequestsPerSecond > 0 {
		limiter := t.limiters.GetLimiter(req.URL.Host, t.opts.RequestsPerSecond, t.opts.Burst)
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	attempts := 1
	if t.retryable(req) {
		attempts += t.opts.RetryMax
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && req.Body != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewind request body: %w", err)
			}
			req = req.Clone(ctx)
			req.Body = body
		}

		resp, err := t.base.RoundTrip(req)
		last := attempt == attempts-1
		if err != nil {
			lastErr = err
			if last || ctx.Err() != nil {
				break
			}
			if err := t.sleep(ctx, Backoff(attempt+1, t.opts.RetryBackoff, t.opts.MaxBackoff)); err != nil {
				return nil, err
			}
			continue
		}

		if !retryableStatus(resp.StatusCode) || last {
			return resp, nil
		}

		wait := Backoff(attempt+1, t.opts.RetryBackoff, t.opts.MaxBackoff)
		if after, ok := retryAfter(resp); ok {
			wait = min(after, t.opts.MaxBackoff)
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close() // Ignore close error since we're retrying
		if err := t.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

func (t *RetryTransport) retryable(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	case http.MethodPost:
		return t.opts.RetryPost && (req.Body == nil || req.GetBody != nil)
	}
	return false
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func retryAfter(resp *http.Response) (time.Duration, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		return max(time.Until(at), 0), true
	}
	return 0, false
}

// Backoff returns the wait before retry number attempt (starting at 1):
// exponential growth from initial, capped at maxWait, with jitter over the
// upper half of the interval.
func Backoff(attempt int, initial, maxWait time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := initial
	for i := 1; i < attempt && d < maxWait; i++ {
		d *= 2
	}
	d = min(d, maxWait)
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + rand.N(half+1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// HTTPClient provides a tuned HTTP client for provider and capability requests
type HTTPClient struct {
	client *http.Client
	opts   shared.ClientOptions
}

// NewHTTPClient creates a new HTTP client with the specified options
func NewHTTPClient(opts shared.ClientOptions) *HTTPClient {
	opts = withDefaults(opts)
	return &HTTPClient{
		client: &http.Client{
			Transport: NewRetryTransport(nil, opts),
			Timeout:   opts.Timeout,
		},
		opts: opts,
	}
}

// StandardClient exposes the retrying client for SDKs that take an *http.Client.
func (c *HTTPClient) StandardClient() *http.Client {
	return c.client
}

// Do performs an HTTP request with retry logic
func (c *HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "research-assistant/1.0")
	}

	for key, value := range c.opts.Headers {
		req.Header.Set(key, value)
	}

	if c.opts.APIKey != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, shared.NormalizeError(err)
	}
	return resp, nil
}

// Get fetches url and returns at most limit bytes of the body. limit <= 0
// reads everything.
func (c *HTTPClient) Get(ctx context.Context, url string, headers map[string]string, limit int64) ([]byte, error) {
	body, _, err := c.Fetch(ctx, url, headers, limit)
	return body, err
}

// Fetch is Get that also returns the response headers.
func (c *HTTPClient) Fetch(ctx context.Context, url string, headers map[string]string, limit int64) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, nil, err
	}

	var body io.Reader = resp.Body
	if limit > 0 {
		body = io.LimitReader(resp.Body, limit)
	}
	data, err := io.ReadAll(body)
	return data, resp.Header, err
}

// GetJSON performs a GET request and decodes the JSON response into out.
func (c *HTTPClient) GetJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	data, err := c.Get(ctx, url, headers, 0)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}

// PostJSON sends body as JSON and decodes the JSON response into out (when non-nil).
func (c *HTTPClient) PostJSON(ctx context.Context, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := string(bytes.TrimSpace(data))
	var apiErr struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
		msg = apiErr.Message
	}
	if msg == "" {
		msg = resp.Status
	}
	return shared.ErrorFromStatus(resp.StatusCode, fmt.Sprintf("%s: %s", resp.Request.URL.Host, msg))
}
