// Package httputil provides the JSON REST client used to reach the storefront API.
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	serrors "github.com/vetclinic/storefront/internal/errors"
	"github.com/vetclinic/storefront/internal/metrics"
	"github.com/vetclinic/storefront/pkg/logger"
)

const (
	// RequestIDHeader carries the per-call request id.
	RequestIDHeader = "X-Request-ID"

	defaultTimeout      = 15 * time.Second
	defaultMaxRetries   = 2
	defaultRetryBackoff = 200 * time.Millisecond
	defaultMaxBodySize  = 8 << 20
	errorBodyLimit      = 64 << 10
)

// TokenFunc returns the bearer token to attach, or "" for anonymous calls.
type TokenFunc func() string

// Config configures a Client.
type Config struct {
	// BaseURL is the storefront API root, e.g. http://192.168.1.18:3000.
	BaseURL string
	// Service names the remote service in errors and logs.
	Service string
	// Token supplies the bearer token for each request.
	Token TokenFunc

	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	// RequestsPerSecond throttles outgoing calls when positive.
	RequestsPerSecond float64
	Burst             int

	UserAgent    string
	MaxBodyBytes int64
	// HTTPClient is copied, never mutated. When nil a client with Timeout is used.
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// Client sends JSON requests to one storefront service.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	service      string
	token        TokenFunc
	maxRetries   int
	retryBackoff time.Duration
	limiter      *rate.Limiter
	userAgent    string
	maxBodyBytes int64
	log          *logger.Logger
}

// New creates a client for cfg.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("httputil: BaseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("httputil: BaseURL must be a valid URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("httputil: BaseURL scheme must be http or https")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var hc http.Client
	if cfg.HTTPClient != nil {
		hc = *cfg.HTTPClient
	}
	if hc.Timeout == 0 {
		hc.Timeout = timeout
	}
	hc.Transport = metrics.InstrumentTransport(hc.Transport)

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	} else if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}

	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodySize
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}

	service := cfg.Service
	if service == "" {
		service = "storefront"
	}

	return &Client{
		httpClient:   &hc,
		baseURL:      baseURL,
		service:      service,
		token:        cfg.Token,
		maxRetries:   maxRetries,
		retryBackoff: backoff,
		limiter:      limiter,
		userAgent:    cfg.UserAgent,
		maxBodyBytes: maxBody,
		log:          log,
	}, nil
}

// Service returns the service name used in errors.
func (c *Client) Service() string {
	return c.service
}

// WithService returns a copy of c reporting errors as service.
func (c *Client) WithService(service string) *Client {
	cp := *c
	cp.service = service
	return &cp
}

// Do executes a request and returns the raw response. Idempotent methods are
// retried on transport errors and 502/503/504 answers.
func (c *Client) Do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request body: %w", c.service, err)
		}
		payload = b
	}

	requestID := uuid.NewString()
	ctx = context.WithValue(ctx, logger.RequestIDKey, requestID)
	retryable := method == http.MethodGet || method == http.MethodPut || method == http.MethodDelete

	for attempt := 0; ; attempt++ {
		resp, err := c.once(ctx, method, path, payload, requestID)
		transient := err != nil || isTransientStatus(resp.StatusCode)
		if !transient || !retryable || attempt >= c.maxRetries || ctx.Err() != nil {
			if err != nil {
				return nil, err
			}
			return resp, nil
		}

		if resp != nil {
			drain(resp)
		}
		c.log.WithContext(ctx).WithFields(map[string]interface{}{
			"method":  method,
			"path":    path,
			"attempt": attempt + 1,
		}).Debug("retrying storefront request")

		wait := c.retryBackoff << attempt
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", c.service, ctx.Err())
		case <-time.After(wait):
		}
	}
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, requestID string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: rate limit: %w", c.service, err)
		}
	}

	var bodyReader io.Reader = http.NoBody
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", c.service, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.token != nil {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", c.service, err)
	}
	return resp, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	return c.Do(ctx, http.MethodPut, path, body)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*http.Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil)
}

// Call executes a request and returns the response body of a 2xx answer.
// Other answers become an *errors.APIError carrying the server's message.
func (c *Client) Call(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	return c.ReadBody(resp)
}

// CallJSON is Call followed by decoding the body into target.
func (c *Client) CallJSON(ctx context.Context, method, path string, body, target interface{}) error {
	data, err := c.Call(ctx, method, path, body)
	if err != nil {
		return err
	}
	if target == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.service, err)
	}
	return nil
}

// ReadBody consumes resp. Non-2xx answers become an *errors.APIError.
func (c *Client) ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _, err := ReadAllWithLimit(resp.Body, errorBodyLimit)
		if err != nil {
			return nil, serrors.NewAPIError(c.service, resp.StatusCode, "")
		}
		return nil, serrors.NewAPIError(c.service, resp.StatusCode, ErrorMessage(body))
	}

	body, err := ReadAllStrict(resp.Body, c.maxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("%s: read response body: %w", c.service, err)
	}
	return body, nil
}

// ErrorMessage extracts the "message" (or "error") field of a JSON error body.
func ErrorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, key := range []string{"message", "error"} {
		if msg := strings.TrimSpace(gjson.GetBytes(body, key).String()); msg != "" {
			return msg
		}
	}
	return ""
}

// ReadAllWithLimit reads at most limit bytes and reports whether more remained.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}

// ReadAllStrict reads r and fails when it holds more than limit bytes.
func ReadAllStrict(r io.Reader, limit int64) ([]byte, error) {
	data, truncated, err := ReadAllWithLimit(r, limit)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return data, nil
}

func isTransientStatus(code int) bool {
	return code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, errorBodyLimit))
	resp.Body.Close()
}
