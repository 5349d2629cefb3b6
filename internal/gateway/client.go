// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/chatgate/internal/logging"
)

// Configuration constants for the gateway client.
const (
	// DefaultTimeout is the default timeout for non-streaming requests.
	DefaultTimeout = 30 * time.Second

	// DefaultIdleTimeout aborts a stream that has delivered no bytes for this long.
	DefaultIdleTimeout = 90 * time.Second

	// MaxResponseSize is the maximum allowed JSON response body size.
	MaxResponseSize = 10 * 1024 * 1024
)

// UserAgent is sent with every request.
var UserAgent = "chatgate/dev"

// PERFORMANCE: Connection pooling is shared by every Client in the process.
var sharedTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     90 * time.Second,
	TLSHandshakeTimeout: 10 * time.Second,
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the chat gateway REST and SSE endpoints.
type Client struct {
	baseURL *url.URL

	// httpClient carries a timeout; streamClient does not, streams are
	// bounded by their context and the idle watchdog instead.
	httpClient   *http.Client
	streamClient *http.Client

	jar         http.CookieJar
	limiter     *rate.Limiter
	idleTimeout time.Duration
	log         *zap.SugaredLogger
}

// NewClient creates a client for the gateway at baseURL.
func NewClient(baseURL string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}

	// cookiejar.New only fails on a non-nil PublicSuffixList error path.
	jar, _ := cookiejar.New(nil)

	return &Client{
		baseURL:      u,
		httpClient:   &http.Client{Transport: sharedTransport, Jar: jar, Timeout: DefaultTimeout},
		streamClient: &http.Client{Transport: sharedTransport, Jar: jar},
		jar:          jar,
		idleTimeout:  DefaultIdleTimeout,
		log:          logging.Named("gateway"),
	}, nil
}

// WithTimeout sets the timeout for non-streaming requests.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient.Timeout = timeout
	return c
}

// WithIdleTimeout sets the stream stall window. Zero disables the watchdog.
func (c *Client) WithIdleTimeout(timeout time.Duration) *Client {
	c.idleTimeout = timeout
	return c
}

// WithRateLimit throttles outgoing requests. rps <= 0 removes the limit.
func (c *Client) WithRateLimit(rps float64, burst int) *Client {
	if rps <= 0 {
		c.limiter = nil
		return c
	}
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return c
}

// WithCookies stores session cookies for the gateway host.
func (c *Client) WithCookies(cookies map[string]string) *Client {
	if len(cookies) == 0 {
		return c
	}
	list := make([]*http.Cookie, 0, len(cookies))
	for name, value := range cookies {
		list = append(list, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	c.jar.SetCookies(c.baseURL, list)
	return c
}

// WithTransport replaces the round tripper on both internal clients.
func (c *Client) WithTransport(rt http.RoundTripper) *Client {
	c.httpClient.Transport = rt
	c.streamClient.Transport = rt
	return c
}

// BaseURL returns the gateway base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// envelope is the success wrapper around every JSON response.
type envelope[T any] struct {
	Success   bool   `json:"success"`
	Detail    T      `json:"detail"`
	Timestamp string `json:"timestamp"`
}

// errorDetail is the detail of a failure envelope.
type errorDetail struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Details *string `json:"details"`
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// do issues a request and returns the response only for 2xx statuses.
// Everything else is converted by handleErrorResponse.
func (c *Client) do(ctx context.Context, hc *http.Client, op string, req *http.Request) (*http.Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("User-Agent", UserAgent)

	start := time.Now()
	resp, err := hc.Do(req)
	requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues(op, "transport_error").Inc()
		return nil, &TransportError{Op: op, Err: err}
	}

	c.log.Debugw("gateway response", "op", op, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		requestsTotal.WithLabelValues(op, "http_"+statusClass(resp.StatusCode)).Inc()
		return nil, handleErrorResponse(op, resp)
	}
	requestsTotal.WithLabelValues(op, "ok").Inc()
	return resp, nil
}

// handleErrorResponse decodes the failure envelope when the body is JSON,
// otherwise reports the bare HTTP status.
func handleErrorResponse(op string, resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return &TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}

	var env envelope[errorDetail]
	if len(body) == 0 || json.Unmarshal(body, &env) != nil || env.Detail.Code == "" && env.Detail.Message == "" {
		return &TransportError{Op: op, Status: resp.StatusCode}
	}

	se := &ServerError{
		Code:    ParseErrorCode(env.Detail.Code),
		RawCode: env.Detail.Code,
		Message: env.Detail.Message,
		Status:  resp.StatusCode,
	}
	if env.Detail.Details != nil {
		se.Details = *env.Detail.Details
	}
	return se
}

func statusClass(status int) string {
	return fmt.Sprintf("%dxx", status/100)
}

// getJSON performs a GET and decodes the envelope detail into T.
func getJSON[T any](ctx context.Context, c *Client, op, path string, query url.Values) (T, error) {
	var zero T
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return zero, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	return doJSON[T](ctx, c, op, req)
}

// sendJSON marshals body, sends it with method, and decodes the envelope detail.
func sendJSON[T any](ctx context.Context, c *Client, op, method, path string, body interface{}) (T, error) {
	var zero T
	payload, err := json.Marshal(body)
	if err != nil {
		return zero, fmt.Errorf("%s: encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, nil), bytes.NewReader(payload))
	if err != nil {
		return zero, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return doJSON[T](ctx, c, op, req)
}

func doJSON[T any](ctx context.Context, c *Client, op string, req *http.Request) (T, error) {
	var zero T
	resp, err := c.do(ctx, c.httpClient, op, req)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	var env envelope[T]
	dec := json.NewDecoder(io.LimitReader(resp.Body, MaxResponseSize))
	if err := dec.Decode(&env); err != nil {
		return zero, &ProtocolError{Reason: op + ": decode response", Err: err}
	}
	return env.Detail, nil
}

// deleteResource issues a DELETE and expects an empty success response.
func (c *Client) deleteResource(ctx context.Context, op, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint(path, nil), nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	resp, err := c.do(ctx, c.httpClient, op, req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxResponseSize))
	return resp.Body.Close()
}
