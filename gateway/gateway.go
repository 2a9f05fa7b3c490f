package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/session"
)

// maxBodyBytes caps how much of a response body is buffered. Larger bodies
// are refused rather than truncated.
const maxBodyBytes = 8 << 20

// Session is the slice of the Manager the gateway depends on.
//
//	Implemented by *goSession.Manager.
type Session interface {
	Credential(ctx context.Context) (string, bool, error)
	InvalidateCredential(ctx context.Context, credential string) error
}

// Options describes one request. The zero value is a GET with no body.
type Options struct {
	Method string
	// Body, when non-nil, is JSON-encoded and sent as application/json.
	Body   any
	Query  url.Values
	Header http.Header
}

// Response is a completed exchange with any status other than 401.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode parses the body into v with [ParseJSON].
func (r *Response) Decode(v any) error {
	if r == nil {
		return goSession.ErrEmptyResponse
	}
	return ParseJSON(r.Body, v)
}

// Client sends requests on behalf of the current session.
type Client struct {
	base      *url.URL
	http      *http.Client
	session   Session
	metrics   *goSession.Metrics
	logger    *slog.Logger
	userAgent string
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the transport timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithMetrics records request counters into m, typically Manager.Metrics().
func WithMetrics(m *goSession.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger sets the logger used for authorization failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a Client rooted at baseURL. Endpoints passed to Request are
// resolved below the base path.
func New(baseURL string, s Session, opts ...Option) (*Client, error) {
	if s == nil {
		return nil, errors.New("gateway: session required")
	}
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("gateway: parse base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("gateway: base url must be absolute http(s), got %q", baseURL)
	}

	c := &Client{
		base:      u,
		http:      &http.Client{Timeout: 30 * time.Second},
		session:   s,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		userAgent: "goSession-gateway",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Request performs one call to endpoint, which must be a path relative to the
// base URL (a query string is allowed).
//
// The credential is attached as a bearer token when one is persisted. A 401
// clears the session through [Session.InvalidateCredential] and returns
// ErrSessionExpired; the request is not retried. Every other status is
// returned unmodified.
func (c *Client) Request(ctx context.Context, endpoint string, opts Options) (*Response, error) {
	target, err := c.resolve(endpoint, opts.Query)
	if err != nil {
		return nil, err
	}

	credential, hasCredential, err := c.session.Credential(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if opts.Body != nil {
		raw, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	requestID := goSession.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", requestID)
	if hasCredential {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	c.inc(goSession.MetricGatewayRequest)
	resp, err := c.http.Do(req)
	if err != nil {
		c.inc(goSession.MetricGatewayNetworkError)
		return nil, fmt.Errorf("%w: %w", goSession.ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		c.inc(goSession.MetricGatewayNetworkError)
		return nil, fmt.Errorf("%w: read body: %w", goSession.ErrNetwork, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.inc(goSession.MetricGatewayUnauthorized)
		c.logger.Warn("authorization failure; clearing session",
			slog.String("endpoint", endpoint),
			slog.String("request_id", requestID),
			slog.String("credential", session.Redact(credential)),
		)
		if err := c.session.InvalidateCredential(context.WithoutCancel(ctx), credential); err != nil {
			return nil, fmt.Errorf("%w: %w", goSession.ErrSessionExpired, err)
		}
		return nil, goSession.ErrSessionExpired
	}
	if len(raw) > maxBodyBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", goSession.ErrMalformedResponse, maxBodyBytes)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       raw,
	}, nil
}

// GetJSON is Request with GET followed by Decode. Non-2xx statuses are
// returned as *StatusError.
func (c *Client) GetJSON(ctx context.Context, endpoint string, v any) error {
	resp, err := c.Request(ctx, endpoint, Options{})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &StatusError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	return resp.Decode(v)
}

// StatusError reports a non-2xx response from a convenience helper.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway: unexpected status %d", e.StatusCode)
}

func (c *Client) resolve(endpoint string, query url.Values) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", fmt.Errorf("gateway: parse endpoint: %w", err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return "", fmt.Errorf("gateway: endpoint %q must be relative to the base url", endpoint)
	}

	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	u.RawPath = ""
	q := ref.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), nil
}

func (c *Client) inc(id goSession.MetricID) {
	if c.metrics != nil {
		c.metrics.Inc(id)
	}
}
