package authority

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

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/gateway"
	"github.com/MrEthical07/goSession/session"
)

// ErrRejected is returned when the authority answers with a non-2xx status.
// The concrete *StatusError is wrapped alongside it.
var ErrRejected = errors.New("authority rejected request")

// StatusError carries the status and a bounded prefix of the body.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("authority %s: status %d", e.Op, e.StatusCode)
}

const maxErrorBody = 512

// maxBodyBytes caps a buffered response body; larger bodies are refused.
const maxBodyBytes = 1 << 20

// Client talks to the remote session authority. It satisfies
// goSession.Authority.
type Client struct {
	base        *url.URL
	verifyPath  string
	logoutPath  string
	profilePath string
	http        *http.Client
	userAgent   string
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the default http.Client. The configured timeout
// is not applied to a caller-supplied client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New builds a Client from cfg.
func New(cfg goSession.AuthorityConfig, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("authority: parse base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("authority: base url must be absolute http(s), got %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		base:        u,
		verifyPath:  pathOr(cfg.VerifyPath, "/auth/verify-token"),
		logoutPath:  pathOr(cfg.LogoutPath, "/auth/logout"),
		profilePath: pathOr(cfg.ProfilePath, "/parent/profile"),
		http:        &http.Client{Timeout: timeout},
		userAgent:   "goSession-authority",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func pathOr(p, def string) string {
	if strings.TrimSpace(p) == "" {
		return def
	}
	return p
}

// VerifyToken succeeds only on a 2xx answer.
func (c *Client) VerifyToken(ctx context.Context, credential string) error {
	_, err := c.do(ctx, "verify", http.MethodGet, c.verifyPath, credential)
	return err
}

// Logout asks the authority to invalidate credential.
func (c *Client) Logout(ctx context.Context, credential string) error {
	_, err := c.do(ctx, "logout", http.MethodPost, c.logoutPath, credential)
	return err
}

// FetchProfile reads the profile of the credential's owner. The body may be
// a bare profile object or one wrapped as {"data": {...}}. Only fields that
// are present become part of the returned patch.
func (c *Client) FetchProfile(ctx context.Context, credential string) (session.ProfilePatch, error) {
	body, err := c.do(ctx, "profile", http.MethodGet, c.profilePath, credential)
	if err != nil {
		return session.ProfilePatch{}, err
	}
	return decodeProfile(body)
}

type wireProfile struct {
	Name      *string `json:"name"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	AvatarURL *string `json:"avatarUrl"`
	Role      *string `json:"role"`
}

func decodeProfile(body []byte) (session.ProfilePatch, error) {
	var envelope map[string]json.RawMessage
	if err := gateway.ParseJSON(body, &envelope); err != nil {
		return session.ProfilePatch{}, err
	}
	if data, ok := envelope["data"]; ok {
		body = data
	}

	var w wireProfile
	if err := gateway.ParseJSON(body, &w); err != nil {
		return session.ProfilePatch{}, err
	}

	patch := session.ProfilePatch{
		Name:      w.Name,
		Email:     w.Email,
		Phone:     w.Phone,
		AvatarURL: w.AvatarURL,
	}
	if w.Role != nil {
		role, err := session.ParseRole(*w.Role)
		if err != nil {
			return session.ProfilePatch{}, fmt.Errorf("%w: %w", goSession.ErrMalformedResponse, err)
		}
		patch.Role = &role
	}
	return patch, nil
}

func (c *Client) do(ctx context.Context, op, method, path, credential string) ([]byte, error) {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(path, "/")

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("authority %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if id := goSession.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: authority %s: %w", goSession.ErrNetwork, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: authority %s: read body: %w", goSession.ErrNetwork, op, err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: authority %s: body exceeds %d bytes", goSession.ErrMalformedResponse, op, maxBodyBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := body
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, fmt.Errorf("%w: %w", ErrRejected, &StatusError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       string(snippet),
		})
	}
	return body, nil
}
