// Package gateway is the HTTP client for the portfolio backend.
//
// It covers the five calls the console makes: token exchange, chat turns,
// document upload, knowledge base reset and document stats. Every request
// carries the current bearer token when one is available.
package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://localhost:8000"

const (
	pathToken  = "/auth/token"
	pathChat   = "/chat"
	pathUpload = "/documents/upload_file"
	pathReset  = "/documents/reset"
	pathStats  = "/documents/stats"
)

// TokenSource provides the bearer token attached to outgoing requests.
// An empty token means the request is sent unauthenticated.
type TokenSource interface {
	Token() string
}

// Client talks to the backend over a single base URL.
type Client struct {
	resty  *resty.Client
	logger *slog.Logger

	mu     sync.RWMutex
	tokens TokenSource
}

// Option configures a Client.
type Option func(*Client)

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithTimeout bounds each request. Zero leaves requests unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.resty.SetTimeout(d)
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		resty: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", "portfolia-console/1.0"),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.resty.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		if tok := c.token(); tok != "" {
			r.SetAuthToken(tok)
		}
		return nil
	})

	return c
}

// SetTokenSource replaces the token source. It exists because the session
// that owns the token is usually built on top of this client.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = ts
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string {
	return c.resty.BaseURL
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tokens == nil {
		return ""
	}
	return c.tokens.Token()
}

// Authenticate exchanges credentials for a bearer token.
func (c *Client) Authenticate(ctx context.Context, username, password string) (string, error) {
	var out TokenResponse
	resp, err := c.resty.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"username": username,
			"password": password,
		}).
		SetResult(&out).
		Post(pathToken)
	if err := c.check("authenticate", resp, err); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("authenticate: response carried no access token")
	}
	return out.AccessToken, nil
}

// Chat sends one chat turn.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var out ChatResponse
	resp, err := c.resty.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post(pathChat)
	if err := c.check("chat", resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadFile sends a single document as the multipart field "file".
func (c *Client) UploadFile(ctx context.Context, name, contentType string, r io.Reader) (*UploadResponse, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	var out UploadResponse
	resp, err := c.resty.R().
		SetContext(ctx).
		SetMultipartField("file", name, contentType, r).
		SetResult(&out).
		Post(pathUpload)
	if err := c.check("upload", resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResetDocuments irreversibly clears the knowledge base.
func (c *Client) ResetDocuments(ctx context.Context) error {
	resp, err := c.resty.R().
		SetContext(ctx).
		Delete(pathReset)
	return c.check("reset", resp, err)
}

// Stats returns the backend's document statistics as-is.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	out := Stats{}
	resp, err := c.resty.R().
		SetContext(ctx).
		SetResult(&out).
		Get(pathStats)
	if err := c.check("stats", resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		c.logger.Warn("Gateway request failed", "op", op, "error", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	c.logger.Debug("Gateway response", "op", op, "status", resp.StatusCode(), "duration", resp.Time())
	if resp.IsSuccess() {
		return nil
	}
	apiErr := &APIError{
		Op:         op,
		StatusCode: resp.StatusCode(),
		Detail:     parseDetail(resp.Body()),
	}
	c.logger.Warn("Gateway rejected request", "op", op, "status", apiErr.StatusCode, "detail", apiErr.Detail)
	return apiErr
}
