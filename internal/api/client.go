package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultTimeout = 20 * time.Second

// TokenSource supplies the session token for authenticated routes. It
// is expected to refresh the token transparently when needed.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     *slog.Logger
}

type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	Tokens  TokenSource
	Logger  *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		tokens:  cfg.Tokens,
		log:     cfg.Logger,
	}
}

func (c *Client) Get(ctx context.Context, req *Request) (*Response, error) {
	return c.do(ctx, http.MethodGet, req)
}

func (c *Client) Post(ctx context.Context, req *Request) (*Response, error) {
	return c.do(ctx, http.MethodPost, req)
}

func (c *Client) Patch(ctx context.Context, req *Request) (*Response, error) {
	return c.do(ctx, http.MethodPatch, req)
}

func (c *Client) Delete(ctx context.Context, req *Request) (*Response, error) {
	return c.do(ctx, http.MethodDelete, req)
}

// do executes the request and decodes the reply. Transport failures
// come back wrapped in ErrNetwork; error-status replies come back as a
// Response with Err set, not as a Go error, so callers can inspect the
// code.
func (c *Client) do(ctx context.Context, method string, req *Request) (*Response, error) {
	var body io.Reader
	if req.hasBody() {
		data, err := json.Marshal(req.fields)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding body: %v", ErrNetwork, err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL(c.baseURL), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.hasBody() {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Route.Authenticated {
		if c.tokens == nil {
			return nil, fmt.Errorf("%w: route %s requires a session", ErrAuthExpired, req.Route.Name)
		}
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Authorization", token)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Warn("api request failed", "route", req.Route.Name, "method", method, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrNetwork, err)
	}

	resp := newResponse(httpResp.StatusCode, raw)
	if resp.IsError() {
		c.log.Debug("api error response", "route", req.Route.Name, "method", method,
			"status", resp.StatusCode, "message", resp.Err.Message)
	}
	return resp, nil
}
