// Package api is the REST client for the quiz backend, base path /api/v1.
//
// The client is stateless apart from the cookie jar carrying the auth session.
// No retries happen at this layer; retries, if any, belong to the caller.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/equiz-client/internal/domain"
	"github.com/victornm/equiz-client/internal/errors"
	"github.com/victornm/equiz-client/internal/telemetry"
)

const (
	basePath       = "/api/v1"
	defaultTimeout = 10 * time.Second
)

type Config struct {
	// BaseURL is the server origin, e.g. http://localhost:3000.
	BaseURL string

	// HTTPClient defaults to a client with a fresh cookie jar; the backend
	// authenticates with a session cookie.
	HTTPClient *http.Client

	Metrics *telemetry.Metrics
}

type Client struct {
	base    string
	http    *http.Client
	metrics *telemetry.Metrics
}

func NewClient(c Config) (*Client, error) {
	if c.Metrics == nil {
		c.Metrics = telemetry.NewMetrics(nil)
	}

	hc := c.HTTPClient
	if hc == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("api: cookie jar: %w", err)
		}
		hc = &http.Client{
			Jar:     jar,
			Timeout: defaultTimeout,
		}
	}

	return &Client{
		base:    c.BaseURL + basePath,
		http:    hc,
		metrics: c.Metrics,
	}, nil
}

// Envelope is the single discriminated response wrapper every endpoint uses.
type Envelope struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message,omitempty"`
	Session  *domain.Session  `json:"session,omitempty"`
	Sessions []domain.Session `json:"sessions,omitempty"`
	Player   *domain.Player   `json:"player,omitempty"`
	Players  []domain.Player  `json:"players,omitempty"`
	User     *domain.User     `json:"user,omitempty"`
	Data     json.RawMessage  `json:"data,omitempty"`
	Meta     *PageMeta        `json:"meta,omitempty"`
}

type PageMeta struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*Envelope, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Internal(fmt.Errorf("marshal request: %w", err))
		}
		rd = bytes.NewReader(b)
	}

	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RequestsFailed.Inc()
		return nil, errors.New(errors.CodeRequestFailed,
			errors.WithMessagef("%s %s: request failed", method, path),
			errors.WithCause(err),
		)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RequestsFailed.Inc()
		return nil, errors.New(errors.CodeRequestFailed,
			errors.WithMessagef("%s %s: read response", method, path),
			errors.WithCause(err),
		)
	}

	var env Envelope
	parseErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.metrics.RequestsFailed.Inc()
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("%s %s: unexpected status %d", method, path, resp.StatusCode)
		}
		return nil, errors.New(errors.FromHTTPStatus(resp.StatusCode),
			errors.WithMessagef("%s", msg),
		)
	}

	if parseErr != nil {
		c.metrics.RequestsFailed.Inc()
		return nil, errors.New(errors.CodeRequestFailed,
			errors.WithMessagef("%s %s: unparsable response", method, path),
			errors.WithCause(parseErr),
		)
	}

	if !env.Success {
		c.metrics.RequestsFailed.Inc()
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("%s %s: server reported failure", method, path)
		}
		return nil, errors.New(errors.CodeRequestFailed, errors.WithMessagef("%s", msg))
	}

	return &env, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*Envelope, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

func (c *Client) post(ctx context.Context, path string, body any) (*Envelope, error) {
	return c.do(ctx, http.MethodPost, path, nil, body)
}
