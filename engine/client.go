// Package engine provides a client for the remote risk engine service.
//
// The client implements cache.RiskEngine, cache.MLModel and cache.Leaderboard.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/jonwraymond/scenariocache/cache"
	"github.com/jonwraymond/scenariocache/observe"
	"github.com/jonwraymond/scenariocache/resilience"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxAttempts  = 3
	defaultInitialDelay = 200 * time.Millisecond
)

// ErrBaseURLNotSet is returned by every call when the client has no base URL.
var ErrBaseURLNotSet = errors.New("engine: base URL not set")

// StatusError is a non-2xx answer from the engine.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("engine: unexpected status %d: %s", e.StatusCode, e.Body)
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return retryableStatusCode(se.StatusCode)
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Option configures the client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRetry sets the attempt budget and the first backoff delay.
// Non-positive values keep the defaults.
func WithRetry(maxAttempts int, initialDelay time.Duration) Option {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if initialDelay > 0 {
			c.initialDelay = initialDelay
		}
	}
}

// WithMiddleware instruments engine calls.
func WithMiddleware(mw *observe.Middleware) Option {
	return func(c *Client) {
		if mw != nil {
			c.obs = mw
		}
	}
}

// Client talks to the risk engine over HTTP.
type Client struct {
	baseURL      string
	token        string
	http         *http.Client
	maxAttempts  int
	initialDelay time.Duration
	obs          *observe.Middleware
}

var (
	_ cache.RiskEngine  = (*Client)(nil)
	_ cache.MLModel     = (*Client)(nil)
	_ cache.Leaderboard = (*Client)(nil)
)

// NewClient creates a risk engine client.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		maxAttempts:  defaultMaxAttempts,
		initialDelay: defaultInitialDelay,
		obs:          observe.NewNopMiddleware(),
		http: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type scenarioPayload struct {
	TariffPercent  json.Number `json:"tariff_percent"`
	TargetPartners []string    `json:"target_partners"`
	SectorFilter   []string    `json:"sector_filter"`
	ModelMode      string      `json:"model_mode"`
}

func toPayload(s cache.Scenario) scenarioPayload {
	partners := s.TargetPartners
	if partners == nil {
		partners = []string{}
	}
	return scenarioPayload{
		TariffPercent:  json.Number(s.TariffPercent.String()),
		TargetPartners: partners,
		SectorFilter:   s.SectorFilter,
		ModelMode:      s.ModelMode,
	}
}

// Compute asks the engine for the deterministic risk of s.
func (c *Client) Compute(ctx context.Context, s cache.Scenario) (*cache.RiskResult, error) {
	var result cache.RiskResult
	if err := c.call(ctx, "compute", http.MethodPost, "/v1/risk/compute", toPayload(s), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Adjust asks the engine's model to refine base for s.ModelMode.
func (c *Client) Adjust(ctx context.Context, s cache.Scenario, base *cache.RiskResult) (*cache.RiskResult, error) {
	in := struct {
		Scenario scenarioPayload   `json:"scenario"`
		Base     *cache.RiskResult `json:"base"`
	}{toPayload(s), base}

	var result cache.RiskResult
	if err := c.call(ctx, "adjust", http.MethodPost, "/v1/risk/adjust", in, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Snippet returns the leaderboard rows around sectorID for a scenario.
func (c *Client) Snippet(ctx context.Context, scenarioID, sectorID string) ([]cache.LeaderboardEntry, error) {
	q := url.Values{}
	q.Set("scenario_id", scenarioID)
	q.Set("sector_id", sectorID)

	var out struct {
		Entries []cache.LeaderboardEntry `json:"entries"`
	}
	if err := c.call(ctx, "leaderboard", http.MethodGet, "/v1/leaderboard?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

func (c *Client) call(ctx context.Context, name, method, path string, in, out any) error {
	meta := observe.OpMeta{Component: "engine", Name: name, Remote: true}
	return c.obs.Instrument(ctx, meta, func(ctx context.Context) error {
		return c.do(ctx, meta, method, path, in, out)
	})
}

func (c *Client) do(ctx context.Context, meta observe.OpMeta, method, path string, in, out any) error {
	if c.baseURL == "" {
		return ErrBaseURLNotSet
	}

	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return eris.Wrap(err, "engine: marshal request")
		}
	}

	retry := resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts:  c.maxAttempts,
		InitialDelay: c.initialDelay,
		Strategy:     resilience.BackoffExponential,
		Jitter:       true,
		RetryIf:      retryable,
		OnRetry: func(attempt int, err error, _ time.Duration) {
			c.obs.Retry(ctx, meta, attempt+1, err)
		},
	})

	body, err := resilience.ExecuteValue(ctx, retry, func(ctx context.Context) ([]byte, error) {
		return c.send(ctx, method, path, payload)
	})
	if err != nil {
		return eris.Wrapf(err, "engine: %s %s", method, path)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "engine: unmarshal response")
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader = http.NoBody
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, eris.Wrap(err, "engine: create request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "engine: read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
