package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonwraymond/scenariocache/observe"
	"github.com/jonwraymond/scenariocache/resilience"
)

// Default client settings.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 2
	DefaultRetryDelay = 100 * time.Millisecond
)

// Config holds the store connection settings.
type Config struct {
	// BaseURL is the store root, e.g. https://store.example/v1. Required
	// before any call is made.
	BaseURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Timeout bounds each individual attempt.
	// Default: 10s
	Timeout time.Duration

	// MaxRetries is the number of additional attempts after a transient
	// failure. Zero disables retries.
	MaxRetries int

	// RetryDelay is the constant wait between attempts.
	// Default: 100ms
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with the default timeout and retry budget.
func DefaultConfig() Config {
	return Config{
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		RetryDelay: DefaultRetryDelay,
	}
}

// Option configures a Client.
type Option func(*Client)

// WithTransport replaces the default HTTP transport.
func WithTransport(t Transporter) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithMiddleware instruments every call with tracing, metrics and logging.
func WithMiddleware(mw *observe.Middleware) Option {
	return func(c *Client) {
		c.obs = mw
	}
}

// WithCircuitBreaker fails calls fast while the store keeps failing. Only
// transient failures count against the breaker; cfg.IsFailure is replaced.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *Client) {
		cfg.IsFailure = func(err error) bool { return KindOf(err) == KindTransient }
		c.breaker = resilience.NewCircuitBreaker(cfg)
	}
}

// WithRateLimiter bounds the rate of logical calls. A rejected call is
// reported as KindUnavailable.
func WithRateLimiter(rl *resilience.RateLimiter) Option {
	return func(c *Client) {
		c.limiter = rl
	}
}

// Client talks to the document store.
//
// A Client holds no per-call state and is safe for concurrent use.
type Client struct {
	cfg       Config
	baseURL   string
	baseErr   error
	transport Transporter
	obs       *observe.Middleware
	breaker   *resilience.CircuitBreaker
	limiter   *resilience.RateLimiter
	executor  *resilience.Executor
}

// NewClient creates a client. A missing or malformed base URL is not
// reported here; every call fails with KindConfiguration instead.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	c := &Client{cfg: cfg}
	c.baseURL, c.baseErr = parseBaseURL(cfg.BaseURL)

	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = NewHTTPTransport(nil)
	}
	if c.obs == nil {
		c.obs = observe.NewNopMiddleware()
	}

	retry := resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts:  cfg.MaxRetries + 1,
		InitialDelay: cfg.RetryDelay,
		Strategy:     resilience.BackoffConstant,
		RetryIf:      func(err error) bool { return KindOf(err) == KindTransient },
	})
	execOpts := []resilience.ExecutorOption{resilience.WithRetry(retry)}
	if c.breaker != nil {
		execOpts = append(execOpts, resilience.WithCircuitBreaker(c.breaker))
	}
	if c.limiter != nil {
		execOpts = append(execOpts, resilience.WithRateLimiter(c.limiter))
	}
	c.executor = resilience.NewExecutor(execOpts...)

	return c
}

func parseBaseURL(raw string) (string, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return "", ErrBaseURLNotSet
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("docstore: invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("docstore: invalid base URL %q: scheme and host are required", raw)
	}
	return raw, nil
}

// State reports the circuit breaker state, or closed when none is configured.
func (c *Client) State() resilience.State {
	if c.breaker == nil {
		return resilience.StateClosed
	}
	return c.breaker.State()
}

// Config returns the effective client configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Create inserts doc into collection and decodes the stored document into
// out. out may be nil.
func (c *Client) Create(ctx context.Context, collection string, doc, out any) error {
	return c.instrument(ctx, "create", collection, func(ctx context.Context) error {
		resp, err := c.do(ctx, "create", http.MethodPost, collection, "", "documents", doc)
		if err != nil {
			return err
		}
		return decode(resp, out, "create", collection, "")
	})
}

// Get fetches a document by id. A 404 is reported as found == false with a
// nil error; every other failure is an error.
func (c *Client) Get(ctx context.Context, collection, id string, out any) (bool, error) {
	found := false
	err := c.instrument(ctx, "get", collection, func(ctx context.Context) error {
		resp, err := c.do(ctx, "get", http.MethodGet, collection, id, "documents", nil)
		if IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return decode(resp, out, "get", collection, id)
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// Query runs a server-side filtered search. The result shape belongs to the
// store and is decoded into out as-is.
func (c *Client) Query(ctx context.Context, collection string, filters, out any) error {
	return c.instrument(ctx, "query", collection, func(ctx context.Context) error {
		resp, err := c.do(ctx, "query", http.MethodPost, collection, "", "query", filters)
		if err != nil {
			return err
		}
		return decode(resp, out, "query", collection, "")
	})
}

// Update merges patch into an existing document.
func (c *Client) Update(ctx context.Context, collection, id string, patch, out any) error {
	return c.instrument(ctx, "update", collection, func(ctx context.Context) error {
		resp, err := c.do(ctx, "update", http.MethodPatch, collection, id, "documents", patch)
		if err != nil {
			return err
		}
		return decode(resp, out, "update", collection, id)
	})
}

// Upsert creates or fully replaces the document with the given id.
func (c *Client) Upsert(ctx context.Context, collection, id string, doc, out any) error {
	return c.instrument(ctx, "upsert", collection, func(ctx context.Context) error {
		resp, err := c.do(ctx, "upsert", http.MethodPut, collection, id, "documents", doc)
		if err != nil {
			return err
		}
		return decode(resp, out, "upsert", collection, id)
	})
}

// Ping checks that the store answers. Any 2xx or 404 counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.instrument(ctx, "ping", "", func(ctx context.Context) error {
		_, err := c.do(ctx, "ping", http.MethodGet, "_health", "_ping", "documents", nil)
		if err != nil && !IsNotFound(err) {
			return err
		}
		return nil
	})
}

func (c *Client) instrument(ctx context.Context, op, collection string, fn func(context.Context) error) error {
	return c.obs.Instrument(ctx, observe.OpMeta{Component: "docstore", Name: op, Target: collection, Remote: true}, fn)
}

// do issues one logical call, retrying transient failures.
func (c *Client) do(ctx context.Context, op, method, collection, id, resource string, body any) (*Response, error) {
	newErr := func(kind Kind, status int, cause error) *Error {
		return &Error{Kind: kind, Op: op, Collection: collection, ID: id, StatusCode: status, Cause: cause}
	}

	if c.baseErr != nil {
		return nil, newErr(KindConfiguration, 0, c.baseErr)
	}
	if collection == "" {
		return nil, newErr(KindRequest, 0, ErrEmptyCollection)
	}
	if resource == "documents" && id == "" && method != http.MethodPost {
		return nil, newErr(KindRequest, 0, ErrEmptyID)
	}

	req := &Request{
		Method: method,
		URL:    c.url(collection, resource, id),
		Header: c.headers(),
	}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, newErr(KindRequest, 0, fmt.Errorf("encode body: %w", err))
		}
		req.Body = payload
	}

	meta := observe.OpMeta{Component: "docstore", Name: op, Target: collection, Remote: true}
	var (
		resp    *Response
		attempt int
		lastErr error
	)
	err := c.executor.Execute(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			c.obs.Retry(ctx, meta, attempt, lastErr)
		}
		r, err := c.attempt(ctx, req, newErr)
		lastErr = err
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, c.classify(err, newErr)
	}
	return resp, nil
}

// attempt sends req once and maps the answer onto the error taxonomy.
func (c *Client) attempt(ctx context.Context, req *Request, newErr func(Kind, int, error) *Error) (*Response, error) {
	resp, err := c.transport.Send(ctx, req, c.cfg.Timeout)
	if err != nil {
		if ctx.Err() != nil {
			// The caller gave up; another attempt cannot succeed.
			return nil, newErr(KindUnavailable, 0, ctx.Err())
		}
		return nil, newErr(KindTransient, 0, err)
	}

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return resp, nil
	case code == http.StatusNotFound:
		return nil, newErr(KindNotFound, code, nil)
	case isTransientStatus(code):
		return nil, newErr(KindTransient, code, fmt.Errorf("upstream status %d", code))
	default:
		return nil, newErr(KindRequest, code, responseCause(resp))
	}
}

// classify converts what the executor returned into a *Error.
func (c *Client) classify(err error, newErr func(Kind, int, error) *Error) error {
	var exhausted *resilience.ExhaustedError
	switch {
	case errors.As(err, &exhausted):
		return newErr(KindUnavailable, StatusCodeOf(exhausted.Err), exhausted.Err)
	case KindOf(err) != KindUnknown:
		return err
	default:
		// Open circuit, rate limit rejection, or ctx done between attempts.
		return newErr(KindUnavailable, 0, err)
	}
}

func (c *Client) url(collection, resource, id string) string {
	u := c.baseURL + "/collections/" + url.PathEscape(collection) + "/" + resource
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	return u
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		h.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	return h
}

// decode unmarshals a 2xx body into out. An empty body leaves out untouched.
func decode(resp *Response, out any, op, collection, id string) error {
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &Error{
			Kind:       KindRequest,
			Op:         op,
			Collection: collection,
			ID:         id,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

// responseCause extracts a short message from an error body.
func responseCause(resp *Response) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(resp.Body, &body) == nil {
		if body.Error != "" {
			return errors.New(body.Error)
		}
		if body.Message != "" {
			return errors.New(body.Message)
		}
	}
	return fmt.Errorf("upstream status %d", resp.StatusCode)
}
