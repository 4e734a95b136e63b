package docstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request is one store call as it goes over the wire.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the status and raw body of a store answer.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transporter sends a request and returns the store's answer.
//
// Contract:
//   - Any status code, including 4xx and 5xx, is a Response, not an error.
//   - A returned error means no usable answer arrived (connection refused,
//     reset, timeout, unreadable body).
//   - Send must not mutate req; the client resends the same value on retry.
//   - Implementations must be safe for concurrent use.
type Transporter interface {
	Send(ctx context.Context, req *Request, timeout time.Duration) (*Response, error)
}

// HTTPTransport sends requests with a net/http client.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport returns a transport backed by client, or by a default
// client when nil. Per-attempt timeouts come from Send, not client.Timeout.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{client: client}
}

// Send implements Transporter.
func (t *HTTPTransport) Send(ctx context.Context, req *Request, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	hreq.Header = req.Header.Clone()
	if hreq.Header == nil {
		hreq.Header = http.Header{}
	}

	resp, err := t.client.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: raw}, nil
}

var _ Transporter = (*HTTPTransport)(nil)
