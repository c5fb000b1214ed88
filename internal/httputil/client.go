// Package httputil is the seam between outbound HTTP collaborators (the
// plate OCR service) and tests that need to script their responses.
package httputil

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

// HTTPClient is the request executor collaborator clients depend on. Wire a
// StandardClient in production; tests substitute a ReplayClient.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StandardClient adapts *http.Client to HTTPClient.
type StandardClient struct {
	client *http.Client
}

// NewStandardClient wraps c, falling back to http.DefaultClient when nil.
func NewStandardClient(c *http.Client) *StandardClient {
	if c == nil {
		c = http.DefaultClient
	}
	return &StandardClient{client: c}
}

func (c *StandardClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

// ReplayClient records outgoing requests and answers them from a queue of
// canned responses. Once the queue drains it returns empty 200s.
type ReplayClient struct {
	mu       sync.Mutex
	requests []*http.Request
	queue    []canned
}

type canned struct {
	status int
	body   string
	err    error
}

// NewReplayClient returns an empty replay client.
func NewReplayClient() *ReplayClient {
	return &ReplayClient{}
}

// Queue appends a canned response and returns the client for chaining.
func (c *ReplayClient) Queue(status int, body string) *ReplayClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, canned{status: status, body: body})
	return c
}

// QueueError appends a transport-level failure.
func (c *ReplayClient) QueueError(err error) *ReplayClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, canned{err: err})
	return c
}

func (c *ReplayClient) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, req)

	next := canned{status: http.StatusOK}
	if len(c.queue) > 0 {
		next = c.queue[0]
		c.queue = c.queue[1:]
	}
	if next.err != nil {
		return nil, next.err
	}
	return &http.Response{
		StatusCode: next.status,
		Body:       io.NopCloser(bytes.NewBufferString(next.body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// Request returns the nth recorded request, or nil when out of range.
func (c *ReplayClient) Request(n int) *http.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 0 || n >= len(c.requests) {
		return nil
	}
	return c.requests[n]
}

// RequestCount returns how many requests were executed.
func (c *ReplayClient) RequestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}
