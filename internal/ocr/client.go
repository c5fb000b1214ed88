// Package ocr is the HTTP client for the external plate OCR collaborator.
// The pipeline's plate resolver calls it through a traffic.OCRFunc; errors
// and empty reads are "no evidence this frame", so this client never needs
// retries of its own.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/banshee-data/violation.report/internal/httputil"
	"github.com/banshee-data/violation.report/internal/traffic"
)

// readRequest is the OCR service request payload: which frame, and where in
// it the plate crop sits.
type readRequest struct {
	StreamID   string       `json:"stream_id,omitempty"`
	FrameIndex int64        `json:"frame_index"`
	BBox       traffic.BBox `json:"bbox"`
}

// readResponse is the OCR service reply.
type readResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Client reads plate crops through a remote OCR service.
type Client struct {
	baseURL  string
	streamID string
	http     httputil.HTTPClient
	timeout  time.Duration
}

// Option adjusts a Client.
type Option func(*Client)

// WithHTTPClient swaps the transport, mainly for tests.
func WithHTTPClient(c httputil.HTTPClient) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTimeout bounds each read call. Zero leaves the context's deadline in
// charge.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.timeout = d }
}

// WithStreamID tags requests with the originating stream so the OCR service
// can locate the frame.
func WithStreamID(id string) Option {
	return func(cl *Client) { cl.streamID = id }
}

// NewClient builds a client for the OCR service at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("ocr client requires a base URL")
	}
	c := &Client{
		baseURL: baseURL,
		http:    httputil.NewStandardClient(nil),
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ReadPlate asks the OCR service to read the plate crop at box in the given
// frame. An HTTP or decode failure is returned as an error; the resolver
// treats it as no evidence and retries on a later frame.
func (c *Client) ReadPlate(ctx context.Context, frameIndex int64, box traffic.BBox) (string, float64, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(readRequest{StreamID: c.streamID, FrameIndex: frameIndex, BBox: box})
	if err != nil {
		return "", 0, fmt.Errorf("failed to encode OCR request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ocr/read", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("failed to build OCR request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("OCR request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", 0, fmt.Errorf("OCR service returned status %d", resp.StatusCode)
	}

	var decoded readResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", 0, fmt.Errorf("failed to decode OCR response: %w", err)
	}
	return decoded.Text, decoded.Confidence, nil
}

// Func adapts the client to the pipeline's OCR hook.
func (c *Client) Func() traffic.OCRFunc {
	return c.ReadPlate
}
