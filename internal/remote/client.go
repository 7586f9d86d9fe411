package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/yatra/internal/model"
)

var _ Adapter = (*Client)(nil)

// Wire paths served by Server and called by Client.
const (
	PathHealth       = "/health"
	PathParticipants = "/v1/participants"
	PathScans        = "/v1/scans"
	PathScansBulk    = "/v1/scans/bulk"
	PathCompletions  = "/v1/completions"
)

const tokenTTL = 5 * time.Minute

// maxErrorBodyBytes bounds how much of a rejection body is read for its message.
const maxErrorBodyBytes = 64 << 10

type participantsResponse struct {
	Participants []model.Participant `json:"participants"`
}

type scansResponse struct {
	Scans []model.ScanRecord `json:"scans"`
}

type bulkRequest struct {
	Scans []model.ScanRecord `json:"scans"`
}

type createResponse struct {
	Accepted bool `json:"accepted"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client talks to a Server over JSON/HTTP.
type Client struct {
	baseURL  string
	http     *http.Client
	secret   []byte
	deviceID string
	now      func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// WithDeviceToken signs a short-lived bearer token for deviceID on every
// request.
func WithDeviceToken(secret []byte, deviceID string) ClientOption {
	return func(c *Client) {
		c.secret = secret
		c.deviceID = deviceID
	}
}

// NewClient returns a Client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ListParticipants(ctx context.Context) ([]model.Participant, error) {
	var resp participantsResponse
	if err := c.do(ctx, http.MethodGet, PathParticipants, nil, &resp); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	if resp.Participants == nil {
		return []model.Participant{}, nil
	}
	return resp.Participants, nil
}

func (c *Client) ListScanRecords(ctx context.Context) ([]model.ScanRecord, error) {
	var resp scansResponse
	if err := c.do(ctx, http.MethodGet, PathScans, nil, &resp); err != nil {
		return nil, fmt.Errorf("list scan records: %w", err)
	}
	if resp.Scans == nil {
		return []model.ScanRecord{}, nil
	}
	return resp.Scans, nil
}

func (c *Client) CreateScanRecord(ctx context.Context, rec model.ScanRecord) (bool, error) {
	var resp createResponse
	if err := c.do(ctx, http.MethodPost, PathScans, rec, &resp); err != nil {
		return false, fmt.Errorf("create scan record: %w", err)
	}
	return resp.Accepted, nil
}

func (c *Client) BulkCreateScanRecords(ctx context.Context, recs []model.ScanRecord) (BulkResult, error) {
	var resp BulkResult
	if err := c.do(ctx, http.MethodPost, PathScansBulk, bulkRequest{Scans: recs}, &resp); err != nil {
		return BulkResult{}, fmt.Errorf("bulk create scan records: %w", err)
	}
	if resp.AcceptedIDs == nil {
		resp.AcceptedIDs = []string{}
	}
	return resp, nil
}

func (c *Client) CreateCompletionEvent(ctx context.Context, ev model.CompletionEvent) error {
	if err := c.do(ctx, http.MethodPost, PathCompletions, ev, nil); err != nil {
		return fmt.Errorf("create completion event: %w", err)
	}
	return nil
}

// do sends one request. Transport failures and 5xx map to ErrUnavailable;
// other non-2xx statuses map to *RejectedError.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if len(c.secret) > 0 {
		tok, err := SignToken(c.secret, c.deviceID, tokenTTL, c.now())
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s: status %d", ErrUnavailable, method, path, resp.StatusCode)
	case resp.StatusCode >= 300:
		var er errorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, maxErrorBodyBytes)).Decode(&er)
		if er.Error == "" {
			er.Error = http.StatusText(resp.StatusCode)
		}
		return &RejectedError{Status: resp.StatusCode, Message: er.Error}
	}

	if out == nil {
		return nil
	}
	// Success bodies are streamed whole. A body cut short in transit is a
	// transport failure and is retried like one.
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
