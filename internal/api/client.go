// Package api is the HTTP client side of the delta-sync contract: cursor
// pulls, batched mutation pushes and attachment uploads, plus the network
// reachability probe that gates every sync attempt.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrUnavailable marks a transient failure (network error, timeout, 5xx).
// Callers treat it as "offline, retry later" rather than a hard error.
var ErrUnavailable = errors.New("api: server unavailable")

// RejectError is a permanent server rejection (4xx). The mutation that
// caused it must not be retried as-is.
type RejectError struct {
	Status  int
	Message string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("api: rejected (%d): %s", e.Status, e.Message)
}

// Mutation is one queued local write shaped for the push endpoint.
type Mutation struct {
	Op       string          `json:"op"`
	EntityID string          `json:"entityId"`
	LocalID  string          `json:"localId,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// PushResult is the server's per-item verdict on a pushed mutation.
type PushResult struct {
	Success bool   `json:"success"`
	LocalID string `json:"localId,omitempty"`
	ID      string `json:"id,omitempty"` // server-assigned id, when it differs
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// UploadResult is the server's verdict on an attachment upload.
type UploadResult struct {
	Success bool   `json:"success"`
	LocalID string `json:"localId,omitempty"`
	Path    string `json:"path,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Client talks the sync HTTP contract against the backend.
type Client struct {
	http *resty.Client
	log  *zap.Logger
}

// NewClient builds a client for the given base URL. The token, when set, is
// sent as a bearer credential on every request.
func NewClient(baseURL, token string, log *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if token != "" {
		httpClient.SetAuthToken(token)
	}
	return &Client{http: httpClient, log: log}
}

// Pull fetches the records at endpoint whose cursor is past since, scoped by
// the extra query params. Records come back raw; the entity adapter owns
// decoding.
func (c *Client) Pull(ctx context.Context, endpoint, since string, extra url.Values) ([]json.RawMessage, error) {
	req := c.http.R().SetContext(ctx)
	if since != "" {
		req.SetQueryParam("since", since)
	}
	for key, values := range extra {
		for _, v := range values {
			req.SetQueryParam(key, v)
		}
	}

	resp, err := req.Get(endpoint)
	if err != nil {
		c.log.Warn("pull failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, fmt.Errorf("pull %s: %w", endpoint, ErrUnavailable)
	}
	if err := classify(resp); err != nil {
		c.log.Warn("pull rejected", zap.String("endpoint", endpoint), zap.Int("status", resp.StatusCode()))
		return nil, err
	}

	var records []json.RawMessage
	if err := json.Unmarshal(resp.Body(), &records); err != nil {
		return nil, fmt.Errorf("api: decode pull response from %s: %w", endpoint, err)
	}
	return records, nil
}

// Push sends a batch of mutations and returns the per-item results so mixed
// success/failure within one batch can be applied.
func (c *Client) Push(ctx context.Context, endpoint string, mutations []Mutation) ([]PushResult, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(mutations).
		Post(endpoint)
	if err != nil {
		c.log.Warn("push failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, fmt.Errorf("push %s: %w", endpoint, ErrUnavailable)
	}
	if err := classify(resp); err != nil {
		return nil, err
	}

	var results []PushResult
	if err := json.Unmarshal(resp.Body(), &results); err != nil {
		return nil, fmt.Errorf("api: decode push response from %s: %w", endpoint, err)
	}
	return results, nil
}

// Upload sends one attachment body (metadata plus base64 content).
func (c *Client) Upload(ctx context.Context, endpoint string, body interface{}) (*UploadResult, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(endpoint)
	if err != nil {
		c.log.Warn("upload failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, fmt.Errorf("upload %s: %w", endpoint, ErrUnavailable)
	}
	if err := classify(resp); err != nil {
		return nil, err
	}

	var result UploadResult
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("api: decode upload response from %s: %w", endpoint, err)
	}
	return &result, nil
}

// classify maps an HTTP response to the error taxonomy: 2xx nil, 5xx
// transient, 4xx permanent.
func classify(resp *resty.Response) error {
	code := resp.StatusCode()
	switch {
	case code >= 200 && code < 300:
		return nil
	case code >= 500:
		return fmt.Errorf("status %d: %w", code, ErrUnavailable)
	default:
		return &RejectError{Status: code, Message: string(resp.Body())}
	}
}
