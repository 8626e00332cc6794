package mailvendor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/postcard/backend/internal/domain/fulfillment"
)

// exchange is the raw record of one HTTP round trip, kept for the audit log
type exchange struct {
	Method       string
	Endpoint     string
	RequestBody  []byte
	ResponseBody []byte
	StatusCode   int
	Started      time.Time
}

// Client is a thin REST client for the vendor's postcard API
type Client struct {
	config     *Config
	httpClient *http.Client
}

// NewClient creates a client with the given configuration
func NewClient(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// createPostcard submits a postcard. The idempotency key makes a retried
// request return the original postcard instead of creating another.
func (c *Client) createPostcard(ctx context.Context, req *postcardRequest, idempotencyKey string) (*postcardResponse, *exchange, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("mailvendor: failed to encode request: %w", err)
	}
	headers := map[string]string{"Content-Type": "application/json"}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}
	return c.do(ctx, http.MethodPost, "/postcards", body, headers)
}

// getPostcard fetches a postcard by its vendor id
func (c *Client) getPostcard(ctx context.Context, id string) (*postcardResponse, *exchange, error) {
	return c.do(ctx, http.MethodGet, "/postcards/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, headers map[string]string) (*postcardResponse, *exchange, error) {
	ex := &exchange{Method: method, Endpoint: endpoint, RequestBody: body, Started: time.Now()}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+endpoint, reader)
	if err != nil {
		return nil, ex, fmt.Errorf("mailvendor: failed to create request: %w", err)
	}
	req.SetBasicAuth(c.config.APIKey, "")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ex, fmt.Errorf("mailvendor: request failed: %w", err)
	}
	defer resp.Body.Close()

	ex.StatusCode = resp.StatusCode
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseSize))
	if err != nil {
		return nil, ex, fmt.Errorf("mailvendor: failed to read response: %w", err)
	}
	ex.ResponseBody = respBody

	if resp.StatusCode >= 400 {
		return nil, ex, decodeError(resp.StatusCode, respBody)
	}

	var pc postcardResponse
	if err := json.Unmarshal(respBody, &pc); err != nil {
		return nil, ex, fmt.Errorf("mailvendor: failed to parse response: %w", err)
	}
	if pc.ID == "" {
		return nil, ex, fmt.Errorf("mailvendor: response has no postcard id")
	}
	return &pc, ex, nil
}

// decodeError turns an error response into a typed VendorError
func decodeError(status int, body []byte) error {
	ve := &fulfillment.VendorError{StatusCode: status, Message: http.StatusText(status)}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Error.Message != "" {
			ve.Message = env.Error.Message
		}
		ve.Code = env.Error.Code
		if env.Error.StatusCode != 0 {
			ve.StatusCode = env.Error.StatusCode
		}
	}
	return ve
}
