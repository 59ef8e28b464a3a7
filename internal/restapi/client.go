// Package restapi fetches JSON payloads from simple REST endpoints and
// buffers them for later lookup or persistence.
package restapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/webharvest/internal/keyed"
)

// Client talks to one API base URL. When APIKey is set it is sent as the
// api_key query parameter on every request.
type Client struct {
	base    *url.URL
	apiKey  string
	headers map[string]string
	http    *http.Client
	buffer  *keyed.Store[any]
}

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string
	Headers map[string]string
	Timeout time.Duration
}

// New creates a Client for the given base URL.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, eris.Wrapf(err, "restapi: parse base url %q", opts.BaseURL)
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		base:    base,
		apiKey:  opts.APIKey,
		headers: opts.Headers,
		http:    &http.Client{Timeout: opts.Timeout},
		buffer:  keyed.New[any](),
	}, nil
}

// EndpointData GETs endpoint resolved against the base URL and decodes the
// JSON body. The decoded payload is also ingested into the client's buffer:
// array elements in order, object values under their own keys. Non-200
// responses are logged with the response body and returned as errors.
func (c *Client) EndpointData(ctx context.Context, endpoint string, params map[string]string) (any, error) {
	target, err := c.base.Parse(endpoint)
	if err != nil {
		return nil, eris.Wrapf(err, "restapi: resolve endpoint %q", endpoint)
	}

	q := target.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}
	target.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "restapi: create request")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "restapi: GET %s", target.String())
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "restapi: read body")
	}

	if resp.StatusCode != http.StatusOK {
		zap.L().Error("endpoint request failed",
			zap.String("url", target.String()),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return nil, eris.Errorf("restapi: status %d from %s", resp.StatusCode, target.String())
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, eris.Wrap(err, "restapi: decode response")
	}

	c.ingest(payload)
	return payload, nil
}

func (c *Client) ingest(payload any) {
	switch v := payload.(type) {
	case []any:
		c.buffer.Ingest(v)
	case map[string]any:
		for k, val := range v {
			c.buffer.Set(k, val)
		}
	default:
		c.buffer.Ingest([]any{v})
	}
}

// Buffer exposes the accumulated payload buffer.
func (c *Client) Buffer() *keyed.Store[any] {
	return c.buffer
}
