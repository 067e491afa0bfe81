package api

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Options configures a Client
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration // submissions and reads; the event stream has no deadline
	StreamPath string
}

// Client talks to the remote media processing API
type Client struct {
	baseURL    string
	streamPath string
	http       *resty.Client // submissions, never retried
	reads      *resty.Client // idempotent GETs, retried on 429/5xx
	stream     *resty.Client // long-lived event stream
}

// NewClient creates a new API client
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.StreamPath == "" {
		opts.StreamPath = "/events"
	}

	client := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		streamPath: opts.StreamPath,
	}

	client.http = newRestyClient(opts.Token).
		SetTimeout(opts.Timeout)

	client.reads = newRestyClient(opts.Token).
		SetTimeout(opts.Timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Retry on 429 (Too Many Requests) and 5xx server errors
			if r == nil {
				return false
			}
			return r.StatusCode() == 429 || (r.StatusCode() >= 500 && r.StatusCode() <= 504)
		})

	client.stream = newRestyClient(opts.Token)

	return client
}

func newRestyClient(token string) *resty.Client {
	c := resty.New().
		SetHeader("User-Agent", "mediadesk/1.0")
	if token != "" {
		c.SetAuthToken(token)
	}
	return c
}

// BaseURL returns the API root used to resolve relative download links
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health reports whether GET /api/health answers with a 2xx
func (c *Client) Health(ctx context.Context) (bool, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(c.buildURL("api/health"))
	if err != nil {
		return false, fmt.Errorf("failed to reach backend: %w", err)
	}
	return resp.IsSuccess(), nil
}

// OpenEventStream opens the server-sent progress stream. The caller closes the body.
func (c *Client) OpenEventStream(ctx context.Context) (io.ReadCloser, error) {
	resp, err := c.stream.R().
		SetContext(ctx).
		SetHeader("Accept", "text/event-stream").
		SetHeader("Cache-Control", "no-cache").
		SetDoNotParseResponse(true).
		Get(c.buildURL(c.streamPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}
	body := resp.RawBody()
	if !resp.IsSuccess() {
		if body != nil {
			body.Close()
		}
		return nil, fmt.Errorf("failed to open event stream: %s", resp.Status())
	}
	return body, nil
}

// buildURL constructs the full URL for an endpoint
func (c *Client) buildURL(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "/")
	return fmt.Sprintf("%s/%s", c.baseURL, endpoint)
}
