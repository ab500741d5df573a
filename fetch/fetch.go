// Package fetch retrieves raw page content over HTTP with retries and capped
// exponential backoff.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

var ErrStatus = fmt.Errorf("HTTP status code not ok")

const defaultUserAgent = "SiteWatch/1.0 (+https://gitlab.com/henri.philipps/sitewatch)"
const defaultAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// Fetcher retrieves the raw content of a URL. The orchestrator only depends
// on this interface, so fetching stays replaceable in tests and deployments.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Client is an HTTP Fetcher. A request is retried on any error, waiting
// between attempts with capped exponential backoff.
type Client struct {
	http      *http.Client
	retries   int
	userAgent string
	backoff   func(attempt int) time.Duration
}

// compile time check of interface implementation
var _ Fetcher = &Client{}

// NewClient returns a Client with sane defaults: 20s timeout, 2 retries.
func NewClient(opts ...Opt) *Client {
	c := &Client{
		http:      &http.Client{Timeout: 20 * time.Second},
		retries:   2,
		userAgent: defaultUserAgent,
		backoff:   defaultBackoff,
	}

	for _, o := range opts {
		o(c)
	}

	return c
}

// Opt is a type representing functional Client options.
type Opt func(*Client)

// WithTimeout is setting the overall per-request timeout of the client.
func WithTimeout(timeout time.Duration) Opt {
	return func(c *Client) {
		c.http.Timeout = timeout
	}
}

// WithRetries is setting how often a failed request is retried.
func WithRetries(retries int) Opt {
	return func(c *Client) {
		c.retries = retries
	}
}

// WithUserAgent is setting the User-Agent header sent with each request.
func WithUserAgent(ua string) Opt {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Opt {
	return func(c *Client) {
		c.http = hc
	}
}

// Fetch gets the URL, retrying according to the client's retry policy. The
// context bounds all attempts including the backoff sleeps.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff(attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		body, err := c.get(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", defaultAccept)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return body, err
	}

	if resp.StatusCode >= 400 {
		return body, fmt.Errorf("fetch %s: status code %d: %w", url, resp.StatusCode, ErrStatus)
	}

	return body, nil
}

func defaultBackoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * 500 * time.Millisecond
	if d > 4*time.Second {
		d = 4 * time.Second
	}
	return d
}
