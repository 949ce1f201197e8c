package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// ClientConfig configures the shared upstream HTTP client
type ClientConfig struct {
	Timeout      time.Duration // per attempt
	UserAgent    string
	HostInterval time.Duration // minimum spacing between calls to one host
}

// Client is the HTTP client every provider uses. It sets a browser
// user-agent, bounds each call by a timeout and paces calls per host.
type Client struct {
	http     *resty.Client
	interval time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient creates a new upstream client
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json, text/html;q=0.9, */*;q=0.8").
		SetHeader("Accept-Language", "zh-TW,zh;q=0.9,en-US;q=0.8,en;q=0.7")
	if cfg.UserAgent != "" {
		c.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &Client{
		http:     c,
		interval: cfg.HostInterval,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Get performs one GET and returns the body of a 2xx response
func (c *Client) Get(ctx context.Context, providerName, rawURL string, query map[string]string) ([]byte, error) {
	if err := c.wait(ctx, rawURL); err != nil {
		return nil, NewProviderError(providerName, "TIMEOUT", "pacing wait aborted", fmt.Errorf("%w: %v", ErrTimeout, err))
	}

	req := c.http.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Get(rawURL)
	if err != nil {
		if isTimeout(err) {
			return nil, NewProviderError(providerName, "TIMEOUT", "request timed out", fmt.Errorf("%w: %v", ErrTimeout, err))
		}
		return nil, NewProviderError(providerName, "NETWORK_ERROR", "request failed", fmt.Errorf("%w: %v", ErrNetworkError, err))
	}

	status := resp.StatusCode()
	switch {
	case status == http.StatusNotFound:
		return nil, NewProviderError(providerName, "NOT_FOUND", "upstream returned 404", ErrNotFound)
	case status == http.StatusTooManyRequests:
		return nil, NewProviderError(providerName, "RATE_LIMIT", "upstream throttled the request", ErrBadStatus)
	case status >= 500:
		return nil, NewProviderError(providerName, "SERVER_ERROR", fmt.Sprintf("upstream returned %d", status), ErrBadStatus)
	case status < 200 || status >= 300:
		return nil, NewProviderError(providerName, "BAD_STATUS", fmt.Sprintf("upstream returned %d", status), ErrBadStatus)
	}
	return resp.Body(), nil
}

func (c *Client) wait(ctx context.Context, rawURL string) error {
	if c.interval <= 0 {
		return nil
	}
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}

	c.mu.Lock()
	limiter, ok := c.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(c.interval), 1)
		c.limiters[host] = limiter
	}
	c.mu.Unlock()

	return limiter.Wait(ctx)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
