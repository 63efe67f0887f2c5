package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Timeout bounds a single callback delivery, connection through response.
const Timeout = 10 * time.Second

// Client posts JSON payloads to callback URLs. One request per Post, no retry.
type Client struct {
	http         *http.Client
	timeout      time.Duration
	blockPrivate bool
	lookupHost   func(ctx context.Context, host string) ([]string, error)
}

// Option configures a Client.
type Option func(*Client)

// WithBlockPrivate rejects callback hosts that resolve to loopback, private,
// link-local or unspecified addresses.
func WithBlockPrivate(block bool) Option {
	return func(c *Client) { c.blockPrivate = block }
}

// WithHTTPClient overrides the underlying HTTP client. Redirects are never
// followed, whatever the client's CheckRedirect says.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New builds a Client with the fixed delivery timeout.
func New(opts ...Option) *Client {
	c := &Client{
		http:       &http.Client{},
		timeout:    Timeout,
		lookupHost: net.DefaultResolver.LookupHost,
	}
	for _, o := range opts {
		o(c)
	}
	// A 3xx is returned as is so it counts as a failed delivery and a
	// redirect can never reach a host validateURL has not seen.
	hc := *c.http
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	c.http = &hc
	return c
}

// Post sends payload to callbackURL and returns an error for transport
// failures, timeouts and non-2xx responses.
func (c *Client) Post(ctx context.Context, callbackURL string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.blockPrivate {
		if err := c.validateURL(ctx, callbackURL); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	}
	return nil
}

// validateURL blocks non-HTTP schemes and private/internal IP ranges.
func (c *Client) validateURL(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	ips, err := c.lookupHost(ctx, u.Hostname())
	if err != nil {
		return fmt.Errorf("DNS lookup failed: %w", err)
	}

	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip == nil {
			continue
		}
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return fmt.Errorf("private/internal IP blocked: %s", ipStr)
		}
	}

	return nil
}
