// Package upstream sends intercepted requests to the Initiative backend
// origin and returns the live response. A transport error here is the
// "rejected fetch" the cache controller's network-first policies recover
// from.
package upstream

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TransportConfig configures the HTTP transport
type TransportConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ExpectContinueTimeout time.Duration

	InsecureSkipVerify bool
	ForceHTTP2         bool
}

// DefaultTransportConfig provides default transport settings
var DefaultTransportConfig = TransportConfig{
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	DialTimeout:           30 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceHTTP2:            true,
}

// NewTransport creates a new HTTP transport with the given configuration
func NewTransport(cfg TransportConfig) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout: cfg.ExpectContinueTimeout,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
		ForceAttemptHTTP2:     cfg.ForceHTTP2,
	}
}

// Client forwards requests to the configured backend origin.
type Client struct {
	origin    *url.URL
	transport http.RoundTripper
	timeout   time.Duration
}

// Config holds upstream client configuration
type Config struct {
	// Origin is the backend base URL, e.g. "https://api.initiative.app".
	Origin string
	// Transport overrides the default transport (used by tests).
	Transport http.RoundTripper
	// Timeout bounds a single fetch when the incoming context carries no
	// deadline of its own.
	Timeout time.Duration
}

// New creates an upstream client for the given origin.
func New(cfg Config) (*Client, error) {
	origin, err := url.Parse(cfg.Origin)
	if err != nil {
		return nil, err
	}

	transport := cfg.Transport
	if transport == nil {
		transport = NewTransport(DefaultTransportConfig)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		origin:    origin,
		transport: transport,
		timeout:   timeout,
	}, nil
}

// Origin returns the configured backend base URL.
func (c *Client) Origin() string {
	return c.origin.String()
}

// Fetch forwards the request to the origin and returns the live response.
// The returned response's Body must be closed by the caller. Any transport
// error is returned as-is; the caller decides whether a cache fallback
// applies.
func (c *Client) Fetch(r *http.Request) (*http.Response, error) {
	ctx := r.Context()
	cancel := context.CancelFunc(func() {})
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	resp, err := c.transport.RoundTrip(c.buildRequest(ctx, r))
	if err != nil {
		cancel()
		return nil, err
	}
	// Tie cancellation to body consumption.
	resp.Body = &cancelOnCloseBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// FetchPath fetches an absolute path from the origin outside of any
// intercepted request (install-time precaching, reachability probes).
func (c *Client) FetchPath(ctx context.Context, path string) (*http.Response, error) {
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return c.transport.RoundTrip(c.buildRequest(ctx, r))
}

// buildRequest creates the request to send to the origin.
func (c *Client) buildRequest(ctx context.Context, r *http.Request) *http.Request {
	targetURL := *c.origin
	targetURL.Path = singleJoiningSlash(c.origin.Path, r.URL.Path)
	targetURL.RawQuery = r.URL.RawQuery

	req := (&http.Request{
		Method:        r.Method,
		URL:           &targetURL,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Body:          r.Body,
		ContentLength: r.ContentLength,
		Host:          c.origin.Host,
	}).WithContext(ctx)

	req.Header = make(http.Header, len(r.Header)+3)
	for k, vv := range r.Header {
		req.Header[k] = vv
	}

	// Set X-Forwarded headers
	if clientIP := extractClientIP(r); clientIP != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+clientIP)
		} else {
			req.Header.Set("X-Forwarded-For", clientIP)
		}
	}
	if r.TLS != nil {
		req.Header.Set("X-Forwarded-Proto", "https")
	} else {
		req.Header.Set("X-Forwarded-Proto", "http")
	}
	if r.Host != "" {
		req.Header.Set("X-Forwarded-Host", r.Host)
	}

	removeHopHeaders(req.Header)

	return req
}

type cancelOnCloseBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnCloseBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func extractClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Hop-by-hop headers that should be removed
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func removeHopHeaders(header http.Header) {
	for _, h := range hopHeaders {
		header.Del(h)
	}
}

// singleJoiningSlash joins two URL paths with a single slash
func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
