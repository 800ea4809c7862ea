// Package transport is the HTTP transport capability consumed contract of
// §6: connect/total timeouts, TLS floor, redirect policy, a single proxy
// URL, and streaming Range support. It has no min-speed watchdog (the
// MinSpeed* and NoProxyList Config fields are not read), no certificate
// pinning or root-certificate installation, no socket tagging, and no
// cancellation reporting. spec.md models HTTP
// itself as opaque; this package is the concrete (but swappable) shape
// that satisfies that contract, grounded on the teacher's
// internal/core/engine.go custom *http.Transport construction.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Config configures one Client per §6.
type Config struct {
	ConnectTimeout time.Duration
	TotalTimeout   time.Duration

	MinSpeedBytesPerSec int64
	MinSpeedInterval    time.Duration

	TLSMinVersion uint16

	// RedirectPolicy is "none" or "limited"; limited allows up to
	// MaxRedirects hops.
	RedirectPolicy string
	MaxRedirects   int

	ProxyURL    string
	NoProxyList []string

	// RedirectInterceptor is consulted before each redirect hop; it can
	// veto a hop (e.g. to enforce domain policy) by returning an error.
	RedirectInterceptor func(req *http.Request, via []*http.Request) error
}

// DefaultConfig matches the teacher's NewEngine transport defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 30 * time.Second,
		TotalTimeout:   0,
		TLSMinVersion:  tls.VersionTLS12,
		RedirectPolicy: "limited",
		MaxRedirects:   10,
	}
}

type redirectInterceptorKey struct{}

// WithRedirectInterceptor attaches a per-request redirect veto to ctx,
// consulted by CheckRedirect in place of the Config-level RedirectInterceptor.
// Lets a single shared Client enforce a per-task redirect policy (e.g. the
// task's RedirectAllowed flag and a domain re-check per hop) without
// reconstructing a Client per task.
func WithRedirectInterceptor(ctx context.Context, fn func(req *http.Request, via []*http.Request) error) context.Context {
	return context.WithValue(ctx, redirectInterceptorKey{}, fn)
}

func redirectInterceptorFromContext(ctx context.Context) (func(req *http.Request, via []*http.Request) error, bool) {
	fn, ok := ctx.Value(redirectInterceptorKey{}).(func(req *http.Request, via []*http.Request) error)
	return fn, ok
}

// Client wraps *http.Client with the behaviors §6 requires.
type Client struct {
	http   *http.Client
	cfg    Config
	cancel map[string]context.CancelFunc
}

// New builds a Client from cfg, grounded on the teacher's custom
// http.Transport (DialContext/MaxIdleConnsPerHost/TLSHandshakeTimeout/
// DisableCompression).
func New(cfg Config) (*Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		DisableCompression:    true,
		TLSClientConfig:       &tls.Config{MinVersion: cfg.TLSMinVersion},
	}

	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("transport: invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   cfg.TotalTimeout,
	}

	httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if cfg.RedirectPolicy == "none" {
			return http.ErrUseLastResponse
		}
		if cfg.MaxRedirects > 0 && len(via) >= cfg.MaxRedirects {
			return fmt.Errorf("transport: stopped after %d redirects", cfg.MaxRedirects)
		}
		if interceptor, ok := redirectInterceptorFromContext(req.Context()); ok {
			return interceptor(req, via)
		}
		if cfg.RedirectInterceptor != nil {
			return cfg.RedirectInterceptor(req, via)
		}
		return nil
	}

	return &Client{http: httpClient, cfg: cfg, cancel: make(map[string]context.CancelFunc)}, nil
}

// RangeGet issues a GET with a Range header (offset 0 sends no Range
// header and means a full fetch). The caller owns the response body and must close it.
func (c *Client) RangeGet(ctx context.Context, rawURL string, headers map[string]string, offset int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	return c.http.Do(req)
}

// Probe issues a minimal Range: bytes=0-0 request to discover
// Accept-Ranges, Content-Disposition filename, ETag/Last-Modified, and
// total size (from a 206 Content-Range or Content-Length on 200),
// grounded on the teacher's ProbeURL/ProbeResult.
type ProbeResult struct {
	SupportsRange bool
	TotalSize     int64
	Filename      string
	ETag          string
	LastModified  string
}

func (c *Client) Probe(ctx context.Context, rawURL string, headers map[string]string) (*ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := &ProbeResult{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
	result.SupportsRange = resp.Header.Get("Accept-Ranges") == "bytes" || resp.StatusCode == http.StatusPartialContent

	if resp.StatusCode == http.StatusPartialContent {
		result.TotalSize = parseContentRangeTotal(resp.Header.Get("Content-Range"))
	} else if resp.ContentLength > 0 {
		result.TotalSize = resp.ContentLength
	}

	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		result.Filename = parseFilename(cd)
	}
	return result, nil
}

// Do performs an arbitrary request, for callers that build their own
// request (the worker's parallel part fetches set their own Range).
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}
