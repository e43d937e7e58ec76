// Package fetch retrieves pages the way a browser visiting the site would:
// a randomized header profile, a warm-up visit to the site root and a
// cookie jar scoped to the operation.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pders01/fxdigest/internal/debuglog"
	"github.com/pders01/fxdigest/internal/metrics"
)

const (
	DefaultTimeout = 10 * time.Second
	DefaultMaxBody = 4 << 20
)

// ErrWarmUp wraps a failed site-root visit. The target is not requested.
var ErrWarmUp = errors.New("warm-up request failed")

type Options struct {
	// BaseURL is the site root visited before every target.
	BaseURL string
	Timeout time.Duration
	// MaxBodyBytes caps a single response body.
	MaxBodyBytes int64
	Metrics      *metrics.Recorder
	// Transport replaces the shared default transport, mostly for tests.
	Transport http.RoundTripper
}

type Client struct {
	pool      *Pool
	baseURL   string
	timeout   time.Duration
	maxBody   int64
	transport http.RoundTripper
	metrics   *metrics.Recorder
}

func NewClient(pool *Pool, opts Options) (*Client, error) {
	if pool == nil {
		return nil, errors.New("fetch: nil profile pool")
	}
	if opts.BaseURL == "" {
		return nil, errors.New("fetch: base url is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBody
	}
	if opts.Transport == nil {
		opts.Transport = newTransport()
	}

	return &Client{
		pool:      pool,
		baseURL:   opts.BaseURL,
		timeout:   opts.Timeout,
		maxBody:   opts.MaxBodyBytes,
		transport: opts.Transport,
		metrics:   opts.Metrics,
	}, nil
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewSession picks a profile and creates an empty cookie jar. The
// connection pool is shared across sessions.
func (c *Client) NewSession() (*Session, error) {
	jar, err := newJar()
	if err != nil {
		return nil, err
	}

	return &Session{
		client: &http.Client{
			Transport: c.transport,
			Jar:       jar,
		},
		profile: c.pool.Pick(),
		timeout: c.timeout,
		maxBody: c.maxBody,
		observe: c.metrics.ObserveRequest,
	}, nil
}

// WarmUp visits the site root so the session carries the cookies a real
// visitor would have.
func (c *Client) WarmUp(ctx context.Context, s *Session) error {
	if _, err := s.Get(ctx, "warmup", c.baseURL); err != nil {
		return fmt.Errorf("%w: %w", ErrWarmUp, err)
	}
	return nil
}

// Fetch runs a fresh session against target: warm-up, then the target GET.
func (c *Client) Fetch(ctx context.Context, target string) (string, error) {
	s, err := c.NewSession()
	if err != nil {
		return "", err
	}

	if err := c.WarmUp(ctx, s); err != nil {
		return "", err
	}

	body, err := s.Get(ctx, "page", target)
	if err != nil {
		return "", err
	}

	debuglog.WithFields(map[string]any{
		"url":   target,
		"bytes": len(body),
	}).Debugf("fetched")
	return body, nil
}
