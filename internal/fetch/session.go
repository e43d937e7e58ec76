package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d for %s", e.StatusCode, e.URL)
}

var ErrBodyTooLarge = errors.New("response body exceeds limit")

// Session is one logical operation: a single profile and a cookie jar that
// lives only as long as the session. Sessions are not shared.
type Session struct {
	client  *http.Client
	profile Profile
	timeout time.Duration
	maxBody int64
	observe func(kind, outcome string, d time.Duration)
}

func (s *Session) Profile() Profile {
	return s.profile
}

// Get fetches target and returns the body.
func (s *Session) Get(ctx context.Context, kind, target string) (string, error) {
	return s.do(ctx, kind, http.MethodGet, target, nil, nil)
}

// PostForm posts form as an XHR request and returns the body.
func (s *Session) PostForm(ctx context.Context, kind, target string, form url.Values) (string, error) {
	extra := http.Header{}
	extra.Set("Content-Type", "application/x-www-form-urlencoded")
	extra.Set("X-Requested-With", "XMLHttpRequest")
	extra.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	return s.do(ctx, kind, http.MethodPost, target, strings.NewReader(form.Encode()), extra)
}

func (s *Session) do(ctx context.Context, kind, method, target string, body io.Reader, extra http.Header) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	text, err := s.roundTrip(ctx, method, target, body, extra)
	if s.observe != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.observe(kind, outcome, time.Since(start))
	}
	return text, err
}

func (s *Session) roundTrip(ctx context.Context, method, target string, body io.Reader, extra http.Header) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	s.profile.Apply(req.Header)
	for key, values := range extra {
		req.Header[key] = values
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &StatusError{URL: target, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody+1))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", target, err)
	}
	if int64(len(data)) > s.maxBody {
		return "", fmt.Errorf("%s: %w (%d bytes)", target, ErrBodyTooLarge, s.maxBody)
	}
	return string(data), nil
}

func newJar() (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	return jar, nil
}
