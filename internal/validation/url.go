package validation

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	ErrEmptyLink     = errors.New("link is empty")
	ErrLinkTooLong   = errors.New("link too long")
	ErrBadScheme     = errors.New("link must use http or https")
	ErrMissingHost   = errors.New("link must have a hostname")
	ErrForbiddenHost = errors.New("link host is not permitted")
)

// LinkCanonicalizer turns scraped hrefs into the absolute, normalized URLs
// used as article identity keys.
type LinkCanonicalizer struct {
	base *url.URL
	// AllowLocalhost determines if localhost links are permitted
	AllowLocalhost bool
	// AllowPrivateIPs determines if private IP addresses are permitted
	AllowPrivateIPs bool
	// MaxLength is the maximum allowed link length
	MaxLength int
}

// NewLinkCanonicalizer resolves relative links against baseURL and rejects
// local or private hosts.
func NewLinkCanonicalizer(baseURL string) (*LinkCanonicalizer, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: %w", baseURL, ErrBadScheme)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url %q: %w", baseURL, ErrMissingHost)
	}

	return &LinkCanonicalizer{
		base:      base,
		MaxLength: 2048,
	}, nil
}

// NewPermissiveLinkCanonicalizer also accepts localhost and private
// addresses, for local mirrors and tests.
func NewPermissiveLinkCanonicalizer(baseURL string) (*LinkCanonicalizer, error) {
	c, err := NewLinkCanonicalizer(baseURL)
	if err != nil {
		return nil, err
	}
	c.AllowLocalhost = true
	c.AllowPrivateIPs = true
	return c, nil
}

// Canonicalize returns the identity form of href: absolute, lowercase
// scheme and host, default port and fragment removed, tracking parameters
// dropped.
func (c *LinkCanonicalizer) Canonicalize(href string) (string, error) {
	href = strings.TrimSpace(href)

	if href == "" {
		return "", ErrEmptyLink
	}
	if len(href) > c.MaxLength {
		return "", fmt.Errorf("%w (max %d characters)", ErrLinkTooLong, c.MaxLength)
	}
	if strings.ContainsAny(href, "<>\"'`") {
		return "", fmt.Errorf("link contains invalid characters")
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid link format: %w", err)
	}

	u := c.base.ResolveReference(ref)
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrBadScheme
	}
	if u.Hostname() == "" {
		return "", ErrMissingHost
	}

	if err := c.validateHost(strings.ToLower(u.Hostname())); err != nil {
		return "", err
	}

	u.Host = normalizeHost(u.Scheme, u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	if u.Path == "" {
		u.Path = "/"
	}
	u.RawQuery = stripTracking(u.Query())

	return u.String(), nil
}

func (c *LinkCanonicalizer) validateHost(hostname string) error {
	if !c.AllowLocalhost && isLocalhost(hostname) {
		return fmt.Errorf("%w: localhost", ErrForbiddenHost)
	}

	if !c.AllowPrivateIPs {
		if ip := net.ParseIP(hostname); ip != nil && isPrivateIP(ip) {
			return fmt.Errorf("%w: private address %s", ErrForbiddenHost, hostname)
		}
	}

	if isSuspiciousHostname(hostname) {
		return fmt.Errorf("%w: %s", ErrForbiddenHost, hostname)
	}

	return nil
}

func normalizeHost(scheme, host string) string {
	host = strings.ToLower(host)
	h, port, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		if strings.Contains(h, ":") {
			return "[" + h + "]"
		}
		return h
	}
	return host
}

// stripTracking drops utm_* and similar campaign parameters. The remaining
// query is re-encoded with keys sorted.
func stripTracking(q url.Values) string {
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") || lower == "fbclid" || lower == "gclid" {
			q.Del(key)
		}
	}
	return q.Encode()
}

// isLocalhost checks if a hostname refers to localhost
func isLocalhost(hostname string) bool {
	return hostname == "localhost" ||
		hostname == "127.0.0.1" ||
		hostname == "::1" ||
		strings.HasSuffix(hostname, ".localhost")
}

var privateBlocks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16", // Link-local
	"127.0.0.0/8",    // Loopback
	"fc00::/7",       // Unique local
	"fe80::/10",      // Link-local
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	blocks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// isPrivateIP checks if an IP address is in a private range
func isPrivateIP(ip net.IP) bool {
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

func isSuspiciousHostname(hostname string) bool {
	switch strings.ToLower(hostname) {
	case "localhost.com", "0.0.0.0", "255.255.255.255":
		return true
	}
	return false
}
