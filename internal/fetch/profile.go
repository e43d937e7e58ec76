package fetch

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var ErrNoUserAgents = errors.New("user agent list is empty")

// DefaultUserAgents is used when no user agent file is configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:131.0) Gecko/20100101 Firefox/131.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14.6; rv:131.0) Gecko/20100101 Firefox/131.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36 Edg/129.0.0.0",
}

// Referrers are sent as the Referer of a profile, one picked per agent.
var Referrers = []string{
	"https://www.google.com/",
	"https://www.bing.com/",
	"https://www.yahoo.com/",
	"https://duckduckgo.com/",
	"https://yandex.com/",
	"https://www.baidu.com/",
	"https://www.ecosia.org/",
	"https://search.brave.com/",
	"https://www.ask.com/",
	"https://www.aol.com/",
	"https://www.facebook.com/",
	"https://twitter.com/",
	"https://www.linkedin.com/",
	"https://www.instagram.com/",
	"https://www.youtube.com/",
	"https://www.reddit.com/",
	"https://www.pinterest.com/",
	"https://www.tumblr.com/",
	"https://www.quora.com/",
	"https://www.microsoft.com/",
	"https://www.apple.com/",
	"https://www.amazon.com/",
	"https://www.netflix.com/",
	"https://www.paypal.com/",
	"https://www.google.fr/",
	"https://www.google.de/",
	"https://www.google.es/",
	"https://www.google.co.uk/",
	"https://myaccount.google.com/",
	"https://aboutme.google.com/",
}

const (
	acceptHeader   = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8"
	acceptLanguage = "en-US,en;q=0.9"
)

// Profile is the header set one logical operation presents to the site.
// It is a value; sessions copy it into every request.
type Profile struct {
	UserAgent string
	Referer   string
}

// Apply sets the profile headers on h. Accept-Encoding is left to the
// transport so compressed bodies are decoded transparently.
func (p Profile) Apply(h http.Header) {
	h.Set("User-Agent", p.UserAgent)
	h.Set("Referer", p.Referer)
	h.Set("Accept", acceptHeader)
	h.Set("Accept-Language", acceptLanguage)
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
}

// Pool holds the profiles built at startup. It is read-only after
// construction and safe for concurrent use.
type Pool struct {
	profiles []Profile
	pick     func(n int) int
}

// NewPool pairs every agent with a random referrer.
func NewPool(agents []string) (*Pool, error) {
	return newPool(agents, rand.IntN)
}

func newPool(agents []string, pick func(n int) int) (*Pool, error) {
	profiles := make([]Profile, 0, len(agents))
	for _, ua := range agents {
		ua = strings.TrimSpace(ua)
		if ua == "" {
			continue
		}
		profiles = append(profiles, Profile{
			UserAgent: ua,
			Referer:   Referrers[pick(len(Referrers))],
		})
	}
	if len(profiles) == 0 {
		return nil, ErrNoUserAgents
	}
	return &Pool{profiles: profiles, pick: pick}, nil
}

// Pick returns one profile uniformly at random.
func (p *Pool) Pick() Profile {
	return p.profiles[p.pick(len(p.profiles))]
}

func (p *Pool) Len() int {
	return len(p.profiles)
}

// LoadUserAgents reads the user_agents list from a JSON, YAML or TOML file.
// An empty path yields DefaultUserAgents.
func LoadUserAgents(path string) ([]string, error) {
	if path == "" {
		return DefaultUserAgents, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading user agent file %s: %w", path, err)
	}

	agents := v.GetStringSlice("user_agents")
	if len(agents) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoUserAgents)
	}
	return agents, nil
}

// WriteUserAgents writes agents to path in the format its extension names.
func WriteUserAgents(path string, agents []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating user agent directory: %w", err)
	}

	v := viper.New()
	v.Set("user_agents", agents)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing user agent file %s: %w", path, err)
	}
	return nil
}
