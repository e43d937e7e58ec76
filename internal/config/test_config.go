package config

import "time"

// TestConfig returns a config suitable for testing: no delays, a single
// retry attempt and a local site.
func TestConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:   "bolt",
			Timeout:  1 * time.Second,
			MaxConns: 1,
		},
		Site: SiteConfig{
			BaseURL:           "http://127.0.0.1/",
			NewsPath:          "news/forex-news",
			ListingFormat:     "html",
			AllowPrivateHosts: true,
		},
		Fetch: FetchConfig{
			Timeout:         5 * time.Second,
			PolitenessDelay: 0,
			MaxBodyKB:       1024,
		},
		Retry: RetryConfig{
			MaxAttempts: 1,
			Delay:       0,
		},
		Pipeline: PipelineConfig{
			ListingPageCount:   2,
			DigestPage:         3,
			CalendarWindowDays: 5,
			CycleTimeout:       30 * time.Second,
			WatchInterval:      1 * time.Minute,
		},
		Calendar: CalendarConfig{
			TimeZoneID: 55,
			MaxPages:   2,
		},
		LLM: LLMConfig{
			Model: "gemini-test",
		},
		Log: LogConfig{
			Level: "off",
		},
	}
}
