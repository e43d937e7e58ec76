package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/pders01/fxdigest/internal/retry"
)

// Configuration errors. All of them are fatal at startup.
var (
	ErrUnknownDriver        = errors.New("database.driver must be one of: bolt, postgres")
	ErrMissingDSN           = errors.New("database.dsn is required for the postgres driver")
	ErrMissingBaseURL       = errors.New("site.base_url is required")
	ErrUnknownListingFormat = errors.New("site.listing_format must be one of: html, rss")
	ErrInvalidMaxAttempts   = errors.New("retry.max_attempts must be at least 1")
	ErrInvalidDelay         = errors.New("retry.delay and fetch.politeness_delay must be non-negative")
	ErrInvalidPageCount     = errors.New("pipeline.listing_page_count and pipeline.digest_page must be at least 1")
	ErrInvalidWindow        = errors.New("pipeline.calendar_window_days must be at least 1")
	ErrInvalidTimeout       = errors.New("fetch.timeout must be positive")
	ErrInvalidInterval      = errors.New("pipeline.watch_interval must be positive")
)

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Site     SiteConfig     `mapstructure:"site"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Calendar CalendarConfig `mapstructure:"calendar"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Email    EmailConfig    `mapstructure:"email"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

type DatabaseConfig struct {
	Driver      string        `mapstructure:"driver"`
	Path        string        `mapstructure:"path"`
	DSN         string        `mapstructure:"dsn"`
	MaxConns    int           `mapstructure:"max_conns"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SearchIndex string        `mapstructure:"search_index"`
}

type SiteConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	NewsPath      string `mapstructure:"news_path"`
	ListingFormat string `mapstructure:"listing_format"`
	HeadersFile   string `mapstructure:"headers_file"`
	// AllowPrivateHosts lets article links resolve to localhost or private
	// addresses. Only useful against local mirrors.
	AllowPrivateHosts bool `mapstructure:"allow_private_hosts"`
}

type FetchConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	PolitenessDelay time.Duration `mapstructure:"politeness_delay"`
	MaxBodyKB       int           `mapstructure:"max_body_kb"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
}

type PipelineConfig struct {
	ListingPageCount   int           `mapstructure:"listing_page_count"`
	DigestPage         int           `mapstructure:"digest_page"`
	CalendarWindowDays int           `mapstructure:"calendar_window_days"`
	CycleTimeout       time.Duration `mapstructure:"cycle_timeout"`
	WatchInterval      time.Duration `mapstructure:"watch_interval"`
}

type CalendarConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	TimeZoneID int    `mapstructure:"time_zone_id"`
	MaxPages   int    `mapstructure:"max_pages"`
}

type LLMConfig struct {
	Model        string `mapstructure:"model"`
	APIKey       string `mapstructure:"api_key"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

type EmailConfig struct {
	SMTPServer string `mapstructure:"smtp_server"`
	SMTPPort   int    `mapstructure:"smtp_port"`
	SMTPUser   string `mapstructure:"smtp_user"`
	SMTPPass   string `mapstructure:"smtp_pass"`
	From       string `mapstructure:"from"`
	To         string `mapstructure:"to"`
}

// Enabled reports whether enough SMTP settings are present to send mail.
func (e EmailConfig) Enabled() bool {
	return e.SMTPServer != "" && e.SMTPUser != "" && e.SMTPPass != "" && e.To != ""
}

type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".fxdigest")

	return &Config{
		Database: DatabaseConfig{
			Driver:      "bolt",
			Path:        filepath.Join(dataDir, "articles.db"),
			MaxConns:    4,
			Timeout:     1 * time.Second,
			SearchIndex: filepath.Join(dataDir, "index.bleve"),
		},
		Site: SiteConfig{
			BaseURL:       "https://www.investing.com/",
			NewsPath:      "news/forex-news",
			ListingFormat: "html",
			HeadersFile:   filepath.Join(homeDir, ".config", "fxdigest", "headers.json"),
		},
		Fetch: FetchConfig{
			Timeout:         10 * time.Second,
			PolitenessDelay: 5 * time.Second,
			MaxBodyKB:       4096,
		},
		Retry: RetryConfig{
			MaxAttempts: retry.DefaultMaxAttempts,
			Delay:       retry.DefaultDelay,
		},
		Pipeline: PipelineConfig{
			ListingPageCount:   5,
			DigestPage:         3,
			CalendarWindowDays: 5,
			CycleTimeout:       15 * time.Minute,
			WatchInterval:      1 * time.Hour,
		},
		Calendar: CalendarConfig{
			Endpoint:   "https://www.investing.com/economic-calendar/Service/getCalendarFilteredData",
			TimeZoneID: 55,
			MaxPages:   10,
		},
		LLM: LLMConfig{
			Model: "gemini-2.5-flash",
		},
		Email: EmailConfig{
			SMTPServer: "smtp.gmail.com",
			SMTPPort:   587,
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(dataDir, "fxdigest.log"),
		},
	}
}

// setDefaults registers every leaf key so env overrides such as
// FXDIGEST_LLM_API_KEY reach nested fields.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("database.dsn", cfg.Database.DSN)
	v.SetDefault("database.max_conns", cfg.Database.MaxConns)
	v.SetDefault("database.timeout", cfg.Database.Timeout)
	v.SetDefault("database.search_index", cfg.Database.SearchIndex)

	v.SetDefault("site.base_url", cfg.Site.BaseURL)
	v.SetDefault("site.news_path", cfg.Site.NewsPath)
	v.SetDefault("site.listing_format", cfg.Site.ListingFormat)
	v.SetDefault("site.headers_file", cfg.Site.HeadersFile)
	v.SetDefault("site.allow_private_hosts", cfg.Site.AllowPrivateHosts)

	v.SetDefault("fetch.timeout", cfg.Fetch.Timeout)
	v.SetDefault("fetch.politeness_delay", cfg.Fetch.PolitenessDelay)
	v.SetDefault("fetch.max_body_kb", cfg.Fetch.MaxBodyKB)

	v.SetDefault("retry.max_attempts", cfg.Retry.MaxAttempts)
	v.SetDefault("retry.delay", cfg.Retry.Delay)

	v.SetDefault("pipeline.listing_page_count", cfg.Pipeline.ListingPageCount)
	v.SetDefault("pipeline.digest_page", cfg.Pipeline.DigestPage)
	v.SetDefault("pipeline.calendar_window_days", cfg.Pipeline.CalendarWindowDays)
	v.SetDefault("pipeline.cycle_timeout", cfg.Pipeline.CycleTimeout)
	v.SetDefault("pipeline.watch_interval", cfg.Pipeline.WatchInterval)

	v.SetDefault("calendar.endpoint", cfg.Calendar.Endpoint)
	v.SetDefault("calendar.time_zone_id", cfg.Calendar.TimeZoneID)
	v.SetDefault("calendar.max_pages", cfg.Calendar.MaxPages)

	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("llm.api_key", cfg.LLM.APIKey)
	v.SetDefault("llm.system_prompt", cfg.LLM.SystemPrompt)

	v.SetDefault("email.smtp_server", cfg.Email.SMTPServer)
	v.SetDefault("email.smtp_port", cfg.Email.SMTPPort)
	v.SetDefault("email.smtp_user", cfg.Email.SMTPUser)
	v.SetDefault("email.smtp_pass", cfg.Email.SMTPPass)
	v.SetDefault("email.from", cfg.Email.From)
	v.SetDefault("email.to", cfg.Email.To)

	v.SetDefault("metrics.listen_addr", cfg.Metrics.ListenAddr)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, defaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		homeDir, _ := os.UserHomeDir()
		configDir := filepath.Join(homeDir, ".config", "fxdigest")

		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FXDIGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The Gemini SDK convention is honored as a fallback for the API key.
	_ = v.BindEnv("llm.api_key", "FXDIGEST_LLM_API_KEY", "GEMINI_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	expandPaths(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the settings the pipeline cannot run without.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "bolt":
	case "postgres":
		if c.Database.DSN == "" {
			return ErrMissingDSN
		}
	default:
		return fmt.Errorf("%w (got %q)", ErrUnknownDriver, c.Database.Driver)
	}

	if c.Site.BaseURL == "" {
		return ErrMissingBaseURL
	}
	if c.Site.ListingFormat != "html" && c.Site.ListingFormat != "rss" {
		return fmt.Errorf("%w (got %q)", ErrUnknownListingFormat, c.Site.ListingFormat)
	}
	if c.Retry.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}
	if c.Retry.Delay < 0 || c.Fetch.PolitenessDelay < 0 {
		return ErrInvalidDelay
	}
	if c.Fetch.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Pipeline.ListingPageCount < 1 || c.Pipeline.DigestPage < 1 {
		return ErrInvalidPageCount
	}
	if c.Pipeline.CalendarWindowDays < 1 {
		return ErrInvalidWindow
	}
	if c.Pipeline.WatchInterval <= 0 {
		return ErrInvalidInterval
	}
	return nil
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" || path == "-" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

func expandPaths(cfg *Config) {
	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Database.SearchIndex = expandPath(cfg.Database.SearchIndex)
	cfg.Site.HeadersFile = expandPath(cfg.Site.HeadersFile)
	cfg.Log.File = expandPath(cfg.Log.File)
}

// fileConfig mirrors Config with durations as strings so the written TOML
// stays readable. Secrets are never written.
type fileConfig struct {
	Database struct {
		Driver      string `toml:"driver"`
		Path        string `toml:"path"`
		DSN         string `toml:"dsn"`
		MaxConns    int    `toml:"max_conns"`
		Timeout     string `toml:"timeout"`
		SearchIndex string `toml:"search_index"`
	} `toml:"database"`
	Site struct {
		BaseURL           string `toml:"base_url"`
		NewsPath          string `toml:"news_path"`
		ListingFormat     string `toml:"listing_format"`
		HeadersFile       string `toml:"headers_file"`
		AllowPrivateHosts bool   `toml:"allow_private_hosts"`
	} `toml:"site"`
	Fetch struct {
		Timeout         string `toml:"timeout"`
		PolitenessDelay string `toml:"politeness_delay"`
		MaxBodyKB       int    `toml:"max_body_kb"`
	} `toml:"fetch"`
	Retry struct {
		MaxAttempts int    `toml:"max_attempts"`
		Delay       string `toml:"delay"`
	} `toml:"retry"`
	Pipeline struct {
		ListingPageCount   int    `toml:"listing_page_count"`
		DigestPage         int    `toml:"digest_page"`
		CalendarWindowDays int    `toml:"calendar_window_days"`
		CycleTimeout       string `toml:"cycle_timeout"`
		WatchInterval      string `toml:"watch_interval"`
	} `toml:"pipeline"`
	Calendar struct {
		Endpoint   string `toml:"endpoint"`
		TimeZoneID int    `toml:"time_zone_id"`
		MaxPages   int    `toml:"max_pages"`
	} `toml:"calendar"`
	LLM struct {
		Model        string `toml:"model"`
		SystemPrompt string `toml:"system_prompt"`
	} `toml:"llm"`
	Email struct {
		SMTPServer string `toml:"smtp_server"`
		SMTPPort   int    `toml:"smtp_port"`
		SMTPUser   string `toml:"smtp_user"`
		From       string `toml:"from"`
		To         string `toml:"to"`
	} `toml:"email"`
	Metrics struct {
		ListenAddr string `toml:"listen_addr"`
	} `toml:"metrics"`
	Log struct {
		Level string `toml:"level"`
		File  string `toml:"file"`
	} `toml:"log"`
}

func toFileConfig(c *Config) fileConfig {
	var f fileConfig
	f.Database.Driver = c.Database.Driver
	f.Database.Path = c.Database.Path
	f.Database.DSN = c.Database.DSN
	f.Database.MaxConns = c.Database.MaxConns
	f.Database.Timeout = c.Database.Timeout.String()
	f.Database.SearchIndex = c.Database.SearchIndex

	f.Site.BaseURL = c.Site.BaseURL
	f.Site.NewsPath = c.Site.NewsPath
	f.Site.ListingFormat = c.Site.ListingFormat
	f.Site.HeadersFile = c.Site.HeadersFile
	f.Site.AllowPrivateHosts = c.Site.AllowPrivateHosts

	f.Fetch.Timeout = c.Fetch.Timeout.String()
	f.Fetch.PolitenessDelay = c.Fetch.PolitenessDelay.String()
	f.Fetch.MaxBodyKB = c.Fetch.MaxBodyKB

	f.Retry.MaxAttempts = c.Retry.MaxAttempts
	f.Retry.Delay = c.Retry.Delay.String()

	f.Pipeline.ListingPageCount = c.Pipeline.ListingPageCount
	f.Pipeline.DigestPage = c.Pipeline.DigestPage
	f.Pipeline.CalendarWindowDays = c.Pipeline.CalendarWindowDays
	f.Pipeline.CycleTimeout = c.Pipeline.CycleTimeout.String()
	f.Pipeline.WatchInterval = c.Pipeline.WatchInterval.String()

	f.Calendar.Endpoint = c.Calendar.Endpoint
	f.Calendar.TimeZoneID = c.Calendar.TimeZoneID
	f.Calendar.MaxPages = c.Calendar.MaxPages

	f.LLM.Model = c.LLM.Model
	f.LLM.SystemPrompt = c.LLM.SystemPrompt

	f.Email.SMTPServer = c.Email.SMTPServer
	f.Email.SMTPPort = c.Email.SMTPPort
	f.Email.SMTPUser = c.Email.SMTPUser
	f.Email.From = c.Email.From
	f.Email.To = c.Email.To

	f.Metrics.ListenAddr = c.Metrics.ListenAddr

	f.Log.Level = c.Log.Level
	f.Log.File = c.Log.File
	return f
}

func Save(config *Config, path string) error {
	data, err := toml.Marshal(toFileConfig(config))
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}

// DefaultHeadersFile returns the location of the user agent list used when
// the config does not name one.
func DefaultHeadersFile() string {
	return defaultConfig().Site.HeadersFile
}
