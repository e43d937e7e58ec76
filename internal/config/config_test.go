package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pders01/fxdigest/internal/retry"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Driver != "bolt" {
		t.Errorf("Database.Driver = %s, want bolt", cfg.Database.Driver)
	}
	if cfg.Database.Timeout != 1*time.Second {
		t.Errorf("Database.Timeout = %v, want 1s", cfg.Database.Timeout)
	}

	if cfg.Site.BaseURL != "https://www.investing.com/" {
		t.Errorf("Site.BaseURL = %s", cfg.Site.BaseURL)
	}
	if cfg.Site.NewsPath != "news/forex-news" {
		t.Errorf("Site.NewsPath = %s", cfg.Site.NewsPath)
	}

	if cfg.Fetch.Timeout != 10*time.Second {
		t.Errorf("Fetch.Timeout = %v, want 10s", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.PolitenessDelay != 5*time.Second {
		t.Errorf("Fetch.PolitenessDelay = %v, want 5s", cfg.Fetch.PolitenessDelay)
	}

	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.Delay != 5*time.Second {
		t.Errorf("Retry.Delay = %v, want 5s", cfg.Retry.Delay)
	}
	if cfg.Retry.MaxAttempts != retry.DefaultMaxAttempts || cfg.Retry.Delay != retry.DefaultDelay {
		t.Errorf("Retry = %+v, want the retry package defaults", cfg.Retry)
	}

	if cfg.Pipeline.ListingPageCount != 5 {
		t.Errorf("Pipeline.ListingPageCount = %d, want 5", cfg.Pipeline.ListingPageCount)
	}
	if cfg.Pipeline.DigestPage != 3 {
		t.Errorf("Pipeline.DigestPage = %d, want 3", cfg.Pipeline.DigestPage)
	}
	if cfg.Pipeline.CalendarWindowDays != 5 {
		t.Errorf("Pipeline.CalendarWindowDays = %d, want 5", cfg.Pipeline.CalendarWindowDays)
	}

	if cfg.Calendar.TimeZoneID != 55 {
		t.Errorf("Calendar.TimeZoneID = %d, want 55", cfg.Calendar.TimeZoneID)
	}
	if cfg.LLM.Model == "" {
		t.Error("LLM.Model should not be empty")
	}
}

func TestLoad_DefaultConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg == nil {
		t.Fatal("Load() returned nil config")
	}

	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
	if !filepath.IsAbs(cfg.Database.Path) {
		t.Errorf("Database.Path = %s, want absolute path", cfg.Database.Path)
	}
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()

	configPath := filepath.Join(tmpDir, "test-config.toml")
	configContent := `
[database]
path = "/tmp/test.db"
timeout = "10s"

[site]
base_url = "https://example.com/"
news_path = "markets"

[retry]
max_attempts = 7
delay = "250ms"

[pipeline]
digest_page = 1
`

	if writeErr := os.WriteFile(configPath, []byte(configContent), 0o644); writeErr != nil {
		t.Fatal(writeErr)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %s, want '/tmp/test.db'", cfg.Database.Path)
	}
	if cfg.Database.Timeout != 10*time.Second {
		t.Errorf("Database.Timeout = %v, want 10s", cfg.Database.Timeout)
	}
	if cfg.Site.BaseURL != "https://example.com/" {
		t.Errorf("Site.BaseURL = %s", cfg.Site.BaseURL)
	}
	if cfg.Retry.MaxAttempts != 7 {
		t.Errorf("Retry.MaxAttempts = %d, want 7", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.Delay != 250*time.Millisecond {
		t.Errorf("Retry.Delay = %v, want 250ms", cfg.Retry.Delay)
	}
	if cfg.Pipeline.DigestPage != 1 {
		t.Errorf("Pipeline.DigestPage = %d, want 1", cfg.Pipeline.DigestPage)
	}
	// Untouched sections keep their defaults.
	if cfg.Fetch.Timeout != 10*time.Second {
		t.Errorf("Fetch.Timeout = %v, want 10s", cfg.Fetch.Timeout)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FXDIGEST_RETRY_MAX_ATTEMPTS", "9")
	t.Setenv("GEMINI_API_KEY", "from-gemini-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Retry.MaxAttempts != 9 {
		t.Errorf("Retry.MaxAttempts = %d, want 9", cfg.Retry.MaxAttempts)
	}
	if cfg.LLM.APIKey != "from-gemini-env" {
		t.Errorf("LLM.APIKey = %q, want value from GEMINI_API_KEY", cfg.LLM.APIKey)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"zero attempts", "[retry]\nmax_attempts = 0\n", ErrInvalidMaxAttempts},
		{"negative delay", "[retry]\ndelay = \"-1s\"\n", ErrInvalidDelay},
		{"unknown driver", "[database]\ndriver = \"sqlite\"\n", ErrUnknownDriver},
		{"postgres without dsn", "[database]\ndriver = \"postgres\"\n", ErrMissingDSN},
		{"unknown listing", "[site]\nlisting_format = \"atom\"\n", ErrUnknownListingFormat},
		{"zero digest page", "[pipeline]\ndigest_page = 0\n", ErrInvalidPageCount},
		{"zero window", "[pipeline]\ncalendar_window_days = 0\n", ErrInvalidWindow},
		{"zero watch interval", "[pipeline]\nwatch_interval = \"0s\"\n", ErrInvalidInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			_, err := Load(path)
			if !errors.Is(err, tt.want) {
				t.Errorf("Load() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSave(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := defaultConfig()
	cfg.Database.Path = "/test/path.db"
	cfg.Site.BaseURL = "https://mirror.example.com/"
	cfg.Retry.Delay = 3 * time.Second
	cfg.Email.To = "desk@example.com"
	cfg.LLM.APIKey = "secret"

	savePath := filepath.Join(tmpDir, "nested", "saved-config.toml")
	if saveErr := Save(cfg, savePath); saveErr != nil {
		t.Fatalf("Save() error = %v", saveErr)
	}

	data, err := os.ReadFile(savePath)
	if err != nil {
		t.Fatal("Save() did not create config file")
	}
	if strings.Contains(string(data), "secret") {
		t.Error("Save() wrote the API key to disk")
	}

	loaded, err := Load(savePath)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}

	if loaded.Database.Path != cfg.Database.Path {
		t.Errorf("Loaded Database.Path = %s, want %s", loaded.Database.Path, cfg.Database.Path)
	}
	if loaded.Site.BaseURL != cfg.Site.BaseURL {
		t.Errorf("Loaded Site.BaseURL = %s, want %s", loaded.Site.BaseURL, cfg.Site.BaseURL)
	}
	if loaded.Retry.Delay != cfg.Retry.Delay {
		t.Errorf("Loaded Retry.Delay = %v, want %v", loaded.Retry.Delay, cfg.Retry.Delay)
	}
	if loaded.Email.To != cfg.Email.To {
		t.Errorf("Loaded Email.To = %s, want %s", loaded.Email.To, cfg.Email.To)
	}
}

func TestGenerateDefaultConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "generated.toml")
	if genErr := GenerateDefaultConfig(configPath); genErr != nil {
		t.Fatalf("GenerateDefaultConfig() error = %v", genErr)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load generated config: %v", err)
	}

	if cfg.Pipeline.CycleTimeout != 15*time.Minute {
		t.Errorf("Generated config has Pipeline.CycleTimeout = %v, want 15m", cfg.Pipeline.CycleTimeout)
	}
}

func TestEmailEnabled(t *testing.T) {
	e := EmailConfig{SMTPServer: "smtp.example.com", SMTPPort: 587}
	if e.Enabled() {
		t.Error("Enabled() = true without credentials")
	}

	e.SMTPUser = "bot"
	e.SMTPPass = "pw"
	e.To = "desk@example.com"
	if !e.Enabled() {
		t.Error("Enabled() = false with complete settings")
	}
}

func TestTestConfig(t *testing.T) {
	cfg := TestConfig()

	if cfg == nil {
		t.Fatal("TestConfig() returned nil")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("TestConfig() does not validate: %v", err)
	}
	if cfg.Retry.Delay != 0 {
		t.Errorf("TestConfig Retry.Delay = %v, want 0", cfg.Retry.Delay)
	}
	if cfg.Fetch.PolitenessDelay != 0 {
		t.Errorf("TestConfig Fetch.PolitenessDelay = %v, want 0", cfg.Fetch.PolitenessDelay)
	}
}
