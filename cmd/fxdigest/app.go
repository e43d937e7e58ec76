package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/pders01/fxdigest/internal/calendar"
	"github.com/pders01/fxdigest/internal/config"
	"github.com/pders01/fxdigest/internal/debuglog"
	"github.com/pders01/fxdigest/internal/digest"
	"github.com/pders01/fxdigest/internal/fetch"
	"github.com/pders01/fxdigest/internal/ingest"
	"github.com/pders01/fxdigest/internal/llm"
	"github.com/pders01/fxdigest/internal/metrics"
	"github.com/pders01/fxdigest/internal/notify"
	"github.com/pders01/fxdigest/internal/retry"
	"github.com/pders01/fxdigest/internal/search"
	"github.com/pders01/fxdigest/internal/storage"
)

// errDelivery marks a cycle that built its digest but could not hand it
// to the responder or the mail server. The next cycle may succeed.
var errDelivery = errors.New("digest delivery failed")

// newResponder is replaced in tests.
var newResponder = func(ctx context.Context, cfg config.LLMConfig) (llm.Responder, error) {
	return llm.NewGemini(ctx, cfg)
}

// app holds the components wired from one loaded config.
type app struct {
	cfg      *config.Config
	store    storage.Store
	index    *search.BleveIndex
	metrics  *metrics.Recorder
	client   *fetch.Client
	manager  *ingest.Manager
	calendar *calendar.Fetcher
	builder  *digest.Builder
	email    *notify.EmailSender
	now      func() time.Time
}

func withApp(ctx context.Context, fn func(a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer debuglog.Close()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	return fn(a)
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New(), now: time.Now}

	agents, err := loadUserAgents(cfg.Site.HeadersFile)
	if err != nil {
		return nil, err
	}
	pool, err := fetch.NewPool(agents)
	if err != nil {
		return nil, err
	}

	a.client, err = fetch.NewClient(pool, fetch.Options{
		BaseURL:      cfg.Site.BaseURL,
		Timeout:      cfg.Fetch.Timeout,
		MaxBodyBytes: int64(cfg.Fetch.MaxBodyKB) << 10,
		Metrics:      a.metrics,
	})
	if err != nil {
		return nil, err
	}

	a.store, err = storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	if cfg.Database.SearchIndex != "" {
		a.index, err = search.OpenBleveIndex(cfg.Database.SearchIndex)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("opening search index: %w", err)
		}
	}

	opts, err := ingest.OptionsFromConfig(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	opts.Metrics = a.metrics
	if a.index != nil {
		opts.Index = a.index
	}

	a.manager, err = ingest.NewManager(a.store, a.client, opts)
	if err != nil {
		a.close()
		return nil, err
	}

	a.calendar = calendar.NewFetcher(
		calendar.NewInvestingProvider(a.client, cfg.Calendar),
		retry.Policy{MaxAttempts: cfg.Retry.MaxAttempts, Delay: cfg.Retry.Delay},
		a.metrics,
	)

	a.builder, err = digest.NewBuilder(a.calendar, a.manager, digest.BuilderOptionsFromConfig(cfg.Pipeline))
	if err != nil {
		a.close()
		return nil, err
	}

	a.email = notify.NewEmailSender(cfg.Email)
	return a, nil
}

// loadUserAgents falls back to the built-in list when the default headers
// file has not been generated yet. A configured file must exist.
func loadUserAgents(path string) ([]string, error) {
	if path == config.DefaultHeadersFile() {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			debuglog.Warnf("user agent file %s not found, using built-in list", path)
			return fetch.DefaultUserAgents, nil
		}
	}
	return fetch.LoadUserAgents(path)
}

func (a *app) close() {
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			debuglog.Warnf("closing search index: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			debuglog.Warnf("closing store: %v", err)
		}
	}
}

// runCycle builds one digest, asks the responder and prints the rendered
// answer. The response is emailed when SMTP is configured.
func (a *app) runCycle(ctx context.Context, out io.Writer) (err error) {
	start := time.Now()
	defer func() { a.metrics.ObserveCycle(err, time.Since(start)) }()

	responder, err := newResponder(ctx, a.cfg.LLM)
	if err != nil {
		return err
	}

	messages, err := a.builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("building digest: %w", err)
	}

	response, err := responder.Respond(ctx, messages)
	if err != nil {
		return fmt.Errorf("%w: %w", errDelivery, err)
	}

	fmt.Fprintln(out, renderMarkdown(response))

	if a.email.Enabled() {
		subject := notify.DigestSubject(a.now())
		msg, err := notify.NewDigestRenderer().Render(subject, response)
		if err != nil {
			return err
		}
		if err := a.email.Send(msg); err != nil {
			return fmt.Errorf("%w: %w", errDelivery, err)
		}
	}
	return nil
}

// renderMarkdown falls back to the raw text when glamour cannot render.
func renderMarkdown(text string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return text
	}
	rendered, err := r.Render(text)
	if err != nil {
		return text
	}
	return rendered
}
