package digest

import (
	"context"
	"errors"
	"time"

	"github.com/pders01/fxdigest/internal/calendar"
	"github.com/pders01/fxdigest/internal/config"
	"github.com/pders01/fxdigest/internal/debuglog"
	"github.com/pders01/fxdigest/internal/storage"
)

// EventSource is satisfied by calendar.Fetcher.
type EventSource interface {
	Events(ctx context.Context, from, to time.Time) ([]calendar.Event, error)
}

// ArticleSource is satisfied by ingest.Manager.
type ArticleSource interface {
	FetchPage(ctx context.Context, page int) ([]storage.Article, error)
}

type BuilderOptions struct {
	WindowDays int
	// Page is the listing page the articles block is drawn from.
	Page    int
	Timeout time.Duration
	Now     func() time.Time
}

func BuilderOptionsFromConfig(cfg config.PipelineConfig) BuilderOptions {
	return BuilderOptions{
		WindowDays: cfg.CalendarWindowDays,
		Page:       cfg.DigestPage,
		Timeout:    cfg.CycleTimeout,
	}
}

type Builder struct {
	events   EventSource
	articles ArticleSource
	opts     BuilderOptions
}

func NewBuilder(events EventSource, articles ArticleSource, opts BuilderOptions) (*Builder, error) {
	if events == nil || articles == nil {
		return nil, errors.New("digest: event and article sources are required")
	}
	if opts.WindowDays < 1 {
		opts.WindowDays = 5
	}
	if opts.Page < 1 {
		opts.Page = 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Builder{events: events, articles: articles, opts: opts}, nil
}

// Build runs one windowed cycle: calendar for today plus the window, the
// configured listing page, then Assemble.
func (b *Builder) Build(ctx context.Context) ([]Message, error) {
	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}

	w := NewWindow(b.opts.Now(), b.opts.WindowDays)
	log := debuglog.WithFields(map[string]any{
		"from": w.From.Format(headerDate),
		"to":   w.To.Format(headerDate),
		"page": b.opts.Page,
	})

	events, err := b.events.Events(ctx, w.From, w.To)
	if err != nil {
		return nil, err
	}

	articles, err := b.articles.FetchPage(ctx, b.opts.Page)
	if err != nil {
		return nil, err
	}

	log.Infof("assembling digest from %d events and %d articles", len(events), len(articles))
	return Assemble(w, events, articles)
}
