// Package ingest walks the paginated news listing, deduplicates items
// against the identity store and fetches bodies for new articles.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/pders01/fxdigest/internal/config"
	"github.com/pders01/fxdigest/internal/debuglog"
	"github.com/pders01/fxdigest/internal/metrics"
	"github.com/pders01/fxdigest/internal/retry"
	"github.com/pders01/fxdigest/internal/scrape"
	"github.com/pders01/fxdigest/internal/search"
	"github.com/pders01/fxdigest/internal/storage"
	"github.com/pders01/fxdigest/internal/validation"
)

// Fetcher retrieves a page body. fetch.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

var (
	errNoNewsList   = errors.New("no news found")
	errNoArticleDiv = errors.New("article container not found")
)

type Options struct {
	BaseURL  string
	NewsPath string
	// PolitenessDelay is the minimum spacing between new article fetches.
	PolitenessDelay time.Duration
	Retry           retry.Policy
	Listing         scrape.ListingParser
	Links           *validation.LinkCanonicalizer
	// Index, when set, receives every newly stored article.
	Index   search.Indexer
	Metrics *metrics.Recorder
	// NewID generates article IDs. Defaults to random UUIDs.
	NewID func() string
}

// OptionsFromConfig maps the site, fetch and retry sections onto Options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	listing, err := scrape.NewListingParser(cfg.Site.ListingFormat)
	if err != nil {
		return Options{}, err
	}

	newLinks := validation.NewLinkCanonicalizer
	if cfg.Site.AllowPrivateHosts {
		newLinks = validation.NewPermissiveLinkCanonicalizer
	}
	links, err := newLinks(cfg.Site.BaseURL)
	if err != nil {
		return Options{}, err
	}

	return Options{
		BaseURL:         cfg.Site.BaseURL,
		NewsPath:        cfg.Site.NewsPath,
		PolitenessDelay: cfg.Fetch.PolitenessDelay,
		Retry: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Delay:       cfg.Retry.Delay,
		},
		Listing: listing,
		Links:   links,
	}, nil
}

type Manager struct {
	store   storage.Store
	fetcher Fetcher
	opts    Options
	limiter *rate.Limiter
}

func NewManager(store storage.Store, fetcher Fetcher, opts Options) (*Manager, error) {
	if store == nil || fetcher == nil {
		return nil, errors.New("ingest: store and fetcher are required")
	}
	if opts.BaseURL == "" {
		return nil, errors.New("ingest: base url is required")
	}
	if opts.Listing == nil {
		opts.Listing = scrape.HTMLListing{}
	}
	if opts.Links == nil {
		links, err := validation.NewLinkCanonicalizer(opts.BaseURL)
		if err != nil {
			return nil, err
		}
		opts.Links = links
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = opts.Metrics.RetryHook
	}

	return &Manager{
		store:   store,
		fetcher: fetcher,
		opts:    opts,
		limiter: newLimiter(opts.PolitenessDelay),
	}, nil
}

// newLimiter admits one new fetch immediately and then one per delay.
func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// PageURL is base_url + news_path, with "/{page}" appended past page 1.
func (m *Manager) PageURL(page int) string {
	url := strings.TrimRight(m.opts.BaseURL, "/") + "/" + strings.TrimLeft(m.opts.NewsPath, "/")
	if page > 1 {
		url = fmt.Sprintf("%s/%d", url, page)
	}
	return url
}

// Canonicalize returns the dedup key the store uses for href.
func (m *Manager) Canonicalize(href string) (string, error) {
	return m.opts.Links.Canonicalize(href)
}

func (m *Manager) policy(name string) retry.Policy {
	p := m.opts.Retry
	p.Name = name
	return p
}

// FetchPage returns the articles of one listing page in listing order.
// A page that never yields a listing degrades to an empty slice; store
// failures are returned.
func (m *Manager) FetchPage(ctx context.Context, page int) ([]storage.Article, error) {
	url := m.PageURL(page)
	log := debuglog.WithFields(map[string]any{"page": page, "url": url})

	articles, err := retry.Do(ctx, m.policy("listing"), func(ctx context.Context, attempt int) retry.Result[[]storage.Article] {
		body, err := m.fetcher.Fetch(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return retry.Stop[[]storage.Article](ctx.Err())
			}
			log.Warnf("listing fetch failed: %v", err)
			return retry.Retryable[[]storage.Article](err)
		}

		listing, err := m.opts.Listing.ParseListing(body)
		if err != nil {
			return retry.Retryable[[]storage.Article](err)
		}
		if !listing.Found {
			log.Infof("%v", errNoNewsList)
			return retry.Retryable[[]storage.Article](errNoNewsList)
		}

		resolved, err := m.resolveItems(ctx, listing.Items)
		if err != nil {
			return retry.Stop[[]storage.Article](err)
		}
		return retry.Ok(resolved)
	})

	if errors.Is(err, retry.ErrExhausted) {
		log.Warnf("giving up on page: %v", err)
		return []storage.Article{}, nil
	}
	if err != nil {
		return nil, err
	}

	log.Infof("page resolved with %d articles", len(articles))
	return articles, nil
}

// FetchPages fetches pages 1..n in order. Result i holds page i+1, empty
// pages included.
func (m *Manager) FetchPages(ctx context.Context, n int) ([][]storage.Article, error) {
	pages := make([][]storage.Article, 0, max(n, 0))
	for page := 1; page <= n; page++ {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		articles, err := m.FetchPage(ctx, page)
		if err != nil {
			return pages, fmt.Errorf("page %d: %w", page, err)
		}
		pages = append(pages, articles)
	}
	return pages, nil
}

func (m *Manager) resolveItems(ctx context.Context, items []scrape.Item) ([]storage.Article, error) {
	articles := make([]storage.Article, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		link, err := m.opts.Links.Canonicalize(item.Link)
		if err != nil {
			debuglog.Warnf("skipping listing item %q: %v", item.Link, err)
			m.opts.Metrics.ArticleSeen("skipped")
			continue
		}

		a, err := m.resolve(ctx, item, link)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, nil
}

// resolve returns the stored article for link, fetching and storing it
// first if it is new.
func (m *Manager) resolve(ctx context.Context, item scrape.Item, link string) (*storage.Article, error) {
	stored, err := m.store.Get(ctx, link)
	if err == nil {
		m.opts.Metrics.ArticleSeen("dedup")
		return stored, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("looking up %s: %w", link, err)
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	content, err := m.fetchArticle(ctx, link)
	if err != nil {
		return nil, err
	}

	title := item.Title
	if title == "" {
		title = link
	}
	a := &storage.Article{
		ID:      m.opts.NewID(),
		Title:   title,
		Link:    link,
		Content: content,
	}

	err = m.store.Insert(ctx, a)
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		// Another writer stored it first.
		stored, getErr := m.store.Get(ctx, link)
		if getErr != nil {
			return nil, fmt.Errorf("reading back %s: %w", link, getErr)
		}
		m.opts.Metrics.ArticleSeen("dedup")
		return stored, nil
	case err != nil:
		return nil, fmt.Errorf("storing %s: %w", link, err)
	}

	m.opts.Metrics.ArticleSeen("new")
	if m.opts.Index != nil {
		if err := m.opts.Index.IndexArticles(a); err != nil {
			debuglog.Warnf("indexing %s: %v", link, err)
		}
	}
	debuglog.WithFields(map[string]any{"link": link, "bytes": len(content)}).Debugf("stored new article")
	return a, nil
}

// fetchArticle returns the body text of link. A body that never appears
// after all attempts is stored as empty content.
func (m *Manager) fetchArticle(ctx context.Context, link string) (string, error) {
	content, err := retry.Do(ctx, m.policy("article"), func(ctx context.Context, attempt int) retry.Result[string] {
		body, err := m.fetcher.Fetch(ctx, link)
		if err != nil {
			if ctx.Err() != nil {
				return retry.Stop[string](ctx.Err())
			}
			return retry.Retryable[string](err)
		}
		text, ok := scrape.ParseArticle(body)
		if !ok {
			return retry.Retryable[string](errNoArticleDiv)
		}
		return retry.Ok(text)
	})

	if errors.Is(err, retry.ErrExhausted) {
		debuglog.Warnf("article body unavailable for %s: %v", link, err)
		return "", nil
	}
	return content, err
}
