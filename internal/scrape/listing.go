package scrape

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

const (
	newsListSelector  = `ul[data-test="news-list"]`
	titleLinkSelector = `a[data-test="article-title-link"]`
)

// Item is one listing entry. Link is the raw href as found.
type Item struct {
	Title string
	Link  string
}

// Listing is the result of parsing a listing page. Found is false when the
// page has no list container at all, which usually means a block page or a
// layout the parser does not know.
type Listing struct {
	Items []Item
	Found bool
}

// ListingParser turns a listing body into items.
type ListingParser interface {
	ParseListing(body string) (Listing, error)
}

// HTMLListing parses the site's news list markup.
type HTMLListing struct{}

func (HTMLListing) ParseListing(body string) (Listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return Listing{}, fmt.Errorf("parsing listing: %w", err)
	}

	list := doc.Find(newsListSelector).First()
	if list.Length() == 0 {
		return Listing{Found: false}, nil
	}

	listing := Listing{Found: true}
	list.Find("li").Each(func(_ int, li *goquery.Selection) {
		a := li.Find(titleLinkSelector).First()
		if a.Length() == 0 {
			return
		}
		href, ok := a.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		listing.Items = append(listing.Items, Item{
			Title: visibleText(a),
			Link:  href,
		})
	})

	return listing, nil
}

// RSSListing reads an RSS or Atom feed of the same section.
type RSSListing struct {
	parser *gofeed.Parser
}

func NewRSSListing() *RSSListing {
	return &RSSListing{parser: gofeed.NewParser()}
}

// ParseListing treats an unparseable feed as a missing listing so the page
// is retried like a block page would be.
func (r *RSSListing) ParseListing(body string) (Listing, error) {
	feed, err := r.parser.ParseString(body)
	if err != nil {
		return Listing{Found: false}, nil
	}

	listing := Listing{Found: true}
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}
		listing.Items = append(listing.Items, Item{
			Title: strings.TrimSpace(item.Title),
			Link:  link,
		})
	}
	return listing, nil
}

// NewListingParser returns the parser for a site.listing_format value.
func NewListingParser(format string) (ListingParser, error) {
	switch format {
	case "", "html":
		return HTMLListing{}, nil
	case "rss":
		return NewRSSListing(), nil
	default:
		return nil, fmt.Errorf("unknown listing format %q", format)
	}
}
