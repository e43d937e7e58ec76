package scrape

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const articleSelector = "div#article"

// ParseArticle returns the visible text of the article container. ok is
// false when the container is absent.
func ParseArticle(body string) (text string, ok bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", false
	}

	container := doc.Find(articleSelector).First()
	if container.Length() == 0 {
		return "", false
	}
	return visibleText(container), true
}
