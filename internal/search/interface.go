package search

import "github.com/pders01/fxdigest/internal/storage"

// Indexer receives articles as they are stored.
type Indexer interface {
	IndexArticles(articles ...*storage.Article) error
}

// Searcher answers full-text queries over stored articles.
type Searcher interface {
	Search(query string, limit int) ([]*Result, error)
}

// Result is one hit. Content is not stored in the index; callers that need
// it read the article back from the store by Link.
type Result struct {
	ID    string
	Title string
	Link  string
	Score float64
}
