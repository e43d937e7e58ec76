package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/pders01/fxdigest/internal/storage"
)

// BleveIndex is a full-text index of stored articles.
type BleveIndex struct {
	idx bleve.Index
}

// OpenBleveIndex opens the index at indexPath, creating it if needed. An
// empty path gives an in-memory index.
func OpenBleveIndex(indexPath string) (*BleveIndex, error) {
	if indexPath == "" {
		idx, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("creating in-memory index: %w", err)
		}
		return &BleveIndex{idx: idx}, nil
	}

	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	idx, err := bleve.Open(indexPath)
	if err != nil {
		idx, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("creating index: %w", err)
		}
	}
	return &BleveIndex{idx: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	title := bleve.NewTextFieldMapping()
	title.Analyzer = standard.Name
	title.Store = true
	title.IncludeTermVectors = true

	content := bleve.NewTextFieldMapping()
	content.Analyzer = standard.Name
	content.Store = false

	link := bleve.NewTextFieldMapping()
	link.Analyzer = standard.Name
	link.Store = true

	dm.AddFieldMappingsAt("title", title)
	dm.AddFieldMappingsAt("content", content)
	dm.AddFieldMappingsAt("link", link)

	im.DefaultMapping = dm
	return im
}

func (b *BleveIndex) Close() error {
	return b.idx.Close()
}

func (b *BleveIndex) IndexArticles(articles ...*storage.Article) error {
	if len(articles) == 0 {
		return nil
	}
	batch := b.idx.NewBatch()
	for _, a := range articles {
		if err := batch.Index(docIDForArticle(a.ID), articleDoc(a)); err != nil {
			return fmt.Errorf("indexing %s: %w", a.Link, err)
		}
	}
	return b.idx.Batch(batch)
}

// Reindex rebuilds documents for every stored article.
func (b *BleveIndex) Reindex(ctx context.Context, store storage.Store) (int, error) {
	articles, err := store.List(ctx, 0)
	if err != nil {
		return 0, err
	}
	if err := b.IndexArticles(articles...); err != nil {
		return 0, err
	}
	return len(articles), nil
}

func (b *BleveIndex) Delete(id string) error {
	return b.idx.Delete(docIDForArticle(id))
}

func (b *BleveIndex) Search(query string, limit int) ([]*Result, error) {
	if len(strings.TrimSpace(query)) < 2 {
		return []*Result{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	// OR of per-term matches across fields, title weighted highest.
	var qs []bleveQuery.Query
	for _, tok := range tokenize(query) {
		qs = append(qs,
			fieldMatch(tok, "title", 4.0),
			fieldPrefix(tok, "title", 3.5),
			fieldMatch(tok, "content", 1.0),
			fieldPrefix(tok, "content", 0.8),
			fieldMatch(tok, "link", 0.5),
		)
	}
	if len(qs) == 0 {
		return []*Result{}, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(qs...), limit, 0, false)
	req.Fields = []string{"title", "link"}
	res, err := b.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	out := make([]*Result, 0, len(res.Hits))
	for _, h := range res.Hits {
		r := &Result{
			ID:    strings.TrimPrefix(h.ID, "article:"),
			Score: h.Score,
		}
		if t, ok := h.Fields["title"].(string); ok {
			r.Title = t
		}
		if l, ok := h.Fields["link"].(string); ok {
			r.Link = l
		}
		out = append(out, r)
	}
	return out, nil
}

// DocCount reports total documents in the index.
func (b *BleveIndex) DocCount() (int, error) {
	n, err := b.idx.DocCount()
	return int(n), err
}

func fieldMatch(tok, field string, boost float64) bleveQuery.Query {
	q := bleve.NewMatchQuery(tok)
	q.SetField(field)
	q.SetBoost(boost)
	return q
}

func fieldPrefix(tok, field string, boost float64) bleveQuery.Query {
	q := bleve.NewPrefixQuery(tok)
	q.SetField(field)
	q.SetBoost(boost)
	return q
}

func articleDoc(a *storage.Article) map[string]any {
	return map[string]any{
		"title":   a.Title,
		"content": a.Content,
		"link":    a.Link,
	}
}

func docIDForArticle(id string) string { return "article:" + id }
