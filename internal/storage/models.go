package storage

// Article is a stored news article. Link is the canonical URL and the
// identity key: at most one Article exists per Link.
type Article struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Link    string `json:"link"`
	Content string `json:"content"`
}

func (a *Article) validate() error {
	if a.ID == "" || a.Title == "" || a.Link == "" {
		return ErrInvalidArticle
	}
	return nil
}
