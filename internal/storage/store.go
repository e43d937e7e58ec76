package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pders01/fxdigest/internal/config"
)

var (
	ErrNotFound       = errors.New("article not found")
	ErrDuplicate      = errors.New("article with this link already exists")
	ErrInvalidArticle = errors.New("article requires id, title and link")
)

// Store is the identity store for articles, keyed by canonical link.
type Store interface {
	Exists(ctx context.Context, link string) (bool, error)
	// Get returns ErrNotFound when no article has this link.
	Get(ctx context.Context, link string) (*Article, error)
	// Insert returns ErrDuplicate when the link is already stored.
	Insert(ctx context.Context, a *Article) error
	// Update replaces title and content of the article stored under a.Link.
	Update(ctx context.Context, a *Article) error
	Delete(ctx context.Context, link string) error
	// List returns up to limit articles ordered by link; limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*Article, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case "", "bolt":
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		return NewBoltStore(cfg.Path, cfg.Timeout)
	case "postgres":
		return NewPostgresStore(ctx, cfg.DSN, cfg.MaxConns)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
