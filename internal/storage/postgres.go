package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `CREATE TABLE IF NOT EXISTS articles (
	id      TEXT PRIMARY KEY,
	title   TEXT NOT NULL,
	link    TEXT NOT NULL UNIQUE,
	content TEXT
)`

// PostgresStore relies on the UNIQUE constraint on link for identity.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 2
	}
	cfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, link string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM articles WHERE link = $1)`, link).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking article: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Get(ctx context.Context, link string) (*Article, error) {
	var a Article
	var content *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, link, content FROM articles WHERE link = $1`, link,
	).Scan(&a.ID, &a.Title, &a.Link, &content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading article: %w", err)
	}
	if content != nil {
		a.Content = *content
	}
	return &a, nil
}

func (s *PostgresStore) Insert(ctx context.Context, a *Article) error {
	if err := a.validate(); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO articles (id, title, link, content) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (link) DO NOTHING`,
		a.ID, a.Title, a.Link, nullable(a.Content),
	)
	if err != nil {
		return fmt.Errorf("inserting article: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, a *Article) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE articles SET title = COALESCE(NULLIF($2, ''), title), content = $3 WHERE link = $1`,
		a.Link, a.Title, nullable(a.Content),
	)
	if err != nil {
		return fmt.Errorf("updating article: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, link string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM articles WHERE link = $1`, link)
	if err != nil {
		return fmt.Errorf("deleting article: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]*Article, error) {
	query := `SELECT id, title, link, content FROM articles ORDER BY link`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing articles: %w", err)
	}
	defer rows.Close()

	var articles []*Article
	for rows.Next() {
		var a Article
		var content *string
		if err := rows.Scan(&a.ID, &a.Title, &a.Link, &content); err != nil {
			return nil, fmt.Errorf("scanning article: %w", err)
		}
		if content != nil {
			a.Content = *content
		}
		articles = append(articles, &a)
	}
	return articles, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM articles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting articles: %w", err)
	}
	return n, nil
}

// nullable stores an empty body as NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
