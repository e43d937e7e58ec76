package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var articlesBucket = []byte("articles")

// BoltStore keeps articles in a single bucket keyed by link. bbolt
// serializes write transactions, so the existence check in Insert cannot
// race with another insert.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(dbPath string, timeout time.Duration) (*BoltStore, error) {
	if timeout <= 0 {
		timeout = 1 * time.Second
	}
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists(articlesBucket)
		return createErr
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Exists(ctx context.Context, link string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(articlesBucket).Get([]byte(link)) != nil
		return nil
	})
	return found, err
}

func (s *BoltStore) Get(ctx context.Context, link string) (*Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var article Article
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(articlesBucket).Get([]byte(link))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &article)
	})
	if err != nil {
		return nil, err
	}
	return &article, nil
}

func (s *BoltStore) Insert(ctx context.Context, a *Article) error {
	if err := a.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding article: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(articlesBucket)
		if b.Get([]byte(a.Link)) != nil {
			return ErrDuplicate
		}
		return b.Put([]byte(a.Link), data)
	})
}

func (s *BoltStore) Update(ctx context.Context, a *Article) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(articlesBucket)
		data := b.Get([]byte(a.Link))
		if data == nil {
			return ErrNotFound
		}

		var stored Article
		if err := json.Unmarshal(data, &stored); err != nil {
			return err
		}
		if a.Title != "" {
			stored.Title = a.Title
		}
		stored.Content = a.Content

		updated, err := json.Marshal(&stored)
		if err != nil {
			return err
		}
		return b.Put([]byte(a.Link), updated)
	})
}

func (s *BoltStore) Delete(ctx context.Context, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(articlesBucket)
		if b.Get([]byte(link)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(link))
	})
}

func (s *BoltStore) List(ctx context.Context, limit int) ([]*Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var articles []*Article
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(articlesBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if limit > 0 && len(articles) >= limit {
				break
			}
			var article Article
			if err := json.Unmarshal(v, &article); err != nil {
				return err
			}
			articles = append(articles, &article)
		}
		return nil
	})
	return articles, err
}

func (s *BoltStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(articlesBucket).Stats().KeyN
		return nil
	})
	return n, err
}
