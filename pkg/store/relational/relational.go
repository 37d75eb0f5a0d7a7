// Package relational stores posts in a single PostgreSQL table.
package relational

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/misstter/server/pkg/posts"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS posts (
	id            TEXT PRIMARY KEY,
	text          TEXT NOT NULL,
	donmai        BIGINT NOT NULL DEFAULT 0 CHECK (donmai >= 0),
	"timestamp"   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	"deleteToken" TEXT NOT NULL
)`,
	// Upgrades tables created with a VARCHAR(1024) text column
	`ALTER TABLE posts ALTER COLUMN text TYPE TEXT`,
	`CREATE INDEX IF NOT EXISTS posts_timestamp_idx ON posts ("timestamp" DESC)`,
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InitializeTables creates the posts table if it doesn't exist yet.
func (s *Store) InitializeTables(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create posts table: %w", err)
		}
	}
	return nil
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]posts.Post, error) {
	if limit <= 0 {
		return []posts.Post{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, text, donmai, "timestamp" FROM posts ORDER BY "timestamp" DESC, id DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	result := make([]posts.Post, 0, limit)
	for rows.Next() {
		var p posts.Post
		if err := rows.Scan(&p.Id, &p.Text, &p.ReactionCount, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return result, nil
}

func (s *Store) Insert(ctx context.Context, post posts.Post) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO posts (id, text, donmai, "timestamp", "deleteToken") VALUES ($1, $2, $3, $4, $5)`,
		post.Id, post.Text, post.ReactionCount, post.CreatedAt, post.DeleteToken)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *Store) IncrementReaction(ctx context.Context, id string) (int64, error) {
	return s.updateCount(ctx, `UPDATE posts SET donmai = donmai + 1 WHERE id = $1 RETURNING donmai`, id)
}

func (s *Store) DecrementReaction(ctx context.Context, id string) (int64, error) {
	return s.updateCount(ctx, `UPDATE posts SET donmai = GREATEST(donmai - 1, 0) WHERE id = $1 RETURNING donmai`, id)
}

func (s *Store) updateCount(ctx context.Context, query string, id string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, query, id).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, posts.ErrPostNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("update reaction count: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteIfTokenMatches(ctx context.Context, id string, token string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1 AND "deleteToken" = $2`, id, token)
	if err != nil {
		return false, fmt.Errorf("delete post: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SweepOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE "timestamp" < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep posts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) Clear(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts`)
	if err != nil {
		return 0, fmt.Errorf("clear posts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}
