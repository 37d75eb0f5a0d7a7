package memory

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/misstter/server/pkg/posts"
)

// Store keeps posts in process memory, newest first. Everything is lost on
// restart.
type Store struct {
	mu    sync.RWMutex
	posts []posts.Post
}

func New() *Store {
	return &Store{posts: make([]posts.Post, 0)}
}

func (s *Store) ListRecent(_ context.Context, limit int) ([]posts.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = max(0, min(limit, len(s.posts)))
	result := make([]posts.Post, limit)
	copy(result, s.posts[:limit])
	return result, nil
}

func (s *Store) Insert(_ context.Context, post posts.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.posts = append([]posts.Post{post}, s.posts...)
	return nil
}

func (s *Store) IncrementReaction(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i == -1 {
		return 0, posts.ErrPostNotFound
	}
	s.posts[i].ReactionCount++
	return s.posts[i].ReactionCount, nil
}

func (s *Store) DecrementReaction(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i == -1 {
		return 0, posts.ErrPostNotFound
	}
	if s.posts[i].ReactionCount > 0 {
		s.posts[i].ReactionCount--
	}
	return s.posts[i].ReactionCount, nil
}

func (s *Store) DeleteIfTokenMatches(_ context.Context, id string, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i == -1 {
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(s.posts[i].DeleteToken), []byte(token)) != 1 {
		return false, nil
	}
	s.posts = append(s.posts[:i], s.posts[i+1:]...)
	return true, nil
}

func (s *Store) SweepOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.posts[:0]
	for _, p := range s.posts {
		if p.CreatedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, p)
	}
	swept := int64(len(s.posts) - len(kept))
	s.posts = kept
	return swept, nil
}

func (s *Store) Clear(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := int64(len(s.posts))
	s.posts = make([]posts.Post, 0)
	return cleared, nil
}

func (s *Store) Close(context.Context) error {
	return nil
}

func (s *Store) indexOf(id string) int {
	for i := range s.posts {
		if s.posts[i].Id == id {
			return i
		}
	}
	return -1
}
