package posts

import (
	"context"
	"time"
)

// Store persists posts. Implementations live under pkg/store.
//
// Counter updates must be atomic at the backend: the service does no
// locking of its own.
type Store interface {
	// ListRecent returns at most limit posts, newest first.
	ListRecent(ctx context.Context, limit int) ([]Post, error)

	// Insert persists a fully populated post.
	Insert(ctx context.Context, post Post) error

	// IncrementReaction returns the new count, or ErrPostNotFound.
	IncrementReaction(ctx context.Context, id string) (int64, error)

	// DecrementReaction returns the new count, never below zero, or
	// ErrPostNotFound.
	DecrementReaction(ctx context.Context, id string) (int64, error)

	// DeleteIfTokenMatches deletes the post only when it exists and its
	// stored token equals token. A missing post and a wrong token both
	// report false.
	DeleteIfTokenMatches(ctx context.Context, id string, token string) (bool, error)

	// SweepOlderThan deletes every post created before cutoff.
	SweepOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Clear deletes every post.
	Clear(ctx context.Context) (int64, error)

	Close(ctx context.Context) error
}
