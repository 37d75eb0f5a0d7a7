// Package storetest holds the behaviour every posts.Store implementation
// must share. Adapter tests call Run with a constructor for a fresh, empty
// store.
package storetest

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/misstter/server/pkg/posts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func newPost(n int, createdAt time.Time) posts.Post {
	return posts.Post{
		Id:          strconv.FormatInt(createdAt.UnixMilli(), 10) + strconv.Itoa(n),
		Text:        "failure #" + strconv.Itoa(n),
		CreatedAt:   createdAt,
		DeleteToken: "token-" + strconv.Itoa(n),
	}
}

func Run(t *testing.T, newStore func(t *testing.T) posts.Store) {
	t.Run("ListEmpty", func(t *testing.T) {
		s := newStore(t)
		list, err := s.ListRecent(context.Background(), posts.ListLimit)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("ListNewestFirstWithLimit", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		for i := 0; i < 5; i++ {
			require.NoError(t, s.Insert(ctx, newPost(i, base.Add(time.Duration(i)*time.Minute))))
		}

		list, err := s.ListRecent(ctx, 3)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "failure #4", list[0].Text)
		assert.Equal(t, "failure #3", list[1].Text)
		assert.Equal(t, "failure #2", list[2].Text)
	})

	t.Run("ListNonPositiveLimit", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, newPost(1, base)))

		for _, limit := range []int{0, -1} {
			list, err := s.ListRecent(ctx, limit)
			require.NoError(t, err, limit)
			assert.NotNil(t, list, limit)
			assert.Empty(t, list, limit)
		}
	})

	t.Run("LongTextRoundTrip", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		p := newPost(1, base)
		p.Text = strings.Repeat("失敗", 1500)
		require.NoError(t, s.Insert(ctx, p))

		list, err := s.ListRecent(ctx, posts.ListLimit)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, p.Text, list[0].Text)
	})

	t.Run("InsertRoundTrip", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		p := newPost(1, base)
		require.NoError(t, s.Insert(ctx, p))

		list, err := s.ListRecent(ctx, posts.ListLimit)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, p.Id, list[0].Id)
		assert.Equal(t, p.Text, list[0].Text)
		assert.Equal(t, int64(0), list[0].ReactionCount)
		assert.True(t, p.CreatedAt.Equal(list[0].CreatedAt), "createdAt %v != %v", p.CreatedAt, list[0].CreatedAt)
	})

	t.Run("Reactions", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		p := newPost(1, base)
		require.NoError(t, s.Insert(ctx, p))

		count, err := s.IncrementReaction(ctx, p.Id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		count, err = s.IncrementReaction(ctx, p.Id)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		count, err = s.DecrementReaction(ctx, p.Id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		list, err := s.ListRecent(ctx, posts.ListLimit)
		require.NoError(t, err)
		assert.Equal(t, int64(1), list[0].ReactionCount)
	})

	t.Run("DecrementClampsAtZero", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		p := newPost(1, base)
		require.NoError(t, s.Insert(ctx, p))

		for i := 0; i < 3; i++ {
			count, err := s.DecrementReaction(ctx, p.Id)
			require.NoError(t, err)
			assert.Equal(t, int64(0), count)
		}

		count, err := s.IncrementReaction(ctx, p.Id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("ReactionsOnMissingPost", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		_, err := s.IncrementReaction(ctx, "404")
		assert.ErrorIs(t, err, posts.ErrPostNotFound)

		_, err = s.DecrementReaction(ctx, "404")
		assert.ErrorIs(t, err, posts.ErrPostNotFound)

		list, err := s.ListRecent(ctx, posts.ListLimit)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("ConcurrentIncrements", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		p := newPost(1, base)
		require.NoError(t, s.Insert(ctx, p))

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.IncrementReaction(ctx, p.Id)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		list, err := s.ListRecent(ctx, posts.ListLimit)
		require.NoError(t, err)
		assert.Equal(t, int64(20), list[0].ReactionCount)
	})

	t.Run("DeleteIfTokenMatches", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		p := newPost(1, base)
		other := newPost(2, base.Add(time.Second))
		require.NoError(t, s.Insert(ctx, p))
		require.NoError(t, s.Insert(ctx, other))

		deleted, err := s.DeleteIfTokenMatches(ctx, p.Id, "wrong")
		require.NoError(t, err)
		assert.False(t, deleted)

		deleted, err = s.DeleteIfTokenMatches(ctx, "404", p.DeleteToken)
		require.NoError(t, err)
		assert.False(t, deleted)

		list, err := s.ListRecent(ctx, posts.ListLimit)
		require.NoError(t, err)
		assert.Len(t, list, 2)

		deleted, err = s.DeleteIfTokenMatches(ctx, p.Id, p.DeleteToken)
		require.NoError(t, err)
		assert.True(t, deleted)

		list, err = s.ListRecent(ctx, posts.ListLimit)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, other.Id, list[0].Id)

		_, err = s.IncrementReaction(ctx, p.Id)
		assert.ErrorIs(t, err, posts.ErrPostNotFound)
	})

	t.Run("SweepOlderThan", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		old := newPost(1, base.Add(-8*24*time.Hour))
		recent := newPost(2, base.Add(-6*24*time.Hour))
		require.NoError(t, s.Insert(ctx, old))
		require.NoError(t, s.Insert(ctx, recent))

		swept, err := s.SweepOlderThan(ctx, base.Add(-posts.RetentionWindow))
		require.NoError(t, err)
		assert.Equal(t, int64(1), swept)

		list, err := s.ListRecent(ctx, posts.ListLimit)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, recent.Id, list[0].Id)

		swept, err = s.SweepOlderThan(ctx, base.Add(-posts.RetentionWindow))
		require.NoError(t, err)
		assert.Equal(t, int64(0), swept)
	})

	t.Run("Clear", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		for i := 0; i < 3; i++ {
			require.NoError(t, s.Insert(ctx, newPost(i, base.Add(time.Duration(i)*time.Second))))
		}

		cleared, err := s.Clear(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), cleared)

		list, err := s.ListRecent(ctx, posts.ListLimit)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}
