package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/misstter/server/pkg/posts"
	"github.com/misstter/server/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, now *time.Time) *posts.Service {
	t.Helper()
	return posts.NewService(posts.Options{
		Store: memory.New(),
		Now:   func() time.Time { return *now },
	})
}

func TestList(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	service := newTestService(t, &now)

	_, err := service.Create(ctx, "tripped\non the  stairs")
	require.NoError(t, err)
	now = now.Add(3 * time.Hour)

	var out bytes.Buffer
	require.NoError(t, execute(ctx, &out, service, now, "list", false))
	assert.Contains(t, out.String(), "3 hours ago")
	assert.Contains(t, out.String(), "tripped on the stairs")
}

func TestListEmpty(t *testing.T) {
	now := time.Now()
	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), &out, newTestService(t, &now), now, "list", false))
	assert.Equal(t, "no posts\n", out.String())
}

func TestClearNeedsConfirmation(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	service := newTestService(t, &now)
	_, err := service.Create(ctx, "oops")
	require.NoError(t, err)

	var out bytes.Buffer
	assert.ErrorIs(t, execute(ctx, &out, service, now, "clear", false), ErrNotConfirmed)

	require.NoError(t, execute(ctx, &out, service, now, "clear", true))
	assert.Equal(t, "deleted 1 posts\n", out.String())

	list, err := service.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	service := newTestService(t, &now)
	_, err := service.Create(ctx, "old news")
	require.NoError(t, err)
	now = now.Add(8 * 24 * time.Hour)

	var out bytes.Buffer
	require.NoError(t, execute(ctx, &out, service, now, "sweep", false))
	assert.Equal(t, "swept 1 expired posts\n", out.String())
}

func TestUnknownCommand(t *testing.T) {
	now := time.Now()
	err := execute(context.Background(), &bytes.Buffer{}, newTestService(t, &now), now, "drop", false)
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b", preview("  a\n\tb "))

	long := preview(strings.Repeat("失", 100))
	assert.Equal(t, previewLength, len([]rune(long)))
	assert.True(t, strings.HasSuffix(long, "…"))
}
