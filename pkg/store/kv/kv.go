// Package kv stores posts in Redis as an ordered id list plus one hash per
// post:
//
//	posts:ids  -> LIST  [newest id, ..., oldest id]
//	post:<id>  -> HASH  {id, text, donmai, timestamp, deleteToken}
//
// The two structures are written without a transaction. A failure between
// the writes can leave an index entry without a hash (or the reverse);
// readers skip such entries instead of failing.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/misstter/server/pkg/posts"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	IdsKey        = "posts:ids"
	postKeyPrefix = "post:"

	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
return redis.call('HINCRBY', KEYS[1], 'donmai', 1)
`)

var decrementScript = redis.NewScript(`
local count = redis.call('HGET', KEYS[1], 'donmai')
if not count then
	return false
end
count = tonumber(count)
if count > 0 then
	return redis.call('HINCRBY', KEYS[1], 'donmai', -1)
end
return count
`)

var deleteScript = redis.NewScript(`
local token = redis.call('HGET', KEYS[1], 'deleteToken')
if not token or token ~= ARGV[1] then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('LREM', KEYS[2], 0, ARGV[2])
return 1
`)

type Store struct {
	client *redis.Client
	log    logrus.FieldLogger
}

func New(client *redis.Client, log logrus.FieldLogger) *Store {
	return &Store{client: client, log: log}
}

func PostKey(id string) string {
	return postKeyPrefix + id
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]posts.Post, error) {
	if limit <= 0 {
		return []posts.Post{}, nil
	}

	// Get newest post IDs
	ids, err := s.client.LRange(ctx, IdsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list post ids: %w", err)
	}
	if len(ids) == 0 {
		return []posts.Post{}, nil
	}

	// Fetch every hash in one round trip
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	pipe := s.client.Pipeline()
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, PostKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("fetch posts: %w", err)
	}

	result := make([]posts.Post, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// Index entry without a hash
			continue
		}
		p, err := decodePost(fields)
		if err != nil {
			s.log.WithError(err).WithField("post", ids[i]).Warn("skipping malformed post record")
			continue
		}
		result = append(result, p)
	}
	return result, nil
}

func (s *Store) Insert(ctx context.Context, post posts.Post) error {
	if err := s.client.HSet(ctx, PostKey(post.Id), encodePost(post)).Err(); err != nil {
		return fmt.Errorf("write post: %w", err)
	}
	if err := s.client.LPush(ctx, IdsKey, post.Id).Err(); err != nil {
		return fmt.Errorf("index post: %w", err)
	}
	return nil
}

func (s *Store) IncrementReaction(ctx context.Context, id string) (int64, error) {
	return s.runCounter(ctx, incrementScript, id)
}

func (s *Store) DecrementReaction(ctx context.Context, id string) (int64, error) {
	return s.runCounter(ctx, decrementScript, id)
}

func (s *Store) runCounter(ctx context.Context, script *redis.Script, id string) (int64, error) {
	count, err := script.Run(ctx, s.client, []string{PostKey(id)}).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, posts.ErrPostNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("update reaction count: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteIfTokenMatches(ctx context.Context, id string, token string) (bool, error) {
	deleted, err := deleteScript.Run(ctx, s.client, []string{PostKey(id), IdsKey}, token, id).Int64()
	if err != nil {
		return false, fmt.Errorf("delete post: %w", err)
	}
	return deleted == 1, nil
}

func (s *Store) SweepOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ids, err := s.client.LRange(ctx, IdsKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("list post ids: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	// Get creation timestamps
	cmds := make([]*redis.StringCmd, len(ids))
	pipe := s.client.Pipeline()
	for i, id := range ids {
		cmds[i] = pipe.HGet(ctx, PostKey(id), "timestamp")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("fetch timestamps: %w", err)
	}

	var expired []string
	for i, cmd := range cmds {
		raw, err := cmd.Result()
		if err != nil {
			continue
		}
		ts, err := time.Parse(timestampLayout, raw)
		if err != nil {
			continue
		}
		if ts.Before(cutoff) {
			expired = append(expired, ids[i])
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	// Remove hash and index entry
	dels := make([]*redis.IntCmd, len(expired))
	pipe = s.client.Pipeline()
	for i, id := range expired {
		dels[i] = pipe.Del(ctx, PostKey(id))
		pipe.LRem(ctx, IdsKey, 0, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("delete expired posts: %w", err)
	}

	var swept int64
	for _, del := range dels {
		swept += del.Val()
	}
	return swept, nil
}

func (s *Store) Clear(ctx context.Context) (int64, error) {
	var cleared int64

	iter := s.client.Scan(ctx, 0, postKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := s.client.Del(ctx, iter.Val()).Result()
		if err != nil {
			return cleared, fmt.Errorf("delete post: %w", err)
		}
		cleared += n
	}
	if err := iter.Err(); err != nil {
		return cleared, fmt.Errorf("scan posts: %w", err)
	}

	if err := s.client.Del(ctx, IdsKey).Err(); err != nil {
		return cleared, fmt.Errorf("delete index: %w", err)
	}
	return cleared, nil
}

// Close is a no-op: the client is shared with the rate limiter and closed by
// whoever opened it.
func (s *Store) Close(context.Context) error {
	return nil
}

func encodePost(p posts.Post) map[string]interface{} {
	return map[string]interface{}{
		"id":          p.Id,
		"text":        p.Text,
		"donmai":      p.ReactionCount,
		"timestamp":   p.CreatedAt.UTC().Format(timestampLayout),
		"deleteToken": p.DeleteToken,
	}
}

func decodePost(fields map[string]string) (posts.Post, error) {
	var p posts.Post

	count, err := strconv.ParseInt(fields["donmai"], 10, 64)
	if err != nil {
		return p, fmt.Errorf("bad donmai field: %w", err)
	}
	createdAt, err := time.Parse(timestampLayout, fields["timestamp"])
	if err != nil {
		return p, fmt.Errorf("bad timestamp field: %w", err)
	}

	p.Id = fields["id"]
	p.Text = fields["text"]
	p.ReactionCount = count
	p.CreatedAt = createdAt
	p.DeleteToken = fields["deleteToken"]
	return p, nil
}
