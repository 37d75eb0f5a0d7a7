package v0_rest

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/sha3"
)

// Increments the counter and makes sure it carries an expiry, also when an
// earlier hit failed to set one.
var hitScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// Ratelimiter counts actions per bucket, scope and identifier in redis.
// Counters start on the first hit and expire after the window.
type Ratelimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRatelimiter(client *redis.Client, limit int, window time.Duration) *Ratelimiter {
	return &Ratelimiter{
		client: client,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Limited reports whether the identifier has used up its allowance.
func (l *Ratelimiter) Limited(ctx context.Context, bucket string, scope string, id string) (bool, error) {
	count, err := l.client.Get(ctx, getRatelimitHash(bucket, scope, id)).Int()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return count >= l.limit, nil
}

// Hit records one action and sets the X-Rtl-* response headers.
//
// Only 1 ratelimit should be hit before returning a response, otherwise the
// headers get overwritten.
func (l *Ratelimiter) Hit(ctx context.Context, w http.ResponseWriter, bucket string, scope string, id string) error {
	ratelimitHash := getRatelimitHash(bucket, scope, id)

	result, err := hitScript.Run(ctx, l.client, []string{ratelimitHash}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return err
	}
	count, ttl := result[0], time.Duration(result[1])*time.Millisecond

	remaining := int64(l.limit) - count
	if remaining < 0 {
		remaining = 0
	}

	// Set response headers
	w.Header().Set("X-Rtl-Bucket", bucket)
	w.Header().Set("X-Rtl-Scope", scope)
	w.Header().Set("X-Rtl-Remaining", strconv.FormatInt(remaining, 10))
	w.Header().Set("X-Rtl-Reset", strconv.FormatInt(l.now().Add(ttl).UnixMilli(), 10))

	return nil
}

func getRatelimitHash(bucket string, scope string, id string) string {
	h := sha3.NewShake256()
	h.Write([]byte("rtl"))
	h.Write([]byte(bucket))
	h.Write([]byte(scope))
	h.Write([]byte(id))

	sum := make([]byte, 32)
	h.Read(sum)
	return base64.URLEncoding.EncodeToString(sum)
}
