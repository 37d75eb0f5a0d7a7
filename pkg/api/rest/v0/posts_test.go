package v0_rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/misstter/server/pkg/moderation"
	"github.com/misstter/server/pkg/networks"
	"github.com/misstter/server/pkg/postid"
	"github.com/misstter/server/pkg/posts"
	"github.com/misstter/server/pkg/store/memory"
	"github.com/misstter/server/pkg/structs"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubModerator moderation.Verdict

func (m stubModerator) Evaluate(context.Context, string) moderation.Verdict {
	return moderation.Verdict(m)
}

type testEnv struct {
	handler http.Handler
	clock   *clock
}

type envOption func(*posts.Options, *Options)

func withStore(s posts.Store) envOption {
	return func(p *posts.Options, _ *Options) { p.Store = s }
}

func withModerator(m posts.Moderator) envOption {
	return func(p *posts.Options, _ *Options) { p.Moderator = m }
}

func withLimiter(l *Ratelimiter) envOption {
	return func(_ *posts.Options, o *Options) { o.Limiter = l }
}

func withBlocklist(b *networks.Blocklist) envOption {
	return func(_ *posts.Options, o *Options) { o.Blocklist = b }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	logger, _ := test.NewNullLogger()
	c := &clock{now: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)}

	ids, err := postid.NewGenerator(1, c.Now)
	require.NoError(t, err)

	postOpts := posts.Options{
		Store: memory.New(),
		Ids:   ids,
		Log:   logger,
		Now:   c.Now,
	}
	apiOpts := Options{Log: logger, Storage: "memory"}
	for _, opt := range opts {
		opt(&postOpts, &apiOpts)
	}
	apiOpts.Posts = posts.NewService(postOpts)

	return &testEnv{handler: New(apiOpts).Router(), clock: c}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return e.doFrom(t, "192.0.2.1", method, path, body)
}

func (e *testEnv) doFrom(t *testing.T, addr, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		marshaled, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(marshaled)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = addr
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) create(t *testing.T, text string) CreatePostResp {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/posts", map[string]string{"text": text})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp CreatePostResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (e *testEnv) list(t *testing.T) []structs.V0Post {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/posts", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var list []structs.V0Post
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	return list
}

func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) ErrResp {
	t.Helper()
	var resp ErrResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func decodeDonmai(t *testing.T, rec *httptest.ResponseRecorder) int64 {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp DonmaiResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Donmai
}

func containsPost(list []structs.V0Post, id string) bool {
	for _, p := range list {
		if p.Id == id {
			return true
		}
	}
	return false
}

func TestPostLifecycle(t *testing.T) {
	env := newTestEnv(t)

	created := env.create(t, "  lost my keys  ")
	assert.Equal(t, "lost my keys", created.Post.Text)
	assert.Equal(t, int64(0), created.Post.ReactionCount)
	assert.Len(t, created.DeleteToken, 32)
	id := created.Post.Id

	assert.Equal(t, int64(1), decodeDonmai(t, env.do(t, http.MethodPost, "/posts/"+id+"/donmai", nil)))
	assert.Equal(t, int64(0), decodeDonmai(t, env.do(t, http.MethodDelete, "/posts/"+id+"/donmai", nil)))
	assert.Equal(t, int64(0), decodeDonmai(t, env.do(t, http.MethodDelete, "/posts/"+id+"/donmai", nil)))

	rec := env.do(t, http.MethodDelete, "/posts/"+id, DeletePostReq{Token: "wrong"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeErr(t, rec).Type)
	assert.True(t, containsPost(env.list(t), id))

	rec = env.do(t, http.MethodDelete, "/posts/"+id, DeletePostReq{Token: created.DeleteToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var msg MessageResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.NotEmpty(t, msg.Message)

	assert.False(t, containsPost(env.list(t), id))
}

func TestListHidesDeleteToken(t *testing.T) {
	env := newTestEnv(t)
	created := env.create(t, "forgot my umbrella")

	rec := env.do(t, http.MethodGet, "/posts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotContains(t, rec.Body.String(), created.DeleteToken)
	assert.NotContains(t, rec.Body.String(), "deleteToken")
}

func TestListNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	first := env.create(t, "first")
	env.clock.Advance(time.Second)
	second := env.create(t, "second")

	list := env.list(t)
	require.Len(t, list, 2)
	assert.Equal(t, second.Post.Id, list[0].Id)
	assert.Equal(t, first.Post.Id, list[1].Id)
}

func TestListCapsAtFifty(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < posts.ListLimit+5; i++ {
		env.create(t, "again")
	}
	assert.Len(t, env.list(t), posts.ListLimit)
}

func TestCreateRejectsEmptyText(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "existing")

	for _, body := range []interface{}{
		map[string]string{"text": ""},
		map[string]string{"text": "   \n\t "},
		map[string]string{},
	} {
		rec := env.do(t, http.MethodPost, "/posts", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "emptyText", decodeErr(t, rec).Type)
	}

	// No body at all
	rec := env.do(t, http.MethodPost, "/posts", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Len(t, env.list(t), 1)
}

func TestCreateRejectsLongText(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/posts", map[string]string{"text": strings.Repeat("a", 256)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeErr(t, rec)
	assert.Equal(t, "textTooLong", resp.Type)
	assert.Contains(t, resp.Error, "255")

	// Limit counts characters, not bytes
	created := env.create(t, strings.Repeat("あ", 255))
	assert.Equal(t, 255, len([]rune(created.Post.Text)))

	// Surrounding whitespace does not count
	env.create(t, "  "+strings.Repeat("b", 255)+"  ")
}

func TestCreateRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "badRequest", decodeErr(t, rec).Type)

	req = httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader("text=hi"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/posts", map[string]string{"text": strings.Repeat("x", 9000)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeErr(t, rec)
	assert.Equal(t, "badRequest", resp.Type)
	assert.Contains(t, resp.Fields, "text")
}

func TestModerationRejectIsBadRequest(t *testing.T) {
	env := newTestEnv(t, withModerator(stubModerator(moderation.Reject)))

	rec := env.do(t, http.MethodPost, "/posts", map[string]string{"text": "I won the lottery"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeErr(t, rec)
	assert.Equal(t, "moderationRejected", resp.Type)
	assert.NotEmpty(t, resp.Error)
	assert.Empty(t, env.list(t))
}

func TestModerationAccept(t *testing.T) {
	env := newTestEnv(t, withModerator(stubModerator(moderation.Accept)))
	env.create(t, "missed the last train")
	assert.Len(t, env.list(t), 1)
}

func TestDeleteWithoutToken(t *testing.T) {
	env := newTestEnv(t)
	created := env.create(t, "sent the email to the wrong person")

	rec := env.do(t, http.MethodDelete, "/posts/"+created.Post.Id, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeErr(t, rec).Type)

	rec = env.do(t, http.MethodDelete, "/posts/"+created.Post.Id, DeletePostReq{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.True(t, containsPost(env.list(t), created.Post.Id))
}

func TestDeleteUnknownPostIsForbidden(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodDelete, "/posts/12345", DeletePostReq{Token: "whatever"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReactionsOnUnknownPost(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/posts/12345/donmai", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "notFound", decodeErr(t, rec).Type)

	rec = env.do(t, http.MethodDelete, "/posts/12345/donmai", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReactionsCommute(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, "dropped my phone in the bath").Post.Id
	path := "/posts/" + id + "/donmai"

	decodeDonmai(t, env.do(t, http.MethodPost, path, nil))
	decodeDonmai(t, env.do(t, http.MethodPost, path, nil))

	assert.Equal(t, int64(3), decodeDonmai(t, env.do(t, http.MethodPost, path, nil)))
	assert.Equal(t, int64(2), decodeDonmai(t, env.do(t, http.MethodDelete, path, nil)))
	assert.Equal(t, int64(1), decodeDonmai(t, env.do(t, http.MethodDelete, path, nil)))
	assert.Equal(t, int64(2), decodeDonmai(t, env.do(t, http.MethodPost, path, nil)))
}

func TestRetention(t *testing.T) {
	env := newTestEnv(t)
	old := env.create(t, "eight days ago")
	env.clock.Advance(2 * 24 * time.Hour)
	recent := env.create(t, "six days ago")
	env.clock.Advance(6 * 24 * time.Hour)

	list := env.list(t)
	assert.False(t, containsPost(list, old.Post.Id))
	assert.True(t, containsPost(list, recent.Post.Id))
}

func TestStatus(t *testing.T) {
	blocklist, err := networks.NewBlocklist([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	env := newTestEnv(t, withModerator(stubModerator(moderation.Accept)), withBlocklist(blocklist))

	rec := env.doFrom(t, "10.1.1.1", http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status StatusResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, StatusResp{
		Storage:       "memory",
		Moderation:    true,
		RetentionDays: 7,
		MaxTextLength: 255,
		IPBlocked:     true,
	}, status)
}

func TestBlockedNetwork(t *testing.T) {
	blocklist, err := networks.NewBlocklist([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	env := newTestEnv(t, withBlocklist(blocklist))
	id := env.create(t, "posted from home").Post.Id

	rec := env.doFrom(t, "10.0.0.5", http.MethodPost, "/posts", map[string]string{"text": "hello"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "ipBlocked", decodeErr(t, rec).Type)

	rec = env.doFrom(t, "10.0.0.5", http.MethodPost, "/posts/"+id+"/donmai", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.doFrom(t, "10.0.0.5", http.MethodGet, "/posts", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateRatelimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	env := newTestEnv(t, withLimiter(NewRatelimiter(client, 2, time.Minute)))
	body := map[string]string{"text": "slipped on the stairs"}

	rec := env.do(t, http.MethodPost, "/posts", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Rtl-Remaining"))
	assert.Equal(t, "post", rec.Header().Get("X-Rtl-Bucket"))

	// Rejected posts do not count
	rec = env.do(t, http.MethodPost, "/posts", map[string]string{"text": " "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/posts", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-Rtl-Remaining"))

	rec = env.do(t, http.MethodPost, "/posts", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "tooManyRequests", decodeErr(t, rec).Type)

	// Other addresses have their own allowance
	rec = env.doFrom(t, "192.0.2.99", http.MethodPost, "/posts", body)
	assert.Equal(t, http.StatusCreated, rec.Code)

	mr.FastForward(time.Minute + time.Second)
	rec = env.do(t, http.MethodPost, "/posts", body)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

type brokenStore struct {
	posts.Store
	sweepErr error
	listErr  error
}

func (s *brokenStore) SweepOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.sweepErr != nil {
		return 0, s.sweepErr
	}
	return s.Store.SweepOlderThan(ctx, cutoff)
}

func (s *brokenStore) ListRecent(ctx context.Context, limit int) ([]posts.Post, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.Store.ListRecent(ctx, limit)
}

func TestStorageFailureIsInternal(t *testing.T) {
	env := newTestEnv(t, withStore(&brokenStore{
		Store:   memory.New(),
		listErr: errors.New("dial tcp 10.9.8.7:6379: connection refused"),
	}))

	rec := env.do(t, http.MethodGet, "/posts", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeErr(t, rec)
	assert.Equal(t, "internal", resp.Type)
	assert.NotContains(t, resp.Error, "10.9.8.7")
}

func TestSweepFailureIsSwallowed(t *testing.T) {
	env := newTestEnv(t, withStore(&brokenStore{
		Store:    memory.New(),
		sweepErr: errors.New("sweep exploded"),
	}))

	env.create(t, "still works")
	assert.Len(t, env.list(t), 1)
}

func TestRatelimitHashIsStable(t *testing.T) {
	a := getRatelimitHash("post", "ip", "192.0.2.1")
	assert.Equal(t, a, getRatelimitHash("post", "ip", "192.0.2.1"))
	assert.NotEqual(t, a, getRatelimitHash("post", "ip", "192.0.2.2"))
	assert.NotContains(t, a, "192.0.2.1")
}
