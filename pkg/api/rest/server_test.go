package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	v0_rest "github.com/misstter/server/pkg/api/rest/v0"
	"github.com/misstter/server/pkg/networks"
	"github.com/misstter/server/pkg/posts"
	"github.com/misstter/server/pkg/store/memory"
	"github.com/misstter/server/web"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, realIPHeader string, blocked ...string) http.Handler {
	t.Helper()
	logger, _ := test.NewNullLogger()

	blocklist, err := networks.NewBlocklist(blocked)
	require.NoError(t, err)

	api := v0_rest.New(v0_rest.Options{
		Posts:     posts.NewService(posts.Options{Store: memory.New(), Log: logger}),
		Log:       logger,
		Blocklist: blocklist,
		Storage:   "memory",
	})
	return Router(Options{
		API:            api,
		Frontend:       web.Handler(),
		AllowedOrigins: []string{"*"},
		RealIPHeader:   realIPHeader,
		Log:            logger,
	})
}

func TestApiMountedAtRootAndV0(t *testing.T) {
	router := newTestRouter(t, "")

	for _, path := range []string{"/posts", "/v0/posts", "/status", "/v0/status"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestServesFrontend(t *testing.T) {
	router := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "front/js/home.js")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/front/js/home.js", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "misstter_my_posts")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/front/missing.js", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRealIPHeader(t *testing.T) {
	router := newTestRouter(t, "X-Forwarded-For", "10.0.0.0/8")

	req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(`{"text":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "10.2.3.4, 172.16.0.1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Without the header the socket address is used
	req = httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(`{"text":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestStatusSeesSocketAddress(t *testing.T) {
	router := newTestRouter(t, "", "192.0.2.0/24")

	// httptest requests come from 192.0.2.1:1234
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status v0_rest.StatusResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.IPBlocked)
}

func TestRouterWithoutLogger(t *testing.T) {
	logger, _ := test.NewNullLogger()
	router := Router(Options{
		API: v0_rest.New(v0_rest.Options{
			Posts: posts.NewService(posts.Options{Store: memory.New(), Log: logger}),
			Log:   logger,
		}),
	})

	// Requests are logged through the standard logger
	std := logrus.StandardLogger()
	hook := test.NewLocal(std)
	level := std.GetLevel()
	std.SetLevel(logrus.DebugLevel)
	t.Cleanup(func() {
		std.SetLevel(level)
		std.ReplaceHooks(make(logrus.LevelHooks))
	})

	for _, path := range []string{"/status", "/posts"} {
		hook.Reset()
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)

		entry := hook.LastEntry()
		require.NotNil(t, entry, path)
		assert.Equal(t, "request", entry.Message)
		assert.Equal(t, path, entry.Data["path"])
		assert.Equal(t, http.StatusOK, entry.Data["status"])
	}
}

func TestCORS(t *testing.T) {
	router := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodOptions, "/posts", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
