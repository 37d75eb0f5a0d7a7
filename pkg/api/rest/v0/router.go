package v0_rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/misstter/server/pkg/networks"
	"github.com/misstter/server/pkg/posts"
	"github.com/sirupsen/logrus"
)

type Options struct {
	Posts     *posts.Service
	Log       logrus.FieldLogger
	Limiter   *Ratelimiter // nil disables rate limiting
	Blocklist *networks.Blocklist
	Storage   string
}

type blocker interface {
	IsBlocked(address string) (bool, error)
}

type API struct {
	posts     *posts.Service
	log       logrus.FieldLogger
	limiter   *Ratelimiter
	blocklist blocker
	storage   string
}

func New(opts Options) *API {
	a := &API{
		posts:     opts.Posts,
		log:       opts.Log,
		limiter:   opts.Limiter,
		blocklist: opts.Blocklist,
		storage:   opts.Storage,
	}
	if a.log == nil {
		a.log = logrus.StandardLogger()
	}
	return a
}

func (a *API) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/status", a.getStatus)
	r.Get("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {})
	r.Mount("/posts", a.PostsRouter())

	return r
}

func (a *API) PostsRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/", a.getPosts)
	r.With(a.checkBlocked).Post("/", a.createPost)

	r.Route("/{postId}", func(r chi.Router) {
		r.Use(a.checkBlocked)
		r.Delete("/", a.deletePost)
		r.Post("/donmai", a.addDonmai)
		r.Delete("/donmai", a.removeDonmai)
	})

	return r
}

// checkBlocked rejects requests from blocked networks.
func (a *API) checkBlocked(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.isBlocked(r) {
			returnErr(w, http.StatusForbidden, ErrIPBlocked, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isBlocked treats a failed lookup as not blocked.
func (a *API) isBlocked(r *http.Request) bool {
	blocked, err := a.blocklist.IsBlocked(r.RemoteAddr)
	if err != nil {
		a.log.WithError(err).WithField("addr", r.RemoteAddr).Warn("blocklist lookup failed")
		return false
	}
	return blocked
}
