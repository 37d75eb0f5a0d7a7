package rest

import (
	"net"
	"net/http"
	"strings"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	v0_rest "github.com/misstter/server/pkg/api/rest/v0"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

type Options struct {
	API            *v0_rest.API
	Frontend       http.Handler // nil serves no frontend
	AllowedOrigins []string
	RealIPHeader   string
	Log            logrus.FieldLogger
}

func Router(opts Options) *chi.Mux {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	r := chi.NewRouter()

	// Panic recovery, reported to Sentry first
	r.Use(middleware.Recoverer)
	r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)

	// CORS middleware
	r.Use(cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"OPTIONS", "GET", "POST", "DELETE"},
		AllowedHeaders: []string{"*"},
	}).Handler)

	// IP address middleware
	r.Use(realIP(opts.RealIPHeader))

	r.Use(requestLogger(opts.Log))

	// Mount routers
	r.Mount("/", opts.API.Router()) // default
	r.Mount("/v0", opts.API.Router())

	if opts.Frontend != nil {
		r.Get("/", opts.Frontend.ServeHTTP)
		r.Get("/front/*", opts.Frontend.ServeHTTP)
	}

	return r
}

func realIP(header string) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if header != "" && r.Header.Get(header) != "" {
				// Proxies append to the header, the first entry is the client
				r.RemoteAddr = strings.TrimSpace(strings.Split(r.Header.Get(header), ",")[0])
			} else if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				r.RemoteAddr = host
			}
			h.ServeHTTP(w, r)
		})
	}
}

func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			h.ServeHTTP(ww, r)

			entry := log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   ww.Status(),
				"duration": time.Since(start).String(),
				"addr":     r.RemoteAddr,
			})
			if ww.Status() >= http.StatusInternalServerError {
				entry.Warn("request")
			} else {
				entry.Debug("request")
			}
		})
	}
}
