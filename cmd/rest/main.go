package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/misstter/server/pkg/api/rest"
	v0_rest "github.com/misstter/server/pkg/api/rest/v0"
	"github.com/misstter/server/pkg/config"
	"github.com/misstter/server/pkg/moderation"
	"github.com/misstter/server/pkg/networks"
	"github.com/misstter/server/pkg/postid"
	"github.com/misstter/server/pkg/posts"
	"github.com/misstter/server/pkg/rdb"
	"github.com/misstter/server/pkg/store"
	"github.com/misstter/server/web"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := cfg.NewLogger()

	// Init Sentry
	if err := sentry.Init(sentry.ClientOptions{
		Dsn: cfg.SentryDSN,
	}); err != nil {
		log.WithError(err).Fatal("failed to init sentry")
	}
	// Wait for Sentry events to flush
	defer sentry.Flush(5 * time.Second)

	if err := run(cfg, log); err != nil {
		sentry.CaptureException(err)
		log.WithError(err).Error("server stopped")
		sentry.Flush(5 * time.Second)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init post IDs
	ids, err := postid.NewGenerator(cfg.NodeId, time.Now)
	if err != nil {
		return fmt.Errorf("init post ids: %w", err)
	}

	// Init Redis
	var redisClient *redis.Client
	if cfg.Storage.RedisURI != "" {
		if redisClient, err = rdb.Connect(ctx, cfg.Storage.RedisURI); err != nil {
			return err
		}
		defer redisClient.Close()
	}

	// Init storage
	postStore, err := store.Open(ctx, cfg.Storage, redisClient, log)
	if err != nil {
		return err
	}
	defer postStore.Close(context.Background())

	// Init moderation
	var moderator posts.Moderator
	if cfg.Moderation.Enabled() {
		client := moderation.NewClient(cfg.Moderation.APIKey, cfg.Moderation.APIURL, cfg.Moderation.Model)
		moderator = moderation.NewGate(client, log.WithField("component", "moderation"))
		log.WithField("model", cfg.Moderation.Model).Info("moderation enabled")
	} else {
		log.Info("moderation disabled, no API key set")
	}

	// Init ratelimits
	var limiter *v0_rest.Ratelimiter
	if redisClient != nil && cfg.Ratelimit.Posts > 0 {
		limiter = v0_rest.NewRatelimiter(redisClient, cfg.Ratelimit.Posts, time.Duration(cfg.Ratelimit.Seconds)*time.Second)
	}

	blocklist, err := networks.NewBlocklist(cfg.BlockedNetworks)
	if err != nil {
		return fmt.Errorf("parse blocked networks: %w", err)
	}

	service := posts.NewService(posts.Options{
		Store:         postStore,
		Moderator:     moderator,
		Ids:           ids,
		Log:           log.WithField("component", "posts"),
		MaxTextLength: cfg.MaxTextLength,
	})
	api := v0_rest.New(v0_rest.Options{
		Posts:     service,
		Log:       log.WithField("component", "api"),
		Limiter:   limiter,
		Blocklist: blocklist,
		Storage:   cfg.Storage.Backend,
	})

	// Serve HTTP router
	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Handler: rest.Router(rest.Options{
			API:            api,
			Frontend:       web.Handler(),
			AllowedOrigins: cfg.AllowedOrigins,
			RealIPHeader:   cfg.RealIPHeader,
			Log:            log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("serving HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
