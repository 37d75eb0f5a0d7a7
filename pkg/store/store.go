// Package store picks the post storage backend named in the configuration.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/misstter/server/pkg/config"
	"github.com/misstter/server/pkg/db"
	"github.com/misstter/server/pkg/posts"
	"github.com/misstter/server/pkg/store/document"
	"github.com/misstter/server/pkg/store/kv"
	"github.com/misstter/server/pkg/store/memory"
	"github.com/misstter/server/pkg/store/relational"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var ErrRedisRequired = errors.New("redis client required for the redis backend")

// Open connects to the configured backend and prepares its schema. The redis
// client is only used by the redis backend and stays owned by the caller.
func Open(ctx context.Context, cfg config.StorageConfig, client *redis.Client, log logrus.FieldLogger) (posts.Store, error) {
	log = log.WithField("storage", cfg.Backend)

	switch cfg.Backend {
	case config.BackendMemory:
		log.Warn("using in-memory storage, posts will be lost on restart")
		return memory.New(), nil

	case config.BackendRedis:
		if client == nil {
			return nil, ErrRedisRequired
		}
		log.Info("using redis storage")
		return kv.New(client, log), nil

	case config.BackendPostgres:
		pool, err := db.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s := relational.New(pool)
		if err := s.InitializeTables(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("using postgres storage")
		return s, nil

	case config.BackendMongo:
		database, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		s := document.New(database)
		if err := s.EnsureIndexes(ctx); err != nil {
			database.Client().Disconnect(ctx)
			return nil, err
		}
		log.Info("using mongo storage")
		return s, nil
	}

	return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Backend)
}
