// Admin tool for the post store.
//
//	admin list            print current posts with their age
//	admin sweep           run one retention sweep
//	admin clear -yes      delete every post
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/misstter/server/pkg/config"
	"github.com/misstter/server/pkg/posts"
	"github.com/misstter/server/pkg/rdb"
	"github.com/misstter/server/pkg/store"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	var yes bool
	flag.BoolVar(&yes, "yes", false, "confirm destructive commands")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: admin [-yes] list|sweep|clear")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := cfg.NewLogger()

	if err := run(cfg, log, flag.Arg(0), yes); err != nil {
		log.WithError(err).Fatal(flag.Arg(0) + " failed")
	}
}

func run(cfg *config.Config, log *logrus.Logger, command string, yes bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var redisClient *redis.Client
	if cfg.Storage.Backend == config.BackendRedis {
		var err error
		if redisClient, err = rdb.Connect(ctx, cfg.Storage.RedisURI); err != nil {
			return err
		}
		defer redisClient.Close()
	}

	postStore, err := store.Open(ctx, cfg.Storage, redisClient, log)
	if err != nil {
		return err
	}
	defer postStore.Close(context.Background())

	service := posts.NewService(posts.Options{
		Store:         postStore,
		Log:           log,
		MaxTextLength: cfg.MaxTextLength,
	})
	return execute(ctx, os.Stdout, service, time.Now(), command, yes)
}
