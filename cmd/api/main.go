package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"clipstream/internal/app"
	"clipstream/internal/cache"
	"clipstream/internal/config"
	"clipstream/internal/notify"
	"clipstream/internal/preview"
	"clipstream/internal/server"
	"clipstream/internal/storage"
	"clipstream/internal/store"
	"clipstream/internal/token"
	"clipstream/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	tokenTTL, err := config.ParseTokenTTL(cfg.TokenTTL)
	if err != nil {
		log.Fatalf("failed to parse token TTL: %v", err)
	}
	storyTTL, err := config.ParseStoryTTL(cfg.StoryTTL)
	if err != nil {
		log.Fatalf("failed to parse story TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	st, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	if err := st.SeedCountries(store.DefaultCountries); err != nil {
		log.Fatalf("failed to seed countries: %v", err)
	}

	codec, err := token.NewCodec(cfg.TokenSecret, tokenTTL)
	if err != nil {
		log.Fatalf("failed to init token codec: %v", err)
	}

	var redisClient *redis.Client
	var cacheImpl cache.Cache = cache.NewMemoryCache()
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		cacheImpl = cache.NewRedisCache(redisClient, "clipstream:cache")
	}

	var events notify.Publisher = notify.NopPublisher{}
	if cfg.AMQPURL != "" {
		publisher, err := notify.NewAMQPPublisher(cfg.AMQPURL, "")
		if err != nil {
			log.Fatalf("failed to connect to broker: %v", err)
		}
		defer publisher.Close()
		events = publisher
	}

	var objects storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init object store: %v", err)
		}
	}

	appCore, err := app.New(app.Config{
		Store:    st,
		Codec:    codec,
		Cache:    cacheImpl,
		Events:   events,
		Previews: preview.NewHTTPFetcher(0),
		StoryTTL: storyTTL,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                        appCore,
		Codec:                      codec,
		Cache:                      cacheImpl,
		Objects:                    objects,
		Redis:                      redisClient,
		LoginRateLimitPerMinute:    cfg.LoginRateLimitPerMinute,
		RegisterRateLimitPerMinute: cfg.RegisterRateLimitPerMinute,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("api server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if err := group.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}
