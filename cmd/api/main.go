package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/example/eventvault/internal/api"
	"github.com/example/eventvault/internal/api/middleware"
	"github.com/example/eventvault/internal/auth"
	"github.com/example/eventvault/internal/config"
	"github.com/example/eventvault/internal/domain/counter"
	"github.com/example/eventvault/internal/event"
	"github.com/example/eventvault/internal/eventstore"
	"github.com/example/eventvault/internal/infrastructure/kafka"
	"github.com/example/eventvault/internal/infrastructure/store"
	"github.com/example/eventvault/internal/notification"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("[API] Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if len(cfg.JWTSecret) < 32 {
		logger.Error("[API] JWT_SECRET must be set and at least 32 characters long")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("[API] Starting eventvault",
		slog.String("store", cfg.StoreBackend),
		slog.String("blobs", cfg.BlobBackend),
		slog.String("cache", cfg.CacheBackend),
		slog.Any("kafka", cfg.KafkaBrokers),
	)

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
	}()

	logs, closer, err := newLogStore(ctx, cfg)
	if err != nil {
		logger.Error("[API] Failed to open log store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		logger.Error("[API] Failed to open blob store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cache, closer := newCache(cfg)
	if closer != nil {
		closers = append(closers, closer)
	}

	var notifier notification.Notifier = notification.NewLogNotifier(logger)
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		closers = append(closers, producer)
		notifier = notification.NewKafkaNotifier(producer)
		logger.Info("[API] Publishing change feed", slog.String("topic", cfg.KafkaTopic))
	}

	registry := event.NewRegistry()
	counter.RegisterEvents(registry)

	counters, err := eventstore.New(eventstore.Config[*counter.Counter]{
		TypeName:  counter.AggregateType,
		New:       counter.New,
		Logs:      logs,
		Blobs:     blobs,
		Cache:     cache,
		Registry:  registry,
		Notifier:  notifier,
		Validator: eventstore.ValidatorFunc[*counter.Counter](counter.Validate),
		Logger:    logger,
		Options:   &cfg.Engine,
	})
	if err != nil {
		logger.Error("[API] Failed to build engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	router := api.NewRouter(api.RouterConfig{
		Handlers:   api.NewHandlers(counters, logger),
		JWTService: auth.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, time.Hour),
		Limiter:    middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		Logger:     logger,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("[API] Server started", slog.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("[API] Server error", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("[API] Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("[API] Shutdown error", slog.String("error", err.Error()))
	}
	counters.Wait()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func newLogStore(ctx context.Context, cfg *config.Config) (store.LogStore, io.Closer, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return store.NewMemoryLogStore(), nil, nil
	case config.BackendPostgres, config.BackendSQLite:
		var (
			logs *store.SQLLogStore
			db   io.Closer
		)
		if cfg.StoreBackend == config.BackendPostgres {
			conn, err := store.ConnectPostgres(cfg.DatabaseURL)
			if err != nil {
				return nil, nil, fmt.Errorf("connect postgres: %w", err)
			}
			logs, db = store.NewPostgresLogStore(conn, cfg.LogTable), conn
		} else {
			conn, err := store.ConnectSQLite(cfg.SQLitePath)
			if err != nil {
				return nil, nil, fmt.Errorf("open sqlite: %w", err)
			}
			logs, db = store.NewSQLiteLogStore(conn, cfg.LogTable), conn
		}
		if err := logs.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return logs, db, nil
	case config.BackendDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.DynamoDBEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
			}
		})
		return store.NewDynamoLogStore(client, cfg.DynamoDBTable), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func newBlobStore(ctx context.Context, cfg *config.Config) (store.BlobStore, error) {
	if cfg.BlobBackend != config.BackendS3 {
		return store.NewMemoryBlobStore(), nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return store.NewS3BlobStore(client, cfg.S3Bucket), nil
}

func newCache(cfg *config.Config) (store.Cache, io.Closer) {
	switch cfg.CacheBackend {
	case config.BackendMemory:
		return store.NewMemoryCache(cfg.MemoryCacheSize), nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return store.NewRedisCache(client, cfg.RedisPrefix, cfg.Engine.DefaultCacheSlidingDuration), client
	}
	return nil, nil
}
