// Intent kernel daemon: resolves the intent of inbound creator messages and
// keeps the per-user dialogue state that the contextual rules depend on.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/creatorbot/intent-kernel/internal/config"
	"github.com/creatorbot/intent-kernel/internal/dialogue"
	"github.com/creatorbot/intent-kernel/internal/intent"
	"github.com/creatorbot/intent-kernel/internal/pipeline"
	"github.com/creatorbot/intent-kernel/internal/server"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		bootLogger, _ := zap.NewProduction()
		bootLogger.Fatal("Failed to load config", zap.Error(err))
	}

	var logger *zap.Logger
	if cfg.Debug() {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	defer func() {
		if r := recover(); r != nil {
			logger.Fatal("Panic in intentd main", zap.Any("panic", r), zap.Stack("stacktrace"))
		}
	}()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	logger.Info("Starting intent kernel...",
		zap.Bool("contextual_logic", cfg.Intent.ContextualLogic),
		zap.Int("context_validity_minutes", cfg.Intent.ContextValidityMinutes))

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis unreachable, dialogue state will fall back to defaults",
			zap.String("address", cfg.Redis.Address),
			zap.Error(err))
	} else {
		logger.Info("Connected to Redis", zap.String("address", cfg.Redis.Address))
	}
	pingCancel()

	var near *dialogue.NearCache
	if ttl := cfg.NearCacheTTL(); ttl > 0 {
		near, err = dialogue.NewNearCache(cfg.Redis.NearCacheMaxEntries, ttl, logger)
		if err != nil {
			logger.Warn("Failed to create near cache, reading state from redis only", zap.Error(err))
			near = nil
		} else {
			defer near.Close()
		}
	}

	storeCfg := dialogue.DefaultStoreConfig()
	storeCfg.Timeout = cfg.StoreTimeout()
	states := dialogue.NewRedisStore(rdb, near, storeCfg, logger)

	deduper, err := pipeline.NewDeduper(cfg.Pipeline.DedupeCacheSize, pipeline.DefaultDedupeWindow)
	if err != nil {
		logger.Fatal("Failed to create deduper", zap.Error(err))
	}

	engine := intent.NewEngine(cfg.EngineConfig(), logger)

	p, err := pipeline.New(pipeline.Deps{
		Engine:  engine,
		States:  states,
		History: dialogue.NewHistoryStore(rdb, cfg.Pipeline.HistoryMaxTurns, cfg.StoreTimeout(), logger),
		Usage:   dialogue.NewUsageCounter(rdb, cfg.StoreTimeout(), logger),
		Locker:  dialogue.NewTurnLocker(rdb, cfg.TurnLockTTL(), logger),
		Deduper: deduper,
	}, pipeline.Config{TurnLockWait: cfg.TurnLockWait()}, logger)
	if err != nil {
		logger.Fatal("Failed to create pipeline", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// NATS (optional)
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name("intent-kernel"),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.String("url", cfg.NATS.URL), zap.Error(err))
		}
		defer nc.Close()

		consumer, err := pipeline.NewConsumer(nc, p, pipeline.ConsumerConfig{
			Stream:       cfg.NATS.Stream,
			Durable:      cfg.NATS.Durable,
			Subject:      cfg.NATS.InboundSubject,
			ResultPrefix: cfg.NATS.ResultSubjectPrefix,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create NATS consumer", zap.Error(err))
		}
		if err := consumer.Start(ctx); err != nil {
			logger.Fatal("Failed to start NATS consumer", zap.Error(err))
		}
		defer consumer.Stop()
	} else {
		logger.Info("NATS_URL not set, HTTP intake only")
	}

	api := server.NewServer(p, server.PingFunc(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}), logger)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Handler:      api.Handler(cfg.Server.AllowedOrigins),
		Addr:         addr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	go func() {
		logger.Info("Intent kernel listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server startup failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down intent kernel...", zap.Any("stats", engine.Stats()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
}
