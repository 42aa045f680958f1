// Package main wires together the weibo cleaning service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/sinofeed/weibo-cleaner/internal/api"
	"github.com/sinofeed/weibo-cleaner/internal/clock/system"
	"github.com/sinofeed/weibo-cleaner/internal/config"
	"github.com/sinofeed/weibo-cleaner/internal/consumer"
	"github.com/sinofeed/weibo-cleaner/internal/id/uuid"
	"github.com/sinofeed/weibo-cleaner/internal/logging"
	"github.com/sinofeed/weibo-cleaner/internal/metrics"
	pubsubpublisher "github.com/sinofeed/weibo-cleaner/internal/publisher/pubsub"
	"github.com/sinofeed/weibo-cleaner/internal/storage/postgres"
	"github.com/sinofeed/weibo-cleaner/internal/task"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.DB.MaxConnLifetime(),
	})
	if err != nil {
		logger.Fatal("postgres init failed", zap.Error(err))
	}
	defer pool.Close()

	rawStore, err := postgres.NewRawDataStore(pool)
	if err != nil {
		logger.Fatal("raw data store init failed", zap.Error(err))
	}
	entityStore, err := postgres.NewEntityStore(pool)
	if err != nil {
		logger.Fatal("entity store init failed", zap.Error(err))
	}

	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		logger.Fatal("pubsub client init failed", zap.Error(err))
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("pubsub client close failed", zap.Error(closeErr))
		}
	}()

	publisher := pubsubpublisher.New(client)
	defer publisher.Stop()

	sub := client.Subscription(cfg.PubSub.SubscriptionID)
	sub.ReceiveSettings.MaxOutstandingMessages = cfg.Consumer.Prefetch
	sub.ReceiveSettings.NumGoroutines = 1

	clock := system.New()
	router := task.NewRouter(task.Deps{
		Store:     entityStore,
		Publisher: publisher,
		Topics: task.Topics{
			DetailCrawl: cfg.PubSub.Topics.DetailCrawl,
			SearchCrawl: cfg.PubSub.Topics.SearchCrawl,
		},
		Clock:  clock,
		Logger: logger.Named("task"),
	})
	cons := consumer.New(
		sub,
		rawStore,
		router,
		publisher,
		uuid.New(),
		clock,
		consumer.Config{
			CleanedTopic:   cfg.PubSub.Topics.Cleaned,
			MessageTimeout: cfg.MessageTimeout(),
		},
		logger.Named("consumer"),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(pool, logger.Named("api")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("consumer started",
			zap.String("subscription", cfg.PubSub.SubscriptionID),
			zap.Int("prefetch", cfg.Consumer.Prefetch),
		)
		if err := cons.Run(ctx); err != nil {
			logger.Error("consumer stopped", zap.Error(err))
			stop()
		}
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
