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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/d60-Lab/sale-promotion/config"
	"github.com/d60-Lab/sale-promotion/internal/api"
	"github.com/d60-Lab/sale-promotion/internal/api/handler"
	"github.com/d60-Lab/sale-promotion/internal/cache"
	"github.com/d60-Lab/sale-promotion/internal/notify"
	"github.com/d60-Lab/sale-promotion/internal/payment"
	"github.com/d60-Lab/sale-promotion/internal/repository"
	"github.com/d60-Lab/sale-promotion/internal/service"
	"github.com/d60-Lab/sale-promotion/pkg/database"
	"github.com/d60-Lab/sale-promotion/pkg/errtrack"
	"github.com/d60-Lab/sale-promotion/pkg/logger"
	"github.com/d60-Lab/sale-promotion/pkg/metrics"
	"github.com/d60-Lab/sale-promotion/pkg/tracing"
)

func must[T any](v T, err error) T {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return v
}

func main() {
	cfg := must(config.Load())
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg); err != nil {
		logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := errtrack.Init(cfg.Sentry); err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	defer errtrack.Flush(2 * time.Second)

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	db, err := database.InitDB(cfg)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}

	prices, err := cfg.Promotion.Prices()
	if err != nil {
		return err
	}
	tiers := service.TierPrices(prices)

	var processed *cache.ProcessedEvents
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		processed = cache.NewProcessedEvents(rdb, cfg.Redis.ProcessedTTL)
	}

	var sender notify.Sender = notify.LogSender{}
	if brokers := cfg.Kafka.BrokerList(); len(brokers) > 0 {
		ks := notify.NewKafkaSender(brokers, cfg.Kafka.EmailTopic)
		defer ks.Close()
		sender = ks
	}

	m := metrics.New(nil)
	if processed != nil {
		if err := metrics.RegisterCacheStats(nil, processed.Stats); err != nil {
			return fmt.Errorf("register cache metrics: %w", err)
		}
	}

	drafts := repository.NewDraftRepository(db)
	promotions := repository.NewPromotionRepository(db)
	sales := repository.NewSaleRepository(db)
	users := repository.NewUserRepository(db)

	checkout := service.NewCheckoutService(service.CheckoutDeps{
		Drafts:      drafts,
		Promotions:  promotions,
		Sales:       sales,
		Users:       users,
		Payments:    payment.NewHTTPClient(cfg.Payment),
		Tiers:       tiers,
		DefaultTier: cfg.Promotion.DefaultTier,
		Currency:    cfg.Payment.Currency,
		Metrics:     m,
	})
	finalizer := service.NewFinalizer(service.FinalizerDeps{
		Ledger:     repository.NewEventLedgerRepository(db),
		Drafts:     drafts,
		Promotions: promotions,
		Sales:      sales,
		Users:      users,
		Dedupe:     service.NewNotificationDedupe(repository.NewEmailRecordRepository(db)),
		Sender:     sender,
		Cache:      processed,
		Tiers:      tiers,
		Metrics:    m,
	})

	h := handler.NewHandler(service.NewDraftService(drafts, sales), checkout, finalizer, db)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(cfg, h, m),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
