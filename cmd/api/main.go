package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/putrabttart/dropstore-backend/api/routes"
	"github.com/putrabttart/dropstore-backend/internal/checkout"
	"github.com/putrabttart/dropstore-backend/internal/fulfillment"
	"github.com/putrabttart/dropstore-backend/internal/inventory"
	"github.com/putrabttart/dropstore-backend/internal/orders"
	"github.com/putrabttart/dropstore-backend/internal/reconciler"
	paygatewebhook "github.com/putrabttart/dropstore-backend/internal/webhooks/paygate"
	"github.com/putrabttart/dropstore-backend/pkg/chat"
	"github.com/putrabttart/dropstore-backend/pkg/config"
	"github.com/putrabttart/dropstore-backend/pkg/db"
	"github.com/putrabttart/dropstore-backend/pkg/logger"
	"github.com/putrabttart/dropstore-backend/pkg/metrics"
	"github.com/putrabttart/dropstore-backend/pkg/paygate"
	"github.com/putrabttart/dropstore-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := db.MaybeAutoMigrate(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	paygateClient, err := paygate.NewClient(context.Background(), cfg.Paygate, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap gateway client", err)
		os.Exit(1)
	}
	chatClient, err := chat.NewClient(context.Background(), cfg.Chat, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap chat client", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	fulfillmentMetrics := metrics.NewFulfillmentMetrics(promRegistry)

	inventoryStore, err := inventory.NewStore(dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build inventory store", err)
		os.Exit(1)
	}
	registry := orders.NewMemoryRegistry()

	dispatcher, err := fulfillment.NewService(fulfillment.ServiceParams{
		Logger:      logg,
		Registry:    registry,
		Inventory:   inventoryStore,
		Chat:        chatClient,
		Metrics:     fulfillmentMetrics,
		GracePeriod: cfg.Payment.RemovalGracePeriod,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build fulfillment service", err)
		os.Exit(1)
	}

	pollTasks, err := reconciler.NewReconciler(reconciler.ReconcilerParams{
		Logger:      logg,
		Registry:    registry,
		Paygate:     paygateClient,
		Dispatcher:  dispatcher,
		Metrics:     fulfillmentMetrics,
		Backoff:     cfg.Poll.BackoffSchedule,
		MaxAttempts: cfg.Poll.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build poll reconciler", err)
		os.Exit(1)
	}
	defer pollTasks.Shutdown()
	dispatcher.SetTasks(pollTasks)

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Logger:     logg,
		Products:   checkout.NewProductRepository(dbClient.DB()),
		Inventory:  inventoryStore,
		Registry:   registry,
		Paygate:    paygateClient,
		Chat:       chatClient,
		Tasks:      pollTasks,
		PaymentTTL: cfg.Payment.TTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build checkout service", err)
		os.Exit(1)
	}

	webhookGuard, err := paygatewebhook.NewIdempotencyGuard(redisClient, cfg.Payment.TTL+cfg.Payment.RemovalGracePeriod)
	if err != nil {
		logg.Error(context.Background(), "failed to build webhook guard", err)
		os.Exit(1)
	}
	webhookService, err := paygatewebhook.NewService(paygatewebhook.ServiceParams{
		Logger:     logg,
		Dispatcher: dispatcher,
		Guard:      webhookGuard,
		ServerKey:  paygateClient.ServerKey(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build webhook service", err)
		os.Exit(1)
	}

	reaper, err := orders.NewReaper(orders.ReaperParams{
		Logger:   logg,
		Registry: registry,
		Expirer:  dispatcher,
		Interval: cfg.Reaper.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build expiry reaper", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.RouterParams{
		Config:         cfg,
		Logger:         logg,
		DB:             dbClient,
		Redis:          redisClient,
		Checkout:       checkoutService,
		Registry:       registry,
		WebhookService: webhookService,
		Metrics:        promRegistry,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logg.Info(logg.WithField(groupCtx, "port", cfg.App.Port), "api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		err := reaper.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api shutting down gracefully")
}
