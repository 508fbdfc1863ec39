package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tableorder/config"
	"tableorder/internal/api"
	"tableorder/internal/broker"
	"tableorder/internal/catalog"
	"tableorder/internal/models"
	"tableorder/internal/orders"
	"tableorder/internal/redisclient"
	"tableorder/internal/service"
	"tableorder/internal/storage"
	"tableorder/internal/store"
	"tableorder/internal/util"
	"tableorder/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting table order service")

	if cfg.Observ.TracingEnabled {
		tp, err := util.InitTracer("tableorder", cfg.Observ.JaegerEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	conns := &connections{cfg: cfg}
	defer conns.Close()

	backend, err := conns.backend()
	if err != nil {
		logger.Fatal("Failed to open storage backend", zap.String("backend", cfg.Storage.Backend), zap.Error(err))
	}
	notifier, err := conns.notifier()
	if err != nil {
		logger.Fatal("Failed to open change notifier", zap.String("notifier", cfg.Storage.Notifier), zap.Error(err))
	}
	logger.Info("Storage ready",
		zap.String("backend", cfg.Storage.Backend),
		zap.String("notifier", cfg.Storage.Notifier))

	adapter := storage.NewAdapter(backend, notifier)

	ctx := context.Background()
	seed, err := catalog.DefaultSeed()
	if err != nil {
		logger.Fatal("Failed to load seed catalog", zap.Error(err))
	}
	catalogStore, err := catalog.NewStore(ctx, adapter, seed)
	if err != nil {
		logger.Fatal("Failed to load products", zap.Error(err))
	}
	defer catalogStore.Close()

	orderStore, err := orders.NewStore(ctx, adapter)
	if err != nil {
		logger.Fatal("Failed to load orders", zap.Error(err))
	}
	defer orderStore.Close()

	orderService, err := service.NewOrderService(catalogStore, orderStore, models.OrderStatus(cfg.Business.InitialOrderStatus))
	if err != nil {
		logger.Fatal("Invalid initial order status", zap.Error(err))
	}

	sessions := service.NewCartSessions()
	defer sessions.Close()

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go sessions.Run(workerCtx, cfg.Session.IdleTTL, cfg.Session.SweepInterval)

	changeWorker := worker.NewChangeWorker(adapter, notifier)
	go func() {
		if err := changeWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Change worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, catalogStore, orderStore, sessions, cfg.Server.AllowOrigins)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := changeWorker.Stop(); err != nil {
		logger.Warn("Error stopping change worker", zap.Error(err))
	}

	logger.Info("Server exited")
}

// connections opens the Redis and Postgres clients on first use so that
// backend and notifier can share them.
type connections struct {
	cfg   *config.Config
	redis *redisclient.Client
	pg    *store.Store
}

func (c *connections) redisClient() (*redisclient.Client, error) {
	if c.redis == nil {
		rc, err := redisclient.NewClient(c.cfg.Redis.Addr, c.cfg.Redis.Password, c.cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		c.redis = rc
	}
	return c.redis, nil
}

func (c *connections) postgres() (*store.Store, error) {
	if c.pg == nil {
		pg, err := store.NewStore(c.cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		c.pg = pg
	}
	return c.pg, nil
}

func (c *connections) backend() (storage.Backend, error) {
	switch c.cfg.Storage.Backend {
	case "memory":
		return storage.NewMemoryBackend(), nil
	case "redis":
		return c.redisClient()
	case "postgres":
		return c.postgres()
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.cfg.Storage.Backend)
	}
}

func (c *connections) notifier() (storage.Notifier, error) {
	switch c.cfg.Storage.Notifier {
	case "local":
		return storage.NewLocalHub(), nil
	case "redis":
		return c.redisClient()
	case "postgres":
		pg, err := c.postgres()
		if err != nil {
			return nil, err
		}
		return store.NewListener(pg, c.cfg.Database.URL)
	case "kafka":
		// every node needs its own group to receive every change
		group := c.cfg.Kafka.ConsumerGroup + "-" + c.cfg.Kafka.NodeID
		return broker.NewNotifier(c.cfg.Kafka.Brokers, c.cfg.Kafka.TopicChanges, group), nil
	default:
		return nil, fmt.Errorf("unknown change notifier %q", c.cfg.Storage.Notifier)
	}
}

func (c *connections) Close() {
	if c.redis != nil {
		c.redis.Close()
	}
	if c.pg != nil {
		c.pg.Close()
	}
}
