package main

// @title Journey Tracker API
// @version 1.0.0
// @description Бэкенд учёта поездок пассажиров. Принимает поездки, треки, доверие к источникам позиции и заказы от устройств, в том числе повторно после работы офлайн.
// @description
// @description Основные возможности:
// @description - Идемпотентное создание поездок и заказов по идентификаторам клиента
// @description - Переходы статуса поездки ACTIVE -> COMPLETED / CANCELLED
// @description - Приём трека пачками без дублей
// @description - Хранение доверия к источникам позиции

// @contact.name API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/journey-tracker/docs"
	"github.com/journey-tracker/internal/config"
	httpDelivery "github.com/journey-tracker/internal/delivery/http"
	"github.com/journey-tracker/internal/delivery/http/handler"
	"github.com/journey-tracker/internal/domain/repository"
	"github.com/journey-tracker/internal/infrastructure/realtime"
	"github.com/journey-tracker/internal/metrics"
	"github.com/journey-tracker/internal/pkg/logger"
	"github.com/journey-tracker/internal/repository/cache"
	"github.com/journey-tracker/internal/repository/postgres"
	redisRepo "github.com/journey-tracker/internal/repository/redis"
	"github.com/journey-tracker/internal/usecase"
	"github.com/journey-tracker/internal/worker"
	"github.com/journey-tracker/internal/worker/relay"
	"go.uber.org/zap"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. Initialize logger
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "api")
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting Journey Tracker API")
	log.Info("Configuration loaded",
		zap.String("env", cfg.Server.Env),
		zap.String("server_addr", cfg.GetServerAddr()),
		zap.String("realtime_driver", cfg.Realtime.Driver),
	)

	// 3. Connect to PostgreSQL
	db, err := postgres.New(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close PostgreSQL connection", zap.Error(err))
		}
	}()
	log.Info("PostgreSQL connected")

	// 4. Connect to Redis
	redisClient, err := cache.NewRedis(&cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("Failed to close Redis connection", zap.Error(err))
		}
	}()
	log.Info("Redis connected")

	// 5. Health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.Health(ctx); err != nil {
		log.Fatal("PostgreSQL health check failed", zap.Error(err))
	}
	if err := redisClient.Health(ctx); err != nil {
		log.Fatal("Redis health check failed", zap.Error(err))
	}
	log.Info("All connections healthy")

	var m *metrics.Collector
	if cfg.Metrics.Enabled {
		m = metrics.NewCollector()
	}

	// 6. Initialize Repositories
	journeyRepo := postgres.NewJourneyRepository(db)
	positionRepo := postgres.NewPositionRepository(db)
	trustRepo := postgres.NewTrustRepository(db)
	orderRepo := postgres.NewOrderRepository(db)
	cacheRepo := cache.NewCacheRepository(redisClient)

	publisher, err := realtime.New(&cfg.Realtime, redisClient.Client(), m, log)
	if err != nil {
		log.Fatal("Failed to configure realtime publisher", zap.Error(err))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error("Failed to close realtime publisher", zap.Error(err))
		}
	}()

	log.Info("Repositories initialized")

	// 7. Initialize Use Cases
	trackingUC := usecase.NewTrackingAPIUseCase(
		journeyRepo,
		positionRepo,
		trustRepo,
		orderRepo,
		cacheRepo,
		publisher,
		&cfg.Cache,
		log,
	)

	// 8. Initialize HTTP Handlers
	journeyHandler := handler.NewJourneyHandler(trackingUC, log)
	orderHandler := handler.NewOrderHandler(trackingUC, log)
	healthHandler := handler.NewHealthHandler(map[string]handler.HealthCheck{
		"database": db.Health,
		"redis":    redisClient.Health,
	}, log)

	// 9. Initialize HTTP Server
	server := httpDelivery.NewServer(cfg, log, m, journeyHandler, orderHandler, healthHandler)

	// 10. Relay: события из Redis Stream уходят подписчикам NATS / MQTT
	var workerManager *worker.WorkerManager
	if relayWorker, target := newRelay(cfg, redisClient, m, log); relayWorker != nil {
		defer func() {
			if err := target.Close(); err != nil {
				log.Error("Failed to close relay target", zap.Error(err))
			}
		}()
		workerManager = worker.NewWorkerManager(30*time.Second, log)
		workerManager.Register(relayWorker)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if workerManager != nil {
		if err := workerManager.Start(workerCtx); err != nil {
			log.Fatal("Failed to start workers", zap.Error(err))
		}
	}

	// 11. Start server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started successfully",
		zap.String("address", cfg.GetServerAddr()),
		zap.String("env", cfg.Server.Env),
	)

	// 12. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}

	workerCancel()
	if workerManager != nil {
		if err := workerManager.Stop(); err != nil {
			log.Error("Error stopping workers", zap.Error(err))
		}
	}

	log.Info("Server stopped successfully")
}

// newRelay поднимает пересылку только когда события пишутся в Redis Stream
// и задан внешний брокер
func newRelay(cfg *config.Config, redisClient *cache.Redis, m *metrics.Collector, log *zap.Logger) (*relay.Worker, repository.EventPublisher) {
	if cfg.Realtime.Driver != realtime.DriverRedis || cfg.Realtime.RelayDriver == realtime.DriverNone {
		return nil, nil
	}
	if cfg.Realtime.RelayDriver == realtime.DriverRedis {
		log.Warn("Relay to redis would loop back into the same stream, relay disabled")
		return nil, nil
	}

	targetCfg := cfg.Realtime
	targetCfg.Driver = cfg.Realtime.RelayDriver
	target, err := realtime.New(&targetCfg, nil, m, log)
	if err != nil {
		log.Fatal("Failed to configure relay target", zap.Error(err))
	}

	streams := redisRepo.NewStreamRepository(redisClient.Client(), cfg.Realtime.StreamMaxLen, log)
	return relay.NewWorker(streams, target, cfg.Realtime.Stream, cfg.Realtime.ConsumerGroup, 3, log), target
}
