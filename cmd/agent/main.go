package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/journey-tracker/internal/config"
	"github.com/journey-tracker/internal/delivery/agent"
	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/infrastructure/backend"
	"github.com/journey-tracker/internal/infrastructure/realtime"
	"github.com/journey-tracker/internal/infrastructure/sensor"
	"github.com/journey-tracker/internal/metrics"
	"github.com/journey-tracker/internal/pkg/logger"
	"github.com/journey-tracker/internal/repository/bolt"
	"github.com/journey-tracker/internal/repository/cache"
	"github.com/journey-tracker/internal/usecase"
	"github.com/journey-tracker/internal/worker"
	"github.com/journey-tracker/internal/worker/connectivity"
	realtimeworker "github.com/journey-tracker/internal/worker/realtime"
	"github.com/journey-tracker/internal/worker/syncer"
	"github.com/journey-tracker/internal/worker/tracking"
)

const controlReportBuffer = 64

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if cfg.Agent.PassengerID == "" {
		fmt.Println("AGENT_PASSENGER_ID is required")
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "agent")
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting Journey Agent",
		zap.String("passenger_id", cfg.Agent.PassengerID),
		zap.String("backend_url", cfg.Agent.BackendURL),
		zap.String("store_path", cfg.Store.Path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Metrics
	var m *metrics.Collector
	if cfg.Metrics.Enabled {
		m = metrics.NewCollector()
		if cfg.Agent.MetricsAddr != "" {
			metricsServer := m.Serve(cfg.Agent.MetricsAddr, log)
			defer func() {
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				_ = metricsServer.Shutdown(shutdownCtx)
			}()
		}
	}

	// 4. Open local store
	store, err := bolt.New(&cfg.Store, &cfg.Queue, log)
	if err != nil {
		log.Fatal("Failed to open local store", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Failed to close local store", zap.Error(err))
		}
	}()
	if store.Recovered() {
		log.Warn("Local store was corrupted and has been recreated, offline queue is lost")
	}

	deviceID, err := store.DeviceID(ctx)
	if err != nil {
		log.Fatal("Failed to read device id", zap.Error(err))
	}
	log.Info("Device identified", zap.String("device_id", deviceID))

	// 5. Backend client
	client := backend.NewClient(&cfg.Agent, log)

	// 6. Initialize use cases
	ledger := usecase.NewTrustLedger(&cfg.Fusion, store, client, m, log)
	fusionUC := usecase.NewFusionUseCase(&cfg.Fusion, usecase.NewSpoofingDetector(&cfg.Fusion, log), ledger, m, log)
	defer fusionUC.Close()
	journeyUC := usecase.NewJourneyUseCase(&cfg.Agent, deviceID, client, store, fusionUC, m, log)
	defer journeyUC.Close()
	syncUC := usecase.NewSyncUseCase(&cfg.Queue, deviceID, store, client, journeyUC, m, log)

	restoreCtx, restoreCancel := context.WithTimeout(ctx, cfg.Agent.RequestTimeout)
	if _, err := journeyUC.AutoRestore(restoreCtx); err != nil {
		log.Error("Failed to restore journey", zap.Error(err))
	}
	restoreCancel()

	// 7. Realtime publisher
	var redisClient *goredis.Client
	if cfg.Realtime.Driver == realtime.DriverRedis {
		rc, err := cache.NewRedis(&cfg.Redis, log)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			if err := rc.Close(); err != nil {
				log.Error("Failed to close Redis connection", zap.Error(err))
			}
		}()
		redisClient = rc.Client()
	}
	publisher, err := realtime.New(&cfg.Realtime, redisClient, m, log)
	if err != nil {
		log.Fatal("Failed to configure realtime publisher", zap.Error(err))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error("Failed to close realtime publisher", zap.Error(err))
		}
	}()

	// 8. Position input: own sensor plus reports posted to the control API
	controlReports := make(chan domain.PositionReport, controlReportBuffer)
	reports := sensor.Merge(ctx, openSensor(ctx, cfg.Agent, log), controlReports)

	// 9. Initialize workers
	connectivityWorker := connectivity.NewWorker(client, cfg.Agent.ConnectivityProbe, cfg.Agent.RequestTimeout, log)
	syncWorker := syncer.NewWorker(syncUC, journeyUC, cfg.Agent.SyncInterval, cfg.Agent.SyncTimeout, log)
	connectivityWorker.OnChange(func(online bool) {
		journeyUC.SetOnline(online)
		if m != nil {
			m.SetBackendOnline(online)
		}
		if online {
			log.Info("Backend reachable, draining offline queue")
			syncWorker.Trigger()
			return
		}
		log.Warn("Backend unreachable, working offline")
	})

	trackingWorker := tracking.NewWorker(reports, fusionUC, journeyUC, cfg.Agent.SensorSourceID, cfg.Agent.SyncInterval, log)

	workerManager := worker.NewWorkerManager(30*time.Second, log)
	workerManager.Register(connectivityWorker)
	workerManager.Register(syncWorker)
	workerManager.Register(trackingWorker)
	if cfg.Realtime.Driver != realtime.DriverNone {
		workerManager.Register(realtimeworker.NewWorker(fusionUC, journeyUC, publisher, log))
	}

	if err := workerManager.Start(ctx); err != nil {
		log.Fatal("Failed to start workers", zap.Error(err))
	}

	// 10. Control API
	controlHandler := agent.NewHandler(deviceID, journeyUC, syncUC, fusionUC, controlReports, cfg.Agent.SyncTimeout, log)
	controlServer := agent.NewServer(cfg.Agent.ControlAddr, controlHandler, m, log)
	go func() {
		if err := controlServer.Start(); err != nil {
			log.Error("Control server stopped", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := controlServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Control server shutdown failed", zap.Error(err))
	}

	// Cancel context to stop workers
	cancel()

	if err := workerManager.Stop(); err != nil {
		log.Error("Error stopping workers", zap.Error(err))
	}

	log.Info("Agent shutdown complete")
}

// openSensor открывает поток собственного датчика: "-" это stdin, "none" отключает датчик
func openSensor(ctx context.Context, cfg config.AgentConfig, log *zap.Logger) <-chan domain.PositionReport {
	var r io.Reader
	switch cfg.SensorInput {
	case "none":
		log.Info("Own position sensor disabled")
		return nil
	case "-":
		r = os.Stdin
	default:
		f, err := os.Open(cfg.SensorInput)
		if err != nil {
			log.Fatal("Failed to open sensor input", zap.String("path", cfg.SensorInput), zap.Error(err))
		}
		go func() {
			<-ctx.Done()
			_ = f.Close()
		}()
		r = f
	}
	return sensor.Stream(ctx, r, cfg.SensorSourceID, log)
}
