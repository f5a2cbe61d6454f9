package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/journey-tracker/internal/config"
	"github.com/journey-tracker/internal/delivery/http/handler"
	"github.com/journey-tracker/internal/delivery/http/middleware"
	"github.com/journey-tracker/internal/metrics"
	fiberSwagger "github.com/swaggo/fiber-swagger"
	"go.uber.org/zap"
)

// Server - HTTP сервер на основе Fiber
type Server struct {
	app     *fiber.App
	config  *config.Config
	logger  *zap.Logger
	metrics *metrics.Collector

	// Handlers
	journeyHandler *handler.JourneyHandler
	orderHandler   *handler.OrderHandler
	healthHandler  *handler.HealthHandler
}

// NewServer - создание нового HTTP сервера. metrics может быть nil.
func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	m *metrics.Collector,
	journeyHandler *handler.JourneyHandler,
	orderHandler *handler.OrderHandler,
	healthHandler *handler.HealthHandler,
) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "Journey Tracker",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		BodyLimit:    8 * 1024 * 1024,
		ErrorHandler: customErrorHandler(logger),
	})

	s := &Server{
		app:            app,
		config:         cfg,
		logger:         logger,
		metrics:        m,
		journeyHandler: journeyHandler,
		orderHandler:   orderHandler,
		healthHandler:  healthHandler,
	}

	s.setupMiddlewares()
	s.setupRoutes()

	return s
}

// setupMiddlewares - настройка middleware
func (s *Server) setupMiddlewares() {
	s.app.Use(middleware.Recovery(s.logger))
	s.app.Use(middleware.Logger(s.logger))
	if s.metrics != nil {
		s.app.Use(middleware.Metrics(s.metrics))
	}
	s.app.Use(middleware.CORS(s.config.Server.CORSOrigins))
	s.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
}

// setupRoutes - настройка маршрутов
func (s *Server) setupRoutes() {
	s.app.Get("/swagger/*", fiberSwagger.WrapHandler)

	s.app.Get("/health", s.healthHandler.Health)
	if s.metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	api := s.app.Group("/api/v1")
	api.Get("/health", s.healthHandler.Health)

	// Journey routes
	journeys := api.Group("/journeys")
	journeys.Post("/", s.journeyHandler.CreateJourney)
	journeys.Get("/:id", s.journeyHandler.GetJourney)
	journeys.Patch("/:id/status", s.journeyHandler.UpdateStatus)
	journeys.Put("/:id/sync-state", s.journeyHandler.UpdateSyncState)
	journeys.Post("/:id/positions", s.journeyHandler.UpsertPositions)
	journeys.Get("/:id/positions", s.journeyHandler.ListPositions)
	journeys.Put("/:id/trust", s.journeyHandler.UpsertTrust)
	journeys.Get("/:id/trust", s.journeyHandler.ListTrust)

	// Passenger routes
	api.Get("/passengers/:id/journeys/active", s.journeyHandler.GetActiveJourney)
	api.Get("/passengers/:id/orders", s.orderHandler.ListOrders)

	// Order routes
	api.Post("/orders", s.orderHandler.CreateOrder)
}

// App - доступ к fiber.App (тесты через app.Test)
func (s *Server) App() *fiber.App {
	return s.app
}

// Start - запуск HTTP сервера
func (s *Server) Start() error {
	addr := s.config.GetServerAddr()
	s.logger.Info("Starting HTTP server", zap.String("address", addr))
	return s.app.Listen(addr)
}

// Shutdown - graceful shutdown HTTP сервера
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// customErrorHandler - кастомный обработчик ошибок
func customErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		errCode := "INTERNAL_SERVER_ERROR"

		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			if code == fiber.StatusNotFound {
				errCode = "NOT_FOUND"
			}
		}

		logger.Error("HTTP Error",
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		)

		return c.Status(code).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    errCode,
				"message": err.Error(),
			},
		})
	}
}
