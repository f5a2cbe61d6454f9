package agent

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/journey-tracker/internal/delivery/http/middleware"
	"github.com/journey-tracker/internal/metrics"
	"go.uber.org/zap"
)

// Server - локальный HTTP сервер агента, слушает только loopback по умолчанию
type Server struct {
	app     *fiber.App
	addr    string
	logger  *zap.Logger
	metrics *metrics.Collector
	handler *Handler
}

// NewServer - metrics может быть nil
func NewServer(addr string, h *Handler, m *metrics.Collector, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Journey Agent",
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          90 * time.Second,
		IdleTimeout:           60 * time.Second,
		BodyLimit:             1024 * 1024,
		DisableStartupMessage: true,
	})

	s := &Server{
		app:     app,
		addr:    addr,
		logger:  logger.With(zap.String("server", "agent-control")),
		metrics: m,
		handler: h,
	}

	s.app.Use(middleware.Recovery(s.logger))
	s.app.Use(middleware.Logger(s.logger))
	if s.metrics != nil {
		s.app.Use(middleware.Metrics(s.metrics))
	}
	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	s.app.Get("/status", s.handler.Status)
	if s.metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	journey := s.app.Group("/journey")
	journey.Post("/start", s.handler.StartJourney)
	journey.Post("/end", s.handler.EndJourney)
	journey.Post("/cancel", s.handler.CancelJourney)

	s.app.Post("/reports", s.handler.SubmitReport)
	s.app.Post("/orders", s.handler.PlaceOrder)
	s.app.Get("/trust", s.handler.Trust)

	s.app.Post("/sync", s.handler.Sync)
	s.app.Get("/queue/dead-letters", s.handler.DeadLetters)
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Start() error {
	s.logger.Info("Starting agent control server", zap.String("address", s.addr))
	return s.app.Listen(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
