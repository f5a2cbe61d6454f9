package agent

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/pkg/errors"
	"github.com/journey-tracker/internal/pkg/utils"
	"github.com/journey-tracker/internal/pkg/validator"
	"github.com/journey-tracker/internal/usecase/dto"
	"go.uber.org/zap"
)

const reportSubmitTimeout = time.Second

// Journeys - управление поездкой на устройстве
type Journeys interface {
	Current() *domain.Journey
	IsOnline() bool
	StartJourney(ctx context.Context, req dto.StartJourneyRequest) (*domain.Journey, error)
	EndJourney(ctx context.Context) (*domain.Journey, error)
	CancelJourney(ctx context.Context) (*domain.Journey, error)
	PlaceOrder(ctx context.Context, req dto.PlaceOrderRequest) (*domain.Order, bool, error)
}

// Syncer - ручной запуск синхронизации и разбор очереди
type Syncer interface {
	Sync(ctx context.Context) (*domain.SyncResult, error)
	IsRunning() bool
	DeadLetters(ctx context.Context) ([]*domain.QueueItem, error)
	Stats(ctx context.Context) (*domain.QueueStats, error)
}

// Fusion - текущая итоговая позиция и доверие источников
type Fusion interface {
	Current() *domain.FusedPosition
	Trust() []domain.TrustRecord
}

// Handler - локальный API агента: приложение на устройстве управляет поездкой
// и передаёт отчёты соседних источников.
type Handler struct {
	deviceID    string
	journeys    Journeys
	syncer      Syncer
	fusion      Fusion
	reports     chan<- domain.PositionReport
	syncTimeout time.Duration
	logger      *zap.Logger
}

func NewHandler(
	deviceID string,
	journeys Journeys,
	syncer Syncer,
	fusion Fusion,
	reports chan<- domain.PositionReport,
	syncTimeout time.Duration,
	logger *zap.Logger,
) *Handler {
	if syncTimeout <= 0 {
		syncTimeout = time.Minute
	}
	return &Handler{
		deviceID:    deviceID,
		journeys:    journeys,
		syncer:      syncer,
		fusion:      fusion,
		reports:     reports,
		syncTimeout: syncTimeout,
		logger:      logger,
	}
}

// Status - поездка, позиция, очередь и связь с бэкендом
func (h *Handler) Status(c *fiber.Ctx) error {
	stats, err := h.syncer.Stats(c.UserContext())
	if err != nil {
		h.logger.Warn("Failed to read queue stats", zap.Error(err))
		stats = nil
	}

	return utils.SendSuccess(c, dto.AgentStatusResponse{
		DeviceID:    h.deviceID,
		Online:      h.journeys.IsOnline(),
		SyncRunning: h.syncer.IsRunning(),
		Journey:     h.journeys.Current(),
		Fused:       h.fusion.Current(),
		Queue:       stats,
	}, nil)
}

func (h *Handler) StartJourney(c *fiber.Ctx) error {
	var req dto.StartJourneyRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.SendError(c, invalidBody(err))
		}
	}

	journey, err := h.journeys.StartJourney(c.UserContext(), req)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendCreated(c, journey)
}

func (h *Handler) EndJourney(c *fiber.Ctx) error {
	journey, err := h.journeys.EndJourney(c.UserContext())
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, journey, nil)
}

func (h *Handler) CancelJourney(c *fiber.Ctx) error {
	journey, err := h.journeys.CancelJourney(c.UserContext())
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, journey, nil)
}

// SubmitReport ставит отчёт соседнего источника в общий поток с датчиком устройства.
// Без активной поездки отчёт отклоняется.
func (h *Handler) SubmitReport(c *fiber.Ctx) error {
	var report domain.PositionReport
	if err := c.BodyParser(&report); err != nil {
		return utils.SendError(c, invalidBody(err))
	}
	if report.ObservedAt.IsZero() {
		report.ObservedAt = time.Now().UTC()
	}
	if err := validator.Validate(report); err != nil {
		return utils.SendError(c, errors.ErrInvalidPositionReport.WithMessage(err.Error()))
	}

	journey := h.journeys.Current()
	if !journey.IsActive() {
		return utils.SendError(c, errors.ErrNoActiveJourney)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), reportSubmitTimeout)
	defer cancel()

	select {
	case h.reports <- report:
	case <-ctx.Done():
		h.logger.Warn("Report queue full", zap.String("source_id", report.SourceID))
		return utils.SendError(c, errors.ErrReportQueueFull)
	}

	return utils.SendAccepted(c, dto.ReportAcceptedResponse{
		SourceID:  report.SourceID,
		JourneyID: journey.ID.String(),
	})
}

// PlaceOrder оформляет заказ; офлайн он уходит в очередь и возвращается с queued=true
func (h *Handler) PlaceOrder(c *fiber.Ctx) error {
	var req dto.PlaceOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, invalidBody(err))
	}

	order, queued, err := h.journeys.PlaceOrder(c.UserContext(), req)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendCreated(c, dto.PlaceOrderResponse{Order: order, Queued: queued})
}

// Sync - внеочередной проход синхронизации
func (h *Handler) Sync(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.syncTimeout)
	defer cancel()

	result, err := h.syncer.Sync(ctx)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, result, nil)
}

func (h *Handler) DeadLetters(c *fiber.Ctx) error {
	items, err := h.syncer.DeadLetters(c.UserContext())
	if err != nil {
		return utils.SendError(c, err)
	}
	if items == nil {
		items = []*domain.QueueItem{}
	}
	return utils.SendSuccess(c, items, &utils.Meta{Total: len(items)})
}

func (h *Handler) Trust(c *fiber.Ctx) error {
	records := h.fusion.Trust()
	if records == nil {
		records = []domain.TrustRecord{}
	}
	return utils.SendSuccess(c, records, &utils.Meta{Total: len(records)})
}

func invalidBody(err error) error {
	return errors.ErrInvalidRequest.WithMessage("Invalid request body: " + err.Error())
}
