package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/journey-tracker/internal/pkg/utils"
	"github.com/journey-tracker/internal/usecase"
	"github.com/journey-tracker/internal/usecase/dto"
	"go.uber.org/zap"
)

// JourneyHandler - поездки, их треки и доверие к источникам
type JourneyHandler struct {
	trackingUC *usecase.TrackingAPIUseCase
	logger     *zap.Logger
}

func NewJourneyHandler(trackingUC *usecase.TrackingAPIUseCase, logger *zap.Logger) *JourneyHandler {
	return &JourneyHandler{
		trackingUC: trackingUC,
		logger:     logger,
	}
}

// CreateJourney godoc
// @Summary Создание поездки
// @Description Создаёт ACTIVE поездку с id, сгенерированным клиентом. Повтор с тем же id возвращает сохранённую запись (200), вторая активная поездка пассажира - 409.
// @Tags Journeys
// @Accept json
// @Produce json
// @Param request body dto.CreateJourneyRequest true "Поездка"
// @Success 201 {object} utils.SuccessResponse{data=dto.JourneyResponse}
// @Success 200 {object} utils.SuccessResponse{data=dto.JourneyResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 409 {object} utils.ErrorResponse
// @Router /api/v1/journeys [post]
func (h *JourneyHandler) CreateJourney(c *fiber.Ctx) error {
	var req dto.CreateJourneyRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, invalidBody(err))
	}

	result, err := h.trackingUC.CreateJourney(c.UserContext(), req)
	if err != nil {
		return utils.SendError(c, err)
	}

	if result.Created {
		return utils.SendCreated(c, result)
	}
	return utils.SendSuccess(c, result, nil)
}

// GetJourney godoc
// @Summary Поездка по id
// @Tags Journeys
// @Produce json
// @Param id path string true "ID поездки"
// @Success 200 {object} utils.SuccessResponse{data=domain.Journey}
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/journeys/{id} [get]
func (h *JourneyHandler) GetJourney(c *fiber.Ctx) error {
	id, err := journeyIDParam(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	journey, err := h.trackingUC.GetJourney(c.UserContext(), id)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, journey, nil)
}

// GetActiveJourney godoc
// @Summary Активная поездка пассажира
// @Description Возвращает data=null, если активной поездки нет
// @Tags Journeys
// @Produce json
// @Param id path string true "ID пассажира"
// @Success 200 {object} utils.SuccessResponse{data=domain.Journey}
// @Router /api/v1/passengers/{id}/journeys/active [get]
func (h *JourneyHandler) GetActiveJourney(c *fiber.Ctx) error {
	journey, err := h.trackingUC.GetActiveJourney(c.UserContext(), c.Params("id"))
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, journey, nil)
}

// UpdateStatus godoc
// @Summary Завершение или отмена поездки
// @Description Разрешены только ACTIVE -> COMPLETED и ACTIVE -> CANCELLED. Повтор того же перехода идемпотентен.
// @Tags Journeys
// @Accept json
// @Produce json
// @Param id path string true "ID поездки"
// @Param request body dto.UpdateJourneyStatusRequest true "Новый статус"
// @Success 200 {object} utils.SuccessResponse{data=domain.Journey}
// @Failure 404 {object} utils.ErrorResponse
// @Failure 409 {object} utils.ErrorResponse
// @Router /api/v1/journeys/{id}/status [patch]
func (h *JourneyHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := journeyIDParam(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	var req dto.UpdateJourneyStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, invalidBody(err))
	}

	journey, err := h.trackingUC.UpdateStatus(c.UserContext(), id, req)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, journey, nil)
}

// UpdateSyncState godoc
// @Summary Состояние офлайн очереди устройства
// @Tags Journeys
// @Accept json
// @Param id path string true "ID поездки"
// @Param request body dto.UpdateSyncStateRequest true "Размер очереди и время синхронизации"
// @Success 204
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/journeys/{id}/sync-state [put]
func (h *JourneyHandler) UpdateSyncState(c *fiber.Ctx) error {
	id, err := journeyIDParam(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	var req dto.UpdateSyncStateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, invalidBody(err))
	}

	if err := h.trackingUC.UpdateSyncState(c.UserContext(), id, req); err != nil {
		return utils.SendError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UpsertPositions godoc
// @Summary Выгрузка точек трека
// @Description Идемпотентно по (journey_id, timestamp, source_id): повтор пачки не создаёт дублей
// @Tags Positions
// @Accept json
// @Produce json
// @Param id path string true "ID поездки"
// @Param request body dto.UpsertPositionsRequest true "Точки"
// @Success 200 {object} utils.SuccessResponse{data=dto.UpsertPositionsResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/journeys/{id}/positions [post]
func (h *JourneyHandler) UpsertPositions(c *fiber.Ctx) error {
	id, err := journeyIDParam(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	var req dto.UpsertPositionsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, invalidBody(err))
	}

	accepted, err := h.trackingUC.UpsertPositions(c.UserContext(), id, req)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, dto.UpsertPositionsResponse{Accepted: accepted}, nil)
}

// ListPositions godoc
// @Summary Трек поездки
// @Tags Positions
// @Produce json
// @Param id path string true "ID поездки"
// @Param limit query int false "Максимум точек" default(500)
// @Success 200 {object} utils.SuccessResponse{data=[]domain.LocationSample}
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/journeys/{id}/positions [get]
func (h *JourneyHandler) ListPositions(c *fiber.Ctx) error {
	id, err := journeyIDParam(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	limit := c.QueryInt("limit", 0)
	samples, err := h.trackingUC.ListPositions(c.UserContext(), id, limit)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, samples, &utils.Meta{Total: len(samples), Limit: limit})
}

// UpsertTrust godoc
// @Summary Выгрузка доверия к источникам
// @Description Идемпотентно по (journey_id, source_id), более старая запись не перезаписывает новую
// @Tags Trust
// @Accept json
// @Param id path string true "ID поездки"
// @Param request body dto.UpsertTrustRequest true "Доверие"
// @Success 204
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/journeys/{id}/trust [put]
func (h *JourneyHandler) UpsertTrust(c *fiber.Ctx) error {
	id, err := journeyIDParam(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	var req dto.UpsertTrustRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, invalidBody(err))
	}

	if err := h.trackingUC.UpsertTrust(c.UserContext(), id, req); err != nil {
		return utils.SendError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListTrust godoc
// @Summary Доверие к источникам поездки
// @Tags Trust
// @Produce json
// @Param id path string true "ID поездки"
// @Success 200 {object} utils.SuccessResponse{data=[]domain.TrustRecord}
// @Router /api/v1/journeys/{id}/trust [get]
func (h *JourneyHandler) ListTrust(c *fiber.Ctx) error {
	id, err := journeyIDParam(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	records, err := h.trackingUC.ListTrust(c.UserContext(), id)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, records, &utils.Meta{Total: len(records)})
}
