package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/journey-tracker/internal/pkg/utils"
	"github.com/journey-tracker/internal/usecase"
	"github.com/journey-tracker/internal/usecase/dto"
	"go.uber.org/zap"
)

// OrderHandler - заказы, оформленные в поездке (в том числе офлайн)
type OrderHandler struct {
	trackingUC *usecase.TrackingAPIUseCase
	logger     *zap.Logger
}

func NewOrderHandler(trackingUC *usecase.TrackingAPIUseCase, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		trackingUC: trackingUC,
		logger:     logger,
	}
}

// CreateOrder godoc
// @Summary Создание заказа
// @Description Идемпотентно по offline_id
// @Tags Orders
// @Accept json
// @Produce json
// @Param request body dto.CreateOrderRequest true "Заказ"
// @Success 201 {object} utils.SuccessResponse{data=dto.OrderResponse}
// @Success 200 {object} utils.SuccessResponse{data=dto.OrderResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Router /api/v1/orders [post]
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	var req dto.CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, invalidBody(err))
	}

	result, err := h.trackingUC.CreateOrder(c.UserContext(), req)
	if err != nil {
		return utils.SendError(c, err)
	}

	if result.Created {
		return utils.SendCreated(c, result)
	}
	return utils.SendSuccess(c, result, nil)
}

// ListOrders godoc
// @Summary Заказы пассажира
// @Tags Orders
// @Produce json
// @Param id path string true "ID пассажира"
// @Param limit query int false "Максимум заказов" default(500)
// @Success 200 {object} utils.SuccessResponse{data=[]domain.Order}
// @Router /api/v1/passengers/{id}/orders [get]
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	orders, err := h.trackingUC.ListOrders(c.UserContext(), c.Params("id"), limit)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, orders, &utils.Meta{Total: len(orders), Limit: limit})
}
