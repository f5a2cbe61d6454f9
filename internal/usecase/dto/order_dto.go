package dto

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/journey-tracker/internal/domain"
)

// CreateOrderRequest - заказ с клиентским offline_id, повтор идемпотентен
type CreateOrderRequest struct {
	OfflineID   uuid.UUID        `json:"offline_id" validate:"required"`
	PassengerID string           `json:"passenger_id" validate:"required,max=128"`
	JourneyID   *uuid.UUID       `json:"journey_id,omitempty"`
	OrderType   domain.OrderType `json:"order_type" validate:"required,oneof=bus_ticket food hotel taxi"`
	Details     json.RawMessage  `json:"details,omitempty"`
	TotalAmount float64          `json:"total_amount" validate:"gte=0"`
	Currency    string           `json:"currency" validate:"required,len=3"`
}

// PlaceOrderRequest - заказ, оформляемый на устройстве
type PlaceOrderRequest struct {
	OrderType   domain.OrderType `json:"order_type" validate:"required,oneof=bus_ticket food hotel taxi"`
	Details     json.RawMessage  `json:"details,omitempty"`
	TotalAmount float64          `json:"total_amount" validate:"gte=0"`
	Currency    string           `json:"currency" validate:"required,len=3"`
}

func NewCreateOrderRequest(o *domain.Order) CreateOrderRequest {
	return CreateOrderRequest{
		OfflineID:   o.OfflineID,
		PassengerID: o.PassengerID,
		JourneyID:   o.JourneyID,
		OrderType:   o.OrderType,
		Details:     o.Details,
		TotalAmount: o.TotalAmount,
		Currency:    o.Currency,
	}
}

func (r CreateOrderRequest) ToDomain() *domain.Order {
	return &domain.Order{
		OfflineID:   r.OfflineID,
		PassengerID: r.PassengerID,
		JourneyID:   r.JourneyID,
		OrderType:   r.OrderType,
		Details:     r.Details,
		TotalAmount: r.TotalAmount,
		Currency:    r.Currency,
	}
}

type OrderResponse struct {
	Order   *domain.Order `json:"order"`
	Created bool          `json:"created"`
}
