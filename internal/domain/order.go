package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OrderType string

const (
	OrderTypeBusTicket OrderType = "bus_ticket"
	OrderTypeFood      OrderType = "food"
	OrderTypeHotel     OrderType = "hotel"
	OrderTypeTaxi      OrderType = "taxi"
)

// Order - заказ, оформленный на устройстве. OfflineID генерируется клиентом
// и служит естественным ключом при повторной отправке.
type Order struct {
	OfflineID   uuid.UUID       `json:"offline_id" db:"offline_id"`
	PassengerID string          `json:"passenger_id" db:"passenger_id"`
	JourneyID   *uuid.UUID      `json:"journey_id,omitempty" db:"journey_id"`
	OrderType   OrderType       `json:"order_type" db:"order_type"`
	Details     json.RawMessage `json:"details,omitempty" db:"details"`
	TotalAmount float64         `json:"total_amount" db:"total_amount"`
	Currency    string          `json:"currency" db:"currency"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
