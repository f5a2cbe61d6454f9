package dto

import "github.com/journey-tracker/internal/domain"

// AgentStatusResponse - состояние агента на устройстве
type AgentStatusResponse struct {
	DeviceID    string                `json:"device_id"`
	Online      bool                  `json:"online"`
	SyncRunning bool                  `json:"sync_running"`
	Journey     *domain.Journey       `json:"journey"`
	Fused       *domain.FusedPosition `json:"fused,omitempty"`
	Queue       *domain.QueueStats    `json:"queue,omitempty"`
}

// PlaceOrderResponse - заказ и признак того, что он ждёт отправки в очереди
type PlaceOrderResponse struct {
	Order  *domain.Order `json:"order"`
	Queued bool          `json:"queued"`
}

// ReportAcceptedResponse - отчёт передан в обработку
type ReportAcceptedResponse struct {
	SourceID  string `json:"source_id"`
	JourneyID string `json:"journey_id"`
}
