package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/journey-tracker/internal/domain"
)

// StartJourneyRequest - начало поездки на устройстве
type StartJourneyRequest struct {
	VehicleID *string `json:"vehicle_id,omitempty" validate:"omitempty,max=64"`
	FromStop  *string `json:"from_stop,omitempty" validate:"omitempty,max=128"`
	ToStop    *string `json:"to_stop,omitempty" validate:"omitempty,max=128"`
}

// CreateJourneyRequest - создание поездки на бэкенде. ID генерирует клиент,
// повтор с тем же ID идемпотентен.
type CreateJourneyRequest struct {
	ID          uuid.UUID  `json:"id" validate:"required"`
	PassengerID string     `json:"passenger_id" validate:"required,max=128"`
	VehicleID   *string    `json:"vehicle_id,omitempty" validate:"omitempty,max=64"`
	FromStop    *string    `json:"from_stop,omitempty" validate:"omitempty,max=128"`
	ToStop      *string    `json:"to_stop,omitempty" validate:"omitempty,max=128"`
	DeviceID    string     `json:"device_id" validate:"max=128"`
	StartTime   *time.Time `json:"start_time,omitempty"`
}

func NewCreateJourneyRequest(j *domain.Journey) CreateJourneyRequest {
	start := j.StartTime
	return CreateJourneyRequest{
		ID:          j.ID,
		PassengerID: j.PassengerID,
		VehicleID:   j.VehicleID,
		FromStop:    j.FromStop,
		ToStop:      j.ToStop,
		DeviceID:    j.DeviceID,
		StartTime:   &start,
	}
}

// UpdateJourneyStatusRequest - перевод поездки в терминальный статус
type UpdateJourneyStatusRequest struct {
	Status domain.JourneyStatus `json:"status" validate:"required,journey_status"`
	At     *time.Time           `json:"at,omitempty"`
}

// UpdateSyncStateRequest - состояние офлайн очереди устройства
type UpdateSyncStateRequest struct {
	OfflineQueueCount int       `json:"offline_queue_count" validate:"gte=0"`
	LastSyncTime      time.Time `json:"last_sync_time" validate:"required"`
}

// JourneyResponse - поездка и признак того, что запись создана этим запросом
type JourneyResponse struct {
	Journey *domain.Journey `json:"journey"`
	Created bool            `json:"created"`
}
