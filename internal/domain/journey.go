package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/journey-tracker/internal/pkg/errors"
)

type JourneyStatus string

const (
	JourneyStatusActive    JourneyStatus = "ACTIVE"
	JourneyStatusCompleted JourneyStatus = "COMPLETED"
	JourneyStatusCancelled JourneyStatus = "CANCELLED"
)

func (s JourneyStatus) IsValid() bool {
	switch s {
	case JourneyStatusActive, JourneyStatusCompleted, JourneyStatusCancelled:
		return true
	}
	return false
}

// IsTerminal - из COMPLETED и CANCELLED переходов нет
func (s JourneyStatus) IsTerminal() bool {
	return s == JourneyStatusCompleted || s == JourneyStatusCancelled
}

// CanTransition разрешает только ACTIVE -> COMPLETED и ACTIVE -> CANCELLED
func CanTransition(from, to JourneyStatus) bool {
	return from == JourneyStatusActive && to.IsTerminal()
}

// Journey - поездка пассажира. У пассажира не больше одной ACTIVE поездки.
type Journey struct {
	ID                uuid.UUID     `json:"id"`
	PassengerID       string        `json:"passenger_id"`
	VehicleID         *string       `json:"vehicle_id,omitempty"`
	FromStop          *string       `json:"from_stop,omitempty"`
	ToStop            *string       `json:"to_stop,omitempty"`
	Status            JourneyStatus `json:"status"`
	StartTime         time.Time     `json:"start_time"`
	EndTime           *time.Time    `json:"end_time,omitempty"`
	CurrentPosition   *Point        `json:"current_position,omitempty"`
	OfflineQueueCount int           `json:"offline_queue_count"`
	LastSyncTime      *time.Time    `json:"last_sync_time,omitempty"`
	DeviceID          string        `json:"device_id"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

func (j *Journey) IsActive() bool {
	return j != nil && j.Status == JourneyStatusActive
}

// Transition переводит поездку в терминальный статус
func (j *Journey) Transition(to JourneyStatus, at time.Time) error {
	if !CanTransition(j.Status, to) {
		return errors.ErrInvalidTransition.WithDetails(map[string]interface{}{
			"journey_id": j.ID.String(),
			"from":       string(j.Status),
			"to":         string(to),
		})
	}
	j.Status = to
	end := at
	j.EndTime = &end
	j.UpdatedAt = at
	return nil
}

// Clone возвращает независимую копию для публикации подписчикам
func (j *Journey) Clone() *Journey {
	if j == nil {
		return nil
	}
	cp := *j
	cp.VehicleID = cloneString(j.VehicleID)
	cp.FromStop = cloneString(j.FromStop)
	cp.ToStop = cloneString(j.ToStop)
	if j.EndTime != nil {
		t := *j.EndTime
		cp.EndTime = &t
	}
	if j.LastSyncTime != nil {
		t := *j.LastSyncTime
		cp.LastSyncTime = &t
	}
	if j.CurrentPosition != nil {
		p := *j.CurrentPosition
		cp.CurrentPosition = &p
	}
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StatusChange - тело запроса смены статуса, используется и в очереди
type StatusChange struct {
	JourneyID uuid.UUID     `json:"journey_id"`
	Status    JourneyStatus `json:"status"`
	At        time.Time     `json:"at"`
}

// SyncState - сведения об офлайн очереди устройства для строки поездки
type SyncState struct {
	OfflineQueueCount int       `json:"offline_queue_count"`
	LastSyncTime      time.Time `json:"last_sync_time"`
}
