package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// QueueAction - тип отложенной мутации
type QueueAction string

const (
	// ActionUpdateLocation - маркер выгрузки накопленных LocationSample
	ActionUpdateLocation QueueAction = "UPDATE_LOCATION"
	ActionConfirmJourney QueueAction = "CONFIRM_JOURNEY"
	ActionEndJourney     QueueAction = "END_JOURNEY"
	ActionCancelJourney  QueueAction = "CANCEL_JOURNEY"
	// ActionUpsertTrust - маркер выгрузки доверия источников поездки
	ActionUpsertTrust QueueAction = "UPSERT_TRUST"
	ActionCreateOrder QueueAction = "CREATE_ORDER"
)

func (a QueueAction) IsValid() bool {
	switch a {
	case ActionUpdateLocation, ActionConfirmJourney, ActionEndJourney,
		ActionCancelJourney, ActionUpsertTrust, ActionCreateOrder:
		return true
	}
	return false
}

// QueueItem - мутация, ожидающая отправки на бэкенд.
// SequenceNumber строго возрастает в пределах устройства и не переиспользуется.
type QueueItem struct {
	ID             uuid.UUID       `json:"id"`
	DeviceID       string          `json:"device_id"`
	JourneyID      *uuid.UUID      `json:"journey_id,omitempty"`
	Action         QueueAction     `json:"action"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	SequenceNumber uint64          `json:"sequence_number"`
	Processed      bool            `json:"processed"`
	AttemptCount   int             `json:"attempt_count"`
	LastError      string          `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	LastAttemptAt  *time.Time      `json:"last_attempt_at,omitempty"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
}

// IsDeadLetter - попытки исчерпаны, элемент ждёт ручного разбора
func (q *QueueItem) IsDeadLetter(maxAttempts int) bool {
	return !q.Processed && maxAttempts > 0 && q.AttemptCount >= maxAttempts
}

// NextAttemptAt - экспоненциальная задержка base*2^(attempts-1), не больше max
func (q *QueueItem) NextAttemptAt(base, max time.Duration) time.Time {
	if q.AttemptCount == 0 || q.LastAttemptAt == nil {
		return time.Time{}
	}

	delay := base
	for i := 1; i < q.AttemptCount; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	if delay > max {
		delay = max
	}
	return q.LastAttemptAt.Add(delay)
}

// LocationSample - локально сохранённая точка трека, выгружается пачкой
type LocationSample struct {
	ID         uint64     `json:"id"`
	JourneyID  uuid.UUID  `json:"journey_id"`
	SourceID   string     `json:"source_id"`
	SourceType SourceType `json:"source_type"`
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	AccuracyM  float64    `json:"accuracy_m"`
	Speed      *float64   `json:"speed,omitempty"`
	Heading    *float64   `json:"heading,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	Synced     bool       `json:"synced"`
	SyncedAt   *time.Time `json:"synced_at,omitempty"`
}

func SampleFromReport(journeyID uuid.UUID, r PositionReport) LocationSample {
	return LocationSample{
		JourneyID:  journeyID,
		SourceID:   r.SourceID,
		SourceType: r.SourceType,
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
		AccuracyM:  r.AccuracyM,
		Speed:      r.Speed,
		Heading:    r.Heading,
		CreatedAt:  r.ObservedAt,
	}
}

// QueueStats - статистика очереди для отображения
type QueueStats struct {
	Total             int `json:"total"`
	Pending           int `json:"pending"`
	Processed         int `json:"processed"`
	DeadLetters       int `json:"dead_letters"`
	UnsyncedLocations int `json:"unsynced_locations"`
}

// SyncResult - итог одного прохода синхронизации
type SyncResult struct {
	Processed         int        `json:"processed"`
	Failed            int        `json:"failed"`
	Deferred          int        `json:"deferred"`
	DeadLetters       int        `json:"dead_letters"`
	Discarded         int        `json:"discarded"`
	LocationsUploaded int        `json:"locations_uploaded"`
	Removed           int        `json:"removed"`
	Stats             QueueStats `json:"stats"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        time.Time  `json:"finished_at"`
}
