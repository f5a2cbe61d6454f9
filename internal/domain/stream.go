package domain

import (
	"time"

	"github.com/google/uuid"
)

// Stream names
const (
	StreamJourneyEvents = "stream:journey:events"
)

type EventType string

const (
	EventJourneyStatus   EventType = "journey.status"
	EventJourneyPosition EventType = "journey.position"
	EventFusedPosition   EventType = "journey.fused"
)

// JourneyEvent - сообщение realtime канала для карты и UI
type JourneyEvent struct {
	Type        EventType      `json:"type"`
	JourneyID   uuid.UUID      `json:"journey_id"`
	PassengerID string         `json:"passenger_id,omitempty"`
	Status      JourneyStatus  `json:"status,omitempty"`
	Position    *Point         `json:"position,omitempty"`
	Fused       *FusedPosition `json:"fused,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

func NewStatusEvent(j *Journey, at time.Time) *JourneyEvent {
	return &JourneyEvent{
		Type:        EventJourneyStatus,
		JourneyID:   j.ID,
		PassengerID: j.PassengerID,
		Status:      j.Status,
		Position:    j.CurrentPosition,
		OccurredAt:  at,
	}
}

func NewFusedEvent(f *FusedPosition) *JourneyEvent {
	pos := f.Position
	return &JourneyEvent{
		Type:       EventFusedPosition,
		JourneyID:  f.JourneyID,
		Position:   &pos,
		Fused:      f,
		OccurredAt: f.ComputedAt,
	}
}

// StreamMessage - сообщение из Redis Stream
type StreamMessage struct {
	ID   string
	Data string
}
