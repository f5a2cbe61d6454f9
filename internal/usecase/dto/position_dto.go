package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/journey-tracker/internal/domain"
)

// PositionSample - точка трека в запросе выгрузки
type PositionSample struct {
	SourceID   string            `json:"source_id" validate:"required,max=128"`
	SourceType domain.SourceType `json:"source_type" validate:"required,oneof=vehicle passenger rider"`
	Latitude   float64           `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude  float64           `json:"longitude" validate:"gte=-180,lte=180"`
	AccuracyM  float64           `json:"accuracy" validate:"gte=0"`
	Speed      *float64          `json:"speed,omitempty" validate:"omitempty,gte=0"`
	Heading    *float64          `json:"heading,omitempty" validate:"omitempty,gte=0,lt=360"`
	Timestamp  time.Time         `json:"timestamp" validate:"required"`
}

// UpsertPositionsRequest - пачка точек одной поездки
type UpsertPositionsRequest struct {
	Samples []PositionSample `json:"samples" validate:"required,min=1,max=1000,dive"`
}

type UpsertPositionsResponse struct {
	Accepted int `json:"accepted"`
}

func NewPositionSample(s *domain.LocationSample) PositionSample {
	return PositionSample{
		SourceID:   s.SourceID,
		SourceType: s.SourceType,
		Latitude:   s.Latitude,
		Longitude:  s.Longitude,
		AccuracyM:  s.AccuracyM,
		Speed:      s.Speed,
		Heading:    s.Heading,
		Timestamp:  s.CreatedAt,
	}
}

func (p PositionSample) ToDomain(journeyID uuid.UUID) *domain.LocationSample {
	return &domain.LocationSample{
		JourneyID:  journeyID,
		SourceID:   p.SourceID,
		SourceType: p.SourceType,
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
		AccuracyM:  p.AccuracyM,
		Speed:      p.Speed,
		Heading:    p.Heading,
		CreatedAt:  p.Timestamp,
	}
}

// TrustScore - доверие к источнику в запросе выгрузки
type TrustScore struct {
	SourceID        string            `json:"source_id" validate:"required,max=128"`
	SourceType      domain.SourceType `json:"source_type" validate:"required,oneof=vehicle passenger rider"`
	TrustScore      float64           `json:"trust_score" validate:"gte=0.1,lte=1"`
	SpoofingFlags   int               `json:"spoofing_flags" validate:"gte=0"`
	LastValidatedAt time.Time         `json:"last_validated_at"`
}

type UpsertTrustRequest struct {
	Scores []TrustScore `json:"scores" validate:"required,min=1,max=500,dive"`
}

func NewTrustScore(r *domain.TrustRecord) TrustScore {
	return TrustScore{
		SourceID:        r.SourceID,
		SourceType:      r.SourceType,
		TrustScore:      r.Score,
		SpoofingFlags:   r.SpoofingFlags,
		LastValidatedAt: r.LastValidatedAt,
	}
}

func (t TrustScore) ToDomain(journeyID uuid.UUID) *domain.TrustRecord {
	return &domain.TrustRecord{
		JourneyID:       journeyID,
		SourceID:        t.SourceID,
		SourceType:      t.SourceType,
		Score:           t.TrustScore,
		SpoofingFlags:   t.SpoofingFlags,
		LastValidatedAt: t.LastValidatedAt,
	}
}
