package domain

import (
	"time"

	"github.com/google/uuid"
)

// SourceType - тип независимого источника GPS
type SourceType string

const (
	SourceTypeVehicle   SourceType = "vehicle"
	SourceTypePassenger SourceType = "passenger"
	SourceTypeRider     SourceType = "rider"
)

func (t SourceType) IsValid() bool {
	switch t {
	case SourceTypeVehicle, SourceTypePassenger, SourceTypeRider:
		return true
	}
	return false
}

// PositionReport - сырой отчёт источника. Хранится только в окне фьюжна.
type PositionReport struct {
	SourceID   string     `json:"source_id" validate:"required"`
	SourceType SourceType `json:"source_type" validate:"required,oneof=vehicle passenger rider"`
	Latitude   float64    `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude  float64    `json:"longitude" validate:"gte=-180,lte=180"`
	AccuracyM  float64    `json:"accuracy_m" validate:"gte=0"`
	Heading    *float64   `json:"heading,omitempty" validate:"omitempty,gte=0,lt=360"`
	Speed      *float64   `json:"speed,omitempty" validate:"omitempty,gte=0"`
	ObservedAt time.Time  `json:"observed_at"`
}

func (r PositionReport) Point() Point {
	return Point{Lat: r.Latitude, Lon: r.Longitude}
}

// PositionRef - последняя принятая позиция источника, база для проверки скорости
type PositionRef struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	ObservedAt time.Time `json:"observed_at"`
}

func RefFromReport(r PositionReport) PositionRef {
	return PositionRef{
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
		ObservedAt: r.ObservedAt,
	}
}

// SpoofCheck - результат проверки отчёта на физическую правдоподобность
type SpoofCheck struct {
	Spoofed         bool    `json:"spoofed"`
	Checked         bool    `json:"checked"`
	DistanceM       float64 `json:"distance_m"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
	ImpliedSpeedMps float64 `json:"implied_speed_mps"`
	CeilingMps      float64 `json:"ceiling_mps"`
}

// FusedPosition - итоговая позиция по окну источников.
// Производная величина, всегда восстанавливается из окна и доверия.
type FusedPosition struct {
	JourneyID           uuid.UUID        `json:"journey_id"`
	Position            Point            `json:"position"`
	Confidence          float64          `json:"confidence"`
	PrimarySourceID     string           `json:"primary_source_id"`
	ContributingSources []PositionReport `json:"contributing_sources"`
	IsSuspect           bool             `json:"is_suspect"`
	Heading             *float64         `json:"heading,omitempty"`
	Speed               *float64         `json:"speed,omitempty"`
	ComputedAt          time.Time        `json:"computed_at"`
}

// IngestResult - что произошло с отчётом при приёме
type IngestResult struct {
	Report   PositionReport `json:"report"`
	Check    SpoofCheck     `json:"check"`
	Trust    TrustRecord    `json:"trust"`
	Accepted bool           `json:"accepted"`
	Fused    *FusedPosition `json:"fused,omitempty"`
}
