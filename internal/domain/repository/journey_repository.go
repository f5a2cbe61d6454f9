package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/journey-tracker/internal/domain"
)

// JourneyRepository определяет методы для работы с поездками
type JourneyRepository interface {
	// Create вставляет поездку; повтор с тем же id ничего не меняет (created=false)
	Create(ctx context.Context, journey *domain.Journey) (bool, error)

	GetByID(ctx context.Context, id uuid.UUID) (*domain.Journey, error)

	// GetActiveByPassenger возвращает nil, nil если активной поездки нет
	GetActiveByPassenger(ctx context.Context, passengerID string) (*domain.Journey, error)

	// UpdateStatus меняет статус только у ACTIVE поездки
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JourneyStatus, endTime time.Time) (bool, error)

	UpdateSyncState(ctx context.Context, id uuid.UUID, state domain.SyncState) error

	UpdatePosition(ctx context.Context, id uuid.UUID, position domain.Point) error
}

// PositionRepository - история позиций поездки
type PositionRepository interface {
	UpsertBatch(ctx context.Context, journeyID uuid.UUID, samples []*domain.LocationSample) (int64, error)
	ListByJourney(ctx context.Context, journeyID uuid.UUID, limit int) ([]*domain.LocationSample, error)
}

// TrustRepository - доверие к источникам по поездкам
type TrustRepository interface {
	UpsertBatch(ctx context.Context, records []*domain.TrustRecord) error
	ListByJourney(ctx context.Context, journeyID uuid.UUID) ([]*domain.TrustRecord, error)
}

// OrderRepository - заказы, оформленные на устройствах
type OrderRepository interface {
	// Upsert возвращает created=false, если заказ с таким offline_id уже есть
	Upsert(ctx context.Context, order *domain.Order) (bool, error)
	ListByPassenger(ctx context.Context, passengerID string, limit int) ([]*domain.Order, error)
}
