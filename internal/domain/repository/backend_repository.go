package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/journey-tracker/internal/domain"
)

// BackendRepository - контракт бэкенда, которым пользуется устройство.
// Все записи идемпотентны по естественным ключам.
type BackendRepository interface {
	// UpsertJourney создаёт поездку или возвращает существующую с тем же id.
	// Вторая ACTIVE поездка пассажира даёт ErrJourneyConflict.
	UpsertJourney(ctx context.Context, journey *domain.Journey) (*domain.Journey, error)

	// GetActiveJourney возвращает nil, nil если активной поездки нет
	GetActiveJourney(ctx context.Context, passengerID string) (*domain.Journey, error)

	GetJourney(ctx context.Context, id uuid.UUID) (*domain.Journey, error)

	UpdateJourneyStatus(ctx context.Context, change domain.StatusChange) (*domain.Journey, error)

	UpdateSyncState(ctx context.Context, journeyID uuid.UUID, state domain.SyncState) error

	// UpsertPositionSamples идемпотентна по (journey_id, timestamp, source_id)
	UpsertPositionSamples(ctx context.Context, journeyID uuid.UUID, samples []*domain.LocationSample) (int, error)

	// UpsertTrustScores идемпотентна по (journey_id, source_id)
	UpsertTrustScores(ctx context.Context, journeyID uuid.UUID, records []*domain.TrustRecord) error

	GetTrustScores(ctx context.Context, journeyID uuid.UUID) ([]*domain.TrustRecord, error)

	// UpsertOrder идемпотентна по offline_id
	UpsertOrder(ctx context.Context, order *domain.Order) error

	Health(ctx context.Context) error
}
