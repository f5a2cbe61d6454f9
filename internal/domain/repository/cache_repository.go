package repository

import (
	"context"
	"time"

	"github.com/journey-tracker/internal/domain"
)

// CacheRepository определяет методы для работы с кешем
type CacheRepository interface {
	// Get получает значение из кеша по ключу
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение в кеше с TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete удаляет значение из кеша
	Delete(ctx context.Context, key string) error

	// GetActiveJourney получает активную поездку пассажира из кеша
	GetActiveJourney(ctx context.Context, passengerID string) (*domain.Journey, error)

	// SetActiveJourney сохраняет активную поездку пассажира
	SetActiveJourney(ctx context.Context, journey *domain.Journey, ttl time.Duration) error

	// InvalidateActiveJourney сбрасывает кеш активной поездки
	InvalidateActiveJourney(ctx context.Context, passengerID string) error
}
