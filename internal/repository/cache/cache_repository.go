package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/domain/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const activeJourneyKeyPrefix = "journey:active:"

type cacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

func NewCacheRepository(redis *Redis) repository.CacheRepository {
	return &cacheRepository{
		client: redis.Client(),
		logger: redis.logger,
	}
}

func (r *cacheRepository) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil // Cache miss
	}
	if err != nil {
		r.logger.Error("Failed to get from cache", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("cache get error: %w", err)
	}

	r.logger.Debug("Cache hit", zap.String("key", key))
	return val, nil
}

func (r *cacheRepository) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := r.client.Set(ctx, key, value, ttl).Err()
	if err != nil {
		r.logger.Error("Failed to set cache", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set error: %w", err)
	}

	r.logger.Debug("Cache set", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

func (r *cacheRepository) Delete(ctx context.Context, key string) error {
	err := r.client.Del(ctx, key).Err()
	if err != nil {
		r.logger.Error("Failed to delete from cache", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache delete error: %w", err)
	}

	r.logger.Debug("Cache deleted", zap.String("key", key))
	return nil
}

// GetActiveJourney возвращает nil, nil при промахе
func (r *cacheRepository) GetActiveJourney(ctx context.Context, passengerID string) (*domain.Journey, error) {
	data, err := r.Get(ctx, activeJourneyKey(passengerID))
	if err != nil || data == nil {
		return nil, err
	}

	var journey domain.Journey
	if err := json.Unmarshal(data, &journey); err != nil {
		// битая запись не должна ломать чтение, просто считаем промахом
		r.logger.Warn("Failed to decode cached journey",
			zap.String("passenger_id", passengerID),
			zap.Error(err))
		_ = r.Delete(ctx, activeJourneyKey(passengerID))
		return nil, nil
	}
	return &journey, nil
}

func (r *cacheRepository) SetActiveJourney(ctx context.Context, journey *domain.Journey, ttl time.Duration) error {
	data, err := json.Marshal(journey)
	if err != nil {
		return fmt.Errorf("failed to marshal journey: %w", err)
	}
	return r.Set(ctx, activeJourneyKey(journey.PassengerID), data, ttl)
}

func (r *cacheRepository) InvalidateActiveJourney(ctx context.Context, passengerID string) error {
	return r.Delete(ctx, activeJourneyKey(passengerID))
}

func activeJourneyKey(passengerID string) string {
	return activeJourneyKeyPrefix + passengerID
}
