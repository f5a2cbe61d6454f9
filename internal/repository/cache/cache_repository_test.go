package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/journey-tracker/internal/config"
	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/repository/cache"
)

// getTestRedis подключается к локальному Redis (DB 1), иначе тест пропускается
func getTestRedis(t *testing.T) *cache.Redis {
	r, err := cache.NewRedis(&config.RedisConfig{
		Host: "localhost",
		Port: 6379,
		DB:   1,
	}, zap.NewNop())
	if err != nil {
		t.Skipf("Redis not available for integration tests: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestCacheRepository_GetSetDelete(t *testing.T) {
	r := getTestRedis(t)
	repo := cache.NewCacheRepository(r)
	ctx := context.Background()
	key := "test:cache:" + uuid.NewString()

	val, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, val, "miss returns nil without error")

	require.NoError(t, repo.Set(ctx, key, []byte("payload"), time.Minute))
	val, err = repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), val)

	require.NoError(t, repo.Delete(ctx, key))
	val, err = repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestCacheRepository_ActiveJourney(t *testing.T) {
	r := getTestRedis(t)
	repo := cache.NewCacheRepository(r)
	ctx := context.Background()

	passengerID := "passenger-" + uuid.NewString()
	vehicle := "bus-42"
	journey := &domain.Journey{
		ID:          uuid.New(),
		PassengerID: passengerID,
		VehicleID:   &vehicle,
		Status:      domain.JourneyStatusActive,
		StartTime:   time.Now().UTC().Truncate(time.Millisecond),
		DeviceID:    "device-1",
	}

	cached, err := repo.GetActiveJourney(ctx, passengerID)
	require.NoError(t, err)
	assert.Nil(t, cached)

	require.NoError(t, repo.SetActiveJourney(ctx, journey, time.Minute))

	cached, err = repo.GetActiveJourney(ctx, passengerID)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, journey.ID, cached.ID)
	assert.Equal(t, domain.JourneyStatusActive, cached.Status)
	assert.Equal(t, vehicle, *cached.VehicleID)
	assert.True(t, journey.StartTime.Equal(cached.StartTime))

	require.NoError(t, repo.InvalidateActiveJourney(ctx, passengerID))
	cached, err = repo.GetActiveJourney(ctx, passengerID)
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestCacheRepository_CorruptedEntryIsMiss(t *testing.T) {
	r := getTestRedis(t)
	repo := cache.NewCacheRepository(r)
	ctx := context.Background()

	passengerID := "passenger-" + uuid.NewString()
	require.NoError(t, repo.Set(ctx, "journey:active:"+passengerID, []byte("{not json"), time.Minute))

	cached, err := repo.GetActiveJourney(ctx, passengerID)
	require.NoError(t, err)
	assert.Nil(t, cached)

	raw, err := repo.Get(ctx, "journey:active:"+passengerID)
	require.NoError(t, err)
	assert.Nil(t, raw, "corrupted entry is dropped")
}
