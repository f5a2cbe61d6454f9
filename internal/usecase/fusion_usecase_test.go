package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/pkg/errors"
	"github.com/journey-tracker/internal/usecase"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestFusion(t *testing.T, clock *testClock) *usecase.FusionUseCase {
	t.Helper()

	logger := zap.NewNop()
	cfg := testFusionConfig()
	ledger := usecase.NewTrustLedger(cfg, newTestStore(t), nil, nil, logger)
	fusion := usecase.NewFusionUseCase(cfg, usecase.NewSpoofingDetector(cfg, logger), ledger, nil, logger)
	fusion.SetClock(clock.Now)
	t.Cleanup(fusion.Close)

	require.NoError(t, fusion.Reset(context.Background(), uuid.New()))
	return fusion
}

func TestFusionUseCase_Ingest(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("teleporting source is excluded and loses trust", func(t *testing.T) {
		clock := &testClock{now: t0}
		fusion := newTestFusion(t, clock)

		first, err := fusion.Ingest(ctx, domain.PositionReport{
			SourceID:   "phone-a",
			SourceType: domain.SourceTypePassenger,
			Latitude:   -15.3875,
			Longitude:  28.3228,
			AccuracyM:  8,
			ObservedAt: t0,
		})
		require.NoError(t, err)
		assert.True(t, first.Accepted)
		assert.InDelta(t, 0.5, first.Trust.Score, 1e-9)

		clock.Set(t0.Add(time.Second))
		second, err := fusion.Ingest(ctx, domain.PositionReport{
			SourceID:   "phone-a",
			SourceType: domain.SourceTypePassenger,
			Latitude:   -15.0,
			Longitude:  28.0,
			AccuracyM:  8,
			ObservedAt: t0.Add(time.Second),
		})
		require.NoError(t, err)

		assert.False(t, second.Accepted)
		assert.True(t, second.Check.Spoofed)
		assert.InDelta(t, 0.3, second.Trust.Score, 1e-9)
		assert.Equal(t, 1, second.Trust.SpoofingFlags)

		window := fusion.Window()
		require.Len(t, window, 1)
		assert.Equal(t, t0, window[0].Report.ObservedAt)
		assert.InDelta(t, -15.3875, window[0].Report.Latitude, 1e-9)
		assert.InDelta(t, 0.3, window[0].Trust, 1e-9)

		require.NotNil(t, second.Fused)
		assert.InDelta(t, -15.3875, second.Fused.Position.Lat, 1e-9)
		assert.InDelta(t, 28.3228, second.Fused.Position.Lon, 1e-9)
	})

	t.Run("two honest sources within five meters agree", func(t *testing.T) {
		clock := &testClock{now: t0}
		fusion := newTestFusion(t, clock)

		_, err := fusion.Ingest(ctx, domain.PositionReport{
			SourceID:   "bus-12",
			SourceType: domain.SourceTypeVehicle,
			Latitude:   -15.3875,
			Longitude:  28.3228,
			AccuracyM:  5,
			Heading:    floatPtr(90),
			Speed:      floatPtr(12),
			ObservedAt: t0,
		})
		require.NoError(t, err)

		result, err := fusion.Ingest(ctx, domain.PositionReport{
			SourceID:   "phone-a",
			SourceType: domain.SourceTypePassenger,
			Latitude:   -15.38753,
			Longitude:  28.32282,
			AccuracyM:  5,
			ObservedAt: t0,
		})
		require.NoError(t, err)

		fused := result.Fused
		require.NotNil(t, fused)
		assert.GreaterOrEqual(t, fused.Confidence, 0.99)
		assert.Equal(t, "bus-12", fused.PrimarySourceID)
		assert.Len(t, fused.ContributingSources, 2)
		assert.False(t, fused.IsSuspect)
		require.NotNil(t, fused.Heading)
		assert.InDelta(t, 90, *fused.Heading, 1e-6)
		require.NotNil(t, fused.Speed)
		assert.InDelta(t, 12, *fused.Speed, 1e-9)

		assert.Equal(t, fused, fusion.Current())
	})

	t.Run("stale reports leave the window", func(t *testing.T) {
		clock := &testClock{now: t0}
		fusion := newTestFusion(t, clock)

		_, err := fusion.Ingest(ctx, domain.PositionReport{
			SourceID:   "bus-12",
			SourceType: domain.SourceTypeVehicle,
			Latitude:   -15.3875,
			Longitude:  28.3228,
			AccuracyM:  5,
			ObservedAt: t0,
		})
		require.NoError(t, err)
		require.NotNil(t, fusion.Current())

		assert.NotNil(t, fusion.Recompute(t0.Add(29*time.Second)))
		assert.Nil(t, fusion.Recompute(t0.Add(31*time.Second)))
		assert.Nil(t, fusion.Current())
		assert.Empty(t, fusion.Window())
	})

	t.Run("older report does not replace newer one", func(t *testing.T) {
		clock := &testClock{now: t0.Add(10 * time.Second)}
		fusion := newTestFusion(t, clock)

		_, err := fusion.Ingest(ctx, domain.PositionReport{
			SourceID:   "bus-12",
			SourceType: domain.SourceTypeVehicle,
			Latitude:   -15.3875,
			Longitude:  28.3228,
			AccuracyM:  5,
			ObservedAt: t0.Add(10 * time.Second),
		})
		require.NoError(t, err)

		_, err = fusion.Ingest(ctx, domain.PositionReport{
			SourceID:   "bus-12",
			SourceType: domain.SourceTypeVehicle,
			Latitude:   -15.3876,
			Longitude:  28.3228,
			AccuracyM:  5,
			ObservedAt: t0.Add(5 * time.Second),
		})
		require.NoError(t, err)

		window := fusion.Window()
		require.Len(t, window, 1)
		assert.Equal(t, t0.Add(10*time.Second), window[0].Report.ObservedAt)
	})

	t.Run("source at trust floor makes position suspect", func(t *testing.T) {
		clock := &testClock{now: t0}
		fusion := newTestFusion(t, clock)

		honest := domain.PositionReport{
			SourceID:   "phone-b",
			SourceType: domain.SourceTypePassenger,
			Latitude:   -15.3875,
			Longitude:  28.3228,
			AccuracyM:  5,
			ObservedAt: t0,
		}
		far := honest
		far.Latitude, far.Longitude = -15.0, 28.0

		_, err := fusion.Ingest(ctx, honest)
		require.NoError(t, err)

		// прыжок туда и обратно: 0.5 -> 0.3 -> 0.1
		far.ObservedAt = t0.Add(time.Second)
		_, err = fusion.Ingest(ctx, far)
		require.NoError(t, err)

		back := honest
		back.ObservedAt = t0.Add(2 * time.Second)
		result, err := fusion.Ingest(ctx, back)
		require.NoError(t, err)

		assert.False(t, result.Accepted)
		assert.InDelta(t, 0.1, result.Trust.Score, 1e-9)
		require.NotNil(t, result.Fused)
		assert.True(t, result.Fused.IsSuspect)
	})

	t.Run("invalid report is rejected", func(t *testing.T) {
		clock := &testClock{now: t0}
		fusion := newTestFusion(t, clock)

		_, err := fusion.Ingest(ctx, domain.PositionReport{
			SourceID:   "phone-a",
			SourceType: domain.SourceTypePassenger,
			Latitude:   123,
			Longitude:  28.3228,
			ObservedAt: t0,
		})
		assert.ErrorIs(t, err, errors.ErrInvalidPositionReport)

		_, err = fusion.Ingest(ctx, domain.PositionReport{
			SourceType: domain.SourceTypePassenger,
			Latitude:   -15.3875,
			Longitude:  28.3228,
		})
		assert.ErrorIs(t, err, errors.ErrInvalidPositionReport)
		assert.Nil(t, fusion.Current())
	})

	t.Run("missing timestamp is stamped with current time", func(t *testing.T) {
		clock := &testClock{now: t0}
		fusion := newTestFusion(t, clock)

		result, err := fusion.Ingest(ctx, domain.PositionReport{
			SourceID:   "phone-a",
			SourceType: domain.SourceTypePassenger,
			Latitude:   -15.3875,
			Longitude:  28.3228,
			AccuracyM:  5,
		})
		require.NoError(t, err)
		assert.Equal(t, t0, result.Report.ObservedAt)
	})

	t.Run("subscribers receive fused snapshots", func(t *testing.T) {
		clock := &testClock{now: t0}
		fusion := newTestFusion(t, clock)

		ch, cancel := fusion.Subscribe(4)
		defer cancel()

		_, err := fusion.Ingest(ctx, domain.PositionReport{
			SourceID:   "bus-12",
			SourceType: domain.SourceTypeVehicle,
			Latitude:   -15.3875,
			Longitude:  28.3228,
			AccuracyM:  5,
			ObservedAt: t0,
		})
		require.NoError(t, err)

		select {
		case fused := <-ch:
			require.NotNil(t, fused)
			assert.Equal(t, "bus-12", fused.PrimarySourceID)
		case <-time.After(time.Second):
			t.Fatal("no snapshot published")
		}
	})
}

func TestFusionUseCase_ConcurrentProducers(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := &testClock{now: t0.Add(time.Minute)}
	fusion := newTestFusion(t, clock)

	sources := []struct {
		id  string
		typ domain.SourceType
	}{
		{"bus-12", domain.SourceTypeVehicle},
		{"phone-a", domain.SourceTypePassenger},
		{"phone-b", domain.SourceTypePassenger},
		{"rider-1", domain.SourceTypeRider},
	}

	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(id string, typ domain.SourceType) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := fusion.Ingest(ctx, domain.PositionReport{
					SourceID:   id,
					SourceType: typ,
					Latitude:   -15.3875 + float64(i)*0.00001,
					Longitude:  28.3228,
					AccuracyM:  5,
					ObservedAt: t0.Add(time.Duration(i) * time.Second),
				})
				assert.NoError(t, err)
			}
		}(src.id, src.typ)
	}
	wg.Wait()

	window := fusion.Window()
	require.Len(t, window, len(sources))
	assert.Equal(t, "bus-12", window[0].Report.SourceID)
	for _, e := range window {
		assert.Equal(t, t0.Add(49*time.Second), e.Report.ObservedAt)
	}
	for _, rec := range fusion.Trust() {
		assert.GreaterOrEqual(t, rec.Score, 0.1)
		assert.LessOrEqual(t, rec.Score, 1.0)
		assert.Zero(t, rec.SpoofingFlags)
	}
}
