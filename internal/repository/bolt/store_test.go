package bolt_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/journey-tracker/internal/config"
	"github.com/journey-tracker/internal/domain"
	apperrors "github.com/journey-tracker/internal/pkg/errors"
	"github.com/journey-tracker/internal/repository/bolt"
)

const testDevice = "device-1"

// StoreTestSuite тестирует локальное хранилище на временном файле
type StoreTestSuite struct {
	suite.Suite
	dir   string
	store *bolt.Store
	ctx   context.Context
}

func (s *StoreTestSuite) storeConfig() (*config.StoreConfig, *config.QueueConfig) {
	return &config.StoreConfig{
			Path:              filepath.Join(s.dir, "agent.db"),
			OpenTimeout:       time.Second,
			ResetOnCorruption: true,
		}, &config.QueueConfig{
			MaxAttempts: 3,
		}
}

func (s *StoreTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.dir = s.T().TempDir()

	storeCfg, queueCfg := s.storeConfig()
	store, err := bolt.New(storeCfg, queueCfg, zap.NewNop())
	s.Require().NoError(err)
	s.store = store
}

func (s *StoreTestSuite) TearDownTest() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

// ============================================================================
// Queue
// ============================================================================

func (s *StoreTestSuite) TestEnqueue_SequenceStrictlyIncreasing() {
	var last uint64
	for i := 0; i < 50; i++ {
		item, err := s.store.Enqueue(s.ctx, testDevice, domain.ActionCreateOrder, []byte(`{}`), nil)
		s.Require().NoError(err)
		s.Equal(last+1, item.SequenceNumber)
		last = item.SequenceNumber
	}
}

func (s *StoreTestSuite) TestEnqueue_NewItemIsLastPending() {
	// Arrange
	for i := 0; i < 3; i++ {
		_, err := s.store.Enqueue(s.ctx, testDevice, domain.ActionCreateOrder, nil, nil)
		s.Require().NoError(err)
	}

	// Act
	item, err := s.store.Enqueue(s.ctx, testDevice, domain.ActionEndJourney, []byte(`{"a":1}`), nil)
	s.Require().NoError(err)
	pending, err := s.store.GetPending(s.ctx, testDevice)

	// Assert
	s.Require().NoError(err)
	s.Require().Len(pending, 4)
	s.Equal(item.ID, pending[3].ID)
	s.Equal(domain.ActionEndJourney, pending[3].Action)
	s.JSONEq(`{"a":1}`, string(pending[3].Payload))
}

func (s *StoreTestSuite) TestEnqueue_SequencesArePerDevice() {
	a, err := s.store.Enqueue(s.ctx, "device-a", domain.ActionCreateOrder, nil, nil)
	s.Require().NoError(err)
	b, err := s.store.Enqueue(s.ctx, "device-b", domain.ActionCreateOrder, nil, nil)
	s.Require().NoError(err)

	s.Equal(uint64(1), a.SequenceNumber)
	s.Equal(uint64(1), b.SequenceNumber)

	pending, err := s.store.GetPending(s.ctx, "device-a")
	s.Require().NoError(err)
	s.Len(pending, 1)
}

func (s *StoreTestSuite) TestEnqueue_ConcurrentProducersNoGapsOrRepeats() {
	const producers, perProducer = 8, 25

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_, err := s.store.Enqueue(s.ctx, testDevice, domain.ActionCreateOrder, nil, nil)
				s.NoError(err)
			}
		}()
	}
	wg.Wait()

	pending, err := s.store.GetPending(s.ctx, testDevice)
	s.Require().NoError(err)
	s.Require().Len(pending, producers*perProducer)
	for i, item := range pending {
		s.Equal(uint64(i+1), item.SequenceNumber)
	}
}

func (s *StoreTestSuite) TestEnqueueOnce_CoalescesUntilProcessed() {
	journeyID := uuid.New()

	first, created, err := s.store.EnqueueOnce(s.ctx, testDevice, domain.ActionUpdateLocation, nil, &journeyID)
	s.Require().NoError(err)
	s.True(created)

	again, created, err := s.store.EnqueueOnce(s.ctx, testDevice, domain.ActionUpdateLocation, nil, &journeyID)
	s.Require().NoError(err)
	s.False(created)
	s.Equal(first.ID, again.ID)

	s.Require().NoError(s.store.MarkProcessed(s.ctx, first.ID, ""))

	next, created, err := s.store.EnqueueOnce(s.ctx, testDevice, domain.ActionUpdateLocation, nil, &journeyID)
	s.Require().NoError(err)
	s.True(created)
	s.Greater(next.SequenceNumber, first.SequenceNumber)
}

func (s *StoreTestSuite) TestEnqueueOnce_DeadMarkerIsReplaced() {
	journeyID := uuid.New()

	first, _, err := s.store.EnqueueOnce(s.ctx, testDevice, domain.ActionUpsertTrust, nil, &journeyID)
	s.Require().NoError(err)
	for i := 0; i < 3; i++ {
		_, err = s.store.IncrementRetry(s.ctx, first.ID, "boom")
		s.Require().NoError(err)
	}

	next, created, err := s.store.EnqueueOnce(s.ctx, testDevice, domain.ActionUpsertTrust, nil, &journeyID)
	s.Require().NoError(err)
	s.True(created)
	s.NotEqual(first.ID, next.ID)
}

func (s *StoreTestSuite) TestMarkProcessed_RearmsLocationMarkerForLateSamples() {
	journeyID := uuid.New()

	marker, _, err := s.store.EnqueueOnce(s.ctx, testDevice, domain.ActionUpdateLocation, nil, &journeyID)
	s.Require().NoError(err)

	// точка пришла, пока маркер ещё не закрыт: EnqueueOnce схлопывается в него
	s.Require().NoError(s.store.StoreLocation(s.ctx, &domain.LocationSample{JourneyID: journeyID, CreatedAt: time.Now()}))
	_, created, err := s.store.EnqueueOnce(s.ctx, testDevice, domain.ActionUpdateLocation, nil, &journeyID)
	s.Require().NoError(err)
	s.False(created)

	s.Require().NoError(s.store.MarkProcessed(s.ctx, marker.ID, ""))

	pending, err := s.store.GetPending(s.ctx, testDevice)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(domain.ActionUpdateLocation, pending[0].Action)
	s.NotEqual(marker.ID, pending[0].ID)
	s.Greater(pending[0].SequenceNumber, marker.SequenceNumber)

	// новый маркер занимает место старого
	again, created, err := s.store.EnqueueOnce(s.ctx, testDevice, domain.ActionUpdateLocation, nil, &journeyID)
	s.Require().NoError(err)
	s.False(created)
	s.Equal(pending[0].ID, again.ID)

	samples, err := s.store.GetUnsyncedLocations(s.ctx, journeyID)
	s.Require().NoError(err)
	s.Require().Len(samples, 1)
	s.Require().NoError(s.store.MarkLocationsSynced(s.ctx, []uint64{samples[0].ID}))
	s.Require().NoError(s.store.MarkProcessed(s.ctx, again.ID, ""))

	pending, err = s.store.GetPending(s.ctx, testDevice)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *StoreTestSuite) TestMarkProcessed_RejectedLocationMarkerIsNotRearmed() {
	journeyID := uuid.New()

	marker, _, err := s.store.EnqueueOnce(s.ctx, testDevice, domain.ActionUpdateLocation, nil, &journeyID)
	s.Require().NoError(err)
	s.Require().NoError(s.store.StoreLocation(s.ctx, &domain.LocationSample{JourneyID: journeyID, CreatedAt: time.Now()}))

	s.Require().NoError(s.store.MarkProcessed(s.ctx, marker.ID, "journey rejected"))

	pending, err := s.store.GetPending(s.ctx, testDevice)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *StoreTestSuite) TestMarkProcessed_RemovesFromPending() {
	item, err := s.store.Enqueue(s.ctx, testDevice, domain.ActionConfirmJourney, nil, nil)
	s.Require().NoError(err)

	s.Require().NoError(s.store.MarkProcessed(s.ctx, item.ID, ""))
	// повторная отметка ничего не ломает
	s.Require().NoError(s.store.MarkProcessed(s.ctx, item.ID, ""))

	pending, err := s.store.GetPending(s.ctx, testDevice)
	s.Require().NoError(err)
	s.Empty(pending)

	stored, err := s.store.GetItem(s.ctx, item.ID)
	s.Require().NoError(err)
	s.True(stored.Processed)
	s.NotNil(stored.ProcessedAt)
}

func (s *StoreTestSuite) TestMarkProcessed_UnknownItem() {
	err := s.store.MarkProcessed(s.ctx, uuid.New(), "")
	s.True(errors.Is(err, apperrors.ErrQueueItemNotFound))
}

func (s *StoreTestSuite) TestIncrementRetry_DeadLetters() {
	item, err := s.store.Enqueue(s.ctx, testDevice, domain.ActionCreateOrder, nil, nil)
	s.Require().NoError(err)

	for i := 1; i <= 3; i++ {
		updated, err := s.store.IncrementRetry(s.ctx, item.ID, "network down")
		s.Require().NoError(err)
		s.Equal(i, updated.AttemptCount)
		s.Equal("network down", updated.LastError)
		s.NotNil(updated.LastAttemptAt)
	}

	dead, err := s.store.ListDeadLetters(s.ctx, testDevice)
	s.Require().NoError(err)
	s.Require().Len(dead, 1)
	s.Equal(item.ID, dead[0].ID)

	stats, err := s.store.GetQueueStats(s.ctx, testDevice)
	s.Require().NoError(err)
	s.Equal(1, stats.Total)
	s.Equal(1, stats.Pending)
	s.Equal(1, stats.DeadLetters)

	// dead letters не удаляются сборщиком
	removed, err := s.store.CleanOldData(s.ctx, time.Now().Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(0, removed)
}

// ============================================================================
// Locations and GC
// ============================================================================

func (s *StoreTestSuite) TestLocations_BatchSync() {
	journeyID := uuid.New()
	other := uuid.New()

	for i := 0; i < 3; i++ {
		s.Require().NoError(s.store.StoreLocation(s.ctx, &domain.LocationSample{
			JourneyID: journeyID,
			Latitude:  float64(i),
			Longitude: 1,
			CreatedAt: time.Now(),
		}))
	}
	s.Require().NoError(s.store.StoreLocation(s.ctx, &domain.LocationSample{JourneyID: other, CreatedAt: time.Now()}))

	unsynced, err := s.store.GetUnsyncedLocations(s.ctx, journeyID)
	s.Require().NoError(err)
	s.Require().Len(unsynced, 3)

	ids := make([]uint64, 0, len(unsynced))
	for _, sample := range unsynced {
		ids = append(ids, sample.ID)
	}
	s.Require().NoError(s.store.MarkLocationsSynced(s.ctx, ids))

	unsynced, err = s.store.GetUnsyncedLocations(s.ctx, journeyID)
	s.Require().NoError(err)
	s.Empty(unsynced)

	stats, err := s.store.GetQueueStats(s.ctx, testDevice)
	s.Require().NoError(err)
	s.Equal(1, stats.UnsyncedLocations)
}

func (s *StoreTestSuite) TestCleanOldData_RemovesOnlyProcessedAndSynced() {
	done, err := s.store.Enqueue(s.ctx, testDevice, domain.ActionCreateOrder, nil, nil)
	s.Require().NoError(err)
	pending, err := s.store.Enqueue(s.ctx, testDevice, domain.ActionCreateOrder, nil, nil)
	s.Require().NoError(err)
	s.Require().NoError(s.store.MarkProcessed(s.ctx, done.ID, ""))

	journeyID := uuid.New()
	synced := &domain.LocationSample{JourneyID: journeyID, CreatedAt: time.Now()}
	s.Require().NoError(s.store.StoreLocation(s.ctx, synced))
	s.Require().NoError(s.store.StoreLocation(s.ctx, &domain.LocationSample{JourneyID: journeyID, CreatedAt: time.Now()}))
	s.Require().NoError(s.store.MarkLocationsSynced(s.ctx, []uint64{synced.ID}))

	// граница в прошлом ничего не удаляет
	removed, err := s.store.CleanOldData(s.ctx, time.Now().Add(-7*24*time.Hour))
	s.Require().NoError(err)
	s.Equal(0, removed)

	removed, err = s.store.CleanOldData(s.ctx, time.Now().Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(2, removed)

	_, err = s.store.GetItem(s.ctx, done.ID)
	s.True(errors.Is(err, apperrors.ErrQueueItemNotFound))
	_, err = s.store.GetItem(s.ctx, pending.ID)
	s.NoError(err)

	unsynced, err := s.store.GetUnsyncedLocations(s.ctx, journeyID)
	s.Require().NoError(err)
	s.Len(unsynced, 1)

	// номер не переиспользуется после удаления
	next, err := s.store.Enqueue(s.ctx, testDevice, domain.ActionCreateOrder, nil, nil)
	s.Require().NoError(err)
	s.Equal(uint64(3), next.SequenceNumber)
}

// ============================================================================
// Durability
// ============================================================================

func (s *StoreTestSuite) TestReopen_KeepsQueueAndDeviceID() {
	deviceID, err := s.store.DeviceID(s.ctx)
	s.Require().NoError(err)
	s.NotEmpty(deviceID)

	item, err := s.store.Enqueue(s.ctx, deviceID, domain.ActionCreateOrder, nil, nil)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Close())

	storeCfg, queueCfg := s.storeConfig()
	reopened, err := bolt.New(storeCfg, queueCfg, zap.NewNop())
	s.Require().NoError(err)
	s.store = reopened
	s.False(reopened.Recovered())

	again, err := reopened.DeviceID(s.ctx)
	s.Require().NoError(err)
	s.Equal(deviceID, again)

	pending, err := reopened.GetPending(s.ctx, deviceID)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(item.ID, pending[0].ID)

	next, err := reopened.Enqueue(s.ctx, deviceID, domain.ActionCreateOrder, nil, nil)
	s.Require().NoError(err)
	s.Equal(uint64(2), next.SequenceNumber)
}

func (s *StoreTestSuite) TestCorruptedFile_Reinitialized() {
	s.Require().NoError(s.store.Close())

	storeCfg, queueCfg := s.storeConfig()
	s.Require().NoError(os.WriteFile(storeCfg.Path, []byte("definitely not a bolt database file"), 0o600))

	store, err := bolt.New(storeCfg, queueCfg, zap.NewNop())
	s.Require().NoError(err)
	s.store = store
	s.True(store.Recovered())

	pending, err := store.GetPending(s.ctx, testDevice)
	s.Require().NoError(err)
	s.Empty(pending)

	matches, err := filepath.Glob(storeCfg.Path + ".corrupt-*")
	s.Require().NoError(err)
	s.Len(matches, 1)
}

func (s *StoreTestSuite) TestCorruptedFile_NoResetReturnsError() {
	s.Require().NoError(s.store.Close())

	storeCfg, queueCfg := s.storeConfig()
	storeCfg.ResetOnCorruption = false
	s.Require().NoError(os.WriteFile(storeCfg.Path, []byte("garbage"), 0o600))

	store, err := bolt.New(storeCfg, queueCfg, zap.NewNop())
	s.store = nil
	s.Nil(store)
	s.True(errors.Is(err, apperrors.ErrStorageCorrupted))
}

// ============================================================================
// Trust and journey cache
// ============================================================================

func (s *StoreTestSuite) TestTrust_SaveAndLoadPerJourney() {
	journeyID := uuid.New()
	other := uuid.New()

	s.Require().NoError(s.store.SaveTrust(s.ctx, &domain.TrustRecord{JourneyID: journeyID, SourceID: "bus", Score: 0.5}))
	s.Require().NoError(s.store.SaveTrust(s.ctx, &domain.TrustRecord{JourneyID: journeyID, SourceID: "bus", Score: 0.7, SpoofingFlags: 1}))
	s.Require().NoError(s.store.SaveTrust(s.ctx, &domain.TrustRecord{JourneyID: other, SourceID: "bus", Score: 0.2}))

	records, err := s.store.LoadTrust(s.ctx, journeyID)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(0.7, records[0].Score)
	s.Equal(1, records[0].SpoofingFlags)
}

func (s *StoreTestSuite) TestJourneyCache() {
	missing, err := s.store.LoadJourney(s.ctx, "p-1")
	s.Require().NoError(err)
	s.Nil(missing)

	j := &domain.Journey{ID: uuid.New(), PassengerID: "p-1", Status: domain.JourneyStatusActive, StartTime: time.Now().UTC()}
	s.Require().NoError(s.store.SaveJourney(s.ctx, j))

	loaded, err := s.store.LoadJourney(s.ctx, "p-1")
	s.Require().NoError(err)
	s.Require().NotNil(loaded)
	s.Equal(j.ID, loaded.ID)
	s.Equal(domain.JourneyStatusActive, loaded.Status)
}
