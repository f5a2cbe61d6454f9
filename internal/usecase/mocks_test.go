package usecase_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/journey-tracker/internal/config"
	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/pkg/errors"
	"github.com/journey-tracker/internal/repository/bolt"
)

func testFusionConfig() *config.FusionConfig {
	return &config.FusionConfig{
		Window:               30 * time.Second,
		SpeedCeilingMps:      500,
		SpeedCeilingByType:   map[string]float64{},
		TrustInitial:         0.5,
		TrustMin:             0.1,
		TrustMax:             1.0,
		TrustSpoofPenalty:    0.2,
		TrustGain:            0.05,
		TrustDecay:           0.01,
		HighAccuracyMeters:   10,
		MediumAccuracyMeters: 50,
		ConfidenceSpanMeters: 1000,
	}
}

func testQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		Retention:   7 * 24 * time.Hour,
		MaxAttempts: 3,
		BackoffBase: time.Nanosecond,
		BackoffMax:  time.Nanosecond,
	}
}

func newTestStore(t *testing.T) *bolt.Store {
	t.Helper()

	store, err := bolt.New(&config.StoreConfig{
		Path:              filepath.Join(t.TempDir(), "agent.db"),
		OpenTimeout:       time.Second,
		ResetOnCorruption: true,
	}, testQueueConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func floatPtr(v float64) *float64 { return &v }

// ============================================================================
// MockBackend
// ============================================================================

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) UpsertJourney(ctx context.Context, journey *domain.Journey) (*domain.Journey, error) {
	args := m.Called(ctx, journey)
	if fn, ok := args.Get(0).(func(*domain.Journey) *domain.Journey); ok {
		return fn(journey), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Journey), args.Error(1)
}

func (m *MockBackend) GetActiveJourney(ctx context.Context, passengerID string) (*domain.Journey, error) {
	args := m.Called(ctx, passengerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Journey), args.Error(1)
}

func (m *MockBackend) GetJourney(ctx context.Context, id uuid.UUID) (*domain.Journey, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Journey), args.Error(1)
}

func (m *MockBackend) UpdateJourneyStatus(ctx context.Context, change domain.StatusChange) (*domain.Journey, error) {
	args := m.Called(ctx, change)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Journey), args.Error(1)
}

func (m *MockBackend) UpdateSyncState(ctx context.Context, journeyID uuid.UUID, state domain.SyncState) error {
	args := m.Called(ctx, journeyID, state)
	return args.Error(0)
}

func (m *MockBackend) UpsertPositionSamples(ctx context.Context, journeyID uuid.UUID, samples []*domain.LocationSample) (int, error) {
	args := m.Called(ctx, journeyID, samples)
	return args.Int(0), args.Error(1)
}

func (m *MockBackend) UpsertTrustScores(ctx context.Context, journeyID uuid.UUID, records []*domain.TrustRecord) error {
	args := m.Called(ctx, journeyID, records)
	return args.Error(0)
}

func (m *MockBackend) GetTrustScores(ctx context.Context, journeyID uuid.UUID) ([]*domain.TrustRecord, error) {
	args := m.Called(ctx, journeyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TrustRecord), args.Error(1)
}

func (m *MockBackend) UpsertOrder(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockBackend) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// ============================================================================
// fakeBackend - бэкенд в памяти с идемпотентными upsert по естественным ключам
// ============================================================================

type fakeBackend struct {
	mu         sync.Mutex
	journeys   map[uuid.UUID]domain.Journey
	samples    map[string]domain.LocationSample
	trust      map[string]domain.TrustRecord
	orders     map[uuid.UUID]domain.Order
	syncStates map[uuid.UUID]domain.SyncState
	failures   map[string]error
	calls      map[string]int
	block      chan struct{}
	blocked    chan struct{}
	// duringUpload выполняется один раз внутри выгрузки точек
	duringUpload func()
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		journeys:   make(map[uuid.UUID]domain.Journey),
		samples:    make(map[string]domain.LocationSample),
		trust:      make(map[string]domain.TrustRecord),
		orders:     make(map[uuid.UUID]domain.Order),
		syncStates: make(map[uuid.UUID]domain.SyncState),
		failures:   make(map[string]error),
		calls:      make(map[string]int),
	}
}

// backendState - всё, что бэкенд хранит, без служебных полей
type backendState struct {
	Journeys map[uuid.UUID]domain.JourneyStatus
	Samples  map[string]domain.LocationSample
	Trust    map[string]domain.TrustRecord
	Orders   map[uuid.UUID]domain.Order
}

func (f *fakeBackend) state() backendState {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := backendState{
		Journeys: make(map[uuid.UUID]domain.JourneyStatus),
		Samples:  make(map[string]domain.LocationSample),
		Trust:    make(map[string]domain.TrustRecord),
		Orders:   make(map[uuid.UUID]domain.Order),
	}
	for k, v := range f.journeys {
		s.Journeys[k] = v.Status
	}
	for k, v := range f.samples {
		s.Samples[k] = v
	}
	for k, v := range f.trust {
		s.Trust[k] = v
	}
	for k, v := range f.orders {
		s.Orders[k] = v
	}
	return s
}

func (f *fakeBackend) fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, method)
		return
	}
	f.failures[method] = err
}

func (f *fakeBackend) onUpload(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.duringUpload = fn
}

func (f *fakeBackend) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeBackend) enter(method string) error {
	f.mu.Lock()
	f.calls[method]++
	err := f.failures[method]
	block := f.block
	f.mu.Unlock()

	if block != nil && method == "UpsertOrder" {
		f.blocked <- struct{}{}
		<-block
	}
	return err
}

func (f *fakeBackend) UpsertJourney(_ context.Context, journey *domain.Journey) (*domain.Journey, error) {
	if err := f.enter("UpsertJourney"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.journeys[journey.ID]; ok {
		cp := existing
		return &cp, nil
	}
	for _, j := range f.journeys {
		if j.PassengerID == journey.PassengerID && j.Status == domain.JourneyStatusActive {
			return nil, errors.ErrJourneyConflict
		}
	}
	stored := *journey
	stored.Status = domain.JourneyStatusActive
	f.journeys[journey.ID] = stored
	return &stored, nil
}

func (f *fakeBackend) GetActiveJourney(_ context.Context, passengerID string) (*domain.Journey, error) {
	if err := f.enter("GetActiveJourney"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, j := range f.journeys {
		if j.PassengerID == passengerID && j.Status == domain.JourneyStatusActive {
			cp := j
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeBackend) GetJourney(_ context.Context, id uuid.UUID) (*domain.Journey, error) {
	if err := f.enter("GetJourney"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	j, ok := f.journeys[id]
	if !ok {
		return nil, errors.ErrJourneyNotFound
	}
	return &j, nil
}

func (f *fakeBackend) UpdateJourneyStatus(_ context.Context, change domain.StatusChange) (*domain.Journey, error) {
	if err := f.enter("UpdateJourneyStatus"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	j, ok := f.journeys[change.JourneyID]
	if !ok {
		return nil, errors.ErrJourneyNotFound
	}
	if j.Status == change.Status {
		return &j, nil
	}
	if err := j.Transition(change.Status, change.At); err != nil {
		return nil, err
	}
	f.journeys[j.ID] = j
	return &j, nil
}

func (f *fakeBackend) UpdateSyncState(_ context.Context, journeyID uuid.UUID, state domain.SyncState) error {
	if err := f.enter("UpdateSyncState"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncStates[journeyID] = state
	return nil
}

func sampleKey(journeyID uuid.UUID, s *domain.LocationSample) string {
	return journeyID.String() + "|" + s.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + s.SourceID
}

func (f *fakeBackend) UpsertPositionSamples(_ context.Context, journeyID uuid.UUID, samples []*domain.LocationSample) (int, error) {
	if err := f.enter("UpsertPositionSamples"); err != nil {
		return 0, err
	}

	f.mu.Lock()
	hook := f.duringUpload
	f.duringUpload = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.journeys[journeyID]; !ok {
		return 0, errors.ErrJourneyNotFound
	}
	for _, s := range samples {
		stored := *s
		stored.ID = 0
		stored.Synced = false
		stored.SyncedAt = nil
		f.samples[sampleKey(journeyID, s)] = stored
	}
	return len(samples), nil
}

func (f *fakeBackend) UpsertTrustScores(_ context.Context, journeyID uuid.UUID, records []*domain.TrustRecord) error {
	if err := f.enter("UpsertTrustScores"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range records {
		f.trust[journeyID.String()+"|"+r.SourceID] = *r
	}
	return nil
}

func (f *fakeBackend) GetTrustScores(_ context.Context, journeyID uuid.UUID) ([]*domain.TrustRecord, error) {
	if err := f.enter("GetTrustScores"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	result := make([]*domain.TrustRecord, 0)
	for _, r := range f.trust {
		if r.JourneyID == journeyID {
			cp := r
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (f *fakeBackend) UpsertOrder(_ context.Context, order *domain.Order) error {
	if err := f.enter("UpsertOrder"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.orders[order.OfflineID]; !ok {
		f.orders[order.OfflineID] = *order
	}
	return nil
}

func (f *fakeBackend) Health(_ context.Context) error {
	return f.enter("Health")
}
