package usecase

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/journey-tracker/internal/config"
	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/domain/repository"
	"github.com/journey-tracker/internal/metrics"
	"github.com/journey-tracker/internal/pkg/errors"
	"github.com/journey-tracker/internal/pkg/pubsub"
	"github.com/journey-tracker/internal/pkg/validator"
	"github.com/journey-tracker/internal/usecase/dto"
	"go.uber.org/zap"
)

// JourneyUseCase - конечный автомат поездки пассажира на устройстве.
// Мутации уходят на бэкенд сразу, а при его недоступности ставятся в очередь.
type JourneyUseCase struct {
	mu       sync.Mutex
	current  *domain.Journey
	online   atomic.Bool
	deviceID string

	passengerID string
	backend     repository.BackendRepository
	store       repository.LocalStore
	fusion      *FusionUseCase
	broker      *pubsub.Broker[*domain.Journey]
	metrics     *metrics.Collector
	logger      *zap.Logger
	now         func() time.Time
}

func NewJourneyUseCase(
	cfg *config.AgentConfig,
	deviceID string,
	backend repository.BackendRepository,
	store repository.LocalStore,
	fusion *FusionUseCase,
	m *metrics.Collector,
	logger *zap.Logger,
) *JourneyUseCase {
	uc := &JourneyUseCase{
		deviceID:    deviceID,
		passengerID: cfg.PassengerID,
		backend:     backend,
		store:       store,
		fusion:      fusion,
		broker:      pubsub.NewBroker[*domain.Journey](),
		metrics:     m,
		logger:      logger,
		now:         time.Now,
	}
	uc.online.Store(true)
	return uc
}

// SetOnline отмечает доступность бэкенда; офлайн мутации сразу идут в очередь
func (uc *JourneyUseCase) SetOnline(online bool) {
	uc.online.Store(online)
}

func (uc *JourneyUseCase) IsOnline() bool {
	return uc.online.Load()
}

// AutoRestore восстанавливает активную поездку пассажира при старте процесса.
// Если бэкенд недоступен, используется поездка, закешированная на устройстве.
func (uc *JourneyUseCase) AutoRestore(ctx context.Context) (*domain.Journey, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	cached, err := uc.store.LoadJourney(ctx, uc.passengerID)
	if err != nil {
		uc.logger.Warn("Failed to read cached journey", zap.Error(err))
		cached = nil
	}

	remote, err := uc.backend.GetActiveJourney(ctx, uc.passengerID)
	var restored *domain.Journey
	switch {
	case err != nil:
		uc.logger.Warn("Backend unavailable during auto-restore, using cached journey", zap.Error(err))
		uc.online.Store(false)
		if cached.IsActive() {
			restored = cached
		}
	case remote != nil:
		uc.online.Store(true)
		restored = remote
		if cached != nil && cached.ID == remote.ID && cached.CurrentPosition != nil && remote.CurrentPosition == nil {
			restored.CurrentPosition = cached.CurrentPosition
		}
	case cached.IsActive():
		// поездка начата офлайн и ещё не подтверждена бэкендом
		pending, err := uc.hasPendingLocked(ctx, cached.ID, domain.ActionConfirmJourney)
		if err != nil {
			return nil, err
		}
		if pending {
			restored = cached
		}
	}

	if restored == nil {
		uc.current = nil
		if err := uc.fusion.Reset(ctx, uuid.Nil); err != nil {
			return nil, err
		}
		uc.logger.Info("No active journey to restore", zap.String("passenger_id", uc.passengerID))
		return nil, nil
	}

	uc.current = restored
	if err := uc.store.SaveJourney(ctx, restored); err != nil {
		uc.logger.Warn("Failed to cache restored journey", zap.Error(err))
	}
	if err := uc.fusion.Reset(ctx, restored.ID); err != nil {
		uc.logger.Warn("Failed to load trust for restored journey", zap.Error(err))
	}

	uc.logger.Info("Journey restored",
		zap.String("journey_id", restored.ID.String()),
		zap.String("status", string(restored.Status)))

	uc.publishLocked()
	return restored.Clone(), nil
}

// StartJourney начинает поездку. Вторая активная поездка пассажира отклоняется.
func (uc *JourneyUseCase) StartJourney(ctx context.Context, req dto.StartJourneyRequest) (*domain.Journey, error) {
	if err := validator.Validate(req); err != nil {
		return nil, errors.ErrInvalidRequest.WithMessage(err.Error())
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.current.IsActive() {
		return nil, errors.ErrJourneyConflict.WithDetails(map[string]interface{}{
			"active_journey_id": uc.current.ID.String(),
		})
	}

	now := uc.now().UTC()
	journey := &domain.Journey{
		ID:          uuid.New(),
		PassengerID: uc.passengerID,
		VehicleID:   req.VehicleID,
		FromStop:    req.FromStop,
		ToStop:      req.ToStop,
		Status:      domain.JourneyStatusActive,
		StartTime:   now,
		DeviceID:    uc.deviceID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	queued := false
	if uc.online.Load() {
		confirmed, err := uc.backend.UpsertJourney(ctx, journey)
		switch {
		case err == nil:
			journey = confirmed
		case stderrors.Is(err, errors.ErrJourneyConflict):
			return nil, err
		case isBackendUnavailable(err):
			uc.logger.Warn("Backend unavailable, journey start queued", zap.Error(err))
			queued = true
		default:
			return nil, err
		}
	} else {
		queued = true
	}

	if queued {
		if _, err := uc.enqueue(ctx, domain.ActionConfirmJourney, journey, &journey.ID); err != nil {
			return nil, err
		}
	}

	uc.current = journey
	if err := uc.store.SaveJourney(ctx, journey); err != nil {
		uc.logger.Warn("Failed to cache journey", zap.Error(err))
	}
	if err := uc.fusion.Reset(ctx, journey.ID); err != nil {
		uc.logger.Warn("Failed to load trust for journey", zap.Error(err))
	}

	uc.logger.Info("Journey started",
		zap.String("journey_id", journey.ID.String()),
		zap.Bool("queued", queued))

	uc.publishLocked()
	return journey.Clone(), nil
}

// EndJourney переводит активную поездку в COMPLETED
func (uc *JourneyUseCase) EndJourney(ctx context.Context) (*domain.Journey, error) {
	return uc.finish(ctx, domain.JourneyStatusCompleted)
}

// CancelJourney переводит активную поездку в CANCELLED
func (uc *JourneyUseCase) CancelJourney(ctx context.Context) (*domain.Journey, error) {
	return uc.finish(ctx, domain.JourneyStatusCancelled)
}

func (uc *JourneyUseCase) finish(ctx context.Context, status domain.JourneyStatus) (*domain.Journey, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if !uc.current.IsActive() {
		return nil, errors.ErrNoActiveJourney
	}

	now := uc.now().UTC()
	journey := uc.current.Clone()
	if err := journey.Transition(status, now); err != nil {
		return nil, err
	}

	// точки, оставшиеся без маркера, уходят на бэкенд до смены статуса
	unsynced, err := uc.store.GetUnsyncedLocations(ctx, journey.ID)
	if err != nil {
		return nil, err
	}
	if len(unsynced) > 0 {
		if _, err := uc.enqueueOnce(ctx, domain.ActionUpdateLocation, &journey.ID); err != nil {
			return nil, err
		}
	}

	// итоговое доверие источников уходит на бэкенд со следующей синхронизацией
	if len(uc.fusion.Trust()) > 0 {
		if _, err := uc.enqueueOnce(ctx, domain.ActionUpsertTrust, &journey.ID); err != nil {
			uc.logger.Warn("Failed to queue trust upload", zap.Error(err))
		}
	}

	change := domain.StatusChange{JourneyID: journey.ID, Status: status, At: now}
	action := domain.ActionEndJourney
	if status == domain.JourneyStatusCancelled {
		action = domain.ActionCancelJourney
	}

	// пока по поездке есть очередь, новая мутация встаёт за ней, чтобы сохранить порядок
	pending, err := uc.hasPendingLocked(ctx, journey.ID, domain.ActionConfirmJourney)
	if err != nil {
		return nil, err
	}

	queued := pending || !uc.online.Load()
	if !queued {
		if _, err := uc.backend.UpdateJourneyStatus(ctx, change); err != nil {
			switch {
			case isBackendUnavailable(err):
				uc.logger.Warn("Backend unavailable, journey end queued", zap.Error(err))
				queued = true
			case stderrors.Is(err, errors.ErrInvalidTransition):
				// поездка уже завершена с другого устройства, принимаем статус бэкенда
				remote, getErr := uc.backend.GetJourney(ctx, journey.ID)
				if getErr != nil || !remote.Status.IsTerminal() {
					return nil, err
				}
				journey = remote
			default:
				return nil, err
			}
		}
	}
	if queued {
		if _, err := uc.enqueue(ctx, action, change, &journey.ID); err != nil {
			return nil, err
		}
	}

	// после терминального статуса точки по поездке больше не принимаются
	uc.current = nil
	if err := uc.store.SaveJourney(ctx, journey); err != nil {
		uc.logger.Warn("Failed to cache finished journey", zap.Error(err))
	}
	if err := uc.fusion.Reset(ctx, uuid.Nil); err != nil {
		uc.logger.Warn("Failed to reset fusion", zap.Error(err))
	}

	uc.logger.Info("Journey finished",
		zap.String("journey_id", journey.ID.String()),
		zap.String("status", string(journey.Status)),
		zap.Bool("queued", queued))

	uc.broker.Publish(journey.Clone())
	return journey, nil
}

// UpdateLocation сохраняет точку трека активной поездки.
// Точки копятся локально и выгружаются пачкой по маркеру UPDATE_LOCATION.
func (uc *JourneyUseCase) UpdateLocation(ctx context.Context, report domain.PositionReport) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if !uc.current.IsActive() {
		return errors.ErrNoActiveJourney
	}

	journeyID := uc.current.ID
	sample := domain.SampleFromReport(journeyID, report)
	if err := uc.store.StoreLocation(ctx, &sample); err != nil {
		uc.metrics.StoreWriteFailed("store_location")
		return err
	}
	if _, err := uc.enqueueOnce(ctx, domain.ActionUpdateLocation, &journeyID); err != nil {
		return err
	}

	point := report.Point()
	uc.current.CurrentPosition = &point
	uc.current.UpdatedAt = uc.now().UTC()
	return nil
}

// QueueTrustUpload ставит маркер выгрузки доверия источников текущей поездки
func (uc *JourneyUseCase) QueueTrustUpload(ctx context.Context) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if !uc.current.IsActive() {
		return nil
	}
	journeyID := uc.current.ID
	_, err := uc.enqueueOnce(ctx, domain.ActionUpsertTrust, &journeyID)
	return err
}

// SetFusedPosition обновляет текущую позицию поездки итоговой позицией
func (uc *JourneyUseCase) SetFusedPosition(fused *domain.FusedPosition) {
	if fused == nil {
		return
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	if !uc.current.IsActive() || uc.current.ID != fused.JourneyID {
		return
	}
	p := fused.Position
	uc.current.CurrentPosition = &p
}

// PlaceOrder оформляет заказ; без сети заказ уходит в очередь с тем же offline_id
func (uc *JourneyUseCase) PlaceOrder(ctx context.Context, req dto.PlaceOrderRequest) (*domain.Order, bool, error) {
	if err := validator.Validate(req); err != nil {
		return nil, false, errors.ErrInvalidRequest.WithMessage(err.Error())
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	order := &domain.Order{
		OfflineID:   uuid.New(),
		PassengerID: uc.passengerID,
		OrderType:   req.OrderType,
		Details:     req.Details,
		TotalAmount: req.TotalAmount,
		Currency:    req.Currency,
		CreatedAt:   uc.now().UTC(),
	}
	if uc.current.IsActive() {
		id := uc.current.ID
		order.JourneyID = &id
	}

	if uc.online.Load() {
		err := uc.backend.UpsertOrder(ctx, order)
		if err == nil {
			return order, false, nil
		}
		if !isBackendUnavailable(err) {
			return nil, false, err
		}
		uc.logger.Warn("Backend unavailable, order queued", zap.Error(err))
	}

	if _, err := uc.enqueue(ctx, domain.ActionCreateOrder, order, order.JourneyID); err != nil {
		return nil, false, err
	}
	return order, true, nil
}

// ApplySyncStats записывает в поездку состояние очереди после прохода синхронизации
func (uc *JourneyUseCase) ApplySyncStats(ctx context.Context, stats domain.QueueStats, at time.Time) *domain.Journey {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	uc.metrics.QueueState(stats.Pending, stats.DeadLetters)

	if uc.current == nil {
		return nil
	}

	t := at.UTC()
	uc.current.OfflineQueueCount = stats.Pending
	uc.current.LastSyncTime = &t
	if err := uc.store.SaveJourney(ctx, uc.current); err != nil {
		uc.logger.Warn("Failed to cache journey sync state", zap.Error(err))
	}

	uc.publishLocked()
	return uc.current.Clone()
}

// Current возвращает копию активной поездки или nil
func (uc *JourneyUseCase) Current() *domain.Journey {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.current.Clone()
}

// Subscribe подписывает на снимки поездки при каждом изменении
func (uc *JourneyUseCase) Subscribe(buffer int) (<-chan *domain.Journey, func()) {
	return uc.broker.Subscribe(buffer)
}

func (uc *JourneyUseCase) Close() {
	uc.broker.Close()
}

func (uc *JourneyUseCase) publishLocked() {
	if uc.current != nil {
		uc.broker.Publish(uc.current.Clone())
	}
}

func (uc *JourneyUseCase) hasPendingLocked(ctx context.Context, journeyID uuid.UUID, action domain.QueueAction) (bool, error) {
	pending, err := uc.store.GetPending(ctx, uc.deviceID)
	if err != nil {
		return false, err
	}
	for _, item := range pending {
		if item.Action == action && item.JourneyID != nil && *item.JourneyID == journeyID {
			return true, nil
		}
	}
	return false, nil
}

func (uc *JourneyUseCase) enqueue(ctx context.Context, action domain.QueueAction, payload interface{}, journeyID *uuid.UUID) (*domain.QueueItem, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", action, err)
	}

	item, err := uc.store.Enqueue(ctx, uc.deviceID, action, data, journeyID)
	if err != nil {
		uc.metrics.StoreWriteFailed("enqueue")
		uc.logger.Error("Failed to enqueue mutation",
			zap.String("action", string(action)),
			zap.Error(err))
		return nil, err
	}

	uc.metrics.Enqueued(string(action))
	return item, nil
}

func (uc *JourneyUseCase) enqueueOnce(ctx context.Context, action domain.QueueAction, journeyID *uuid.UUID) (*domain.QueueItem, error) {
	item, created, err := uc.store.EnqueueOnce(ctx, uc.deviceID, action, nil, journeyID)
	if err != nil {
		uc.metrics.StoreWriteFailed("enqueue")
		return nil, err
	}
	if created {
		uc.metrics.Enqueued(string(action))
	}
	return item, nil
}

func isBackendUnavailable(err error) bool {
	return stderrors.Is(err, errors.ErrBackendUnavailable) ||
		stderrors.Is(err, context.DeadlineExceeded)
}
