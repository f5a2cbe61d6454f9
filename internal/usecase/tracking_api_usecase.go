package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/journey-tracker/internal/config"
	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/domain/repository"
	"github.com/journey-tracker/internal/pkg/errors"
	"github.com/journey-tracker/internal/pkg/validator"
	"github.com/journey-tracker/internal/usecase/dto"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 500
	maxListLimit     = 5000
)

// TrackingAPIUseCase - бэкенд поездок: хранит поездки, треки, доверие и заказы,
// публикует изменения в realtime канал
type TrackingAPIUseCase struct {
	journeys  repository.JourneyRepository
	positions repository.PositionRepository
	trust     repository.TrustRepository
	orders    repository.OrderRepository
	cache     repository.CacheRepository
	publisher repository.EventPublisher
	cacheTTL  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewTrackingAPIUseCase(
	journeys repository.JourneyRepository,
	positions repository.PositionRepository,
	trust repository.TrustRepository,
	orders repository.OrderRepository,
	cache repository.CacheRepository,
	publisher repository.EventPublisher,
	cfg *config.CacheConfig,
	logger *zap.Logger,
) *TrackingAPIUseCase {
	return &TrackingAPIUseCase{
		journeys:  journeys,
		positions: positions,
		trust:     trust,
		orders:    orders,
		cache:     cache,
		publisher: publisher,
		cacheTTL:  cfg.ActiveJourneyTTL,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateJourney создаёт поездку. Повтор с тем же id возвращает сохранённую запись.
func (uc *TrackingAPIUseCase) CreateJourney(ctx context.Context, req dto.CreateJourneyRequest) (*dto.JourneyResponse, error) {
	if err := validator.Validate(req); err != nil {
		return nil, errors.ErrInvalidRequest.WithMessage(err.Error())
	}

	now := uc.now().UTC()
	start := now
	if req.StartTime != nil && !req.StartTime.IsZero() {
		start = req.StartTime.UTC()
	}

	journey := &domain.Journey{
		ID:          req.ID,
		PassengerID: req.PassengerID,
		VehicleID:   req.VehicleID,
		FromStop:    req.FromStop,
		ToStop:      req.ToStop,
		Status:      domain.JourneyStatusActive,
		StartTime:   start,
		DeviceID:    req.DeviceID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := uc.journeys.Create(ctx, journey)
	if err != nil {
		return nil, err
	}

	stored, err := uc.journeys.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if stored.PassengerID != req.PassengerID {
		return nil, errors.ErrJourneyConflict.WithMessage("Journey id belongs to another passenger")
	}

	if created {
		uc.logger.Info("Journey created",
			zap.String("journey_id", stored.ID.String()),
			zap.String("passenger_id", stored.PassengerID))
		uc.invalidate(ctx, stored.PassengerID)
		uc.publish(ctx, domain.NewStatusEvent(stored, now))
	}

	return &dto.JourneyResponse{Journey: stored, Created: created}, nil
}

func (uc *TrackingAPIUseCase) GetJourney(ctx context.Context, id uuid.UUID) (*domain.Journey, error) {
	return uc.journeys.GetByID(ctx, id)
}

// GetActiveJourney возвращает nil, nil если у пассажира нет активной поездки
func (uc *TrackingAPIUseCase) GetActiveJourney(ctx context.Context, passengerID string) (*domain.Journey, error) {
	if passengerID == "" {
		return nil, errors.ErrInvalidRequest.WithMessage("passenger_id is required")
	}

	if uc.cache != nil {
		cached, err := uc.cache.GetActiveJourney(ctx, passengerID)
		if err != nil {
			uc.logger.Warn("Active journey cache read failed", zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	journey, err := uc.journeys.GetActiveByPassenger(ctx, passengerID)
	if err != nil {
		return nil, err
	}

	if journey != nil && uc.cache != nil {
		if err := uc.cache.SetActiveJourney(ctx, journey, uc.cacheTTL); err != nil {
			uc.logger.Warn("Active journey cache write failed", zap.Error(err))
		}
	}

	return journey, nil
}

// UpdateStatus переводит поездку в терминальный статус.
// Повтор того же перехода возвращает текущее состояние без ошибки.
func (uc *TrackingAPIUseCase) UpdateStatus(ctx context.Context, id uuid.UUID, req dto.UpdateJourneyStatusRequest) (*domain.Journey, error) {
	if err := validator.Validate(req); err != nil {
		return nil, errors.ErrInvalidRequest.WithMessage(err.Error())
	}

	current, err := uc.journeys.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == req.Status && req.Status.IsTerminal() {
		return current, nil
	}
	if !domain.CanTransition(current.Status, req.Status) {
		return nil, errors.ErrInvalidTransition.WithDetails(map[string]interface{}{
			"journey_id": id.String(),
			"from":       string(current.Status),
			"to":         string(req.Status),
		})
	}

	at := uc.now().UTC()
	if req.At != nil && !req.At.IsZero() {
		at = req.At.UTC()
	}

	updated, err := uc.journeys.UpdateStatus(ctx, id, req.Status, at)
	if err != nil {
		return nil, err
	}

	journey, err := uc.journeys.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !updated {
		// гонка с другим запросом: успех только если итог совпал
		if journey.Status != req.Status {
			return nil, errors.ErrInvalidTransition
		}
		return journey, nil
	}

	uc.logger.Info("Journey status changed",
		zap.String("journey_id", id.String()),
		zap.String("status", string(journey.Status)))

	uc.invalidate(ctx, journey.PassengerID)
	uc.publish(ctx, domain.NewStatusEvent(journey, at))

	return journey, nil
}

func (uc *TrackingAPIUseCase) UpdateSyncState(ctx context.Context, id uuid.UUID, req dto.UpdateSyncStateRequest) error {
	if err := validator.Validate(req); err != nil {
		return errors.ErrInvalidRequest.WithMessage(err.Error())
	}

	journey, err := uc.journeys.GetByID(ctx, id)
	if err != nil {
		return err
	}

	err = uc.journeys.UpdateSyncState(ctx, id, domain.SyncState{
		OfflineQueueCount: req.OfflineQueueCount,
		LastSyncTime:      req.LastSyncTime.UTC(),
	})
	if err != nil {
		return err
	}

	uc.invalidate(ctx, journey.PassengerID)
	return nil
}

// UpsertPositions сохраняет пачку точек; повтор той же пачки ничего не дублирует
func (uc *TrackingAPIUseCase) UpsertPositions(ctx context.Context, journeyID uuid.UUID, req dto.UpsertPositionsRequest) (int, error) {
	if err := validator.Validate(req); err != nil {
		return 0, errors.ErrInvalidRequest.WithMessage(err.Error())
	}

	journey, err := uc.journeys.GetByID(ctx, journeyID)
	if err != nil {
		return 0, err
	}

	samples := make([]*domain.LocationSample, 0, len(req.Samples))
	latest := req.Samples[0]
	for _, s := range req.Samples {
		samples = append(samples, s.ToDomain(journeyID))
		if s.Timestamp.After(latest.Timestamp) {
			latest = s
		}
	}

	affected, err := uc.positions.UpsertBatch(ctx, journeyID, samples)
	if err != nil {
		return 0, err
	}

	if journey.IsActive() {
		point := domain.Point{Lat: latest.Latitude, Lon: latest.Longitude}
		if err := uc.journeys.UpdatePosition(ctx, journeyID, point); err != nil {
			uc.logger.Warn("Failed to update journey position", zap.Error(err))
		} else {
			uc.invalidate(ctx, journey.PassengerID)
			uc.publish(ctx, &domain.JourneyEvent{
				Type:        domain.EventJourneyPosition,
				JourneyID:   journeyID,
				PassengerID: journey.PassengerID,
				Status:      journey.Status,
				Position:    &point,
				OccurredAt:  latest.Timestamp,
			})
		}
	}

	uc.logger.Debug("Positions upserted",
		zap.String("journey_id", journeyID.String()),
		zap.Int("received", len(samples)),
		zap.Int64("affected", affected))

	return len(samples), nil
}

func (uc *TrackingAPIUseCase) ListPositions(ctx context.Context, journeyID uuid.UUID, limit int) ([]*domain.LocationSample, error) {
	if _, err := uc.journeys.GetByID(ctx, journeyID); err != nil {
		return nil, err
	}
	return uc.positions.ListByJourney(ctx, journeyID, normalizeLimit(limit))
}

// UpsertTrust сохраняет доверие по ключу (journey_id, source_id)
func (uc *TrackingAPIUseCase) UpsertTrust(ctx context.Context, journeyID uuid.UUID, req dto.UpsertTrustRequest) error {
	if err := validator.Validate(req); err != nil {
		return errors.ErrInvalidRequest.WithMessage(err.Error())
	}
	if _, err := uc.journeys.GetByID(ctx, journeyID); err != nil {
		return err
	}

	records := make([]*domain.TrustRecord, 0, len(req.Scores))
	for _, s := range req.Scores {
		records = append(records, s.ToDomain(journeyID))
	}
	return uc.trust.UpsertBatch(ctx, records)
}

func (uc *TrackingAPIUseCase) ListTrust(ctx context.Context, journeyID uuid.UUID) ([]*domain.TrustRecord, error) {
	return uc.trust.ListByJourney(ctx, journeyID)
}

// CreateOrder сохраняет заказ по offline_id
func (uc *TrackingAPIUseCase) CreateOrder(ctx context.Context, req dto.CreateOrderRequest) (*dto.OrderResponse, error) {
	if err := validator.Validate(req); err != nil {
		return nil, errors.ErrInvalidRequest.WithMessage(err.Error())
	}

	order := req.ToDomain()
	order.CreatedAt = uc.now().UTC()

	created, err := uc.orders.Upsert(ctx, order)
	if err != nil {
		return nil, err
	}
	return &dto.OrderResponse{Order: order, Created: created}, nil
}

func (uc *TrackingAPIUseCase) ListOrders(ctx context.Context, passengerID string, limit int) ([]*domain.Order, error) {
	return uc.orders.ListByPassenger(ctx, passengerID, normalizeLimit(limit))
}

func (uc *TrackingAPIUseCase) invalidate(ctx context.Context, passengerID string) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.InvalidateActiveJourney(ctx, passengerID); err != nil {
		uc.logger.Warn("Failed to invalidate active journey cache", zap.Error(err))
	}
}

// publish - best effort, сбой realtime канала не ломает запись
func (uc *TrackingAPIUseCase) publish(ctx context.Context, event *domain.JourneyEvent) {
	if uc.publisher == nil {
		return
	}
	if err := uc.publisher.Publish(ctx, event); err != nil {
		uc.logger.Warn("Failed to publish journey event",
			zap.String("type", string(event.Type)),
			zap.String("journey_id", event.JourneyID.String()),
			zap.Error(err))
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
