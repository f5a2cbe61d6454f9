package usecase

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/journey-tracker/internal/config"
	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/domain/repository"
	"github.com/journey-tracker/internal/metrics"
	"github.com/journey-tracker/internal/pkg/errors"
	"go.uber.org/zap"
)

const (
	// uploadBatchSize - максимум точек в одном запросе выгрузки
	uploadBatchSize = 500
	// maxUploadRounds ограничивает дочитывание точек, пришедших во время выгрузки;
	// остаток подхватит маркер, заново поставленный при MarkProcessed
	maxUploadRounds = 10
)

// SyncObserver получает статистику очереди после прохода
type SyncObserver interface {
	ApplySyncStats(ctx context.Context, stats domain.QueueStats, at time.Time) *domain.Journey
}

// permanentError - повтор не поможет, элемент закрывается с сообщением об ошибке
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var p *permanentError
	if stderrors.As(err, &p) {
		return true
	}
	return stderrors.Is(err, errors.ErrInvalidTransition) ||
		stderrors.Is(err, errors.ErrInvalidRequest) ||
		stderrors.Is(err, errors.ErrJourneyConflict)
}

// SyncUseCase - координатор синхронизации: воспроизводит очередь устройства
// на бэкенде в порядке номеров. Один экземпляр на процесс.
type SyncUseCase struct {
	cfg      config.QueueConfig
	deviceID string
	store    repository.LocalStore
	backend  repository.BackendRepository
	observer SyncObserver
	running  atomic.Bool
	metrics  *metrics.Collector
	logger   *zap.Logger
	now      func() time.Time
}

func NewSyncUseCase(
	cfg *config.QueueConfig,
	deviceID string,
	store repository.LocalStore,
	backend repository.BackendRepository,
	observer SyncObserver,
	m *metrics.Collector,
	logger *zap.Logger,
) *SyncUseCase {
	return &SyncUseCase{
		cfg:      *cfg,
		deviceID: deviceID,
		store:    store,
		backend:  backend,
		observer: observer,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Sync выполняет один проход. Параллельный вызов получает ErrSyncInProgress.
// Сбой одного элемента не останавливает остальные, но следующие элементы
// той же поездки откладываются, чтобы не нарушить порядок.
func (uc *SyncUseCase) Sync(ctx context.Context) (*domain.SyncResult, error) {
	if !uc.running.CompareAndSwap(false, true) {
		uc.metrics.SyncPass("busy", 0)
		return nil, errors.ErrSyncInProgress
	}
	defer uc.running.Store(false)

	result := &domain.SyncResult{StartedAt: uc.now().UTC()}

	pending, err := uc.store.GetPending(ctx, uc.deviceID)
	if err != nil {
		uc.metrics.SyncPass("error", 0)
		return nil, fmt.Errorf("failed to load pending items: %w", err)
	}

	blocked := make(map[uuid.UUID]bool)

	for _, item := range pending {
		if ctx.Err() != nil {
			// оставшиеся элементы остаются необработанными до следующего запуска
			break
		}

		if item.IsDeadLetter(uc.cfg.MaxAttempts) {
			result.DeadLetters++
			continue
		}
		if item.JourneyID != nil && blocked[*item.JourneyID] {
			result.Deferred++
			continue
		}
		if next := item.NextAttemptAt(uc.cfg.BackoffBase, uc.cfg.BackoffMax); uc.now().Before(next) {
			result.Deferred++
			if item.JourneyID != nil {
				blocked[*item.JourneyID] = true
			}
			continue
		}

		uploaded, err := uc.dispatch(ctx, item)
		result.LocationsUploaded += uploaded

		switch {
		case err == nil:
			if markErr := uc.store.MarkProcessed(ctx, item.ID, ""); markErr != nil {
				// повтор безопасен, бэкенд идемпотентен
				uc.logger.Error("Failed to mark item processed", zap.String("id", item.ID.String()), zap.Error(markErr))
				result.Failed++
				continue
			}
			result.Processed++
			uc.metrics.SyncItem(string(item.Action), "processed")

		case isPermanent(err):
			uc.logger.Warn("Queue item rejected, closing it",
				zap.String("id", item.ID.String()),
				zap.String("action", string(item.Action)),
				zap.Uint64("sequence", item.SequenceNumber),
				zap.Error(err))
			if markErr := uc.store.MarkProcessed(ctx, item.ID, err.Error()); markErr != nil {
				uc.logger.Error("Failed to close rejected item", zap.String("id", item.ID.String()), zap.Error(markErr))
			}
			result.Discarded++
			uc.metrics.SyncItem(string(item.Action), "discarded")

		default:
			uc.logger.Warn("Queue item replay failed, will retry",
				zap.String("id", item.ID.String()),
				zap.String("action", string(item.Action)),
				zap.Int("attempt", item.AttemptCount+1),
				zap.Error(err))
			// счётчик попыток меняется и при отменённом контексте прохода
			if _, retryErr := uc.store.IncrementRetry(context.WithoutCancel(ctx), item.ID, err.Error()); retryErr != nil {
				uc.logger.Error("Failed to increment retry", zap.String("id", item.ID.String()), zap.Error(retryErr))
			}
			if item.JourneyID != nil {
				blocked[*item.JourneyID] = true
			}
			result.Failed++
			uc.metrics.SyncItem(string(item.Action), "failed")
		}
	}

	finished := uc.now().UTC()
	bg := context.WithoutCancel(ctx)

	stats, err := uc.store.GetQueueStats(bg, uc.deviceID)
	if err != nil {
		uc.logger.Error("Failed to compute queue stats", zap.Error(err))
	} else {
		result.Stats = *stats
		if uc.observer != nil {
			journey := uc.observer.ApplySyncStats(bg, *stats, finished)
			if journey != nil && result.Failed == 0 {
				uc.pushSyncState(ctx, journey.ID, domain.SyncState{
					OfflineQueueCount: stats.Pending,
					LastSyncTime:      finished,
				})
			}
		}
	}

	removed, err := uc.store.CleanOldData(bg, finished.Add(-uc.cfg.Retention))
	if err != nil {
		uc.logger.Error("Failed to clean old data", zap.Error(err))
	}
	result.Removed = removed
	result.FinishedAt = uc.now().UTC()

	uc.metrics.LocationsSynced(result.LocationsUploaded)
	uc.metrics.SyncPass("ok", result.FinishedAt.Sub(result.StartedAt))

	uc.logger.Info("Sync pass finished",
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed),
		zap.Int("deferred", result.Deferred),
		zap.Int("discarded", result.Discarded),
		zap.Int("dead_letters", result.DeadLetters),
		zap.Int("locations_uploaded", result.LocationsUploaded),
		zap.Int("pending", result.Stats.Pending),
		zap.Int("removed", result.Removed))

	return result, nil
}

// IsRunning сообщает, идёт ли сейчас проход
func (uc *SyncUseCase) IsRunning() bool {
	return uc.running.Load()
}

// DeadLetters возвращает элементы, ожидающие ручного разбора
func (uc *SyncUseCase) DeadLetters(ctx context.Context) ([]*domain.QueueItem, error) {
	return uc.store.ListDeadLetters(ctx, uc.deviceID)
}

// Stats возвращает статистику очереди
func (uc *SyncUseCase) Stats(ctx context.Context) (*domain.QueueStats, error) {
	return uc.store.GetQueueStats(ctx, uc.deviceID)
}

func (uc *SyncUseCase) pushSyncState(ctx context.Context, journeyID uuid.UUID, state domain.SyncState) {
	if ctx.Err() != nil {
		return
	}
	if err := uc.backend.UpdateSyncState(ctx, journeyID, state); err != nil {
		uc.logger.Debug("Failed to push sync state", zap.Error(err))
	}
}

// dispatch воспроизводит элемент на бэкенде; возвращает число выгруженных точек
func (uc *SyncUseCase) dispatch(ctx context.Context, item *domain.QueueItem) (int, error) {
	switch item.Action {
	case domain.ActionUpdateLocation:
		if item.JourneyID == nil {
			return 0, permanent(fmt.Errorf("%s without journey id", item.Action))
		}
		return uc.uploadLocations(ctx, *item.JourneyID)

	case domain.ActionConfirmJourney:
		var journey domain.Journey
		if err := json.Unmarshal(item.Payload, &journey); err != nil {
			return 0, permanent(fmt.Errorf("invalid %s payload: %w", item.Action, err))
		}
		_, err := uc.backend.UpsertJourney(ctx, &journey)
		return 0, err

	case domain.ActionEndJourney, domain.ActionCancelJourney:
		var change domain.StatusChange
		if err := json.Unmarshal(item.Payload, &change); err != nil {
			return 0, permanent(fmt.Errorf("invalid %s payload: %w", item.Action, err))
		}
		_, err := uc.backend.UpdateJourneyStatus(ctx, change)
		return 0, err

	case domain.ActionUpsertTrust:
		if item.JourneyID == nil {
			return 0, permanent(fmt.Errorf("%s without journey id", item.Action))
		}
		records, err := uc.store.LoadTrust(ctx, *item.JourneyID)
		if err != nil {
			return 0, err
		}
		if len(records) == 0 {
			return 0, nil
		}
		return 0, uc.backend.UpsertTrustScores(ctx, *item.JourneyID, records)

	case domain.ActionCreateOrder:
		var order domain.Order
		if err := json.Unmarshal(item.Payload, &order); err != nil {
			return 0, permanent(fmt.Errorf("invalid %s payload: %w", item.Action, err))
		}
		return 0, uc.backend.UpsertOrder(ctx, &order)

	default:
		return 0, permanent(fmt.Errorf("unknown queue action %q", item.Action))
	}
}

// uploadLocations выгружает все невыгруженные точки поездки пачками.
// Точки, записанные во время выгрузки, дочитываются следующим раундом.
func (uc *SyncUseCase) uploadLocations(ctx context.Context, journeyID uuid.UUID) (int, error) {
	uploaded := 0
	for round := 0; round < maxUploadRounds; round++ {
		samples, err := uc.store.GetUnsyncedLocations(ctx, journeyID)
		if err != nil {
			return uploaded, err
		}
		if len(samples) == 0 {
			return uploaded, nil
		}

		for start := 0; start < len(samples); start += uploadBatchSize {
			end := start + uploadBatchSize
			if end > len(samples) {
				end = len(samples)
			}
			batch := samples[start:end]

			if _, err := uc.backend.UpsertPositionSamples(ctx, journeyID, batch); err != nil {
				return uploaded, err
			}

			ids := make([]uint64, 0, len(batch))
			for _, s := range batch {
				ids = append(ids, s.ID)
			}
			if err := uc.store.MarkLocationsSynced(ctx, ids); err != nil {
				return uploaded, err
			}
			uploaded += len(batch)
		}
	}

	uc.logger.Debug("Location upload stopped after round limit",
		zap.String("journey_id", journeyID.String()),
		zap.Int("uploaded", uploaded))
	return uploaded, nil
}
