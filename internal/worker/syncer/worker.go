package syncer

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"time"

	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/pkg/errors"
	"github.com/journey-tracker/internal/worker"
	"go.uber.org/zap"
)

const (
	defaultInterval = 30 * time.Second
	defaultTimeout  = 60 * time.Second
)

// Syncer - один проход воспроизведения очереди
type Syncer interface {
	Sync(ctx context.Context) (*domain.SyncResult, error)
	Stats(ctx context.Context) (*domain.QueueStats, error)
}

// JourneyState - признаки, от которых зависит плановый проход
type JourneyState interface {
	Current() *domain.Journey
	IsOnline() bool
}

// Worker запускает синхронизацию по интервалу, пока поездка ACTIVE или очередь не пуста,
// и сразу по Trigger (например, при восстановлении сети).
// Проход выполняется на контексте, отвязанном от остановки, и ограничен timeout.
type Worker struct {
	*worker.BaseWorker
	syncer   Syncer
	journeys JourneyState
	interval time.Duration
	timeout  time.Duration
	trigger  chan struct{}
	last     atomic.Pointer[domain.SyncResult]
	passes   atomic.Int64
}

func NewWorker(syncer Syncer, journeys JourneyState, interval, timeout time.Duration, logger *zap.Logger) *Worker {
	if interval <= 0 {
		interval = defaultInterval
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Worker{
		BaseWorker: worker.NewBaseWorker("sync", logger),
		syncer:     syncer,
		journeys:   journeys,
		interval:   interval,
		timeout:    timeout,
		trigger:    make(chan struct{}, 1),
	}
}

// Trigger просит внеочередной проход; повторные запросы до его начала схлопываются.
// После Stop запросы игнорируются.
func (w *Worker) Trigger() {
	if w.IsStopped() {
		w.Logger().Debug("Sync trigger ignored, worker stopped")
		return
	}
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// LastResult возвращает итог последнего завершённого прохода
func (w *Worker) LastResult() *domain.SyncResult {
	return w.last.Load()
}

// Passes - число выполненных проходов
func (w *Worker) Passes() int64 {
	return w.passes.Load()
}

func (w *Worker) Start(ctx context.Context) error {
	logger := w.Logger()
	logger.Info("Starting sync worker",
		zap.Duration("interval", w.interval),
		zap.Duration("timeout", w.timeout))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.StopChan():
			logger.Info("Worker stopped")
			return nil

		case <-ctx.Done():
			logger.Info("Context cancelled")
			return ctx.Err()

		case <-w.trigger:
			w.run(ctx, "trigger")

		case <-ticker.C:
			if w.due(ctx) {
				w.run(ctx, "interval")
			}
		}
	}
}

// due - плановый проход нужен при активной поездке или непустой очереди и доступном бэкенде
func (w *Worker) due(ctx context.Context) bool {
	if !w.journeys.IsOnline() {
		return false
	}
	if w.journeys.Current().IsActive() {
		return true
	}
	stats, err := w.syncer.Stats(ctx)
	if err != nil {
		w.Logger().Warn("Failed to read queue stats", zap.Error(err))
		return false
	}
	return stats.Pending > 0 || stats.UnsyncedLocations > 0
}

func (w *Worker) run(parent context.Context, reason string) {
	logger := w.Logger()

	// остановка процесса не обрывает начатое воспроизведение
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), w.timeout)
	defer cancel()

	result, err := w.syncer.Sync(ctx)
	switch {
	case stderrors.Is(err, errors.ErrSyncInProgress):
		logger.Debug("Sync already running", zap.String("reason", reason))
		return
	case err != nil:
		logger.Error("Sync pass failed", zap.String("reason", reason), zap.Error(err))
		return
	}

	w.last.Store(result)
	w.passes.Add(1)

	logger.Debug("Sync pass done",
		zap.String("reason", reason),
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed),
		zap.Int("pending", result.Stats.Pending))
}
