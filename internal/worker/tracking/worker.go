package tracking

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/pkg/errors"
	"github.com/journey-tracker/internal/worker"
	"go.uber.org/zap"
)

const (
	journeyBuffer     = 16
	defaultTrustFlush = 30 * time.Second
)

// Fusion - приём отчётов о позиции
type Fusion interface {
	Ingest(ctx context.Context, report domain.PositionReport) (*domain.IngestResult, error)
}

// Journeys - состояние поездки, в которую пишется трек
type Journeys interface {
	Current() *domain.Journey
	Subscribe(buffer int) (<-chan *domain.Journey, func())
	UpdateLocation(ctx context.Context, report domain.PositionReport) error
	SetFusedPosition(fused *domain.FusedPosition)
	QueueTrustUpload(ctx context.Context) error
}

// Worker читает отчёты из PositionSource и пока поездка ACTIVE отдаёт их в fusion.
// Точки собственного датчика устройства сохраняются в трек поездки.
// Цикл поездки отменяется, когда она переходит в терминальный статус.
type Worker struct {
	*worker.BaseWorker
	source      <-chan domain.PositionReport
	fusion      Fusion
	journeys    Journeys
	ownSourceID string
	trustFlush  time.Duration
}

func NewWorker(
	source <-chan domain.PositionReport,
	fusion Fusion,
	journeys Journeys,
	ownSourceID string,
	trustFlush time.Duration,
	logger *zap.Logger,
) *Worker {
	if trustFlush <= 0 {
		trustFlush = defaultTrustFlush
	}
	return &Worker{
		BaseWorker:  worker.NewBaseWorker("tracking", logger),
		source:      source,
		fusion:      fusion,
		journeys:    journeys,
		ownSourceID: ownSourceID,
		trustFlush:  trustFlush,
	}
}

// journeyLoop - цикл приёма отчётов одной поездки
type journeyLoop struct {
	journeyID    uuid.UUID
	cancel       context.CancelFunc
	done         chan struct{}
	sourceClosed bool
}

func (w *Worker) Start(ctx context.Context) error {
	logger := w.Logger()

	updates, unsubscribe := w.journeys.Subscribe(journeyBuffer)
	defer unsubscribe()

	var loop *journeyLoop
	stopLoop := func() {
		if loop == nil {
			return
		}
		loop.cancel()
		<-loop.done
		loop = nil
	}
	defer stopLoop()

	startLoop := func(journeyID uuid.UUID) {
		loopCtx, cancel := context.WithCancel(ctx)
		loop = &journeyLoop{journeyID: journeyID, cancel: cancel, done: make(chan struct{})}
		go w.track(loopCtx, loop)
		logger.Info("Tracking journey", zap.String("journey_id", journeyID.String()))
	}

	if current := w.journeys.Current(); current.IsActive() {
		startLoop(current.ID)
	}

	for {
		// без активной поездки отчёты вычитываются и отбрасываются, чтобы не блокировать источник
		var idle <-chan domain.PositionReport
		var loopDone chan struct{}
		if loop == nil {
			idle = w.source
		} else {
			loopDone = loop.done
		}

		select {
		case <-w.StopChan():
			logger.Info("Worker stopped")
			return nil

		case <-ctx.Done():
			logger.Info("Context cancelled")
			return ctx.Err()

		case journey, ok := <-updates:
			if !ok {
				return nil
			}
			switch {
			case journey.IsActive() && (loop == nil || loop.journeyID != journey.ID):
				stopLoop()
				startLoop(journey.ID)
			case !journey.IsActive() && loop != nil && loop.journeyID == journey.ID:
				logger.Info("Journey finished, tracking stopped",
					zap.String("journey_id", journey.ID.String()),
					zap.String("status", string(journey.Status)))
				stopLoop()
			}

		case <-loopDone:
			closed := loop.sourceClosed
			loop = nil
			if closed {
				logger.Info("Position source closed")
				return nil
			}

		case report, ok := <-idle:
			if !ok {
				logger.Info("Position source closed")
				return nil
			}
			logger.Debug("Report dropped, no active journey", zap.String("source_id", report.SourceID))
		}
	}
}

func (w *Worker) track(ctx context.Context, loop *journeyLoop) {
	defer close(loop.done)

	ticker := time.NewTicker(w.trustFlush)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := w.journeys.QueueTrustUpload(ctx); err != nil {
				w.Logger().Warn("Failed to queue trust upload", zap.Error(err))
			}

		case report, ok := <-w.source:
			if !ok {
				loop.sourceClosed = true
				return
			}
			w.handle(ctx, report)
		}
	}
}

func (w *Worker) handle(ctx context.Context, report domain.PositionReport) {
	logger := w.Logger()

	result, err := w.fusion.Ingest(ctx, report)
	if err != nil {
		logger.Warn("Position report rejected",
			zap.String("source_id", report.SourceID),
			zap.Error(err))
		return
	}

	if result.Fused != nil {
		w.journeys.SetFusedPosition(result.Fused)
	}

	if !w.isOwn(report) || !result.Accepted {
		return
	}
	if err := w.journeys.UpdateLocation(ctx, result.Report); err != nil {
		if stderrors.Is(err, errors.ErrNoActiveJourney) {
			logger.Debug("Journey finished before sample was stored")
			return
		}
		logger.Error("Failed to store location sample", zap.Error(err))
	}
}

// isOwn - точка датчика самого устройства; без настроенного id своими считаются все
func (w *Worker) isOwn(report domain.PositionReport) bool {
	return w.ownSourceID == "" || report.SourceID == w.ownSourceID
}
