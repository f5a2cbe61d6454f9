package realtime

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/domain/repository"
	"github.com/journey-tracker/internal/worker"
	"go.uber.org/zap"
)

const (
	subscriptionBuffer = 64
	publishTimeout     = 2 * time.Second
)

// FusedSource - поток снимков итоговой позиции
type FusedSource interface {
	Subscribe(buffer int) (<-chan *domain.FusedPosition, func())
}

// JourneySource - поток снимков поездки
type JourneySource interface {
	Subscribe(buffer int) (<-chan *domain.Journey, func())
}

// Worker пересылает снимки позиции и статуса поездки в realtime канал.
// Доставка best effort: ошибка публикации логируется, снимок не повторяется.
type Worker struct {
	*worker.BaseWorker
	fused     FusedSource
	journeys  JourneySource
	publisher repository.EventPublisher
	now       func() time.Time
}

func NewWorker(fused FusedSource, journeys JourneySource, publisher repository.EventPublisher, logger *zap.Logger) *Worker {
	return &Worker{
		BaseWorker: worker.NewBaseWorker("realtime", logger),
		fused:      fused,
		journeys:   journeys,
		publisher:  publisher,
		now:        time.Now,
	}
}

type journeyKey struct {
	id     uuid.UUID
	status domain.JourneyStatus
}

func (w *Worker) Start(ctx context.Context) error {
	logger := w.Logger()

	fused, unsubscribeFused := w.fused.Subscribe(subscriptionBuffer)
	defer unsubscribeFused()
	journeys, unsubscribeJourneys := w.journeys.Subscribe(subscriptionBuffer)
	defer unsubscribeJourneys()

	// снимок поездки публикуется только при смене поездки или статуса
	var last journeyKey

	for {
		select {
		case <-w.StopChan():
			logger.Info("Worker stopped")
			return nil

		case <-ctx.Done():
			logger.Info("Context cancelled")
			return ctx.Err()

		case f, ok := <-fused:
			if !ok {
				fused = nil
				continue
			}
			if f.JourneyID == uuid.Nil {
				continue
			}
			w.publish(ctx, domain.NewFusedEvent(f))

		case j, ok := <-journeys:
			if !ok {
				journeys = nil
				continue
			}
			key := journeyKey{id: j.ID, status: j.Status}
			if key == last {
				continue
			}
			last = key
			w.publish(ctx, domain.NewStatusEvent(j, w.now().UTC()))
		}

		if fused == nil && journeys == nil {
			logger.Info("Sources closed")
			return nil
		}
	}
}

func (w *Worker) publish(ctx context.Context, event *domain.JourneyEvent) {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := w.publisher.Publish(pubCtx, event); err != nil {
		w.Logger().Warn("Failed to publish realtime event",
			zap.String("type", string(event.Type)),
			zap.String("journey_id", event.JourneyID.String()),
			zap.Error(err))
	}
}
