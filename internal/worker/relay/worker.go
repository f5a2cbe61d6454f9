package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/domain/repository"
	"github.com/journey-tracker/internal/worker"
	"go.uber.org/zap"
)

const (
	defaultMaxRetries = 3
	retryBackoff      = 200 * time.Millisecond
)

// Worker читает события поездок из Redis Stream через consumer group
// и пересылает их во внешний брокер (NATS или MQTT).
// Сообщение подтверждается только после успешной пересылки;
// неподтверждённые сообщения перечитываются после перезапуска.
type Worker struct {
	*worker.BaseWorker
	streamRepo    repository.StreamRepository
	target        repository.EventPublisher
	stream        string
	consumerGroup string
	consumerName  string
	maxRetries    int
}

func NewWorker(
	streamRepo repository.StreamRepository,
	target repository.EventPublisher,
	stream string,
	consumerGroup string,
	maxRetries int,
	logger *zap.Logger,
) *Worker {
	hostname, _ := os.Hostname()
	consumerName := fmt.Sprintf("%s-%d", hostname, os.Getpid())

	if stream == "" {
		stream = domain.StreamJourneyEvents
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	return &Worker{
		BaseWorker:    worker.NewBaseWorker("realtime-relay", logger),
		streamRepo:    streamRepo,
		target:        target,
		stream:        stream,
		consumerGroup: consumerGroup,
		consumerName:  consumerName,
		maxRetries:    maxRetries,
	}
}

// ConsumerName - имя потребителя в группе
func (w *Worker) ConsumerName() string {
	return w.consumerName
}

func (w *Worker) Start(ctx context.Context) error {
	logger := w.Logger()
	logger.Info("Starting relay",
		zap.String("stream", w.stream),
		zap.String("consumer_group", w.consumerGroup),
		zap.String("consumer_name", w.consumerName))

	// Создаем consumer group, если его нет
	if err := w.streamRepo.CreateConsumerGroup(ctx, w.stream, w.consumerGroup); err != nil {
		logger.Error("Failed to create consumer group", zap.Error(err))
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	// чтение останавливается вместе с воркером
	consumeCtx, cancel := w.Context(ctx)
	defer cancel()

	msgChan, err := w.streamRepo.ConsumeStream(consumeCtx, w.stream, w.consumerGroup, w.consumerName)
	if err != nil {
		logger.Error("Failed to consume stream", zap.Error(err))
		return fmt.Errorf("failed to consume stream: %w", err)
	}

	for {
		select {
		case <-w.StopChan():
			logger.Info("Worker stopped")
			return nil

		case <-ctx.Done():
			logger.Info("Context cancelled")
			return ctx.Err()

		case msg, ok := <-msgChan:
			if !ok {
				if consumeCtx.Err() != nil {
					return nil
				}
				logger.Warn("Message channel closed")
				return fmt.Errorf("message channel closed")
			}

			if err := w.processMessage(consumeCtx, msg); err != nil {
				// без ACK сообщение остаётся в pending и будет перечитано
				logger.Error("Failed to relay message",
					zap.String("message_id", msg.ID),
					zap.Error(err))
				continue
			}

			if err := w.streamRepo.AckMessage(consumeCtx, w.stream, w.consumerGroup, msg.ID); err != nil {
				logger.Error("Failed to acknowledge message",
					zap.String("message_id", msg.ID),
					zap.Error(err))
			}
		}
	}
}

// processMessage пересылает одно сообщение; nil означает, что сообщение можно подтвердить
func (w *Worker) processMessage(ctx context.Context, msg domain.StreamMessage) error {
	logger := w.Logger()

	var event domain.JourneyEvent
	if err := json.Unmarshal([]byte(msg.Data), &event); err != nil {
		// битое сообщение подтверждается и пропускается
		logger.Error("Failed to unmarshal event",
			zap.String("message_id", msg.ID),
			zap.String("raw_data", msg.Data),
			zap.Error(err))
		return nil
	}

	var err error
	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		if err = w.target.Publish(ctx, &event); err == nil {
			logger.Debug("Event relayed",
				zap.String("type", string(event.Type)),
				zap.String("journey_id", event.JourneyID.String()))
			return nil
		}

		if attempt == w.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}

	return fmt.Errorf("failed to publish event after %d attempts: %w", w.maxRetries, err)
}
