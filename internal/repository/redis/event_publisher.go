package redis

import (
	"context"

	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/domain/repository"
)

// streamPublisher пишет события поездок в Redis Stream.
// Клиент принадлежит вызывающему, Close его не закрывает.
type streamPublisher struct {
	streams repository.StreamRepository
	stream  string
}

func NewEventPublisher(streams repository.StreamRepository, stream string) repository.EventPublisher {
	if stream == "" {
		stream = domain.StreamJourneyEvents
	}
	return &streamPublisher{streams: streams, stream: stream}
}

func (p *streamPublisher) Publish(ctx context.Context, event *domain.JourneyEvent) error {
	return p.streams.PublishToStream(ctx, p.stream, event)
}

func (p *streamPublisher) Close() error {
	return nil
}
