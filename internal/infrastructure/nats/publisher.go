package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/domain/repository"
	natsgo "github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// ConnectionObserver получает изменения состояния соединения (метрики)
type ConnectionObserver func(connected bool)

// Publisher публикует события поездок в NATS.
// Subject: <prefix>.<journey_id>.<kind>, например journeys.<id>.status
type Publisher struct {
	nc     *natsgo.Conn
	prefix string
	logger *zap.Logger
}

func NewPublisher(url, prefix, clientName string, onConn ConnectionObserver, logger *zap.Logger) (*Publisher, error) {
	if onConn == nil {
		onConn = func(bool) {}
	}

	nc, err := natsgo.Connect(url,
		natsgo.Name(clientName),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			onConn(false)
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		natsgo.ReconnectHandler(func(c *natsgo.Conn) {
			onConn(true)
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
		natsgo.ClosedHandler(func(_ *natsgo.Conn) {
			onConn(false)
			logger.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	onConn(true)

	logger.Info("NATS connected",
		zap.String("url", nc.ConnectedUrl()),
		zap.String("prefix", prefix))

	return &Publisher{nc: nc, prefix: subjectToken(prefix), logger: logger}, nil
}

var _ repository.EventPublisher = (*Publisher)(nil)

func (p *Publisher) Publish(ctx context.Context, event *domain.JourneyEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := Subject(p.prefix, event)
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Error("Failed to publish to nats",
			zap.String("subject", subject),
			zap.Error(err))
		return fmt.Errorf("failed to publish to nats: %w", err)
	}

	p.logger.Debug("Event published to nats", zap.String("subject", subject))
	return nil
}

// Close дожидается отправки буфера и закрывает соединение
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	return nil
}

func Subject(prefix string, event *domain.JourneyEvent) string {
	kind := strings.TrimPrefix(string(event.Type), "journey.")
	return fmt.Sprintf("%s.%s.%s", prefix, subjectToken(event.JourneyID.String()), subjectToken(kind))
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// токен NATS не может содержать пробелы, '>', '*' и '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
