package realtime

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/journey-tracker/internal/config"
	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/domain/repository"
	"github.com/journey-tracker/internal/infrastructure/mqtt"
	natspub "github.com/journey-tracker/internal/infrastructure/nats"
	"github.com/journey-tracker/internal/metrics"
	redisRepo "github.com/journey-tracker/internal/repository/redis"
)

const (
	DriverNone  = "none"
	DriverRedis = "redis"
	DriverNATS  = "nats"
	DriverMQTT  = "mqtt"
)

// Nop отбрасывает события, используется когда realtime канал выключен
type Nop struct{}

func (Nop) Publish(context.Context, *domain.JourneyEvent) error { return nil }
func (Nop) Close() error                                        { return nil }

// instrumented считает публикации по драйверу
type instrumented struct {
	next    repository.EventPublisher
	driver  string
	metrics *metrics.Collector
}

func Instrument(next repository.EventPublisher, driver string, m *metrics.Collector) repository.EventPublisher {
	if m == nil {
		return next
	}
	return &instrumented{next: next, driver: driver, metrics: m}
}

func (p *instrumented) Publish(ctx context.Context, event *domain.JourneyEvent) error {
	err := p.next.Publish(ctx, event)
	p.metrics.RealtimePublish(p.driver, err)
	return err
}

func (p *instrumented) Close() error {
	return p.next.Close()
}

// New собирает publisher по REALTIME_DRIVER.
// redisClient нужен только для драйвера redis.
func New(cfg *config.RealtimeConfig, redisClient *goredis.Client, m *metrics.Collector, logger *zap.Logger) (repository.EventPublisher, error) {
	var (
		pub repository.EventPublisher
		err error
	)

	switch cfg.Driver {
	case DriverNone, "":
		return Nop{}, nil
	case DriverRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("realtime driver %q requires redis", cfg.Driver)
		}
		streams := redisRepo.NewStreamRepository(redisClient, cfg.StreamMaxLen, logger)
		pub = redisRepo.NewEventPublisher(streams, cfg.Stream)
	case DriverNATS:
		pub, err = natspub.NewPublisher(cfg.NATSURL, cfg.NATSSubject, "journey-tracker", func(connected bool) {
			logger.Debug("NATS connection state", zap.Bool("connected", connected))
		}, logger)
	case DriverMQTT:
		pub, err = mqtt.NewPublisher(mqtt.Config{
			Broker:      cfg.MQTTBroker,
			Port:        cfg.MQTTPort,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
			QoS:         byte(cfg.MQTTQoS),
		}, logger)
	default:
		return nil, fmt.Errorf("unknown realtime driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("Realtime publisher configured", zap.String("driver", cfg.Driver))
	return Instrument(pub, cfg.Driver, m), nil
}
