package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/domain/repository"
	"go.uber.org/zap"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250 // ms
)

var ErrNotConnected = errors.New("mqtt client is not connected")

// Config - параметры подключения к брокеру
type Config struct {
	Broker      string
	Port        int
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// Publisher публикует события поездок в MQTT.
// Topic: <prefix>/<journey_id>/<kind>, позиции уходят с retain, чтобы новый подписчик сразу видел последнюю точку.
type Publisher struct {
	client    MQTT.Client
	cfg       Config
	connected atomic.Bool
	logger    *zap.Logger
}

func NewPublisher(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if cfg.QoS > 2 {
		cfg.QoS = 1
	}
	p := &Publisher{cfg: cfg, logger: logger}

	opts := MQTT.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetOnConnectHandler(p.onConnect)
	opts.SetConnectionLostHandler(p.onConnectionLost)

	p.client = MQTT.NewClient(opts)

	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		// ConnectRetry продолжит попытки в фоне
		logger.Warn("MQTT broker not reachable yet, retrying in background",
			zap.String("broker", cfg.Broker),
			zap.Int("port", cfg.Port))
		return p, nil
	}
	if err := token.Error(); err != nil {
		p.client.Disconnect(0)
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	logger.Info("MQTT client connected",
		zap.String("broker", cfg.Broker),
		zap.Int("port", cfg.Port))
	return p, nil
}

var _ repository.EventPublisher = (*Publisher)(nil)

func (p *Publisher) onConnect(_ MQTT.Client) {
	p.connected.Store(true)
	p.logger.Info("MQTT connection established")
}

func (p *Publisher) onConnectionLost(_ MQTT.Client, err error) {
	p.connected.Store(false)
	p.logger.Warn("MQTT connection lost", zap.Error(err))
}

func (p *Publisher) IsConnected() bool {
	return p.connected.Load()
}

func (p *Publisher) Publish(ctx context.Context, event *domain.JourneyEvent) error {
	if !p.connected.Load() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := Topic(p.cfg.TopicPrefix, event)
	retain := event.Type != domain.EventJourneyStatus
	token := p.client.Publish(topic, p.cfg.QoS, retain, payload)

	timeout := publishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return fmt.Errorf("mqtt publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		p.logger.Error("Failed to publish to MQTT",
			zap.String("topic", topic),
			zap.Error(err))
		return fmt.Errorf("failed to publish to mqtt: %w", err)
	}

	p.logger.Debug("Event published to MQTT", zap.String("topic", topic))
	return nil
}

func (p *Publisher) Close() error {
	if p.client != nil {
		p.client.Disconnect(disconnectQuiesce)
		p.connected.Store(false)
		p.logger.Info("MQTT client disconnected")
	}
	return nil
}

func Topic(prefix string, event *domain.JourneyEvent) string {
	kind := strings.TrimPrefix(string(event.Type), "journey.")
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s", event.JourneyID, kind)
	}
	return fmt.Sprintf("%s/%s/%s", prefix, event.JourneyID, kind)
}
