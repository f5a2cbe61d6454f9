package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/journey-tracker/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const pingAttempts = 3

// Redis - общее подключение для кеша активных поездок и Redis Streams
type Redis struct {
	client *redis.Client
	addr   string
	logger *zap.Logger
}

func NewRedis(cfg *config.RedisConfig, logger *zap.Logger) (*Redis, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: dialTimeout,
	})

	// XREADGROUP блокируется, поэтому при старте соединение проверяется
	// с повтором: redis в compose поднимается параллельно с API
	var err error
	delay := 200 * time.Millisecond
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		err = client.Ping(ctx).Err()
		cancel()
		if err == nil {
			break
		}
		if attempt < pingAttempts {
			logger.Warn("Redis not ready, retrying",
				zap.String("addr", addr),
				zap.Int("attempt", attempt),
				zap.Error(err))
			time.Sleep(delay)
			delay *= 2
		}
	}
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	logger.Info("Redis connected",
		zap.String("addr", addr),
		zap.Int("db", cfg.DB),
		zap.Int("pool_size", cfg.PoolSize),
	)

	return &Redis{
		client: client,
		addr:   addr,
		logger: logger,
	}, nil
}

func (r *Redis) Close() error {
	r.logger.Info("Closing Redis connection", zap.String("addr", r.addr))
	return r.client.Close()
}

// Health - проверка для /health
func (r *Redis) Health(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: %w", r.addr, err)
	}
	return nil
}

func (r *Redis) Client() *redis.Client {
	return r.client
}
