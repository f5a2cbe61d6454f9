package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Log      LogConfig
	Fusion   FusionConfig
	Queue    QueueConfig
	Store    StoreConfig
	Agent    AgentConfig
	Realtime RealtimeConfig
	Metrics  MetricsConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	Env         string
	CORSOrigins string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

type CacheConfig struct {
	ActiveJourneyTTL time.Duration
}

type LogConfig struct {
	Level string
	// Format - json или console; пусто значит console для debug и json для остальных
	Format string
}

// FusionConfig - пороги детектора спуфинга, доверия и окна фьюжна.
// Значения эмпирические, поэтому все вынесены в конфигурацию.
type FusionConfig struct {
	Window               time.Duration
	SpeedCeilingMps      float64
	SpeedCeilingByType   map[string]float64
	TrustInitial         float64
	TrustMin             float64
	TrustMax             float64
	TrustSpoofPenalty    float64
	TrustGain            float64
	TrustDecay           float64
	HighAccuracyMeters   float64
	MediumAccuracyMeters float64
	ConfidenceSpanMeters float64
}

type QueueConfig struct {
	Retention   time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

type StoreConfig struct {
	Path              string
	OpenTimeout       time.Duration
	ResetOnCorruption bool
}

type AgentConfig struct {
	PassengerID       string
	BackendURL        string
	RequestTimeout    time.Duration
	SyncInterval      time.Duration
	SyncTimeout       time.Duration
	ConnectivityProbe time.Duration
	SensorSourceID    string
	SensorInput       string
	MetricsAddr       string
	ControlAddr       string
}

type RealtimeConfig struct {
	Driver string
	// RelayDriver - куда API пересылает события из Redis Stream (none, nats, mqtt)
	RelayDriver     string
	Stream          string
	StreamMaxLen    int64
	ConsumerGroup   string
	NATSURL         string
	NATSSubject     string
	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string
	MQTTQoS         int
}

type MetricsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	viper.AutomaticEnv()

	// .env опционален: в контейнере всё приходит через окружение
	if _, err := os.Stat(".env"); err == nil {
		viper.SetConfigFile(".env")
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        viper.GetString("API_HOST"),
			Port:        viper.GetInt("API_PORT"),
			Env:         viper.GetString("API_ENV"),
			CORSOrigins: viper.GetString("CORS_ORIGINS"),
		},
		Database: DatabaseConfig{
			Host:            viper.GetString("DB_HOST"),
			Port:            viper.GetInt("DB_PORT"),
			User:            viper.GetString("DB_USER"),
			Password:        viper.GetString("DB_PASSWORD"),
			DBName:          viper.GetString("DB_NAME"),
			SSLMode:         viper.GetString("DB_SSLMODE"),
			MaxConns:        viper.GetInt("DB_MAX_CONNS"),
			MaxIdleConns:    viper.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: time.Duration(viper.GetInt("DB_CONN_MAX_LIFETIME")) * time.Second,
			ConnMaxIdleTime: time.Duration(viper.GetInt("DB_CONN_MAX_IDLE_TIME")) * time.Second,
		},
		Redis: RedisConfig{
			Host:        viper.GetString("REDIS_HOST"),
			Port:        viper.GetInt("REDIS_PORT"),
			Password:    viper.GetString("REDIS_PASSWORD"),
			DB:          viper.GetInt("REDIS_DB"),
			PoolSize:    viper.GetInt("REDIS_POOL_SIZE"),
			DialTimeout: time.Duration(viper.GetInt("REDIS_DIAL_TIMEOUT_SECONDS")) * time.Second,
		},
		Cache: CacheConfig{
			ActiveJourneyTTL: time.Duration(viper.GetInt("ACTIVE_JOURNEY_CACHE_TTL")) * time.Second,
		},
		Log: LogConfig{
			Level:  viper.GetString("LOG_LEVEL"),
			Format: strings.ToLower(viper.GetString("LOG_FORMAT")),
		},
		Fusion: FusionConfig{
			Window:               time.Duration(viper.GetInt("FUSION_WINDOW_SECONDS")) * time.Second,
			SpeedCeilingMps:      viper.GetFloat64("FUSION_SPEED_CEILING_MPS"),
			SpeedCeilingByType:   parseFloatMap(viper.GetString("FUSION_SPEED_CEILING_BY_TYPE")),
			TrustInitial:         viper.GetFloat64("TRUST_INITIAL"),
			TrustMin:             viper.GetFloat64("TRUST_MIN"),
			TrustMax:             viper.GetFloat64("TRUST_MAX"),
			TrustSpoofPenalty:    viper.GetFloat64("TRUST_SPOOF_PENALTY"),
			TrustGain:            viper.GetFloat64("TRUST_GAIN"),
			TrustDecay:           viper.GetFloat64("TRUST_DECAY"),
			HighAccuracyMeters:   viper.GetFloat64("TRUST_HIGH_ACCURACY_M"),
			MediumAccuracyMeters: viper.GetFloat64("TRUST_MEDIUM_ACCURACY_M"),
			ConfidenceSpanMeters: viper.GetFloat64("FUSION_CONFIDENCE_SPAN_M"),
		},
		Queue: QueueConfig{
			Retention:   time.Duration(viper.GetInt("QUEUE_RETENTION_DAYS")) * 24 * time.Hour,
			MaxAttempts: viper.GetInt("QUEUE_MAX_ATTEMPTS"),
			BackoffBase: time.Duration(viper.GetInt("QUEUE_BACKOFF_BASE_MS")) * time.Millisecond,
			BackoffMax:  time.Duration(viper.GetInt("QUEUE_BACKOFF_MAX_MS")) * time.Millisecond,
		},
		Store: StoreConfig{
			Path:              viper.GetString("STORE_PATH"),
			OpenTimeout:       time.Duration(viper.GetInt("STORE_OPEN_TIMEOUT_SECONDS")) * time.Second,
			ResetOnCorruption: !viper.IsSet("STORE_RESET_ON_CORRUPTION") || viper.GetBool("STORE_RESET_ON_CORRUPTION"),
		},
		Agent: AgentConfig{
			PassengerID:       viper.GetString("AGENT_PASSENGER_ID"),
			BackendURL:        viper.GetString("AGENT_BACKEND_URL"),
			RequestTimeout:    time.Duration(viper.GetInt("AGENT_REQUEST_TIMEOUT_SECONDS")) * time.Second,
			SyncInterval:      time.Duration(viper.GetInt("SYNC_INTERVAL_SECONDS")) * time.Second,
			SyncTimeout:       time.Duration(viper.GetInt("SYNC_TIMEOUT_SECONDS")) * time.Second,
			ConnectivityProbe: time.Duration(viper.GetInt("CONNECTIVITY_PROBE_SECONDS")) * time.Second,
			SensorSourceID:    viper.GetString("AGENT_SENSOR_SOURCE_ID"),
			SensorInput:       viper.GetString("AGENT_SENSOR_INPUT"),
			MetricsAddr:       viper.GetString("AGENT_METRICS_ADDR"),
			ControlAddr:       viper.GetString("AGENT_CONTROL_ADDR"),
		},
		Realtime: RealtimeConfig{
			Driver:          strings.ToLower(viper.GetString("REALTIME_DRIVER")),
			RelayDriver:     strings.ToLower(viper.GetString("REALTIME_RELAY_DRIVER")),
			Stream:          viper.GetString("REALTIME_STREAM"),
			StreamMaxLen:    viper.GetInt64("REALTIME_STREAM_MAXLEN"),
			ConsumerGroup:   viper.GetString("REALTIME_CONSUMER_GROUP"),
			NATSURL:         viper.GetString("NATS_URL"),
			NATSSubject:     viper.GetString("NATS_SUBJECT"),
			MQTTBroker:      viper.GetString("MQTT_BROKER"),
			MQTTPort:        viper.GetInt("MQTT_PORT"),
			MQTTClientID:    viper.GetString("MQTT_CLIENT_ID"),
			MQTTUsername:    viper.GetString("MQTT_USERNAME"),
			MQTTPassword:    viper.GetString("MQTT_PASSWORD"),
			MQTTTopicPrefix: viper.GetString("MQTT_TOPIC_PREFIX"),
			MQTTQoS:         viper.GetInt("MQTT_QOS"),
		},
		Metrics: MetricsConfig{
			Enabled: viper.GetBool("METRICS_ENABLED"),
		},
	}

	cfg.applyDefaults()

	return cfg, nil
}

// applyDefaults проставляет значения по умолчанию для незаданных параметров
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.CORSOrigins == "" {
		c.Server.CORSOrigins = "http://localhost:3000,http://localhost:5173"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Cache.ActiveJourneyTTL == 0 {
		c.Cache.ActiveJourneyTTL = 5 * time.Minute
	}

	f := &c.Fusion
	if f.Window == 0 {
		f.Window = 30 * time.Second
	}
	if f.SpeedCeilingMps == 0 {
		f.SpeedCeilingMps = 500
	}
	if f.TrustInitial == 0 {
		f.TrustInitial = 0.5
	}
	if f.TrustMin == 0 {
		f.TrustMin = 0.1
	}
	if f.TrustMax == 0 {
		f.TrustMax = 1.0
	}
	if f.TrustSpoofPenalty == 0 {
		f.TrustSpoofPenalty = 0.2
	}
	if f.TrustGain == 0 {
		f.TrustGain = 0.05
	}
	if f.TrustDecay == 0 {
		f.TrustDecay = 0.01
	}
	if f.HighAccuracyMeters == 0 {
		f.HighAccuracyMeters = 10
	}
	if f.MediumAccuracyMeters == 0 {
		f.MediumAccuracyMeters = 50
	}
	if f.ConfidenceSpanMeters == 0 {
		f.ConfidenceSpanMeters = 1000
	}

	q := &c.Queue
	if q.Retention == 0 {
		q.Retention = 7 * 24 * time.Hour
	}
	if q.MaxAttempts == 0 {
		q.MaxAttempts = 10
	}
	if q.BackoffBase == 0 {
		q.BackoffBase = time.Second
	}
	if q.BackoffMax == 0 {
		q.BackoffMax = 5 * time.Minute
	}

	if c.Store.Path == "" {
		c.Store.Path = "data/journey-agent.db"
	}
	if c.Store.OpenTimeout == 0 {
		c.Store.OpenTimeout = 5 * time.Second
	}

	a := &c.Agent
	if a.BackendURL == "" {
		a.BackendURL = "http://localhost:8080"
	}
	if a.RequestTimeout == 0 {
		a.RequestTimeout = 10 * time.Second
	}
	if a.SyncInterval == 0 {
		a.SyncInterval = 30 * time.Second
	}
	if a.SyncTimeout == 0 {
		a.SyncTimeout = 60 * time.Second
	}
	if a.ConnectivityProbe == 0 {
		a.ConnectivityProbe = 10 * time.Second
	}
	if a.SensorSourceID == "" {
		a.SensorSourceID = "device-gps"
	}
	if a.SensorInput == "" {
		a.SensorInput = "-"
	}
	if a.ControlAddr == "" {
		a.ControlAddr = "127.0.0.1:8090"
	}

	r := &c.Realtime
	if r.Driver == "" {
		r.Driver = "none"
	}
	if r.Stream == "" {
		r.Stream = "stream:journey:events"
	}
	if r.StreamMaxLen == 0 {
		r.StreamMaxLen = 100000
	}
	if r.RelayDriver == "" {
		r.RelayDriver = "none"
	}
	if r.ConsumerGroup == "" {
		r.ConsumerGroup = "journey-relay"
	}
	if r.NATSURL == "" {
		r.NATSURL = "nats://127.0.0.1:4222"
	}
	if r.NATSSubject == "" {
		r.NATSSubject = "journeys"
	}
	if r.MQTTBroker == "" {
		r.MQTTBroker = "localhost"
	}
	if r.MQTTPort == 0 {
		r.MQTTPort = 1883
	}
	if r.MQTTClientID == "" {
		r.MQTTClientID = "journey-tracker"
	}
	if r.MQTTTopicPrefix == "" {
		r.MQTTTopicPrefix = "journeys"
	}
}

// parseFloatMap разбирает строку вида "passenger=60,rider=80"
func parseFloatMap(s string) map[string]float64 {
	result := make(map[string]float64)
	if s == "" {
		return result
	}
	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil || v <= 0 {
			continue
		}
		result[strings.ToLower(strings.TrimSpace(kv[0]))] = v
	}
	return result
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
