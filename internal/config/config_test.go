package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/journey-tracker/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.Equal(t, 30*time.Second, cfg.Fusion.Window)
	assert.Equal(t, 500.0, cfg.Fusion.SpeedCeilingMps)
	assert.Equal(t, 0.5, cfg.Fusion.TrustInitial)
	assert.Equal(t, 0.1, cfg.Fusion.TrustMin)
	assert.Equal(t, 1.0, cfg.Fusion.TrustMax)

	assert.Equal(t, 7*24*time.Hour, cfg.Queue.Retention)
	assert.Equal(t, 10, cfg.Queue.MaxAttempts)
	assert.True(t, cfg.Store.ResetOnCorruption)

	assert.Equal(t, "device-gps", cfg.Agent.SensorSourceID)
	assert.Equal(t, "-", cfg.Agent.SensorInput)
	assert.Equal(t, "127.0.0.1:8090", cfg.Agent.ControlAddr)
	assert.Equal(t, 30*time.Second, cfg.Agent.SyncInterval)

	assert.Equal(t, "none", cfg.Realtime.Driver)
	assert.Equal(t, "none", cfg.Realtime.RelayDriver)
	assert.Equal(t, "stream:journey:events", cfg.Realtime.Stream)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("API_PORT", "9090")
	t.Setenv("FUSION_WINDOW_SECONDS", "45")
	t.Setenv("FUSION_SPEED_CEILING_BY_TYPE", "passenger=60, Rider=80,broken,vehicle=-1")
	t.Setenv("QUEUE_BACKOFF_BASE_MS", "250")
	t.Setenv("STORE_RESET_ON_CORRUPTION", "false")
	t.Setenv("REALTIME_DRIVER", "MQTT")
	t.Setenv("AGENT_PASSENGER_ID", "passenger-9")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Fusion.Window)
	assert.Equal(t, map[string]float64{"passenger": 60, "rider": 80}, cfg.Fusion.SpeedCeilingByType)
	assert.Equal(t, 250*time.Millisecond, cfg.Queue.BackoffBase)
	assert.False(t, cfg.Store.ResetOnCorruption)
	assert.Equal(t, "mqtt", cfg.Realtime.Driver)
	assert.Equal(t, "passenger-9", cfg.Agent.PassengerID)
	assert.Equal(t, ":9090", cfg.GetServerAddr())
}
