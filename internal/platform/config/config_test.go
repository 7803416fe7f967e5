package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 1, cfg.HeartbeatMaxMisses)
	assert.Equal(t, 16, cfg.SendBufferSize)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 256, cfg.BusQueueSize)
	assert.InDelta(t, 5.0, cfg.SubscribeRatePerSecond, 1e-12)
	assert.Equal(t, 10, cfg.SubscribeBurst)
	assert.Equal(t, 30*time.Second, cfg.PriceTickInterval)
	assert.InDelta(t, 0.001, cfg.PriceBase, 1e-12)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.True(t, cfg.InMemory())
	assert.Equal(t, "0.0.0.0:3001", cfg.Addr())
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://localhost/hamballer")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("HEARTBEAT_INTERVAL", "10s")
	t.Setenv("ALLOWED_ORIGINS", "https://hamballer.xyz,http://localhost:3000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, []string{"https://hamballer.xyz", "http://localhost:3000"}, cfg.AllowedOrigins)
	assert.False(t, cfg.InMemory())
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"zero send buffer", "WS_SEND_BUFFER", "0", "WS_SEND_BUFFER must be at least 1"},
		{"zero bus queue", "BUS_QUEUE_SIZE", "0", "BUS_QUEUE_SIZE must be at least 1"},
		{"zero heartbeat misses", "HEARTBEAT_MAX_MISSES", "0", "HEARTBEAT_MAX_MISSES must be at least 1"},
		{"negative price tick", "PRICE_TICK_INTERVAL", "-1s", "PRICE_TICK_INTERVAL must be positive"},
		{"write timeout above heartbeat", "WS_WRITE_TIMEOUT", "45s", "WS_WRITE_TIMEOUT must be shorter than HEARTBEAT_INTERVAL"},
		{"zero price base", "PRICE_BASE", "0", "PRICE_BASE must be positive"},
		{"zero subscribe rate", "WS_SUBSCRIBE_RATE", "0", "rate limits must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestLoad_MalformedDuration(t *testing.T) {
	t.Setenv("HEARTBEAT_INTERVAL", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load environment variables")
}
