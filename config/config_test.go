package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *AppConfig {
	t.Helper()
	cfg, err := Load("unittest")
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := validConfig(t)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Broker.Type)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 25*time.Second, cfg.WebSocket.PingIntervalDuration())
	assert.Equal(t, 50*time.Second, cfg.Client.HeartbeatIntervalDuration())
	assert.Equal(t, 5*time.Second, cfg.Client.PongTimeoutDuration())
	assert.Equal(t, 10, cfg.Client.MaxAttempts)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CHAT_PORT", "9999")
	t.Setenv("CHAT_LOG_LEVEL", "debug")

	cfg := validConfig(t)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidEnvFailsValidation(t *testing.T) {
	t.Setenv("CHAT_BROKER_TYPE", "carrier-pigeon")

	_, err := Load("unittest")
	assert.ErrorContains(t, err, "invalid broker type")
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *AppConfig)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *AppConfig) {},
		},
		{
			name:    "server ping must undercut activity timeout",
			mutate:  func(c *AppConfig) { c.WebSocket.PingInterval = c.WebSocket.ActivityTimeout },
			wantErr: "ping interval should be less than activity timeout",
		},
		{
			name:    "client heartbeat must undercut activity timeout",
			mutate:  func(c *AppConfig) { c.Client.HeartbeatInterval = c.WebSocket.ActivityTimeout * 1000 },
			wantErr: "client heartbeat interval should be less than websocket activity timeout",
		},
		{
			name:    "pong timeout shorter than heartbeat",
			mutate:  func(c *AppConfig) { c.Client.PongTimeout = c.Client.HeartbeatInterval },
			wantErr: "client pong timeout",
		},
		{
			name:    "backoff base within ceiling",
			mutate:  func(c *AppConfig) { c.Client.BackoffBase = c.Client.BackoffMax + 1 },
			wantErr: "client backoff base",
		},
		{
			name:    "at least one reconnect attempt",
			mutate:  func(c *AppConfig) { c.Client.MaxAttempts = 0 },
			wantErr: "client max attempts",
		},
		{
			name: "auth needs a real secret",
			mutate: func(c *AppConfig) {
				c.Auth.Enabled = true
				c.Auth.JWTSecret = "default-secret"
			},
			wantErr: "auth.jwtSecret",
		},
		{
			name: "kafka needs brokers",
			mutate: func(c *AppConfig) {
				c.Broker.Type = "kafka"
				c.Broker.Kafka.Brokers = nil
			},
			wantErr: "kafka brokers",
		},
		{
			name:    "unknown store driver",
			mutate:  func(c *AppConfig) { c.Store.Driver = "postgres" },
			wantErr: "invalid store driver",
		},
		{
			name:    "session TTL outlives activity timeout",
			mutate:  func(c *AppConfig) { c.WebSocket.SessionTTL = c.WebSocket.ActivityTimeout },
			wantErr: "session TTL",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}
