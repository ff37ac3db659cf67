package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func (c *AppConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}
	// Validate auth config
	if c.Auth.Enabled {
		if c.Auth.JWTSecret == "" || c.Auth.JWTSecret == "default-secret" {
			return errors.New("auth.jwtSecret must be set to a strong secret when auth is enabled")
		}
		if c.Auth.TokenQueryParam == "" {
			return errors.New("auth.tokenQueryParam must be configured when auth is enabled")
		}
	}

	// Validate broker configuration
	switch strings.ToLower(c.Broker.Type) {
	case "memory":
	case "redis":
		if c.Redis.Address == "" {
			return errors.New("redis address must be specified for redis broker")
		}
	case "kafka":
		if len(c.Broker.Kafka.Brokers) == 0 {
			return errors.New("kafka brokers must be specified for kafka broker")
		}
		if c.Broker.Kafka.GroupID == "" {
			return errors.New("kafka groupID must be specified for kafka broker")
		}
	default:
		return fmt.Errorf("invalid broker type: %s. Must be 'memory', 'redis' or 'kafka'", c.Broker.Type)
	}
	if c.Broker.Topic == "" {
		return errors.New("broker topic must be configured")
	}

	switch strings.ToLower(c.Session.Backend) {
	case "memory":
	case "redis":
		if c.Redis.Address == "" {
			return errors.New("redis address must be specified for redis session store")
		}
	default:
		return fmt.Errorf("invalid session backend: %s. Must be 'memory' or 'redis'", c.Session.Backend)
	}

	switch strings.ToLower(c.Store.Driver) {
	case "memory":
	case "sqlite":
		if c.Store.DSN == "" {
			return errors.New("store dsn must be specified for sqlite store")
		}
	default:
		return fmt.Errorf("invalid store driver: %s. Must be 'sqlite' or 'memory'", c.Store.Driver)
	}

	if err := c.WebSocket.validate(); err != nil {
		return err
	}
	return c.Client.validate(c.WebSocket)
}

func (c WebSocketConfig) validate() error {
	if c.MaxConnections < 1 {
		return errors.New("max connections must be positive")
	}

	if c.HandshakeTimeout < 1 {
		return errors.New("handshake timeout must be at least 1 second")
	}

	if c.SendBuffer < 1 {
		return errors.New("send buffer must be positive")
	}

	if c.PongTimeout < 0 {
		return errors.New("pong timeout must not be negative")
	}

	if c.PingInterval >= c.ActivityTimeout {
		return errors.New("ping interval should be less than activity timeout")
	}

	if c.SessionTTL <= c.ActivityTimeout {
		return errors.New("session TTL should be greater than activity timeout")
	}
	return nil
}

// The client heartbeat has to refresh the connection before the server's
// activity timer closes it, and a pong must be awaited for less than one
// heartbeat interval so probes never overlap.
func (c ClientConfig) validate(ws WebSocketConfig) error {
	if c.HeartbeatInterval < 1 {
		return errors.New("client heartbeat interval must be positive")
	}
	if c.HeartbeatIntervalDuration() >= ws.ActivityTimeoutDuration() {
		return errors.New("client heartbeat interval should be less than websocket activity timeout")
	}
	if c.PongTimeout < 1 || c.PongTimeout >= c.HeartbeatInterval {
		return errors.New("client pong timeout should be positive and less than heartbeat interval")
	}
	if c.BackoffBase < 1 || c.BackoffBase > c.BackoffMax {
		return errors.New("client backoff base should be positive and not exceed backoff max")
	}
	if c.MaxAttempts < 1 {
		return errors.New("client max attempts must be at least 1")
	}
	if c.DedupSize < 1 {
		return errors.New("client dedup size must be positive")
	}
	return nil
}

func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		// Server
		"server.port": "CHAT_PORT",

		// Auth
		"auth.enabled":           "CHAT_AUTH_ENABLED",
		"auth.jwtSecret":         "CHAT_AUTH_JWT_SECRET",
		"auth.tokenQueryParam":   "CHAT_AUTH_TOKEN_PARAM",
		"auth.revocationListKey": "CHAT_AUTH_REVOCATION_KEY",

		// Redis
		"redis.address":  "CHAT_REDIS_ADDRESS",
		"redis.password": "CHAT_REDIS_PASSWORD",

		// Broker
		"broker.type":          "CHAT_BROKER_TYPE",
		"broker.topic":         "CHAT_BROKER_TOPIC",
		"broker.kafka.brokers": "CHAT_KAFKA_BROKERS",
		"broker.kafka.groupID": "CHAT_KAFKA_GROUPID",

		// Storage
		"session.backend": "CHAT_SESSION_BACKEND",
		"store.driver":    "CHAT_STORE_DRIVER",
		"store.dsn":       "CHAT_STORE_DSN",

		// WebSocket
		"websocket.maxConnections":   "CHAT_MAX_CONNECTIONS",
		"websocket.handshakeTimeout": "CHAT_HANDSHAKE_TIMEOUT",
		"websocket.pingInterval":     "CHAT_PING_INTERVAL",
		"websocket.pongTimeout":      "CHAT_PONG_TIMEOUT",
		"websocket.activityTimeout":  "CHAT_ACTIVITY_TIMEOUT",
		"websocket.writeTimeout":     "CHAT_WRITE_TIMEOUT",
		"websocket.sessionTTL":       "CHAT_SESSION_TTL",

		// Client
		"client.url":               "CHAT_CLIENT_URL",
		"client.heartbeatInterval": "CHAT_CLIENT_HEARTBEAT_INTERVAL",
		"client.pongTimeout":       "CHAT_CLIENT_PONG_TIMEOUT",
		"client.maxAttempts":       "CHAT_CLIENT_MAX_ATTEMPTS",

		// Logging
		"log.level": "CHAT_LOG_LEVEL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}
