package config

import "github.com/spf13/viper"

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 15)
	v.SetDefault("server.writeTimeout", 15)
	v.SetDefault("server.shutdownTimeout", 10)

	// Auth
	v.SetDefault("auth.enabled", false) // Default to off for local development
	v.SetDefault("auth.jwtSecret", "default-secret")
	v.SetDefault("auth.tokenQueryParam", "token")
	v.SetDefault("auth.revocationListKey", "jwt:revoked")

	// Redis
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 100)
	v.SetDefault("redis.poolTimeout", 5)

	// Broker
	v.SetDefault("broker.type", "memory")
	v.SetDefault("broker.topic", "chat-messages")
	v.SetDefault("broker.kafka.groupID", "chat-delivery")

	// Session store
	v.SetDefault("session.backend", "memory")

	// Persistence
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "file:chat.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")

	// WebSocket
	v.SetDefault("websocket.maxConnections", 10000)
	v.SetDefault("websocket.messageSizeLimit", 4096)
	v.SetDefault("websocket.handshakeTimeout", 10)
	v.SetDefault("websocket.pingInterval", 25)
	v.SetDefault("websocket.pongTimeout", 30)
	v.SetDefault("websocket.activityTimeout", 60)
	v.SetDefault("websocket.writeTimeout", 10)
	v.SetDefault("websocket.sendBuffer", 256)
	v.SetDefault("websocket.keepAlive", true)
	v.SetDefault("websocket.sessionTTL", 90)

	// Client: ping every 50s against the 60s server activity timeout, give a
	// pong 5s, back off from a 0-1s jittered base up to 30s, 10 attempts.
	v.SetDefault("client.url", "ws://localhost:8080/ws")
	v.SetDefault("client.heartbeatInterval", 50000)
	v.SetDefault("client.pongTimeout", 5000)
	v.SetDefault("client.backoffBase", 1000)
	v.SetDefault("client.backoffMax", 30000)
	v.SetDefault("client.maxAttempts", 10)
	v.SetDefault("client.dedupSize", 10000)

	// Metrics
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	// Logging
	v.SetDefault("log.level", "info")
}
