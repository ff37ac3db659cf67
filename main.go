package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/LEONFROMWORK/chat/broker"
	"github.com/LEONFROMWORK/chat/chat"
	"github.com/LEONFROMWORK/chat/config"
	"github.com/LEONFROMWORK/chat/logger"
	"github.com/LEONFROMWORK/chat/metrics"
	"github.com/LEONFROMWORK/chat/server"
	"github.com/LEONFROMWORK/chat/services"
	"github.com/LEONFROMWORK/chat/session"
	"github.com/LEONFROMWORK/chat/store"
	"github.com/LEONFROMWORK/chat/websocket"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	if err := config.Initialize(env); err != nil {
		slog.Error("Failed to initialize config", "error", err)
		os.Exit(1)
	}
	cfg := config.Get()
	log := logger.Init(cfg.Log.Level)

	// Unique ID for this server instance
	serverID := uuid.NewString()
	log.Info("Starting chat server", "server_id", serverID, "env", env)

	// Redis is shared by the session store, the Redis broker and token
	// revocation checks. It is only dialed when something needs it.
	var redisClient *redis.Client
	if cfg.Session.Backend == "redis" || cfg.Broker.Type == "redis" {
		var err error
		redisClient, err = services.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			fatal(log, "Failed to connect to Redis", err)
		}
		defer services.CloseRedisClient(redisClient)
	}

	var sessionStore session.Store
	switch cfg.Session.Backend {
	case "redis":
		sessionStore = session.NewRedisStore(redisClient, cfg.WebSocket.SessionTTLDuration())
	default:
		sessionStore = session.NewMemoryStore()
	}

	messageBroker, err := newBroker(cfg, redisClient, log)
	if err != nil {
		fatal(log, "Failed to create message broker", err)
	}
	log.Info("Message broker ready", "broker_type", messageBroker.Type(), "topic", cfg.Broker.Topic)

	chatStore, err := newStore(cfg.Store)
	if err != nil {
		fatal(log, "Failed to open store", err)
	}
	defer chatStore.Close()
	if err := store.EnsureDefaultRoom(ctx, chatStore); err != nil {
		fatal(log, "Failed to create default room", err)
	}

	var auth websocket.Authenticator = websocket.QueryAuthenticator{}
	if cfg.Auth.Enabled {
		auth = websocket.NewJWTAuthenticator(&cfg.Auth, redisClient, log)
		log.Info("JWT authentication is enabled")
	} else {
		log.Warn("JWT authentication is disabled")
	}

	registry := websocket.NewTopicRegistry()
	dispatcher := websocket.NewDispatcher(registry, log)
	clientManager := websocket.NewClientManager(registry, sessionStore, serverID, cfg.WebSocket.MaxConnections, log)
	wsHandler := websocket.NewHandler(clientManager, chatStore, auth, &cfg.WebSocket, log)

	chatService := chat.NewService(chatStore, messageBroker, cfg.Broker.Topic, serverID, cfg.WebSocket.MessageSizeLimit, log)
	chatHandlers := chat.NewHandlers(chatService, auth, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws", wsHandler.HandleWebSocket)
	chatHandlers.Routes(r)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	// Every instance fans out every created message to its own sessions.
	go func() {
		if err := dispatcher.Relay(ctx, messageBroker, cfg.Broker.Topic); err != nil {
			log.Error("Broker relay stopped", "error", err)
			cancel()
		}
	}()

	srv := server.NewServer(":"+strconv.Itoa(cfg.Server.Port), r, cfg.Server, log)
	go func() {
		if err := srv.Start(); err != nil {
			log.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		log.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx, clientManager, messageBroker); err != nil {
		log.Error("Shutdown error", "error", err)
	}
	cancel()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server shutdown error", "error", err)
		}
	}
	log.Info("Goodbye")
}

func newBroker(cfg *config.AppConfig, redisClient *redis.Client, log *slog.Logger) (broker.MessageBroker, error) {
	switch cfg.Broker.Type {
	case "redis":
		return broker.NewRedisBroker(redisClient, log), nil
	case "kafka":
		// Each instance needs every message, so each gets its own group.
		groupID := cfg.Broker.Kafka.GroupID + "-" + uuid.NewString()[:8]
		return broker.NewKafkaBroker(cfg.Broker.Kafka.Brokers, groupID, log)
	default:
		return broker.NewMemoryBroker(), nil
	}
}

func newStore(cfg config.StoreConfig) (store.Store, error) {
	if cfg.Driver == "memory" {
		return store.NewMemoryStore(), nil
	}
	return store.OpenSQLite(cfg.DSN)
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
