package metrics

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connection Session Metrics
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connections_active",
		Help: "The current number of open connection sessions.",
	})
	TotalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_connections_total",
		Help: "The total number of connection sessions accepted.",
	})
	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_subscriptions_active",
		Help: "The current number of (room, session) subscriptions.",
	})
	RequestsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_requests_received_total",
		Help: "The total number of client requests received, by action.",
	}, []string{"action"})

	// Fan-out Metrics
	MessagesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_published_total",
		Help: "The total number of messages handed to the dispatcher.",
	})
	FanoutDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_fanout_deliveries_total",
		Help: "The total number of payloads queued to subscriber sessions.",
	})
	FanoutDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_fanout_drops_total",
		Help: "The total number of payloads not delivered to a subscriber.",
	}, []string{"reason"})

	// Broker Metrics
	BrokerMessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_messages_published_total",
		Help: "The total number of messages published to the message broker.",
	}, []string{"broker_type"})
	BrokerPublishRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_publish_retries_total",
		Help: "The total number of retries when publishing to the message broker.",
	}, []string{"broker_type"})

	// Auth Metrics
	AuthSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_success_total",
		Help: "The total number of successful authentications.",
	})
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_failures_total",
		Help: "The total number of failed authentications.",
	}, []string{"reason"})

	// Client Metrics
	HeartbeatRTT = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_client_heartbeat_rtt_seconds",
		Help:    "Round-trip time between a heartbeat ping and its pong.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})
	HeartbeatTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_client_heartbeat_timeouts_total",
		Help: "The total number of pings that went unanswered.",
	})
	ReconnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_client_reconnect_attempts_total",
		Help: "The total number of reconnect attempts, by result.",
	}, []string{"result"})
	DuplicatesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_client_duplicates_dropped_total",
		Help: "The total number of pushed messages suppressed by the receiver.",
	}, []string{"reason"})
)

// StartServer starts the HTTP server for Prometheus metrics.
func StartServer(port int, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: mux}
	slog.Info("Starting metrics server", "addr", addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	return srv
}
