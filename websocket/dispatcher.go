package websocket

import (
	"encoding/json"
	"log/slog"

	"github.com/LEONFROMWORK/chat/metrics"
	"github.com/LEONFROMWORK/chat/protocol"
)

// Dispatcher fans created messages out to a room's current subscribers.
type Dispatcher struct {
	registry *TopicRegistry
	logger   *slog.Logger
}

func NewDispatcher(registry *TopicRegistry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Publish sends msg to every session subscribed to roomID at call time and
// returns how many sends were queued. It does not wait for delivery and never
// retries; a failed send to one session does not affect the others.
func (d *Dispatcher) Publish(roomID string, msg protocol.Message) int {
	metrics.MessagesPublished.Inc()

	subs := d.registry.SubscribersOf(roomID)
	if len(subs) == 0 {
		return 0
	}

	data, err := json.Marshal(protocol.NewChatMessage(msg))
	if err != nil {
		d.logger.Error("Failed to encode message payload", "room_id", roomID, "message_id", msg.ID, "error", err)
		return 0
	}

	delivered := 0
	for _, sub := range subs {
		if err := sub.Send(data); err != nil {
			metrics.FanoutDrops.WithLabelValues(dropReason(err)).Inc()
			d.logger.Debug("Dropped payload for subscriber",
				"room_id", roomID, "message_id", msg.ID, "session_id", sub.SessionID(), "error", err)
			continue
		}
		delivered++
	}
	metrics.FanoutDeliveries.Add(float64(delivered))
	return delivered
}
