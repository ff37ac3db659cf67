package websocket

import (
	"context"
	"fmt"

	"github.com/LEONFROMWORK/chat/broker"
)

// Relay consumes created messages from the broker topic and fans each one
// out to this instance's subscribers. It returns when ctx ends or the broker
// closes the subscription.
func (d *Dispatcher) Relay(ctx context.Context, b broker.MessageBroker, topic string) error {
	messages, err := b.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	d.logger.Info("Relaying broker messages", "topic", topic, "broker_type", b.Type())

	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-messages:
			if !ok {
				d.logger.Info("Broker subscription closed", "topic", topic)
				return nil
			}
			n := d.Publish(message.Message.RoomID, message.Message)
			d.logger.Debug("Relayed message",
				"room_id", message.Message.RoomID,
				"message_id", message.Message.ID,
				"origin_server", message.ServerID,
				"subscribers", n)
		}
	}
}
