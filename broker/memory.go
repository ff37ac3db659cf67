package broker

import (
	"context"
	"sync"
)

const memorySubscriberBuffer = 256

// MemoryBroker is an in-process fan-out used by single-instance deployments.
type MemoryBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[uint64]chan Message
	nextID      uint64
	closed      bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subscribers: make(map[string]map[uint64]chan Message),
	}
}

func (b *MemoryBroker) Type() string { return "memory" }

// Publish hands the message to every subscriber of channel. A subscriber
// whose buffer is full misses the message; Publish never blocks.
func (b *MemoryBroker) Publish(_ context.Context, channel string, message Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}
	for _, ch := range b.subscribers[channel] {
		select {
		case ch <- message:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channel string) (<-chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	ch := make(chan Message, memorySubscriberBuffer)
	id := b.nextID
	b.nextID++
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[uint64]chan Message)
	}
	b.subscribers[channel][id] = ch

	go func() {
		<-ctx.Done()
		b.unsubscribe(channel, id)
	}()
	return ch, nil
}

func (b *MemoryBroker) unsubscribe(channel string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[channel][id]; ok {
		delete(b.subscribers[channel], id)
		close(ch)
	}
}

// Close shuts down the broker and closes all subscriber channels.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for channel, subs := range b.subscribers {
		for id, ch := range subs {
			delete(subs, id)
			close(ch)
		}
		delete(b.subscribers, channel)
	}
	return nil
}
