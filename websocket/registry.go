package websocket

import (
	"sort"
	"sync"

	"github.com/LEONFROMWORK/chat/metrics"
)

// Subscriber is the registry's view of a Connection Session.
type Subscriber interface {
	SessionID() string
	// Send queues data for the session without blocking.
	Send(data []byte) error
	// Done is closed once the session is closed.
	Done() <-chan struct{}
}

// TopicRegistry maps rooms to their subscriber sessions. One instance is
// created per server process; fan-out only reads, churn writes.
type TopicRegistry struct {
	mu     sync.RWMutex
	topics map[string]map[string]Subscriber // room id -> session id -> subscriber
	rooms  map[string]map[string]struct{}  // session id -> room ids
}

func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{
		topics: make(map[string]map[string]Subscriber),
		rooms:  make(map[string]map[string]struct{}),
	}
}

// Subscribe adds sub to roomID. It reports false when the subscription
// already existed or sub is already closed. The closed check happens under
// the registry lock, so a session closed before its final Unsubscribe can
// never be added back.
func (r *TopicRegistry) Subscribe(roomID string, sub Subscriber) bool {
	id := sub.SessionID()

	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case <-sub.Done():
		return false
	default:
	}

	subs, ok := r.topics[roomID]
	if !ok {
		subs = make(map[string]Subscriber)
		r.topics[roomID] = subs
	}
	if _, ok := subs[id]; ok {
		return false
	}
	subs[id] = sub

	if r.rooms[id] == nil {
		r.rooms[id] = make(map[string]struct{})
	}
	r.rooms[id][roomID] = struct{}{}
	metrics.ActiveSubscriptions.Inc()
	return true
}

// Leave removes a single subscription. It reports false when there was
// nothing to remove.
func (r *TopicRegistry) Leave(roomID string, sub Subscriber) bool {
	id := sub.SessionID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.topics[roomID][id]; !ok {
		return false
	}
	r.remove(roomID, id)
	return true
}

// Unsubscribe removes sub from every room and returns the rooms it left.
// Calling it again for the same session is a no-op.
func (r *TopicRegistry) Unsubscribe(sub Subscriber) []string {
	id := sub.SessionID()

	r.mu.Lock()
	defer r.mu.Unlock()

	left := make([]string, 0, len(r.rooms[id]))
	for roomID := range r.rooms[id] {
		left = append(left, roomID)
	}
	for _, roomID := range left {
		r.remove(roomID, id)
	}
	sort.Strings(left)
	return left
}

// remove must be called with mu held.
func (r *TopicRegistry) remove(roomID, sessionID string) {
	subs := r.topics[roomID]
	delete(subs, sessionID)
	if len(subs) == 0 {
		delete(r.topics, roomID)
	}

	rooms := r.rooms[sessionID]
	delete(rooms, roomID)
	if len(rooms) == 0 {
		delete(r.rooms, sessionID)
	}
	metrics.ActiveSubscriptions.Dec()
}

// SubscribersOf returns a snapshot of roomID's subscribers. The slice is
// owned by the caller and is not affected by later churn.
func (r *TopicRegistry) SubscribersOf(roomID string) []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.topics[roomID]
	if len(subs) == 0 {
		return nil
	}
	snapshot := make([]Subscriber, 0, len(subs))
	for _, sub := range subs {
		snapshot = append(snapshot, sub)
	}
	return snapshot
}

// RoomsOf lists the rooms a session is subscribed to, sorted.
func (r *TopicRegistry) RoomsOf(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]string, 0, len(r.rooms[sessionID]))
	for roomID := range r.rooms[sessionID] {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)
	return rooms
}
