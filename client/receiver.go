package client

import (
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/LEONFROMWORK/chat/metrics"
	"github.com/LEONFROMWORK/chat/protocol"
)

// View is where accepted payloads end up.
type View interface {
	// Render displays a chat message. Called at most once per message id.
	Render(p protocol.Payload)
	Welcome(p protocol.Payload)
	Error(p protocol.Payload)
}

// Outcome says what the Receiver did with a payload.
type Outcome int

const (
	Rendered Outcome = iota
	DroppedSelfEcho
	DroppedDuplicate
	HandledControl
)

func (o Outcome) String() string {
	switch o {
	case Rendered:
		return "rendered"
	case DroppedSelfEcho:
		return "self_echo"
	case DroppedDuplicate:
		return "duplicate"
	case HandledControl:
		return "control"
	default:
		return "unknown"
	}
}

// Receiver filters pushed payloads before they reach the View. A chat
// message authored by the local user is dropped: the author already saw it
// from the post response. Every other message is rendered once per id.
type Receiver struct {
	userID string
	seen   *lru.Cache[int64, struct{}]
	view   View
	onPong func(protocol.Payload)
	logger *slog.Logger
}

// NewReceiver creates a Receiver remembering up to size message ids.
func NewReceiver(userID string, size int, view View, onPong func(protocol.Payload), logger *slog.Logger) (*Receiver, error) {
	seen, err := lru.New[int64, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("dedup record: %w", err)
	}
	return &Receiver{
		userID: userID,
		seen:   seen,
		view:   view,
		onPong: onPong,
		logger: logger.With("component", "receiver"),
	}, nil
}

// Seed marks ids that are already on screen, such as loaded history.
func (r *Receiver) Seed(ids ...int64) {
	for _, id := range ids {
		r.seen.Add(id, struct{}{})
	}
}

// Handle routes one payload.
func (r *Receiver) Handle(p protocol.Payload) Outcome {
	switch p.Type {
	case protocol.TypePong:
		if r.onPong != nil {
			r.onPong(p)
		}
		return HandledControl
	case protocol.TypeWelcome:
		r.view.Welcome(p)
		return HandledControl
	case protocol.TypeError:
		r.view.Error(p)
		return HandledControl
	}

	if p.SenderID == r.userID {
		metrics.DuplicatesDropped.WithLabelValues(DroppedSelfEcho.String()).Inc()
		return DroppedSelfEcho
	}
	if seen, _ := r.seen.ContainsOrAdd(p.MessageID, struct{}{}); seen {
		metrics.DuplicatesDropped.WithLabelValues(DroppedDuplicate.String()).Inc()
		r.logger.Debug("Duplicate message ignored", "message_id", p.MessageID, "room_id", p.RoomID)
		return DroppedDuplicate
	}
	r.view.Render(p)
	return Rendered
}
