package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/LEONFROMWORK/chat/config"
	"github.com/LEONFROMWORK/chat/metrics"
	"github.com/LEONFROMWORK/chat/protocol"
)

// RoomChecker is the persistence lookup used before a subscription is made.
type RoomChecker interface {
	RoomExists(ctx context.Context, roomID string) (bool, error)
}

// Handler upgrades authenticated requests to Connection Sessions and serves
// their subscribe, unsubscribe and ping requests.
type Handler struct {
	manager  *ClientManager
	registry *TopicRegistry
	rooms    RoomChecker
	auth     Authenticator
	cfg      *config.WebSocketConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
	now      func() time.Time
}

func NewHandler(manager *ClientManager, rooms RoomChecker, auth Authenticator, cfg *config.WebSocketConfig, logger *slog.Logger) *Handler {
	return &Handler{
		manager:  manager,
		registry: manager.Registry(),
		rooms:    rooms,
		auth:     auth,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: cfg.HandshakeTimeoutDuration(),
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "handler"),
		now:    time.Now,
	}
}

// HandleWebSocket authenticates the request, upgrades it and runs the read
// loop until the transport closes. Authentication failure refuses the
// upgrade; no session is created.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.Authenticate(r)
	if err != nil {
		metrics.AuthFailures.WithLabelValues(authFailureReason(err)).Inc()
		h.logger.Warn("Authentication failed", "remote_addr", r.RemoteAddr, "error", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	metrics.AuthSuccess.Inc()

	if h.manager.AtCapacity() {
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	if h.cfg.MessageSizeLimit > 0 {
		conn.SetReadLimit(int64(h.cfg.MessageSizeLimit))
	}

	cs := NewClientSession(uuid.NewString(), userID, conn, h.cfg, h.logger)
	if err := h.manager.AddClient(r.Context(), cs); err != nil {
		cs.Close(websocket.CloseTryAgainLater, "Session unavailable")
		return
	}
	defer h.manager.RemoveClient(cs)

	cs.ExtendReadDeadline()
	conn.SetPongHandler(cs.PongHandler())
	cs.Start()

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
				!errors.Is(err, net.ErrClosed) {
				cs.logger.Debug("Read error", "error", err)
			}
			return
		}
		cs.UpdateActivity()
		h.manager.RefreshSessionTTL(ctx, cs.ID)
		h.handleRequest(ctx, cs, data)
	}
}

func (h *Handler) handleRequest(ctx context.Context, cs *ClientSession, data []byte) {
	req, err := protocol.DecodeRequest(data)
	if err != nil {
		metrics.RequestsReceived.WithLabelValues("invalid").Inc()
		h.reply(cs, protocol.NewError(protocol.CodeInvalidRequest, err.Error()))
		return
	}

	switch req.Action {
	case protocol.ActionSubscribe:
		metrics.RequestsReceived.WithLabelValues(string(req.Action)).Inc()
		h.subscribe(ctx, cs, req.RoomID)
	case protocol.ActionUnsubscribe:
		metrics.RequestsReceived.WithLabelValues(string(req.Action)).Inc()
		if h.registry.Leave(req.RoomID, cs) {
			h.manager.SyncRooms(ctx, cs)
		}
	case protocol.ActionPing:
		metrics.RequestsReceived.WithLabelValues(string(req.Action)).Inc()
		h.reply(cs, protocol.NewPong(h.now()))
	default:
		metrics.RequestsReceived.WithLabelValues("unknown").Inc()
		h.reply(cs, protocol.NewError(protocol.CodeUnknownAction, "unknown action: "+string(req.Action)))
	}
}

// subscribe creates the Subscription only for rooms the store knows about.
// The welcome is queued after the registry update so the session cannot
// miss a broadcast issued after it.
func (h *Handler) subscribe(ctx context.Context, cs *ClientSession, roomID string) {
	exists, err := h.rooms.RoomExists(ctx, roomID)
	if err != nil {
		cs.logger.Error("Room lookup failed", "room_id", roomID, "error", err)
		h.reply(cs, protocol.NewError(protocol.CodeUnavailable, "room lookup failed"))
		return
	}
	if !exists {
		h.reply(cs, protocol.NewError(protocol.CodeRoomNotFound, "room not found: "+roomID))
		return
	}

	if h.registry.Subscribe(roomID, cs) {
		h.manager.SyncRooms(ctx, cs)
		cs.logger.Debug("Subscribed", "room_id", roomID)
	}
	h.reply(cs, protocol.NewWelcome(roomID, cs.UserID))
}

func (h *Handler) reply(cs *ClientSession, p protocol.Payload) {
	if err := cs.SendPayload(p); err != nil {
		cs.logger.Debug("Failed to queue reply", "type", p.Type, "error", err)
	}
}
