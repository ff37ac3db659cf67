package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/LEONFROMWORK/chat/store"
)

// Authenticator resolves the user of an HTTP request.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

type ctxKey struct{}

// UserID returns the user attached by the authentication middleware.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Handlers holds dependencies for the room and message endpoints.
type Handlers struct {
	service *Service
	auth    Authenticator
	logger  *slog.Logger
}

func NewHandlers(service *Service, auth Authenticator, logger *slog.Logger) *Handlers {
	return &Handlers{
		service: service,
		auth:    auth,
		logger:  logger.With("component", "chat_http"),
	}
}

// Routes mounts the API on r.
func (h *Handlers) Routes(r chi.Router) {
	r.Route("/rooms", func(r chi.Router) {
		r.Use(h.requireUser)
		r.Get("/", h.HandleListRooms)
		r.Post("/", h.HandleCreateRoom)
		r.Get("/{roomID}/messages", h.HandleListMessages)
		r.Post("/{roomID}/messages", h.HandlePostMessage)
	})
}

func (h *Handlers) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := h.auth.Authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

// HandleListRooms returns every room, creating the default room first if
// there are none.
func (h *Handlers) HandleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.service.Rooms(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

type createRoomRequest struct {
	Name string `json:"name"`
}

func (h *Handlers) HandleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	room, err := h.service.CreateRoom(r.Context(), req.Name)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

// HandleListMessages returns the recent history of a room, oldest first.
func (h *Handlers) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.service.History(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

type postMessageRequest struct {
	Content string `json:"content"`
}

// HandlePostMessage creates a message and answers with its rendered form so
// the author can display it without waiting for the broadcast.
func (h *Handlers) HandlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	msg, err := h.service.Post(r.Context(), chi.URLParam(r, "roomID"), UserID(r.Context()), req.Content)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handlers) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvalidMessage), errors.Is(err, store.ErrInvalidRoom):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrDuplicateMessage), errors.Is(err, store.ErrRoomExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
