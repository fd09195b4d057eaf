package handler

import (
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eventchat/internal/chat"
	"github.com/eventchat/internal/logger"
	"github.com/eventchat/internal/middleware"
	"github.com/eventchat/internal/model"
)

// ChatHandler: комнаты и участники.
type ChatHandler struct {
	engine *chat.Engine
}

func NewChatHandler(engine *chat.Engine) *ChatHandler {
	return &ChatHandler{engine: engine}
}

// memberRoom возвращает комнату, если текущий пользователь в ней состоит; иначе пишет 404/403.
func memberRoom(w http.ResponseWriter, r *http.Request, engine *chat.Engine, roomID string) (model.ChatRoom, bool) {
	room, ok := engine.GetRoom(r.Context(), roomID)
	if !ok {
		writeError(w, http.StatusNotFound, "room not found")
		return model.ChatRoom{}, false
	}
	if !room.HasParticipant(middleware.GetUserID(r.Context())) {
		writeError(w, http.StatusForbidden, "not a member")
		return model.ChatRoom{}, false
	}
	return room, true
}

// CreateRoom создаёт комнату; текущий пользователь всегда добавляется первым участником.
func (h *ChatHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("CreateRoom", time.Now())()
	var req chat.CreateRoomRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Participants = append([]string{middleware.GetUserID(r.Context())}, req.Participants...)
	room, err := h.engine.CreateRoom(r.Context(), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

type privateRoomRequest struct {
	UserID string `json:"user_id"`
}

// GetOrCreatePrivateRoom: личный чат текущего пользователя с user_id: 201 при создании, 200 если уже был.
func (h *ChatHandler) GetOrCreatePrivateRoom(w http.ResponseWriter, r *http.Request) {
	var req privateRoomRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	room, created, err := h.engine.GetOrCreatePrivateRoom(r.Context(), middleware.GetUserID(r.Context()), req.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, room)
}

func (h *ChatHandler) GetUserRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.GetUserRooms(r.Context(), middleware.GetUserID(r.Context())))
}

func (h *ChatHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := memberRoom(w, r, h.engine, chi.URLParam(r, "roomId"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// GetPartyRoom отдаёт event-чат партии. Участие не проверяется: комнату ищут, чтобы в неё вступить.
func (h *ChatHandler) GetPartyRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := h.engine.GetRoomForParty(r.Context(), chi.URLParam(r, "partyId"))
	if !ok {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// DeleteRoom идемпотентен: отсутствующая комната: 204.
func (h *ChatHandler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if room, ok := h.engine.GetRoom(r.Context(), roomID); ok && !room.HasParticipant(middleware.GetUserID(r.Context())) {
		writeError(w, http.StatusForbidden, "not a member")
		return
	}
	if err := h.engine.DeleteRoom(r.Context(), roomID); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) GetParticipants(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if _, ok := memberRoom(w, r, h.engine, roomID); !ok {
		return
	}
	p, err := h.engine.GetParticipants(r.Context(), roomID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type addParticipantRequest struct {
	UserID string `json:"user_id"`
}

// AddParticipant: в event-чат можно вступить самому (тело можно не передавать); в остальные комнаты добавляют участники.
func (h *ChatHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	var req addParticipantRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	current := middleware.GetUserID(r.Context())
	if req.UserID == "" {
		req.UserID = current
	}
	room, ok := h.engine.GetRoom(r.Context(), roomID)
	if !ok {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	selfJoin := room.IsEventChat && req.UserID == current
	if !selfJoin && !room.HasParticipant(current) {
		writeError(w, http.StatusForbidden, "not a member")
		return
	}
	if err := h.engine.AddParticipant(r.Context(), roomID, req.UserID); err != nil {
		writeEngineError(w, err)
		return
	}
	p, _ := h.engine.GetParticipants(r.Context(), roomID)
	writeJSON(w, http.StatusOK, p)
}

// RemoveParticipant: участник может удалить любого (в том числе выйти сам).
func (h *ChatHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	userID := chi.URLParam(r, "userId")
	if room, ok := h.engine.GetRoom(r.Context(), roomID); ok {
		current := middleware.GetUserID(r.Context())
		if userID != current && !slices.Contains(room.Participants, current) {
			writeError(w, http.StatusForbidden, "not a member")
			return
		}
	}
	if err := h.engine.RemoveParticipant(r.Context(), roomID, userID); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
