package handler

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eventchat/internal/chat"
	"github.com/eventchat/internal/logger"
	"github.com/eventchat/internal/middleware"
	"github.com/eventchat/internal/model"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// MessageHandler: сообщения, реакции, прочтение и «печатает».
type MessageHandler struct {
	engine *chat.Engine
}

func NewMessageHandler(engine *chat.Engine) *MessageHandler {
	return &MessageHandler{engine: engine}
}

// memberMessage находит сообщение и проверяет, что текущий пользователь состоит в его комнате.
func (h *MessageHandler) memberMessage(w http.ResponseWriter, r *http.Request) (model.ChatMessage, bool) {
	msg, ok := h.engine.GetMessage(r.Context(), chi.URLParam(r, "messageId"))
	if !ok {
		writeError(w, http.StatusNotFound, "message not found")
		return model.ChatMessage{}, false
	}
	if _, ok := memberRoom(w, r, h.engine, msg.ChatRoomID); !ok {
		return model.ChatMessage{}, false
	}
	return msg, true
}

// GetMessages: ?limit= (по умолчанию 50, не больше 200), ?before= RFC3339Nano для пагинации назад.
func (h *MessageHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if _, ok := memberRoom(w, r, h.engine, roomID); !ok {
		return
	}
	limit := queryInt(r, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	before, err := queryTime(r, "before")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid before")
		return
	}
	msgs, err := h.engine.GetMessages(r.Context(), roomID, limit, before)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

type sendMessageRequest struct {
	Content   string            `json:"content"`
	Type      model.MessageType `json:"type"`
	MediaURL  string            `json:"media_url"`
	ReplyToID string            `json:"reply_to_id"`
}

func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("SendMessage", time.Now())()
	roomID := chi.URLParam(r, "roomId")
	if _, ok := memberRoom(w, r, h.engine, roomID); !ok {
		return
	}
	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := h.engine.SendMessage(r.Context(), chat.SendMessageRequest{
		RoomID:    roomID,
		SenderID:  middleware.GetUserID(r.Context()),
		Content:   req.Content,
		Type:      req.Type,
		MediaURL:  req.MediaURL,
		ReplyToID: req.ReplyToID,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.memberMessage(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

type editMessageRequest struct {
	Content string `json:"content"`
}

// EditMessage: только автор.
func (h *MessageHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.memberMessage(w, r)
	if !ok {
		return
	}
	if msg.SenderID != middleware.GetUserID(r.Context()) {
		writeError(w, http.StatusForbidden, "can only edit own messages")
		return
	}
	var req editMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	edited, err := h.engine.EditMessage(r.Context(), msg.ID, req.Content)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, edited)
}

// DeleteMessage: только автор; отсутствующее сообщение: 204.
func (h *MessageHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "messageId")
	if msg, ok := h.engine.GetMessage(r.Context(), id); ok && msg.SenderID != middleware.GetUserID(r.Context()) {
		writeError(w, http.StatusForbidden, "can only delete own messages")
		return
	}
	if err := h.engine.DeleteMessage(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) GetReactions(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.memberMessage(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.engine.GetReactions(r.Context(), msg.ID))
}

func emojiParam(r *http.Request) string {
	raw := chi.URLParam(r, "emoji")
	if e, err := url.PathUnescape(raw); err == nil {
		return e
	}
	return raw
}

func (h *MessageHandler) AddReaction(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.memberMessage(w, r)
	if !ok {
		return
	}
	if err := h.engine.AddReaction(r.Context(), msg.ID, middleware.GetUserID(r.Context()), emojiParam(r)); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.GetReactions(r.Context(), msg.ID))
}

// RemoveReaction идемпотентен: отсутствующее сообщение или реакция: 204.
func (h *MessageHandler) RemoveReaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "messageId")
	if err := h.engine.RemoveReaction(r.Context(), id, middleware.GetUserID(r.Context()), emojiParam(r)); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type markAsReadRequest struct {
	MessageID string `json:"message_id"`
}

type unreadResponse struct {
	RoomID            string `json:"room_id,omitempty"`
	Unread            int    `json:"unread"`
	LastReadMessageID string `json:"last_read_message_id,omitempty"`
}

func (h *MessageHandler) unread(w http.ResponseWriter, r *http.Request, roomID string) {
	userID := middleware.GetUserID(r.Context())
	n, err := h.engine.GetUnreadCount(r.Context(), roomID, userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	last, _ := h.engine.GetLastReadMessageID(r.Context(), roomID, userID)
	writeJSON(w, http.StatusOK, unreadResponse{RoomID: roomID, Unread: n, LastReadMessageID: last})
}

// MarkAsRead отвечает актуальным счётчиком непрочитанных комнаты.
func (h *MessageHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if _, ok := memberRoom(w, r, h.engine, roomID); !ok {
		return
	}
	var req markAsReadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.engine.MarkAsRead(r.Context(), roomID, middleware.GetUserID(r.Context()), req.MessageID); err != nil {
		writeEngineError(w, err)
		return
	}
	h.unread(w, r, roomID)
}

func (h *MessageHandler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if _, ok := memberRoom(w, r, h.engine, roomID); !ok {
		return
	}
	h.unread(w, r, roomID)
}

func (h *MessageHandler) GetTotalUnreadCount(w http.ResponseWriter, r *http.Request) {
	n := h.engine.GetTotalUnreadCount(r.Context(), middleware.GetUserID(r.Context()))
	writeJSON(w, http.StatusOK, unreadResponse{Unread: n})
}

type typingRequest struct {
	IsTyping bool `json:"is_typing"`
}

func (h *MessageHandler) SetTyping(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	var req typingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IsTyping {
		if _, ok := memberRoom(w, r, h.engine, roomID); !ok {
			return
		}
	}
	if err := h.engine.SetTyping(r.Context(), roomID, middleware.GetUserID(r.Context()), req.IsTyping); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.GetTypingUsers(r.Context(), roomID))
}
