package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/eventchat/internal/chat"
	"github.com/eventchat/internal/middleware"
	"github.com/eventchat/internal/ws"
)

// RouterConfig: то, что роутеру нужно из конфигурации сервиса.
type RouterConfig struct {
	CORSAllowedOrigins string
	WSSendBufferSize   int
	RateLimitPerMinute int
}

func corsOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// NewRouter собирает REST и WebSocket поверх движка чатов.
func NewRouter(engine *chat.Engine, hub *ws.Hub, cfg RouterConfig) http.Handler {
	chatH := NewChatHandler(engine)
	msgH := NewMessageHandler(engine)
	wsH := NewWSHandler(hub, cfg.CORSAllowedOrigins, cfg.WSSendBufferSize)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket, иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.UserIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })

	r.Group(func(r chi.Router) {
		r.Use(middleware.Identify)
		r.Get("/ws", wsH.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))

			r.Get("/api/rooms", chatH.GetUserRooms)
			r.Post("/api/rooms", chatH.CreateRoom)
			r.Post("/api/rooms/private", chatH.GetOrCreatePrivateRoom)
			r.Get("/api/rooms/{roomId}", chatH.GetRoom)
			r.Delete("/api/rooms/{roomId}", chatH.DeleteRoom)
			r.Get("/api/parties/{partyId}/room", chatH.GetPartyRoom)
			r.Get("/api/rooms/{roomId}/participants", chatH.GetParticipants)
			r.Post("/api/rooms/{roomId}/participants", chatH.AddParticipant)
			r.Delete("/api/rooms/{roomId}/participants/{userId}", chatH.RemoveParticipant)

			r.Get("/api/rooms/{roomId}/messages", msgH.GetMessages)
			r.Post("/api/rooms/{roomId}/messages", msgH.SendMessage)
			r.Post("/api/rooms/{roomId}/read", msgH.MarkAsRead)
			r.Get("/api/rooms/{roomId}/unread", msgH.GetUnreadCount)
			r.Put("/api/rooms/{roomId}/typing", msgH.SetTyping)
			r.Get("/api/unread", msgH.GetTotalUnreadCount)

			r.Get("/api/messages/{messageId}", msgH.GetMessage)
			r.Put("/api/messages/{messageId}", msgH.EditMessage)
			r.Delete("/api/messages/{messageId}", msgH.DeleteMessage)
			r.Get("/api/messages/{messageId}/reactions", msgH.GetReactions)
			r.Post("/api/messages/{messageId}/reactions/{emoji}", msgH.AddReaction)
			r.Delete("/api/messages/{messageId}/reactions/{emoji}", msgH.RemoveReaction)
		})
	})

	return r
}
