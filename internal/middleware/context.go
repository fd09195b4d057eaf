package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// UserIDHeader: заголовок, в котором шлюз передаёт идентификатор пользователя.
const UserIDHeader = "X-User-Id"

// GetUserID возвращает user_id из контекста (устанавливается Identify).
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// Identify берёт пользователя из X-User-Id (для WebSocket допускается ?user_id=, браузер не
// умеет ставить заголовки при upgrade). Без идентификатора: 401.
// Аутентификация выполняется до нас (шлюз), здесь только идентификация.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" && strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			userID = strings.TrimSpace(r.URL.Query().Get("user_id"))
		}
		if userID == "" {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}
