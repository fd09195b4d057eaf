package middleware

import (
	"net/http"
	"time"

	"github.com/eventchat/internal/logger"
)

// RequestLog логирует каждый HTTP-запрос: method, path, статус и время выполнения
// (асинхронно, не блокирует). Ответы 5xx пишутся как ошибки.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := wrap(w)
		defer func() {
			if rw.status >= http.StatusInternalServerError {
				logger.Errorf("http %s %s status=%d duration_ms=%d", r.Method, r.URL.Path, rw.status, time.Since(start).Milliseconds())
				return
			}
			logger.Debugf("http %s %s status=%d", r.Method, r.URL.Path, rw.status)
			logger.LogDuration("http "+r.Method+" "+r.URL.Path, start)
		}()
		next.ServeHTTP(rw, r)
	})
}
