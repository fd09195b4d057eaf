// Слушатель relay: читает события чатов из Redis pub/sub, пишет их в лог и считает по типам.
// Точка подключения для воркеров уведомлений и отладки relay.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/eventchat/internal/config"
	"github.com/eventchat/internal/event"
	"github.com/eventchat/internal/logger"
	"github.com/eventchat/internal/startup"
)

type stats struct {
	mu     sync.Mutex
	counts map[event.Type]int
	last   time.Time
}

func (s *stats) add(e event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[e.Type]++
	s.last = e.At
}

func (s *stats) handle(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	body := struct {
		Counts map[event.Type]int `json:"counts"`
		LastAt time.Time          `json:"last_at"`
	}{Counts: make(map[event.Type]int, len(s.counts)), LastAt: s.last}
	for k, v := range s.counts {
		body.Counts[k] = v
	}
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorf("stats encode: %v", err)
	}
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		logger.Errorf("health write: %v", err)
	}
}

func main() {
	logger.SetPrefix("relaytail")
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)
	if !cfg.RelayEnabled() {
		logger.Error("REDIS_URL not set")
		logger.Flush(time.Second)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := startup.ConnectRelayWithRetry(ctx, cfg.Redis.URL, cfg.Redis.Channel, 1, cfg.RelayConnectWait)
	if err != nil {
		logger.Errorf("redis: %v", err)
		logger.Flush(time.Second)
		os.Exit(1)
	}
	defer p.Close()
	logger.Infof("listening to %s", p.Channel())

	st := &stats{counts: make(map[event.Type]int)}
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Get("/health", health)
	r.Get("/stats", st.handle)

	addr := os.Getenv("RELAYTAIL_ADDR")
	if addr == "" {
		addr = ":8083"
	}
	srv := &http.Server{Addr: addr, Handler: r, ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("relaytail server: %v", err)
			stop()
		}
	}()

	for e := range p.Subscribe(ctx) {
		st.add(e)
		logger.Infof("%s room=%s message=%s user=%s", e.Type, e.RoomID, e.MessageID, e.UserID)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	logger.Info("relaytail stopped")
	logger.Flush(2 * time.Second)
}
