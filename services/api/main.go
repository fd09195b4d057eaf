package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eventchat/internal/chat"
	"github.com/eventchat/internal/config"
	"github.com/eventchat/internal/event"
	"github.com/eventchat/internal/handler"
	"github.com/eventchat/internal/logger"
	"github.com/eventchat/internal/relay"
	"github.com/eventchat/internal/startup"
	"github.com/eventchat/internal/ws"
)

func main() {
	logger.SetPrefix("api")
	logger.Info("starting chat API service")
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)
	defer logger.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sink event.Sink = event.Nop{}
	var pub *relay.Publisher
	if cfg.RelayEnabled() {
		p, err := startup.ConnectRelayWithRetry(ctx, cfg.Redis.URL, cfg.Redis.Channel, cfg.RelayBuffer, cfg.RelayConnectWait)
		if err != nil {
			logger.Errorf("relay disabled: %v", err)
		} else {
			pub = p
			sink = p
			logger.Infof("relay: publishing events to %s", p.Channel())
		}
	} else {
		logger.Info("relay: REDIS_URL not set, events are not published")
	}

	opts := []chat.Option{chat.WithSink(sink)}
	if cfg.TypingTTL > 0 {
		opts = append(opts, chat.WithTypingTTL(cfg.TypingTTL, cfg.TypingSweepInterval))
	}
	engine := chat.New(opts...)
	hub := ws.NewHub(engine, cfg.MaxWSConnections)

	srv := &http.Server{
		Addr: cfg.ServerAddr,
		Handler: handler.NewRouter(engine, hub, handler.RouterConfig{
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
			WSSendBufferSize:   cfg.WSSendBufferSize,
			RateLimitPerMinute: cfg.RateLimitPerMinute,
		}),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return hub.Run(gctx) })
	if pub != nil {
		g.Go(func() error { return pub.Run(gctx) })
	}
	g.Go(func() error {
		logger.Infof("server listening on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("server shutdown: %v", err)
		}
		logger.Info("server stopped accepting connections")
		return nil
	})

	err := g.Wait()
	if pub != nil {
		if cerr := pub.Close(); cerr != nil {
			logger.Errorf("relay close: %v", cerr)
		}
		if n := pub.Dropped(); n > 0 {
			logger.Warnf("relay: %d events dropped during run", n)
		}
	}
	if err != nil {
		logger.Errorf("server error: %v", err)
		logger.Flush(2 * time.Second)
		os.Exit(1)
	}
	logger.Info("chat API stopped")
}
