package startup

import (
	"context"
	"time"

	"github.com/eventchat/internal/logger"
	"github.com/eventchat/internal/relay"
)

// ConnectRelayWithRetry подключает relay к Redis с повторами и экспоненциальной паузой.
// Возвращает ошибку, если за maxWait подключиться не удалось или ctx отменён.
func ConnectRelayWithRetry(ctx context.Context, redisURL, channel string, buffer int, maxWait time.Duration) (*relay.Publisher, error) {
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		p, err := relay.New(attemptCtx, redisURL, channel, buffer)
		cancel()
		if err == nil {
			return p, nil
		}
		if time.Now().After(deadline) {
			logger.Errorf("relay: redis (gave up after %v): %v", maxWait, err)
			return nil, err
		}
		logger.Errorf("relay: redis connect failed, retry in %v: %v", backoff, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}
