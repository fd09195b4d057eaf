// Package relay публикует события чата в Redis pub/sub, чтобы их могли читать другие процессы
// (push-воркеры, другие инстансы). Публикация асинхронная: движок никогда не ждёт Redis.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eventchat/internal/event"
	"github.com/eventchat/internal/logger"
)

const (
	DefaultChannel = "eventchat:events"
	DefaultBuffer  = 1024
	publishTimeout = 2 * time.Second
)

type Publisher struct {
	cli     *redis.Client
	channel string
	queue   chan event.Event

	mu      sync.Mutex
	dropped uint64
}

// New подключается к Redis по URL и проверяет соединение.
func New(ctx context.Context, url, channel string, buffer int) (*Publisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newPublisher(cli, channel, buffer), nil
}

func newPublisher(cli *redis.Client, channel string, buffer int) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Publisher{cli: cli, channel: channel, queue: make(chan event.Event, buffer)}
}

func (p *Publisher) Channel() string { return p.channel }

// Publish ставит событие в очередь. При переполненной очереди событие теряется.
func (p *Publisher) Publish(_ context.Context, e event.Event) {
	select {
	case p.queue <- e:
	default:
		p.mu.Lock()
		p.dropped++
		n := p.dropped
		p.mu.Unlock()
		// не чаще одного сообщения на каждые 100 потерь
		if n == 1 || n%100 == 0 {
			logger.Errorf("relay: queue full, dropped %d events so far", n)
		}
	}
}

// Dropped: сколько событий потеряно из-за переполнения.
func (p *Publisher) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Encode: формат сообщения в канале: JSON event.Event.
func Encode(e event.Event) ([]byte, error) {
	return json.Marshal(e)
}

// Decode: обратное к Encode, для подписчиков канала.
func Decode(data []byte) (event.Event, error) {
	var e event.Event
	if err := json.Unmarshal(data, &e); err != nil {
		return event.Event{}, fmt.Errorf("relay decode: %w", err)
	}
	return e, nil
}

// Run отправляет события из очереди в Redis до отмены ctx. Ошибки Redis логируются, событие
// при этом теряется.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-p.queue:
			p.send(ctx, e)
		}
	}
}

func (p *Publisher) send(ctx context.Context, e event.Event) {
	data, err := Encode(e)
	if err != nil {
		logger.Errorf("relay: encode %s: %v", e.Type, err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.cli.Publish(ctx, p.channel, data).Err(); err != nil {
		logger.Errorf("relay: publish %s room=%s: %v", e.Type, e.RoomID, err)
	}
}

// Subscribe читает события канала (для воркеров и отладки). Канал закрывается вместе с ctx.
func (p *Publisher) Subscribe(ctx context.Context) <-chan event.Event {
	ps := p.cli.Subscribe(ctx, p.channel)
	out := make(chan event.Event, 64)
	go func() {
		defer close(out)
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				e, err := Decode([]byte(m.Payload))
				if err != nil {
					logger.Errorf("relay: %v", err)
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (p *Publisher) Close() error {
	return p.cli.Close()
}
