package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sodav-monitor/sodav/pkg/observability"
	"github.com/sodav-monitor/sodav/pkg/storage"
)

// NewRedisClient creates a Redis client from the storage config and pings it.
func NewRedisClient(ctx context.Context, config storage.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB > 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w: %w", storage.ErrUnavailable, err)
	}
	return client, nil
}

// EventBroker fans event payloads out across API replicas over Redis
// pub/sub. Payloads are opaque bytes.
type EventBroker struct {
	client  redis.UniversalClient
	channel string
	logger  *observability.Logger
}

// NewEventBroker creates a broker on channel, "sodav:events" when empty.
func NewEventBroker(client redis.UniversalClient, channel string, logger *observability.Logger) *EventBroker {
	if channel == "" {
		channel = "sodav:events"
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, io.Discard)
	}
	return &EventBroker{client: client, channel: channel, logger: logger}
}

// Publish sends one payload to every subscriber.
func (b *EventBroker) Publish(ctx context.Context, payload []byte) error {
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w: %w", b.channel, storage.ErrUnavailable, err)
	}
	return nil
}

// Subscribe calls handle for every payload until ctx is done. The
// subscription is confirmed before Subscribe starts delivering, so
// messages published after ready is closed are not missed.
func (b *EventBroker) Subscribe(ctx context.Context, ready chan<- struct{}, handle func([]byte)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w: %w", b.channel, storage.ErrUnavailable, err)
	}
	if ready != nil {
		close(ready)
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("redis subscription closed")
			}
			func() {
				defer observability.RecoverPanic(b.logger, "event broker handler")
				handle([]byte(msg.Payload))
			}()
		}
	}
}
