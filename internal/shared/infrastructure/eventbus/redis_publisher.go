package eventbus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes events with Redis PUBLISH. Each routing key gets
// its own channel, "<prefix>:<routing key>", so subscribers can PSUBSCRIBE
// to "<prefix>:*".
type RedisPublisher struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisPublisher parses url and verifies the server answers PING.
func NewRedisPublisher(ctx context.Context, url, prefix string, logger *slog.Logger) (*RedisPublisher, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	p := NewRedisPublisherFromClient(client, prefix, logger)
	p.logger.Info("Redis publisher connected", "prefix", p.prefix)
	return p, nil
}

// NewRedisPublisherFromClient wraps an existing client. An empty prefix
// selects DefaultExchange.
func NewRedisPublisherFromClient(client *redis.Client, prefix string, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = DefaultExchange
	}
	return &RedisPublisher{client: client, prefix: prefix, logger: logger}
}

// Channel returns the Redis channel used for routingKey.
func (p *RedisPublisher) Channel(routingKey string) string {
	return p.prefix + ":" + routingKey
}

// Publish sends payload to the routing key's channel.
func (p *RedisPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	channel := p.Channel(routingKey)
	receivers, err := p.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to publish message",
			"channel", channel,
			"error", err,
		)
		return err
	}

	p.logger.DebugContext(ctx, "message published",
		"channel", channel,
		"receivers", receivers,
		"size", len(payload),
	)
	return nil
}

// Ping checks the Redis connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
