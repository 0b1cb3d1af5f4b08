package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/promptfunc/promptfunc/internal/metrics"
)

// payloadField is the stream entry field holding the JSON message.
const payloadField = "payload"

// RedisPublisher appends results to a Redis stream.
type RedisPublisher struct {
	client *redis.Client
	stream string
}

// NewRedis connects using a redis:// URL and appends to stream.
func NewRedis(ctx context.Context, url, stream string) (*RedisPublisher, error) {
	if stream == "" {
		return nil, errEmptyQueue
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisWithClient(client, stream), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, stream string) *RedisPublisher {
	return &RedisPublisher{client: client, stream: stream}
}

// Publish runs XADD <stream> * payload <json>.
func (p *RedisPublisher) Publish(ctx context.Context, msg OutMessage) error {
	err := p.publish(ctx, msg)
	metrics.RecordQueuePublish("redis", err == nil)
	return err
}

func (p *RedisPublisher) publish(ctx context.Context, msg OutMessage) error {
	if p == nil || p.client == nil {
		return errNilPublisher
	}
	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{payloadField: string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

// Close closes the underlying client.
func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
