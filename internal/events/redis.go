package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jonathan/purchase-tracker/internal/logging"
)

// RedisRelay carries envelopes between processes over a Redis pub/sub channel.
type RedisRelay struct {
	log     *logging.Logger
	rdb     *goredis.Client
	channel string
}

// NewRedisRelay connects to addr and verifies the connection.
func NewRedisRelay(ctx context.Context, log *logging.Logger, addr, channel string) (*RedisRelay, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if channel == "" {
		channel = "job-events"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisRelay{
		log:     logging.OrNop(log).With("component", "redis_relay"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

// Publish sends env to every subscribed process.
func (r *RedisRelay) Publish(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	return r.rdb.Publish(ctx, r.channel, raw).Err()
}

// Start subscribes to the channel and calls onEnvelope for each message until ctx ends.
func (r *RedisRelay) Start(ctx context.Context, onEnvelope func(Envelope)) error {
	if onEnvelope == nil {
		return fmt.Errorf("onEnvelope callback required")
	}

	sub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
					r.log.Warn("bad relay payload", "error", err)
					continue
				}
				onEnvelope(env)
			}
		}
	}()

	return nil
}

// Close releases the Redis client.
func (r *RedisRelay) Close() error {
	return r.rdb.Close()
}
