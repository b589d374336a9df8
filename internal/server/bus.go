package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const busChannel = "roomrelay:envelopes"

// busMessage is what travels over Redis. Origin lets an instance skip its
// own publications.
type busMessage struct {
	Origin  string `json:"origin"`
	Payload []byte `json:"payload"`
}

// RedisBus shares accepted envelopes between relay instances through Redis
// pub/sub.
type RedisBus struct {
	rdb    *redis.Client
	origin string
	log    *slog.Logger
}

// NewRedisBus connects to Redis and verifies connectivity.
func NewRedisBus(ctx context.Context, addr string, db int, logger *slog.Logger) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisBus{rdb: rdb, origin: uuid.NewString(), log: logger}, nil
}

// Publish sends payload to every other instance.
func (b *RedisBus) Publish(ctx context.Context, payload []byte) error {
	raw, err := json.Marshal(busMessage{Origin: b.origin, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode bus message: %w", err)
	}
	return b.rdb.Publish(ctx, busChannel, raw).Err()
}

// Subscribe calls fn for each payload published by another instance until
// ctx is done.
func (b *RedisBus) Subscribe(ctx context.Context, fn func(payload []byte)) {
	pubsub := b.rdb.Subscribe(ctx, busChannel)
	defer func() { _ = pubsub.Close() }()
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if payload, ok := b.decode(msg.Payload); ok {
				fn(payload)
			}
		}
	}
}

func (b *RedisBus) decode(raw string) ([]byte, bool) {
	var bm busMessage
	if err := json.Unmarshal([]byte(raw), &bm); err != nil {
		b.log.Warn("relay.bus.decode", "err", err)
		return nil, false
	}
	if bm.Origin == b.origin || len(bm.Payload) == 0 {
		return nil, false
	}
	return bm.Payload, true
}

// Close shuts down the Redis connection.
func (b *RedisBus) Close() error { return b.rdb.Close() }
