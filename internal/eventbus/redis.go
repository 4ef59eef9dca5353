package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus implements Bus on Redis pub/sub.
type RedisBus struct {
	rdb *redis.Client
}

// NewRedisBus wraps an already-configured go-redis client.
func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, event Event) error {
	payload, err := encode(event)
	if err != nil {
		return fmt.Errorf("eventbus: encode: %w", err)
	}
	return b.rdb.Publish(ctx, channel, payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("eventbus: subscribe %s: %w", channel, err)
	}
	sub := &redisSubscription{
		pubsub: pubsub,
		ch:     make(chan Event, 64),
		done:   make(chan struct{}),
	}
	go sub.run()
	return sub, nil
}

type redisSubscription struct {
	pubsub   *redis.PubSub
	ch       chan Event
	done     chan struct{}
	closeOne sync.Once
}

func (s *redisSubscription) Events() <-chan Event { return s.ch }

func (s *redisSubscription) run() {
	defer close(s.ch)
	redisCh := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-redisCh:
			if !ok {
				return
			}
			event, err := decode([]byte(msg.Payload))
			if err != nil {
				continue
			}
			select {
			case s.ch <- event:
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSubscription) Close() error {
	s.closeOne.Do(func() { close(s.done) })
	return s.pubsub.Close()
}

var _ Bus = (*RedisBus)(nil)
