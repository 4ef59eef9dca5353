package eventbus

import (
	"context"
	"sync"
)

// MemBus is an in-process fake Bus for tests: direct channel fan-out, no
// network, no encoding round trip.
type MemBus struct {
	mu   sync.Mutex
	subs map[string][]*memSubscription
}

// NewMemBus returns an empty in-memory Bus.
func NewMemBus() *MemBus {
	return &MemBus{subs: make(map[string][]*memSubscription)}
}

func (b *MemBus) Publish(_ context.Context, channel string, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs[channel] {
		select {
		case sub.ch <- event:
		default:
		}
	}
	return nil
}

func (b *MemBus) Subscribe(_ context.Context, channel string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &memSubscription{bus: b, channel: channel, ch: make(chan Event, 64)}
	b.subs[channel] = append(b.subs[channel], sub)
	return sub, nil
}

type memSubscription struct {
	bus     *MemBus
	channel string
	ch      chan Event
	once    sync.Once
}

func (s *memSubscription) Events() <-chan Event { return s.ch }

func (s *memSubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		subs := s.bus.subs[s.channel]
		for i, sub := range subs {
			if sub == s {
				s.bus.subs[s.channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(s.ch)
	})
	return nil
}

var _ Bus = (*MemBus)(nil)
