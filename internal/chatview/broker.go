// Package chatview turns a channel's message stream into
// rendering-ready entries: name headers, wrapped lines, stable
// chronological order, scroll pinning and backwards pagination.
package chatview

import (
	"sync"

	"palaver/internal/types"
)

// Broker fans incoming messages out to channel subscriptions. Closing
// a subscription detaches it permanently, so a torn-down view can
// never be touched by a late delivery.
type Broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]func(types.ChatMessage)
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[int]func(types.ChatMessage){}}
}

// Subscribe registers a callback for one channel's messages. The
// callback runs on the dispatching goroutine; keep it quick.
func (b *Broker) Subscribe(channelID string, fn func(types.ChatMessage)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[channelID] == nil {
		b.subs[channelID] = map[int]func(types.ChatMessage){}
	}
	b.nextID++
	id := b.nextID
	b.subs[channelID][id] = fn
	return &Subscription{broker: b, channelID: channelID, id: id}
}

// Dispatch delivers a message to the subscribers of its channel.
func (b *Broker) Dispatch(msg types.ChatMessage) {
	b.mu.Lock()
	fns := make([]func(types.ChatMessage), 0, len(b.subs[msg.ChannelID]))
	for _, fn := range b.subs[msg.ChannelID] {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}

// HasSubscribers reports whether anyone is watching the channel, e.g.
// to decide if a message should raise a notification instead.
func (b *Broker) HasSubscribers(channelID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channelID]) > 0
}

type Subscription struct {
	broker    *Broker
	channelID string
	id        int
	once      sync.Once
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.mu.Lock()
		defer s.broker.mu.Unlock()
		delete(s.broker.subs[s.channelID], s.id)
		if len(s.broker.subs[s.channelID]) == 0 {
			delete(s.broker.subs, s.channelID)
		}
	})
}
