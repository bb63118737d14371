// ABOUTME: In-memory fan-out of committed messages to live conversation subscribers
// ABOUTME: Bounded per-subscriber buffers; a subscriber that falls behind is failed, not blocked on

package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Qhojoblinks-7/vukalink-sub000/internal/store"
)

// DefaultSubscriberBuffer is the per-subscriber channel buffer used when
// the broadcaster is constructed with a non-positive size.
const DefaultSubscriberBuffer = 64

// SubscriptionState describes where a subscription is in its lifecycle.
type SubscriptionState int32

const (
	// StateSubscribed means the subscription is live and receiving events.
	StateSubscribed SubscriptionState = iota
	// StateClosed is the terminal state after a voluntary unsubscribe or
	// broadcaster shutdown.
	StateClosed
	// StateFailed is the terminal state after the subscriber fell behind
	// its buffer. The subscriber must re-subscribe and reconcile missed
	// messages via FetchMessages; re-subscription is never automatic.
	StateFailed
)

// Subscription is a live handle on a conversation's message feed.
// Events() yields committed messages in commit order until the channel
// is closed; State() then tells the subscriber whether it closed cleanly
// or was failed for falling behind.
type Subscription struct {
	ID             string
	ConversationID string

	ch chan *store.Message

	mu    sync.Mutex
	state SubscriptionState
}

// Events returns the channel of committed messages. It is closed when
// the subscription reaches a terminal state.
func (s *Subscription) Events() <-chan *store.Message {
	return s.ch
}

// State returns the subscription's current lifecycle state.
func (s *Subscription) State() SubscriptionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// terminate moves the subscription into a terminal state and closes the
// event channel. Idempotent; the first terminal state wins.
func (s *Subscription) terminate(state SubscriptionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSubscribed {
		return false
	}
	s.state = state
	close(s.ch)
	return true
}

// offer attempts a non-blocking delivery. The send happens under the same
// lock as terminate's close, so a concurrent unsubscribe can never turn
// it into a send on a closed channel. Returns overflow=true when the
// buffer was full.
func (s *Subscription) offer(msg *store.Message) (delivered, overflow bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSubscribed {
		return false, false
	}
	select {
	case s.ch <- msg:
		return true, false
	default:
		return false, true
	}
}

// Broadcaster provides in-memory pub/sub for committed messages, keyed
// by conversation ID. It owns the subscription registry; subscribers
// hold only the Subscription handle.
//
// Delivery is at-least-once: after a reconnect a subscriber may see a
// message twice and must de-duplicate by message ID. Messages published
// while a subscriber is disconnected are not replayed here; the store is
// the durability mechanism.
type Broadcaster struct {
	mu         sync.RWMutex
	subs       map[string]map[string]*Subscription // conversationID -> subID -> sub
	bufferSize int
	logger     *slog.Logger
}

// NewBroadcaster creates a broadcaster with the given per-subscriber
// buffer size (<= 0 selects DefaultSubscriberBuffer). Pass nil logger
// for default.
func NewBroadcaster(bufferSize int, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}
	return &Broadcaster{
		subs:       make(map[string]map[string]*Subscription),
		bufferSize: bufferSize,
		logger:     logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for messages committed to the given
// conversation. The subscription is automatically closed when ctx is
// cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, conversationID string) *Subscription {
	sub := &Subscription{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		ch:             make(chan *store.Message, b.bufferSize),
		state:          StateSubscribed,
	}

	b.mu.Lock()
	if _, ok := b.subs[conversationID]; !ok {
		b.subs[conversationID] = make(map[string]*Subscription)
	}
	b.subs[conversationID][sub.ID] = sub
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		"conversation_id", conversationID,
		"sub_id", sub.ID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(conversationID, sub.ID)
	}()

	return sub
}

// SubscriberCount reports how many live subscriptions the conversation
// currently has.
func (b *Broadcaster) SubscriberCount(conversationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[conversationID])
}

// Publish delivers a committed message to all live subscribers of the
// conversation, in call order. Non-blocking: a subscriber whose buffer
// is full is failed and removed so the publisher never waits and memory
// stays bounded.
func (b *Broadcaster) Publish(conversationID string, msg *store.Message) {
	b.mu.RLock()
	subs, ok := b.subs[conversationID]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return
	}

	// Copy under read lock to avoid holding it during sends
	targets := make([]*Subscription, 0, len(subs))
	for _, sub := range subs {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	var failed []*Subscription
	for _, sub := range targets {
		if _, overflow := sub.offer(msg); overflow {
			failed = append(failed, sub)
		}
	}

	for _, sub := range failed {
		if sub.terminate(StateFailed) {
			b.remove(conversationID, sub.ID)
			b.logger.Warn("subscriber fell behind, subscription failed",
				"conversation_id", conversationID,
				"sub_id", sub.ID,
				"message_id", msg.ID)
		}
	}
}

// Unsubscribe closes a subscription cleanly.
func (b *Broadcaster) Unsubscribe(conversationID, subID string) {
	b.mu.Lock()
	subs, ok := b.subs[conversationID]
	if !ok {
		b.mu.Unlock()
		return
	}
	sub, exists := subs[subID]
	if !exists {
		b.mu.Unlock()
		return
	}
	delete(subs, subID)
	if len(subs) == 0 {
		delete(b.subs, conversationID)
	}
	b.mu.Unlock()

	sub.terminate(StateClosed)

	b.logger.Debug("subscriber removed",
		"conversation_id", conversationID,
		"sub_id", subID)
}

// remove deletes a subscription from the registry without touching its state.
func (b *Broadcaster) remove(conversationID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subs[conversationID]
	if !ok {
		return
	}
	delete(subs, subID)
	if len(subs) == 0 {
		delete(b.subs, conversationID)
	}
}

// Close shuts down the broadcaster and closes all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	var all []*Subscription
	for convID, subs := range b.subs {
		for subID, sub := range subs {
			all = append(all, sub)
			delete(subs, subID)
		}
		delete(b.subs, convID)
	}
	b.mu.Unlock()

	for _, sub := range all {
		sub.terminate(StateClosed)
	}

	b.logger.Debug("broadcaster closed")
}

// Ensure Broadcaster satisfies the service's Publisher contract
var _ Publisher = (*Broadcaster)(nil)
