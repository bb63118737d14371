// ABOUTME: Service is the public contract for sending messages and reading conversation state
// ABOUTME: The only component that mutates the message log and unread counters together

package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Qhojoblinks-7/vukalink-sub000/internal/store"
)

// DefaultMaxMessageLength caps message bodies when no limit is configured.
const DefaultMaxMessageLength = 4000

// MessageStore defines what the service needs from storage.
type MessageStore interface {
	DirectoryStore

	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*store.ConversationSummary, error)

	AppendMessage(ctx context.Context, msg *store.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*store.Message, error)

	GetParticipant(ctx context.Context, conversationID, userID string) (*store.ParticipantLink, error)
	MarkRead(ctx context.Context, conversationID, userID string, at time.Time) error
}

// Publisher receives committed messages for real-time fan-out.
type Publisher interface {
	Publish(conversationID string, msg *store.Message)
}

// Service orchestrates the conversation directory, the message log, and
// the unread counters. All writes are single atomic store round trips;
// fan-out happens only after the write has durably committed and never
// blocks the sender.
type Service struct {
	store     MessageStore
	directory *Directory
	publisher Publisher
	sendLocks *convLocks
	maxLen    int
	logger    *slog.Logger
}

// New creates a messaging service. publisher may be nil to disable
// fan-out; maxMessageLength <= 0 selects DefaultMaxMessageLength.
// Pass nil logger for default.
func New(st MessageStore, publisher Publisher, maxMessageLength int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if maxMessageLength <= 0 {
		maxMessageLength = DefaultMaxMessageLength
	}
	return &Service{
		store:     st,
		directory: NewDirectory(st, logger),
		publisher: publisher,
		sendLocks: newConvLocks(),
		maxLen:    maxMessageLength,
		logger:    logger.With("component", "messaging"),
	}
}

// StartConversation resolves or creates the conversation between the two
// users. Repeated and concurrent calls for the same pair all receive the
// same conversation.
func (s *Service) StartConversation(ctx context.Context, userA, userB string) (*store.Conversation, error) {
	return s.directory.FindOrCreate(ctx, userA, userB)
}

// SendMessage validates and appends a message. The append, the
// conversation's last_message_at advance, and the recipients' unread
// increments become visible together or not at all; a rejected send
// leaves no trace. The committed message is handed to the publisher
// without waiting on subscribers.
func (s *Service) SendMessage(ctx context.Context, conversationID, senderID, content string) (*store.Message, error) {
	body := content
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyMessage
	}
	if len(body) > s.maxLen {
		return nil, ErrMessageTooLong
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
	}

	// Append and publish must not interleave across senders on the same
	// conversation, or a live subscriber could see commits out of order.
	// Scoped to one conversation; sends elsewhere are unaffected.
	unlock := s.sendLocks.lock(conversationID)
	defer unlock()

	if err := s.store.AppendMessage(ctx, msg); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, store.ErrNotAParticipant):
			return nil, ErrNotAParticipant
		}
		return nil, translateStoreErr(ctx, err)
	}

	s.logger.Debug("message sent",
		"message_id", msg.ID,
		"conversation_id", conversationID,
		"sender_id", senderID)

	// Fan-out is a liveness optimization, not the durability mechanism.
	// It runs only after the commit above and must not block the sender.
	if s.publisher != nil {
		s.publisher.Publish(conversationID, msg)
	}

	return msg, nil
}

// FetchConversations returns the caller's conversations, most recently
// active first, each annotated with the other participant, the caller's
// unread count, and a preview of the latest message (nil when the
// conversation has no messages yet).
func (s *Service) FetchConversations(ctx context.Context, userID string) ([]*store.ConversationSummary, error) {
	summaries, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, translateStoreErr(ctx, err)
	}
	return summaries, nil
}

// CheckParticipant verifies that userID is a member of the conversation.
// Returns ErrNotAParticipant otherwise.
func (s *Service) CheckParticipant(ctx context.Context, conversationID, userID string) error {
	if _, err := s.store.GetParticipant(ctx, conversationID, userID); err != nil {
		if errors.Is(err, store.ErrNotAParticipant) {
			return ErrNotAParticipant
		}
		return translateStoreErr(ctx, err)
	}
	return nil
}

// FetchMessages returns all messages of the conversation in canonical
// order (ascending timestamp, ties broken by message ID). Fails with
// ErrNotAParticipant if the requester is not a member.
func (s *Service) FetchMessages(ctx context.Context, conversationID, requestingUserID string) ([]*store.Message, error) {
	if err := s.CheckParticipant(ctx, conversationID, requestingUserID); err != nil {
		return nil, err
	}

	messages, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, translateStoreErr(ctx, err)
	}
	return messages, nil
}

// MarkConversationRead resets the caller's unread count to zero and
// advances their last-read marker. Other participants are unaffected.
func (s *Service) MarkConversationRead(ctx context.Context, conversationID, userID string) error {
	err := s.store.MarkRead(ctx, conversationID, userID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotAParticipant) {
			return ErrNotAParticipant
		}
		return translateStoreErr(ctx, err)
	}

	s.logger.Debug("conversation marked read",
		"conversation_id", conversationID,
		"user_id", userID)
	return nil
}

// translateStoreErr maps infrastructure failures into the service's
// taxonomy: an elapsed deadline becomes ErrTimeout, everything else is
// surfaced as a transient ErrStoreUnavailable the caller may retry.
func translateStoreErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// convLocks hands out one mutex per conversation ID. Entries are
// refcounted and dropped once the last holder releases, so the map
// stays bounded by the number of in-flight sends.
type convLocks struct {
	mu      sync.Mutex
	entries map[string]*convLockEntry
}

type convLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newConvLocks() *convLocks {
	return &convLocks{entries: make(map[string]*convLockEntry)}
}

// lock blocks until the caller holds the conversation's mutex and
// returns the matching release func.
func (l *convLocks) lock(key string) func() {
	l.mu.Lock()
	entry := l.entries[key]
	if entry == nil {
		entry = &convLockEntry{}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}
