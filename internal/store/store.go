// ABOUTME: Store interface and data types for vukalink messaging persistence
// ABOUTME: Defines Conversation, ParticipantLink, Message and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when trying to create a conversation
// for a participant pair that already has one
var ErrDuplicateConversation = errors.New("conversation already exists")

// ErrNotAParticipant is returned when the acting user has no participant
// link in the conversation
var ErrNotAParticipant = errors.New("not a participant")

// Conversation is a two-party messaging context. The participant pair is
// stored normalized (UserLow < UserHigh lexicographically) so that the
// pair maps to exactly one row regardless of argument order.
type Conversation struct {
	ID            string
	UserLow       string
	UserHigh      string
	CreatedAt     time.Time
	LastMessageAt *time.Time // nil until the first message is appended
}

// NormalizePair returns the two user IDs in deterministic (low, high) order.
func NormalizePair(a, b string) (low, high string) {
	if a < b {
		return a, b
	}
	return b, a
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.UserLow == userID || c.UserHigh == userID
}

// OtherParticipant returns the participant that is not userID.
// Returns an empty string if userID is not a participant.
func (c *Conversation) OtherParticipant(userID string) string {
	switch userID {
	case c.UserLow:
		return c.UserHigh
	case c.UserHigh:
		return c.UserLow
	}
	return ""
}

// LastActivityAt is the timestamp conversations are sorted by: the most
// recent message, falling back to creation time for empty conversations.
func (c *Conversation) LastActivityAt() time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

// ParticipantLink is per-user state within a conversation. One row per
// (conversation, user), created together with the conversation.
type ParticipantLink struct {
	ConversationID string
	UserID         string
	UnreadCount    int
	LastReadAt     *time.Time
	CreatedAt      time.Time
}

// Message is a single immutable message within a conversation. CreatedAt
// is assigned by the store at insert time and is the canonical ordering
// key (ties broken by ID).
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           string
	CreatedAt      time.Time
}

// ConversationSummary annotates a conversation with the per-viewer state
// needed by a conversation list: the other party, the viewer's unread
// count, and the most recent message (nil for a conversation with no
// messages yet).
type ConversationSummary struct {
	Conversation *Conversation
	OtherUserID  string
	UnreadCount  int
	LastMessage  *Message
}

// Store defines the interface for conversation and message persistence.
//
// Implementations must provide atomic multi-row writes scoped to a
// conversation, a uniqueness guarantee on the normalized participant
// pair, and in-place counter increments that never lose updates under
// concurrent writers.
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	GetConversationByPair(ctx context.Context, userA, userB string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*ConversationSummary, error)

	// Messages
	//
	// AppendMessage assigns msg.CreatedAt, advances the conversation's
	// last_message_at, and increments unread_count for every participant
	// except the sender, all as one atomic unit.
	AppendMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)

	// Participant state
	GetParticipant(ctx context.Context, conversationID, userID string) (*ParticipantLink, error)
	MarkRead(ctx context.Context, conversationID, userID string, at time.Time) error

	// Close releases any resources held by the store
	Close() error
}
