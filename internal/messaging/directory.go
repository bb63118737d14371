// ABOUTME: Conversation directory resolving participant pairs to a single conversation
// ABOUTME: Creation races are resolved by the store's pair uniqueness constraint, retried as lookups

package messaging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Qhojoblinks-7/vukalink-sub000/internal/store"
)

// maxCreateRetries bounds how often a losing creator re-runs the
// lookup-then-create cycle before giving up.
const maxCreateRetries = 3

// DirectoryStore defines what the directory needs from storage.
type DirectoryStore interface {
	CreateConversation(ctx context.Context, conv *store.Conversation) error
	GetConversationByPair(ctx context.Context, userA, userB string) (*store.Conversation, error)
}

// Directory maps unordered participant pairs to exactly one conversation,
// creating it on first contact. The find-then-create sequence is not safe
// as two independent steps, so the store's UNIQUE index on the normalized
// pair is the arbiter: an insert conflict means another caller won the
// race, and we re-run the lookup to return the winner's conversation.
type Directory struct {
	store  DirectoryStore
	logger *slog.Logger
}

// NewDirectory creates a conversation directory. Pass nil logger for default.
func NewDirectory(store DirectoryStore, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		store:  store,
		logger: logger.With("component", "directory"),
	}
}

// FindOrCreate resolves the conversation for the pair {userA, userB},
// creating it if absent. Idempotent: any number of concurrent callers for
// the same pair receive the same conversation ID. Returns
// ErrInvalidParticipants if the pair is malformed.
func (d *Directory) FindOrCreate(ctx context.Context, userA, userB string) (*store.Conversation, error) {
	if userA == "" || userB == "" || userA == userB {
		return nil, ErrInvalidParticipants
	}

	low, high := store.NormalizePair(userA, userB)

	for attempt := 0; attempt < maxCreateRetries; attempt++ {
		conv, err := d.store.GetConversationByPair(ctx, low, high)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, translateStoreErr(ctx, err)
		}

		conv = &store.Conversation{
			ID:        uuid.New().String(),
			UserLow:   low,
			UserHigh:  high,
			CreatedAt: time.Now().UTC(),
		}
		err = d.store.CreateConversation(ctx, conv)
		if err == nil {
			d.logger.Debug("conversation created",
				"conversation_id", conv.ID,
				"user_low", low,
				"user_high", high)
			return conv, nil
		}
		if errors.Is(err, store.ErrDuplicateConversation) {
			// Another caller created the conversation between our lookup
			// and insert. Loop back and fetch theirs.
			d.logger.Debug("create hit duplicate, retrying lookup",
				"user_low", low,
				"user_high", high,
				"attempt", attempt+1)
			continue
		}
		return nil, translateStoreErr(ctx, err)
	}

	d.logger.Error("conversation create conflict did not resolve",
		"user_low", low,
		"user_high", high,
		"attempts", maxCreateRetries)
	return nil, ErrConflictRetryExhausted
}
