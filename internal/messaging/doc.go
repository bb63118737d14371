// Package messaging provides the conversation and messaging core of the
// vukalink marketplace: conversation creation and deduplication, ordered
// message delivery, per-participant unread bookkeeping, and real-time
// fan-out to connected clients.
//
// # Service
//
// The Service is the public contract consumed by the API layer:
//
//	svc := messaging.New(store, broadcaster, maxLen, logger)
//
// Key operations:
//
//   - StartConversation(ctx, userA, userB): resolve or create the single
//     conversation for a participant pair
//   - SendMessage(ctx, conversationID, senderID, content): validate and
//     atomically append a message
//   - FetchConversations(ctx, userID): conversation list with previews
//     and unread counts
//   - FetchMessages(ctx, conversationID, userID): canonical message order
//   - MarkConversationRead(ctx, conversationID, userID): reset unread
//
// # Conversation Deduplication
//
// The Directory resolves participant pairs. Two concurrent first-contact
// calls for the same pair may both observe "not found" and both attempt
// to create; the store's uniqueness constraint on the normalized pair
// decides the winner and the loser retries the lookup. The result is
// linearizable: exactly one conversation per pair, all callers get its ID.
//
// # Fan-out
//
// The Broadcaster pushes committed messages to subscribers of a
// conversation in commit order, at-least-once. Buffers are bounded: a
// subscriber that cannot keep up has its subscription failed rather than
// slowing the publisher. Subscribers detect the Failed state, re-subscribe,
// and reconcile missed messages through FetchMessages.
//
// # Error Taxonomy
//
// Validation and authorization errors (ErrInvalidParticipants,
// ErrNotAParticipant, ErrEmptyMessage, ErrMessageTooLong) are definitive
// rejections. ErrTimeout and ErrStoreUnavailable are transient and safe
// for the caller to retry with backoff; the service itself never retries
// a send.
package messaging
