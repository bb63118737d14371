// Package store provides persistent storage for the messaging subsystem
// using SQLite.
//
// # Architecture
//
// The Store interface defines the durable operations; SQLiteStore is the
// single implementation, backed by modernc.org/sqlite with WAL mode.
//
// # Data Models
//
//   - Conversation: Two-party messaging context, participant pair stored
//     normalized with a UNIQUE index as the dedup guarantee
//   - ParticipantLink: Per-user state within a conversation (unread count,
//     last-read marker), created together with the conversation
//   - Message: Immutable message, ordered by store-assigned timestamp
//
// # Atomicity
//
// AppendMessage performs the message insert, the last_message_at advance,
// and the unread counter increments in a single transaction keyed on the
// conversation. Unread counters are bumped via an in-place SQL UPDATE,
// never a read-modify-write from Go, so concurrent senders cannot lose
// increments.
//
// # Timestamps
//
// All timestamps are stored as fixed-width UTC TEXT so that ORDER BY on
// the raw column matches chronological order.
package store
