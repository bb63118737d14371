// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is a fixed-width UTC timestamp format. Fixed width keeps
// lexicographic TEXT comparison consistent with time order, which the
// message ordering and conversation sorting queries rely on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// The pragmas ride on the DSN so they apply to every connection the
	// pool opens, not just the one a plain Exec would land on. _txlock
	// makes write transactions take the write lock at BEGIN, so
	// concurrent writers queue on busy_timeout inside SQLite instead of
	// failing with SQLITE_BUSY after their first read.
	dsn := "file:" + path + "?_txlock=immediate" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id              TEXT PRIMARY KEY,
			user_low        TEXT NOT NULL,
			user_high       TEXT NOT NULL,
			created_at      TEXT NOT NULL,
			last_message_at TEXT,

			CHECK (user_low < user_high)
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_pair
			ON conversations(user_low, user_high);

		CREATE TABLE IF NOT EXISTS participants (
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			user_id         TEXT NOT NULL,
			unread_count    INTEGER NOT NULL DEFAULT 0,
			last_read_at    TEXT,
			created_at      TEXT NOT NULL,

			PRIMARY KEY (conversation_id, user_id),
			CHECK (unread_count >= 0)
		);

		CREATE INDEX IF NOT EXISTS idx_participants_user
			ON participants(user_id);

		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			sender_id       TEXT NOT NULL,
			body            TEXT NOT NULL,
			created_at      TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at, id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// CreateConversation creates a conversation and both participant links in
// a single transaction. The participant pair must already be normalized
// (UserLow < UserHigh). If a conversation for the pair already exists,
// it returns ErrDuplicateConversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	createdAt := formatTime(conv.CreatedAt)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, user_low, user_high, created_at, last_message_at)
		VALUES (?, ?, ?, ?, NULL)
	`, conv.ID, conv.UserLow, conv.UserHigh, createdAt)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	for _, userID := range []string{conv.UserLow, conv.UserHigh} {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO participants (conversation_id, user_id, unread_count, last_read_at, created_at)
			VALUES (?, ?, 0, NULL, ?)
		`, conv.ID, userID, createdAt)
		if err != nil {
			return fmt.Errorf("inserting participant %s: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("committing conversation: %w", err)
	}

	s.logger.Debug("created conversation",
		"id", conv.ID,
		"user_low", conv.UserLow,
		"user_high", conv.UserHigh)
	return nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_low, user_high, created_at, last_message_at
		FROM conversations
		WHERE id = ?
	`, id)
	return scanConversation(row)
}

// GetConversationByPair retrieves the conversation for a participant pair.
// The arguments may be given in either order. Returns ErrNotFound if no
// conversation exists for the pair.
func (s *SQLiteStore) GetConversationByPair(ctx context.Context, userA, userB string) (*Conversation, error) {
	low, high := NormalizePair(userA, userB)
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_low, user_high, created_at, last_message_at
		FROM conversations
		WHERE user_low = ? AND user_high = ?
	`, low, high)
	return scanConversation(row)
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var createdAtStr string
	var lastMessageAtStr sql.NullString

	err := row.Scan(&conv.ID, &conv.UserLow, &conv.UserHigh, &createdAtStr, &lastMessageAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	conv.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if lastMessageAtStr.Valid {
		t, err := parseTime(lastMessageAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_message_at: %w", err)
		}
		conv.LastMessageAt = &t
	}

	return &conv, nil
}

// ListConversations returns summaries for every conversation userID
// participates in, ordered by most recent activity first (falling back
// to creation time for empty conversations, ties broken by id).
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]*ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.user_low, c.user_high, c.created_at, c.last_message_at,
		       p.unread_count,
		       m.id, m.sender_id, m.body, m.created_at
		FROM conversations c
		JOIN participants p
			ON p.conversation_id = c.id AND p.user_id = ?
		LEFT JOIN messages m
			ON m.id = (
				SELECT id FROM messages
				WHERE conversation_id = c.id
				ORDER BY created_at DESC, id DESC
				LIMIT 1
			)
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var summaries []*ConversationSummary
	for rows.Next() {
		var conv Conversation
		var createdAtStr string
		var lastMessageAtStr sql.NullString
		var unread int
		var msgID, msgSender, msgBody, msgCreatedAt sql.NullString

		if err := rows.Scan(
			&conv.ID, &conv.UserLow, &conv.UserHigh, &createdAtStr, &lastMessageAtStr,
			&unread,
			&msgID, &msgSender, &msgBody, &msgCreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}

		conv.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if lastMessageAtStr.Valid {
			t, err := parseTime(lastMessageAtStr.String)
			if err != nil {
				return nil, fmt.Errorf("parsing last_message_at: %w", err)
			}
			conv.LastMessageAt = &t
		}

		summary := &ConversationSummary{
			Conversation: &conv,
			OtherUserID:  conv.OtherParticipant(userID),
			UnreadCount:  unread,
		}

		if msgID.Valid {
			createdAt, err := parseTime(msgCreatedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parsing message created_at: %w", err)
			}
			summary.LastMessage = &Message{
				ID:             msgID.String,
				ConversationID: conv.ID,
				SenderID:       msgSender.String,
				Body:           msgBody.String,
				CreatedAt:      createdAt,
			}
		}

		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}
	return summaries, nil
}

// AppendMessage appends a message to its conversation as one atomic unit:
// the message insert, the last_message_at advance, and the unread_count
// increments for the non-sending participant commit together or not at
// all. The assigned timestamp never moves backwards within a
// conversation, even under concurrent senders.
//
// Returns ErrNotFound if the conversation doesn't exist and
// ErrNotAParticipant if the sender has no participant link.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var lastMessageAtStr sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT last_message_at FROM conversations WHERE id = ?
	`, msg.ConversationID).Scan(&lastMessageAtStr)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying conversation: %w", err)
	}

	var isMember int
	err = tx.QueryRowContext(ctx, `
		SELECT 1 FROM participants WHERE conversation_id = ? AND user_id = ?
	`, msg.ConversationID, msg.SenderID).Scan(&isMember)
	if err == sql.ErrNoRows {
		return ErrNotAParticipant
	}
	if err != nil {
		return fmt.Errorf("querying participant: %w", err)
	}

	// Server-assigned timestamp. Bumped past the conversation's current
	// last_message_at when the wall clock has not advanced, so timestamps
	// within a conversation are strictly increasing and timestamp order
	// always matches commit order.
	ts := time.Now().UTC()
	if lastMessageAtStr.Valid {
		last, err := parseTime(lastMessageAtStr.String)
		if err != nil {
			return fmt.Errorf("parsing last_message_at: %w", err)
		}
		if !ts.After(last) {
			ts = last.Add(time.Nanosecond)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.Body, formatTime(ts))
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE conversations SET last_message_at = ? WHERE id = ?
	`, formatTime(ts), msg.ConversationID)
	if err != nil {
		return fmt.Errorf("advancing last_message_at: %w", err)
	}

	// In-place increment, never read-modify-write from the client side
	_, err = tx.ExecContext(ctx, `
		UPDATE participants SET unread_count = unread_count + 1
		WHERE conversation_id = ? AND user_id <> ?
	`, msg.ConversationID, msg.SenderID)
	if err != nil {
		return fmt.Errorf("incrementing unread counts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing message: %w", err)
	}

	msg.CreatedAt = ts

	s.logger.Debug("appended message",
		"id", msg.ID,
		"conversation_id", msg.ConversationID,
		"sender_id", msg.SenderID)
	return nil
}

// ListMessages retrieves all messages of a conversation in ascending
// (created_at, id) order. A single query over one snapshot, so repeated
// calls without new sends return an identical sequence.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, body, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var createdAtStr string

		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Body, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		msg.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}

		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return messages, nil
}

// GetParticipant retrieves the participant link for (conversation, user).
// Returns ErrNotAParticipant if no link exists.
func (s *SQLiteStore) GetParticipant(ctx context.Context, conversationID, userID string) (*ParticipantLink, error) {
	var link ParticipantLink
	var createdAtStr string
	var lastReadAtStr sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, user_id, unread_count, last_read_at, created_at
		FROM participants
		WHERE conversation_id = ? AND user_id = ?
	`, conversationID, userID).Scan(
		&link.ConversationID, &link.UserID, &link.UnreadCount, &lastReadAtStr, &createdAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotAParticipant
	}
	if err != nil {
		return nil, fmt.Errorf("querying participant: %w", err)
	}

	link.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if lastReadAtStr.Valid {
		t, err := parseTime(lastReadAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_read_at: %w", err)
		}
		link.LastReadAt = &t
	}

	return &link, nil
}

// MarkRead atomically resets the participant's unread count to zero and
// advances their last_read_at marker. Other participants' rows are
// untouched. Returns ErrNotAParticipant if no link exists.
func (s *SQLiteStore) MarkRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE participants
		SET unread_count = 0, last_read_at = ?
		WHERE conversation_id = ? AND user_id = ?
	`, formatTime(at), conversationID, userID)
	if err != nil {
		return fmt.Errorf("marking read: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotAParticipant
	}

	s.logger.Debug("marked conversation read",
		"conversation_id", conversationID,
		"user_id", userID)
	return nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
