// ABOUTME: Error taxonomy for the messaging service
// ABOUTME: Validation and authorization errors are definitive; transient ones are retryable by the caller

package messaging

import "errors"

var (
	// ErrInvalidParticipants is returned when a conversation is requested
	// for a malformed pair (empty IDs or a user messaging themselves).
	ErrInvalidParticipants = errors.New("invalid participants")

	// ErrNotAParticipant is returned when the acting user is not a member
	// of the conversation. Never retried.
	ErrNotAParticipant = errors.New("not a participant")

	// ErrEmptyMessage is returned when the message body is empty after
	// trimming whitespace.
	ErrEmptyMessage = errors.New("empty message")

	// ErrMessageTooLong is returned when the message body exceeds the
	// configured maximum length.
	ErrMessageTooLong = errors.New("message too long")

	// ErrTimeout is returned when the caller-supplied deadline elapsed
	// before the store round trip completed. Distinct from data-level
	// errors; safe for the caller to retry with backoff.
	ErrTimeout = errors.New("operation timed out")

	// ErrStoreUnavailable wraps transient store failures. Safe for the
	// caller to retry with backoff; the service itself never retries a
	// send (a silent retry could duplicate it).
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrConflictRetryExhausted is returned when conversation creation
	// kept losing the create race after bounded retries. Fatal to the
	// call, safe to retry later.
	ErrConflictRetryExhausted = errors.New("conversation create conflict retries exhausted")

	// ErrNotFound is returned when the referenced conversation does not exist.
	ErrNotFound = errors.New("conversation not found")
)
