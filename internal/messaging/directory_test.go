// ABOUTME: Tests for the conversation directory
// ABOUTME: Verifies pair validation, idempotent resolution, and the create race

package messaging

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Qhojoblinks-7/vukalink-sub000/internal/store"
)

func createTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDirectory_FindOrCreate_CreatesOnFirstContact(t *testing.T) {
	testStore := createTestStore(t)
	dir := NewDirectory(testStore, nil)
	ctx := context.Background()

	conv, err := dir.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "alice", conv.UserLow)
	assert.Equal(t, "bob", conv.UserHigh)
}

func TestDirectory_FindOrCreate_Idempotent(t *testing.T) {
	testStore := createTestStore(t)
	dir := NewDirectory(testStore, nil)
	ctx := context.Background()

	first, err := dir.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	again, err := dir.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	// Argument order must not matter
	swapped, err := dir.FindOrCreate(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, swapped.ID)
}

func TestDirectory_FindOrCreate_InvalidParticipants(t *testing.T) {
	testStore := createTestStore(t)
	dir := NewDirectory(testStore, nil)
	ctx := context.Background()

	_, err := dir.FindOrCreate(ctx, "alice", "alice")
	assert.ErrorIs(t, err, ErrInvalidParticipants)

	_, err = dir.FindOrCreate(ctx, "", "bob")
	assert.ErrorIs(t, err, ErrInvalidParticipants)

	_, err = dir.FindOrCreate(ctx, "alice", "")
	assert.ErrorIs(t, err, ErrInvalidParticipants)
}

func TestDirectory_FindOrCreate_ConcurrentCallersConverge(t *testing.T) {
	testStore := createTestStore(t)
	dir := NewDirectory(testStore, nil)
	ctx := context.Background()

	const callers = 50
	ids := make(chan string, callers)
	var wg sync.WaitGroup

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Half the callers pass the pair in reversed order
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			conv, err := dir.FindOrCreate(ctx, a, b)
			if err != nil {
				t.Errorf("FindOrCreate: %v", err)
				return
			}
			ids <- conv.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 1, "all concurrent callers must resolve to one conversation")

	// The store holds exactly one row for the pair
	conv, err := testStore.GetConversationByPair(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, seen[conv.ID])
}

// losingStore simulates a store where every create loses the race.
type losingStore struct {
	DirectoryStore
}

func (s *losingStore) GetConversationByPair(ctx context.Context, userA, userB string) (*store.Conversation, error) {
	return nil, store.ErrNotFound
}

func (s *losingStore) CreateConversation(ctx context.Context, conv *store.Conversation) error {
	return store.ErrDuplicateConversation
}

func TestDirectory_FindOrCreate_RetryExhaustion(t *testing.T) {
	dir := NewDirectory(&losingStore{}, nil)

	_, err := dir.FindOrCreate(context.Background(), "alice", "bob")
	assert.ErrorIs(t, err, ErrConflictRetryExhausted)
}
