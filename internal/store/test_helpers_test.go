package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/optisync/internal/model"
	"github.com/roach88/optisync/internal/testutil"
)

// createTestStore creates a file-backed store in a temp dir with a stopped
// clock at testutil.Epoch.
func createTestStore(t *testing.T) (*Store, *testutil.FakeTime) {
	t.Helper()
	clock := testutil.NewFakeTime(time.Time{})
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, clock
}

// seedMessage inserts a message by author into conv1 at Epoch+offset.
func seedMessage(t *testing.T, s *Store, id, author, body string, offset time.Duration) {
	t.Helper()
	_, err := s.InsertMessage(context.Background(), model.Record{
		ID:             id,
		ConversationID: "conv1",
		AuthorID:       author,
		Body:           body,
		CreatedAt:      testutil.Epoch.Add(offset),
	})
	require.NoError(t, err)
}
