// ABOUTME: Tests for cleanup operations against SQLite and the failure-injecting mock
// ABOUTME: Covers age cutoffs, thread composition order and session scoping

package cleanup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afmon/aiboard-cli/internal/store"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newService(s Store) *Service {
	svc := New(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func newSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.OpenMemory(context.Background(), store.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func msg(id, threadID string, at time.Time, session string) *store.Message {
	m := &store.Message{
		ID:        id,
		ThreadID:  threadID,
		Role:      store.RoleUser,
		Content:   "content " + id,
		CreatedAt: at,
		UpdatedAt: at,
	}
	if session != "" {
		m.SessionID = &session
	}
	return m
}

func thread(id string) *store.Thread {
	return &store.Thread{ID: id, Title: id, CreatedAt: fixedNow, UpdatedAt: fixedNow}
}

func remaining(t *testing.T, s store.Store) []string {
	t.Helper()
	msgs, err := s.ListRecentMessages(context.Background(), 0)
	require.NoError(t, err)
	var ids []string
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestByAge(t *testing.T) {
	for name, s := range map[string]store.Store{"sqlite": newSQLite(t), "mock": store.NewMockStore()} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.InsertMessages(ctx, []*store.Message{
				msg("ancient", "t1", fixedNow.AddDate(0, 0, -30), ""),
				msg("edge", "t1", fixedNow.AddDate(0, 0, -7), ""),
				msg("recent", "t1", fixedNow.AddDate(0, 0, -1), ""),
			})
			require.NoError(t, err)

			n, err := newService(s).ByAge(ctx, 7)
			require.NoError(t, err)
			assert.Equal(t, 1, n, "the cutoff itself is not older than the cutoff")
			assert.Equal(t, []string{"recent", "edge"}, remaining(t, s))
		})
	}
}

func TestByAge_Negative(t *testing.T) {
	_, err := newService(store.NewMockStore()).ByAge(context.Background(), -1)
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestByThread(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	require.NoError(t, s.CreateThread(ctx, thread("t1")))
	require.NoError(t, s.CreateThread(ctx, thread("t2")))
	_, err := s.InsertMessages(ctx, []*store.Message{
		msg("a", "t1", fixedNow, ""),
		msg("b", "t1", fixedNow, ""),
		msg("c", "t2", fixedNow, ""),
	})
	require.NoError(t, err)

	n, err := newService(s).ByThread(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.GetThread(ctx, "t1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, []string{"c"}, remaining(t, s))
}

func TestByThread_MissingThreadFailsAfterMessages(t *testing.T) {
	s := store.NewMockStore()
	ctx := context.Background()
	_, err := s.InsertMessages(ctx, []*store.Message{msg("orphan", "gone", fixedNow, "")})
	require.NoError(t, err)

	_, err = newService(s).ByThread(ctx, "gone")
	require.ErrorIs(t, err, store.ErrNotFound)

	// Messages are deleted before the thread step fails.
	assert.Empty(t, remaining(t, s))
	assert.Equal(t,
		[]string{"InsertMessages", "DeleteMessagesByThread", "DeleteThread", "ListRecentMessages"},
		s.Calls())
}

func TestByThread_MessageFailureSkipsThreadDelete(t *testing.T) {
	s := store.NewMockStore()
	ctx := context.Background()
	require.NoError(t, s.CreateThread(ctx, thread("t1")))

	boom := &store.DatabaseError{Op: "deleting thread messages", Err: errors.New("disk I/O error")}
	s.FailOn("DeleteMessagesByThread", boom)

	_, err := newService(s).ByThread(ctx, "t1")
	require.ErrorIs(t, err, store.ErrDatabase)

	_, err = s.GetThread(ctx, "t1")
	assert.NoError(t, err, "thread must survive when its messages could not be deleted")
}

func TestBySession(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	require.NoError(t, s.CreateThread(ctx, thread("t1")))
	_, err := s.InsertMessages(ctx, []*store.Message{
		msg("a", "t1", fixedNow, "s1"),
		msg("b", "t1", fixedNow.Add(time.Second), "s2"),
		msg("c", "t1", fixedNow.Add(2*time.Second), "s1"),
	})
	require.NoError(t, err)

	n, err := newService(s).BySession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"b"}, remaining(t, s))

	_, err = s.GetThread(ctx, "t1")
	assert.NoError(t, err, "session cleanup leaves threads alone")

	_, err = newService(s).BySession(ctx, "")
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}
