// ABOUTME: Tests for the conversation Service
// ABOUTME: Verifies short-id resolution, content validation, thread lifecycle and message use cases

package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afmon/aiboard-cli/internal/store"
)

var testNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func createTestStore(t *testing.T) *store.SQLiteStore {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	s, err := store.Open(context.Background(), dbPath, store.Options{Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestService pins the clock and makes ids predictable: each id starts
// with a distinct hex prefix so short-id lookups are unambiguous.
func newTestService(t *testing.T, s ConversationStore) *Service {
	svc := New(s, Config{}, quietLogger())
	svc.now = func() time.Time { return testNow }
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("%08x-0000-4000-8000-000000000000", n*0x11111111%0xffffffff)
	}
	return svc
}

func TestService_CreateAndGetThreadByShortID(t *testing.T) {
	svc := newTestService(t, createTestStore(t))
	ctx := context.Background()

	thread, err := svc.CreateThread(ctx, CreateThreadRequest{Title: "Planning", Name: "plan"})
	require.NoError(t, err)
	assert.Equal(t, store.ThreadStatusOpen, thread.Status)
	assert.True(t, thread.CreatedAt.Equal(testNow))

	got, err := svc.GetThread(ctx, thread.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, thread.ID, got.ID)
	require.NotNil(t, got.Name)
	assert.Equal(t, "plan", *got.Name)

	_, err = svc.CreateThread(ctx, CreateThreadRequest{Title: "   "})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestService_ThreadLifecycle(t *testing.T) {
	svc := newTestService(t, createTestStore(t))
	ctx := context.Background()

	thread, err := svc.CreateThread(ctx, CreateThreadRequest{Title: "Work"})
	require.NoError(t, err)

	closed, err := svc.CloseThread(ctx, thread.ID[:6])
	require.NoError(t, err)
	assert.Equal(t, store.ThreadStatusClosed, closed.Status)

	closedStatus := store.ThreadStatusClosed
	list, err := svc.ListThreads(ctx, &closedStatus)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	reopened, err := svc.ReopenThread(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ThreadStatusOpen, reopened.Status)

	phased, err := svc.SetPhase(ctx, thread.ID, "Implementing")
	require.NoError(t, err)
	require.NotNil(t, phased.Phase)
	assert.Equal(t, store.PhaseImplementing, *phased.Phase)

	cleared, err := svc.SetPhase(ctx, thread.ID, "none")
	require.NoError(t, err)
	assert.Nil(t, cleared.Phase)

	_, err = svc.SetPhase(ctx, thread.ID, "shipping")
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestService_DeleteThreadRemovesMessages(t *testing.T) {
	s := createTestStore(t)
	svc := newTestService(t, s)
	ctx := context.Background()

	thread, err := svc.CreateThread(ctx, CreateThreadRequest{Title: "Doomed"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := svc.Post(ctx, PostRequest{ThreadRef: thread.ID, Content: fmt.Sprintf("msg %d", i)})
		require.NoError(t, err)
	}

	id, n, err := svc.DeleteThread(ctx, thread.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, thread.ID, id)
	assert.Equal(t, 3, n)

	_, err = s.GetThread(ctx, thread.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	msgs, err := s.ListThreadMessages(ctx, thread.ID, store.MessageFilter{})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestService_Post(t *testing.T) {
	svc := newTestService(t, createTestStore(t))
	ctx := context.Background()

	thread, err := svc.CreateThread(ctx, CreateThreadRequest{Title: "Chat"})
	require.NoError(t, err)

	first, err := svc.Post(ctx, PostRequest{
		ThreadRef: thread.ID[:8],
		Role:      "Assistant",
		Content:   "hello",
		Sender:    "claude",
		SessionID: "sess-1",
		Metadata:  json.RawMessage(`{"msg_type":"greeting"}`),
		Source:    "agent",
	})
	require.NoError(t, err)
	assert.Equal(t, thread.ID, first.Message.ThreadID)
	assert.Equal(t, store.RoleAssistant, first.Message.Role)
	assert.Equal(t, "greeting", first.Message.MsgType())

	reply, err := svc.Post(ctx, PostRequest{
		ThreadRef: thread.ID,
		Content:   "hi back",
		ParentRef: first.Message.ID[:8],
	})
	require.NoError(t, err)
	assert.Equal(t, store.RoleUser, reply.Message.Role, "role defaults to user")
	require.NotNil(t, reply.Message.ParentID)
	assert.Equal(t, first.Message.ID, *reply.Message.ParentID)

	msgs, err := svc.Read(ctx, ReadRequest{ThreadRef: thread.ID})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "hi back", msgs[1].Content)
}

func TestService_PostValidation(t *testing.T) {
	svc := newTestService(t, createTestStore(t))
	ctx := context.Background()
	thread, err := svc.CreateThread(ctx, CreateThreadRequest{Title: "Chat"})
	require.NoError(t, err)

	cases := map[string]PostRequest{
		"bad role":     {ThreadRef: thread.ID, Role: "robot", Content: "x"},
		"nul byte":     {ThreadRef: thread.ID, Content: "a\x00b"},
		"bad utf8":     {ThreadRef: thread.ID, Content: "\xff\xfe"},
		"too large":    {ThreadRef: thread.ID, Content: strings.Repeat("a", DefaultMaxContentBytes+1)},
		"bad metadata": {ThreadRef: thread.ID, Content: "x", Metadata: json.RawMessage(`{`)},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Post(ctx, req)
			assert.ErrorIs(t, err, store.ErrInvalidInput)
		})
	}

	_, err = svc.Post(ctx, PostRequest{ThreadRef: "ffffffff", Content: "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	exact := strings.Repeat("a", DefaultMaxContentBytes)
	_, err = svc.Post(ctx, PostRequest{ThreadRef: thread.ID, Content: exact})
	assert.NoError(t, err, "content at the limit is accepted")
}

func TestService_PostToClosedThread(t *testing.T) {
	svc := newTestService(t, createTestStore(t))
	ctx := context.Background()
	thread, err := svc.CreateThread(ctx, CreateThreadRequest{Title: "Done"})
	require.NoError(t, err)
	_, err = svc.CloseThread(ctx, thread.ID)
	require.NoError(t, err)

	res, err := svc.Post(ctx, PostRequest{ThreadRef: thread.ID, Content: "late note"})
	require.NoError(t, err)
	assert.Equal(t, store.ThreadStatusClosed, res.Thread.Status)
}

func TestService_ReadSinceType(t *testing.T) {
	s := store.NewMockStore()
	svc := newTestService(t, s)
	ctx := context.Background()
	thread, err := svc.CreateThread(ctx, CreateThreadRequest{Title: "Checkpoints"})
	require.NoError(t, err)

	post := func(content, msgType string) {
		req := PostRequest{ThreadRef: thread.ID, Content: content}
		if msgType != "" {
			req.Metadata = json.RawMessage(`{"msg_type":"` + msgType + `"}`)
		}
		_, err := svc.Post(ctx, req)
		require.NoError(t, err)
	}
	post("before", "")
	post("cp", "checkpoint")
	post("after one", "")
	post("after two", "")

	msgs, err := svc.Read(ctx, ReadRequest{ThreadRef: thread.ID, SinceType: "checkpoint"})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "after one", msgs[0].Content)

	limited, err := svc.Read(ctx, ReadRequest{ThreadRef: thread.ID, SinceType: "checkpoint", Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "after one", limited[0].Content)

	typed, err := svc.ByType(ctx, "", "checkpoint")
	require.NoError(t, err)
	require.Len(t, typed, 1)
	assert.Equal(t, "cp", typed[0].Content)
}

func TestService_SearchUpdateMentions(t *testing.T) {
	svc := newTestService(t, createTestStore(t))
	ctx := context.Background()
	a, err := svc.CreateThread(ctx, CreateThreadRequest{Title: "A"})
	require.NoError(t, err)
	b, err := svc.CreateThread(ctx, CreateThreadRequest{Title: "B"})
	require.NoError(t, err)

	posted, err := svc.Post(ctx, PostRequest{ThreadRef: a.ID, Content: "@alice please review"})
	require.NoError(t, err)
	_, err = svc.Post(ctx, PostRequest{ThreadRef: b.ID, Content: "@alice_bot ignore this review"})
	require.NoError(t, err)

	hits, err := svc.Search(ctx, "review", "")
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = svc.Search(ctx, "review", b.ID[:8])
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	mentions, err := svc.Mentions(ctx, "", "@alice")
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, posted.Message.ID, mentions[0].ID)

	count, err := svc.MentionCount(ctx, a.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	id, err := svc.Update(ctx, posted.Message.ID[:8], "@alice approved")
	require.NoError(t, err)
	assert.Equal(t, posted.Message.ID, id)

	recent, err := svc.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	_, err = svc.Update(ctx, posted.Message.ID, "bad\x00")
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestService_AmbiguousReference(t *testing.T) {
	s := store.NewMockStore()
	svc := New(s, Config{}, quietLogger())
	svc.newID = func() func() string {
		ids := []string{"aaaa1111", "aaaa2222"}
		return func() string {
			id := ids[0]
			ids = ids[1:]
			return id
		}
	}()
	ctx := context.Background()

	_, err := svc.CreateThread(ctx, CreateThreadRequest{Title: "one"})
	require.NoError(t, err)
	_, err = svc.CreateThread(ctx, CreateThreadRequest{Title: "two"})
	require.NoError(t, err)

	_, err = svc.Post(ctx, PostRequest{ThreadRef: "aaaa", Content: "x"})
	require.ErrorIs(t, err, store.ErrAmbiguousPrefix)
	var amb *store.AmbiguousPrefixError
	require.ErrorAs(t, err, &amb)
	assert.Equal(t, 2, amb.Count)
}

func TestValidateContent(t *testing.T) {
	assert.NoError(t, ValidateContent("fine", 4))
	assert.ErrorIs(t, ValidateContent("toolong", 4), store.ErrInvalidInput)
}
