// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject per-operation failures

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing. Search is
// always a case-sensitive substring match.
type MockStore struct {
	mu       sync.RWMutex
	threads  map[string]*Thread // keyed by thread ID
	messages []*mockMessage     // insertion order
	failures map[string]error   // keyed by method name
	calls    []string
	nextSeq  int64
}

type mockMessage struct {
	seq int64
	msg Message
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		threads:  make(map[string]*Thread),
		failures: make(map[string]error),
	}
}

// FailOn makes every later call of the named method return err. A nil err
// clears the failure.
func (m *MockStore) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

// Calls returns the names of the methods called so far, in order.
func (m *MockStore) Calls() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.calls...)
}

// enter records the call and returns an injected failure. Callers hold mu.
func (m *MockStore) enter(method string) error {
	m.calls = append(m.calls, method)
	return m.failures[method]
}

func copyThread(t *Thread) *Thread {
	c := *t
	return &c
}

func copyMessage(msg *Message) *Message {
	c := *msg
	if msg.Metadata != nil {
		c.Metadata = append([]byte(nil), msg.Metadata...)
	}
	return &c
}

// CreateThread stores a new thread.
func (m *MockStore) CreateThread(ctx context.Context, thread *Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateThread"); err != nil {
		return err
	}
	if err := thread.validate(); err != nil {
		return err
	}
	if _, exists := m.threads[thread.ID]; exists {
		return &DatabaseError{Op: "inserting thread", Err: ErrDuplicateThread}
	}
	m.threads[thread.ID] = copyThread(thread)
	return nil
}

// UpsertThread stores the thread unless the id already exists.
func (m *MockStore) UpsertThread(ctx context.Context, thread *Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpsertThread"); err != nil {
		return err
	}
	if err := thread.validate(); err != nil {
		return err
	}
	if _, exists := m.threads[thread.ID]; !exists {
		m.threads[thread.ID] = copyThread(thread)
	}
	return nil
}

// GetThread retrieves a thread by ID.
func (m *MockStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetThread"); err != nil {
		return nil, err
	}
	t, ok := m.threads[id]
	if !ok {
		return nil, notFound(KindThread, id)
	}
	return copyThread(t), nil
}

// ResolveThreadID maps a thread id prefix to the full id.
func (m *MockStore) ResolveThreadID(ctx context.Context, prefix string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ResolveThreadID"); err != nil {
		return "", err
	}
	return resolvePrefix(ctx, KindThread, prefix, func(context.Context, string) ([]string, error) {
		var ids []string
		for id := range m.threads {
			if strings.HasPrefix(id, prefix) {
				ids = append(ids, id)
			}
		}
		return ids, nil
	})
}

// ListThreads returns threads, most recently updated first.
func (m *MockStore) ListThreads(ctx context.Context, filter ThreadFilter) ([]*Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListThreads"); err != nil {
		return nil, err
	}

	var threads []*Thread
	for _, t := range m.threads {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		threads = append(threads, copyThread(t))
	}
	sort.Slice(threads, func(i, j int) bool {
		a, b := threads[i], threads[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return threads, nil
}

// UpdateThreadStatus sets the status and bumps updated_at.
func (m *MockStore) UpdateThreadStatus(ctx context.Context, id string, status ThreadStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateThreadStatus"); err != nil {
		return err
	}
	if !status.valid() {
		return invalidInput("status", "unknown thread status: "+string(status))
	}
	t, ok := m.threads[id]
	if !ok {
		return notFound(KindThread, id)
	}
	t.Status = status
	t.UpdatedAt = bump(t.CreatedAt)
	return nil
}

// UpdateThreadPhase sets or clears the phase and bumps updated_at.
func (m *MockStore) UpdateThreadPhase(ctx context.Context, id string, phase *ThreadPhase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateThreadPhase"); err != nil {
		return err
	}
	if phase != nil && !phase.valid() {
		return invalidInput("phase", "unknown thread phase: "+string(*phase))
	}
	t, ok := m.threads[id]
	if !ok {
		return notFound(KindThread, id)
	}
	if phase == nil {
		t.Phase = nil
	} else {
		p := *phase
		t.Phase = &p
	}
	t.UpdatedAt = bump(t.CreatedAt)
	return nil
}

// bump returns now at second precision, never earlier than floor.
func bump(floor time.Time) time.Time {
	now := time.Now().UTC().Truncate(time.Second)
	if now.Before(floor) {
		return floor
	}
	return now
}

// DeleteThread removes the thread only.
func (m *MockStore) DeleteThread(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteThread"); err != nil {
		return err
	}
	if _, ok := m.threads[id]; !ok {
		return notFound(KindThread, id)
	}
	delete(m.threads, id)
	return nil
}

// InsertMessage stores one message.
func (m *MockStore) InsertMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InsertMessage"); err != nil {
		return err
	}
	if err := m.checkInsert(msg, nil); err != nil {
		return err
	}
	m.append(msg)
	return nil
}

// InsertMessages stores all messages or none of them.
func (m *MockStore) InsertMessages(ctx context.Context, msgs []*Message) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InsertMessages"); err != nil {
		return 0, err
	}
	batch := make(map[string]bool, len(msgs))
	for _, msg := range msgs {
		if err := m.checkInsert(msg, batch); err != nil {
			return 0, err
		}
		batch[msg.ID] = true
	}
	for _, msg := range msgs {
		m.append(msg)
	}
	return len(msgs), nil
}

func (m *MockStore) checkInsert(msg *Message, batch map[string]bool) error {
	if err := msg.validate(); err != nil {
		return err
	}
	if batch[msg.ID] || m.indexOf(msg.ID) >= 0 {
		return &DatabaseError{Op: "inserting message", Err: ErrDuplicateMessage}
	}
	return nil
}

func (m *MockStore) append(msg *Message) {
	m.nextSeq++
	c := copyMessage(msg)
	c.CreatedAt = c.CreatedAt.UTC().Truncate(time.Second)
	c.UpdatedAt = c.UpdatedAt.UTC().Truncate(time.Second)
	m.messages = append(m.messages, &mockMessage{seq: m.nextSeq, msg: *c})
}

func (m *MockStore) indexOf(id string) int {
	for i, mm := range m.messages {
		if mm.msg.ID == id {
			return i
		}
	}
	return -1
}

// GetMessage retrieves a message by ID.
func (m *MockStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetMessage"); err != nil {
		return nil, err
	}
	i := m.indexOf(id)
	if i < 0 {
		return nil, notFound(KindMessage, id)
	}
	return copyMessage(&m.messages[i].msg), nil
}

// ResolveMessageID maps a message id prefix to the full id.
func (m *MockStore) ResolveMessageID(ctx context.Context, prefix string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ResolveMessageID"); err != nil {
		return "", err
	}
	return resolvePrefix(ctx, KindMessage, prefix, func(context.Context, string) ([]string, error) {
		var ids []string
		for _, mm := range m.messages {
			if strings.HasPrefix(mm.msg.ID, prefix) {
				ids = append(ids, mm.msg.ID)
			}
		}
		return ids, nil
	})
}

// selectMessages returns copies of matching messages, oldest first when
// asc is set and newest first otherwise.
func (m *MockStore) selectMessages(keep func(*Message) bool, asc bool) []*Message {
	matched := make([]*mockMessage, 0)
	for _, mm := range m.messages {
		if keep(&mm.msg) {
			matched = append(matched, mm)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.msg.CreatedAt.Equal(b.msg.CreatedAt) {
			return a.msg.CreatedAt.Before(b.msg.CreatedAt) == asc
		}
		return (a.seq < b.seq) == asc
	})
	var out []*Message
	for _, mm := range matched {
		out = append(out, copyMessage(&mm.msg))
	}
	return out
}

// ListThreadMessages returns a thread's messages in conversation order.
func (m *MockStore) ListThreadMessages(ctx context.Context, threadID string, filter MessageFilter) ([]*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListThreadMessages"); err != nil {
		return nil, err
	}
	msgs := m.selectMessages(func(msg *Message) bool {
		if msg.ThreadID != threadID {
			return false
		}
		if filter.After != nil && !msg.CreatedAt.After(filter.After.UTC().Truncate(time.Second)) {
			return false
		}
		if filter.Before != nil && !msg.CreatedAt.Before(filter.Before.UTC().Truncate(time.Second)) {
			return false
		}
		return filter.MsgType == "" || msg.MsgType() == filter.MsgType
	}, true)
	if filter.Limit > 0 && len(msgs) > filter.Limit {
		msgs = msgs[:filter.Limit]
	}
	return msgs, nil
}

// ListRecentMessages returns the newest messages across all threads.
func (m *MockStore) ListRecentMessages(ctx context.Context, limit int) ([]*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListRecentMessages"); err != nil {
		return nil, err
	}
	msgs := m.selectMessages(func(*Message) bool { return true }, false)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

// SearchMessages is a case-sensitive substring match, newest first.
func (m *MockStore) SearchMessages(ctx context.Context, query string, threadID string) ([]*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SearchMessages"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, invalidInput("query", "search query must not be empty")
	}
	return m.selectMessages(func(msg *Message) bool {
		return (threadID == "" || msg.ThreadID == threadID) && strings.Contains(msg.Content, query)
	}, false), nil
}

// UpdateMessageContent replaces a message's content.
func (m *MockStore) UpdateMessageContent(ctx context.Context, id, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateMessageContent"); err != nil {
		return err
	}
	i := m.indexOf(id)
	if i < 0 {
		return notFound(KindMessage, id)
	}
	msg := &m.messages[i].msg
	msg.Content = content
	msg.UpdatedAt = bump(msg.CreatedAt)
	return nil
}

func (m *MockStore) deleteWhere(drop func(*Message) bool) int {
	kept := m.messages[:0]
	n := 0
	for _, mm := range m.messages {
		if drop(&mm.msg) {
			n++
			continue
		}
		kept = append(kept, mm)
	}
	m.messages = kept
	return n
}

// DeleteMessagesByThread removes every message of a thread.
func (m *MockStore) DeleteMessagesByThread(ctx context.Context, threadID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteMessagesByThread"); err != nil {
		return 0, err
	}
	return m.deleteWhere(func(msg *Message) bool { return msg.ThreadID == threadID }), nil
}

// DeleteMessagesBySession removes every message carrying the session id.
func (m *MockStore) DeleteMessagesBySession(ctx context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteMessagesBySession"); err != nil {
		return 0, err
	}
	return m.deleteWhere(func(msg *Message) bool {
		return msg.SessionID != nil && *msg.SessionID == sessionID
	}), nil
}

// DeleteMessagesOlderThan removes messages created strictly before cutoff.
func (m *MockStore) DeleteMessagesOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteMessagesOlderThan"); err != nil {
		return 0, err
	}
	cutoff = cutoff.UTC().Truncate(time.Second)
	return m.deleteWhere(func(msg *Message) bool { return msg.CreatedAt.Before(cutoff) }), nil
}

// FindMentions returns messages mentioning @target on a word boundary.
func (m *MockStore) FindMentions(ctx context.Context, threadID, target string) ([]*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindMentions"); err != nil {
		return nil, err
	}
	return m.findMentions(threadID, target)
}

func (m *MockStore) findMentions(threadID, target string) ([]*Message, error) {
	if target == "" {
		return nil, invalidInput("target", "mention target must not be empty")
	}
	return m.selectMessages(func(msg *Message) bool {
		return (threadID == "" || msg.ThreadID == threadID) && hasMention(msg.Content, target)
	}, false), nil
}

// CountMentions counts the messages FindMentions would return.
func (m *MockStore) CountMentions(ctx context.Context, threadID, target string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CountMentions"); err != nil {
		return 0, err
	}
	msgs, err := m.findMentions(threadID, target)
	return len(msgs), err
}

// FindByType returns messages of one msg_type, newest first.
func (m *MockStore) FindByType(ctx context.Context, threadID, msgType string) ([]*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindByType"); err != nil {
		return nil, err
	}
	if msgType == "" {
		return nil, invalidInput("msg_type", "message type must not be empty")
	}
	return m.selectMessages(func(msg *Message) bool {
		return (threadID == "" || msg.ThreadID == threadID) && msg.MsgType() == msgType
	}, false), nil
}

// FindSinceLastType returns the thread's messages after its latest message of msgType.
func (m *MockStore) FindSinceLastType(ctx context.Context, threadID, msgType string) ([]*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindSinceLastType"); err != nil {
		return nil, err
	}
	if msgType == "" {
		return nil, invalidInput("msg_type", "message type must not be empty")
	}
	thread := m.selectMessages(func(msg *Message) bool { return msg.ThreadID == threadID }, true)
	for i := len(thread) - 1; i >= 0; i-- {
		if thread[i].MsgType() == msgType {
			return thread[i+1:], nil
		}
	}
	return thread, nil
}

// Close is a no-op for MockStore.
func (m *MockStore) Close() error {
	return nil
}
