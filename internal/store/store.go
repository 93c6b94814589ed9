// ABOUTME: Store interfaces and data types for aiboard persistence
// ABOUTME: Defines Thread, Message, their enums and the ThreadStore/MessageStore contracts

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ThreadStatus is the open/closed lifecycle state of a thread.
type ThreadStatus string

const (
	ThreadStatusOpen   ThreadStatus = "open"
	ThreadStatusClosed ThreadStatus = "closed"
)

// ParseThreadStatus parses a case-insensitive status name.
func ParseThreadStatus(s string) (ThreadStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return ThreadStatusOpen, nil
	case "closed":
		return ThreadStatusClosed, nil
	}
	return "", invalidInput("status", fmt.Sprintf("unknown thread status: %s", s))
}

func (s ThreadStatus) valid() bool {
	return s == ThreadStatusOpen || s == ThreadStatusClosed
}

// ThreadPhase is the optional work phase of a thread.
type ThreadPhase string

const (
	PhasePlanning     ThreadPhase = "planning"
	PhaseImplementing ThreadPhase = "implementing"
	PhaseReviewing    ThreadPhase = "reviewing"
	PhaseDone         ThreadPhase = "done"
)

// ParseThreadPhase parses a case-insensitive phase name. "none" and the
// empty string yield a nil phase.
func ParseThreadPhase(s string) (*ThreadPhase, error) {
	var p ThreadPhase
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return nil, nil
	case "planning":
		p = PhasePlanning
	case "implementing":
		p = PhaseImplementing
	case "reviewing":
		p = PhaseReviewing
	case "done":
		p = PhaseDone
	default:
		return nil, invalidInput("phase", fmt.Sprintf("unknown thread phase: %s", s))
	}
	return &p, nil
}

func (p ThreadPhase) valid() bool {
	switch p {
	case PhasePlanning, PhaseImplementing, PhaseReviewing, PhaseDone:
		return true
	}
	return false
}

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ParseRole parses a case-insensitive role name.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.valid() {
		return "", invalidInput("role", fmt.Sprintf("unknown role: %s", s))
	}
	return r, nil
}

func (r Role) valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// Thread is a named container grouping an ordered sequence of messages.
type Thread struct {
	ID        string       `json:"id"`
	Name      *string      `json:"name"`
	Title     string       `json:"title"`
	SourceURL *string      `json:"source_url"`
	Status    ThreadStatus `json:"status"`
	Phase     *ThreadPhase `json:"phase"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Message is a single timestamped content record belonging to one thread.
// Metadata is kept verbatim as raw JSON.
type Message struct {
	ID        string          `json:"id"`
	ThreadID  string          `json:"thread_id"`
	SessionID *string         `json:"session_id"`
	Sender    *string         `json:"sender"`
	Role      Role            `json:"role"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata"`
	ParentID  *string         `json:"parent_id"`
	Source    *string         `json:"source"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// MsgTypeKey is the metadata key that carries a message's semantic type.
const MsgTypeKey = "msg_type"

// ThreadFilter narrows ListThreads. A nil Status lists every thread.
type ThreadFilter struct {
	Status *ThreadStatus
}

// MessageFilter narrows ListThreadMessages. Time bounds are exclusive.
// Limit <= 0 means no limit.
type MessageFilter struct {
	After   *time.Time
	Before  *time.Time
	MsgType string
	Limit   int
}

// ThreadStore defines thread persistence.
type ThreadStore interface {
	CreateThread(ctx context.Context, thread *Thread) error
	UpsertThread(ctx context.Context, thread *Thread) error
	GetThread(ctx context.Context, id string) (*Thread, error)
	ResolveThreadID(ctx context.Context, prefix string) (string, error)
	ListThreads(ctx context.Context, filter ThreadFilter) ([]*Thread, error)
	UpdateThreadStatus(ctx context.Context, id string, status ThreadStatus) error
	UpdateThreadPhase(ctx context.Context, id string, phase *ThreadPhase) error
	DeleteThread(ctx context.Context, id string) error
}

// MessageStore defines message persistence.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *Message) error
	InsertMessages(ctx context.Context, msgs []*Message) (int, error)
	GetMessage(ctx context.Context, id string) (*Message, error)
	ResolveMessageID(ctx context.Context, prefix string) (string, error)
	ListThreadMessages(ctx context.Context, threadID string, filter MessageFilter) ([]*Message, error)
	ListRecentMessages(ctx context.Context, limit int) ([]*Message, error)
	SearchMessages(ctx context.Context, query string, threadID string) ([]*Message, error)
	UpdateMessageContent(ctx context.Context, id, content string) error
	DeleteMessagesByThread(ctx context.Context, threadID string) (int, error)
	DeleteMessagesBySession(ctx context.Context, sessionID string) (int, error)
	DeleteMessagesOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	FindMentions(ctx context.Context, threadID, target string) ([]*Message, error)
	CountMentions(ctx context.Context, threadID, target string) (int, error)
	FindByType(ctx context.Context, threadID, msgType string) ([]*Message, error)
	FindSinceLastType(ctx context.Context, threadID, msgType string) ([]*Message, error)
}

// Store is the full persistence engine.
type Store interface {
	ThreadStore
	MessageStore
	Close() error
}

// MsgType returns the msg_type metadata value, or "" if absent.
func (m *Message) MsgType() string {
	if len(m.Metadata) == 0 {
		return ""
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(m.Metadata, &fields); err != nil {
		return ""
	}
	var t string
	if raw, ok := fields[MsgTypeKey]; ok {
		_ = json.Unmarshal(raw, &t)
	}
	return t
}

// validate checks the preconditions InsertMessage enforces.
func (m *Message) validate() error {
	if m == nil {
		return invalidInput("message", "message is required")
	}
	if m.ID == "" {
		return invalidInput("id", "message id is required")
	}
	if m.ThreadID == "" {
		return invalidInput("thread_id", "thread id is required")
	}
	if !m.Role.valid() {
		return invalidInput("role", fmt.Sprintf("unknown role: %s", m.Role))
	}
	if len(m.Metadata) > 0 && !json.Valid(m.Metadata) {
		return invalidInput("metadata", "metadata must be valid JSON")
	}
	return nil
}

func (t *Thread) validate() error {
	if t == nil {
		return invalidInput("thread", "thread is required")
	}
	if t.ID == "" {
		return invalidInput("id", "thread id is required")
	}
	if t.Title == "" {
		return invalidInput("title", "thread title is required")
	}
	if t.Status == "" {
		t.Status = ThreadStatusOpen
	}
	if !t.Status.valid() {
		return invalidInput("status", fmt.Sprintf("unknown thread status: %s", t.Status))
	}
	if t.Phase != nil && !t.Phase.valid() {
		return invalidInput("phase", fmt.Sprintf("unknown thread phase: %s", *t.Phase))
	}
	if t.UpdatedAt.Before(t.CreatedAt) {
		return invalidInput("updated_at", "updated_at precedes created_at")
	}
	return nil
}
