// ABOUTME: Service is the use-case layer between the CLI and the persistence engine
// ABOUTME: Resolves short ids, validates content, assigns ids and timestamps, and composes cleanup

package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/afmon/aiboard-cli/internal/cleanup"
	"github.com/afmon/aiboard-cli/internal/store"
)

// DefaultMaxContentBytes bounds message content.
const DefaultMaxContentBytes = 1 << 20

// ConversationStore defines what the service needs from storage
type ConversationStore interface {
	store.ThreadStore
	store.MessageStore
}

// Config tunes the service. Zero values take defaults.
type Config struct {
	MaxContentBytes int
}

// Service runs thread and message use cases.
type Service struct {
	store           ConversationStore
	cleanup         *cleanup.Service
	logger          *slog.Logger
	maxContentBytes int
	now             func() time.Time
	newID           func() string
}

// New creates a new Service
func New(s ConversationStore, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxContentBytes <= 0 {
		cfg.MaxContentBytes = DefaultMaxContentBytes
	}
	return &Service{
		store:           s,
		cleanup:         cleanup.New(s, logger),
		logger:          logger.With("component", "conversation"),
		maxContentBytes: cfg.MaxContentBytes,
		now:             time.Now,
		newID:           uuid.NewString,
	}
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

// ValidateContent checks the size, NUL and UTF-8 preconditions on message
// content.
func ValidateContent(content string, maxBytes int) error {
	if len(content) > maxBytes {
		return &store.InvalidInputError{
			Field:  "content",
			Reason: fmt.Sprintf("content exceeds %d byte limit (%d bytes)", maxBytes, len(content)),
		}
	}
	if strings.IndexByte(content, 0) >= 0 {
		return &store.InvalidInputError{Field: "content", Reason: "content contains NUL bytes"}
	}
	if !utf8.ValidString(content) {
		return &store.InvalidInputError{Field: "content", Reason: "content is not valid UTF-8"}
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CreateThreadRequest describes a new thread.
type CreateThreadRequest struct {
	Title     string
	Name      string
	SourceURL string
}

// CreateThread creates an open thread with a fresh id.
func (s *Service) CreateThread(ctx context.Context, req CreateThreadRequest) (*store.Thread, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, &store.InvalidInputError{Field: "title", Reason: "thread title must not be empty"}
	}
	now := s.timestamp()
	thread := &store.Thread{
		ID:        s.newID(),
		Name:      optional(req.Name),
		Title:     req.Title,
		SourceURL: optional(req.SourceURL),
		Status:    store.ThreadStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("creating thread: %w", err)
	}

	s.logger.Debug("thread created", "thread_id", thread.ID)
	return thread, nil
}

// GetThread returns the thread addressed by a full or short id.
func (s *Service) GetThread(ctx context.Context, ref string) (*store.Thread, error) {
	id, err := s.store.ResolveThreadID(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.store.GetThread(ctx, id)
}

// ListThreads lists threads, most recently updated first. A nil status lists all.
func (s *Service) ListThreads(ctx context.Context, status *store.ThreadStatus) ([]*store.Thread, error) {
	return s.store.ListThreads(ctx, store.ThreadFilter{Status: status})
}

// CloseThread marks a thread closed. Closed threads still accept messages.
func (s *Service) CloseThread(ctx context.Context, ref string) (*store.Thread, error) {
	return s.setStatus(ctx, ref, store.ThreadStatusClosed)
}

// ReopenThread marks a thread open again.
func (s *Service) ReopenThread(ctx context.Context, ref string) (*store.Thread, error) {
	return s.setStatus(ctx, ref, store.ThreadStatusOpen)
}

func (s *Service) setStatus(ctx context.Context, ref string, status store.ThreadStatus) (*store.Thread, error) {
	id, err := s.store.ResolveThreadID(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateThreadStatus(ctx, id, status); err != nil {
		return nil, err
	}
	s.logger.Debug("thread status changed", "thread_id", id, "status", status)
	return s.store.GetThread(ctx, id)
}

// SetPhase sets the thread phase from its name; "none" or "" clears it.
func (s *Service) SetPhase(ctx context.Context, ref, phase string) (*store.Thread, error) {
	p, err := store.ParseThreadPhase(phase)
	if err != nil {
		return nil, err
	}
	id, err := s.store.ResolveThreadID(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateThreadPhase(ctx, id, p); err != nil {
		return nil, err
	}
	s.logger.Debug("thread phase changed", "thread_id", id, "phase", phase)
	return s.store.GetThread(ctx, id)
}

// DeleteThread removes a thread and all of its messages, returning the
// message count.
func (s *Service) DeleteThread(ctx context.Context, ref string) (string, int, error) {
	id, err := s.store.ResolveThreadID(ctx, ref)
	if err != nil {
		return "", 0, err
	}
	n, err := s.cleanup.ByThread(ctx, id)
	if err != nil {
		return "", 0, err
	}
	return id, n, nil
}

// PostRequest describes a message to post. Thread and parent may be short ids.
type PostRequest struct {
	ThreadRef string
	Role      string
	Content   string
	SessionID string
	Sender    string
	Metadata  json.RawMessage
	ParentRef string
	Source    string
}

// PostResult is the stored message and the thread it went to.
type PostResult struct {
	Message *store.Message
	Thread  *store.Thread
}

// Post validates and stores one message.
func (s *Service) Post(ctx context.Context, req PostRequest) (*PostResult, error) {
	if err := ValidateContent(req.Content, s.maxContentBytes); err != nil {
		return nil, err
	}
	role := store.RoleUser
	if req.Role != "" {
		r, err := store.ParseRole(req.Role)
		if err != nil {
			return nil, err
		}
		role = r
	}

	thread, err := s.GetThread(ctx, req.ThreadRef)
	if err != nil {
		return nil, err
	}

	var parentID *string
	if req.ParentRef != "" {
		id, err := s.store.ResolveMessageID(ctx, req.ParentRef)
		if err != nil {
			return nil, err
		}
		parentID = &id
	}

	now := s.timestamp()
	msg := &store.Message{
		ID:        s.newID(),
		ThreadID:  thread.ID,
		SessionID: optional(req.SessionID),
		Sender:    optional(req.Sender),
		Role:      role,
		Content:   req.Content,
		Metadata:  req.Metadata,
		ParentID:  parentID,
		Source:    optional(req.Source),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("posting message: %w", err)
	}

	if thread.Status == store.ThreadStatusClosed {
		s.logger.Info("posted to closed thread", "thread_id", thread.ID)
	}
	s.logger.Debug("message posted", "thread_id", thread.ID, "message_id", msg.ID)
	return &PostResult{Message: msg, Thread: thread}, nil
}

// ReadRequest selects messages of one thread. SinceType returns only the
// messages after the latest message of that type; Limit then keeps the
// earliest ones.
type ReadRequest struct {
	ThreadRef string
	After     *time.Time
	Before    *time.Time
	Limit     int
	MsgType   string
	SinceType string
}

// Read returns a thread's messages in conversation order.
func (s *Service) Read(ctx context.Context, req ReadRequest) ([]*store.Message, error) {
	id, err := s.store.ResolveThreadID(ctx, req.ThreadRef)
	if err != nil {
		return nil, err
	}

	if req.SinceType == "" {
		return s.store.ListThreadMessages(ctx, id, store.MessageFilter{
			After:   req.After,
			Before:  req.Before,
			MsgType: req.MsgType,
			Limit:   req.Limit,
		})
	}

	msgs, err := s.store.FindSinceLastType(ctx, id, req.SinceType)
	if err != nil {
		return nil, err
	}
	msgs = filterMessages(msgs, req)
	if req.Limit > 0 && len(msgs) > req.Limit {
		msgs = msgs[:req.Limit]
	}
	return msgs, nil
}

func filterMessages(msgs []*store.Message, req ReadRequest) []*store.Message {
	out := msgs[:0]
	for _, m := range msgs {
		if req.After != nil && !m.CreatedAt.After(*req.After) {
			continue
		}
		if req.Before != nil && !m.CreatedAt.Before(*req.Before) {
			continue
		}
		if req.MsgType != "" && m.MsgType() != req.MsgType {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Recent returns the newest messages across all threads.
func (s *Service) Recent(ctx context.Context, limit int) ([]*store.Message, error) {
	return s.store.ListRecentMessages(ctx, limit)
}

// Search finds messages by content, newest first. threadRef may be empty.
func (s *Service) Search(ctx context.Context, query, threadRef string) ([]*store.Message, error) {
	threadID, err := s.optionalThread(ctx, threadRef)
	if err != nil {
		return nil, err
	}
	return s.store.SearchMessages(ctx, query, threadID)
}

// Update replaces a message's content and returns its full id.
func (s *Service) Update(ctx context.Context, messageRef, content string) (string, error) {
	if err := ValidateContent(content, s.maxContentBytes); err != nil {
		return "", err
	}
	id, err := s.store.ResolveMessageID(ctx, messageRef)
	if err != nil {
		return "", err
	}
	if err := s.store.UpdateMessageContent(ctx, id, content); err != nil {
		return "", err
	}
	s.logger.Debug("message updated", "message_id", id)
	return id, nil
}

// Mentions returns messages mentioning @target, newest first.
func (s *Service) Mentions(ctx context.Context, threadRef, target string) ([]*store.Message, error) {
	threadID, err := s.optionalThread(ctx, threadRef)
	if err != nil {
		return nil, err
	}
	return s.store.FindMentions(ctx, threadID, strings.TrimPrefix(target, "@"))
}

// MentionCount counts messages mentioning @target.
func (s *Service) MentionCount(ctx context.Context, threadRef, target string) (int, error) {
	threadID, err := s.optionalThread(ctx, threadRef)
	if err != nil {
		return 0, err
	}
	return s.store.CountMentions(ctx, threadID, strings.TrimPrefix(target, "@"))
}

// ByType returns messages with the given metadata msg_type, newest first.
func (s *Service) ByType(ctx context.Context, threadRef, msgType string) ([]*store.Message, error) {
	threadID, err := s.optionalThread(ctx, threadRef)
	if err != nil {
		return nil, err
	}
	return s.store.FindByType(ctx, threadID, msgType)
}

func (s *Service) optionalThread(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	return s.store.ResolveThreadID(ctx, ref)
}
