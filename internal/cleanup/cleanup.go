// ABOUTME: Retention and scope-based bulk deletion composed from the thread and message stores
// ABOUTME: ByThread deletes messages first, then the thread row, without a shared transaction

package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/afmon/aiboard-cli/internal/store"
)

// Store is the slice of persistence cleanup needs.
type Store interface {
	DeleteThread(ctx context.Context, id string) error
	DeleteMessagesByThread(ctx context.Context, threadID string) (int, error)
	DeleteMessagesBySession(ctx context.Context, sessionID string) (int, error)
	DeleteMessagesOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

var _ Store = (store.Store)(nil)

// Service runs cleanup operations.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a cleanup Service.
func New(s Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  s,
		logger: logger.With("component", "cleanup"),
		now:    time.Now,
	}
}

// ByAge deletes messages created more than days days ago and returns how
// many were removed. Threads are not touched.
func (s *Service) ByAge(ctx context.Context, days int) (int, error) {
	if days < 0 {
		return 0, &store.InvalidInputError{Field: "days", Reason: "days must not be negative"}
	}
	cutoff := s.now().UTC().AddDate(0, 0, -days)

	n, err := s.store.DeleteMessagesOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting messages older than %d days: %w", days, err)
	}

	s.logger.Info("cleaned up old messages", "days", days, "cutoff", cutoff, "deleted", n)
	return n, nil
}

// ByThread deletes every message of the thread and then the thread itself,
// returning the message count. A missing thread fails the second step, by
// which point its messages are already gone.
func (s *Service) ByThread(ctx context.Context, threadID string) (int, error) {
	n, err := s.store.DeleteMessagesByThread(ctx, threadID)
	if err != nil {
		return 0, fmt.Errorf("deleting messages of thread %s: %w", threadID, err)
	}
	if err := s.store.DeleteThread(ctx, threadID); err != nil {
		return 0, fmt.Errorf("deleting thread %s: %w", threadID, err)
	}

	s.logger.Info("cleaned up thread", "thread_id", threadID, "deleted", n)
	return n, nil
}

// BySession deletes every message carrying the session id. Threads are not
// touched.
func (s *Service) BySession(ctx context.Context, sessionID string) (int, error) {
	if sessionID == "" {
		return 0, &store.InvalidInputError{Field: "session_id", Reason: "session id must not be empty"}
	}
	n, err := s.store.DeleteMessagesBySession(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("deleting messages of session %s: %w", sessionID, err)
	}

	s.logger.Info("cleaned up session", "session_id", sessionID, "deleted", n)
	return n, nil
}
