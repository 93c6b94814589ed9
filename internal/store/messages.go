// ABOUTME: SQLite message persistence: single and atomic batch inserts, listings and bulk deletes
// ABOUTME: Conversation order is created_at ascending with insertion order breaking ties

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const messageColumns = `m.id, m.thread_id, m.session_id, m.sender, m.role, m.content, m.metadata, m.parent_id, m.source, m.created_at, m.updated_at`

const (
	orderConversation = ` ORDER BY m.created_at ASC, m.seq ASC`
	orderRecent       = ` ORDER BY m.created_at DESC, m.seq DESC`
)

// InsertMessage writes one message exactly as given.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *Message) error {
	if err := insertMessage(ctx, s.db, msg); err != nil {
		return err
	}
	s.logger.Debug("inserted message", "id", msg.ID, "thread_id", msg.ThreadID)
	return nil
}

// InsertMessages writes every message in one transaction. On any failure the
// whole batch is rolled back and the failing insert's error is returned.
func (s *SQLiteStore) InsertMessages(ctx context.Context, msgs []*Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, dbError("beginning batch insert", err)
	}
	defer tx.Rollback()

	for _, msg := range msgs {
		if err := insertMessage(ctx, tx, msg); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, dbError("committing batch insert", err)
	}

	s.logger.Debug("inserted messages", "count", len(msgs))
	return len(msgs), nil
}

func insertMessage(ctx context.Context, q querier, msg *Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	var metadata any
	if len(msg.Metadata) > 0 {
		metadata = string(msg.Metadata)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO messages (id, thread_id, session_id, sender, role, content, metadata, parent_id, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID,
		msg.ThreadID,
		nullString(msg.SessionID),
		nullString(msg.Sender),
		string(msg.Role),
		msg.Content,
		metadata,
		nullString(msg.ParentID),
		nullString(msg.Source),
		formatTime(msg.CreatedAt),
		formatTime(msg.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return &DatabaseError{Op: "inserting message", Err: fmt.Errorf("%w: %v", ErrDuplicateMessage, err)}
		}
		return dbError("inserting message", err)
	}
	return nil
}

// GetMessage retrieves a message by full id.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages m WHERE m.id = ?`, id)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(KindMessage, id)
	}
	if err != nil {
		return nil, dbError("getting message", err)
	}
	return msg, nil
}

// ListThreadMessages returns a thread's messages in conversation order.
// A limit keeps the earliest messages.
func (s *SQLiteStore) ListThreadMessages(ctx context.Context, threadID string, filter MessageFilter) ([]*Message, error) {
	where := []string{`m.thread_id = ?`}
	args := []any{threadID}
	if filter.After != nil {
		where = append(where, `m.created_at > ?`)
		args = append(args, formatTime(*filter.After))
	}
	if filter.Before != nil {
		where = append(where, `m.created_at < ?`)
		args = append(args, formatTime(*filter.Before))
	}
	if filter.MsgType != "" {
		where = append(where, `json_extract(m.metadata, '$.msg_type') = ?`)
		args = append(args, filter.MsgType)
	}

	query := `SELECT ` + messageColumns + ` FROM messages m WHERE ` + strings.Join(where, " AND ") + orderConversation
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	return s.queryMessages(ctx, s.db, "listing thread messages", query, args...)
}

// ListRecentMessages returns the newest messages across all threads.
// limit <= 0 returns everything.
func (s *SQLiteStore) ListRecentMessages(ctx context.Context, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryMessages(ctx, s.db, "listing recent messages",
		`SELECT `+messageColumns+` FROM messages m`+orderRecent+` LIMIT ?`, limit)
}

// UpdateMessageContent replaces the content and sets updated_at to now.
func (s *SQLiteStore) UpdateMessageContent(ctx context.Context, id, content string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET content = ?, updated_at = max(created_at, ?) WHERE id = ?`,
		content, formatTime(time.Now()), id,
	)
	if err != nil {
		return dbError("updating message", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError("updating message", err)
	}
	if n == 0 {
		return notFound(KindMessage, id)
	}

	s.logger.Debug("updated message", "id", id)
	return nil
}

// DeleteMessagesByThread removes every message of a thread.
func (s *SQLiteStore) DeleteMessagesByThread(ctx context.Context, threadID string) (int, error) {
	return s.deleteMessages(ctx, "deleting thread messages", `DELETE FROM messages WHERE thread_id = ?`, threadID)
}

// DeleteMessagesBySession removes every message carrying the session id.
func (s *SQLiteStore) DeleteMessagesBySession(ctx context.Context, sessionID string) (int, error) {
	return s.deleteMessages(ctx, "deleting session messages", `DELETE FROM messages WHERE session_id = ?`, sessionID)
}

// DeleteMessagesOlderThan removes messages created strictly before cutoff.
func (s *SQLiteStore) DeleteMessagesOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	return s.deleteMessages(ctx, "deleting old messages", `DELETE FROM messages WHERE created_at < ?`, formatTime(cutoff))
}

func (s *SQLiteStore) deleteMessages(ctx context.Context, op, query string, arg any) (int, error) {
	res, err := s.db.ExecContext(ctx, query, arg)
	if err != nil {
		return 0, dbError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbError(op, err)
	}

	s.logger.Debug("deleted messages", "op", op, "count", n)
	return int(n), nil
}

// FindByType returns messages whose metadata msg_type equals msgType, newest
// first. An empty threadID searches every thread.
func (s *SQLiteStore) FindByType(ctx context.Context, threadID, msgType string) ([]*Message, error) {
	if msgType == "" {
		return nil, invalidInput("msg_type", "message type must not be empty")
	}
	query := `SELECT ` + messageColumns + ` FROM messages m WHERE json_extract(m.metadata, '$.msg_type') = ?`
	args := []any{msgType}
	if threadID != "" {
		query += ` AND m.thread_id = ?`
		args = append(args, threadID)
	}
	return s.queryMessages(ctx, s.db, "finding messages by type", query+orderRecent, args...)
}

// FindSinceLastType returns the thread's messages that follow its most recent
// message of msgType, in conversation order. With no such message every
// message of the thread is returned.
func (s *SQLiteStore) FindSinceLastType(ctx context.Context, threadID, msgType string) ([]*Message, error) {
	if msgType == "" {
		return nil, invalidInput("msg_type", "message type must not be empty")
	}

	var (
		markCreated string
		markSeq     int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT m.created_at, m.seq FROM messages m
		WHERE m.thread_id = ? AND json_extract(m.metadata, '$.msg_type') = ?`+orderRecent+` LIMIT 1`,
		threadID, msgType,
	).Scan(&markCreated, &markSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return s.ListThreadMessages(ctx, threadID, MessageFilter{})
	}
	if err != nil {
		return nil, dbError("finding last message of type", err)
	}

	return s.queryMessages(ctx, s.db, "listing messages since type",
		`SELECT `+messageColumns+` FROM messages m
		WHERE m.thread_id = ? AND (m.created_at > ? OR (m.created_at = ? AND m.seq > ?))`+orderConversation,
		threadID, markCreated, markCreated, markSeq,
	)
}

func (s *SQLiteStore) queryMessages(ctx context.Context, q querier, op, query string, args ...any) ([]*Message, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(op, err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, dbError(op, err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(op, err)
	}
	return msgs, nil
}

func scanMessage(row scanner) (*Message, error) {
	var (
		msg                                   Message
		session, sender, meta, parent, source sql.NullString
		role, createdAt, updatedAt            string
	)
	err := row.Scan(
		&msg.ID,
		&msg.ThreadID,
		&session,
		&sender,
		&role,
		&msg.Content,
		&meta,
		&parent,
		&source,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	msg.SessionID = stringPtr(session)
	msg.Sender = stringPtr(sender)
	msg.Role = Role(role)
	msg.ParentID = stringPtr(parent)
	msg.Source = stringPtr(source)
	if meta.Valid {
		msg.Metadata = json.RawMessage(meta.String)
	}

	if msg.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if msg.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &msg, nil
}
