// ABOUTME: SQLite thread persistence: create, upsert, lookup, listing and lifecycle updates
// ABOUTME: Deleting a thread leaves its messages alone; the cleanup package composes both

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const threadColumns = `id, name, title, source_url, status, phase, created_at, updated_at`

// CreateThread inserts a new thread. An existing id yields a *DatabaseError
// wrapping ErrDuplicateThread.
func (s *SQLiteStore) CreateThread(ctx context.Context, thread *Thread) error {
	if err := thread.validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (`+threadColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		threadArgs(thread)...,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return &DatabaseError{Op: "inserting thread", Err: fmt.Errorf("%w: %v", ErrDuplicateThread, err)}
		}
		return dbError("inserting thread", err)
	}

	s.logger.Debug("created thread", "id", thread.ID, "title", thread.Title)
	return nil
}

// UpsertThread inserts the thread unless one with the same id already
// exists, in which case the stored row is left untouched.
func (s *SQLiteStore) UpsertThread(ctx context.Context, thread *Thread) error {
	if err := thread.validate(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO threads (`+threadColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		threadArgs(thread)...,
	)
	if err != nil {
		return dbError("upserting thread", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug("created thread", "id", thread.ID, "title", thread.Title)
	}
	return nil
}

func threadArgs(t *Thread) []any {
	var phase any
	if t.Phase != nil {
		phase = string(*t.Phase)
	}
	return []any{
		t.ID,
		nullString(t.Name),
		t.Title,
		nullString(t.SourceURL),
		string(t.Status),
		phase,
		formatTime(t.CreatedAt),
		formatTime(t.UpdatedAt),
	}
}

// GetThread retrieves a thread by full id.
func (s *SQLiteStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+threadColumns+` FROM threads WHERE id = ?`, id)
	thread, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(KindThread, id)
	}
	if err != nil {
		return nil, dbError("getting thread", err)
	}
	return thread, nil
}

// ListThreads returns threads, most recently updated first.
func (s *SQLiteStore) ListThreads(ctx context.Context, filter ThreadFilter) ([]*Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads`
	var args []any
	if filter.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*filter.Status))
	}
	query += ` ORDER BY updated_at DESC, created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("listing threads", err)
	}
	defer rows.Close()

	var threads []*Thread
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, dbError("scanning thread", err)
		}
		threads = append(threads, thread)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterating threads", err)
	}
	return threads, nil
}

// UpdateThreadStatus sets the status and bumps updated_at.
func (s *SQLiteStore) UpdateThreadStatus(ctx context.Context, id string, status ThreadStatus) error {
	if !status.valid() {
		return invalidInput("status", "unknown thread status: "+string(status))
	}
	return s.updateThread(ctx, id, "status", string(status))
}

// UpdateThreadPhase sets the phase and bumps updated_at. A nil phase clears it.
func (s *SQLiteStore) UpdateThreadPhase(ctx context.Context, id string, phase *ThreadPhase) error {
	var value any
	if phase != nil {
		if !phase.valid() {
			return invalidInput("phase", "unknown thread phase: "+string(*phase))
		}
		value = string(*phase)
	}
	return s.updateThread(ctx, id, "phase", value)
}

// updateThread writes one lifecycle column. column is never caller input.
func (s *SQLiteStore) updateThread(ctx context.Context, id, column string, value any) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE threads SET `+column+` = ?, updated_at = max(created_at, ?) WHERE id = ?`,
		value, formatTime(time.Now()), id,
	)
	if err != nil {
		return dbError("updating thread "+column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError("updating thread "+column, err)
	}
	if n == 0 {
		return notFound(KindThread, id)
	}

	s.logger.Debug("updated thread", "id", id, column, value)
	return nil
}

// DeleteThread removes the thread row only.
func (s *SQLiteStore) DeleteThread(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, id)
	if err != nil {
		return dbError("deleting thread", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError("deleting thread", err)
	}
	if n == 0 {
		return notFound(KindThread, id)
	}

	s.logger.Debug("deleted thread", "id", id)
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanThread(row scanner) (*Thread, error) {
	var (
		thread               Thread
		name, url, phase     sql.NullString
		status               string
		createdAt, updatedAt string
	)
	if err := row.Scan(&thread.ID, &name, &thread.Title, &url, &status, &phase, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	thread.Name = stringPtr(name)
	thread.SourceURL = stringPtr(url)
	thread.Status = ThreadStatus(status)
	if phase.Valid {
		p := ThreadPhase(phase.String)
		thread.Phase = &p
	}

	var err error
	if thread.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if thread.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &thread, nil
}
