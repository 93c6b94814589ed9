// ABOUTME: Versioned schema migrations tracked in the schema_version table
// ABOUTME: Each step runs in its own transaction; a failed step aborts Open

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// migration is one schema step. Steps are applied in version order and each
// is recorded in schema_version inside the same transaction.
type migration struct {
	version int
	name    string
	apply   func(ctx context.Context, tx *sql.Tx, fts bool) error
}

var migrations = []migration{
	{version: 1, name: "threads and messages", apply: migrateBaseTables},
	{version: 2, name: "full-text index", apply: migrateFullText},
	{version: 3, name: "message type index", apply: migrateMsgTypeIndex},
	{version: 4, name: "case-sensitive trigram index", apply: migrateTrigram},
}

// SchemaVersion is the version a freshly opened store is migrated to.
var SchemaVersion = migrations[len(migrations)-1].version

const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
	version    INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
)`

func migrateBaseTables(ctx context.Context, tx *sql.Tx, _ bool) error {
	// seq is an explicit rowid alias so VACUUM can never renumber the rows
	// the full-text index points at.
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS threads (
			id         TEXT PRIMARY KEY,
			name       TEXT,
			title      TEXT NOT NULL,
			source_url TEXT,
			status     TEXT NOT NULL DEFAULT 'open',
			phase      TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			thread_id  TEXT NOT NULL,
			session_id TEXT,
			sender     TEXT,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			metadata   TEXT,
			parent_id  TEXT,
			source     TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_threads_status ON threads(status)`,
		`CREATE INDEX IF NOT EXISTS idx_threads_updated ON threads(updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at)`,
	}
	return execAll(ctx, tx, stmts)
}

// ftsTokenizer makes a phrase query an exact substring match, the same
// semantics as the substring strategy.
const ftsTokenizer = "trigram case_sensitive 1"

const ftsTable = `CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
	content,
	content='messages',
	content_rowid='seq',
	tokenize='` + ftsTokenizer + `'
)`

var ftsTriggers = map[string]string{
	"messages_fts_ai": `CREATE TRIGGER IF NOT EXISTS messages_fts_ai AFTER INSERT ON messages BEGIN
		INSERT INTO messages_fts(rowid, content) VALUES (new.seq, new.content);
	END`,
	"messages_fts_ad": `CREATE TRIGGER IF NOT EXISTS messages_fts_ad AFTER DELETE ON messages BEGIN
		INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.seq, old.content);
	END`,
	"messages_fts_au": `CREATE TRIGGER IF NOT EXISTS messages_fts_au AFTER UPDATE OF content ON messages BEGIN
		INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.seq, old.content);
		INSERT INTO messages_fts(rowid, content) VALUES (new.seq, new.content);
	END`,
}

var ftsTriggerNames = []string{"messages_fts_ai", "messages_fts_ad", "messages_fts_au"}

// migrateFullText creates the index when the fts5 module is present. Without
// it the step is still recorded; ensureSearchIndex builds the index later if
// the database is reopened by a driver that has the module.
func migrateFullText(ctx context.Context, tx *sql.Tx, fts bool) error {
	if !fts {
		return nil
	}
	return createFullText(ctx, tx)
}

func createFullText(ctx context.Context, q querier) error {
	stmts := []string{ftsTable}
	for _, name := range ftsTriggerNames {
		stmts = append(stmts, ftsTriggers[name])
	}
	stmts = append(stmts, `INSERT INTO messages_fts(messages_fts) VALUES ('rebuild')`)
	return execAll(ctx, q, stmts)
}

func dropFullText(ctx context.Context, q querier) error {
	var stmts []string
	for _, name := range ftsTriggerNames {
		stmts = append(stmts, "DROP TRIGGER IF EXISTS "+name)
	}
	stmts = append(stmts, "DROP TABLE IF EXISTS messages_fts")
	return execAll(ctx, q, stmts)
}

// migrateTrigram replaces a word-tokenized index from earlier versions. The
// old table can only be dropped with the module loaded; ensureSearchIndex
// handles databases that reach this step without it.
func migrateTrigram(ctx context.Context, tx *sql.Tx, fts bool) error {
	if !fts {
		return nil
	}
	if err := dropFullText(ctx, tx); err != nil {
		return err
	}
	return createFullText(ctx, tx)
}

func migrateMsgTypeIndex(ctx context.Context, tx *sql.Tx, _ bool) error {
	return execAll(ctx, tx, []string{
		`CREATE INDEX IF NOT EXISTS idx_messages_msg_type
			ON messages(thread_id, json_extract(metadata, '$.msg_type'))`,
	})
}

func execAll(ctx context.Context, q querier, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrate applies every migration newer than the recorded version.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaVersionTable); err != nil {
		return dbError("creating schema_version table", err)
	}

	current, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return err
		}
		s.logger.Info("applied migration", "version", m.version, "name", m.name)
	}
	return nil
}

func (s *SQLiteStore) applyMigration(ctx context.Context, m migration) error {
	op := fmt.Sprintf("migration v%d (%s)", m.version, m.name)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError(op, err)
	}
	defer tx.Rollback()

	if err := m.apply(ctx, tx, s.fts); err != nil {
		return dbError(op, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`,
		m.version, formatTime(time.Now()),
	); err != nil {
		return dbError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return dbError(op, err)
	}
	return nil
}

func (s *SQLiteStore) schemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v)
	if err != nil {
		return 0, dbError("reading schema version", err)
	}
	return v, nil
}

// ftsModuleAvailable probes for the fts5 module with a throwaway temp table.
func ftsModuleAvailable(ctx context.Context, db *sql.DB) bool {
	if _, err := db.ExecContext(ctx, `CREATE VIRTUAL TABLE IF NOT EXISTS temp.fts5_probe USING fts5(x)`); err != nil {
		return false
	}
	_, _ = db.ExecContext(ctx, `DROP TABLE IF EXISTS temp.fts5_probe`)
	return true
}

// ensureSearchIndex reconciles the full-text shadow table with the driver in
// use. With the module present, missing objects are recreated and the index
// is rebuilt from messages; a table built with another tokenizer is replaced
// first. Without it, the sync triggers are dropped because they would make
// every write to messages fail.
func (s *SQLiteStore) ensureSearchIndex(ctx context.Context) error {
	names, err := s.schemaObjects(ctx)
	if err != nil {
		return err
	}

	if !s.fts {
		for _, name := range ftsTriggerNames {
			if _, ok := names[name]; !ok {
				continue
			}
			if _, err := s.db.ExecContext(ctx, "DROP TRIGGER IF EXISTS "+name); err != nil {
				return dbError("dropping full-text trigger", err)
			}
			s.logger.Warn("dropped full-text sync trigger", "trigger", name)
		}
		return nil
	}

	table, hasTable := names["messages_fts"]
	stale := hasTable && !strings.Contains(table, ftsTokenizer)
	complete := hasTable && !stale
	for _, name := range ftsTriggerNames {
		_, ok := names[name]
		complete = complete && ok
	}
	if complete {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError("rebuilding full-text index", err)
	}
	defer tx.Rollback()
	if stale {
		if err := dropFullText(ctx, tx); err != nil {
			return dbError("replacing full-text index", err)
		}
	}
	if err := createFullText(ctx, tx); err != nil {
		return dbError("rebuilding full-text index", err)
	}
	if err := tx.Commit(); err != nil {
		return dbError("rebuilding full-text index", err)
	}
	s.logger.Info("rebuilt full-text index", "replaced", stale)
	return nil
}

// schemaObjects maps the names of the full-text table and triggers to their
// CREATE statements.
func (s *SQLiteStore) schemaObjects(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, COALESCE(sql, '') FROM sqlite_master
		WHERE type IN ('table', 'trigger') AND name LIKE 'messages_fts%'`)
	if err != nil {
		return nil, dbError("listing schema objects", err)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var name, stmt string
		if err := rows.Scan(&name, &stmt); err != nil {
			return nil, dbError("listing schema objects", err)
		}
		names[name] = stmt
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("listing schema objects", err)
	}
	return names, nil
}
