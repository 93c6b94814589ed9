// Package store is the aiboard persistence engine: threads and the messages
// posted to them, kept in one embedded SQLite file.
//
// # Architecture
//
// Two narrow interfaces describe the engine:
//
//   - ThreadStore: create, upsert, lookup, list and lifecycle updates for threads
//   - MessageStore: single and batch inserts, listings, search, mentions and bulk deletes
//
// Store combines both. SQLiteStore implements Store on database/sql;
// MockStore is an in-memory twin with failure injection for service tests.
//
// # Identifiers
//
// Ids are random UUID strings. ResolveThreadID and ResolveMessageID accept a
// case-sensitive prefix and return the single matching id, a *NotFoundError,
// or an *AmbiguousPrefixError carrying the number of matches.
//
// # SQLite Configuration
//
// Every connection is configured with:
//
//	PRAGMA busy_timeout = 5000;
//	PRAGMA journal_mode = WAL;
//	PRAGMA synchronous = NORMAL;
//	PRAGMA foreign_keys = OFF;
//
// The pool holds a single connection, so :memory: databases work and the
// pragmas apply to every statement. Two drivers are supported: the pure-Go
// modernc.org/sqlite ("sqlite", the default) and the cgo
// github.com/mattn/go-sqlite3 ("sqlite3").
//
// # Migrations
//
// Schema steps are listed in migrations.go and recorded in schema_version.
// On open every step newer than the recorded version is applied in its own
// transaction; a failing step aborts Open.
//
// # Search
//
// SearchMessages tries the FTS5 index first. If FTS5 rejects the query, or
// the driver lacks the module, the query is matched as a literal,
// case-sensitive substring instead. Both modes order newest first.
//
// # Error Handling
//
//   - *NotFoundError (ErrNotFound): unknown thread or message
//   - *AmbiguousPrefixError (ErrAmbiguousPrefix): short id matches several records
//   - *DatabaseError (ErrDatabase): the driver failed
//   - *InvalidInputError (ErrInvalidInput): a precondition on the input failed
//
// # Testing
//
// Use OpenMemory for integration tests and NewMockStore for unit tests of
// code that only needs the interfaces.
package store
