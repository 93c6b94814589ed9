// ABOUTME: Content search with graceful degradation from FTS5 to escaped substring matching
// ABOUTME: Strategies are tried in order; any failure of one hands the query to the next

package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// searchStrategy is one way of answering a content search. Every strategy
// restricts to threadID when it is non-empty and orders newest first.
type searchStrategy interface {
	name() string
	search(ctx context.Context, q querier, query, threadID string) ([]*Message, error)
}

// minTrigramQuery is the shortest query the trigram index can answer.
const minTrigramQuery = 3

var errShortQuery = errors.New("query is shorter than one trigram")

// ftsStrategy matches the query as one literal phrase against the
// case-sensitive trigram index, so it finds exactly the messages the
// substring strategy finds, without scanning every row.
type ftsStrategy struct {
	store *SQLiteStore
}

func (ftsStrategy) name() string { return "fts5" }

func (f ftsStrategy) search(ctx context.Context, q querier, query, threadID string) ([]*Message, error) {
	if utf8.RuneCountInString(query) < minTrigramQuery {
		return nil, errShortQuery
	}
	sqlQuery := `SELECT ` + messageColumns + `
		FROM messages m
		JOIN messages_fts fts ON m.seq = fts.rowid
		WHERE messages_fts MATCH ?`
	args := []any{ftsPhrase(query)}
	if threadID != "" {
		sqlQuery += ` AND m.thread_id = ?`
		args = append(args, threadID)
	}
	return f.store.queryMessages(ctx, q, "full-text search", sqlQuery+orderRecent, args...)
}

// substringStrategy is a literal, case-sensitive contains match. LIKE with
// escaped metacharacters lets SQLite narrow the rows; instr enforces case
// because LIKE folds ASCII case.
type substringStrategy struct {
	store *SQLiteStore
}

func (substringStrategy) name() string { return "substring" }

func (l substringStrategy) search(ctx context.Context, q querier, query, threadID string) ([]*Message, error) {
	sqlQuery := `SELECT ` + messageColumns + `
		FROM messages m
		WHERE m.content LIKE ? ESCAPE '\' AND instr(m.content, ?) > 0`
	args := []any{"%" + escapeLike(query) + "%", query}
	if threadID != "" {
		sqlQuery += ` AND m.thread_id = ?`
		args = append(args, threadID)
	}
	return l.store.queryMessages(ctx, q, "substring search", sqlQuery+orderRecent, args...)
}

// ftsPhrase quotes s as a single FTS5 string so operators, column filters
// and quotes inside it are plain text.
func ftsPhrase(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern using ESCAPE '\'.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// searchChain runs strategies in order until one succeeds.
type searchChain struct {
	strategies []searchStrategy
	logger     *slog.Logger
}

func newSearchChain(strategies []searchStrategy, logger *slog.Logger) *searchChain {
	return &searchChain{strategies: strategies, logger: logger}
}

func (c *searchChain) search(ctx context.Context, q querier, query, threadID string) ([]*Message, error) {
	var lastErr error
	for i, strategy := range c.strategies {
		msgs, err := strategy.search(ctx, q, query, threadID)
		if err == nil {
			return msgs, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, dbError("searching messages", ctxErr)
		}
		lastErr = err
		if i+1 < len(c.strategies) {
			c.logger.Debug("search strategy failed, falling back",
				"strategy", strategy.name(),
				"next", c.strategies[i+1].name(),
				"error", err,
			)
		}
	}
	return nil, lastErr
}

// strategies returns the chain for mode. The full-text strategy is only
// included when the fts5 module is loaded.
func (s *SQLiteStore) strategies(mode SearchMode) []searchStrategy {
	fallback := substringStrategy{store: s}
	if mode == SearchSubstring || !s.fts {
		return []searchStrategy{fallback}
	}
	return []searchStrategy{ftsStrategy{store: s}, fallback}
}

// SearchMessages finds messages whose content matches query, newest first,
// optionally restricted to one thread. Matching is a literal, case-sensitive
// contains match where %, _ and \ carry no special meaning. The trigram index
// serves it when loaded. Otherwise, or when the index cannot answer, content
// is scanned directly.
func (s *SQLiteStore) SearchMessages(ctx context.Context, query string, threadID string) ([]*Message, error) {
	if strings.TrimSpace(query) == "" {
		return nil, invalidInput("query", "search query must not be empty")
	}
	return s.searcher.search(ctx, s.db, query, threadID)
}
