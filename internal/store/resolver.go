// ABOUTME: Short-id resolution shared by threads and messages
// ABOUTME: A case-sensitive prefix maps to one id, NotFound, or AmbiguousPrefix with a count

package store

import (
	"context"
	"fmt"
)

// idLookup returns every stored id of one entity kind that starts with prefix.
type idLookup func(ctx context.Context, prefix string) ([]string, error)

// resolvePrefix maps prefix to exactly one full id. It never mutates state.
func resolvePrefix(ctx context.Context, kind Kind, prefix string, lookup idLookup) (string, error) {
	if prefix == "" {
		return "", invalidInput("id", fmt.Sprintf("%s id must not be empty", kind))
	}

	ids, err := lookup(ctx, prefix)
	if err != nil {
		return "", dbError(fmt.Sprintf("resolving %s id", kind), err)
	}

	switch len(ids) {
	case 0:
		return "", notFound(kind, prefix)
	case 1:
		return ids[0], nil
	default:
		return "", &AmbiguousPrefixError{Kind: kind, Prefix: prefix, Count: len(ids)}
	}
}

// prefixLookup builds an idLookup over the id column of table. substr keeps
// the comparison case-sensitive and free of wildcard characters, unlike LIKE.
func (s *SQLiteStore) prefixLookup(table string) idLookup {
	query := fmt.Sprintf(`SELECT id FROM %s WHERE substr(id, 1, length(?)) = ?`, table)
	return func(ctx context.Context, prefix string) ([]string, error) {
		rows, err := s.db.QueryContext(ctx, query, prefix, prefix)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, rows.Err()
	}
}

// ResolveThreadID maps a full or short thread id to the full id.
func (s *SQLiteStore) ResolveThreadID(ctx context.Context, prefix string) (string, error) {
	return resolvePrefix(ctx, KindThread, prefix, s.prefixLookup("threads"))
}

// ResolveMessageID maps a full or short message id to the full id.
func (s *SQLiteStore) ResolveMessageID(ctx context.Context, prefix string) (string, error) {
	return resolvePrefix(ctx, KindMessage, prefix, s.prefixLookup("messages"))
}
