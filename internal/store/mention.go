// ABOUTME: Word-boundary @mention detection over message content
// ABOUTME: An escaped LIKE pre-filter narrows candidates, an exact scan confirms each one

package store

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

// FindMentions returns messages mentioning @target, newest first. The rune
// after the name must not be a letter, digit or underscore, so "alice"
// matches "@alice!" but not "@alicex" or "@alice_bot". An empty threadID
// searches every thread.
func (s *SQLiteStore) FindMentions(ctx context.Context, threadID, target string) ([]*Message, error) {
	if target == "" {
		return nil, invalidInput("target", "mention target must not be empty")
	}

	query := `SELECT ` + messageColumns + ` FROM messages m WHERE m.content LIKE ? ESCAPE '\'`
	args := []any{"%@" + escapeLike(target) + "%"}
	if threadID != "" {
		query += ` AND m.thread_id = ?`
		args = append(args, threadID)
	}

	candidates, err := s.queryMessages(ctx, s.db, "finding mentions", query+orderRecent, args...)
	if err != nil {
		return nil, err
	}
	return filterMentions(candidates, target), nil
}

// CountMentions counts the messages FindMentions would return.
func (s *SQLiteStore) CountMentions(ctx context.Context, threadID, target string) (int, error) {
	msgs, err := s.FindMentions(ctx, threadID, target)
	if err != nil {
		return 0, err
	}
	return len(msgs), nil
}

func filterMentions(msgs []*Message, target string) []*Message {
	var out []*Message
	for _, msg := range msgs {
		if hasMention(msg.Content, target) {
			out = append(out, msg)
		}
	}
	return out
}

// hasMention reports whether content holds @target followed by end of text
// or a non-word rune. Every occurrence is checked, so "@alicex @alice"
// matches.
func hasMention(content, target string) bool {
	mention := "@" + target
	start := 0
	for {
		i := strings.Index(content[start:], mention)
		if i < 0 {
			return false
		}
		end := start + i + len(mention)
		if end >= len(content) {
			return true
		}
		r, _ := utf8.DecodeRuneInString(content[end:])
		if !isWordRune(r) {
			return true
		}
		start += i + 1
	}
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}
