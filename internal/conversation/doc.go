// Package conversation provides the thread and message use cases behind the
// aiboard command line.
//
// # Service
//
//	svc := conversation.New(store, conversation.Config{}, logger)
//
// Every operation that takes a thread or message reference accepts a full id
// or any unambiguous prefix of one. The service assigns UUIDs and UTC,
// second-precision timestamps, checks content against the size, NUL and
// UTF-8 rules, and delegates persistence to a ConversationStore.
//
// # Threads
//
//   - CreateThread, GetThread, ListThreads
//   - CloseThread, ReopenThread, SetPhase
//   - DeleteThread: removes the messages, then the thread (see package cleanup)
//
// Closing a thread is informational. Posting to a closed thread succeeds and
// is logged at warn level; the result carries the thread so callers can tell
// the user.
//
// # Messages
//
//   - Post, Update
//   - Read (time window, msg_type, since the last message of a type, limit)
//   - Recent, Search, Mentions, MentionCount, ByType
package conversation
