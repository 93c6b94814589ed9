// ABOUTME: Ingests agent hook events read as JSON and records them as thread messages
// ABOUTME: Maps prompts, decisions and final transcript replies onto roles, senders and sources

package hook

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/afmon/aiboard-cli/internal/conversation"
	"github.com/afmon/aiboard-cli/internal/store"
)

// Event names with dedicated handling.
const (
	EventUserPromptSubmit = "UserPromptSubmit"
	EventPostToolUse      = "PostToolUse"
	EventStop             = "Stop"
	EventSubagentStop     = "SubagentStop"
)

const askUserQuestionTool = "AskUserQuestion"

// Store is the subset of storage the ingester writes to.
type Store interface {
	UpsertThread(ctx context.Context, thread *store.Thread) error
	GetThread(ctx context.Context, id string) (*store.Thread, error)
	InsertMessages(ctx context.Context, msgs []*store.Message) (int, error)
}

// Event is the common envelope of a hook payload. Event-specific fields stay
// in Raw.
type Event struct {
	SessionID           string          `json:"session_id"`
	HookEventName       string          `json:"hook_event_name"`
	Prompt              string          `json:"prompt"`
	ToolName            string          `json:"tool_name"`
	ToolResponse        json.RawMessage `json:"tool_response"`
	TranscriptPath      string          `json:"transcript_path"`
	AgentTranscriptPath string          `json:"agent_transcript_path"`
	AgentType           string          `json:"agent_type"`
}

// Result reports what an ingest stored.
type Result struct {
	ThreadID     string
	Stored       int
	ThreadClosed bool
}

// Ingester turns hook events into messages.
type Ingester struct {
	store           Store
	logger          *slog.Logger
	maxContentBytes int
	now             func() time.Time
	newID           func() string
}

// New creates an Ingester. maxContentBytes <= 0 uses the conversation default.
func New(s Store, maxContentBytes int, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	if maxContentBytes <= 0 {
		maxContentBytes = conversation.DefaultMaxContentBytes
	}
	return &Ingester{
		store:           s,
		logger:          logger.With("component", "hook"),
		maxContentBytes: maxContentBytes,
		now:             time.Now,
		newID:           uuid.NewString,
	}
}

type entry struct {
	role    store.Role
	content string
	sender  string
	source  string
}

// Ingest decodes one hook payload and stores at most one message. The thread
// is threadOverride when set, else the payload's session id; it is created
// on first use. Events carrying nothing worth keeping store nothing.
func (i *Ingester) Ingest(ctx context.Context, r io.Reader, threadOverride string) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading hook input: %w", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, &store.InvalidInputError{Field: "hook input", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}

	threadID := threadOverride
	if threadID == "" {
		threadID = ev.SessionID
	}
	if threadID == "" {
		return nil, &store.InvalidInputError{Field: "thread", Reason: "no session_id in hook input and no thread given"}
	}
	res := &Result{ThreadID: threadID}

	e, ok := i.classify(&ev)
	if !ok || e.content == "" {
		i.logger.Debug("hook event skipped", "event", ev.HookEventName, "thread_id", threadID)
		return res, nil
	}
	if err := conversation.ValidateContent(e.content, i.maxContentBytes); err != nil {
		return nil, err
	}

	now := i.now().UTC().Truncate(time.Second)
	thread := &store.Thread{
		ID:        threadID,
		Title:     "Session " + shortID(threadID),
		Status:    store.ThreadStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := i.store.UpsertThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("ensuring thread: %w", err)
	}
	existing, err := i.store.GetThread(ctx, threadID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		i.logger.Debug("thread missing after upsert", "thread_id", threadID)
	case err != nil:
		return nil, fmt.Errorf("checking thread status: %w", err)
	case existing.Status == store.ThreadStatusClosed:
		res.ThreadClosed = true
		i.logger.Info("hook event for closed thread", "thread_id", threadID)
	}

	msg := &store.Message{
		ID:        i.newID(),
		ThreadID:  threadID,
		SessionID: optional(ev.SessionID),
		Sender:    optional(e.sender),
		Role:      e.role,
		Content:   e.content,
		Source:    optional(e.source),
		CreatedAt: now,
		UpdatedAt: now,
	}
	n, err := i.store.InsertMessages(ctx, []*store.Message{msg})
	if err != nil {
		return nil, fmt.Errorf("storing hook message: %w", err)
	}
	res.Stored = n

	i.logger.Debug("hook event stored", "event", ev.HookEventName, "thread_id", threadID, "message_id", msg.ID)
	return res, nil
}

func (i *Ingester) classify(ev *Event) (entry, bool) {
	switch ev.HookEventName {
	case EventUserPromptSubmit:
		return entry{role: store.RoleUser, content: ev.Prompt, source: "user"}, true

	case EventPostToolUse:
		// Only decisions are kept; other tool output is too large to be useful.
		if ev.ToolName != askUserQuestionTool {
			return entry{}, false
		}
		content, ok := decisionContent(ev.ToolResponse)
		if !ok {
			return entry{}, false
		}
		return entry{role: store.RoleUser, content: content, source: "user"}, true

	case EventStop:
		text, err := lastAssistantText(ev.TranscriptPath)
		if err != nil {
			i.logger.Debug("transcript unavailable", "path", ev.TranscriptPath, "error", err)
			return entry{}, false
		}
		return entry{role: store.RoleAssistant, content: text, sender: "claude", source: "agent"}, true

	case EventSubagentStop:
		agentType := ev.AgentType
		if agentType == "" {
			agentType = "unknown"
		}
		text, err := lastAssistantText(ev.AgentTranscriptPath)
		if err != nil {
			i.logger.Debug("subagent transcript unavailable", "path", ev.AgentTranscriptPath, "error", err)
			return noticeEntry(EventSubagentStop), true
		}
		return entry{role: store.RoleAssistant, content: text, sender: "subagent:" + agentType, source: "agent"}, true

	default:
		name := ev.HookEventName
		if name == "" {
			name = "Unknown"
		}
		return noticeEntry(name), true
	}
}

func noticeEntry(event string) entry {
	return entry{role: store.RoleSystem, content: fmt.Sprintf("[%s] event received", event), source: "system"}
}

// decisionContent renders an AskUserQuestion response as
// "[decision] Q: <question> / A: <answer> | ...". The response may be an
// object or a JSON string holding one.
func decisionContent(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = json.RawMessage(encoded)
	}
	var resp struct {
		Answers map[string]json.RawMessage `json:"answers"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Answers) == 0 {
		return "", false
	}

	questions := make([]string, 0, len(resp.Answers))
	for q := range resp.Answers {
		questions = append(questions, q)
	}
	sort.Strings(questions)

	parts := make([]string, 0, len(questions))
	for _, q := range questions {
		answer := string(resp.Answers[q])
		var s string
		if err := json.Unmarshal(resp.Answers[q], &s); err == nil {
			answer = s
		}
		parts = append(parts, fmt.Sprintf("Q: %s / A: %s", q, answer))
	}
	return "[decision] " + strings.Join(parts, " | "), true
}

var errNoAssistantText = errors.New("no assistant text in transcript")

// lastAssistantText returns the text of the last assistant entry in a JSONL
// transcript. Entries carry role and content at the top level or under
// "message"; content is a string or a list of blocks whose text blocks are
// joined by newlines. Lines that fail to parse are skipped.
func lastAssistantText(path string) (string, error) {
	if path == "" {
		return "", errors.New("no transcript path")
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var last string
	r := bufio.NewReader(f)
	for {
		line, readErr := r.ReadBytes('\n')
		if text, ok := assistantText(line); ok {
			last = text
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", readErr
		}
	}
	if last == "" {
		return "", errNoAssistantText
	}
	return last, nil
}

type transcriptEntry struct {
	Role    string           `json:"role"`
	Content json.RawMessage  `json:"content"`
	Message *transcriptEntry `json:"message"`
}

func assistantText(line []byte) (string, bool) {
	line = []byte(strings.TrimSpace(string(line)))
	if len(line) == 0 {
		return "", false
	}
	var e transcriptEntry
	if err := json.Unmarshal(line, &e); err != nil {
		return "", false
	}
	if e.Role == "" && e.Message != nil {
		e = *e.Message
	}
	if e.Role != "assistant" {
		return "", false
	}
	return textContent(e.Content)
}

func textContent(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", false
	}
	var texts []string
	for _, b := range blocks {
		if b.Type == "text" {
			texts = append(texts, b.Text)
		}
	}
	if len(texts) == 0 {
		return "", false
	}
	return strings.Join(texts, "\n"), true
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
