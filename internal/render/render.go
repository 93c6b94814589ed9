// ABOUTME: Renders threads and messages as text, JSON, markdown or HTML
// ABOUTME: HTML export converts the markdown rendering with goldmark inside a page template

package render

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/afmon/aiboard-cli/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/thread.html"))

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Format selects an output encoding.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// TimeLayout is the timestamp layout of text and markdown output.
const TimeLayout = "2006-01-02 15:04:05"

// ParseFormat parses a format name; "md" is accepted for markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	}
	return "", &store.InvalidInputError{Field: "format", Reason: fmt.Sprintf("unknown output format: %s", s)}
}

// ShortID returns the first eight characters of an id.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func stamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// MessageLine renders one message as "[ts] <id8> (role) sender: content".
func MessageLine(m *store.Message) string {
	return fmt.Sprintf("[%s] %s (%s) %s: %s", stamp(m.CreatedAt), ShortID(m.ID), m.Role, orDash(m.Sender), m.Content)
}

// ThreadLine renders one thread as tab-separated id, name, title, status,
// phase and update time.
func ThreadLine(t *store.Thread) string {
	phase := "-"
	if t.Phase != nil {
		phase = string(*t.Phase)
	}
	return strings.Join([]string{ShortID(t.ID), orDash(t.Name), t.Title, string(t.Status), phase, stamp(t.UpdatedAt)}, "\t")
}

// Messages writes a message list. Markdown and HTML render a bare list;
// use Thread for a titled export.
func Messages(w io.Writer, f Format, msgs []*store.Message) error {
	switch f {
	case FormatText:
		return writeLines(w, len(msgs), func(i int) string { return MessageLine(msgs[i]) })
	case FormatJSON:
		return writeJSON(w, nonNil(msgs))
	case FormatMarkdown:
		_, err := io.WriteString(w, markdownMessages(msgs))
		return err
	case FormatHTML:
		return writeHTML(w, "Messages", markdownMessages(msgs))
	}
	return unsupported(f)
}

// Threads writes a thread list.
func Threads(w io.Writer, f Format, threads []*store.Thread) error {
	switch f {
	case FormatText:
		return writeLines(w, len(threads), func(i int) string { return ThreadLine(threads[i]) })
	case FormatJSON:
		return writeJSON(w, nonNil(threads))
	case FormatMarkdown, FormatHTML:
		var b strings.Builder
		b.WriteString("| ID | Name | Title | Status | Phase | Updated |\n")
		b.WriteString("|----|------|-------|--------|-------|---------|\n")
		for _, t := range threads {
			cols := strings.Split(ThreadLine(t), "\t")
			for i := range cols {
				cols[i] = strings.ReplaceAll(cols[i], "|", `\|`)
			}
			b.WriteString("| " + strings.Join(cols, " | ") + " |\n")
		}
		if f == FormatMarkdown {
			_, err := io.WriteString(w, b.String())
			return err
		}
		return writeHTML(w, "Threads", b.String())
	}
	return unsupported(f)
}

// ThreadExport is the JSON shape of an exported thread.
type ThreadExport struct {
	Thread   *store.Thread    `json:"thread"`
	Messages []*store.Message `json:"messages"`
}

// Thread writes a thread with its messages.
func Thread(w io.Writer, f Format, t *store.Thread, msgs []*store.Message) error {
	switch f {
	case FormatText:
		if _, err := fmt.Fprintf(w, "%s\n", ThreadLine(t)); err != nil {
			return err
		}
		return Messages(w, f, msgs)
	case FormatJSON:
		return writeJSON(w, ThreadExport{Thread: t, Messages: nonNil(msgs)})
	case FormatMarkdown:
		_, err := io.WriteString(w, markdownThread(t, msgs))
		return err
	case FormatHTML:
		return writeHTML(w, t.Title, markdownThread(t, msgs))
	}
	return unsupported(f)
}

func markdownThread(t *store.Thread, msgs []*store.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", t.Title)
	fmt.Fprintf(&b, "- id: `%s`\n", t.ID)
	if t.Name != nil {
		fmt.Fprintf(&b, "- name: %s\n", *t.Name)
	}
	fmt.Fprintf(&b, "- status: %s\n", t.Status)
	if t.Phase != nil {
		fmt.Fprintf(&b, "- phase: %s\n", *t.Phase)
	}
	if t.SourceURL != nil {
		fmt.Fprintf(&b, "- source: <%s>\n", *t.SourceURL)
	}
	fmt.Fprintf(&b, "- created: %s\n- updated: %s\n\n", stamp(t.CreatedAt), stamp(t.UpdatedAt))
	b.WriteString(markdownMessages(msgs))
	return b.String()
}

func markdownMessages(msgs []*store.Message) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "### %s · %s · %s\n\n", m.Role, orDash(m.Sender), stamp(m.CreatedAt))
		fmt.Fprintf(&b, "`%s`", ShortID(m.ID))
		if t := m.MsgType(); t != "" {
			fmt.Fprintf(&b, " `%s`", t)
		}
		b.WriteString("\n\n")
		b.WriteString(strings.TrimRight(m.Content, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

func writeHTML(w io.Writer, title, md string) error {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(md), &body); err != nil {
		return fmt.Errorf("converting markdown: %w", err)
	}
	return pageTemplate.Execute(w, struct {
		Title string
		Body  template.HTML
	}{
		Title: title,
		Body:  template.HTML(body.String()), // goldmark omits raw HTML by default
	})
}

func writeLines(w io.Writer, n int, line func(int) string) error {
	for i := 0; i < n; i++ {
		if _, err := fmt.Fprintln(w, line(i)); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func unsupported(f Format) error {
	return &store.InvalidInputError{Field: "format", Reason: fmt.Sprintf("unsupported output format: %s", f)}
}
