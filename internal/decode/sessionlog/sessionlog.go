// Package sessionlog decodes the agent source: one line-delimited JSON file
// per session, one event per line. Grounded on the teacher's
// internal/conversation/parser.go, generalized from Claude Code's jsonl
// shape to spec.md's source-agnostic Conversation model.
package sessionlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/chatindex/internal/decode"
	"github.com/fyrsmithlabs/chatindex/internal/model"
)

// maxLineSize bounds a single JSONL line; session transcripts can embed
// large tool outputs.
const maxLineSize = 10 * 1024 * 1024

// Decoder decodes agent session-log files.
type Decoder struct{}

// New returns a session-log Decoder.
func New() *Decoder { return &Decoder{} }

// event is the raw shape of one line in a session-log file.
type event struct {
	Type      string          `json:"type"`
	UUID      string          `json:"uuid"`
	SessionID string          `json:"sessionId"`
	Cwd       string          `json:"cwd"`
	GitBranch string          `json:"gitBranch"`
	Timestamp string          `json:"timestamp"`
	Message   json.RawMessage `json:"message"`
}

// nestedMessage is the structure of event.Message for both user and
// assistant events. Content is either a bare string or a list of typed
// blocks.
type nestedMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Decode reads path, a single session-log JSONL file, and returns at most
// one Conversation (the session). Decode never partially commits: either
// the whole session becomes one Conversation, or nothing does.
func (d *Decoder) Decode(path string) ([]model.Conversation, decode.DecodeMetrics, error) {
	var metrics decode.DecodeMetrics

	f, err := os.Open(path)
	if err != nil {
		return nil, metrics, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineSize)

	var (
		sessionID string
		cwd       string
		gitBranch string
		project   string
		haveFirst bool
		messages  []model.Message
		seen      = make(map[string]struct{})
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var ev event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			metrics.ParseFailures++
			continue
		}

		if ev.Type != "user" && ev.Type != "assistant" {
			continue
		}

		if !haveFirst {
			sessionID = ev.SessionID
			cwd = ev.Cwd
			gitBranch = ev.GitBranch
			project = projectFromPath(path)
			haveFirst = true
		}

		content, ok := extractContent(ev.Message)
		if !ok {
			metrics.SchemaFailures++
			continue
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}

		identity := ev.UUID
		if identity == "" {
			identity = ev.Type + ":" + content
		}
		if _, dup := seen[identity]; dup {
			continue
		}
		seen[identity] = struct{}{}

		role := model.RoleUser
		if ev.Type == "assistant" {
			role = model.RoleAssistant
		}

		messages = append(messages, model.Message{
			Role:      role,
			Content:   content,
			Timestamp: decode.ParseTimestamp(ev.Timestamp),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, metrics, err
	}

	if len(messages) == 0 {
		return nil, metrics, nil
	}

	if sessionID == "" {
		sessionID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	conv := model.Conversation{
		ID:        sessionID,
		Timestamp: messages[0].Timestamp,
		Messages:  messages,
		Project:   project,
		Source:    model.SourceAgent,
		Cwd:       cwd,
		GitBranch: gitBranch,
	}

	metrics.Conversations = 1
	metrics.Messages = len(messages)

	return []model.Conversation{conv}, metrics, nil
}

// extractContent flattens event.Message.Content, which is either a bare
// JSON string or a list of typed content blocks, into newline-joined text
// from the text-typed blocks. The second return value is false only when
// the message field could not be interpreted as either shape (a schema
// failure), not when it is merely empty.
func extractContent(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", true
	}

	var nm nestedMessage
	if err := json.Unmarshal(raw, &nm); err != nil {
		return "", false
	}

	if len(nm.Content) == 0 {
		return "", true
	}

	var asString string
	if err := json.Unmarshal(nm.Content, &asString); err == nil {
		return asString, true
	}

	var blocks []contentBlock
	if err := json.Unmarshal(nm.Content, &blocks); err != nil {
		return "", false
	}

	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n"), true
}

// projectFromPath derives a project label from the encoded parent directory
// name Claude Code-style session stores use: dashes standing in for path
// separators, e.g. "-home-user-project-myproject". Without a "project"
// segment it returns the last two segments joined by a dash (or the only
// segment); the raw parent name is returned only when it has no segments.
func projectFromPath(path string) string {
	parent := filepath.Base(filepath.Dir(path))
	parts := strings.Split(parent, "-")
	var clean []string
	for _, p := range parts {
		if p != "" {
			clean = append(clean, p)
		}
	}
	if len(clean) == 0 {
		return parent
	}
	for i, p := range clean {
		if p == "project" && i+1 < len(clean) {
			return strings.Join(clean[i+1:], "-")
		}
	}
	if len(clean) >= 2 {
		return strings.Join(clean[len(clean)-2:], "-")
	}
	return clean[0]
}
