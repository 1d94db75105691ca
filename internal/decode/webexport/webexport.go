// Package webexport decodes the web source: a ZIP archive containing a
// top-level conversations.json array, the shape of a Claude.ai data export.
// Grounded on original_source/daemon/claude_web_parser.py, reworked into
// spec.md's Conversation model (one Conversation per exported chat, rather
// than a flat message list).
package webexport

import (
	"archive/zip"
	"encoding/json"
	"io"
	"strings"

	"github.com/fyrsmithlabs/chatindex/internal/decode"
	"github.com/fyrsmithlabs/chatindex/internal/model"
)

// Decoder decodes web-export ZIP archives.
type Decoder struct{}

// New returns a web-export Decoder.
func New() *Decoder { return &Decoder{} }

type rawConversation struct {
	UUID         string       `json:"uuid"`
	Name         string       `json:"name"`
	ChatMessages []rawMessage `json:"chat_messages"`
}

type rawMessage struct {
	UUID      string           `json:"uuid"`
	Sender    string           `json:"sender"`
	Text      string           `json:"text"`
	Content   []rawContentItem `json:"content"`
	CreatedAt string           `json:"created_at"`
}

type rawContentItem struct {
	Text string `json:"text"`
}

// allowedRoles maps the export's sender vocabulary onto spec.md's Role
// vocabulary, lowercasing human/ai to user/assistant as spec.md §4.1
// requires.
var allowedRoles = map[string]model.Role{
	"human":     model.RoleUser,
	"user":      model.RoleUser,
	"assistant": model.RoleAssistant,
	"ai":        model.RoleAssistant,
}

// Decode reads path, a ZIP archive, and returns one Conversation per entry
// in conversations.json.
func (d *Decoder) Decode(path string) ([]model.Conversation, decode.DecodeMetrics, error) {
	var metrics decode.DecodeMetrics

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, metrics, err
	}
	defer zr.Close()

	var convFile *zip.File
	for _, f := range zr.File {
		if f.Name == "conversations.json" {
			convFile = f
			break
		}
	}
	if convFile == nil {
		metrics.SchemaFailures++
		return nil, metrics, nil
	}

	rc, err := convFile.Open()
	if err != nil {
		return nil, metrics, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, metrics, err
	}

	var raw []rawConversation
	if err := json.Unmarshal(data, &raw); err != nil {
		metrics.ParseFailures++
		return nil, metrics, nil
	}

	conversations := make([]model.Conversation, 0, len(raw))
	for _, rc := range raw {
		conv, ok := convertConversation(rc)
		if !ok {
			metrics.SchemaFailures++
			continue
		}
		metrics.Conversations++
		metrics.Messages += len(conv.Messages)
		conversations = append(conversations, conv)
	}

	return conversations, metrics, nil
}

func convertConversation(rc rawConversation) (model.Conversation, bool) {
	if len(rc.ChatMessages) == 0 {
		return model.Conversation{}, false
	}

	seen := make(map[string]struct{})
	var messages []model.Message
	for _, rm := range rc.ChatMessages {
		role, ok := allowedRoles[strings.ToLower(rm.Sender)]
		if !ok {
			continue
		}

		content := extractText(rm)
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}

		identity := rm.UUID
		if identity == "" {
			identity = rc.UUID + ":" + content
		}
		if _, dup := seen[identity]; dup {
			continue
		}
		seen[identity] = struct{}{}

		messages = append(messages, model.Message{
			Role:      role,
			Content:   content,
			Timestamp: decode.ParseTimestamp(rm.CreatedAt),
		})
	}

	if len(messages) == 0 {
		return model.Conversation{}, false
	}

	convID := rc.UUID
	if convID == "" {
		convID = "unknown_conv"
	}

	return model.Conversation{
		ID:        convID,
		Timestamp: messages[0].Timestamp,
		Messages:  messages,
		Project:   rc.Name,
		Source:    model.SourceWeb,
	}, true
}

// extractText prefers the flat Text field and falls back to concatenating
// the text of every content block, matching the export's two observed
// message shapes.
func extractText(rm rawMessage) string {
	if rm.Text != "" {
		return rm.Text
	}
	var parts []string
	for _, c := range rm.Content {
		if c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}
