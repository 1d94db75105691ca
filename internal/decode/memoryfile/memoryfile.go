// Package memoryfile decodes the memory source: a single markdown file
// becomes a single-assistant-message Conversation. Grounded on
// original_source/daemon/memory_parser.py.
package memoryfile

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"

	"github.com/fyrsmithlabs/chatindex/internal/decode"
	"github.com/fyrsmithlabs/chatindex/internal/model"
)

// Decoder decodes memory markdown files.
type Decoder struct{}

// New returns a memory-file Decoder.
func New() *Decoder { return &Decoder{} }

// Decode reads path, a markdown file, and returns a single Conversation
// holding one assistant message with the file's full text as content.
func (d *Decoder) Decode(path string) ([]model.Conversation, decode.DecodeMetrics, error) {
	var metrics decode.DecodeMetrics

	info, err := os.Stat(path)
	if err != nil {
		return nil, metrics, err
	}
	if info.Size() == 0 {
		return nil, metrics, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, metrics, err
	}

	content := strings.TrimSpace(string(raw))
	if content == "" {
		return nil, metrics, nil
	}

	conv := model.Conversation{
		ID:        conversationID(path),
		Timestamp: info.ModTime().UTC(),
		Messages: []model.Message{
			{
				Role:      model.RoleAssistant,
				Content:   content,
				Timestamp: info.ModTime().UTC(),
			},
		},
		Source: model.SourceMemory,
	}

	metrics.Conversations = 1
	metrics.Messages = 1

	return []model.Conversation{conv}, metrics, nil
}

// conversationID derives a stable conversation identity from the file path
// so re-ingesting the same file never re-mints an identity, per spec.md
// §3's "identity derived from source fields and never re-minted."
func conversationID(path string) string {
	sum := sha256.Sum256([]byte(path))
	return "memory-" + hex.EncodeToString(sum[:6])
}
