// Package model defines the normalized data types shared by every decoder,
// the indexing orchestrator, the lexical index, and the vector backend.
package model

import (
	"crypto/sha256"
	"encoding/binary"
	"strings"
	"time"
)

// Role identifies who produced a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"

	// RoleDecision tags a Document synthesized by the optional enrichment
	// step (see internal/enrich) rather than decoded directly from a
	// Message. It rides the existing Metadata.Role column instead of a
	// new schema column, keeping the enrichment feature additive: a
	// lexical/vector index built with enrichment disabled never sees this
	// value and is byte-for-byte what spec.md's core describes.
	RoleDecision Role = "decision"
)

// Source identifies which ingest pipeline produced a Conversation.
type Source string

const (
	SourceAgent  Source = "agent"
	SourceWeb    Source = "web"
	SourceMemory Source = "memory"
)

// Collection is an independent lexical+vector index partition.
type Collection string

const (
	CollectionAlpha Collection = "alpha"
	CollectionBeta  Collection = "beta"
)

// CollectionForSource maps a Source to the collection it lives in.
// Alpha <-> agent, Beta <-> web and memory (memory-file conversations are
// local notes, not web exports, but they share beta's locality since neither
// originates from the agent session-log pipeline spec.md reserves alpha for).
func CollectionForSource(s Source) Collection {
	if s == SourceAgent {
		return CollectionAlpha
	}
	return CollectionBeta
}

// Message is one turn in a Conversation. Immutable after creation.
type Message struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// Conversation groups an ordered sequence of Messages under a stable identity.
type Conversation struct {
	ID        string
	Timestamp time.Time
	Messages  []Message
	Project   string
	Source    Source
	Cwd       string
	GitBranch string
}

// Metadata is the flat key-value bag stored alongside a Document.
// Optional fields are always present as empty strings, never omitted,
// per spec.md's "Metadata completeness" invariant.
type Metadata struct {
	ConversationID string
	Role           string
	Timestamp      time.Time
	Project        string
	Source         string
	Cwd            string
	GitBranch      string
}

// Document is one indexed unit, corresponding to a single Message.
type Document struct {
	DocID      string
	Text       string
	Metadata   Metadata
	Collection Collection
}

// DocID computes the deterministic 128-bit (as 32 hex chars) identity hash
// spec.md §3 requires: a pure function of (conversation_id, ordinal,
// content[:200]), stable across process restarts.
func DocID(conversationID string, ordinal int, content string) string {
	h := sha256.New()
	h.Write([]byte(conversationID))
	h.Write([]byte{0})
	var ord [8]byte
	binary.BigEndian.PutUint64(ord[:], uint64(ordinal))
	h.Write(ord[:])
	h.Write([]byte{0})
	prefix := content
	if len(prefix) > 200 {
		prefix = prefix[:200]
	}
	h.Write([]byte(prefix))
	sum := h.Sum(nil)
	// 128 bits = first 16 bytes of the SHA-256 digest.
	return hexEncode(sum[:16])
}

const hexDigits = "0123456789abcdef"

func hexEncode(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b) * 2)
	for _, c := range b {
		sb.WriteByte(hexDigits[c>>4])
		sb.WriteByte(hexDigits[c&0x0f])
	}
	return sb.String()
}

// Documents flattens a Conversation into per-message Documents, skipping
// messages whose content is empty or whitespace-only per spec.md's
// "Non-empty content" invariant.
func Documents(c Conversation) []Document {
	docs := make([]Document, 0, len(c.Messages))
	collection := CollectionForSource(c.Source)
	for i, m := range c.Messages {
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}
		docs = append(docs, Document{
			DocID: DocID(c.ID, i, m.Content),
			Text:  m.Content,
			Metadata: Metadata{
				ConversationID: c.ID,
				Role:           string(m.Role),
				Timestamp:      m.Timestamp,
				Project:        c.Project,
				Source:         string(c.Source),
				Cwd:            c.Cwd,
				GitBranch:      c.GitBranch,
			},
			Collection: collection,
		})
	}
	return docs
}
