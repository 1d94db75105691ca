// Package decode defines the common contract every source-format decoder
// implements: a pure function from a path on disk to a sequence of
// normalized model.Conversation records plus decode metrics. Decoders never
// partially commit and never call into the index.
package decode

import "github.com/fyrsmithlabs/chatindex/internal/model"

// DecodeMetrics counts what a single decoder invocation observed.
type DecodeMetrics struct {
	Conversations  int
	Messages       int
	ParseFailures  int // malformed input (unreadable file, bad JSON/ZIP)
	SchemaFailures int // well-formed input that doesn't match the expected shape
}

// Add accumulates counts from another DecodeMetrics into the receiver.
func (m *DecodeMetrics) Add(other DecodeMetrics) {
	m.Conversations += other.Conversations
	m.Messages += other.Messages
	m.ParseFailures += other.ParseFailures
	m.SchemaFailures += other.SchemaFailures
}

// Decoder turns one source file into zero or more Conversations.
//
// Implementations MUST NOT reject a message solely because of an
// unparseable timestamp (fall back to "now" instead), MUST deduplicate
// within their own output by message identity, and MUST NOT call into the
// lexical or vector index.
type Decoder interface {
	// Decode reads path and returns the conversations it yields along with
	// metrics describing what was skipped and why.
	Decode(path string) ([]model.Conversation, DecodeMetrics, error)
}
