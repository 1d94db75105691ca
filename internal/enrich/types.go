package enrich

import "context"

// Candidate is a potential decision found in a conversation, surfaced by
// pattern matching over message content before any LLM is involved.
type Candidate struct {
	ConversationID string
	MessageUUID    string
	Content        string
	// Context holds surrounding message text (the window size is
	// NewDetector's contextWindow argument), given to the LLM for grounding.
	Context        []string
	PatternMatched string
	Confidence     float64
}

// Decision is a refined, structured decision extracted from a Candidate.
type Decision struct {
	Summary      string
	Alternatives []string
	Reasoning    string
	Confidence   float64
}

// Client refines decision candidates into structured decisions, optionally
// using an LLM.
type Client interface {
	// Summarize refines candidate into a Decision.
	Summarize(ctx context.Context, candidate Candidate) (Decision, error)

	// Available reports whether the client is actually configured to call
	// an LLM (false for the no-op client; NewClient refuses to build a
	// langchaingo client without an API key).
	Available() bool
}

// DefaultPatterns are the phrase patterns a heuristic candidate detector
// matches against message content to decide something worth summarizing
// was said. Kept from the teacher's internal/extraction.DefaultPatterns.
var DefaultPatterns = []Pattern{
	{Name: "lets_use", Regex: `(?i)let's (go with|use|choose|pick)`, Weight: 0.9},
	{Name: "decided_to", Regex: `(?i)decided to`, Weight: 0.9},
	{Name: "approach_is", Regex: `(?i)the approach (is|will be)`, Weight: 0.8},
	{Name: "choosing_over", Regex: `(?i)choosing .+ over`, Weight: 0.9},
	{Name: "architecture", Regex: `(?i)architecture.*(should|will)`, Weight: 0.7},
	{Name: "dont_because", Regex: `(?i)don't (do|use).*because`, Weight: 0.8},
	{Name: "avoid_because", Regex: `(?i)avoid.*because`, Weight: 0.8},
	{Name: "remember_this", Regex: `(?i)remember (this|that)`, Weight: 1.0},
}

// Pattern is one decision-detection rule.
type Pattern struct {
	Name   string
	Regex  string
	Weight float64
}
