package enrich

import (
	"regexp"
	"strings"
)

// Detector finds decision candidates in a conversation's messages by
// pattern matching, the same heuristic gate the teacher's
// HeuristicExtractor uses before ever calling an LLM: running every
// message through a real LLM would be both slow and expensive, so only
// messages that already look decision-shaped are promoted to a Candidate.
type Detector struct {
	patterns            []compiledPattern
	confidenceThreshold float64
	contextWindow       int
}

type compiledPattern struct {
	Pattern
	regex *regexp.Regexp
}

// NewDetector builds a Detector from patterns (DefaultPatterns if empty).
// Invalid regexes are skipped rather than failing construction, matching
// the teacher's tolerance for a bad pattern in a user-supplied config.
func NewDetector(patterns []Pattern, confidenceThreshold float64, contextWindow int) *Detector {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	if confidenceThreshold == 0 {
		confidenceThreshold = 0.5
	}
	if contextWindow == 0 {
		contextWindow = 3
	}

	compiled := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			continue
		}
		compiled = append(compiled, compiledPattern{Pattern: p, regex: re})
	}

	return &Detector{
		patterns:            compiled,
		confidenceThreshold: confidenceThreshold,
		contextWindow:       contextWindow,
	}
}

// DetectedMessage is the minimal shape a Detector needs from a message;
// kept decoupled from model.Message so this package never imports model.
type DetectedMessage struct {
	ConversationID string
	UUID           string
	Content        string
}

// Detect scans messages in order and returns one Candidate per message
// whose content matches a pattern above the confidence threshold, with up
// to contextWindow preceding messages attached as context.
func (d *Detector) Detect(messages []DetectedMessage) []Candidate {
	var candidates []Candidate
	for i, m := range messages {
		name, weight, matched := d.bestMatch(m.Content)
		if !matched || weight < d.confidenceThreshold {
			continue
		}

		start := i - d.contextWindow
		if start < 0 {
			start = 0
		}
		var ctx []string
		for _, prev := range messages[start:i] {
			ctx = append(ctx, prev.Content)
		}

		candidates = append(candidates, Candidate{
			ConversationID: m.ConversationID,
			MessageUUID:    m.UUID,
			Content:        strings.TrimSpace(m.Content),
			Context:        ctx,
			PatternMatched: name,
			Confidence:     weight,
		})
	}
	return candidates
}

// bestMatch returns the highest-weighted pattern matching content.
func (d *Detector) bestMatch(content string) (name string, weight float64, matched bool) {
	for _, p := range d.patterns {
		if p.regex.MatchString(content) && p.Weight > weight {
			name = p.Name
			weight = p.Weight
			matched = true
		}
	}
	return name, weight, matched
}
